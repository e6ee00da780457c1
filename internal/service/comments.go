package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"auctionharvest/internal/models"
	"auctionharvest/internal/repository"
)

type CommentService struct {
	repo repository.Repository
}

func NewCommentService(repo repository.Repository) *CommentService {
	return &CommentService{repo: repo}
}

// Add attaches a comment to a lot. The lot must exist; comments are not kept
// for listings the pipeline has never seen.
func (s *CommentService) Add(ctx context.Context, lotNumber, author, content string) (*models.Comment, error) {
	lotNumber = strings.TrimSpace(lotNumber)
	content = strings.TrimSpace(content)
	if lotNumber == "" {
		return nil, fmt.Errorf("lot_number is required")
	}
	if content == "" {
		return nil, fmt.Errorf("content is required")
	}
	author = strings.TrimSpace(author)
	if author == "" {
		author = "anonymous"
	}

	item, err := s.repo.GetAuctionItemByLotNumber(ctx, lotNumber)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("auction item %s not found", lotNumber)
	}

	comment := &models.Comment{
		ID:        uuid.New(),
		LotNumber: lotNumber,
		Author:    author,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.InsertComment(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

func (s *CommentService) ListForLot(ctx context.Context, lotNumber string) ([]models.Comment, error) {
	return s.repo.ListCommentsByLotNumber(ctx, lotNumber)
}

func (s *CommentService) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := s.repo.DeleteComment(ctx, id)
	if err != nil {
		return false, err
	}
	return deleted > 0, nil
}
