package service

import (
	"context"
	"strings"
	"time"

	"auctionharvest/internal/models"
	"auctionharvest/internal/repository"
)

// AuctionQuery is the handler-facing filter shape. AssetType accepts a single
// value or a comma-separated set.
type AuctionQuery struct {
	Limit      int
	Offset     int
	Source     string
	AssetType  string
	Status     string
	ActiveOnly bool
	Search     string
	MaxBid     *float64
	Country    string
	OrderBy    string
	Asc        *bool
}

type AuctionService struct {
	repo repository.Repository
}

func NewAuctionService(repo repository.Repository) *AuctionService {
	return &AuctionService{repo: repo}
}

func (s *AuctionService) List(ctx context.Context, q AuctionQuery) ([]models.AuctionItem, int64, error) {
	params := toListParams(q)
	items, err := s.repo.ListAuctionItems(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountAuctionItems(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *AuctionService) GetByLotNumber(ctx context.Context, lotNumber string) (*models.AuctionItem, error) {
	return s.repo.GetAuctionItemByLotNumber(ctx, lotNumber)
}

func (s *AuctionService) Stats(ctx context.Context) (repository.Stats, error) {
	return s.repo.AuctionStats(ctx)
}

func toListParams(q AuctionQuery) repository.ListAuctionItemsParams {
	params := repository.ListAuctionItemsParams{
		Limit:      q.Limit,
		Offset:     q.Offset,
		ActiveOnly: q.ActiveOnly,
		MaxBid:     q.MaxBid,
		OrderBy:    q.OrderBy,
		Asc:        q.Asc,
		Now:        time.Now().UTC(),
	}
	if v := strings.TrimSpace(q.Source); v != "" {
		params.Source = &v
	}
	if v := strings.TrimSpace(q.Status); v != "" {
		params.Status = &v
	}
	if v := strings.TrimSpace(q.Search); v != "" {
		params.Search = &v
	}
	if v := strings.TrimSpace(q.Country); v != "" {
		params.Country = &v
	}
	if v := strings.TrimSpace(q.AssetType); v != "" {
		params.AssetTypes = strings.Split(v, ",")
	}
	return params
}
