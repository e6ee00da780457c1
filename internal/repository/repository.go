package repository

import (
	"context"
	"time"

	"auctionharvest/internal/models"
)

// Repository is the persistence surface for the ingestion pipeline and the
// read API. Implementations must be safe for concurrent use.
type Repository interface {
	// Auction items.
	UpsertAuctionItem(ctx context.Context, item *models.AuctionItem) (created bool, err error)
	GetAuctionItemByLotNumber(ctx context.Context, lotNumber string) (*models.AuctionItem, error)
	ListAuctionItems(ctx context.Context, params ListAuctionItemsParams) ([]models.AuctionItem, error)
	CountAuctionItems(ctx context.Context, params ListAuctionItemsParams) (int64, error)

	// Reconciliation.
	MarkUnavailable(ctx context.Context, source string, keepLotNumbers []string) (int64, error)
	DeleteClosedItems(ctx context.Context, source string, closedBefore time.Time) (int64, error)

	// Aggregates.
	AuctionStats(ctx context.Context) (Stats, error)

	// Scrape state bookkeeping.
	GetScrapeState(ctx context.Context, source string) (*models.ScrapeState, error)
	SaveScrapeState(ctx context.Context, state *models.ScrapeState) error
	ListScrapeStates(ctx context.Context) ([]models.ScrapeState, error)

	// Comments.
	InsertComment(ctx context.Context, item *models.Comment) error
	ListCommentsByLotNumber(ctx context.Context, lotNumber string) ([]models.Comment, error)
	DeleteComment(ctx context.Context, id string) (int64, error)
}

// ListAuctionItemsParams filters the auction item listing. ActiveOnly keeps
// available items whose closing date is unset or in the future. AssetTypes
// matches any of the given types. Search does a case-insensitive substring
// match across the text columns.
type ListAuctionItemsParams struct {
	Limit      int
	Offset     int
	Source     *string
	AssetTypes []string
	Status     *string
	ActiveOnly bool
	Search     *string
	MaxBid     *float64
	Country    *string
	OrderBy    string
	Asc        *bool
	Now        time.Time
}

type Stats struct {
	Total      int64
	Available  int64
	BySource   map[string]int64
	ByType     map[string]int64
	ByStatus   map[string]int64
	LastScrape map[string]*time.Time
}
