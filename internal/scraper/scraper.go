// Package scraper defines the source adapter contract and the shared
// normalization steps every adapter runs before items reach storage.
package scraper

import (
	"context"
	"time"

	"auctionharvest/internal/models"
)

// Adapter fetches one remote auction source and returns fully standardized,
// validated items. Implementations own their fetch and parse logic; rows that
// fail to parse are skipped and counted, never returned as errors.
type Adapter interface {
	Source() string
	Scrape(ctx context.Context) ([]models.AuctionItem, error)
	// ScrapeSingle returns one item by lot number, or nil when the source no
	// longer lists it. Sources without a single-item endpoint scrape the full
	// listing and filter.
	ScrapeSingle(ctx context.Context, lotNumber string) (*models.AuctionItem, error)
}

// FindLot returns the item with the given lot number, or nil.
func FindLot(items []models.AuctionItem, lotNumber string) *models.AuctionItem {
	for i := range items {
		if items[i].LotNumber == lotNumber {
			return &items[i]
		}
	}
	return nil
}

// Sleep waits for d or until the context is canceled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
