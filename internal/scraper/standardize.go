package scraper

import (
	"fmt"
	"strings"

	"auctionharvest/internal/models"
	"auctionharvest/internal/normalize"
)

// Standardize fills the defaults an adapter may leave blank so every item
// carries the full unified shape before validation.
func Standardize(item *models.AuctionItem, source string) {
	if item == nil {
		return
	}
	item.LotNumber = strings.TrimSpace(item.LotNumber)
	item.Title = strings.TrimSpace(item.Title)
	if item.Source == "" {
		item.Source = source
	}
	if item.AssetType == "" {
		item.AssetType = Classify(item.Title, item.Description)
	}
	if item.Currency == "" {
		item.Currency = normalize.CurrencyForSource(item.Source)
	}
	if item.Status == "" {
		item.Status = models.StatusActive
	}
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	item.IsAvailable = item.Status == models.StatusActive || item.Status == models.StatusUpcoming
}

// Validate rejects items missing the fields the store keys on.
func Validate(item *models.AuctionItem) error {
	if item == nil {
		return fmt.Errorf("nil item")
	}
	if item.LotNumber == "" {
		return fmt.Errorf("missing lot_number")
	}
	if item.Title == "" {
		return fmt.Errorf("missing title")
	}
	if item.Source == "" {
		return fmt.Errorf("missing source")
	}
	return nil
}
