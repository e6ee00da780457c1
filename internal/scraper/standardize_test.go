package scraper

import (
	"testing"

	"auctionharvest/internal/models"
)

func TestStandardizeFillsDefaults(t *testing.T) {
	item := &models.AuctionItem{
		LotNumber: "  L-100  ",
		Title:     " Ford Pickup Truck ",
	}
	Standardize(item, models.SourceGSA)

	if item.LotNumber != "L-100" {
		t.Fatalf("lot=%q want=L-100", item.LotNumber)
	}
	if item.Title != "Ford Pickup Truck" {
		t.Fatalf("title=%q", item.Title)
	}
	if item.Source != models.SourceGSA {
		t.Fatalf("source=%q", item.Source)
	}
	if item.AssetType != "cars" {
		t.Fatalf("asset_type=%q want=cars", item.AssetType)
	}
	if item.Currency != "USD" {
		t.Fatalf("currency=%q want=USD", item.Currency)
	}
	if item.Status != models.StatusActive {
		t.Fatalf("status=%q", item.Status)
	}
	if item.Quantity != 1 {
		t.Fatalf("quantity=%d want=1", item.Quantity)
	}
	if !item.IsAvailable {
		t.Fatal("active item should be available")
	}
}

func TestStandardizeKeepsExplicitFields(t *testing.T) {
	item := &models.AuctionItem{
		LotNumber: "L-1",
		Title:     "Sofa",
		Source:    models.SourceGCSurplus,
		AssetType: "furniture",
		Currency:  "CAD",
		Status:    models.StatusUpcoming,
		Quantity:  3,
	}
	Standardize(item, models.SourceGSA)

	if item.Source != models.SourceGCSurplus || item.Currency != "CAD" || item.Quantity != 3 {
		t.Fatalf("explicit fields overwritten: %+v", item)
	}
	if !item.IsAvailable {
		t.Fatal("upcoming item should be available")
	}
}

func TestStandardizeClosedUnavailable(t *testing.T) {
	item := &models.AuctionItem{LotNumber: "L-2", Title: "Chair", Status: models.StatusClosed}
	Standardize(item, models.SourceTreasury)
	if item.IsAvailable {
		t.Fatal("closed item should not be available")
	}
}

func TestStandardizeCurrencyBySource(t *testing.T) {
	item := &models.AuctionItem{LotNumber: "L-3", Title: "Crate"}
	Standardize(item, models.SourceGCSurplus)
	if item.Currency != "CAD" {
		t.Fatalf("currency=%q want=CAD", item.Currency)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		item    *models.AuctionItem
		wantErr bool
	}{
		{"ok", &models.AuctionItem{LotNumber: "L", Title: "T", Source: "gsa"}, false},
		{"nil", nil, true},
		{"no lot", &models.AuctionItem{Title: "T", Source: "gsa"}, true},
		{"no title", &models.AuctionItem{LotNumber: "L", Source: "gsa"}, true},
		{"no source", &models.AuctionItem{LotNumber: "L", Title: "T"}, true},
	}
	for _, tc := range cases {
		err := Validate(tc.item)
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: err=%v wantErr=%v", tc.name, err, tc.wantErr)
		}
	}
}
