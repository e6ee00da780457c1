package gormrepository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"auctionharvest/internal/models"
	"auctionharvest/internal/repository"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.AuctionItem{}); err != nil {
		t.Fatal(err)
	}
	return New(db)
}

func testItem(lotNumber, status string, available bool) models.AuctionItem {
	return models.AuctionItem{
		LotNumber:   lotNumber,
		Title:       "Item " + lotNumber,
		Source:      models.SourceGSA,
		Status:      status,
		IsAvailable: available,
	}
}

func TestUpsertStoresScrapedAvailability(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	item := testItem("gsa-1", models.StatusActive, true)
	created, err := s.UpsertAuctionItem(ctx, &item)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("first upsert should create")
	}

	// The source now reports the lot closed; the stored row must follow.
	update := testItem("gsa-1", models.StatusClosed, false)
	created, err = s.UpsertAuctionItem(ctx, &update)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("second upsert should update, not create")
	}

	got, err := s.GetAuctionItemByLotNumber(ctx, "gsa-1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Status != models.StatusClosed || got.IsAvailable {
		t.Fatalf("got=%+v want closed and unavailable", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("created_at lost on update")
	}
	if diff := got.CreatedAt.Sub(item.CreatedAt); diff < -time.Second || diff > time.Second {
		t.Fatalf("created_at=%v want preserved %v", got.CreatedAt, item.CreatedAt)
	}
}

func TestListActiveStatusExcludesPastClosing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)

	lapsed := testItem("gsa-1", models.StatusActive, true)
	lapsed.ClosingDate = &past
	open := testItem("gsa-2", models.StatusActive, true)
	open.ClosingDate = &future
	dateless := testItem("gsa-3", models.StatusActive, true)
	for _, item := range []*models.AuctionItem{&lapsed, &open, &dateless} {
		if _, err := s.UpsertAuctionItem(ctx, item); err != nil {
			t.Fatal(err)
		}
	}

	status := models.StatusActive
	params := repository.ListAuctionItemsParams{Status: &status, Now: now}
	items, err := s.ListAuctionItems(ctx, params)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("items=%d want=2", len(items))
	}
	for _, item := range items {
		if item.LotNumber == "gsa-1" {
			t.Fatal("record with past closing date served as active")
		}
	}

	total, err := s.CountAuctionItems(ctx, params)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Fatalf("count=%d want=2", total)
	}
}

func TestDeleteClosedItemsByStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rows := []models.AuctionItem{
		testItem("gsa-1", models.StatusClosed, false),
		testItem("gsa-2", models.StatusExpired, false),
		testItem("gsa-3", models.StatusActive, true),
	}
	for i := range rows {
		if _, err := s.UpsertAuctionItem(ctx, &rows[i]); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.DeleteClosedItems(ctx, models.SourceGSA, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("deleted=%d want=2", n)
	}
	if got, _ := s.GetAuctionItemByLotNumber(ctx, "gsa-3"); got == nil {
		t.Fatal("active row must survive retention")
	}
	if got, _ := s.GetAuctionItemByLotNumber(ctx, "gsa-1"); got != nil {
		t.Fatalf("closed row survived retention: %+v", got)
	}
}

func TestNormalizeLimit(t *testing.T) {
	cases := []struct {
		limit    int
		fallback int
		want     int
	}{
		{0, 100, 100},
		{-5, 50, 50},
		{25, 100, 25},
		{500, 100, 500},
		{9999, 100, 500},
	}
	for _, tc := range cases {
		if got := normalizeLimit(tc.limit, tc.fallback); got != tc.want {
			t.Errorf("normalizeLimit(%d, %d)=%d want=%d", tc.limit, tc.fallback, got, tc.want)
		}
	}
}

func TestNormalizeOffset(t *testing.T) {
	if got := normalizeOffset(-1); got != 0 {
		t.Fatalf("got=%d want=0", got)
	}
	if got := normalizeOffset(40); got != 40 {
		t.Fatalf("got=%d want=40", got)
	}
}

func TestCleanStrings(t *testing.T) {
	got := cleanStrings([]string{" a ", "", "b", "a", "  "})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got=%v want=[a b]", got)
	}
}
