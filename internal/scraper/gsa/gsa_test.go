package gsa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"auctionharvest/internal/config"
	"auctionharvest/internal/metrics"
	"auctionharvest/internal/models"
	"auctionharvest/internal/normalize"
)

func newTestScraper(apiBase string) *Scraper {
	return New(
		config.GSAConfig{APIBaseURL: apiBase, APIKey: "test-key"},
		config.ScrapeConfig{},
		nil,
		zap.NewNop(),
		metrics.Nop(),
	)
}

func TestDecodeEnvelope(t *testing.T) {
	row := `{"saleNo":"91QSCI26001","lotNo":"1","itemName":"Sedan"}`
	cases := []struct {
		name string
		raw  string
		want int
	}{
		{"capitalized results", `{"Results":[` + row + `]}`, 1},
		{"bare array", `[` + row + `,` + row + `]`, 2},
		{"auctions key", `{"auctions":[` + row + `]}`, 1},
		{"lowercase results", `{"results":[` + row + `]}`, 1},
		{"empty object", `{}`, 0},
	}
	for _, tc := range cases {
		rows, err := decodeEnvelope([]byte(tc.raw))
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if len(rows) != tc.want {
			t.Errorf("%s: rows=%d want=%d", tc.name, len(rows), tc.want)
		}
	}
}

func TestFlexFields(t *testing.T) {
	var row auctionRow
	raw := `{"saleNo":"S1","lotNo":"2","highBidAmount":1250.5,"reserve":"100","biddersCount":"7"}`
	if err := json.Unmarshal([]byte(raw), &row); err != nil {
		t.Fatal(err)
	}
	if string(row.HighBidAmount) != "1250.5" {
		t.Fatalf("highBidAmount=%q", row.HighBidAmount)
	}
	if string(row.Reserve) != "100" {
		t.Fatalf("reserve=%q", row.Reserve)
	}
	if int(row.BiddersCount) != 7 {
		t.Fatalf("biddersCount=%d", row.BiddersCount)
	}
}

func TestScrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") != "test-key" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`{"Results":[
			{"saleNo":"91QSCI26001","lotNo":"12","itemName":"2016 Chevrolet Tahoe",
			 "highBidAmount":"3500.00","auctionStatus":"active",
			 "aucEndDt":"2026-09-20T17:00:00","propertyCity":"Denver","propertyState":"CO",
			 "agencyName":"Department of the Interior"},
			{"saleNo":"","lotNo":"","itemName":"junk row"},
			{"saleNo":"91QSCI26002","lotNo":"3","itemName":"Desktop Computers",
			 "auctionStatus":"closed","aucEndDt":"2026-08-01T12:00:00Z"}
		]}`))
	}))
	defer srv.Close()

	s := newTestScraper(srv.URL)
	items, err := s.Scrape(context.Background())
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items=%d want=2 (row without sale/lot must be dropped)", len(items))
	}

	tahoe := items[0]
	if tahoe.LotNumber != "91QSCI26001-12" {
		t.Fatalf("lot=%q", tahoe.LotNumber)
	}
	if tahoe.Status != models.StatusActive || !tahoe.IsAvailable {
		t.Fatalf("status=%q available=%v", tahoe.Status, tahoe.IsAvailable)
	}
	if !tahoe.CurrentBid.Equal(decimal.NewFromInt(3500)) {
		t.Fatalf("current_bid=%s", tahoe.CurrentBid)
	}
	if tahoe.Agency == nil || *tahoe.Agency != "Department of the Interior" {
		t.Fatalf("agency=%v", tahoe.Agency)
	}
	// Naive end date in Colorado resolves through Mountain time (UTC-6 in
	// September).
	want := time.Date(2026, 9, 20, 23, 0, 0, 0, time.UTC)
	if tahoe.ClosingDate == nil || !tahoe.ClosingDate.Equal(want) {
		t.Fatalf("closing=%v want=%v", tahoe.ClosingDate, want)
	}

	computers := items[1]
	if computers.Status != models.StatusClosed || computers.IsAvailable {
		t.Fatalf("status=%q available=%v", computers.Status, computers.IsAvailable)
	}
	// Offset-carrying timestamp is taken as-is.
	wantClosed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if computers.ClosingDate == nil || !computers.ClosingDate.Equal(wantClosed) {
		t.Fatalf("closing=%v want=%v", computers.ClosingDate, wantClosed)
	}
}

func TestScrapeSingle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("saleNo") != "91QSCI26001" || r.URL.Query().Get("lotNo") != "12" {
			_, _ = w.Write([]byte(`{"Results":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"Results":[
			{"saleNo":"91QSCI26001","lotNo":"12","itemName":"2016 Chevrolet Tahoe",
			 "auctionStatus":"active","propertyState":"CO"}
		]}`))
	}))
	defer srv.Close()

	s := newTestScraper(srv.URL)
	item, err := s.ScrapeSingle(context.Background(), "91QSCI26001-12")
	if err != nil {
		t.Fatalf("scrape single failed: %v", err)
	}
	if item == nil || item.LotNumber != "91QSCI26001-12" {
		t.Fatalf("item=%+v", item)
	}

	missing, err := s.ScrapeSingle(context.Background(), "91QSCI26001-99")
	if err != nil {
		t.Fatalf("scrape single failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown lot, got %+v", missing)
	}

	if _, err := s.ScrapeSingle(context.Background(), "nodash"); err == nil {
		t.Fatal("expected error for malformed id")
	}
}

func TestTransformStatusMapping(t *testing.T) {
	s := newTestScraper("http://unused")
	cases := []struct {
		raw  string
		want string
	}{
		{"closed", models.StatusClosed},
		{"ended", models.StatusClosed},
		{"sold", models.StatusClosed},
		{"expired", models.StatusExpired},
		{"scheduled", models.StatusUpcoming},
		{"preview", models.StatusUpcoming},
		{"", models.StatusUpcoming},
		{"active", models.StatusActive},
		{"bidding", models.StatusActive},
	}
	for _, tc := range cases {
		item, ok := s.transform(context.Background(), auctionRow{
			SaleNo: "S1", LotNo: "1", ItemName: "Thing", AuctionStatus: tc.raw,
		})
		if !ok {
			t.Fatalf("%q: transform rejected row", tc.raw)
		}
		if item.Status != tc.want {
			t.Errorf("status %q mapped to %q want %q", tc.raw, item.Status, tc.want)
		}
	}
}

func TestTransformDefaults(t *testing.T) {
	s := newTestScraper("http://unused")
	item, ok := s.transform(context.Background(), auctionRow{SaleNo: "S9", LotNo: "4"})
	if !ok {
		t.Fatal("transform rejected row")
	}
	if item.Title != "GSA Auction Item" {
		t.Fatalf("title=%q", item.Title)
	}
	if item.Agency == nil || *item.Agency != "GSA" {
		t.Fatalf("agency=%v", item.Agency)
	}
	if item.ItemURL == nil || *item.ItemURL != "https://www.gsaauctions.gov/gsaauctions/aucitsrh/?sl=S9" {
		t.Fatalf("item_url=%v", item.ItemURL)
	}
}

type markerRenderer struct{ html string }

func (r markerRenderer) Render(_ context.Context, _ string) (string, error) {
	return r.html, nil
}

func TestZoneForItemChain(t *testing.T) {
	s := newTestScraper("http://unused")

	// Renderer disabled, state present.
	loc, method := s.zoneForItem(context.Background(), "TX", "http://example.com/lot")
	if method != "state" || loc != normalize.Central {
		t.Fatalf("got %v/%s want Central/state", loc, method)
	}

	// Renderer disabled, no state.
	loc, method = s.zoneForItem(context.Background(), "", "http://example.com/lot")
	if method != "default" || loc != normalize.Eastern {
		t.Fatalf("got %v/%s want Eastern/default", loc, method)
	}

	// Rendered page carries an explicit marker; it wins over the state.
	s.renderer = markerRenderer{html: `<p>Bidding closes at 3:00 PM PST</p>`}
	loc, method = s.zoneForItem(context.Background(), "TX", "http://example.com/lot")
	if method != "marker" || loc != normalize.Pacific {
		t.Fatalf("got %v/%s want Pacific/marker", loc, method)
	}
}

func TestResolveDateCountsOnlyInferredZones(t *testing.T) {
	s := newTestScraper("http://unused")
	s.renderer = markerRenderer{html: `<p>Bidding closes at 3:00 PM PST</p>`}
	if dt := s.resolveDate(context.Background(), "2026-09-20T17:00:00", "TX", "http://example.com/lot"); dt == nil {
		t.Fatal("date not resolved")
	}
	if got := testutil.ToFloat64(s.met.TimezoneFallbacks.WithLabelValues(s.Source(), zoneMethodMarker)); got != 0 {
		t.Fatalf("marker resolution counted as fallback: %v", got)
	}

	s = newTestScraper("http://unused")
	if dt := s.resolveDate(context.Background(), "2026-09-20T17:00:00", "TX", ""); dt == nil {
		t.Fatal("date not resolved")
	}
	if got := testutil.ToFloat64(s.met.TimezoneFallbacks.WithLabelValues(s.Source(), zoneMethodState)); got != 1 {
		t.Fatalf("state fallback count=%v want 1", got)
	}
}
