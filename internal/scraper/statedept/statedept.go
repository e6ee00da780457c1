// Package statedept scrapes the US Embassy online auction site. The landing
// page lists one block per embassy auction; each block links, via an onclick
// GUID, to a paginated detail view holding the individual lots.
package statedept

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"auctionharvest/internal/config"
	"auctionharvest/internal/metrics"
	"auctionharvest/internal/models"
	"auctionharvest/internal/normalize"
	"auctionharvest/internal/scraper"
)

var (
	guidRe       = regexp.MustCompile(`/en-US/Auction/Index/([a-z0-9-]+)`)
	currencyRe   = regexp.MustCompile(`in\s+([A-Z]{3})`)
	currentBidRe = regexp.MustCompile(`Current Bid\D*?([\d,]+(?:\.\d+)?)`)
)

type Scraper struct {
	cfg     config.StateDeptConfig
	spacing *scraper.Pacer
	httpc   *http.Client
	log     *zap.Logger
	met     *metrics.Metrics
}

func New(cfg config.StateDeptConfig, scrape config.ScrapeConfig, log *zap.Logger, met *metrics.Metrics) *Scraper {
	return &Scraper{
		cfg:     cfg,
		spacing: scraper.NewPacer(scrape.RequestSpacing),
		httpc:   &http.Client{Timeout: scrape.RequestTimeout},
		log:     log.Named("scraper.statedept"),
		met:     met,
	}
}

func (s *Scraper) Source() string {
	return models.SourceStateDept
}

// auctionBlock is the metadata read off one landing-page entry.
type auctionBlock struct {
	guid        string
	locationRaw string
	status      string
	closingDate *time.Time
}

func (s *Scraper) Scrape(ctx context.Context) ([]models.AuctionItem, error) {
	if err := s.spacing.Wait(ctx); err != nil {
		return nil, err
	}
	doc, err := s.fetch(ctx, strings.TrimRight(s.cfg.BaseURL, "/")+"/en-US")
	if err != nil {
		return nil, err
	}

	var blocks []auctionBlock
	doc.Find("div.auction-list").Each(func(_ int, sel *goquery.Selection) {
		block, ok := s.parseBlock(sel)
		if !ok {
			s.met.ParseFailures.WithLabelValues(s.Source()).Inc()
			return
		}
		blocks = append(blocks, block)
	})
	s.log.Info("found auction blocks", zap.Int("blocks", len(blocks)))

	var items []models.AuctionItem
	for _, block := range blocks {
		lots, err := s.scrapeAuctionLots(ctx, block)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.Warn("auction detail scrape failed",
				zap.String("guid", block.guid), zap.Error(err))
			continue
		}
		items = append(items, lots...)
	}
	s.log.Info("processed state dept items", zap.Int("items", len(items)))
	return items, nil
}

// ScrapeSingle runs a full scrape and filters; lots are only reachable
// through their parent auction's paginated detail view.
func (s *Scraper) ScrapeSingle(ctx context.Context, lotNumber string) (*models.AuctionItem, error) {
	items, err := s.Scrape(ctx)
	if err != nil {
		return nil, err
	}
	return scraper.FindLot(items, lotNumber), nil
}

func (s *Scraper) parseBlock(sel *goquery.Selection) (auctionBlock, bool) {
	container := sel.Find("div.label-postname-container").First()
	if container.Length() == 0 {
		return auctionBlock{}, false
	}
	onclick, _ := container.Attr("onclick")
	m := guidRe.FindStringSubmatch(onclick)
	if m == nil {
		return auctionBlock{}, false
	}

	block := auctionBlock{guid: m[1], locationRaw: "Unknown", status: models.StatusActive}

	sel.Find("div[style]").EachWithBreak(func(_ int, div *goquery.Selection) bool {
		style, _ := div.Attr("style")
		if strings.Contains(strings.ReplaceAll(style, " ", ""), "text-align:center") {
			if text := strings.TrimSpace(div.Text()); text != "" {
				block.locationRaw = text
			}
			return false
		}
		return true
	})

	statusText := strings.ToLower(strings.TrimSpace(sel.Find("div.status.label").First().Text()))
	switch {
	case strings.Contains(statusText, "preparing"):
		block.status = models.StatusUpcoming
	case strings.Contains(statusText, "closed"):
		block.status = models.StatusClosed
	}

	if raw, ok := sel.Find("span[localdatetime]").First().Attr("localdatetime"); ok {
		if when, ok := parseLocalDateTime(raw); ok {
			block.closingDate = &when
		}
	}
	return block, true
}

// scrapeAuctionLots walks the auction's paginated detail view until a page
// yields no lot containers or the configured page bound is hit.
func (s *Scraper) scrapeAuctionLots(ctx context.Context, block auctionBlock) ([]models.AuctionItem, error) {
	detailURL := strings.TrimRight(s.cfg.BaseURL, "/") + "/en-US/Auction/Index/" + block.guid
	maxPages := s.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 20
	}

	var items []models.AuctionItem
	seen := map[string]struct{}{}
	for page := 1; page <= maxPages; page++ {
		if err := s.spacing.Wait(ctx); err != nil {
			return nil, err
		}
		pageURL := detailURL
		if page > 1 {
			pageURL = fmt.Sprintf("%s?page=%d", detailURL, page)
		}
		doc, err := s.fetch(ctx, pageURL)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			break
		}

		lots := s.parseLots(doc, block, detailURL)
		// A page that repeats already-seen lots means the site ignored the
		// page parameter and pagination is exhausted.
		added := 0
		for _, lot := range lots {
			if _, dup := seen[lot.LotNumber]; dup {
				continue
			}
			seen[lot.LotNumber] = struct{}{}
			items = append(items, lot)
			added++
		}
		if added == 0 {
			break
		}
		s.log.Debug("parsed detail page",
			zap.String("guid", block.guid), zap.Int("page", page), zap.Int("lots", added))
	}
	return items, nil
}

func (s *Scraper) parseLots(doc *goquery.Document, block auctionBlock, detailURL string) []models.AuctionItem {
	currency := "USD"
	if msg := doc.Find("body").Text(); strings.Contains(msg, "Prices in") {
		idx := strings.Index(msg, "Prices in")
		if m := currencyRe.FindStringSubmatch(msg[idx:]); m != nil {
			currency = m[1]
		}
	}

	city, country := block.locationRaw, ""
	if comma := strings.Index(city, ","); comma >= 0 {
		country = strings.TrimSpace(city[comma+1:])
		city = strings.TrimSpace(city[:comma])
	}

	var items []models.AuctionItem
	doc.Find("div.oa-lot-details").Each(func(_ int, container *goquery.Selection) {
		item, ok := s.parseLot(container, block, detailURL, currency, city, country)
		if !ok {
			s.met.ParseFailures.WithLabelValues(s.Source()).Inc()
			return
		}
		scraper.Standardize(&item, s.Source())
		if err := scraper.Validate(&item); err != nil {
			s.met.ParseFailures.WithLabelValues(s.Source()).Inc()
			return
		}
		items = append(items, item)
	})
	return items
}

func (s *Scraper) parseLot(container *goquery.Selection, block auctionBlock, detailURL, currency, city, country string) (models.AuctionItem, bool) {
	fullTitle := strings.TrimSpace(container.Find("div.name-of-the-item").First().Text())
	if fullTitle == "" {
		return models.AuctionItem{}, false
	}

	lotNum := "unknown"
	title := fullTitle
	if before, after, found := strings.Cut(fullTitle, ":"); found {
		lotNum = strings.TrimSpace(strings.ReplaceAll(before, "Lot#", ""))
		title = strings.TrimSpace(after)
	}

	status := block.status
	if indicator := strings.ToLower(container.Find("div.oa-generic-status-indicator").First().Text()); indicator != "" {
		switch {
		case strings.Contains(indicator, "active"):
			status = models.StatusActive
		case strings.Contains(indicator, "preparing"):
			status = models.StatusUpcoming
		case strings.Contains(indicator, "closed"):
			status = models.StatusClosed
		}
	}

	saleNumber := strings.ToUpper(block.guid)
	if len(saleNumber) > 8 {
		saleNumber = saleNumber[:8]
	}

	item := models.AuctionItem{
		LotNumber:   "state-" + block.guid + "-lot" + lotNum,
		SaleNumber:  &saleNumber,
		Title:       title,
		Source:      models.SourceStateDept,
		Status:      status,
		City:        city,
		Country:     country,
		Currency:    currency,
		ClosingDate: block.closingDate,
		ItemURL:     &detailURL,
		Description: "Auction Location: " + block.locationRaw,
		AddressRaw:  block.locationRaw,
	}

	if m := currentBidRe.FindStringSubmatch(container.Text()); m != nil {
		item.CurrentBid = normalize.ParseMoney(m[1])
	}

	var images []string
	container.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if src == "" {
			return
		}
		if strings.HasPrefix(src, "/") {
			src = strings.TrimRight(s.cfg.BaseURL, "/") + src
		}
		images = append(images, src)
	})
	if len(images) > 0 {
		if raw, err := json.Marshal(images); err == nil {
			item.ImageURLs = datatypes.JSON(raw)
		}
	}

	extra := map[string]any{
		"original_location": block.locationRaw,
		"guid":              block.guid,
	}
	if raw, err := json.Marshal(extra); err == nil {
		item.ExtraData = datatypes.JSON(raw)
	}
	return item, true
}

func (s *Scraper) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", scraper.UserAgent)
	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &scraper.HTTPError{Status: resp.StatusCode, Body: string(body)}
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

// parseLocalDateTime reads the site's localdatetime attribute, e.g.
// "2026-01-14 10:00:00Z".
func parseLocalDateTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02 15:04:05",
	} {
		if dt, err := time.Parse(layout, raw); err == nil {
			return dt.UTC(), true
		}
	}
	return time.Time{}, false
}
