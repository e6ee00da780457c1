// Package gcsurplus scrapes GCSurplus.ca, the Canadian federal surplus
// auction site. Listings come from a paginated POST search form; bid amounts
// and closing dates on the site are Eastern Time.
package gcsurplus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"auctionharvest/internal/config"
	"auctionharvest/internal/metrics"
	"auctionharvest/internal/models"
	"auctionharvest/internal/normalize"
	"auctionharvest/internal/scraper"
)

const resultsPerPage = 25

var (
	lotRe  = regexp.MustCompile(`lcn=(\d+)`)
	saleRe = regexp.MustCompile(`scn=(\d+)`)
	qtyRe  = regexp.MustCompile(`(\d+)`)
)

type Scraper struct {
	cfg     config.GCSurplusConfig
	spacing *scraper.Pacer
	httpc   *http.Client
	log     *zap.Logger
	met     *metrics.Metrics
}

func New(cfg config.GCSurplusConfig, scrape config.ScrapeConfig, log *zap.Logger, met *metrics.Metrics) *Scraper {
	return &Scraper{
		cfg:     cfg,
		spacing: scraper.NewPacer(scrape.RequestSpacing),
		httpc:   &http.Client{Timeout: scrape.RequestTimeout},
		log:     log.Named("scraper.gcsurplus"),
		met:     met,
	}
}

func (s *Scraper) Source() string {
	return models.SourceGCSurplus
}

func (s *Scraper) Scrape(ctx context.Context) ([]models.AuctionItem, error) {
	maxPages := s.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 10
	}

	var all []models.AuctionItem
	for page := 1; page <= maxPages; page++ {
		if err := s.spacing.Wait(ctx); err != nil {
			return nil, err
		}
		doc, err := s.fetchListingPage(ctx, (page-1)*resultsPerPage)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			s.log.Warn("listing page fetch failed, stopping pagination",
				zap.Int("page", page), zap.Error(err))
			break
		}

		items := s.parseListingPage(doc)
		if len(items) == 0 {
			break
		}
		s.log.Debug("parsed listing page", zap.Int("page", page), zap.Int("items", len(items)))
		all = append(all, items...)

		if !hasNextPage(doc) {
			break
		}
	}

	if s.cfg.FetchDetails {
		for i := range all {
			if err := s.enrich(ctx, &all[i]); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				s.log.Warn("detail fetch failed",
					zap.String("lot_number", all[i].LotNumber), zap.Error(err))
			}
		}
	}

	out := make([]models.AuctionItem, 0, len(all))
	for i := range all {
		scraper.Standardize(&all[i], s.Source())
		if err := scraper.Validate(&all[i]); err != nil {
			s.met.ParseFailures.WithLabelValues(s.Source()).Inc()
			continue
		}
		out = append(out, all[i])
	}
	return out, nil
}

// ScrapeSingle runs a full listing scrape and filters; the site has no
// stable single-item lookup keyed by lot number.
func (s *Scraper) ScrapeSingle(ctx context.Context, lotNumber string) (*models.AuctionItem, error) {
	items, err := s.Scrape(ctx)
	if err != nil {
		return nil, err
	}
	return scraper.FindLot(items, lotNumber), nil
}

func (s *Scraper) fetchListingPage(ctx context.Context, start int) (*goquery.Document, error) {
	form := url.Values{
		"saleType":       {"OB"},
		"frm_txtKeyWord": {""},
		"frm_selRegion":  {"All"},
		"frm_cmdSearch":  {"1"},
		"snc":            {"wfsav"},
		"sc":             {"ach-shop"},
		"vndsld":         {"0"},
		"str":            {strconv.Itoa(start)},
		"sf":             {"aff-post"},
		"so":             {"DESC"},
		"rpp":            {strconv.Itoa(resultsPerPage)},
		"sr":             {"1"},
		"lci":            {""},
		"h_so":           {"DESC"},
		"h_sf":           {"aff-post"},
		"hBeenHere":      {"1"},
	}
	return s.postForm(ctx, form)
}

func (s *Scraper) postForm(ctx context.Context, form url.Values) (*goquery.Document, error) {
	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + "/mn-eng.cfm"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
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

func (s *Scraper) parseListingPage(doc *goquery.Document) []models.AuctionItem {
	table := doc.Find("table#srchResultData")
	if table.Length() == 0 {
		table = doc.Find("table.wb-tables")
	}
	if table.Length() == 0 {
		s.log.Warn("could not find auction table")
		return nil
	}

	var items []models.AuctionItem
	table.First().Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		item, ok := s.parseRow(row)
		if !ok {
			s.met.ParseFailures.WithLabelValues(s.Source()).Inc()
			return
		}
		items = append(items, item)
	})
	return items
}

// parseRow reads one search result row. Rows without an item link or a lot
// number in the link target are layout filler, not failures.
func (s *Scraper) parseRow(row *goquery.Selection) (models.AuctionItem, bool) {
	cell := row.Find(`td[headers="itemInfo"]`).First()
	if cell.Length() == 0 {
		return models.AuctionItem{}, false
	}
	link := cell.Find("a").First()
	if link.Length() == 0 {
		return models.AuctionItem{}, false
	}

	href, _ := link.Attr("href")
	lotMatch := lotRe.FindStringSubmatch(href)
	if lotMatch == nil {
		return models.AuctionItem{}, false
	}

	item := models.AuctionItem{
		LotNumber: lotMatch[1],
		Title:     strings.TrimSpace(link.Text()),
		Source:    models.SourceGCSurplus,
		Country:   "Canada",
		Currency:  "CAD",
		Status:    models.StatusActive,
	}
	if saleMatch := saleRe.FindStringSubmatch(href); saleMatch != nil {
		item.SaleNumber = strPtr(saleMatch[1])
	}
	if href != "" {
		itemURL := href
		if !strings.HasPrefix(itemURL, "http") {
			itemURL = strings.TrimRight(s.cfg.BaseURL, "/") + "/" + strings.TrimLeft(itemURL, "/")
		}
		item.ItemURL = strPtr(itemURL)
	}

	dl := cell.Find("dl").First()
	if bidSpan := dl.Find(`span[id^="currentBidId-"]`).First(); bidSpan.Length() > 0 {
		item.CurrentBid = normalize.ParseMoney(bidSpan.Text())
	}

	dts := dl.Find("dt")
	dds := dl.Find("dd")
	dts.Each(func(i int, dt *goquery.Selection) {
		if i >= dds.Length() {
			return
		}
		label := strings.TrimSpace(dt.Text())
		value := strings.TrimSpace(dds.Eq(i).Text())
		switch {
		case strings.Contains(label, "Minimum bid"):
			item.MinimumBid = normalize.ParseMoneyPtr(value)
		case strings.Contains(label, "Location"):
			city, region := splitLocation(value)
			item.City = city
			item.Region = region
		case strings.Contains(label, "Closing"):
			if when, ok := normalize.ParseEasternDate(value); ok {
				item.ClosingDate = &when
			}
		case strings.Contains(label, "Remaining"):
			item.TimeRemaining = strPtr(value)
		}
	})

	return item, true
}

// enrich issues the detail page POST for one lot and merges description,
// bid ladder, quantity, images and contact data into it.
func (s *Scraper) enrich(ctx context.Context, item *models.AuctionItem) error {
	if err := s.spacing.Wait(ctx); err != nil {
		return err
	}
	sale := ""
	if item.SaleNumber != nil {
		sale = *item.SaleNumber
	}
	form := url.Values{
		"snc":       {"wfsav"},
		"sc":        {"enc-bid"},
		"lcn":       {item.LotNumber},
		"scn":       {sale},
		"lct":       {"L"},
		"str":       {"1"},
		"sf":        {"aff-post"},
		"vndsld":    {"0"},
		"lci":       {""},
		"so":        {""},
		"srchtype":  {""},
		"hBeenHere": {"1"},
	}
	doc, err := s.postForm(ctx, form)
	if err != nil {
		return err
	}

	if span := doc.Find("span#currentBid").First(); span.Length() > 0 {
		item.CurrentBid = normalize.ParseMoney(span.Text())
	}
	if span := doc.Find("span#openBidMin").First(); span.Length() > 0 {
		item.NextMinimumBid = normalize.ParseMoneyPtr(span.Text())
	}
	if span := doc.Find("span#openBidIncr").First(); span.Length() > 0 {
		item.BidIncrement = normalize.ParseMoneyPtr(span.Text())
	}
	if span := doc.Find("span#timeRemaining").First(); span.Length() > 0 {
		item.TimeRemaining = strPtr(strings.TrimSpace(span.Text()))
	}
	if span := doc.Find("span#itemCmntId").First(); span.Length() > 0 {
		item.Description = strings.Join(strings.Fields(span.Text()), " ")
	}

	doc.Find("dt").EachWithBreak(func(_ int, dt *goquery.Selection) bool {
		if !strings.Contains(dt.Text(), "Quantity") {
			return true
		}
		if m := qtyRe.FindStringSubmatch(dt.Next().Text()); m != nil {
			if qty, err := strconv.Atoi(m[1]); err == nil {
				item.Quantity = qty
			}
		}
		return false
	})

	var images []string
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !imageHref(href) {
			return
		}
		images = appendImage(images, s.absoluteURL(href))
	})
	if len(images) == 0 {
		doc.Find("img.newViewer").Each(func(_ int, img *goquery.Selection) {
			src, _ := img.Attr("src")
			if src == "" || strings.HasPrefix(src, "data:") {
				return
			}
			images = appendImage(images, s.absoluteURL(src))
		})
	}
	if len(images) > 0 {
		if raw, err := json.Marshal(images); err == nil {
			item.ImageURLs = datatypes.JSON(raw)
		}
	}

	return nil
}

func (s *Scraper) absoluteURL(ref string) string {
	if strings.HasPrefix(ref, "http") {
		return ref
	}
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/" + strings.TrimLeft(ref, "/")
}

func hasNextPage(doc *goquery.Document) bool {
	next := doc.Find("li.next").First()
	if next.Length() == 0 {
		return false
	}
	return !next.HasClass("disabled")
}

func imageHref(href string) bool {
	if href == "" || strings.HasPrefix(href, "data:") {
		return false
	}
	lower := strings.ToLower(href)
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func appendImage(images []string, url string) []string {
	for _, existing := range images {
		if existing == url {
			return images
		}
	}
	return append(images, url)
}

func splitLocation(raw string) (city, region string) {
	parts := strings.SplitN(raw, ",", 2)
	city = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		region = strings.TrimSpace(parts[1])
	}
	return city, region
}

func strPtr(s string) *string {
	return &s
}
