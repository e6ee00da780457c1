// Package gsa ingests US federal surplus auctions from the GSA Auctions API.
// The API is JSON but its envelope key has shifted across versions, and its
// end timestamps are naive local times, so closing dates go through a
// timezone resolution chain: explicit marker on the rendered detail page,
// then the property state's zone, then Eastern.
package gsa

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"auctionharvest/internal/config"
	"auctionharvest/internal/metrics"
	"auctionharvest/internal/models"
	"auctionharvest/internal/normalize"
	"auctionharvest/internal/render"
	"auctionharvest/internal/scraper"
)

var zoneMarkerRe = regexp.MustCompile(`\b(AKST|AKDT|AKT|HAST|HADT|HST|EST|EDT|CST|CDT|MST|MDT|PST|PDT|ET|CT|MT|PT)\b`)

type Scraper struct {
	cfg      config.GSAConfig
	spacing  *scraper.Pacer
	httpc    *http.Client
	renderer render.Renderer
	log      *zap.Logger
	met      *metrics.Metrics
}

func New(cfg config.GSAConfig, scrape config.ScrapeConfig, renderer render.Renderer, log *zap.Logger, met *metrics.Metrics) *Scraper {
	if renderer == nil {
		renderer = render.Disabled{}
	}
	return &Scraper{
		cfg:      cfg,
		spacing:  scraper.NewPacer(scrape.RequestSpacing),
		httpc:    &http.Client{Timeout: scrape.RequestTimeout},
		renderer: renderer,
		log:      log.Named("scraper.gsa"),
		met:      met,
	}
}

func (s *Scraper) Source() string {
	return models.SourceGSA
}

func (s *Scraper) Scrape(ctx context.Context) ([]models.AuctionItem, error) {
	if err := s.spacing.Wait(ctx); err != nil {
		return nil, err
	}
	raw, err := s.fetchAuctions(ctx, nil)
	if err != nil {
		return nil, err
	}
	rows, err := decodeEnvelope(raw)
	if err != nil {
		return nil, err
	}

	items := make([]models.AuctionItem, 0, len(rows))
	for _, row := range rows {
		item, ok := s.transform(ctx, row)
		if !ok {
			s.met.ParseFailures.WithLabelValues(s.Source()).Inc()
			continue
		}
		scraper.Standardize(&item, s.Source())
		if err := scraper.Validate(&item); err != nil {
			s.met.ParseFailures.WithLabelValues(s.Source()).Inc()
			continue
		}
		items = append(items, item)
	}
	s.log.Info("processed gsa items", zap.Int("items", len(items)))
	return items, nil
}

// ScrapeSingle fetches a single lot by its "saleNo-lotNo" identifier.
func (s *Scraper) ScrapeSingle(ctx context.Context, id string) (*models.AuctionItem, error) {
	saleNo, lotNo, found := strings.Cut(id, "-")
	if !found {
		return nil, fmt.Errorf("invalid gsa item id %q, want saleNo-lotNo", id)
	}
	if err := s.spacing.Wait(ctx); err != nil {
		return nil, err
	}
	raw, err := s.fetchAuctions(ctx, url.Values{"saleNo": {saleNo}, "lotNo": {lotNo}})
	if err != nil {
		return nil, err
	}
	rows, err := decodeEnvelope(raw)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	item, ok := s.transform(ctx, rows[0])
	if !ok {
		return nil, fmt.Errorf("gsa lot %s failed to transform", id)
	}
	scraper.Standardize(&item, s.Source())
	if err := scraper.Validate(&item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Scraper) fetchAuctions(ctx context.Context, extra url.Values) ([]byte, error) {
	query := url.Values{
		"api_key": {s.cfg.APIKey},
		"format":  {"JSON"},
	}
	for key, vals := range extra {
		query[key] = vals
	}
	endpoint := strings.TrimRight(s.cfg.APIBaseURL, "/") + "/auctions?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", scraper.UserAgent)

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &scraper.HTTPError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func (s *Scraper) transform(ctx context.Context, row auctionRow) (models.AuctionItem, bool) {
	saleNo := strings.TrimSpace(row.SaleNo)
	lotNo := strings.TrimSpace(row.LotNo)
	if saleNo == "" && lotNo == "" {
		return models.AuctionItem{}, false
	}

	title := strings.TrimSpace(row.ItemName)
	if title == "" {
		title = "GSA Auction Item"
	}

	item := models.AuctionItem{
		LotNumber:   saleNo + "-" + lotNo,
		Title:       title,
		Description: strings.TrimSpace(row.LotInfo),
		Source:      models.SourceGSA,
		Country:     "USA",
		City:        strings.TrimSpace(row.PropertyCity),
		Region:      strings.TrimSpace(row.PropertyState),
		CurrentBid:  normalize.ParseMoney(string(row.HighBidAmount)),
		MinimumBid:  normalize.ParseMoneyPtr(string(row.Reserve)),
		Quantity:    1,
	}
	if saleNo != "" {
		item.SaleNumber = &saleNo
	}
	if incr := normalize.ParseMoneyPtr(string(row.AucIncrement)); incr != nil {
		item.BidIncrement = incr
	}

	addr := strings.TrimSpace(strings.Join(nonEmpty(row.PropertyAddr1, row.PropertyAddr2, row.PropertyAddr3), " "))
	item.AddressRaw = addr
	if zip := strings.TrimSpace(row.PropertyZip); zip != "" {
		item.PostalCode = &zip
	}

	agency := strings.TrimSpace(row.AgencyName)
	if agency == "" {
		agency = strings.TrimSpace(row.BureauName)
	}
	if agency == "" {
		agency = "GSA"
	}
	item.Agency = &agency

	itemURL := strings.TrimSpace(row.ItemDescURL)
	if itemURL == "" {
		itemURL = "https://www.gsaauctions.gov/gsaauctions/aucitsrh/?sl=" + url.QueryEscape(saleNo)
	}
	item.ItemURL = &itemURL

	if imageURL := strings.TrimSpace(row.ImageURL); imageURL != "" {
		if raw, err := json.Marshal([]string{imageURL}); err == nil {
			item.ImageURLs = datatypes.JSON(raw)
		}
	}

	auctionStatus := strings.ToLower(strings.TrimSpace(row.AuctionStatus))
	switch auctionStatus {
	case "closed", "ended", "sold":
		item.Status = models.StatusClosed
	case "expired":
		item.Status = models.StatusExpired
	case "scheduled", "preview", "":
		item.Status = models.StatusUpcoming
	default:
		item.Status = models.StatusActive
	}

	item.ClosingDate = s.resolveDate(ctx, row.AucEndDt, item.Region, itemURL)
	if start, ok := normalize.ParseLocationDate(row.AucStartDt, item.Region); ok {
		item.BidDate = &start
	}

	if name := strings.TrimSpace(row.ContractOfficer); name != "" {
		item.ContactName = &name
	}
	if phone := strings.TrimSpace(row.CoPhone); phone != "" {
		item.ContactPhone = &phone
	}
	if email := strings.TrimSpace(row.CoEmail); email != "" {
		item.ContactEmail = &email
	}

	extra := map[string]any{
		"agency_code":     row.AgencyCode,
		"bureau_code":     row.BureauCode,
		"sale_city":       firstNonEmpty(row.LocationCity, row.PropertyCity),
		"sale_state":      firstNonEmpty(row.LocationST, row.PropertyState),
		"inactivity_time": row.InactivityTime,
		"instructions":    row.Instruction,
		"bidders_count":   int(row.BiddersCount),
		"auction_status":  auctionStatus,
	}
	if raw, err := json.Marshal(extra); err == nil {
		item.ExtraData = datatypes.JSON(raw)
	}

	return item, true
}

// resolveDate turns the API's end timestamp into UTC. Offset-carrying strings
// need no resolution. For naive strings the renderer is asked for an explicit
// zone marker on the detail page first; failing that the property state
// decides the zone, with Eastern as the final fallback.
func (s *Scraper) resolveDate(ctx context.Context, raw string, stateCode string, detailURL string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if strings.Contains(raw, "T") && (strings.HasSuffix(raw, "Z") || strings.Contains(raw[10:], "+") || strings.Contains(raw[10:], "-")) {
		if dt, err := time.Parse(time.RFC3339, raw); err == nil {
			utc := dt.UTC()
			return &utc
		}
	}

	loc, method := s.zoneForItem(ctx, stateCode, detailURL)
	if method != zoneMethodMarker {
		// An explicit rendered marker is the one resolution that is not
		// an inference; only the fallback paths are worth counting.
		s.met.TimezoneFallbacks.WithLabelValues(s.Source(), method).Inc()
	}

	if dt, ok := normalize.ParseInZone(raw, []string{
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"01/02/2006",
	}, loc); ok {
		return &dt
	}
	return nil
}

const (
	zoneMethodMarker  = "marker"
	zoneMethodState   = "state"
	zoneMethodDefault = "default"
)

func (s *Scraper) zoneForItem(ctx context.Context, stateCode string, detailURL string) (*time.Location, string) {
	if detailURL != "" {
		html, err := s.renderer.Render(ctx, detailURL)
		if err == nil {
			if marker := zoneMarkerRe.FindString(html); marker != "" {
				if loc, ok := normalize.ZoneForAbbrev(marker); ok {
					return loc, zoneMethodMarker
				}
			}
		} else if err != render.ErrUnavailable {
			s.log.Debug("render failed", zap.String("url", detailURL), zap.Error(err))
		}
	}
	if strings.TrimSpace(stateCode) != "" {
		return normalize.ZoneForState(stateCode), zoneMethodState
	}
	return normalize.Eastern, zoneMethodDefault
}

func nonEmpty(vals ...string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
