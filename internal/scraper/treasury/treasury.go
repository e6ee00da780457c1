// Package treasury scrapes the US Treasury seized real property auction
// listing. The page is a legacy table layout where one property spans several
// rows, so parsing accumulates rows into the current property until the next
// address header starts a new one. Properties repeat across month sections
// and are deduplicated by sale number.
package treasury

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
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

var (
	cityStateRe   = regexp.MustCompile(`,\s*([^,]+),\s*([A-Z]{2})\s*\d`)
	saleNumberRe  = regexp.MustCompile(`(?i)(?:Sale\s*#|Sale\s*Number:?)\s*([\d-]+)`)
	weekdayDateRe = regexp.MustCompile(`(?:Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday),\s+\w+\s+\d+,\s+\d{4}`)
	auctionTimeRe = regexp.MustCompile(`Auction\s+Date\s+and\s+Time:\s*(\w+,\s+\w+\s+\d+,\s+\d{4})\s+from\s+([\d:\-]+\s*[AP]M)`)
	depositRe     = regexp.MustCompile(`Deposit:\s*(\$[\d,]+)`)
	startingBidRe = regexp.MustCompile(`Starting\s+Bid:\s*(\$[\d,]+)`)
	inspectionRe  = regexp.MustCompile(`Inspections?:\s*([^\n]+)`)
)

type Scraper struct {
	cfg     config.TreasuryConfig
	spacing *scraper.Pacer
	httpc   *http.Client
	log     *zap.Logger
	met     *metrics.Metrics
}

func New(cfg config.TreasuryConfig, scrape config.ScrapeConfig, log *zap.Logger, met *metrics.Metrics) *Scraper {
	return &Scraper{
		cfg:     cfg,
		spacing: scraper.NewPacer(scrape.RequestSpacing),
		httpc:   &http.Client{Timeout: scrape.RequestTimeout},
		log:     log.Named("scraper.treasury"),
		met:     met,
	}
}

func (s *Scraper) Source() string {
	return models.SourceTreasury
}

// property collects the fields gathered across the rows of one listing entry
// before standardization.
type property struct {
	title        string
	propertyType string
	address      string
	city         string
	state        string
	description  string
	saleNumber   string
	closingDate  string
	itemURL      string
	imageURLs    []string
	minimumBid   string
	extra        map[string]string
}

func (s *Scraper) Scrape(ctx context.Context) ([]models.AuctionItem, error) {
	if err := s.spacing.Wait(ctx); err != nil {
		return nil, err
	}
	doc, err := s.fetch(ctx, s.cfg.ListingURL)
	if err != nil {
		return nil, err
	}

	props := s.parseListing(doc)
	props = dedupeBySaleNumber(props)

	items := make([]models.AuctionItem, 0, len(props))
	for _, prop := range props {
		if prop.itemURL != "" {
			if err := s.enrich(ctx, &prop); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				s.log.Warn("detail fetch failed", zap.String("url", prop.itemURL), zap.Error(err))
			}
		}
		item := s.standardize(prop)
		scraper.Standardize(&item, s.Source())
		if err := scraper.Validate(&item); err != nil {
			s.met.ParseFailures.WithLabelValues(s.Source()).Inc()
			continue
		}
		items = append(items, item)
	}
	s.log.Info("processed treasury items", zap.Int("items", len(items)))
	return items, nil
}

// ScrapeSingle runs a full listing scrape and filters; the auction pages are
// not addressable by lot number.
func (s *Scraper) ScrapeSingle(ctx context.Context, lotNumber string) (*models.AuctionItem, error) {
	items, err := s.Scrape(ctx)
	if err != nil {
		return nil, err
	}
	return scraper.FindLot(items, lotNumber), nil
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

func (s *Scraper) parseListing(doc *goquery.Document) []property {
	table := doc.Find(`table[width="800"]`).First()
	if table.Length() == 0 {
		s.log.Warn("could not find main auction table")
		return nil
	}

	var props []property
	var current *property

	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if header := row.Find("p.style1").First(); header.Length() > 0 {
			propertyType := strings.TrimSpace(header.Find(`font[color="#cc0000"][size="3"]`).First().Text())
			address := strings.TrimSpace(header.Find(`span.style12 font[color="#cc0000"]`).First().Text())
			if propertyType != "" && address != "" {
				if current != nil && current.title != "" {
					props = append(props, *current)
				}
				current = &property{
					title:        propertyType + ": " + address,
					propertyType: propertyType,
					address:      address,
					extra:        map[string]string{},
				}
				if m := cityStateRe.FindStringSubmatch(address); m != nil {
					current.city = strings.TrimSpace(m[1])
					current.state = strings.TrimSpace(m[2])
				}
				header.Find("strong").EachWithBreak(func(_ int, tag *goquery.Selection) bool {
					if date := weekdayDateRe.FindString(tag.Text()); date != "" {
						current.closingDate = date
						return false
					}
					return true
				})
			}
		}
		if current == nil {
			return
		}

		if desc := row.Find("span.style11").First(); desc.Length() > 0 {
			text := strings.Join(strings.Fields(desc.Text()), " ")
			if m := saleNumberRe.FindStringSubmatch(text); m != nil {
				current.saleNumber = strings.TrimSpace(m[1])
			}
			current.description = strings.TrimSpace(saleNumberRe.ReplaceAllString(text, ""))
		}

		if cell := row.Find(`td[height="182"]`).First(); cell.Length() > 0 {
			if href, ok := cell.Find("a").First().Attr("href"); ok && href != "" {
				current.itemURL = s.absoluteURL(href)
			}
			if src, ok := cell.Find("img").First().Attr("src"); ok && src != "" {
				current.imageURLs = append(current.imageURLs, s.absoluteURL(src))
			}
		}
	})

	if current != nil && current.title != "" {
		props = append(props, *current)
	}
	return props
}

func (s *Scraper) enrich(ctx context.Context, prop *property) error {
	if err := s.spacing.Wait(ctx); err != nil {
		return err
	}
	doc, err := s.fetch(ctx, prop.itemURL)
	if err != nil {
		return err
	}

	doc.Find(`table[width="272"] td`).Each(func(_ int, cell *goquery.Selection) {
		text := cell.Text()
		extractLabeled(prop.extra, text, "living_space", `Living Space:\s*([\d,]+\s*±?\s*sq\.\s*ft\.)`)
		extractLabeled(prop.extra, text, "site_area", `Site Area:\s*([\d,]+\s*±?\s*sq\.\s*ft\.)`)
		extractLabeled(prop.extra, text, "year_built", `Year Built:\s*(\d{4})`)
		extractLabeled(prop.extra, text, "county", `County:\s*([^\n]+)`)
		extractLabeled(prop.extra, text, "county_taxes", `County Taxes:[^$]*(\$[\d,]+\.\d{2})`)
		extractLabeled(prop.extra, text, "zoning", `Zoning:\s*([^\n]+)`)
		extractLabeled(prop.extra, text, "parcel_number", `Parcel\s*No:\s*(\d+)`)
		extractLabeled(prop.extra, text, "utilities", `Utilities:\s*([^\n]+)`)
		if m := saleNumberRe.FindStringSubmatch(text); m != nil {
			prop.saleNumber = strings.TrimSpace(m[1])
		}
	})

	if desc := doc.Find("p.style10").First(); desc.Length() > 0 {
		if text := strings.Join(strings.Fields(desc.Text()), " "); text != "" {
			prop.description = text
		}
	}

	pageText := doc.Text()
	if m := auctionTimeRe.FindStringSubmatch(pageText); m != nil {
		prop.extra["auction_time"] = m[1] + " at " + m[2]
		prop.closingDate = m[1]
	}
	if m := depositRe.FindStringSubmatch(pageText); m != nil {
		prop.extra["deposit"] = m[1]
	}
	if m := startingBidRe.FindStringSubmatch(pageText); m != nil {
		prop.minimumBid = m[1]
	}
	if m := inspectionRe.FindStringSubmatch(pageText); m != nil {
		prop.extra["inspection_times"] = strings.TrimSpace(m[1])
	}

	var images []string
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if src == "" || strings.Contains(src, "spacer") || strings.Contains(src, "type_") || strings.Contains(src, "images/type") {
			return
		}
		images = append(images, s.absoluteURL(src))
	})
	if len(images) > 0 {
		prop.imageURLs = images
	}
	return nil
}

func (s *Scraper) standardize(prop property) models.AuctionItem {
	item := models.AuctionItem{
		Title:       prop.title,
		Description: prop.description,
		Source:      models.SourceTreasury,
		AssetType:   "real-estate",
		Status:      models.StatusUpcoming,
		Country:     "USA",
		City:        prop.city,
		Region:      prop.state,
		AddressRaw:  prop.address,
		Quantity:    1,
	}
	if item.Description == "" {
		item.Description = "Currently not available"
	}

	agency := "US Department of Treasury"
	item.Agency = &agency

	if prop.saleNumber != "" {
		item.LotNumber = "treasury-" + prop.saleNumber
		item.SaleNumber = &prop.saleNumber
	} else {
		sum := md5.Sum([]byte(prop.title + "-" + prop.address))
		item.LotNumber = "treasury-" + hex.EncodeToString(sum[:])[:12]
	}

	if prop.itemURL != "" {
		item.ItemURL = &prop.itemURL
	}
	if prop.minimumBid != "" {
		item.MinimumBid = normalize.ParseMoneyPtr(prop.minimumBid)
	}
	if when, ok := normalize.ParseTreasuryDate(prop.closingDate); ok {
		item.ClosingDate = &when
	}
	if len(prop.imageURLs) > 0 {
		if raw, err := json.Marshal(prop.imageURLs); err == nil {
			item.ImageURLs = datatypes.JSON(raw)
		}
	}
	if len(prop.extra) > 0 || prop.propertyType != "" {
		extra := map[string]any{"property_type": prop.propertyType}
		for k, v := range prop.extra {
			extra[k] = v
		}
		if raw, err := json.Marshal(extra); err == nil {
			item.ExtraData = datatypes.JSON(raw)
		}
	}
	return item
}

func (s *Scraper) absoluteURL(ref string) string {
	if strings.HasPrefix(ref, "http") {
		return ref
	}
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/" + strings.TrimLeft(ref, "/")
}

func dedupeBySaleNumber(props []property) []property {
	seen := map[string]struct{}{}
	out := make([]property, 0, len(props))
	for _, prop := range props {
		if prop.saleNumber == "" {
			out = append(out, prop)
			continue
		}
		if _, ok := seen[prop.saleNumber]; ok {
			continue
		}
		seen[prop.saleNumber] = struct{}{}
		out = append(out, prop)
	}
	return out
}

func extractLabeled(dest map[string]string, text, key, pattern string) {
	re := regexp.MustCompile(pattern)
	m := re.FindStringSubmatch(text)
	if m == nil {
		return
	}
	if len(m) > 1 {
		dest[key] = strings.TrimSpace(m[1])
	} else {
		dest[key] = strings.TrimSpace(m[0])
	}
}
