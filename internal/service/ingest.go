package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"auctionharvest/internal/config"
	"auctionharvest/internal/metrics"
	"auctionharvest/internal/models"
	"auctionharvest/internal/repository"
	"auctionharvest/internal/scraper"
)

// ErrScrapeInProgress is returned when a scrape for the same source is
// already running.
var ErrScrapeInProgress = errors.New("scrape already in progress for source")

// ErrUnknownSource is returned when no adapter is registered for a source.
var ErrUnknownSource = errors.New("unknown source")

// ScrapeResult summarizes one completed scrape cycle for a source.
type ScrapeResult struct {
	Source   string        `json:"source"`
	Total    int           `json:"total"`
	Created  int           `json:"created"`
	Updated  int           `json:"updated"`
	Closed   int           `json:"closed"`
	Deleted  int           `json:"deleted"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// IngestService drives the full scrape cycle for each source: adapter scrape,
// upsert, reconciliation of disappeared listings, and retention cleanup.
// A per-source mutex keeps scheduler ticks and manual triggers from
// overlapping on the same source.
type IngestService struct {
	repo     repository.Repository
	adapters map[string]scraper.Adapter
	order    []string
	cfg      config.ScrapeConfig
	log      *zap.Logger
	met      *metrics.Metrics

	mu      sync.Mutex
	running map[string]bool
}

func NewIngestService(repo repository.Repository, adapters []scraper.Adapter, cfg config.ScrapeConfig, log *zap.Logger, met *metrics.Metrics) *IngestService {
	byName := make(map[string]scraper.Adapter, len(adapters))
	order := make([]string, 0, len(adapters))
	for _, a := range adapters {
		byName[a.Source()] = a
		order = append(order, a.Source())
	}
	return &IngestService{
		repo:     repo,
		adapters: byName,
		order:    order,
		cfg:      cfg,
		log:      log.Named("ingest"),
		met:      met,
		running:  map[string]bool{},
	}
}

// Sources lists the registered adapter sources in scrape order.
func (s *IngestService) Sources() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// ScrapeSource runs one full cycle for a single source. A failed fetch leaves
// the stored listings untouched: reconciliation only runs against a complete
// item set, so a broken scrape can never mass-close live auctions.
func (s *IngestService) ScrapeSource(ctx context.Context, source string) (ScrapeResult, error) {
	adapter, ok := s.adapters[source]
	if !ok {
		return ScrapeResult{Source: source}, fmt.Errorf("%w %q", ErrUnknownSource, source)
	}

	s.mu.Lock()
	if s.running[source] {
		s.mu.Unlock()
		return ScrapeResult{Source: source}, ErrScrapeInProgress
	}
	s.running[source] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running[source] = false
		s.mu.Unlock()
	}()

	started := time.Now()
	result := ScrapeResult{Source: source}
	s.log.Info("scrape started", zap.String("source", source))

	items, err := adapter.Scrape(ctx)
	if err != nil {
		result.Duration = time.Since(started)
		result.Error = err.Error()
		s.met.ScrapeRuns.WithLabelValues(source, "failure").Inc()
		s.saveState(ctx, source, started, &result, err)
		s.log.Error("scrape failed", zap.String("source", source), zap.Error(err))
		return result, err
	}
	result.Total = len(items)

	seenLots := make([]string, 0, len(items))
	for i := range items {
		// The lot was sighted on the source even when its write fails;
		// leaving it out of the seen set would let reconciliation close
		// the existing row over a transient persistence error.
		seenLots = append(seenLots, items[i].LotNumber)
		created, err := s.repo.UpsertAuctionItem(ctx, &items[i])
		if err != nil {
			s.log.Warn("upsert failed",
				zap.String("source", source),
				zap.String("lot_number", items[i].LotNumber),
				zap.Error(err))
			continue
		}
		if created {
			result.Created++
			s.met.ItemsUpserted.WithLabelValues(source, "created").Inc()
		} else {
			result.Updated++
			s.met.ItemsUpserted.WithLabelValues(source, "updated").Inc()
		}
	}

	// An empty but successful scrape is ambiguous: it can mean the source
	// really has nothing listed, or that the page structure changed under
	// the parser. Skipping reconciliation on empty sets trades a briefly
	// stale live set for never mass-closing real listings.
	if len(seenLots) > 0 {
		closed, err := s.repo.MarkUnavailable(ctx, source, seenLots)
		if err != nil {
			s.log.Warn("reconciliation failed", zap.String("source", source), zap.Error(err))
		} else {
			result.Closed = int(closed)
			s.met.ItemsClosed.WithLabelValues(source).Add(float64(closed))
		}
	} else {
		s.log.Warn("scrape returned no items, skipping reconciliation",
			zap.String("source", source))
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.RetentionDays)
	if s.cfg.RetentionDays > 0 || s.cfg.DeleteClosedImmediately {
		deleted, err := s.repo.DeleteClosedItems(ctx, source, cutoff)
		if err != nil {
			s.log.Warn("retention cleanup failed", zap.String("source", source), zap.Error(err))
		} else {
			result.Deleted = int(deleted)
		}
	}

	result.Duration = time.Since(started)
	s.met.ScrapeRuns.WithLabelValues(source, "success").Inc()
	s.met.ScrapeDuration.WithLabelValues(source).Observe(result.Duration.Seconds())
	s.saveState(ctx, source, started, &result, nil)

	s.log.Info("scrape finished",
		zap.String("source", source),
		zap.Int("total", result.Total),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("closed", result.Closed),
		zap.Int("deleted", result.Deleted),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// ScrapeAll runs every registered source sequentially. One source failing
// never stops the rest; failures are carried in the per-source results.
func (s *IngestService) ScrapeAll(ctx context.Context) []ScrapeResult {
	results := make([]ScrapeResult, 0, len(s.order))
	for _, source := range s.order {
		result, err := s.ScrapeSource(ctx, source)
		if err != nil && ctx.Err() != nil {
			results = append(results, result)
			break
		}
		results = append(results, result)
	}
	return results
}

func (s *IngestService) saveState(ctx context.Context, source string, started time.Time, result *ScrapeResult, scrapeErr error) {
	now := time.Now().UTC()
	attempt := started.UTC()
	state := &models.ScrapeState{
		Source:        source,
		LastAttemptAt: &attempt,
	}
	if scrapeErr != nil {
		msg := scrapeErr.Error()
		state.LastError = &msg
		// Keep the last success watermark so restart catch-up still knows
		// when the source was last healthy.
		if prev, err := s.repo.GetScrapeState(ctx, source); err == nil && prev != nil {
			state.LastSuccessAt = prev.LastSuccessAt
		}
	} else {
		state.LastSuccessAt = &now
	}
	if raw, err := json.Marshal(result); err == nil {
		state.StatsJSON = datatypes.JSON(raw)
	}
	if err := s.repo.SaveScrapeState(ctx, state); err != nil {
		s.log.Warn("failed to save scrape state", zap.String("source", source), zap.Error(err))
	}
}
