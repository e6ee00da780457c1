package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"auctionharvest/internal/config"
	"auctionharvest/internal/metrics"
	"auctionharvest/internal/models"
	"auctionharvest/internal/repository"
	"auctionharvest/internal/scraper"
)

// stubRepo is an in-memory Repository for service tests.
type stubRepo struct {
	mu        sync.Mutex
	items     map[string]*models.AuctionItem
	states    map[string]*models.ScrapeState
	upsertErr map[string]error
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		items:  map[string]*models.AuctionItem{},
		states: map[string]*models.ScrapeState{},
	}
}

func (r *stubRepo) UpsertAuctionItem(_ context.Context, item *models.AuctionItem) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.upsertErr[item.LotNumber]; ok {
		return false, err
	}
	_, exists := r.items[item.LotNumber]
	clone := *item
	clone.UpdatedAt = time.Now().UTC()
	r.items[item.LotNumber] = &clone
	return !exists, nil
}

func (r *stubRepo) GetAuctionItemByLotNumber(_ context.Context, lotNumber string) (*models.AuctionItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[lotNumber]
	if !ok {
		return nil, nil
	}
	clone := *item
	return &clone, nil
}

func (r *stubRepo) ListAuctionItems(_ context.Context, _ repository.ListAuctionItemsParams) ([]models.AuctionItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.AuctionItem, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, *item)
	}
	return out, nil
}

func (r *stubRepo) CountAuctionItems(_ context.Context, _ repository.ListAuctionItemsParams) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.items)), nil
}

func (r *stubRepo) MarkUnavailable(_ context.Context, source string, keepLotNumbers []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keep := map[string]struct{}{}
	for _, lot := range keepLotNumbers {
		keep[lot] = struct{}{}
	}
	var n int64
	for lot, item := range r.items {
		if item.Source != source || !item.IsAvailable {
			continue
		}
		if _, ok := keep[lot]; ok {
			continue
		}
		item.IsAvailable = false
		item.Status = models.StatusClosed
		n++
	}
	return n, nil
}

func (r *stubRepo) DeleteClosedItems(_ context.Context, source string, closedBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for lot, item := range r.items {
		if source != "" && item.Source != source {
			continue
		}
		closedOut := item.Status == models.StatusClosed || item.Status == models.StatusExpired
		if closedOut && item.UpdatedAt.Before(closedBefore) {
			delete(r.items, lot)
			n++
		}
	}
	return n, nil
}

func (r *stubRepo) AuctionStats(_ context.Context) (repository.Stats, error) {
	return repository.Stats{}, nil
}

func (r *stubRepo) GetScrapeState(_ context.Context, source string) (*models.ScrapeState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[source]
	if !ok {
		return nil, nil
	}
	clone := *state
	return &clone, nil
}

func (r *stubRepo) SaveScrapeState(_ context.Context, state *models.ScrapeState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *state
	r.states[state.Source] = &clone
	return nil
}

func (r *stubRepo) ListScrapeStates(_ context.Context) ([]models.ScrapeState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ScrapeState, 0, len(r.states))
	for _, state := range r.states {
		out = append(out, *state)
	}
	return out, nil
}

func (r *stubRepo) InsertComment(_ context.Context, _ *models.Comment) error { return nil }

func (r *stubRepo) ListCommentsByLotNumber(_ context.Context, _ string) ([]models.Comment, error) {
	return nil, nil
}

func (r *stubRepo) DeleteComment(_ context.Context, _ string) (int64, error) { return 0, nil }

// stubAdapter serves a fixed item set, or an error.
type stubAdapter struct {
	source string
	items  []models.AuctionItem
	err    error
}

func (a *stubAdapter) Source() string { return a.source }

func (a *stubAdapter) Scrape(_ context.Context) ([]models.AuctionItem, error) {
	if a.err != nil {
		return nil, a.err
	}
	out := make([]models.AuctionItem, len(a.items))
	copy(out, a.items)
	return out, nil
}

func (a *stubAdapter) ScrapeSingle(_ context.Context, lotNumber string) (*models.AuctionItem, error) {
	if a.err != nil {
		return nil, a.err
	}
	return scraper.FindLot(a.items, lotNumber), nil
}

// blockingAdapter parks Scrape until released so overlap behavior can be
// observed.
type blockingAdapter struct {
	source  string
	started chan struct{}
	release chan struct{}
}

func (a *blockingAdapter) Source() string { return a.source }

func (a *blockingAdapter) Scrape(ctx context.Context) ([]models.AuctionItem, error) {
	select {
	case a.started <- struct{}{}:
	default:
	}
	select {
	case <-a.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []models.AuctionItem{lot(a.source, "A")}, nil
}

func (a *blockingAdapter) ScrapeSingle(_ context.Context, _ string) (*models.AuctionItem, error) {
	return nil, nil
}

func lot(source, lotNumber string) models.AuctionItem {
	return models.AuctionItem{
		LotNumber:   lotNumber,
		Title:       "Item " + lotNumber,
		Source:      source,
		Status:      models.StatusActive,
		IsAvailable: true,
	}
}

func newIngest(repo repository.Repository, cfg config.ScrapeConfig, stubs ...*stubAdapter) *IngestService {
	adapters := make([]scraper.Adapter, 0, len(stubs))
	for _, stub := range stubs {
		adapters = append(adapters, stub)
	}
	return NewIngestService(repo, adapters, cfg, zap.NewNop(), metrics.Nop())
}

func TestScrapeSourceCreateThenUpdate(t *testing.T) {
	repo := newStubRepo()
	adapter := &stubAdapter{source: "gsa", items: []models.AuctionItem{
		lot("gsa", "S1-1"), lot("gsa", "S1-2"),
	}}
	svc := newIngest(repo, config.ScrapeConfig{}, adapter)

	result, err := svc.ScrapeSource(context.Background(), "gsa")
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	if result.Total != 2 || result.Created != 2 || result.Updated != 0 {
		t.Fatalf("result=%+v want total=2 created=2", result)
	}

	result, err = svc.ScrapeSource(context.Background(), "gsa")
	if err != nil {
		t.Fatalf("second scrape failed: %v", err)
	}
	if result.Created != 0 || result.Updated != 2 {
		t.Fatalf("result=%+v want created=0 updated=2", result)
	}

	state, _ := repo.GetScrapeState(context.Background(), "gsa")
	if state == nil || state.LastSuccessAt == nil || state.LastError != nil {
		t.Fatalf("state=%+v want success recorded", state)
	}
}

func TestScrapeSourceReconciliation(t *testing.T) {
	repo := newStubRepo()
	adapter := &stubAdapter{source: "gsa", items: []models.AuctionItem{
		lot("gsa", "A"), lot("gsa", "B"), lot("gsa", "C"),
	}}
	svc := newIngest(repo, config.ScrapeConfig{}, adapter)

	if _, err := svc.ScrapeSource(context.Background(), "gsa"); err != nil {
		t.Fatal(err)
	}

	// B disappears from the source; the next cycle closes it.
	adapter.items = []models.AuctionItem{lot("gsa", "A"), lot("gsa", "C")}
	result, err := svc.ScrapeSource(context.Background(), "gsa")
	if err != nil {
		t.Fatal(err)
	}
	if result.Closed != 1 {
		t.Fatalf("closed=%d want=1", result.Closed)
	}
	b, _ := repo.GetAuctionItemByLotNumber(context.Background(), "B")
	if b == nil || b.IsAvailable || b.Status != models.StatusClosed {
		t.Fatalf("B=%+v want closed", b)
	}
	a, _ := repo.GetAuctionItemByLotNumber(context.Background(), "A")
	if a == nil || !a.IsAvailable {
		t.Fatalf("A=%+v want still available", a)
	}
}

func TestScrapeSourceEmptySetSkipsReconciliation(t *testing.T) {
	repo := newStubRepo()
	adapter := &stubAdapter{source: "gsa", items: []models.AuctionItem{lot("gsa", "A")}}
	svc := newIngest(repo, config.ScrapeConfig{}, adapter)

	if _, err := svc.ScrapeSource(context.Background(), "gsa"); err != nil {
		t.Fatal(err)
	}

	adapter.items = nil
	result, err := svc.ScrapeSource(context.Background(), "gsa")
	if err != nil {
		t.Fatal(err)
	}
	if result.Closed != 0 {
		t.Fatalf("closed=%d want=0 on empty scrape", result.Closed)
	}
	a, _ := repo.GetAuctionItemByLotNumber(context.Background(), "A")
	if a == nil || !a.IsAvailable {
		t.Fatalf("A=%+v must stay available after empty scrape", a)
	}
}

func TestScrapeSourceFailurePreservesState(t *testing.T) {
	repo := newStubRepo()
	adapter := &stubAdapter{source: "gsa", items: []models.AuctionItem{lot("gsa", "A")}}
	svc := newIngest(repo, config.ScrapeConfig{}, adapter)

	if _, err := svc.ScrapeSource(context.Background(), "gsa"); err != nil {
		t.Fatal(err)
	}
	okState, _ := repo.GetScrapeState(context.Background(), "gsa")

	adapter.err = errors.New("connection refused")
	if _, err := svc.ScrapeSource(context.Background(), "gsa"); err == nil {
		t.Fatal("expected scrape error")
	}

	state, _ := repo.GetScrapeState(context.Background(), "gsa")
	if state == nil || state.LastError == nil {
		t.Fatalf("state=%+v want error recorded", state)
	}
	if state.LastSuccessAt == nil || !state.LastSuccessAt.Equal(*okState.LastSuccessAt) {
		t.Fatalf("last success %v changed, want preserved %v", state.LastSuccessAt, okState.LastSuccessAt)
	}
	a, _ := repo.GetAuctionItemByLotNumber(context.Background(), "A")
	if a == nil || !a.IsAvailable {
		t.Fatalf("A=%+v must be untouched by a failed scrape", a)
	}
}

func TestScrapeSourceUnknown(t *testing.T) {
	svc := newIngest(newStubRepo(), config.ScrapeConfig{})
	if _, err := svc.ScrapeSource(context.Background(), "nope"); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("err=%v want ErrUnknownSource", err)
	}
}

func TestScrapeSourceRetention(t *testing.T) {
	repo := newStubRepo()
	adapter := &stubAdapter{source: "gsa", items: []models.AuctionItem{
		lot("gsa", "A"), lot("gsa", "B"),
	}}
	svc := newIngest(repo, config.ScrapeConfig{DeleteClosedImmediately: true}, adapter)

	if _, err := svc.ScrapeSource(context.Background(), "gsa"); err != nil {
		t.Fatal(err)
	}

	// B is closed by reconciliation and immediately deleted by the cleanup
	// step of the same cycle.
	adapter.items = []models.AuctionItem{lot("gsa", "A")}
	result, err := svc.ScrapeSource(context.Background(), "gsa")
	if err != nil {
		t.Fatal(err)
	}
	if result.Closed != 1 || result.Deleted != 1 {
		t.Fatalf("result=%+v want closed=1 deleted=1", result)
	}
	b, _ := repo.GetAuctionItemByLotNumber(context.Background(), "B")
	if b != nil {
		t.Fatalf("B=%+v want deleted", b)
	}
}

func TestScrapeAllContinuesAfterFailure(t *testing.T) {
	repo := newStubRepo()
	broken := &stubAdapter{source: "gcsurplus", err: errors.New("parse failure")}
	healthy := &stubAdapter{source: "gsa", items: []models.AuctionItem{lot("gsa", "A")}}
	svc := newIngest(repo, config.ScrapeConfig{}, broken, healthy)

	results := svc.ScrapeAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("results=%d want=2", len(results))
	}
	if results[0].Error == "" {
		t.Fatal("first source should report its error")
	}
	if results[1].Error != "" || results[1].Created != 1 {
		t.Fatalf("second source result=%+v want created=1", results[1])
	}
}

func TestScrapeSourceUpsertFailureDoesNotCloseListing(t *testing.T) {
	repo := newStubRepo()
	adapter := &stubAdapter{source: "gsa", items: []models.AuctionItem{
		lot("gsa", "A"), lot("gsa", "B"),
	}}
	svc := newIngest(repo, config.ScrapeConfig{}, adapter)

	if _, err := svc.ScrapeSource(context.Background(), "gsa"); err != nil {
		t.Fatal(err)
	}

	// A was sighted on the source, so a transient write failure must not
	// let reconciliation close its existing row.
	repo.upsertErr = map[string]error{"A": errors.New("write conflict")}
	result, err := svc.ScrapeSource(context.Background(), "gsa")
	if err != nil {
		t.Fatal(err)
	}
	if result.Closed != 0 {
		t.Fatalf("closed=%d want=0", result.Closed)
	}
	if result.Updated != 1 {
		t.Fatalf("updated=%d want=1", result.Updated)
	}
	a, _ := repo.GetAuctionItemByLotNumber(context.Background(), "A")
	if a == nil || !a.IsAvailable || a.Status != models.StatusActive {
		t.Fatalf("A=%+v want still active", a)
	}
}

func TestScrapeSourceNoOverlap(t *testing.T) {
	repo := newStubRepo()
	adapter := &blockingAdapter{
		source:  "gsa",
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	svc := NewIngestService(repo, []scraper.Adapter{adapter}, config.ScrapeConfig{}, zap.NewNop(), metrics.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := svc.ScrapeSource(context.Background(), "gsa")
		done <- err
	}()
	<-adapter.started

	if _, err := svc.ScrapeSource(context.Background(), "gsa"); !errors.Is(err, ErrScrapeInProgress) {
		t.Fatalf("err=%v want ErrScrapeInProgress", err)
	}

	close(adapter.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	// The source is runnable again once the first cycle finished.
	if _, err := svc.ScrapeSource(context.Background(), "gsa"); err != nil {
		t.Fatal(err)
	}
}
