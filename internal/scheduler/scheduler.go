// Package scheduler owns the recurring per-source scrape jobs: cron specs
// derived from intervals or fixed daily times, pause/resume control, manual
// triggers, staggered startup runs, and catch-up for runs missed while the
// process was down.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"auctionharvest/internal/config"
	cronrunner "auctionharvest/internal/cron"
	"auctionharvest/internal/models"
	"auctionharvest/internal/repository"
	"auctionharvest/internal/service"
)

var ErrUnknownSource = errors.New("unknown source")

// JobStatus is the operator-facing view of one scheduled source.
type JobStatus struct {
	Source      string                `json:"source"`
	Spec        string                `json:"spec"`
	Paused      bool                  `json:"paused"`
	Running     bool                  `json:"running"`
	NextRun     *time.Time            `json:"next_run,omitempty"`
	LastStarted *time.Time            `json:"last_started,omitempty"`
	LastResult  *service.ScrapeResult `json:"last_result,omitempty"`
	LastError   string                `json:"last_error,omitempty"`
}

type jobState struct {
	source   string
	spec     string
	entryIDs []cron.EntryID
	paused   bool
	running  bool

	lastStarted *time.Time
	lastResult  *service.ScrapeResult
	lastError   string
}

type Scheduler struct {
	runner  *cronrunner.Runner
	ingest  *service.IngestService
	repo    repository.Repository
	cfg     config.SchedulerConfig
	log     *zap.Logger
	baseCtx context.Context

	mu   sync.Mutex
	jobs map[string]*jobState
}

func New(baseCtx context.Context, ingest *service.IngestService, repo repository.Repository, cfg config.SchedulerConfig, log *zap.Logger) *Scheduler {
	return &Scheduler{
		runner:  cronrunner.New(log.Named("cron"), baseCtx),
		ingest:  ingest,
		repo:    repo,
		cfg:     cfg,
		log:     log.Named("scheduler"),
		baseCtx: baseCtx,
		jobs:    map[string]*jobState{},
	}
}

// Start registers one cron job per source, fires catch-up runs for schedules
// missed while the process was down, and starts the cron loop. Initial runs
// are staggered so the sources do not all hit the network at once.
func (s *Scheduler) Start(ctx context.Context) error {
	catchUp := make([]string, 0, len(s.ingest.Sources()))

	for _, source := range s.ingest.Sources() {
		specs, err := s.specsFor(source)
		if err != nil {
			return fmt.Errorf("bad schedule for %s: %w", source, err)
		}

		src := source
		entryIDs := make([]cron.EntryID, 0, len(specs))
		schedules := make([]cron.Schedule, 0, len(specs))
		for _, spec := range specs {
			schedule, err := cronrunner.ParseSpec(spec)
			if err != nil {
				return fmt.Errorf("bad schedule for %s: %w", source, err)
			}
			entryID, err := s.runner.Add(spec, func(jobCtx context.Context) {
				s.runJob(jobCtx, src)
			})
			if err != nil {
				return fmt.Errorf("failed to register job for %s: %w", source, err)
			}
			entryIDs = append(entryIDs, entryID)
			schedules = append(schedules, schedule)
		}

		s.mu.Lock()
		s.jobs[source] = &jobState{
			source:   source,
			spec:     strings.Join(specs, "; "),
			entryIDs: entryIDs,
		}
		s.mu.Unlock()

		if s.shouldCatchUp(ctx, source, schedules) {
			catchUp = append(catchUp, source)
		}
	}

	s.runner.Start()

	for i, source := range catchUp {
		delay := time.Duration(i) * s.cfg.InitialStagger
		src := source
		go func() {
			if err := sleepCtx(s.baseCtx, delay); err != nil {
				return
			}
			s.runJob(s.baseCtx, src)
		}()
	}
	return nil
}

func (s *Scheduler) Stop() {
	s.runner.Stop()
}

// specsFor builds the cron specs for a source: one fixed daily entry per
// configured wall-clock time ("HH:MM", comma separated for several triggers a
// day), otherwise a single entry for the interval in hours.
func (s *Scheduler) specsFor(source string) ([]string, error) {
	if at, ok := s.cfg.ScheduleTimes[source]; ok && strings.TrimSpace(at) != "" {
		clocks := strings.Split(at, ",")
		specs := make([]string, 0, len(clocks))
		for _, clock := range clocks {
			hour, minute, err := parseClock(clock)
			if err != nil {
				return nil, err
			}
			specs = append(specs, fmt.Sprintf("0 %d %d * * *", minute, hour))
		}
		return specs, nil
	}
	hours := s.cfg.IntervalHours[source]
	if hours <= 0 {
		hours = 24
	}
	return []string{fmt.Sprintf("@every %dh", hours)}, nil
}

// shouldCatchUp reports whether the source missed a scheduled run while the
// process was down and the miss is still within the misfire grace window. A
// source that never succeeded is due when initial scrapes are enabled.
func (s *Scheduler) shouldCatchUp(ctx context.Context, source string, schedules []cron.Schedule) bool {
	state, err := s.repo.GetScrapeState(ctx, source)
	if err != nil {
		s.log.Warn("failed to load scrape state", zap.String("source", source), zap.Error(err))
		return s.cfg.RunInitialScrape
	}
	if state == nil || state.LastSuccessAt == nil {
		return s.cfg.RunInitialScrape
	}

	missed := schedules[0].Next(*state.LastSuccessAt)
	for _, schedule := range schedules[1:] {
		if next := schedule.Next(*state.LastSuccessAt); next.Before(missed) {
			missed = next
		}
	}
	now := time.Now().UTC()
	if missed.After(now) {
		return false
	}
	if now.Sub(missed) > s.cfg.MisfireGrace {
		s.log.Info("missed run outside misfire grace, waiting for next trigger",
			zap.String("source", source),
			zap.Time("missed", missed))
		return false
	}
	s.log.Info("catching up missed run",
		zap.String("source", source),
		zap.Time("missed", missed))
	return true
}

func (s *Scheduler) runJob(ctx context.Context, source string) {
	s.run(ctx, source, false)
}

func (s *Scheduler) run(ctx context.Context, source string, bypassPause bool) {
	s.mu.Lock()
	job, ok := s.jobs[source]
	if !ok || job.running || (job.paused && !bypassPause) {
		s.mu.Unlock()
		return
	}
	job.running = true
	now := time.Now().UTC()
	job.lastStarted = &now
	s.mu.Unlock()

	result, err := s.ingest.ScrapeSource(ctx, source)

	s.mu.Lock()
	job.running = false
	job.lastResult = &result
	if err != nil && !errors.Is(err, service.ErrScrapeInProgress) {
		job.lastError = err.Error()
	} else {
		job.lastError = ""
	}
	s.mu.Unlock()
}

// RunNow triggers an immediate scrape of one source. The run is asynchronous;
// an already-running source makes the trigger a no-op.
func (s *Scheduler) RunNow(source string) error {
	s.mu.Lock()
	_, ok := s.jobs[source]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}
	// Manual triggers bypass pause deliberately: pause stops the schedule,
	// not the operator.
	go s.run(s.baseCtx, source, true)
	return nil
}

// RunAllNow triggers all sources asynchronously in scrape order.
func (s *Scheduler) RunAllNow() {
	for _, source := range s.ingest.Sources() {
		_ = s.RunNow(source)
	}
}

func (s *Scheduler) Pause(source string) error {
	return s.setPaused(source, true)
}

func (s *Scheduler) Resume(source string) error {
	return s.setPaused(source, false)
}

func (s *Scheduler) setPaused(source string, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[source]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}
	job.paused = paused
	return nil
}

// Status reports every job keyed by source.
func (s *Scheduler) Status() map[string]JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]JobStatus, len(s.jobs))
	for source, job := range s.jobs {
		status := JobStatus{
			Source:      source,
			Spec:        job.spec,
			Paused:      job.paused,
			Running:     job.running,
			LastStarted: job.lastStarted,
			LastResult:  job.lastResult,
			LastError:   job.lastError,
		}
		var next time.Time
		for _, id := range job.entryIDs {
			if n := s.runner.Entry(id).Next; !n.IsZero() && (next.IsZero() || n.Before(next)) {
				next = n
			}
		}
		if !next.IsZero() {
			nextUTC := next.UTC()
			status.NextRun = &nextUTC
		}
		out[source] = status
	}
	return out
}

// Sources returns the schedulable source names.
func (s *Scheduler) Sources() []string {
	return models.Sources
}

func parseClock(raw string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid schedule time %q, want HH:MM", raw)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid schedule time %q, want HH:MM", raw)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid schedule time %q, want HH:MM", raw)
	}
	return hour, minute, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
