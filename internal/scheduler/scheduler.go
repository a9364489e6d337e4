package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"feedalert/internal/model"
	"feedalert/internal/pipeline"
)

// DefaultMaxParallel is the default number of sources polled at once.
const DefaultMaxParallel = 4

// ErrBusy is returned when a cycle for the source is already running.
var ErrBusy = errors.New("source check already in progress")

// Cycler runs one poll cycle for a source.
type Cycler interface {
	RunCycle(ctx context.Context, src model.Source) pipeline.Result
}

// SourceStore is the subset of storage the scheduler needs.
type SourceStore interface {
	ListDueSources(ctx context.Context) ([]model.Source, error)
	MarkChecked(ctx context.Context, id int64, at time.Time) error
}

// Scheduler periodically runs cycles for due sources. At most one cycle per
// source is in flight at any time.
type Scheduler struct {
	store    SourceStore
	cycler   Cycler
	log      *slog.Logger
	tick     time.Duration
	parallel int
	now      func() time.Time

	mu       sync.Mutex
	inFlight map[int64]struct{}
}

// New creates a Scheduler.
func New(store SourceStore, cycler Cycler, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		cycler:   cycler,
		log:      log,
		tick:     1 * time.Minute,
		parallel: DefaultMaxParallel,
		now:      time.Now,
		inFlight: make(map[int64]struct{}),
	}
}

// SetTickInterval overrides the default 1-minute check interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// SetMaxParallel limits how many sources are polled concurrently.
func (s *Scheduler) SetMaxParallel(n int) {
	if n < 1 {
		n = 1
	}
	s.parallel = n
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.checkAll(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAll(ctx)
		}
	}
}

// CheckNow runs a cycle for src immediately. It returns ErrBusy if a cycle
// for the same source is already running.
func (s *Scheduler) CheckNow(ctx context.Context, src model.Source) (pipeline.Result, error) {
	if !s.acquire(src.ID) {
		return pipeline.Result{}, ErrBusy
	}
	defer s.release(src.ID)
	return s.processSource(ctx, src), nil
}

func (s *Scheduler) checkAll(ctx context.Context) {
	sources, err := s.store.ListDueSources(ctx)
	if err != nil {
		s.log.Error("list due sources", "error", err)
		return
	}

	var g errgroup.Group
	g.SetLimit(s.parallel)
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		if !s.acquire(src.ID) {
			s.log.Debug("source busy, skipping", "source_id", src.ID)
			continue
		}
		g.Go(func() error {
			defer s.release(src.ID)
			s.processSource(ctx, src)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) processSource(ctx context.Context, src model.Source) pipeline.Result {
	s.log.Debug("checking source", "source_id", src.ID, "kind", src.Kind, "name", src.Name)

	res := s.cycler.RunCycle(ctx, src)
	if res.Err != nil {
		s.log.Error("cycle failed", "source_id", src.ID, "cycle_id", res.CycleID, "error", res.Err)
	}

	if err := s.store.MarkChecked(ctx, src.ID, s.now().UTC()); err != nil {
		s.log.Error("update last check", "source_id", src.ID, "error", err)
	}
	return res
}

func (s *Scheduler) acquire(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}
