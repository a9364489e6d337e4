// Package pipeline runs poll cycles: detect new items, drop seen and
// excluded ones, notify the rest and advance the checkpoint.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"feedalert/internal/filter"
	"feedalert/internal/model"
	"feedalert/internal/notify"
	"feedalert/internal/storage"
)

// Cycle errors. Results wrap the underlying cause.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrStoreRead         = errors.New("store read failed")
	ErrStoreWrite        = errors.New("store write failed")
)

// Adapter fetches the current snapshot of a source, newest item first.
type Adapter interface {
	Fetch(ctx context.Context, src model.Source) ([]model.Item, error)
}

// RuleLister returns the active exclusion rules.
type RuleLister interface {
	ListRules(ctx context.Context) ([]model.Rule, error)
}

// Dispatcher delivers a composed notification.
type Dispatcher interface {
	Dispatch(ctx context.Context, n model.Notification) error
}

// Deps are the collaborators of a Processor.
type Deps struct {
	Adapter    Adapter
	Store      storage.CheckpointStore
	Rules      RuleLister
	Composer   *notify.Composer
	Dispatcher Dispatcher
	WindowSize int
}

// Result summarizes one cycle for one source.
type Result struct {
	SourceID   int64
	CycleID    string
	Fetched    int
	Considered int
	Skipped    int
	Excluded   int
	Notified   int
	Failed     int
	Unchanged  bool
	EarlyStop  bool
	Checkpoint string
	Err        error
}

// Processor runs cycles. It holds no per-source state; callers must not run
// two cycles for the same source concurrently.
type Processor struct {
	deps    Deps
	log     *slog.Logger
	cycleID func() string
}

// New creates a Processor.
func New(deps Deps, log *slog.Logger) *Processor {
	if deps.WindowSize <= 0 {
		deps.WindowSize = DefaultWindowSize
	}
	if deps.Composer == nil {
		deps.Composer = notify.NewComposer("")
	}
	return &Processor{deps: deps, log: log, cycleID: uuid.NewString}
}

// RunCycle polls src once. Errors are scoped to src and returned in the result.
func (p *Processor) RunCycle(ctx context.Context, src model.Source) Result {
	res := Result{SourceID: src.ID, CycleID: p.cycleID()}
	log := p.log.With("source_id", src.ID, "cycle_id", res.CycleID)

	snapshot, err := p.deps.Adapter.Fetch(ctx, src)
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		log.Warn("fetch source", "url", src.URL, "error", err)
		return res
	}
	res.Fetched = len(snapshot)

	checkpoint, ok, err := p.deps.Store.GetCheckpoint(ctx, src.ID)
	if err != nil {
		log.Warn("read checkpoint, scanning as never polled", "error", err)
		checkpoint, ok = "", false
	}

	win := Detect(snapshot, checkpoint, ok, p.deps.WindowSize)
	if win == nil {
		res.Unchanged = true
		res.Checkpoint = checkpoint
		log.Debug("no new items", "fetched", res.Fetched)
		return res
	}

	rules, err := p.deps.Rules.ListRules(ctx)
	if err != nil {
		res.Err = fmt.Errorf("%w: list rules: %w", ErrStoreRead, err)
		log.Error("list rules", "error", err)
		return res
	}

	var writeErrs []error
	attempts := 0
	for item, more := win.Next(); more; item, more = win.Next() {
		res.Considered++
		key := item.Key()
		ilog := log.With("item_key", key)

		seen, err := p.deps.Store.HasSeen(ctx, src.ID, key)
		if err != nil {
			ilog.Warn("check seen, treating as new", "error", err)
			seen = false
		}
		if seen {
			res.Skipped++
			win.Skip()
			continue
		}

		created, err := p.deps.Store.MarkSeen(ctx, src.ID, key, item.Title)
		if err != nil {
			writeErrs = append(writeErrs, fmt.Errorf("mark seen %s: %w", key, err))
			ilog.Error("mark seen", "error", err)
			continue
		}
		if !created {
			res.Skipped++
			continue
		}

		if v := filter.Check(item.Title, rules); v.Excluded {
			res.Excluded++
			ilog.Debug("item excluded", "reason", v.Reason)
			continue
		}

		n := p.deps.Composer.Compose(src, item, attempts == 0)
		attempts++
		if err := p.deps.Dispatcher.Dispatch(ctx, n); err != nil {
			res.Failed++
			ilog.Warn("dispatch notification", "error", err)
			continue
		}
		res.Notified++
	}
	res.EarlyStop = win.Exhausted()

	if len(writeErrs) > 0 {
		res.Err = fmt.Errorf("%w: %w", ErrStoreWrite, errors.Join(writeErrs...))
		res.Checkpoint = checkpoint
		log.Error("cycle failed, checkpoint not advanced", "failed_writes", len(writeErrs))
		return res
	}

	newest := snapshot[0].Key()
	if err := p.deps.Store.SetCheckpoint(ctx, src.ID, newest); err != nil {
		res.Err = fmt.Errorf("%w: set checkpoint: %w", ErrStoreWrite, err)
		res.Checkpoint = checkpoint
		log.Error("set checkpoint", "error", err)
		return res
	}
	res.Checkpoint = newest

	log.Info("cycle finished",
		"considered", res.Considered,
		"skipped", res.Skipped,
		"excluded", res.Excluded,
		"notified", res.Notified,
		"failed", res.Failed,
		"early_stop", res.EarlyStop,
	)
	return res
}
