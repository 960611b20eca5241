package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bidline-lab/bidline/internal/core/audit"
	"github.com/bidline-lab/bidline/internal/core/command"
	"github.com/bidline-lab/bidline/internal/core/domain"
	"github.com/bidline-lab/bidline/internal/core/state"
	"github.com/bidline-lab/bidline/internal/core/storage"
)

// ErrPartitionHalted is returned for commands against a bid year whose
// replay verification found canonical state diverging from the audit log.
// A halted partition accepts no further commands until the operator
// intervenes.
var ErrPartitionHalted = errors.New("engine: partition halted after replay divergence")

// Notifier receives committed events for best-effort fan-out. Delivery is
// outside the transaction; a slow or absent subscriber never blocks or
// fails a commit.
type Notifier interface {
	Publish(ev audit.Event)
}

// Recorder observes command outcomes for metrics export.
type Recorder interface {
	ObserveCommand(kind string, outcome string, elapsed time.Duration)
}

type noopNotifier struct{}

func (noopNotifier) Publish(audit.Event) {}

// Notifiers fans one committed event out to several subscribers in order.
type Notifiers []Notifier

func (ns Notifiers) Publish(ev audit.Event) {
	for _, n := range ns {
		n.Publish(ev)
	}
}

type noopRecorder struct{}

func (noopRecorder) ObserveCommand(string, string, time.Duration) {}

// Engine is the single write path. Every mutation enters as a command and
// leaves as exactly one committed audit event, or fails with no trace
// beyond a rejection. Commands for the same bid year are serialized;
// different bid years proceed concurrently.
type Engine struct {
	store    storage.Store
	applier  *Applier
	log      *slog.Logger
	notifier Notifier
	metrics  Recorder

	mu     sync.Mutex
	locks  map[int]*sync.Mutex
	halted map[int]struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier attaches a committed-event subscriber.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithRecorder attaches a command-outcome metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// New builds an engine over the given store.
func New(store storage.Store, log *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		applier:  NewApplier(store),
		log:      log,
		notifier: noopNotifier{},
		metrics:  noopRecorder{},
		locks:    make(map[int]*sync.Mutex),
		halted:   make(map[int]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit validates, applies, and commits one command. On success it
// returns the committed event with its assigned sequence number. On any
// failure the partition state is untouched and the returned error names
// the reason (a domain rule violation, a storage conflict, or an
// infrastructure failure).
func (e *Engine) Submit(ctx context.Context, cmd command.Command, actor audit.Actor, cause audit.Cause) (audit.Event, error) {
	start := time.Now()
	ev, err := e.submit(ctx, cmd, actor, cause)
	e.metrics.ObserveCommand(string(cmd.Kind()), outcome(err), time.Since(start))
	return ev, err
}

func (e *Engine) submit(ctx context.Context, cmd command.Command, actor audit.Actor, cause audit.Cause) (audit.Event, error) {
	years, err := e.store.ListBidYears(ctx)
	if err != nil {
		return audit.Event{}, fmt.Errorf("listing bid years: %w", err)
	}

	partition, err := resolvePartition(cmd, years)
	if err != nil {
		return audit.Event{}, err
	}

	lock := e.partitionLock(partition)
	lock.Lock()
	defer lock.Unlock()

	if e.isHalted(partition) {
		return audit.Event{}, fmt.Errorf("bid year %d: %w", partition, ErrPartitionHalted)
	}

	var (
		cur     *state.State
		headSeq int64
	)
	if cmd.Kind() != domain.KindCreateBidYear {
		loaded, seq, err := e.store.LoadPartition(ctx, partition)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return audit.Event{}, domain.Errorf(domain.RuleBidYearNotFound, "bid year %d does not exist", partition)
			}
			return audit.Event{}, fmt.Errorf("loading bid year %d: %w", partition, err)
		}
		cur = loaded
		headSeq = seq
	}

	if err := Validate(cmd, cur, headSeq, years); err != nil {
		e.log.Debug("command rejected",
			slog.String("kind", string(cmd.Kind())),
			slog.Int("year", partition),
			slog.String("reason", err.Error()))
		return audit.Event{}, err
	}

	res, err := e.applier.Apply(ctx, cmd, cur, headSeq, actor, cause)
	if err != nil {
		return audit.Event{}, err
	}

	seq, err := e.store.CommitTransition(ctx, storage.Commit{
		Partition:        partition,
		ExpectedSeq:      headSeq,
		Event:            res.Event,
		NewState:         res.NewState,
		CreatesPartition: res.CreatesPartition,
	})
	if err != nil {
		return audit.Event{}, err
	}
	res.Event.Seq = seq

	if res.Snapshot {
		if err := e.saveSnapshot(ctx, partition, seq, res); err != nil {
			// The snapshot is an accelerator; losing it never loses data.
			e.log.Warn("snapshot save failed",
				slog.Int("year", partition),
				slog.Int64("seq", seq),
				slog.String("error", err.Error()))
		}
	}

	e.log.Info("command committed",
		slog.String("kind", string(cmd.Kind())),
		slog.Int("year", partition),
		slog.Int64("seq", seq),
		slog.String("actor", actor.ID))

	e.notifier.Publish(res.Event)
	return res.Event, nil
}

// VerifyReplay rebuilds the bid year from the audit log and compares it
// against canonical state. On divergence the partition is halted and the
// mismatch reported; the audit log remains the source of truth.
func (e *Engine) VerifyReplay(ctx context.Context, year int) error {
	lock := e.partitionLock(year)
	lock.Lock()
	defer lock.Unlock()

	canonical, headSeq, err := e.store.LoadPartition(ctx, year)
	if err != nil {
		return fmt.Errorf("loading bid year %d: %w", year, err)
	}
	replayed, replaySeq, err := storage.Reconstruct(ctx, e.store, year, 0)
	if err != nil {
		return fmt.Errorf("replaying bid year %d: %w", year, err)
	}

	if replaySeq != headSeq {
		e.halt(year)
		return fmt.Errorf("bid year %d: replay reached seq %d, canonical head is %d: %w",
			year, replaySeq, headSeq, ErrPartitionHalted)
	}

	want, err := canonical.Marshal()
	if err != nil {
		return err
	}
	got, err := replayed.Marshal()
	if err != nil {
		return err
	}
	if !bytes.Equal(want, got) {
		e.halt(year)
		e.log.Error("replay divergence detected", slog.Int("year", year), slog.Int64("seq", headSeq))
		return fmt.Errorf("bid year %d: replayed state diverges from canonical at seq %d: %w",
			year, headSeq, ErrPartitionHalted)
	}
	return nil
}

// Halted reports whether the bid year is refusing commands.
func (e *Engine) Halted(year int) bool {
	return e.isHalted(year)
}

func (e *Engine) saveSnapshot(ctx context.Context, partition int, seq int64, res *Result) error {
	raw, err := res.NewState.Marshal()
	if err != nil {
		return err
	}
	return e.store.SaveSnapshot(ctx, storage.Snapshot{
		Partition: partition,
		Seq:       seq,
		State:     raw,
		CreatedAt: time.Now().UTC(),
	})
}

func (e *Engine) partitionLock(year int) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[year]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[year] = lock
	}
	return lock
}

func (e *Engine) isHalted(year int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.halted[year]
	return ok
}

func (e *Engine) halt(year int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.halted[year] = struct{}{}
}

// resolvePartition picks the bid year a command addresses: an explicit
// year wins, otherwise the command routes to the single active bid year.
func resolvePartition(cmd command.Command, years []domain.BidYear) (int, error) {
	if y := cmd.Year(); y != 0 {
		return y, nil
	}
	for _, y := range years {
		if y.Active {
			return y.Year, nil
		}
	}
	return 0, domain.Errorf(domain.RuleNoActiveBidYear,
		"no active bid year; specify a year explicitly or activate one")
}

func outcome(err error) string {
	if err == nil {
		return "committed"
	}
	if _, ok := domain.AsError(err); ok {
		return "rejected"
	}
	return "failed"
}
