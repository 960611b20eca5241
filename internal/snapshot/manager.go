// Package snapshot schedules periodic checkpoints. Canonicalization and
// rollback snapshot on their own; this manager covers the long stretches
// of routine mutations in between so replay never walks an unbounded
// event range.
package snapshot

import (
	"context"
	"log/slog"

	"github.com/bidline-lab/bidline/internal/core/audit"
	"github.com/bidline-lab/bidline/internal/core/command"
	"github.com/bidline-lab/bidline/internal/core/domain"
)

const triggerBuffer = 16

// Submitter is the command path checkpoints are written through. Going
// through the engine keeps every snapshot itself an audited transition.
type Submitter interface {
	Submit(ctx context.Context, cmd command.Command, actor audit.Actor, cause audit.Cause) (audit.Event, error)
}

// Manager watches committed events and submits a checkpoint command every
// EveryN events per bid year. It satisfies the engine's notifier contract;
// the actual submission happens on the Run goroutine because notification
// is delivered while the partition is still locked.
type Manager struct {
	submitter Submitter
	everyN    int64
	log       *slog.Logger
	triggers  chan int
}

// NewManager builds a manager that checkpoints every everyN events.
// everyN <= 0 disables scheduling entirely.
func NewManager(s Submitter, everyN int64, log *slog.Logger) *Manager {
	return &Manager{
		submitter: s,
		everyN:    everyN,
		log:       log,
		triggers:  make(chan int, triggerBuffer),
	}
}

// Publish receives a committed event and, when the partition's sequence
// crosses a checkpoint boundary, queues a checkpoint for that bid year.
// Events that already snapshot on commit never re-trigger.
func (m *Manager) Publish(ev audit.Event) {
	if m.everyN <= 0 || ev.Seq%m.everyN != 0 {
		return
	}
	switch domain.CommandKind(ev.Action.Name) {
	case domain.KindCheckpoint, domain.KindCanonicalize, domain.KindRollbackToEvent:
		return
	}
	select {
	case m.triggers <- ev.Partition:
	default:
		// A pending trigger for some partition is already queued; the
		// next boundary crossing will catch up.
		m.log.Warn("[Snapshot] trigger queue full, skipping checkpoint",
			"year", ev.Partition, "seq", ev.Seq)
	}
}

// Run consumes checkpoint triggers until ctx is canceled.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case year := <-m.triggers:
			m.checkpoint(ctx, year)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Manager) checkpoint(ctx context.Context, year int) {
	_, err := m.submitter.Submit(ctx, command.Checkpoint{YearValue: year},
		audit.Actor{ID: "snapshot-manager", Type: "system"},
		audit.Cause{Description: "scheduled checkpoint"})
	if err != nil {
		m.log.Warn("[Snapshot] scheduled checkpoint failed",
			"year", year, "error", err)
		return
	}
	m.log.Info("[Snapshot] checkpoint committed", "year", year)
}
