// Package storage defines the durable-store boundary of the transition
// engine. The store is the synchronization point: the audit log and the
// canonical tables are the only shared mutable resources, and both change
// only through CommitTransition.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bidline-lab/bidline/internal/core/audit"
	"github.com/bidline-lab/bidline/internal/core/domain"
	"github.com/bidline-lab/bidline/internal/core/state"
)

var (
	// ErrNotFound is returned when a partition, snapshot, or entity row
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a concurrent transition committed to
	// the same partition first. The caller should reload state and retry.
	ErrConflict = errors.New("concurrent transition on partition")

	// ErrUnavailable wraps durable-store failures during commit. The
	// transition is treated as not-happened and is safe to retry: the
	// commit is a single atomic unit, so a retry can never produce a
	// duplicate audit event for one logical intent.
	ErrUnavailable = errors.New("store unavailable")
)

// Commit is one atomic transition unit: the canonical delta (expressed by
// the event's after-fragment plus the full new state) and the audit append.
// The store must apply both in a single transaction; a crash between them
// must leave the prior state intact.
type Commit struct {
	// Partition is the bid year label the commit is scoped to.
	Partition int

	// ExpectedSeq is the partition head sequence observed when state was
	// loaded. The store rejects the commit with ErrConflict if the head
	// has moved.
	ExpectedSeq int64

	// Event is the audit record. Seq is assigned by the store.
	Event audit.Event

	// NewState is the post-transition partition state. The store derives
	// the canonical row delta from Event's fragment, falling back to
	// NewState for partition-scoped events.
	NewState *state.State

	// CreatesPartition is set for the transition that registers a new
	// bid year, which must create the partition sequence row as well.
	CreatesPartition bool
}

// Snapshot is a persisted copy of partition state tagged with the audit
// sequence it reflects. Pure accelerator: deleting snapshots changes query
// cost, never query results.
type Snapshot struct {
	Partition int
	Seq       int64
	State     []byte
	CreatedAt time.Time
}

// Store is the full persistence contract used by the engine, the snapshot
// manager, and the projection.
type Store interface {
	// AllocateID hands out a canonical identifier for a new entity row.
	// Identifiers are unique and never reused; gaps are fine.
	AllocateID(ctx context.Context, entityKind string) (int64, error)

	// ListBidYears returns all bid year rows (for bootstrap validation:
	// duplicate years, the single-active-year constraint).
	ListBidYears(ctx context.Context) ([]domain.BidYear, error)

	// LoadPartition returns the current canonical state of a partition
	// and its head audit sequence. ErrNotFound if the year is unknown.
	LoadPartition(ctx context.Context, year int) (*state.State, int64, error)

	// CommitTransition atomically applies the canonical delta and
	// appends the audit event, returning the assigned sequence number.
	// On ErrConflict or ErrUnavailable nothing was written.
	CommitTransition(ctx context.Context, commit Commit) (int64, error)

	// ReadEvents returns events with seq > afterSeq in sequence order,
	// at most limit (limit <= 0 means no cap). Used for replay and for
	// the paginated audit export.
	ReadEvents(ctx context.Context, year int, afterSeq int64, limit int) ([]audit.Event, error)

	// SaveSnapshot persists a checkpoint for a partition.
	SaveSnapshot(ctx context.Context, snap Snapshot) error

	// NearestSnapshot returns the snapshot with the highest seq <= atSeq
	// for the partition, or ErrNotFound if none exists. atSeq <= 0 means
	// "latest".
	NearestSnapshot(ctx context.Context, year int, atSeq int64) (*Snapshot, error)
}
