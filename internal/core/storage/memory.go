package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bidline-lab/bidline/internal/core/audit"
	"github.com/bidline-lab/bidline/internal/core/domain"
	"github.com/bidline-lab/bidline/internal/core/state"
)

// MemoryStore is an in-memory Store with the same commit semantics as the
// Postgres adapter (gapless per-partition sequences, head-seq conflict
// detection). Used by tests and as a reference implementation of the
// contract.
type MemoryStore struct {
	mu         sync.Mutex
	partitions map[int]*memPartition
	nextID     int64
}

type memPartition struct {
	state     *state.State
	headSeq   int64
	events    []audit.Event
	snapshots []Snapshot
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{partitions: make(map[int]*memPartition)}
}

// AllocateID hands out process-unique identifiers across all entity kinds.
func (m *MemoryStore) AllocateID(_ context.Context, _ string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return m.nextID, nil
}

func (m *MemoryStore) ListBidYears(_ context.Context) ([]domain.BidYear, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	years := make([]domain.BidYear, 0, len(m.partitions))
	for _, p := range m.partitions {
		years = append(years, p.state.Year)
	}
	sort.Slice(years, func(i, j int) bool { return years[i].Year < years[j].Year })
	return years, nil
}

func (m *MemoryStore) LoadPartition(_ context.Context, year int) (*state.State, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partitions[year]
	if !ok {
		return nil, 0, fmt.Errorf("bid year %d: %w", year, ErrNotFound)
	}
	return p.state.Clone(), p.headSeq, nil
}

func (m *MemoryStore) CommitTransition(_ context.Context, commit Commit) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.partitions[commit.Partition]
	if commit.CreatesPartition {
		if ok {
			return 0, fmt.Errorf("bid year %d already exists: %w", commit.Partition, ErrConflict)
		}
		p = &memPartition{}
		m.partitions[commit.Partition] = p
	} else if !ok {
		return 0, fmt.Errorf("bid year %d: %w", commit.Partition, ErrNotFound)
	}

	if p.headSeq != commit.ExpectedSeq {
		return 0, fmt.Errorf("expected seq %d, head is %d: %w", commit.ExpectedSeq, p.headSeq, ErrConflict)
	}

	ev := commit.Event
	ev.Seq = p.headSeq + 1
	if ev.RecordedAt.IsZero() {
		ev.RecordedAt = time.Now().UTC()
	}

	p.events = append(p.events, ev)
	p.headSeq = ev.Seq
	p.state = commit.NewState.Clone()
	return ev.Seq, nil
}

func (m *MemoryStore) ReadEvents(_ context.Context, year int, afterSeq int64, limit int) ([]audit.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partitions[year]
	if !ok {
		return nil, fmt.Errorf("bid year %d: %w", year, ErrNotFound)
	}
	var out []audit.Event
	for _, ev := range p.events {
		if ev.Seq > afterSeq {
			out = append(out, ev)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) SaveSnapshot(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partitions[snap.Partition]
	if !ok {
		return fmt.Errorf("bid year %d: %w", snap.Partition, ErrNotFound)
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	p.snapshots = append(p.snapshots, snap)
	return nil
}

func (m *MemoryStore) NearestSnapshot(_ context.Context, year int, atSeq int64) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partitions[year]
	if !ok {
		return nil, fmt.Errorf("bid year %d: %w", year, ErrNotFound)
	}
	var best *Snapshot
	for i := range p.snapshots {
		s := p.snapshots[i]
		if atSeq > 0 && s.Seq > atSeq {
			continue
		}
		if best == nil || s.Seq > best.Seq {
			best = &s
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no snapshot at or below seq %d: %w", atSeq, ErrNotFound)
	}
	cp := *best
	return &cp, nil
}

// DeleteSnapshots drops all snapshots for a partition. Test hook for the
// "snapshots are pure accelerators" property.
func (m *MemoryStore) DeleteSnapshots(year int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.partitions[year]; ok {
		p.snapshots = nil
	}
}
