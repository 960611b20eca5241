package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/bidline-lab/bidline/internal/core/state"
)

// replayBatchSize bounds one ReadEvents page during reconstruction.
const replayBatchSize = 500

// Reconstruct rebuilds partition state as of a given audit sequence by
// loading the nearest snapshot at or below atSeq and replaying the events
// between. atSeq <= 0 means "head". Which snapshot serves as the base never
// changes the result, only the replay cost; with no snapshot at all the
// replay starts from genesis.
func Reconstruct(ctx context.Context, s Store, year int, atSeq int64) (*state.State, int64, error) {
	base := &state.State{}
	var fromSeq int64

	snap, err := s.NearestSnapshot(ctx, year, atSeq)
	switch {
	case err == nil:
		base, err = state.Unmarshal(snap.State)
		if err != nil {
			return nil, 0, fmt.Errorf("decoding snapshot at seq %d: %w", snap.Seq, err)
		}
		fromSeq = snap.Seq
	case errors.Is(err, ErrNotFound):
		// Full replay from genesis.
	default:
		return nil, 0, err
	}

	seq := fromSeq
	for {
		limit := replayBatchSize
		events, err := s.ReadEvents(ctx, year, seq, limit)
		if err != nil {
			return nil, 0, err
		}
		done := len(events) < limit
		for _, ev := range events {
			if atSeq > 0 && ev.Seq > atSeq {
				done = true
				break
			}
			if err := base.ApplyEvent(ev); err != nil {
				return nil, 0, err
			}
			seq = ev.Seq
		}
		if done {
			return base, seq, nil
		}
	}
}
