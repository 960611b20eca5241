package state

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bidline-lab/bidline/internal/core/audit"
	"github.com/bidline-lab/bidline/internal/core/domain"
)

func seededState() *State {
	s := New(domain.BidYear{ID: 1, Year: 2026, StartDate: time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC), NumPayPeriods: 26})
	s.UpsertArea(domain.Area{ID: 10, BidYearID: 1, Code: "NORTH"})
	s.UpsertUser(domain.User{ID: 100, BidYearID: 1, AreaID: 10, Initials: "AA", Name: "Alice Anders", Type: domain.UserTypeCPC})
	s.UpsertRound(domain.RoundConfig{ID: 200, BidYearID: 1, AreaID: 10, RoundNumber: 1, BiddersPerDay: 2})
	return s
}

func fragment(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestCloneIsolatesMutations(t *testing.T) {
	orig := seededState()
	clone := orig.Clone()

	u, ok := clone.UserByID(100)
	require.True(t, ok)
	u.Name = "Renamed"
	clone.UpsertUser(domain.User{ID: 101, BidYearID: 1, AreaID: 10, Initials: "BB"})
	clone.Year.Stage = domain.StageStructureLocked

	unchanged, ok := orig.UserByID(100)
	require.True(t, ok)
	require.Equal(t, "Alice Anders", unchanged.Name)
	require.Len(t, orig.Users, 1)
	require.Equal(t, domain.StageDraft, orig.Year.Stage)
}

func TestLookupsByCanonicalID(t *testing.T) {
	s := seededState()

	_, ok := s.UserByID(999)
	require.False(t, ok)
	_, ok = s.AreaByID(999)
	require.False(t, ok)

	area, ok := s.AreaByCode(" north ")
	require.True(t, ok)
	require.Equal(t, int64(10), area.ID)

	require.Len(t, s.UsersInArea(10), 1)
	require.Empty(t, s.UsersInArea(11))
	require.Len(t, s.RoundsForArea(10), 1)
}

func TestUpsertRoundReplacesByAreaAndNumber(t *testing.T) {
	s := seededState()
	s.UpsertRound(domain.RoundConfig{ID: 201, BidYearID: 1, AreaID: 10, RoundNumber: 1, BiddersPerDay: 5})
	require.Len(t, s.Rounds, 1)
	require.Equal(t, 5, s.Rounds[0].BiddersPerDay)

	s.UpsertRound(domain.RoundConfig{ID: 202, BidYearID: 1, AreaID: 10, RoundNumber: 2, BiddersPerDay: 3})
	require.Len(t, s.Rounds, 2)
}

func TestMarshalRoundTrip(t *testing.T) {
	s := seededState()
	raw, err := s.Marshal()
	require.NoError(t, err)

	restored, err := Unmarshal(raw)
	require.NoError(t, err)
	require.Equal(t, s, restored)
}

func TestApplyEventFoldsFragments(t *testing.T) {
	s := &State{}

	year := domain.BidYear{ID: 1, Year: 2026, NumPayPeriods: 26}
	require.NoError(t, s.ApplyEvent(audit.Event{Seq: 1, EntityKind: audit.EntityBidYear, After: fragment(t, year)}))
	require.Equal(t, 2026, s.Year.Year)

	area := domain.Area{ID: 10, BidYearID: 1, Code: "NORTH"}
	require.NoError(t, s.ApplyEvent(audit.Event{Seq: 2, EntityKind: audit.EntityArea, After: fragment(t, area)}))

	user := domain.User{ID: 100, BidYearID: 1, AreaID: 10, Initials: "AA"}
	require.NoError(t, s.ApplyEvent(audit.Event{Seq: 3, EntityKind: audit.EntityUser, After: fragment(t, user)}))

	round := domain.RoundConfig{ID: 200, AreaID: 10, RoundNumber: 1}
	require.NoError(t, s.ApplyEvent(audit.Event{Seq: 4, EntityKind: audit.EntityRound, After: fragment(t, round)}))

	require.Len(t, s.Areas, 1)
	require.Len(t, s.Users, 1)
	require.Len(t, s.Rounds, 1)

	// Re-applying a user fragment with the same ID replaces, not appends.
	user.Name = "Updated"
	require.NoError(t, s.ApplyEvent(audit.Event{Seq: 5, EntityKind: audit.EntityUser, After: fragment(t, user)}))
	require.Len(t, s.Users, 1)
	require.Equal(t, "Updated", s.Users[0].Name)
}

func TestApplyEventPartitionReplacesWholeState(t *testing.T) {
	s := seededState()

	replacement := New(domain.BidYear{ID: 1, Year: 2026, NumPayPeriods: 26, Stage: domain.StageStructureLocked})
	raw, err := replacement.Marshal()
	require.NoError(t, err)

	require.NoError(t, s.ApplyEvent(audit.Event{Seq: 9, EntityKind: audit.EntityPartition, After: raw}))
	require.Equal(t, domain.StageStructureLocked, s.Year.Stage)
	require.Empty(t, s.Users)
	require.Empty(t, s.Rounds)
}

func TestApplyEventUnknownKind(t *testing.T) {
	s := &State{}
	err := s.ApplyEvent(audit.Event{Seq: 1, EntityKind: "widget", After: []byte(`{}`)})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown entity kind")
}
