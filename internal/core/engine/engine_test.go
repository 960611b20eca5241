package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bidline-lab/bidline/internal/core/audit"
	"github.com/bidline-lab/bidline/internal/core/command"
	"github.com/bidline-lab/bidline/internal/core/domain"
	"github.com/bidline-lab/bidline/internal/core/storage"
)

var (
	testActor = audit.Actor{ID: "admin-1", Type: "admin"}
	testCause = audit.Cause{ID: "ticket-42", Description: "test change"}
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	log := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(store, log, opts...), store
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func seniorityAt(year int) domain.Seniority {
	d := time.Date(year, time.June, 1, 0, 0, 0, 0, time.UTC)
	return domain.Seniority{CumulativeBUDate: d, BUDate: d, EODDate: d, SCDDate: d}
}

// submitAll pushes a sequence of commands and fails the test on the first
// rejection.
func submitAll(t *testing.T, e *Engine, cmds ...command.Command) []audit.Event {
	t.Helper()
	events := make([]audit.Event, 0, len(cmds))
	for _, cmd := range cmds {
		ev, err := e.Submit(context.Background(), cmd, testActor, testCause)
		require.NoError(t, err, "command %s", cmd.Kind())
		events = append(events, ev)
	}
	return events
}

// seedDraftYear creates bid year 2026 with one area and two users whose
// seniority is strictly ordered. Returns the area and user IDs.
func seedDraftYear(t *testing.T, e *Engine, store *storage.MemoryStore) (areaID int64, userIDs []int64) {
	t.Helper()
	submitAll(t, e,
		command.CreateBidYear{
			YearValue:     2026,
			StartDate:     time.Date(2026, time.January, 11, 0, 0, 0, 0, time.UTC),
			NumPayPeriods: 26,
		},
		command.SetActiveBidYear{YearValue: 2026},
	)

	submitAll(t, e, command.CreateArea{AreaCode: "north", AreaName: "North Area"})
	st, _, err := store.LoadPartition(context.Background(), 2026)
	require.NoError(t, err)
	area, ok := st.AreaByCode("NORTH")
	require.True(t, ok)
	areaID = area.ID

	submitAll(t, e,
		command.RegisterUser{AreaID: areaID, Initials: "aa", Name: "Alice Adams", UserType: domain.UserTypeCPC, Seniority: seniorityAt(2001)},
		command.RegisterUser{AreaID: areaID, Initials: "bb", Name: "Bob Brown", UserType: domain.UserTypeCPC, Seniority: seniorityAt(2005)},
	)

	st, _, err = store.LoadPartition(context.Background(), 2026)
	require.NoError(t, err)
	for _, ini := range []domain.Initials{"AA", "BB"} {
		found := false
		for _, u := range st.Users {
			if u.Initials == ini {
				userIDs = append(userIDs, u.ID)
				found = true
			}
		}
		require.True(t, found, "user %s not registered", ini)
	}
	return areaID, userIDs
}

func mondaySchedule(areaID int64) command.ConfigureRound {
	return command.ConfigureRound{
		AreaID:        areaID,
		RoundNumber:   1,
		StartDate:     time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC), // a Monday
		BiddersPerDay: 1,
		WindowStart:   8 * time.Hour,
		WindowEnd:     16 * time.Hour,
		Timezone:      "America/New_York",
	}
}

func TestSubmitCreateBidYear(t *testing.T) {
	e, store := newTestEngine(t)

	ev, err := e.Submit(context.Background(), command.CreateBidYear{
		YearValue:     2026,
		StartDate:     time.Date(2026, time.January, 11, 0, 0, 0, 0, time.UTC),
		NumPayPeriods: 27,
	}, testActor, testCause)
	require.NoError(t, err)
	require.Equal(t, int64(1), ev.Seq)
	require.Equal(t, 2026, ev.Partition)
	require.Equal(t, audit.EntityBidYear, ev.EntityKind)
	require.Nil(t, ev.Before)

	st, headSeq, err := store.LoadPartition(context.Background(), 2026)
	require.NoError(t, err)
	require.Equal(t, int64(1), headSeq)
	require.Equal(t, 2026, st.Year.Year)
	require.Equal(t, domain.StageDraft, st.Year.Stage)
	require.False(t, st.Year.Active)
	require.NotZero(t, st.Year.ID)
}

func TestSubmitDuplicateBidYearRejected(t *testing.T) {
	e, store := newTestEngine(t)
	cmd := command.CreateBidYear{
		YearValue:     2026,
		StartDate:     time.Date(2026, time.January, 11, 0, 0, 0, 0, time.UTC),
		NumPayPeriods: 26,
	}
	submitAll(t, e, cmd)

	_, err := e.Submit(context.Background(), cmd, testActor, testCause)
	require.True(t, domain.IsRule(err, domain.RuleDuplicateBidYear), "got %v", err)

	// The rejection left no trace.
	_, headSeq, err := store.LoadPartition(context.Background(), 2026)
	require.NoError(t, err)
	require.Equal(t, int64(1), headSeq)
}

func TestSubmitRoutesToActiveYear(t *testing.T) {
	e, store := newTestEngine(t)
	seedDraftYear(t, e, store)

	// No explicit year: the command lands on the active bid year.
	submitAll(t, e, command.SetExpectedAreaCount{Count: 1})
	st, _, err := store.LoadPartition(context.Background(), 2026)
	require.NoError(t, err)
	require.Equal(t, 1, st.Year.ExpectedAreaCount)
}

func TestSubmitNoActiveYear(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Submit(context.Background(), command.SetExpectedAreaCount{Count: 3}, testActor, testCause)
	require.True(t, domain.IsRule(err, domain.RuleNoActiveBidYear), "got %v", err)
}

func TestSubmitSecondActiveYearRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	start := time.Date(2026, time.January, 11, 0, 0, 0, 0, time.UTC)
	submitAll(t, e,
		command.CreateBidYear{YearValue: 2026, StartDate: start, NumPayPeriods: 26},
		command.SetActiveBidYear{YearValue: 2026},
		command.CreateBidYear{YearValue: 2027, StartDate: start.AddDate(1, 0, 0), NumPayPeriods: 26},
	)

	_, err := e.Submit(context.Background(), command.SetActiveBidYear{YearValue: 2027}, testActor, testCause)
	require.True(t, domain.IsRule(err, domain.RuleDuplicateActiveBidYear), "got %v", err)
}

func TestLifecycleFullRun(t *testing.T) {
	e, store := newTestEngine(t)
	areaID, userIDs := seedDraftYear(t, e, store)

	submitAll(t, e,
		mondaySchedule(areaID),
		command.LockStructure{},
		command.Canonicalize{},
		command.OpenBidding{},
	)

	st, _, err := store.LoadPartition(context.Background(), 2026)
	require.NoError(t, err)
	require.Equal(t, domain.StageBiddingActive, st.Year.Stage)

	// Alice (2001 seniority) bids before Bob (2005).
	alice, ok := st.UserByID(userIDs[0])
	require.True(t, ok)
	bob, ok := st.UserByID(userIDs[1])
	require.True(t, ok)
	require.Equal(t, 1, alice.BidOrder)
	require.Equal(t, 2, bob.BidOrder)

	// One bidder per day: Alice gets Monday, Bob gets Tuesday. 08:00 in
	// New York is 13:00 UTC in early March (EST).
	require.Equal(t, time.Date(2026, time.March, 2, 13, 0, 0, 0, time.UTC), alice.WindowStart.UTC())
	require.Equal(t, time.Date(2026, time.March, 2, 21, 0, 0, 0, time.UTC), alice.WindowEnd.UTC())
	require.Equal(t, time.Date(2026, time.March, 3, 13, 0, 0, 0, time.UTC), bob.WindowStart.UTC())

	// Closing bidding releases the active flag.
	submitAll(t, e, command.CloseBidding{})
	st, _, err = store.LoadPartition(context.Background(), 2026)
	require.NoError(t, err)
	require.Equal(t, domain.StageBiddingClosed, st.Year.Stage)
	require.False(t, st.Year.Active)

	// Terminal stage admits only checkpoints.
	_, err = e.Submit(context.Background(), command.OverrideBidOrder{YearValue: 2026, UserID: userIDs[0], BidOrder: 5, Reason: "manual correction"}, testActor, testCause)
	require.True(t, domain.IsRule(err, domain.RuleLifecycleInadmissible), "got %v", err)
	submitAll(t, e, command.Checkpoint{YearValue: 2026})
}

func TestCanonicalizeBlockedBySeniorityConflict(t *testing.T) {
	e, store := newTestEngine(t)
	areaID, _ := seedDraftYear(t, e, store)

	// A third user with seniority identical to Bob's and no lottery.
	submitAll(t, e,
		command.RegisterUser{AreaID: areaID, Initials: "cc", Name: "Cara Cole", UserType: domain.UserTypeCPC, Seniority: seniorityAt(2005)},
		mondaySchedule(areaID),
		command.LockStructure{},
	)

	_, err := e.Submit(context.Background(), command.Canonicalize{}, testActor, testCause)
	require.True(t, domain.IsRule(err, domain.RuleNotReady), "got %v", err)

	st, _, err := store.LoadPartition(context.Background(), 2026)
	require.NoError(t, err)
	require.Equal(t, domain.StageStructureLocked, st.Year.Stage)
}

func TestCanonicalizeBlockedWithoutRounds(t *testing.T) {
	e, store := newTestEngine(t)
	seedDraftYear(t, e, store)
	submitAll(t, e, command.LockStructure{})

	_, err := e.Submit(context.Background(), command.Canonicalize{}, testActor, testCause)
	require.True(t, domain.IsRule(err, domain.RuleNotReady), "got %v", err)
}

func TestRollbackRestoresStateKeepsStage(t *testing.T) {
	e, store := newTestEngine(t)
	areaID, userIDs := seedDraftYear(t, e, store)

	// Head is at seq 5 (year, activate, area, two users). Lock, then roll
	// back to before the second user existed.
	submitAll(t, e, command.LockStructure{})
	_, headSeq, err := store.LoadPartition(context.Background(), 2026)
	require.NoError(t, err)
	require.Equal(t, int64(6), headSeq)

	ev, err := e.Submit(context.Background(), command.RollbackToEvent{TargetSeq: 4}, testActor, testCause)
	require.NoError(t, err)
	require.Equal(t, int64(7), ev.Seq)
	require.Equal(t, audit.EntityPartition, ev.EntityKind)

	st, headSeq, err := store.LoadPartition(context.Background(), 2026)
	require.NoError(t, err)
	require.Equal(t, int64(7), headSeq)

	// The second user is gone, the first remains.
	_, ok := st.UserByID(userIDs[1])
	require.False(t, ok)
	_, ok = st.UserByID(userIDs[0])
	require.True(t, ok)
	_, ok = st.AreaByID(areaID)
	require.True(t, ok)

	// The lifecycle stage and active flag never roll back.
	require.Equal(t, domain.StageStructureLocked, st.Year.Stage)
	require.True(t, st.Year.Active)

	// History is intact: every event up to the rollback is still readable.
	events, err := store.ReadEvents(context.Background(), 2026, 0, 100)
	require.NoError(t, err)
	require.Len(t, events, 7)
}

func TestRollbackTargetOutOfRange(t *testing.T) {
	e, store := newTestEngine(t)
	seedDraftYear(t, e, store)

	for _, target := range []int64{0, -3, 99} {
		_, err := e.Submit(context.Background(), command.RollbackToEvent{TargetSeq: target}, testActor, testCause)
		require.True(t, domain.IsRule(err, domain.RuleRollbackTargetNotFound), "target %d: got %v", target, err)
	}
	_, headSeq, err := store.LoadPartition(context.Background(), 2026)
	require.NoError(t, err)
	require.Equal(t, int64(5), headSeq)
}

func TestCheckpointSavesSnapshot(t *testing.T) {
	e, store := newTestEngine(t)
	seedDraftYear(t, e, store)

	ev, err := e.Submit(context.Background(), command.Checkpoint{}, testActor, testCause)
	require.NoError(t, err)

	snap, err := store.NearestSnapshot(context.Background(), 2026, 0)
	require.NoError(t, err)
	require.Equal(t, ev.Seq, snap.Seq)
	require.NotEmpty(t, snap.State)
}

func TestVerifyReplayCleanPartition(t *testing.T) {
	e, store := newTestEngine(t)
	areaID, _ := seedDraftYear(t, e, store)
	submitAll(t, e,
		mondaySchedule(areaID),
		command.LockStructure{},
		command.Canonicalize{},
	)

	require.NoError(t, e.VerifyReplay(context.Background(), 2026))
	require.False(t, e.Halted(2026))
}

func TestVerifyReplayHaltsOnDivergence(t *testing.T) {
	e, store := newTestEngine(t)
	_, userIDs := seedDraftYear(t, e, store)

	// Commit a transition whose canonical state disagrees with its own
	// audit event: the event re-records the user unchanged while the
	// canonical row silently renames them.
	st, headSeq, err := store.LoadPartition(context.Background(), 2026)
	require.NoError(t, err)
	u, ok := st.UserByID(userIDs[0])
	require.True(t, ok)
	frag, err := json.Marshal(*u)
	require.NoError(t, err)

	tampered := st.Clone()
	tu, _ := tampered.UserByID(userIDs[0])
	tu.Name = "Mallory"

	_, err = store.CommitTransition(context.Background(), storage.Commit{
		Partition:   2026,
		ExpectedSeq: headSeq,
		Event: audit.New(2026, testActor, testCause,
			audit.Action{Name: "UpdateUser", Details: "no-op"},
			audit.EntityUser, userIDs[0], frag, frag),
		NewState: tampered,
	})
	require.NoError(t, err)

	err = e.VerifyReplay(context.Background(), 2026)
	require.ErrorIs(t, err, ErrPartitionHalted)
	require.True(t, e.Halted(2026))

	// A halted partition refuses all further commands.
	_, err = e.Submit(context.Background(), command.Checkpoint{YearValue: 2026}, testActor, testCause)
	require.ErrorIs(t, err, ErrPartitionHalted)

	// Other partitions are unaffected.
	submitAll(t, e, command.CreateBidYear{
		YearValue:     2027,
		StartDate:     time.Date(2027, time.January, 10, 0, 0, 0, 0, time.UTC),
		NumPayPeriods: 26,
	})
}

type captureNotifier struct{ events []audit.Event }

func (c *captureNotifier) Publish(ev audit.Event) { c.events = append(c.events, ev) }

func TestNotifierSeesCommittedEventsOnly(t *testing.T) {
	n := &captureNotifier{}
	e, _ := newTestEngine(t, WithNotifier(n))

	submitAll(t, e, command.CreateBidYear{
		YearValue:     2026,
		StartDate:     time.Date(2026, time.January, 11, 0, 0, 0, 0, time.UTC),
		NumPayPeriods: 26,
	})
	_, err := e.Submit(context.Background(), command.CreateBidYear{
		YearValue:     2026,
		StartDate:     time.Date(2026, time.January, 11, 0, 0, 0, 0, time.UTC),
		NumPayPeriods: 26,
	}, testActor, testCause)
	require.Error(t, err)

	require.Len(t, n.events, 1)
	require.Equal(t, int64(1), n.events[0].Seq)
}

type captureRecorder struct{ outcomes map[string]int }

func (c *captureRecorder) ObserveCommand(kind, outcome string, _ time.Duration) {
	if c.outcomes == nil {
		c.outcomes = make(map[string]int)
	}
	c.outcomes[kind+"/"+outcome]++
}

func TestRecorderClassifiesOutcomes(t *testing.T) {
	r := &captureRecorder{}
	e, _ := newTestEngine(t, WithRecorder(r))

	submitAll(t, e, command.CreateBidYear{
		YearValue:     2026,
		StartDate:     time.Date(2026, time.January, 11, 0, 0, 0, 0, time.UTC),
		NumPayPeriods: 26,
	})
	_, err := e.Submit(context.Background(), command.SetActiveBidYear{YearValue: 2030}, testActor, testCause)
	require.Error(t, err)

	require.Equal(t, 1, r.outcomes["CreateBidYear/committed"])
	require.Equal(t, 1, r.outcomes["SetActiveBidYear/rejected"])
}

func TestOverrideRequiresReason(t *testing.T) {
	e, store := newTestEngine(t)
	areaID, userIDs := seedDraftYear(t, e, store)
	submitAll(t, e,
		mondaySchedule(areaID),
		command.LockStructure{},
		command.Canonicalize{},
	)

	_, err := e.Submit(context.Background(), command.OverrideBidOrder{UserID: userIDs[0], BidOrder: 9, Reason: "short"}, testActor, testCause)
	require.True(t, domain.IsRule(err, domain.RuleReasonTooShort), "got %v", err)

	submitAll(t, e, command.OverrideBidOrder{UserID: userIDs[0], BidOrder: 9, Reason: "swap agreed with area rep"})
	st, _, err := store.LoadPartition(context.Background(), 2026)
	require.NoError(t, err)
	u, _ := st.UserByID(userIDs[0])
	require.Equal(t, 9, u.BidOrder)
}

func TestOverrideByDisplayValueImpossible(t *testing.T) {
	e, store := newTestEngine(t)
	areaID, _ := seedDraftYear(t, e, store)
	submitAll(t, e,
		mondaySchedule(areaID),
		command.LockStructure{},
		command.Canonicalize{},
	)

	// Zero canonical ID is the only way to "not name" a user; initials
	// have no path into a mutation.
	_, err := e.Submit(context.Background(), command.OverrideEligibility{UserID: 0, CanBid: false, Reason: "left the facility"}, testActor, testCause)
	require.True(t, domain.IsRule(err, domain.RuleMissingCanonicalID), "got %v", err)
}

func TestUpdateUserChangesInitialsByCanonicalID(t *testing.T) {
	e, store := newTestEngine(t)
	areaID, userIDs := seedDraftYear(t, e, store)

	submitAll(t, e, command.UpdateUser{
		UserID:    userIDs[0],
		Initials:  "zz",
		Name:      "Alice Adams",
		AreaID:    areaID,
		UserType:  domain.UserTypeCPC,
		Seniority: seniorityAt(2001),
	})

	st, _, err := store.LoadPartition(context.Background(), 2026)
	require.NoError(t, err)
	u, ok := st.UserByID(userIDs[0])
	require.True(t, ok)
	require.Equal(t, domain.Initials("ZZ"), u.Initials)
	for _, other := range st.Users {
		require.NotEqual(t, domain.Initials("AA"), other.Initials)
	}

	// Both the registration and the rename carry the same canonical ID,
	// so the user's history survives the initials change.
	all, err := store.ReadEvents(context.Background(), 2026, 0, 0)
	require.NoError(t, err)
	var names []string
	for _, ev := range all {
		if ev.EntityKind == audit.EntityUser && ev.EntityID == userIDs[0] {
			names = append(names, ev.Action.Name)
		}
	}
	require.Equal(t, []string{"RegisterUser", "UpdateUser"}, names)
}

func TestOverrideEligibilityKeepsParticipationDirectional(t *testing.T) {
	e, store := newTestEngine(t)
	areaID, userIDs := seedDraftYear(t, e, store)

	submitAll(t, e,
		command.UpdateUserParticipation{UserID: userIDs[0], ExcludedFromBidding: true, ExcludedFromLeaveCalc: true},
		mondaySchedule(areaID),
		command.LockStructure{},
		command.Canonicalize{},
	)

	// Re-admitting to bidding while the leave-calc exclusion stands
	// would invert the directional flag rule.
	_, err := e.Submit(context.Background(), command.OverrideEligibility{UserID: userIDs[0], CanBid: true, Reason: "returned from detail"}, testActor, testCause)
	require.True(t, domain.IsRule(err, domain.RuleParticipationFlags), "got %v", err)

	st, _, err := store.LoadPartition(context.Background(), 2026)
	require.NoError(t, err)
	u, _ := st.UserByID(userIDs[0])
	require.True(t, u.ExcludedFromBidding)
	require.True(t, u.ExcludedFromLeaveCalc)
	require.NoError(t, domain.ValidateParticipationFlags(*u))

	// Withdrawing eligibility is always safe.
	submitAll(t, e, command.OverrideEligibility{UserID: userIDs[1], CanBid: false, Reason: "left the facility"})
	st, _, err = store.LoadPartition(context.Background(), 2026)
	require.NoError(t, err)
	u, _ = st.UserByID(userIDs[1])
	require.True(t, u.ExcludedFromBidding)
}
