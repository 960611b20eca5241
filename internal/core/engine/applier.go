package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bidline-lab/bidline/internal/core/audit"
	"github.com/bidline-lab/bidline/internal/core/command"
	"github.com/bidline-lab/bidline/internal/core/domain"
	"github.com/bidline-lab/bidline/internal/core/state"
	"github.com/bidline-lab/bidline/internal/core/storage"
)

// Result is a successful transition: the new partition state plus exactly
// one audit event. On failure neither exists and the prior state is the
// only valid state.
type Result struct {
	NewState *state.State
	Event    audit.Event

	// CreatesPartition marks the CreateBidYear transition.
	CreatesPartition bool

	// Snapshot marks transitions that persist a checkpoint after commit
	// (Checkpoint, Canonicalize, Rollback).
	Snapshot bool
}

// Applier turns a validated command plus current state into a Result. It
// is the only component that constructs new canonical state. It mutates
// nothing itself: it returns a clone, and the engine commits it. Entity
// lookup inside the applier is by canonical identifier only.
type Applier struct {
	store storage.Store
}

// NewApplier builds an applier. The store is used for identifier
// allocation and for state reconstruction on rollback; the applier never
// writes through it.
func NewApplier(store storage.Store) *Applier {
	return &Applier{store: store}
}

// Apply produces the transition result for a validated command. Commands
// must have passed Validate first; Apply still returns domain errors for
// conditions only discoverable while building the new state (e.g. a
// seniority conflict surfacing during materialization).
func (a *Applier) Apply(ctx context.Context, cmd command.Command, st *state.State, headSeq int64, actor audit.Actor, cause audit.Cause) (*Result, error) {
	switch c := cmd.(type) {
	case command.CreateBidYear:
		return a.applyCreateBidYear(ctx, c, actor, cause)
	case command.SetActiveBidYear:
		return applyYearMutation(st, cmd, actor, cause,
			fmt.Sprintf("Activated bid year %d", c.YearValue),
			func(y *domain.BidYear) { y.Active = true })
	case command.SetExpectedAreaCount:
		return applyYearMutation(st, cmd, actor, cause,
			fmt.Sprintf("Set expected area count to %d", c.Count),
			func(y *domain.BidYear) { y.ExpectedAreaCount = c.Count })
	case command.CreateArea:
		return a.applyCreateArea(ctx, c, st, actor, cause)
	case command.SetExpectedUserCount:
		return applyAreaMutation(st, cmd, c.AreaID, actor, cause,
			fmt.Sprintf("Set expected user count to %d", c.Count),
			func(area *domain.Area) { area.ExpectedUserCount = c.Count })
	case command.ConfigureRound:
		return a.applyConfigureRound(ctx, c, st, actor, cause)
	case command.RegisterUser:
		return a.applyRegisterUser(ctx, c, st, actor, cause)
	case command.UpdateUser:
		return applyUserMutation(st, cmd, c.UserID, actor, cause,
			fmt.Sprintf("Updated user %d", c.UserID),
			func(u *domain.User) {
				u.Initials = domain.NewInitials(string(c.Initials))
				u.Name = c.Name
				u.AreaID = c.AreaID
				u.Type = c.UserType
				u.Crew = c.Crew
				u.Senior = c.Seniority
			})
	case command.UpdateUserParticipation:
		return applyUserMutation(st, cmd, c.UserID, actor, cause,
			fmt.Sprintf("Updated participation flags for user %d", c.UserID),
			func(u *domain.User) {
				u.ExcludedFromBidding = c.ExcludedFromBidding
				u.ExcludedFromLeaveCalc = c.ExcludedFromLeaveCalc
				u.NoBidReviewed = c.NoBidReviewed
			})
	case command.LockStructure:
		return applyStageAdvance(st, cmd, actor, cause, nil)
	case command.Canonicalize:
		return applyCanonicalize(st, cmd, actor, cause)
	case command.OpenBidding:
		return applyStageAdvance(st, cmd, actor, cause, nil)
	case command.CloseBidding:
		// Closing bidding also releases the active flag so the next
		// bid year can be activated.
		return applyStageAdvance(st, cmd, actor, cause, func(y *domain.BidYear) { y.Active = false })
	case command.OverrideAreaAssignment:
		return applyUserMutation(st, cmd, c.UserID, actor, cause,
			fmt.Sprintf("Override: moved user %d to area %d (%s)", c.UserID, c.NewAreaID, c.Reason),
			func(u *domain.User) { u.AreaID = c.NewAreaID })
	case command.OverrideEligibility:
		return applyUserMutation(st, cmd, c.UserID, actor, cause,
			fmt.Sprintf("Override: set eligibility of user %d to %t (%s)", c.UserID, c.CanBid, c.Reason),
			func(u *domain.User) { u.ExcludedFromBidding = !c.CanBid })
	case command.OverrideBidOrder:
		return applyUserMutation(st, cmd, c.UserID, actor, cause,
			fmt.Sprintf("Override: set bid order of user %d to %d (%s)", c.UserID, c.BidOrder, c.Reason),
			func(u *domain.User) { u.BidOrder = c.BidOrder })
	case command.OverrideBidWindow:
		return applyUserMutation(st, cmd, c.UserID, actor, cause,
			fmt.Sprintf("Override: adjusted bid window of user %d (%s)", c.UserID, c.Reason),
			func(u *domain.User) {
				u.WindowStart = c.WindowStart
				u.WindowEnd = c.WindowEnd
			})
	case command.Checkpoint:
		return applyCheckpoint(st, cmd, actor, cause)
	case command.RollbackToEvent:
		return a.applyRollback(ctx, c, st, actor, cause)
	default:
		return nil, fmt.Errorf("apply: unhandled command kind %s", cmd.Kind())
	}
}

func (a *Applier) applyCreateBidYear(ctx context.Context, c command.CreateBidYear, actor audit.Actor, cause audit.Cause) (*Result, error) {
	id, err := a.store.AllocateID(ctx, audit.EntityBidYear)
	if err != nil {
		return nil, err
	}
	year := domain.BidYear{
		ID:            id,
		Year:          c.YearValue,
		StartDate:     c.StartDate,
		NumPayPeriods: c.NumPayPeriods,
		Stage:         domain.StageDraft,
	}
	ns := state.New(year)
	after, err := fragment(year)
	if err != nil {
		return nil, err
	}
	ev := audit.New(c.YearValue, actor, cause,
		audit.Action{Name: string(c.Kind()), Details: fmt.Sprintf("Created bid year %d", c.YearValue)},
		audit.EntityBidYear, id, nil, after)
	return &Result{NewState: ns, Event: ev, CreatesPartition: true}, nil
}

func (a *Applier) applyCreateArea(ctx context.Context, c command.CreateArea, st *state.State, actor audit.Actor, cause audit.Cause) (*Result, error) {
	id, err := a.store.AllocateID(ctx, audit.EntityArea)
	if err != nil {
		return nil, err
	}
	area := domain.Area{
		ID:         id,
		BidYearID:  st.Year.ID,
		Code:       domain.NormalizeAreaCode(c.AreaCode),
		Name:       c.AreaName,
		SystemArea: c.SystemArea,
	}
	ns := st.Clone()
	ns.UpsertArea(area)
	after, err := fragment(area)
	if err != nil {
		return nil, err
	}
	ev := audit.New(st.Year.Year, actor, cause,
		audit.Action{Name: string(c.Kind()), Details: fmt.Sprintf("Created area %q in bid year %d", area.Code, st.Year.Year)},
		audit.EntityArea, id, nil, after)
	return &Result{NewState: ns, Event: ev}, nil
}

func (a *Applier) applyConfigureRound(ctx context.Context, c command.ConfigureRound, st *state.State, actor audit.Actor, cause audit.Cause) (*Result, error) {
	round := domain.RoundConfig{
		BidYearID:     st.Year.ID,
		AreaID:        c.AreaID,
		RoundNumber:   c.RoundNumber,
		StartDate:     c.StartDate,
		BiddersPerDay: c.BiddersPerDay,
		WindowStart:   c.WindowStart,
		WindowEnd:     c.WindowEnd,
		Timezone:      c.Timezone,
	}

	var before json.RawMessage
	for _, r := range st.RoundsForArea(c.AreaID) {
		if r.RoundNumber == c.RoundNumber {
			round.ID = r.ID
			b, err := fragment(r)
			if err != nil {
				return nil, err
			}
			before = b
			break
		}
	}
	if round.ID == 0 {
		id, err := a.store.AllocateID(ctx, audit.EntityRound)
		if err != nil {
			return nil, err
		}
		round.ID = id
	}

	ns := st.Clone()
	ns.UpsertRound(round)
	after, err := fragment(round)
	if err != nil {
		return nil, err
	}
	ev := audit.New(st.Year.Year, actor, cause,
		audit.Action{Name: string(c.Kind()), Details: fmt.Sprintf("Configured round %d for area %d", c.RoundNumber, c.AreaID)},
		audit.EntityRound, round.ID, before, after)
	return &Result{NewState: ns, Event: ev}, nil
}

func (a *Applier) applyRegisterUser(ctx context.Context, c command.RegisterUser, st *state.State, actor audit.Actor, cause audit.Cause) (*Result, error) {
	id, err := a.store.AllocateID(ctx, audit.EntityUser)
	if err != nil {
		return nil, err
	}
	user := domain.User{
		ID:        id,
		BidYearID: st.Year.ID,
		AreaID:    c.AreaID,
		Initials:  domain.NewInitials(string(c.Initials)),
		Name:      c.Name,
		Type:      c.UserType,
		Crew:      c.Crew,
		Senior:    c.Seniority,
	}
	ns := st.Clone()
	ns.UpsertUser(user)
	after, err := fragment(user)
	if err != nil {
		return nil, err
	}
	ev := audit.New(st.Year.Year, actor, cause,
		audit.Action{Name: string(c.Kind()), Details: fmt.Sprintf("Registered user with initials %q for bid year %d", string(user.Initials), st.Year.Year)},
		audit.EntityUser, id, nil, after)
	return &Result{NewState: ns, Event: ev}, nil
}

// applyCanonicalize is the irreversible materialization: bid order and bid
// windows become frozen canonical values, and the ordering algorithm is
// never re-invoked for this bid year afterwards.
func applyCanonicalize(st *state.State, cmd command.Command, actor audit.Actor, cause audit.Cause) (*Result, error) {
	ns := st.Clone()

	for _, area := range ns.Areas {
		if area.SystemArea {
			continue
		}
		users := ns.UsersInArea(area.ID)
		positions, err := domain.ComputeBidOrder(users)
		if err != nil {
			return nil, err
		}

		rounds := ns.RoundsForArea(area.ID)
		if len(rounds) == 0 {
			return nil, domain.ErrorWithContext(domain.RuleInvalidRoundConfig,
				"area has no rounds configured", map[string]any{"area_code": area.Code})
		}
		schedule := rounds[0]
		for _, r := range rounds[1:] {
			if r.RoundNumber < schedule.RoundNumber {
				schedule = r
			}
		}

		windows, err := domain.CalculateBidWindows(positions, schedule)
		if err != nil {
			return nil, err
		}

		for _, p := range positions {
			u, _ := ns.UserByID(p.UserID)
			u.BidOrder = p.Position
		}
		for _, w := range windows {
			u, _ := ns.UserByID(w.UserID)
			u.WindowStart = w.Start
			u.WindowEnd = w.End
		}
	}

	next, _ := ns.Year.Stage.Next()
	prevStage := ns.Year.Stage
	ns.Year.Stage = next

	before, err := st.Marshal()
	if err != nil {
		return nil, err
	}
	after, err := ns.Marshal()
	if err != nil {
		return nil, err
	}
	ev := audit.New(st.Year.Year, actor, cause,
		audit.Action{
			Name:    string(cmd.Kind()),
			Details: fmt.Sprintf("Canonicalized bid year %d (%s -> %s): bid order and windows frozen", st.Year.Year, prevStage, next),
		},
		audit.EntityPartition, st.Year.ID, before, after)
	return &Result{NewState: ns, Event: ev, Snapshot: true}, nil
}

func applyCheckpoint(st *state.State, cmd command.Command, actor audit.Actor, cause audit.Cause) (*Result, error) {
	snap, err := st.Marshal()
	if err != nil {
		return nil, err
	}
	ev := audit.New(st.Year.Year, actor, cause,
		audit.Action{Name: string(cmd.Kind()), Details: "Explicit checkpoint"},
		audit.EntityPartition, st.Year.ID, snap, snap)
	return &Result{NewState: st.Clone(), Event: ev, Snapshot: true}, nil
}

// applyRollback reconstructs state as of the target sequence and records
// it as the after-state of a brand new event. History stays intact; the
// lifecycle stage and active flag are retained from the present because
// stages never move backwards.
func (a *Applier) applyRollback(ctx context.Context, c command.RollbackToEvent, st *state.State, actor audit.Actor, cause audit.Cause) (*Result, error) {
	restored, _, err := storage.Reconstruct(ctx, a.store, st.Year.Year, c.TargetSeq)
	if err != nil {
		return nil, err
	}
	restored.Year.ID = st.Year.ID
	restored.Year.Stage = st.Year.Stage
	restored.Year.Active = st.Year.Active

	before, err := st.Marshal()
	if err != nil {
		return nil, err
	}
	after, err := restored.Marshal()
	if err != nil {
		return nil, err
	}
	ev := audit.New(st.Year.Year, actor, cause,
		audit.Action{Name: string(c.Kind()), Details: fmt.Sprintf("Rolled back to event seq %d", c.TargetSeq)},
		audit.EntityPartition, st.Year.ID, before, after)
	return &Result{NewState: restored, Event: ev, Snapshot: true}, nil
}

// applyStageAdvance moves the lifecycle forward one stage, optionally
// applying an extra bid-year mutation in the same transition.
func applyStageAdvance(st *state.State, cmd command.Command, actor audit.Actor, cause audit.Cause, extra func(*domain.BidYear)) (*Result, error) {
	next, ok := st.Year.Stage.Next()
	if !ok {
		return nil, domain.Errorf(domain.RuleLifecycleNotSequential,
			"bid year %d is already at the terminal stage", st.Year.Year)
	}
	prev := st.Year.Stage
	return applyYearMutation(st, cmd, actor, cause,
		fmt.Sprintf("Transitioned bid year %d from %s to %s", st.Year.Year, prev, next),
		func(y *domain.BidYear) {
			y.Stage = next
			if extra != nil {
				extra(y)
			}
		})
}

func applyYearMutation(st *state.State, cmd command.Command, actor audit.Actor, cause audit.Cause, details string, mutate func(*domain.BidYear)) (*Result, error) {
	before, err := fragment(st.Year)
	if err != nil {
		return nil, err
	}
	ns := st.Clone()
	mutate(&ns.Year)
	after, err := fragment(ns.Year)
	if err != nil {
		return nil, err
	}
	ev := audit.New(st.Year.Year, actor, cause,
		audit.Action{Name: string(cmd.Kind()), Details: details},
		audit.EntityBidYear, st.Year.ID, before, after)
	return &Result{NewState: ns, Event: ev}, nil
}

func applyAreaMutation(st *state.State, cmd command.Command, areaID int64, actor audit.Actor, cause audit.Cause, details string, mutate func(*domain.Area)) (*Result, error) {
	prev, ok := st.AreaByID(areaID)
	if !ok {
		return nil, areaNotFound(areaID, st)
	}
	before, err := fragment(*prev)
	if err != nil {
		return nil, err
	}
	ns := st.Clone()
	area, _ := ns.AreaByID(areaID)
	mutate(area)
	after, err := fragment(*area)
	if err != nil {
		return nil, err
	}
	ev := audit.New(st.Year.Year, actor, cause,
		audit.Action{Name: string(cmd.Kind()), Details: details},
		audit.EntityArea, areaID, before, after)
	return &Result{NewState: ns, Event: ev}, nil
}

func applyUserMutation(st *state.State, cmd command.Command, userID int64, actor audit.Actor, cause audit.Cause, details string, mutate func(*domain.User)) (*Result, error) {
	prev, ok := st.UserByID(userID)
	if !ok {
		return nil, domain.ErrorWithContext(domain.RuleUserNotFound,
			"no user with this canonical identifier in this bid year",
			map[string]any{"user_id": userID})
	}
	before, err := fragment(*prev)
	if err != nil {
		return nil, err
	}
	ns := st.Clone()
	user, _ := ns.UserByID(userID)
	mutate(user)
	after, err := fragment(*user)
	if err != nil {
		return nil, err
	}
	ev := audit.New(st.Year.Year, actor, cause,
		audit.Action{Name: string(cmd.Kind()), Details: details},
		audit.EntityUser, userID, before, after)
	return &Result{NewState: ns, Event: ev}, nil
}

func fragment(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling audit fragment: %w", err)
	}
	return b, nil
}
