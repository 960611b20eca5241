// Package command defines the closed set of intents the engine accepts.
// Commands are data only: they carry what should change and who asked,
// never how to change it. Every command that targets an existing entity
// carries that entity's canonical numeric identifier explicitly — identity
// is never inferred from mutable display fields such as initials or area
// codes. Resolving a display value to an identifier is an ingress concern
// (see the projection lookup queries) and has no path into the engine.
package command

import (
	"time"

	"github.com/bidline-lab/bidline/internal/core/domain"
)

// Command is the closed set of supported intents. The isCommand marker
// keeps the set closed to this package; the engine switches exhaustively
// over the concrete types.
type Command interface {
	// Kind tags the variant for lifecycle admissibility checks.
	Kind() domain.CommandKind
	// Year names the partition the command belongs to. Zero means the
	// command targets the active bid year.
	Year() int
	isCommand()
}

// CreateBidYear registers a new bid year in Draft stage.
type CreateBidYear struct {
	YearValue     int       `json:"year"`
	StartDate     time.Time `json:"start_date"`
	NumPayPeriods int       `json:"num_pay_periods"`
}

// SetActiveBidYear flips which bid year is active. At most one bid year is
// active at a time.
type SetActiveBidYear struct {
	YearValue int `json:"year"`
}

// SetExpectedAreaCount declares the structure target for readiness.
type SetExpectedAreaCount struct {
	YearValue int `json:"year,omitempty"`
	Count     int `json:"expected_count"`
}

// CreateArea adds an area to a bid year still in Draft.
type CreateArea struct {
	YearValue  int    `json:"year,omitempty"`
	AreaCode   string `json:"area_code"`
	AreaName   string `json:"area_name,omitempty"`
	SystemArea bool   `json:"system_area,omitempty"`
}

// SetExpectedUserCount declares an area's expected user count. The area is
// addressed by canonical ID.
type SetExpectedUserCount struct {
	YearValue int   `json:"year,omitempty"`
	AreaID    int64 `json:"area_id"`
	Count     int   `json:"expected_count"`
}

// ConfigureRound declares or replaces one round's schedule for an area.
type ConfigureRound struct {
	YearValue     int           `json:"year,omitempty"`
	AreaID        int64         `json:"area_id"`
	RoundNumber   int           `json:"round_number"`
	StartDate     time.Time     `json:"start_date"`
	BiddersPerDay int           `json:"bidders_per_day"`
	WindowStart   time.Duration `json:"window_start"`
	WindowEnd     time.Duration `json:"window_end"`
	Timezone      string        `json:"timezone"`
}

// RegisterUser adds a user to a bid year still in Draft. The area is
// addressed by canonical ID; the user's own ID is assigned on commit.
type RegisterUser struct {
	YearValue int              `json:"year,omitempty"`
	AreaID    int64            `json:"area_id"`
	Initials  domain.Initials  `json:"initials"`
	Name      string           `json:"name"`
	UserType  domain.UserType  `json:"user_type"`
	Crew      int              `json:"crew,omitempty"`
	Seniority domain.Seniority `json:"seniority"`
}

// UpdateUser replaces a user's mutable attributes. UserID is the sole
// lookup key; initials may change freely through this command.
type UpdateUser struct {
	YearValue int              `json:"year,omitempty"`
	UserID    int64            `json:"user_id"`
	Initials  domain.Initials  `json:"initials"`
	Name      string           `json:"name"`
	AreaID    int64            `json:"area_id"`
	UserType  domain.UserType  `json:"user_type"`
	Crew      int              `json:"crew,omitempty"`
	Seniority domain.Seniority `json:"seniority"`
}

// UpdateUserParticipation sets the participation flags, subject to the
// directional invariant (leave-calc exclusion implies bidding exclusion).
type UpdateUserParticipation struct {
	YearValue             int   `json:"year,omitempty"`
	UserID                int64 `json:"user_id"`
	ExcludedFromBidding   bool  `json:"excluded_from_bidding"`
	ExcludedFromLeaveCalc bool  `json:"excluded_from_leave_calculation"`
	NoBidReviewed         bool  `json:"no_bid_reviewed"`
}

// LockStructure advances Draft → StructureLocked.
type LockStructure struct {
	YearValue int `json:"year"`
}

// Canonicalize advances StructureLocked → Canonicalized. This is the
// irreversible transition: readiness must hold, and bid order plus bid
// windows are materialized into frozen canonical rows.
type Canonicalize struct {
	YearValue int `json:"year"`
}

// OpenBidding advances Canonicalized → BiddingActive.
type OpenBidding struct {
	YearValue int `json:"year"`
}

// CloseBidding advances BiddingActive → BiddingClosed.
type CloseBidding struct {
	YearValue int `json:"year"`
}

// OverrideAreaAssignment moves a user after canonicalization. Explicitly
// audited; does not touch seniority inputs.
type OverrideAreaAssignment struct {
	YearValue int    `json:"year,omitempty"`
	UserID    int64  `json:"user_id"`
	NewAreaID int64  `json:"new_area_id"`
	Reason    string `json:"reason"`
}

// OverrideEligibility flips a user's bidding eligibility after
// canonicalization.
type OverrideEligibility struct {
	YearValue int    `json:"year,omitempty"`
	UserID    int64  `json:"user_id"`
	CanBid    bool   `json:"can_bid"`
	Reason    string `json:"reason"`
}

// OverrideBidOrder manually adjusts a frozen rank. Zero clears it. This is
// the only post-canonicalization path to a rank change; the ordering
// algorithm is never re-invoked.
type OverrideBidOrder struct {
	YearValue int    `json:"year,omitempty"`
	UserID    int64  `json:"user_id"`
	BidOrder  int    `json:"bid_order,omitempty"`
	Reason    string `json:"reason"`
}

// OverrideBidWindow manually adjusts a frozen window. Zero times clear it.
type OverrideBidWindow struct {
	YearValue   int       `json:"year,omitempty"`
	UserID      int64     `json:"user_id"`
	WindowStart time.Time `json:"window_start,omitempty"`
	WindowEnd   time.Time `json:"window_end,omitempty"`
	Reason      string    `json:"reason"`
}

// Checkpoint records an explicit snapshot point. It mutates nothing but is
// audited like any other command so the snapshot's existence is explainable.
type Checkpoint struct {
	YearValue int `json:"year,omitempty"`
}

// RollbackToEvent establishes a prior event as authoritative going forward.
// History is never deleted: the rollback itself is a new audit event whose
// after-state is the reconstructed state at TargetSeq.
type RollbackToEvent struct {
	YearValue int   `json:"year,omitempty"`
	TargetSeq int64 `json:"target_seq"`
}

func (c CreateBidYear) Kind() domain.CommandKind           { return domain.KindCreateBidYear }
func (c SetActiveBidYear) Kind() domain.CommandKind        { return domain.KindSetActiveBidYear }
func (c SetExpectedAreaCount) Kind() domain.CommandKind    { return domain.KindSetExpectedAreaCount }
func (c CreateArea) Kind() domain.CommandKind              { return domain.KindCreateArea }
func (c SetExpectedUserCount) Kind() domain.CommandKind    { return domain.KindSetExpectedUserCount }
func (c ConfigureRound) Kind() domain.CommandKind          { return domain.KindConfigureRound }
func (c RegisterUser) Kind() domain.CommandKind            { return domain.KindRegisterUser }
func (c UpdateUser) Kind() domain.CommandKind              { return domain.KindUpdateUser }
func (c UpdateUserParticipation) Kind() domain.CommandKind { return domain.KindUpdateParticipation }
func (c LockStructure) Kind() domain.CommandKind           { return domain.KindLockStructure }
func (c Canonicalize) Kind() domain.CommandKind            { return domain.KindCanonicalize }
func (c OpenBidding) Kind() domain.CommandKind             { return domain.KindOpenBidding }
func (c CloseBidding) Kind() domain.CommandKind            { return domain.KindCloseBidding }
func (c OverrideAreaAssignment) Kind() domain.CommandKind  { return domain.KindOverrideAreaAssignment }
func (c OverrideEligibility) Kind() domain.CommandKind     { return domain.KindOverrideEligibility }
func (c OverrideBidOrder) Kind() domain.CommandKind        { return domain.KindOverrideBidOrder }
func (c OverrideBidWindow) Kind() domain.CommandKind       { return domain.KindOverrideBidWindow }
func (c Checkpoint) Kind() domain.CommandKind              { return domain.KindCheckpoint }
func (c RollbackToEvent) Kind() domain.CommandKind         { return domain.KindRollbackToEvent }

func (c CreateBidYear) Year() int           { return c.YearValue }
func (c SetActiveBidYear) Year() int        { return c.YearValue }
func (c SetExpectedAreaCount) Year() int    { return c.YearValue }
func (c CreateArea) Year() int              { return c.YearValue }
func (c SetExpectedUserCount) Year() int    { return c.YearValue }
func (c ConfigureRound) Year() int          { return c.YearValue }
func (c RegisterUser) Year() int            { return c.YearValue }
func (c UpdateUser) Year() int              { return c.YearValue }
func (c UpdateUserParticipation) Year() int { return c.YearValue }
func (c LockStructure) Year() int           { return c.YearValue }
func (c Canonicalize) Year() int            { return c.YearValue }
func (c OpenBidding) Year() int             { return c.YearValue }
func (c CloseBidding) Year() int            { return c.YearValue }
func (c OverrideAreaAssignment) Year() int  { return c.YearValue }
func (c OverrideEligibility) Year() int     { return c.YearValue }
func (c OverrideBidOrder) Year() int        { return c.YearValue }
func (c OverrideBidWindow) Year() int       { return c.YearValue }
func (c Checkpoint) Year() int              { return c.YearValue }
func (c RollbackToEvent) Year() int         { return c.YearValue }

func (CreateBidYear) isCommand()           {}
func (SetActiveBidYear) isCommand()        {}
func (SetExpectedAreaCount) isCommand()    {}
func (CreateArea) isCommand()              {}
func (SetExpectedUserCount) isCommand()    {}
func (ConfigureRound) isCommand()          {}
func (RegisterUser) isCommand()            {}
func (UpdateUser) isCommand()              {}
func (UpdateUserParticipation) isCommand() {}
func (LockStructure) isCommand()           {}
func (Canonicalize) isCommand()            {}
func (OpenBidding) isCommand()             {}
func (CloseBidding) isCommand()            {}
func (OverrideAreaAssignment) isCommand()  {}
func (OverrideEligibility) isCommand()     {}
func (OverrideBidOrder) isCommand()        {}
func (OverrideBidWindow) isCommand()       {}
func (Checkpoint) isCommand()              {}
func (RollbackToEvent) isCommand()         {}
