package domain

// Stage is the forward-only lifecycle position of a bid year. Stages only
// ever advance, one step at a time, each via an explicit command that emits
// its own audit event. No stage is re-entered and no transition is
// time-triggered.
type Stage int

const (
	// StageDraft is the bootstrap stage: structure (areas, users, rounds)
	// is still being assembled.
	StageDraft Stage = iota
	// StageStructureLocked freezes the entity set; mutable attributes and
	// round config may still change.
	StageStructureLocked
	// StageCanonicalized is the irreversible point: bid order and bid
	// windows are materialized into frozen canonical rows.
	StageCanonicalized
	// StageBiddingActive is the window in which rounds run.
	StageBiddingActive
	// StageBiddingClosed is terminal.
	StageBiddingClosed
)

var stageNames = map[Stage]string{
	StageDraft:           "draft",
	StageStructureLocked: "structure_locked",
	StageCanonicalized:   "canonicalized",
	StageBiddingActive:   "bidding_active",
	StageBiddingClosed:   "bidding_closed",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStage parses the persisted representation of a stage.
func ParseStage(s string) (Stage, error) {
	for stage, name := range stageNames {
		if name == s {
			return stage, nil
		}
	}
	return 0, Errorf(RuleLifecycleInadmissible, "unknown lifecycle stage %q", s)
}

// Next returns the sole legal successor stage. ok is false at the terminal
// stage.
func (s Stage) Next() (Stage, bool) {
	if s >= StageBiddingClosed {
		return s, false
	}
	return s + 1, true
}

// CommandKind tags each command variant for lifecycle admissibility checks.
// The set is closed: adding a kind means revisiting Admits for every stage.
type CommandKind string

const (
	KindCreateBidYear          CommandKind = "CreateBidYear"
	KindSetActiveBidYear       CommandKind = "SetActiveBidYear"
	KindSetExpectedAreaCount   CommandKind = "SetExpectedAreaCount"
	KindCreateArea             CommandKind = "CreateArea"
	KindSetExpectedUserCount   CommandKind = "SetExpectedUserCount"
	KindConfigureRound         CommandKind = "ConfigureRound"
	KindRegisterUser           CommandKind = "RegisterUser"
	KindUpdateUser             CommandKind = "UpdateUser"
	KindUpdateParticipation    CommandKind = "UpdateUserParticipation"
	KindLockStructure          CommandKind = "LockStructure"
	KindCanonicalize           CommandKind = "Canonicalize"
	KindOpenBidding            CommandKind = "OpenBidding"
	KindCloseBidding           CommandKind = "CloseBidding"
	KindOverrideAreaAssignment CommandKind = "OverrideAreaAssignment"
	KindOverrideEligibility    CommandKind = "OverrideEligibility"
	KindOverrideBidOrder       CommandKind = "OverrideBidOrder"
	KindOverrideBidWindow      CommandKind = "OverrideBidWindow"
	KindCheckpoint             CommandKind = "Checkpoint"
	KindRollbackToEvent        CommandKind = "RollbackToEvent"
)

// Admits reports whether a command kind is legal in this stage. The table
// is deliberately a closed switch per stage with no default-allow: a kind
// not named here is denied. CreateBidYear and SetActiveBidYear are
// bootstrap commands validated before any stage gate and never consult
// this table.
func (s Stage) Admits(k CommandKind) bool {
	switch s {
	case StageDraft:
		switch k {
		case KindSetExpectedAreaCount, KindCreateArea,
			KindSetExpectedUserCount, KindConfigureRound, KindRegisterUser,
			KindUpdateUser, KindUpdateParticipation, KindLockStructure,
			KindCheckpoint, KindRollbackToEvent:
			return true
		}
	case StageStructureLocked:
		switch k {
		case KindUpdateUser, KindUpdateParticipation, KindConfigureRound,
			KindCanonicalize, KindCheckpoint, KindRollbackToEvent:
			return true
		}
	case StageCanonicalized:
		switch k {
		case KindOverrideAreaAssignment, KindOverrideEligibility,
			KindOverrideBidOrder, KindOverrideBidWindow, KindOpenBidding,
			KindCheckpoint, KindRollbackToEvent:
			return true
		}
	case StageBiddingActive:
		switch k {
		case KindOverrideEligibility, KindOverrideBidOrder,
			KindOverrideBidWindow, KindCloseBidding, KindCheckpoint:
			return true
		}
	case StageBiddingClosed:
		return k == KindCheckpoint
	}
	return false
}
