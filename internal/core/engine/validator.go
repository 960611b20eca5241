package engine

import (
	"time"

	"github.com/bidline-lab/bidline/internal/core/command"
	"github.com/bidline-lab/bidline/internal/core/domain"
	"github.com/bidline-lab/bidline/internal/core/state"
)

// Validate checks a command against domain invariants, uniqueness
// constraints, identifier presence, and lifecycle admissibility. It has no
// side effects: a rejection here guarantees the applier never runs and
// state is untouched.
//
// st is nil only for CreateBidYear, which targets a partition that does
// not exist yet. years is the bid-year index used for bootstrap-level
// rules (duplicate years, the at-most-one-active constraint).
func Validate(cmd command.Command, st *state.State, headSeq int64, years []domain.BidYear) error {
	// Bootstrap commands: these address the bid-year index rather than
	// the inside of a partition, so the stage table does not apply.
	// SetActiveBidYear may run in any stage; a year released by
	// CloseBidding can be reactivated for audit review.
	switch c := cmd.(type) {
	case command.CreateBidYear:
		return validateCreateBidYear(c, years)
	case command.SetActiveBidYear:
		return validateSetActiveBidYear(c, st, years)
	}

	// Everything below operates inside an existing partition and is
	// gated by the lifecycle stage table.
	if !st.Year.Stage.Admits(cmd.Kind()) {
		return domain.ErrorWithContext(domain.RuleLifecycleInadmissible,
			"command is not admissible in the current lifecycle stage",
			map[string]any{
				"command": string(cmd.Kind()),
				"stage":   st.Year.Stage.String(),
				"year":    st.Year.Year,
			})
	}

	switch c := cmd.(type) {
	case command.SetExpectedAreaCount:
		if c.Count <= 0 {
			return domain.Errorf(domain.RuleExpectedCountInvalid, "expected area count must be positive, got %d", c.Count)
		}
	case command.CreateArea:
		return validateCreateArea(c, st)
	case command.SetExpectedUserCount:
		if c.AreaID == 0 {
			return missingID("area_id")
		}
		if _, ok := st.AreaByID(c.AreaID); !ok {
			return areaNotFound(c.AreaID, st)
		}
		if c.Count <= 0 {
			return domain.Errorf(domain.RuleExpectedCountInvalid, "expected user count must be positive, got %d", c.Count)
		}
	case command.ConfigureRound:
		return validateConfigureRound(c, st)
	case command.RegisterUser:
		return validateRegisterUser(c, st)
	case command.UpdateUser:
		return validateUpdateUser(c, st)
	case command.UpdateUserParticipation:
		return validateParticipation(c, st)
	case command.LockStructure, command.Canonicalize, command.OpenBidding, command.CloseBidding:
		// Stage sequencing is fully expressed by the admissibility
		// table; Canonicalize additionally requires readiness.
		if _, ok := cmd.(command.Canonicalize); ok {
			return validateReadiness(st)
		}
	case command.OverrideAreaAssignment:
		if err := requireUser(c.UserID, st); err != nil {
			return err
		}
		if c.NewAreaID == 0 {
			return missingID("new_area_id")
		}
		if _, ok := st.AreaByID(c.NewAreaID); !ok {
			return areaNotFound(c.NewAreaID, st)
		}
		return domain.ValidateOverrideReason(c.Reason)
	case command.OverrideEligibility:
		if err := requireUser(c.UserID, st); err != nil {
			return err
		}
		// Re-admitting a user to bidding must not leave the leave-calc
		// exclusion standing on its own.
		prev, _ := st.UserByID(c.UserID)
		u := *prev
		u.ExcludedFromBidding = !c.CanBid
		if err := domain.ValidateParticipationFlags(u); err != nil {
			return err
		}
		return domain.ValidateOverrideReason(c.Reason)
	case command.OverrideBidOrder:
		if err := requireUser(c.UserID, st); err != nil {
			return err
		}
		if c.BidOrder < 0 {
			return domain.Errorf(domain.RuleExpectedCountInvalid, "bid order must be positive or zero to clear, got %d", c.BidOrder)
		}
		return domain.ValidateOverrideReason(c.Reason)
	case command.OverrideBidWindow:
		if err := requireUser(c.UserID, st); err != nil {
			return err
		}
		if !c.WindowStart.IsZero() && !c.WindowEnd.IsZero() && !c.WindowEnd.After(c.WindowStart) {
			return domain.Errorf(domain.RuleInvalidRoundConfig, "window end must be after window start")
		}
		return domain.ValidateOverrideReason(c.Reason)
	case command.Checkpoint:
		// Always admissible once the stage table allows it.
	case command.RollbackToEvent:
		if c.TargetSeq < 1 || c.TargetSeq > headSeq {
			return domain.ErrorWithContext(domain.RuleRollbackTargetNotFound,
				"rollback target sequence does not exist in this partition",
				map[string]any{"target_seq": c.TargetSeq, "head_seq": headSeq})
		}
	}
	return nil
}

func validateCreateBidYear(c command.CreateBidYear, years []domain.BidYear) error {
	if err := domain.ValidateBidYearValue(c.YearValue); err != nil {
		return err
	}
	if err := domain.ValidatePayPeriodCount(c.NumPayPeriods); err != nil {
		return err
	}
	if c.StartDate.IsZero() {
		return domain.Errorf(domain.RuleInvalidBidYear, "start_date is required")
	}
	for _, y := range years {
		if y.Year == c.YearValue {
			return domain.ErrorWithContext(domain.RuleDuplicateBidYear,
				"bid year already exists", map[string]any{"year": c.YearValue})
		}
	}
	return nil
}

func validateSetActiveBidYear(c command.SetActiveBidYear, st *state.State, years []domain.BidYear) error {
	if st == nil || st.Year.Year != c.YearValue {
		return domain.ErrorWithContext(domain.RuleBidYearNotFound,
			"bid year does not exist", map[string]any{"year": c.YearValue})
	}
	// At most one active bid year, enforced here rather than by any
	// in-memory singleton. A year stops being active when bidding closes.
	for _, y := range years {
		if y.Active && y.Year != c.YearValue {
			return domain.ErrorWithContext(domain.RuleDuplicateActiveBidYear,
				"another bid year is already active",
				map[string]any{"active_year": y.Year, "requested_year": c.YearValue})
		}
	}
	return nil
}

func validateCreateArea(c command.CreateArea, st *state.State) error {
	code := domain.NormalizeAreaCode(c.AreaCode)
	if code == "" {
		return domain.Errorf(domain.RuleAreaNotFound, "area_code is required")
	}
	if _, exists := st.AreaByCode(code); exists {
		return domain.ErrorWithContext(domain.RuleDuplicateArea,
			"area code already exists in this bid year",
			map[string]any{"area_code": code, "year": st.Year.Year})
	}
	return nil
}

func validateConfigureRound(c command.ConfigureRound, st *state.State) error {
	if c.AreaID == 0 {
		return missingID("area_id")
	}
	if _, ok := st.AreaByID(c.AreaID); !ok {
		return areaNotFound(c.AreaID, st)
	}
	if c.RoundNumber < 1 {
		return domain.Errorf(domain.RuleInvalidRoundConfig, "round_number must be >= 1, got %d", c.RoundNumber)
	}
	if c.BiddersPerDay <= 0 {
		return domain.Errorf(domain.RuleInvalidRoundConfig, "bidders_per_day must be positive, got %d", c.BiddersPerDay)
	}
	if c.WindowEnd <= c.WindowStart {
		return domain.Errorf(domain.RuleInvalidRoundConfig, "window end must be after window start")
	}
	if c.StartDate.IsZero() {
		return domain.Errorf(domain.RuleInvalidRoundConfig, "start_date is required")
	}
	if c.StartDate.Weekday() != time.Monday {
		return domain.Errorf(domain.RuleInvalidRoundConfig, "round start_date must be a Monday")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return domain.Errorf(domain.RuleInvalidTimezone, "unknown timezone %q", c.Timezone)
	}
	return nil
}

func validateRegisterUser(c command.RegisterUser, st *state.State) error {
	if c.AreaID == 0 {
		return missingID("area_id")
	}
	if _, ok := st.AreaByID(c.AreaID); !ok {
		return areaNotFound(c.AreaID, st)
	}
	u := domain.User{
		BidYearID: st.Year.ID,
		AreaID:    c.AreaID,
		Initials:  domain.NewInitials(string(c.Initials)),
		Name:      c.Name,
		Type:      c.UserType,
		Crew:      c.Crew,
		Senior:    c.Seniority,
	}
	if err := domain.ValidateUserFields(u); err != nil {
		return err
	}
	return domain.ValidateInitialsUnique(u.Initials, st.Users, 0)
}

func validateUpdateUser(c command.UpdateUser, st *state.State) error {
	if err := requireUser(c.UserID, st); err != nil {
		return err
	}
	if c.AreaID == 0 {
		return missingID("area_id")
	}
	if _, ok := st.AreaByID(c.AreaID); !ok {
		return areaNotFound(c.AreaID, st)
	}
	prev, _ := st.UserByID(c.UserID)
	u := *prev
	u.Initials = domain.NewInitials(string(c.Initials))
	u.Name = c.Name
	u.AreaID = c.AreaID
	u.Type = c.UserType
	u.Crew = c.Crew
	u.Senior = c.Seniority
	if err := domain.ValidateUserFields(u); err != nil {
		return err
	}
	return domain.ValidateInitialsUnique(u.Initials, st.Users, c.UserID)
}

func validateParticipation(c command.UpdateUserParticipation, st *state.State) error {
	if err := requireUser(c.UserID, st); err != nil {
		return err
	}
	prev, _ := st.UserByID(c.UserID)
	u := *prev
	u.ExcludedFromBidding = c.ExcludedFromBidding
	u.ExcludedFromLeaveCalc = c.ExcludedFromLeaveCalc
	return domain.ValidateParticipationFlags(u)
}

func validateReadiness(st *state.State) error {
	usersByArea := make(map[int64][]domain.User)
	roundsByArea := make(map[int64][]domain.RoundConfig)
	for _, a := range st.Areas {
		usersByArea[a.ID] = st.UsersInArea(a.ID)
		roundsByArea[a.ID] = st.RoundsForArea(a.ID)
	}
	report := domain.EvaluateReadiness(st.Year, st.Areas, usersByArea, roundsByArea)
	if report.Ready {
		return nil
	}
	reasons := append([]string(nil), report.Overall...)
	for _, a := range report.Areas {
		reasons = append(reasons, a.BlockingReasons...)
	}
	return domain.ErrorWithContext(domain.RuleNotReady,
		"bid year is not ready for canonicalization",
		map[string]any{"blocking_reasons": reasons})
}

func requireUser(userID int64, st *state.State) error {
	if userID == 0 {
		return missingID("user_id")
	}
	if _, ok := st.UserByID(userID); !ok {
		return domain.ErrorWithContext(domain.RuleUserNotFound,
			"no user with this canonical identifier in this bid year",
			map[string]any{"user_id": userID, "year": st.Year.Year})
	}
	return nil
}

func missingID(field string) error {
	return domain.ErrorWithContext(domain.RuleMissingCanonicalID,
		"canonical identifier is required; lookups by display value are not permitted",
		map[string]any{"field": field})
}

func areaNotFound(areaID int64, st *state.State) error {
	return domain.ErrorWithContext(domain.RuleAreaNotFound,
		"no area with this canonical identifier in this bid year",
		map[string]any{"area_id": areaID, "year": st.Year.Year})
}
