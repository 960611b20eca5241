package domain

import "unicode"

// MinOverrideReasonLen is the shortest acceptable justification for a
// post-canonicalization override.
const MinOverrideReasonLen = 10

// ValidateBidYearValue checks that a year label is plausible.
func ValidateBidYearValue(year int) error {
	if year < 1990 || year > 2200 {
		return Errorf(RuleInvalidBidYear, "year %d out of range 1990-2200", year)
	}
	return nil
}

// ValidatePayPeriodCount checks the 26/27 pay period constraint.
func ValidatePayPeriodCount(n int) error {
	if n != 26 && n != 27 {
		return Errorf(RuleInvalidPayPeriodCount, "num_pay_periods must be 26 or 27, got %d", n)
	}
	return nil
}

// ValidateInitials checks the two-letter initials format. Normalization to
// uppercase happens in NewInitials; this only rejects malformed values.
func ValidateInitials(ini Initials) error {
	if len(ini) != 2 {
		return Errorf(RuleInvalidInitials, "initials must be exactly 2 characters, got %q", string(ini))
	}
	for _, r := range string(ini) {
		if !unicode.IsLetter(r) {
			return Errorf(RuleInvalidInitials, "initials must be letters, got %q", string(ini))
		}
	}
	return nil
}

// ValidateUserFields checks per-user field constraints that do not depend
// on other users.
func ValidateUserFields(u User) error {
	if err := ValidateInitials(u.Initials); err != nil {
		return err
	}
	if u.Name == "" {
		return Errorf(RuleInvalidUserName, "user name is required")
	}
	if _, err := ParseUserType(string(u.Type)); err != nil {
		return err
	}
	if u.Crew < 0 || u.Crew > 7 {
		return Errorf(RuleInvalidCrew, "crew must be 1-7 or unassigned, got %d", u.Crew)
	}
	if u.Senior.CumulativeBUDate.IsZero() || u.Senior.BUDate.IsZero() ||
		u.Senior.EODDate.IsZero() || u.Senior.SCDDate.IsZero() {
		return Errorf(RuleInvalidSeniority, "all four seniority dates are required")
	}
	return ValidateParticipationFlags(u)
}

// ValidateParticipationFlags enforces the directional invariant:
// a user excluded from leave calculation must also be excluded from
// bidding. The reverse is not required.
func ValidateParticipationFlags(u User) error {
	if u.ExcludedFromLeaveCalc && !u.ExcludedFromBidding {
		return ErrorWithContext(RuleParticipationFlags,
			"excluded_from_leave_calculation requires excluded_from_bidding",
			map[string]any{"user_id": u.ID, "initials": string(u.Initials)})
	}
	return nil
}

// ValidateInitialsUnique checks initials uniqueness within a bid year.
// selfID exempts the user being updated from colliding with itself.
func ValidateInitialsUnique(ini Initials, users []User, selfID int64) error {
	for _, u := range users {
		if u.Initials == ini && u.ID != selfID {
			return ErrorWithContext(RuleDuplicateInitials,
				"initials already registered in this bid year",
				map[string]any{"initials": string(ini)})
		}
	}
	return nil
}

// ValidateOverrideReason enforces the minimum justification length on
// override commands.
func ValidateOverrideReason(reason string) error {
	if len(reason) < MinOverrideReasonLen {
		return Errorf(RuleReasonTooShort,
			"override reason must be at least %d characters", MinOverrideReasonLen)
	}
	return nil
}
