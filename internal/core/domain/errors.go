package domain

import (
	"errors"
	"fmt"
)

// Rule names surfaced in rejections. The intake layer maps these to HTTP
// statuses; tests assert on them. Names are stable API.
const (
	RuleInvalidBidYear         = "invalid_bid_year"
	RuleDuplicateBidYear       = "duplicate_bid_year"
	RuleBidYearNotFound        = "bid_year_not_found"
	RuleNoActiveBidYear        = "no_active_bid_year"
	RuleDuplicateActiveBidYear = "duplicate_active_bid_year"
	RuleInvalidPayPeriodCount  = "invalid_pay_period_count"
	RuleDuplicateArea          = "duplicate_area"
	RuleAreaNotFound           = "area_not_found"
	RuleDuplicateInitials      = "duplicate_initials"
	RuleUserNotFound           = "user_not_found"
	RuleMissingCanonicalID     = "missing_canonical_id"
	RuleInvalidInitials        = "invalid_initials"
	RuleInvalidUserName        = "invalid_user_name"
	RuleInvalidUserType        = "invalid_user_type"
	RuleInvalidCrew            = "invalid_crew"
	RuleInvalidSeniority       = "invalid_seniority"
	RuleLifecycleInadmissible  = "lifecycle_inadmissible"
	RuleLifecycleNotSequential = "lifecycle_not_sequential"
	RuleParticipationFlags     = "participation_flag_violation"
	RuleSeniorityConflict      = "seniority_conflict"
	RuleReasonTooShort         = "reason_too_short"
	RuleInvalidRoundConfig     = "invalid_round_config"
	RuleInvalidTimezone        = "invalid_timezone"
	RuleNotReady               = "bid_year_not_ready"
	RuleRollbackTargetNotFound = "rollback_target_not_found"
	RuleExpectedCountInvalid   = "expected_count_invalid"
)

// Error is a structured domain-rule rejection. Every validation failure
// names the violated rule plus the minimal context needed to correct the
// input. Domain errors never imply state changed.
type Error struct {
	Rule    string
	Message string
	Context map[string]any
}

func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return fmt.Sprintf("%s: %s", e.Rule, e.Message)
	}
	return fmt.Sprintf("%s: %s %v", e.Rule, e.Message, e.Context)
}

// Errorf builds a domain error with a formatted message and no context.
func Errorf(rule, format string, args ...any) *Error {
	return &Error{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// ErrorWithContext builds a domain error carrying correction context.
func ErrorWithContext(rule, message string, ctx map[string]any) *Error {
	return &Error{Rule: rule, Message: message, Context: ctx}
}

// AsError unwraps a domain error from an error chain, if present.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsRule reports whether err is a domain error for the given rule.
func IsRule(err error, rule string) bool {
	de, ok := AsError(err)
	return ok && de.Rule == rule
}
