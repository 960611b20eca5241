package domain

import (
	"fmt"
	"strings"
	"time"
)

// BidYear is the canonical definition of one bidding cycle. A bid year is
// the partition scope for audit sequencing: everything a command touches is
// scoped to exactly one bid year.
type BidYear struct {
	// ID is the canonical identifier assigned by persistence.
	// Zero until the row is first written.
	ID int64 `json:"bid_year_id"`

	// Year is the year label (e.g. 2026). Unique across the system.
	Year int `json:"year"`

	// StartDate is the first day of the bid year (inclusive).
	StartDate time.Time `json:"start_date"`

	// NumPayPeriods is 26 or 27. End date and pay periods are derived,
	// never stored.
	NumPayPeriods int `json:"num_pay_periods"`

	// Active marks the one bid year commands without an explicit year
	// default to. At most one bid year is active at a time; the validator
	// enforces this, not in-memory state.
	Active bool `json:"active"`

	// ExpectedAreaCount is the operator-declared structure target used by
	// readiness evaluation. Zero means not declared yet.
	ExpectedAreaCount int `json:"expected_area_count,omitempty"`

	// Stage is the forward-only lifecycle stage.
	Stage Stage `json:"lifecycle_stage"`
}

// EndDate derives the last day of the bid year (inclusive):
// StartDate + NumPayPeriods*14 days - 1 day.
func (y BidYear) EndDate() time.Time {
	return y.StartDate.AddDate(0, 0, y.NumPayPeriods*14-1)
}

// PayPeriod is one bi-weekly slice of a bid year, derived deterministically
// from the canonical definition.
type PayPeriod struct {
	Index     int       `json:"index"` // 1-based
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"` // inclusive
}

// PayPeriods derives all pay periods for the bid year. Periods are
// contiguous, non-overlapping, and exactly 14 days each.
func (y BidYear) PayPeriods() []PayPeriod {
	periods := make([]PayPeriod, 0, y.NumPayPeriods)
	for i := 1; i <= y.NumPayPeriods; i++ {
		start := y.StartDate.AddDate(0, 0, (i-1)*14)
		periods = append(periods, PayPeriod{
			Index:     i,
			StartDate: start,
			EndDate:   start.AddDate(0, 0, 13),
		})
	}
	return periods
}

// Area is an organizational unit within a bid year. Users belong to exactly
// one area; bid order is computed per area.
type Area struct {
	ID        int64 `json:"area_id"`
	BidYearID int64 `json:"bid_year_id"`

	// Code is the short label (e.g. "NORTH"), unique per bid year,
	// normalized to uppercase. Display metadata, never identity.
	Code string `json:"area_code"`

	Name string `json:"area_name,omitempty"`

	// SystemArea areas (e.g. a "No Bid" pool) hold users who do not bid;
	// they are excluded from ordering and do not require round config.
	SystemArea bool `json:"system_area"`

	// ExpectedUserCount is the declared structure target for readiness.
	ExpectedUserCount int `json:"expected_user_count,omitempty"`
}

// NormalizeAreaCode uppercases an area code so uniqueness is
// case-insensitive.
func NormalizeAreaCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Initials are a user's two-character display tag, unique per bid year.
// They are mutable metadata: lookups by initials are confined to ingress
// boundaries and never reach a mutation path.
type Initials string

// NewInitials normalizes initials to uppercase.
func NewInitials(v string) Initials {
	return Initials(strings.ToUpper(strings.TrimSpace(v)))
}

// UserType is a fixed classification set.
type UserType string

const (
	UserTypeCPC   UserType = "CPC"
	UserTypeCPCIT UserType = "CPC-IT"
	UserTypeDevR  UserType = "Dev-R"
	UserTypeDevD  UserType = "Dev-D"
)

// ParseUserType parses the wire representation of a user type.
func ParseUserType(s string) (UserType, error) {
	switch UserType(s) {
	case UserTypeCPC, UserTypeCPCIT, UserTypeDevR, UserTypeDevD:
		return UserType(s), nil
	default:
		return "", Errorf(RuleInvalidUserType, "unknown user type %q", s)
	}
}

// Seniority carries the inputs to bid order computation. The four dates are
// compared earliest-first in declaration order; Lottery is the final
// deterministic tie-breaker.
type Seniority struct {
	CumulativeBUDate time.Time `json:"cumulative_bu_date"`
	BUDate           time.Time `json:"bu_date"`
	EODDate          time.Time `json:"eod_date"`
	SCDDate          time.Time `json:"scd_date"`

	// Lottery is the tie-break value; lowest wins. Zero means unassigned.
	Lottery int `json:"lottery,omitempty"`
}

// User is one participant in a bid year. UserID is the sole canonical
// identifier; initials and name are mutable display metadata.
type User struct {
	ID        int64 `json:"user_id"`
	BidYearID int64 `json:"bid_year_id"`
	AreaID    int64 `json:"area_id"`

	Initials Initials  `json:"initials"`
	Name     string    `json:"name"`
	Type     UserType  `json:"user_type"`
	Crew     int       `json:"crew,omitempty"` // 1-7, zero = unassigned
	Senior   Seniority `json:"seniority"`

	// Participation flags. Directional invariant:
	// ExcludedFromLeaveCalc == true implies ExcludedFromBidding == true.
	ExcludedFromBidding   bool `json:"excluded_from_bidding"`
	ExcludedFromLeaveCalc bool `json:"excluded_from_leave_calculation"`

	// NoBidReviewed records operator sign-off for users parked in a
	// system area.
	NoBidReviewed bool `json:"no_bid_reviewed"`

	// BidOrder is the frozen rank, materialized at canonicalization.
	// Zero until then.
	BidOrder int `json:"bid_order,omitempty"`

	// WindowStart/WindowEnd are the frozen bid window (UTC), materialized
	// at canonicalization.
	WindowStart time.Time `json:"window_start,omitempty"`
	WindowEnd   time.Time `json:"window_end,omitempty"`
}

// RoundConfig declares how one bidding round runs for an area. Round 1's
// schedule drives bid window materialization at canonicalization.
type RoundConfig struct {
	ID          int64 `json:"round_id"`
	BidYearID   int64 `json:"bid_year_id"`
	AreaID      int64 `json:"area_id"`
	RoundNumber int   `json:"round_number"`

	// StartDate is the first bidding day. Must be a Monday.
	StartDate time.Time `json:"start_date"`

	BiddersPerDay int `json:"bidders_per_day"`

	// WindowStart/WindowEnd are wall-clock times-of-day in Timezone,
	// expressed as offsets from midnight.
	WindowStart time.Duration `json:"window_start"`
	WindowEnd   time.Duration `json:"window_end"`

	// Timezone is an IANA zone name (e.g. "America/New_York"). Windows
	// are computed in this zone and stored as UTC.
	Timezone string `json:"timezone"`
}

func (r RoundConfig) String() string {
	return fmt.Sprintf("round %d area=%d bidders/day=%d", r.RoundNumber, r.AreaID, r.BiddersPerDay)
}
