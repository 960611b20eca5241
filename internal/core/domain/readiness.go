package domain

import "fmt"

// AreaReadiness is the computed readiness of one area.
type AreaReadiness struct {
	AreaCode        string   `json:"area_code"`
	SystemArea      bool     `json:"system_area"`
	UserCount       int      `json:"user_count"`
	BlockingReasons []string `json:"blocking_reasons,omitempty"`
}

// Ready reports whether nothing blocks this area.
func (a AreaReadiness) Ready() bool { return len(a.BlockingReasons) == 0 }

// ReadinessReport is the computed readiness of a whole bid year. Readiness
// is never stored: it is a pure function of current canonical state,
// re-evaluated on demand and again at the canonicalization transition.
type ReadinessReport struct {
	Year    int             `json:"year"`
	Ready   bool            `json:"ready"`
	Areas   []AreaReadiness `json:"areas"`
	Overall []string        `json:"overall_blocking_reasons,omitempty"`
}

// EvaluateAreaReadiness computes blocking reasons for one area:
// missing round config (non-system areas), unreviewed users parked in a
// system area, participation-flag violations, seniority conflicts, and
// expected-count mismatches.
func EvaluateAreaReadiness(area Area, users []User, hasRounds bool) AreaReadiness {
	r := AreaReadiness{
		AreaCode:   area.Code,
		SystemArea: area.SystemArea,
		UserCount:  len(users),
	}

	if !area.SystemArea && !hasRounds {
		r.BlockingReasons = append(r.BlockingReasons,
			fmt.Sprintf("area %q has no rounds configured", area.Code))
	}

	if area.SystemArea {
		unreviewed := 0
		for _, u := range users {
			if !u.NoBidReviewed {
				unreviewed++
			}
		}
		if unreviewed > 0 {
			r.BlockingReasons = append(r.BlockingReasons,
				fmt.Sprintf("%d users in system area %q have not been reviewed", unreviewed, area.Code))
		}
	}

	violations := 0
	for _, u := range users {
		if ValidateParticipationFlags(u) != nil {
			violations++
		}
	}
	if violations > 0 {
		r.BlockingReasons = append(r.BlockingReasons,
			fmt.Sprintf("%d users violate the participation flag invariant", violations))
	}

	// System areas hold non-bidders; ordering does not apply there.
	if !area.SystemArea {
		if _, err := ComputeBidOrder(users); err != nil {
			if de, ok := AsError(err); ok {
				r.BlockingReasons = append(r.BlockingReasons,
					fmt.Sprintf("seniority conflict in area %q: %s", area.Code, de.Message))
			}
		}
	}

	if area.ExpectedUserCount > 0 && len(users) != area.ExpectedUserCount {
		r.BlockingReasons = append(r.BlockingReasons,
			fmt.Sprintf("area %q has %d users, expected %d", area.Code, len(users), area.ExpectedUserCount))
	}

	return r
}

// EvaluateReadiness computes the full readiness report for a bid year.
// usersByArea and roundsByArea are keyed by canonical area ID.
func EvaluateReadiness(year BidYear, areas []Area, usersByArea map[int64][]User, roundsByArea map[int64][]RoundConfig) ReadinessReport {
	report := ReadinessReport{Year: year.Year, Ready: true}

	if year.ExpectedAreaCount > 0 && len(areas) != year.ExpectedAreaCount {
		report.Overall = append(report.Overall,
			fmt.Sprintf("bid year has %d areas, expected %d", len(areas), year.ExpectedAreaCount))
	}

	for _, area := range areas {
		ar := EvaluateAreaReadiness(area, usersByArea[area.ID], len(roundsByArea[area.ID]) > 0)
		report.Areas = append(report.Areas, ar)
		if !ar.Ready() {
			report.Ready = false
		}
	}
	if len(report.Overall) > 0 {
		report.Ready = false
	}
	return report
}
