package domain

import (
	"sort"
	"time"
)

// BidOrderPosition is one slot in the derived bid order for an area.
type BidOrderPosition struct {
	UserID   int64    `json:"user_id"`
	Initials Initials `json:"initials"`
	// Position is 1-based; position 1 bids first.
	Position  int       `json:"position"`
	Seniority Seniority `json:"seniority"`
}

// ComputeBidOrder derives the strict bid order for one area's users.
//
// Ordering tiers, applied in sequence:
//  1. CumulativeBUDate (earliest wins)
//  2. BUDate (earliest wins)
//  3. EODDate (earliest wins)
//  4. SCDDate (earliest wins)
//  5. Lottery (lowest wins; assigned beats unassigned)
//
// Users excluded from bidding are filtered out before ordering. A tie
// surviving all five tiers is a blocking seniority_conflict error — there
// is no default resolution and no code path that breaks a tie arbitrarily.
// The function is pure and deterministic: the readiness preview and the
// canonicalization freeze call this same function and must always agree.
func ComputeBidOrder(users []User) ([]BidOrderPosition, error) {
	eligible := make([]User, 0, len(users))
	for _, u := range users {
		if !u.ExcludedFromBidding {
			eligible = append(eligible, u)
		}
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return CompareSeniority(eligible[i].Senior, eligible[j].Senior) < 0
	})

	for i := 0; i+1 < len(eligible); i++ {
		if CompareSeniority(eligible[i].Senior, eligible[i+1].Senior) == 0 {
			return nil, ErrorWithContext(RuleSeniorityConflict,
				"unresolved seniority tie after applying all ordering tiers",
				map[string]any{
					"user1_initials": string(eligible[i].Initials),
					"user2_initials": string(eligible[i+1].Initials),
				})
		}
	}

	positions := make([]BidOrderPosition, len(eligible))
	for i, u := range eligible {
		positions[i] = BidOrderPosition{
			UserID:    u.ID,
			Initials:  u.Initials,
			Position:  i + 1,
			Seniority: u.Senior,
		}
	}
	return positions, nil
}

// CompareSeniority orders two seniority records. Negative means a bids
// before b, positive means b bids before a, zero is an unresolved tie.
func CompareSeniority(a, b Seniority) int {
	if c := compareDate(a.CumulativeBUDate, b.CumulativeBUDate); c != 0 {
		return c
	}
	if c := compareDate(a.BUDate, b.BUDate); c != 0 {
		return c
	}
	if c := compareDate(a.EODDate, b.EODDate); c != 0 {
		return c
	}
	if c := compareDate(a.SCDDate, b.SCDDate); c != 0 {
		return c
	}
	// Lottery: lowest wins; an assigned value beats an unassigned one.
	switch {
	case a.Lottery != 0 && b.Lottery != 0:
		return a.Lottery - b.Lottery
	case a.Lottery != 0:
		return -1
	case b.Lottery != 0:
		return 1
	default:
		return 0
	}
}

func compareDate(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}
