package projection

import (
	"time"

	"github.com/bidline-lab/bidline/internal/core/audit"
	"github.com/bidline-lab/bidline/internal/core/domain"
)

// BidYearSummary is one row of the bid year index.
type BidYearSummary struct {
	Year          int       `json:"year"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	NumPayPeriods int       `json:"num_pay_periods"`
	Active        bool      `json:"active"`
	Stage         string    `json:"lifecycle_stage"`
}

// AreaView is an area plus its users, as served by the state endpoints.
type AreaView struct {
	domain.Area
	Users []domain.User `json:"users"`
}

// StateResponse is the full canonical (or reconstructed) state of one bid
// year. HeadSeq is the audit sequence the response reflects.
type StateResponse struct {
	Year       domain.BidYear       `json:"bid_year"`
	Stage      string               `json:"lifecycle_stage"`
	HeadSeq    int64                `json:"head_seq"`
	Areas      []AreaView           `json:"areas"`
	Rounds     []domain.RoundConfig `json:"rounds"`
	PayPeriods []domain.PayPeriod   `json:"pay_periods"`
}

// AreaBidOrder is the derived (pre-canonicalization) or frozen
// (post-canonicalization) bid order of one area.
type AreaBidOrder struct {
	AreaCode  string                    `json:"area_code"`
	Frozen    bool                      `json:"frozen"`
	Positions []domain.BidOrderPosition `json:"positions"`
	// Conflict carries the blocking seniority tie, if any. Only possible
	// while the order is still derived.
	Conflict map[string]any `json:"conflict,omitempty"`
}

// BidOrderResponse is the bid order of every non-system area.
type BidOrderResponse struct {
	Year   int            `json:"year"`
	Frozen bool           `json:"frozen"`
	Areas  []AreaBidOrder `json:"areas"`
}

// AuditPage is one page of the audit export. NextAfterSeq feeds the next
// request's after_seq; zero means the log is exhausted.
type AuditPage struct {
	Year         int           `json:"year"`
	Events       []audit.Event `json:"events"`
	NextAfterSeq int64         `json:"next_after_seq,omitempty"`
}

// UserLookupResponse resolves display initials to a canonical identifier.
// Read-only convenience for ingress tooling; mutations always carry the
// canonical ID themselves.
type UserLookupResponse struct {
	User domain.User `json:"user"`
}
