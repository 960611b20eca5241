// Package projection is the read side: every endpoint serves either the
// canonical tables or a reconstruction from the audit log, and none of
// them can mutate anything.
package projection

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bidline-lab/bidline/internal/core/domain"
	"github.com/bidline-lab/bidline/internal/core/state"
	"github.com/bidline-lab/bidline/internal/core/storage"
)

const defaultAuditPageSize = 200

// Service implements the query layer over the Store.
type Service struct {
	store storage.Store
}

// NewService creates a projection service.
func NewService(store storage.Store) *Service {
	return &Service{store: store}
}

// BidYears lists all bid years, oldest first.
func (s *Service) BidYears(ctx context.Context) ([]BidYearSummary, error) {
	years, err := s.store.ListBidYears(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing bid years: %w", err)
	}
	out := make([]BidYearSummary, 0, len(years))
	for _, y := range years {
		out = append(out, BidYearSummary{
			Year:          y.Year,
			StartDate:     y.StartDate,
			EndDate:       y.EndDate(),
			NumPayPeriods: y.NumPayPeriods,
			Active:        y.Active,
			Stage:         y.Stage.String(),
		})
	}
	return out, nil
}

// CurrentState returns the canonical state of a bid year.
func (s *Service) CurrentState(ctx context.Context, year int) (*StateResponse, error) {
	st, headSeq, err := s.store.LoadPartition(ctx, year)
	if err != nil {
		return nil, err
	}
	return buildStateResponse(st, headSeq), nil
}

// StateAsOf reconstructs the state of a bid year as of an audit sequence.
// The result is derived purely from the log (plus snapshots as
// accelerators) and never touches the canonical tables.
func (s *Service) StateAsOf(ctx context.Context, year int, atSeq int64) (*StateResponse, error) {
	st, seq, err := storage.Reconstruct(ctx, s.store, year, atSeq)
	if err != nil {
		return nil, err
	}
	return buildStateResponse(st, seq), nil
}

// Readiness evaluates whether a bid year can canonicalize. This is the
// same computation the engine runs when it validates the Canonicalize
// command, so the preview and the gate always agree.
func (s *Service) Readiness(ctx context.Context, year int) (*domain.ReadinessReport, error) {
	st, _, err := s.store.LoadPartition(ctx, year)
	if err != nil {
		return nil, err
	}
	usersByArea := make(map[int64][]domain.User)
	roundsByArea := make(map[int64][]domain.RoundConfig)
	for _, a := range st.Areas {
		usersByArea[a.ID] = st.UsersInArea(a.ID)
		roundsByArea[a.ID] = st.RoundsForArea(a.ID)
	}
	report := domain.EvaluateReadiness(st.Year, st.Areas, usersByArea, roundsByArea)
	return &report, nil
}

// BidOrder returns the bid order per non-system area. Before
// canonicalization the order is derived on the fly from seniority; after,
// the frozen canonical values are served and the ordering algorithm is
// not re-invoked.
func (s *Service) BidOrder(ctx context.Context, year int) (*BidOrderResponse, error) {
	st, _, err := s.store.LoadPartition(ctx, year)
	if err != nil {
		return nil, err
	}

	frozen := st.Year.Stage >= domain.StageCanonicalized
	resp := &BidOrderResponse{Year: year, Frozen: frozen}

	for _, area := range st.Areas {
		if area.SystemArea {
			continue
		}
		ao := AreaBidOrder{AreaCode: area.Code, Frozen: frozen}
		users := st.UsersInArea(area.ID)

		if frozen {
			for _, u := range users {
				if u.BidOrder == 0 {
					continue
				}
				ao.Positions = append(ao.Positions, domain.BidOrderPosition{
					UserID:    u.ID,
					Initials:  u.Initials,
					Position:  u.BidOrder,
					Seniority: u.Senior,
				})
			}
			sort.Slice(ao.Positions, func(i, j int) bool {
				return ao.Positions[i].Position < ao.Positions[j].Position
			})
		} else {
			positions, err := domain.ComputeBidOrder(users)
			if err != nil {
				if de, ok := domain.AsError(err); ok {
					ao.Conflict = map[string]any{
						"rule":    de.Rule,
						"message": de.Message,
						"context": de.Context,
					}
				} else {
					return nil, err
				}
			}
			ao.Positions = positions
		}
		resp.Areas = append(resp.Areas, ao)
	}
	return resp, nil
}

// AuditExport returns one page of the audit log for a bid year.
func (s *Service) AuditExport(ctx context.Context, year int, afterSeq int64, limit int) (*AuditPage, error) {
	if limit <= 0 || limit > 1000 {
		limit = defaultAuditPageSize
	}
	events, err := s.store.ReadEvents(ctx, year, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	page := &AuditPage{Year: year, Events: events}
	if len(events) == limit {
		page.NextAfterSeq = events[len(events)-1].Seq
	}
	return page, nil
}

// LookupUser resolves initials to the canonical user row. This is the only
// initials-based lookup in the system and it is read-only: callers that
// want to mutate take the ID from here and submit a command with it.
func (s *Service) LookupUser(ctx context.Context, year int, initials string) (*UserLookupResponse, error) {
	st, _, err := s.store.LoadPartition(ctx, year)
	if err != nil {
		return nil, err
	}
	want := domain.NewInitials(initials)
	for _, u := range st.Users {
		if u.Initials == want {
			return &UserLookupResponse{User: u}, nil
		}
	}
	return nil, fmt.Errorf("no user with initials %q in bid year %d: %w",
		strings.ToUpper(initials), year, storage.ErrNotFound)
}

func buildStateResponse(st *state.State, headSeq int64) *StateResponse {
	resp := &StateResponse{
		Year:       st.Year,
		Stage:      st.Year.Stage.String(),
		HeadSeq:    headSeq,
		Rounds:     st.Rounds,
		PayPeriods: st.Year.PayPeriods(),
	}
	for _, area := range st.Areas {
		resp.Areas = append(resp.Areas, AreaView{
			Area:  area,
			Users: st.UsersInArea(area.ID),
		})
	}
	return resp
}
