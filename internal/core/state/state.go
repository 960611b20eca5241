// Package state holds the per-partition canonical state aggregate. A State
// is owned exclusively by the engine during a transition and is never
// mutated outside one; everything else sees copies or committed rows.
package state

import (
	"encoding/json"
	"fmt"

	"github.com/bidline-lab/bidline/internal/core/audit"
	"github.com/bidline-lab/bidline/internal/core/domain"
)

// State is the full current representation of one bid-year partition: the
// bid year row plus its areas, users, and round configuration.
type State struct {
	Year   domain.BidYear       `json:"bid_year"`
	Areas  []domain.Area        `json:"areas"`
	Users  []domain.User        `json:"users"`
	Rounds []domain.RoundConfig `json:"rounds"`
}

// New returns an empty partition state for a bid year.
func New(year domain.BidYear) *State {
	return &State{Year: year}
}

// Clone deep-copies the state. The applier mutates only clones so a failed
// transition leaves the prior state untouched.
func (s *State) Clone() *State {
	c := &State{Year: s.Year}
	c.Areas = append([]domain.Area(nil), s.Areas...)
	c.Users = append([]domain.User(nil), s.Users...)
	c.Rounds = append([]domain.RoundConfig(nil), s.Rounds...)
	return c
}

// UserByID looks a user up by canonical identifier. This is the only user
// lookup reachable from mutation paths.
func (s *State) UserByID(id int64) (*domain.User, bool) {
	for i := range s.Users {
		if s.Users[i].ID == id {
			return &s.Users[i], true
		}
	}
	return nil, false
}

// AreaByID looks an area up by canonical identifier.
func (s *State) AreaByID(id int64) (*domain.Area, bool) {
	for i := range s.Areas {
		if s.Areas[i].ID == id {
			return &s.Areas[i], true
		}
	}
	return nil, false
}

// AreaByCode resolves a display code to an area. Read/ingress contexts
// only; mutation paths must already hold a canonical ID.
func (s *State) AreaByCode(code string) (*domain.Area, bool) {
	norm := domain.NormalizeAreaCode(code)
	for i := range s.Areas {
		if s.Areas[i].Code == norm {
			return &s.Areas[i], true
		}
	}
	return nil, false
}

// UsersInArea returns the users assigned to an area.
func (s *State) UsersInArea(areaID int64) []domain.User {
	var out []domain.User
	for _, u := range s.Users {
		if u.AreaID == areaID {
			out = append(out, u)
		}
	}
	return out
}

// RoundsForArea returns the configured rounds for an area.
func (s *State) RoundsForArea(areaID int64) []domain.RoundConfig {
	var out []domain.RoundConfig
	for _, r := range s.Rounds {
		if r.AreaID == areaID {
			out = append(out, r)
		}
	}
	return out
}

// UpsertUser replaces the user with the same ID, or appends.
func (s *State) UpsertUser(u domain.User) {
	for i := range s.Users {
		if s.Users[i].ID == u.ID {
			s.Users[i] = u
			return
		}
	}
	s.Users = append(s.Users, u)
}

// UpsertArea replaces the area with the same ID, or appends.
func (s *State) UpsertArea(a domain.Area) {
	for i := range s.Areas {
		if s.Areas[i].ID == a.ID {
			s.Areas[i] = a
			return
		}
	}
	s.Areas = append(s.Areas, a)
}

// UpsertRound replaces the round config for the same (area, round number),
// or appends.
func (s *State) UpsertRound(r domain.RoundConfig) {
	for i := range s.Rounds {
		if s.Rounds[i].AreaID == r.AreaID && s.Rounds[i].RoundNumber == r.RoundNumber {
			s.Rounds[i] = r
			return
		}
	}
	s.Rounds = append(s.Rounds, r)
}

// Marshal serializes the state for snapshots and partition-scoped event
// fragments.
func (s *State) Marshal() (json.RawMessage, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling partition state: %w", err)
	}
	return b, nil
}

// Unmarshal restores a state from its serialized form.
func Unmarshal(raw json.RawMessage) (*State, error) {
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("unmarshaling partition state: %w", err)
	}
	return &s, nil
}

// ApplyEvent folds one audit event into the state. This is the replay
// primitive: starting from an empty state (or a snapshot) and applying
// events in sequence order reproduces canonical state exactly.
func (s *State) ApplyEvent(ev audit.Event) error {
	switch ev.EntityKind {
	case audit.EntityPartition:
		restored, err := Unmarshal(ev.After)
		if err != nil {
			return fmt.Errorf("event seq %d: %w", ev.Seq, err)
		}
		*s = *restored
	case audit.EntityBidYear:
		var y domain.BidYear
		if err := json.Unmarshal(ev.After, &y); err != nil {
			return fmt.Errorf("event seq %d bid_year fragment: %w", ev.Seq, err)
		}
		s.Year = y
	case audit.EntityArea:
		var a domain.Area
		if err := json.Unmarshal(ev.After, &a); err != nil {
			return fmt.Errorf("event seq %d area fragment: %w", ev.Seq, err)
		}
		s.UpsertArea(a)
	case audit.EntityUser:
		var u domain.User
		if err := json.Unmarshal(ev.After, &u); err != nil {
			return fmt.Errorf("event seq %d user fragment: %w", ev.Seq, err)
		}
		s.UpsertUser(u)
	case audit.EntityRound:
		var r domain.RoundConfig
		if err := json.Unmarshal(ev.After, &r); err != nil {
			return fmt.Errorf("event seq %d round fragment: %w", ev.Seq, err)
		}
		s.UpsertRound(r)
	default:
		return fmt.Errorf("event seq %d: unknown entity kind %q", ev.Seq, ev.EntityKind)
	}
	return nil
}
