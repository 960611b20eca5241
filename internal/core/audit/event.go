// Package audit defines the immutable event record: the ultimate source of
// truth for every state transition. Events are append-only; nothing in the
// system updates or deletes one. Rollback is itself a new event.
package audit

import (
	"encoding/json"
	"time"
)

// Actor identifies the entity performing an action: an operator, a system
// process, or a scheduler.
type Actor struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Cause records why a state change was initiated: a correlation ID plus a
// free-text description.
type Cause struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Action names what happened. Name is the command kind; Details is a human
// readable summary for the audit export.
type Action struct {
	Name    string `json:"name"`
	Details string `json:"details,omitempty"`
}

// Entity kinds referenced by event fragments. A "partition" fragment
// carries the full partition state instead of a single row; replay
// replaces the whole state with it. That keeps replay linear even across
// rollbacks and multi-entity transitions like canonicalization.
const (
	EntityBidYear   = "bid_year"
	EntityArea      = "area"
	EntityUser      = "user"
	EntityRound     = "round"
	EntityPartition = "partition"
)

// Event is one immutable audit record. Seq is monotonic and gapless within
// a partition (one partition per bid year) and matches commit order; it is
// assigned by the store inside the commit transaction and is zero before
// that.
type Event struct {
	Partition int   `json:"partition"` // bid year label
	Seq       int64 `json:"seq"`

	Actor  Actor  `json:"actor"`
	Cause  Cause  `json:"cause"`
	Action Action `json:"action"`

	// EntityKind and EntityID scope the fragment below.
	EntityKind string `json:"entity_kind"`
	EntityID   int64  `json:"entity_id,omitempty"`

	// Before and After are the state fragments relevant to this change:
	// the touched entity's row, or the full partition state for
	// partition-scoped events. Before is null on creation.
	Before json.RawMessage `json:"before,omitempty"`
	After  json.RawMessage `json:"after,omitempty"`

	RecordedAt time.Time `json:"recorded_at"`
}

// New builds an unpersisted event. Marshal failures cannot happen for the
// fragment types used here, so fragments are passed pre-marshaled.
func New(partition int, actor Actor, cause Cause, action Action, entityKind string, entityID int64, before, after json.RawMessage) Event {
	return Event{
		Partition:  partition,
		Actor:      actor,
		Cause:      cause,
		Action:     action,
		EntityKind: entityKind,
		EntityID:   entityID,
		Before:     before,
		After:      after,
	}
}
