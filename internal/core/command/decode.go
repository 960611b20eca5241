package command

import (
	"encoding/json"
	"fmt"

	"github.com/bidline-lab/bidline/internal/core/audit"
	"github.com/bidline-lab/bidline/internal/core/domain"
)

// Envelope is the wire shape accepted by the command ingress: the command
// type, the initiating actor, the cause, and the type-specific payload.
type Envelope struct {
	Type    string          `json:"type"`
	Actor   audit.Actor     `json:"actor"`
	Cause   audit.Cause     `json:"cause"`
	Payload json.RawMessage `json:"payload"`
}

// Validate checks the envelope's system attributes before decoding.
func (e *Envelope) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("type is required")
	}
	if e.Actor.ID == "" {
		return fmt.Errorf("actor.id is required")
	}
	if e.Actor.Type == "" {
		return fmt.Errorf("actor.type is required")
	}
	if e.Cause.Description == "" {
		return fmt.Errorf("cause.description is required")
	}
	return nil
}

// Decode turns an envelope into a typed command. Unknown types are
// rejected here; field-level validation belongs to the engine's validator.
func Decode(env *Envelope) (Command, error) {
	switch domain.CommandKind(env.Type) {
	case domain.KindCreateBidYear:
		return decodeAs[CreateBidYear](env)
	case domain.KindSetActiveBidYear:
		return decodeAs[SetActiveBidYear](env)
	case domain.KindSetExpectedAreaCount:
		return decodeAs[SetExpectedAreaCount](env)
	case domain.KindCreateArea:
		return decodeAs[CreateArea](env)
	case domain.KindSetExpectedUserCount:
		return decodeAs[SetExpectedUserCount](env)
	case domain.KindConfigureRound:
		return decodeAs[ConfigureRound](env)
	case domain.KindRegisterUser:
		return decodeAs[RegisterUser](env)
	case domain.KindUpdateUser:
		return decodeAs[UpdateUser](env)
	case domain.KindUpdateParticipation:
		return decodeAs[UpdateUserParticipation](env)
	case domain.KindLockStructure:
		return decodeAs[LockStructure](env)
	case domain.KindCanonicalize:
		return decodeAs[Canonicalize](env)
	case domain.KindOpenBidding:
		return decodeAs[OpenBidding](env)
	case domain.KindCloseBidding:
		return decodeAs[CloseBidding](env)
	case domain.KindOverrideAreaAssignment:
		return decodeAs[OverrideAreaAssignment](env)
	case domain.KindOverrideEligibility:
		return decodeAs[OverrideEligibility](env)
	case domain.KindOverrideBidOrder:
		return decodeAs[OverrideBidOrder](env)
	case domain.KindOverrideBidWindow:
		return decodeAs[OverrideBidWindow](env)
	case domain.KindCheckpoint:
		return decodeAs[Checkpoint](env)
	case domain.KindRollbackToEvent:
		return decodeAs[RollbackToEvent](env)
	default:
		return nil, fmt.Errorf("unknown command type %q", env.Type)
	}
}

func decodeAs[T Command](env *Envelope) (Command, error) {
	var c T
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &c); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", env.Type, err)
		}
	}
	return c, nil
}
