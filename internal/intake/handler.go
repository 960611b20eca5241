// Package intake is the write-side HTTP ingress: it decodes command
// envelopes, hands them to the engine, and maps outcomes to HTTP statuses.
// It performs no domain validation of its own; the engine's validator is
// the single authority.
package intake

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bidline-lab/bidline/internal/core/audit"
	"github.com/bidline-lab/bidline/internal/core/command"
	"github.com/bidline-lab/bidline/internal/core/domain"
	"github.com/bidline-lab/bidline/internal/core/engine"
	httperr "github.com/bidline-lab/bidline/internal/core/errors"
	"github.com/bidline-lab/bidline/internal/core/storage"
)

// Submitter is the write path the handler feeds into.
type Submitter interface {
	Submit(ctx context.Context, cmd command.Command, actor audit.Actor, cause audit.Cause) (audit.Event, error)
}

// Handler serves POST /v1/commands.
type Handler struct {
	submitter Submitter
}

// NewHandler creates the command ingress handler.
func NewHandler(s Submitter) *Handler {
	return &Handler{submitter: s}
}

// RegisterRoutes registers the write-side routes.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/commands", h.HandleSubmitCommand)
}

// CommandResponse confirms a committed transition.
type CommandResponse struct {
	Partition  int    `json:"year"`
	Seq        int64  `json:"seq"`
	Action     string `json:"action"`
	RecordedAt string `json:"recorded_at"`
}

// HandleSubmitCommand handles POST /v1/commands.
func (h *Handler) HandleSubmitCommand(c *gin.Context) {
	var env command.Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "invalid command envelope",
			Details:   err.Error(),
		})
		return
	}
	// Every cause carries a correlation ID; assign one when the client
	// did not supply its own.
	if env.Cause.ID == "" {
		env.Cause.ID = uuid.NewString()
	}
	if err := env.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "invalid command envelope",
			Details:   err.Error(),
		})
		return
	}

	cmd, err := command.Decode(&env)
	if err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "unrecognized or malformed command",
			Details:   err.Error(),
		})
		return
	}

	ev, err := h.submitter.Submit(c.Request.Context(), cmd, env.Actor, env.Cause)
	if err != nil {
		writeCommandError(c, err)
		return
	}

	c.JSON(http.StatusOK, CommandResponse{
		Partition:  ev.Partition,
		Seq:        ev.Seq,
		Action:     ev.Action.Name,
		RecordedAt: ev.RecordedAt.UTC().Format(time.RFC3339Nano),
	})
}

// writeCommandError maps engine outcomes to HTTP statuses. Rule
// violations keep their rule name in error_type so clients can correct
// the input mechanically.
func writeCommandError(c *gin.Context, err error) {
	if de, ok := domain.AsError(err); ok {
		c.JSON(ruleStatus(de.Rule), httperr.ErrorResponse{
			ErrorType: de.Rule,
			Message:   de.Message,
			Details:   de.Context,
		})
		return
	}

	switch {
	case errors.Is(err, storage.ErrConflict):
		c.JSON(http.StatusConflict, httperr.ErrorResponse{
			ErrorType: httperr.HttpConflictError,
			Message:   "a concurrent change committed first; reload and retry",
			Details:   err.Error(),
		})
	case errors.Is(err, storage.ErrUnavailable), errors.Is(err, engine.ErrPartitionHalted):
		c.JSON(http.StatusServiceUnavailable, httperr.ErrorResponse{
			ErrorType: httperr.HttpUnavailableError,
			Message:   "the system cannot accept commands for this bid year right now",
			Details:   err.Error(),
		})
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpNotFoundError,
			Message:   "target not found",
			Details:   err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "command failed",
			Details:   err.Error(),
		})
	}
}

func ruleStatus(rule string) int {
	switch rule {
	case domain.RuleBidYearNotFound, domain.RuleAreaNotFound,
		domain.RuleUserNotFound, domain.RuleRollbackTargetNotFound:
		return http.StatusNotFound
	case domain.RuleDuplicateBidYear, domain.RuleDuplicateArea,
		domain.RuleDuplicateInitials, domain.RuleDuplicateActiveBidYear,
		domain.RuleLifecycleInadmissible, domain.RuleLifecycleNotSequential:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
