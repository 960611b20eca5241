package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestRecorderCountsCommands(t *testing.T) {
	rec := NewRecorder()
	rec.ObserveCommand("CreateBidYear", "committed", 3*time.Millisecond)
	rec.ObserveCommand("CreateBidYear", "committed", 5*time.Millisecond)
	rec.ObserveCommand("RegisterUser", "rejected", time.Millisecond)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	rec.RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	require.Contains(t, body, `bidline_engine_commands_total{kind="CreateBidYear",outcome="committed"} 2`)
	require.Contains(t, body, `bidline_engine_commands_total{kind="RegisterUser",outcome="rejected"} 1`)
	require.Contains(t, body, `bidline_engine_command_duration_seconds_count{kind="CreateBidYear"} 2`)
}

func TestRecordersAreIndependent(t *testing.T) {
	// Two recorders must not collide on registration.
	a := NewRecorder()
	b := NewRecorder()
	a.ObserveCommand("Checkpoint", "committed", time.Millisecond)
	b.ObserveCommand("Checkpoint", "failed", time.Millisecond)
}
