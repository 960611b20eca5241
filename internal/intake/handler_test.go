package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/bidline-lab/bidline/internal/core/engine"
	"github.com/bidline-lab/bidline/internal/core/storage"
)

func newTestRouter(t *testing.T) (*gin.Engine, *engine.Engine, storage.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := storage.NewMemoryStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(store, log)
	r := gin.New()
	NewHandler(eng).RegisterRoutes(r)
	return r, eng, store
}

func postCommand(t *testing.T, r *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/commands", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func envelope(cmdType, payload string) string {
	return fmt.Sprintf(`{
		"type": %q,
		"actor": {"id": "admin-1", "type": "admin"},
		"cause": {"id": "req-1", "description": "intake test"},
		"payload": %s
	}`, cmdType, payload)
}

const createYear2026 = `{"year": 2026, "start_date": "2026-01-11T00:00:00Z", "num_pay_periods": 26}`

func TestHandleSubmitCommandCommits(t *testing.T) {
	r, _, store := newTestRouter(t)

	w := postCommand(t, r, envelope("CreateBidYear", createYear2026))
	require.Equal(t, http.StatusOK, w.Code)

	var resp CommandResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2026, resp.Partition)
	require.Equal(t, int64(1), resp.Seq)
	require.Equal(t, "CreateBidYear", resp.Action)
	require.NotEmpty(t, resp.RecordedAt)

	st, head, err := store.LoadPartition(context.Background(), 2026)
	require.NoError(t, err)
	require.Equal(t, int64(1), head)
	require.Equal(t, 2026, st.Year.Year)
}

func TestHandleSubmitCommandSequences(t *testing.T) {
	r, _, _ := newTestRouter(t)

	require.Equal(t, http.StatusOK, postCommand(t, r, envelope("CreateBidYear", createYear2026)).Code)
	require.Equal(t, http.StatusOK, postCommand(t, r, envelope("SetActiveBidYear", `{"year": 2026}`)).Code)

	w := postCommand(t, r, envelope("CreateArea", `{"area_code": "north"}`))
	require.Equal(t, http.StatusOK, w.Code)

	var resp CommandResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, int64(3), resp.Seq)
}

func TestHandleSubmitCommandStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantType   string
	}{
		{
			name:       "malformed json",
			body:       `{"type": "CreateBidYear"`,
			wantStatus: http.StatusBadRequest,
			wantType:   "invalid_json",
		},
		{
			name:       "missing actor",
			body:       `{"type": "CreateBidYear", "cause": {"description": "x"}, "payload": {}}`,
			wantStatus: http.StatusBadRequest,
			wantType:   "invalid_json",
		},
		{
			name:       "unknown command type",
			body:       envelope("TeleportUser", `{}`),
			wantStatus: http.StatusBadRequest,
			wantType:   "invalid_json",
		},
		{
			name:       "rule violation",
			body:       envelope("CreateBidYear", `{"year": 1980, "start_date": "1980-01-06T00:00:00Z", "num_pay_periods": 26}`),
			wantStatus: http.StatusBadRequest,
			wantType:   "invalid_bid_year",
		},
		{
			name:       "duplicate bid year",
			body:       envelope("CreateBidYear", createYear2026),
			wantStatus: http.StatusConflict,
			wantType:   "duplicate_bid_year",
		},
		{
			name:       "unknown bid year",
			body:       envelope("LockStructure", `{"year": 2031}`),
			wantStatus: http.StatusNotFound,
			wantType:   "bid_year_not_found",
		},
		{
			name:       "lifecycle inadmissible",
			body:       envelope("OpenBidding", `{"year": 2026}`),
			wantStatus: http.StatusConflict,
			wantType:   "lifecycle_inadmissible",
		},
	}

	r, _, _ := newTestRouter(t)
	require.Equal(t, http.StatusOK, postCommand(t, r, envelope("CreateBidYear", createYear2026)).Code)

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := postCommand(t, r, tc.body)
			require.Equal(t, tc.wantStatus, w.Code, w.Body.String())

			var resp map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.Equal(t, tc.wantType, resp["error_type"])
		})
	}
}

func TestHandleSubmitCommandAssignsCorrelationID(t *testing.T) {
	r, _, store := newTestRouter(t)

	body := `{
		"type": "CreateBidYear",
		"actor": {"id": "admin-1", "type": "admin"},
		"cause": {"description": "no id supplied"},
		"payload": ` + createYear2026 + `
	}`
	require.Equal(t, http.StatusOK, postCommand(t, r, body).Code)

	events, err := store.ReadEvents(context.Background(), 2026, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NotEmpty(t, events[0].Cause.ID)
}

func TestHandleSubmitCommandRejectionLeavesNoTrace(t *testing.T) {
	r, _, store := newTestRouter(t)

	require.Equal(t, http.StatusOK, postCommand(t, r, envelope("CreateBidYear", createYear2026)).Code)
	w := postCommand(t, r, envelope("CreateArea", `{"year": 2026, "area_code": ""}`))
	require.Equal(t, http.StatusBadRequest, w.Code)

	events, err := store.ReadEvents(context.Background(), 2026, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
}
