package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leca/bandwidth-proxy/internal/model"
)

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var raw map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&raw))
	return raw
}

func TestWriteJSON_Totals(t *testing.T) {
	totals := &model.Totals{
		Requests:      3,
		ByKind:        map[model.OutcomeKind]int{model.OutcomeCompressed: 2, model.OutcomeBypassed: 1},
		OriginalBytes: 900_000,
		BytesSaved:    640_000,
	}
	w := httptest.NewRecorder()

	WriteJSON(w, http.StatusOK, SuccessResponse(totals))

	assert.Equal(t, http.StatusOK, w.Code)
	raw := decodeEnvelope(t, w)
	assert.Equal(t, true, raw["success"])
	assert.Equal(t, []any{}, raw["errors"])

	result, ok := raw["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(3), result["requests"])
	assert.Equal(t, float64(640_000), result["bytes_saved"])
	assert.Equal(t, map[string]any{"compressed": float64(2), "bypassed": float64(1)}, result["by_kind"])
}

func TestWriteJSON_OutcomePage(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	outcomes := []*model.Outcome{{
		ID:         "5f0c6f8e-0000-4000-8000-000000000001",
		Host:       "cdn.example.com",
		Kind:       model.OutcomeCompressed,
		OriginSize: 500_000,
		SentSize:   40_000,
		BytesSaved: 460_000,
		Duration:   80 * time.Millisecond,
		CreatedAt:  created,
	}}
	w := httptest.NewRecorder()

	WriteJSON(w, http.StatusOK, SuccessResponse(outcomes))

	raw := decodeEnvelope(t, w)
	rows, ok := raw["result"].([]any)
	require.True(t, ok)
	require.Len(t, rows, 1)

	row := rows[0].(map[string]any)
	assert.Equal(t, "cdn.example.com", row["host"])
	assert.Equal(t, "compressed", row["kind"])
	assert.Equal(t, float64(460_000), row["bytes_saved"])
	assert.Equal(t, created.Format(time.RFC3339), row["created_at"])
	assert.NotContains(t, row, "duration", "duration stays out of the wire format")
}

func TestWriteJSON_EmptyOutcomePageIsArray(t *testing.T) {
	w := httptest.NewRecorder()

	WriteJSON(w, http.StatusOK, SuccessResponse([]*model.Outcome{}))

	raw := decodeEnvelope(t, w)
	assert.Equal(t, []any{}, raw["result"])
}

func TestErrorResponse_LedgerDisabled(t *testing.T) {
	w := httptest.NewRecorder()

	NotFound(w, "savings ledger is disabled")

	assert.Equal(t, http.StatusNotFound, w.Code)
	raw := decodeEnvelope(t, w)
	assert.Equal(t, false, raw["success"])
	assert.Nil(t, raw["result"])

	errs, ok := raw["errors"].([]any)
	require.True(t, ok)
	require.Len(t, errs, 1)
	errObj := errs[0].(map[string]any)
	assert.Equal(t, float64(9404), errObj["code"])
	assert.Equal(t, "savings ledger is disabled", errObj["message"])
}

func TestErrorResponse_Codes(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		code   int
	}{
		{"bad limit", func(w http.ResponseWriter) { BadRequest(w, "limit must be a positive integer") }, http.StatusBadRequest, 9400},
		{"missing token", Unauthorized, http.StatusUnauthorized, 9401},
		{"ledger failure", func(w http.ResponseWriter) { InternalError(w, "failed to compute totals") }, http.StatusInternalServerError, 9500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			assert.Equal(t, tt.status, w.Code)
			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.False(t, resp.Success)
			require.Len(t, resp.Errors, 1)
			assert.Equal(t, tt.code, resp.Errors[0].Code)
		})
	}
}
