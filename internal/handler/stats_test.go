package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/leca/bandwidth-proxy/internal/api"
	"github.com/leca/bandwidth-proxy/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStatsTestRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/stats", h.GetStats)
	r.Get("/stats/recent", h.ListOutcomes)
	return r
}

func seedOutcomes(t *testing.T, h *Handler) {
	t.Helper()
	for _, o := range []*model.Outcome{
		{Host: "a.example", Kind: model.OutcomeCompressed, OriginSize: 10000, SentSize: 2500, BytesSaved: 7500},
		{Host: "a.example", Kind: model.OutcomeCompressed, OriginSize: 4000, SentSize: 1000, BytesSaved: 3000},
		{Host: "b.example", Kind: model.OutcomeBypassed, OriginSize: 500, SentSize: 500},
		{Host: "c.example", Kind: model.OutcomeRedirected},
	} {
		require.NoError(t, h.DB.RecordOutcome(o))
	}
}

func TestGetStats_Empty(t *testing.T) {
	h := newProxyHandler(t, newTestDB(t))
	router := setupStatsTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool         `json:"success"`
		Result  model.Totals `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Zero(t, resp.Result.Requests)
	assert.Zero(t, resp.Result.BytesSaved)
}

func TestGetStats_Totals(t *testing.T) {
	h := newProxyHandler(t, newTestDB(t))
	seedOutcomes(t, h)
	router := setupStatsTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Result model.Totals `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Result.Requests)
	assert.Equal(t, 2, resp.Result.ByKind[model.OutcomeCompressed])
	assert.Equal(t, 1, resp.Result.ByKind[model.OutcomeBypassed])
	assert.Equal(t, 1, resp.Result.ByKind[model.OutcomeRedirected])
	assert.Equal(t, int64(14500), resp.Result.OriginalBytes)
	assert.Equal(t, int64(10500), resp.Result.BytesSaved)
}

func TestGetStats_LedgerDisabled(t *testing.T) {
	h := newProxyHandler(t, nil)
	router := setupStatsTestRouter(h)

	for _, path := range []string{"/stats", "/stats/recent"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestListOutcomes(t *testing.T) {
	h := newProxyHandler(t, newTestDB(t))
	seedOutcomes(t, h)
	router := setupStatsTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/stats/recent?limit=2", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Result []model.Outcome `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Result, 2)
}

func TestListOutcomes_EmptyIsArray(t *testing.T) {
	h := newProxyHandler(t, newTestDB(t))
	router := setupStatsTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/stats/recent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"result":[]`)
}

func TestListOutcomes_BadLimit(t *testing.T) {
	h := newProxyHandler(t, newTestDB(t))
	router := setupStatsTestRouter(h)

	for _, limit := range []string{"0", "-1", "abc"} {
		req := httptest.NewRequest(http.MethodGet, "/stats/recent?limit="+limit, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, limit)

		var resp api.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
	}
}
