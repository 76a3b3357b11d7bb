package handler

import (
	"net/http"
	"strconv"

	"github.com/leca/bandwidth-proxy/internal/api"
)

const maxRecentOutcomes = 500

// GetStats handles GET /stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.DB == nil {
		api.NotFound(w, "savings ledger is disabled")
		return
	}

	totals, err := h.DB.Totals()
	if err != nil {
		api.InternalError(w, "failed to compute totals")
		return
	}
	api.WriteJSON(w, http.StatusOK, api.SuccessResponse(totals))
}

// ListOutcomes handles GET /stats/recent.
func (h *Handler) ListOutcomes(w http.ResponseWriter, r *http.Request) {
	if h.DB == nil {
		api.NotFound(w, "savings ledger is disabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			api.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRecentOutcomes)
	}

	outcomes, err := h.DB.ListOutcomes(limit)
	if err != nil {
		api.InternalError(w, "failed to list outcomes")
		return
	}
	api.WriteJSON(w, http.StatusOK, api.SuccessResponse(outcomes))
}
