package api

import (
	"net/http"
)

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "getStats failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "failed to compute stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
