package api

import (
	"encoding/json"
	"net/http"

	"github.com/relayhq/eventrelay/catalog"
)

type createEventTypeRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

func (h *Handler) createEventType(w http.ResponseWriter, r *http.Request) {
	var req createEventTypeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationError, "malformed request body")
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, codeValidationError, "name is required")
		return
	}

	et, err := h.catalog.RegisterType(r.Context(), catalog.WebhookDefinition{
		Name:        req.Name,
		Description: req.Description,
		Schema:      req.Schema,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "createEventType failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "failed to register event type")
		return
	}

	writeJSON(w, http.StatusCreated, et)
}

func (h *Handler) listEventTypes(w http.ResponseWriter, r *http.Request) {
	opts := catalog.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
	}

	types, err := h.catalog.ListTypes(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "listEventTypes failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "failed to list event types")
		return
	}

	writeJSON(w, http.StatusOK, types)
}

func (h *Handler) deleteEventType(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, codeValidationError, "name is required")
		return
	}

	if err := h.catalog.DeleteType(r.Context(), name); err != nil {
		writeError(w, http.StatusNotFound, codeEventTypeNotFound, "event type not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
