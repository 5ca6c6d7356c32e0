package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	eventrelay "github.com/relayhq/eventrelay"
	"github.com/relayhq/eventrelay/deliverylog"
	"github.com/relayhq/eventrelay/event"
	"github.com/relayhq/eventrelay/id"
	"github.com/relayhq/eventrelay/ingest"
)

// eventWithLogs is the wire shape for GET /api/v1/events/{id}: the event
// plus every delivery log recorded against it, most recently attempted
// first, for operator debugging.
type eventWithLogs struct {
	*event.Event
	DeliveryLogs []*deliverylog.DeliveryLog `json:"deliveryLogs"`
}

type createEventRequest struct {
	EventType string          `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
}

func (h *Handler) createEvent(w http.ResponseWriter, r *http.Request) {
	idempotencyKey := r.Header.Get("X-Idempotency-Key")
	if idempotencyKey == "" {
		writeError(w, http.StatusBadRequest, codeMissingIdempotencyKey, "X-Idempotency-Key header is required")
		return
	}

	var req createEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationError, "malformed request body")
		return
	}

	evt, err := h.ingest.Ingest(r.Context(), idempotencyKey, req.EventType, req.Payload)
	if err != nil {
		var verr *ingest.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, codeValidationError, verr.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "createEvent failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "failed to ingest event")
		return
	}

	// 202 for both first-sighting and duplicate-key paths: acceptance, not
	// creation, is what's being acknowledged (spec §4.4, §8).
	writeJSON(w, http.StatusAccepted, evt)
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	evtID, err := id.ParseEventID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationError, "invalid event id")
		return
	}

	evt, err := h.store.GetEvent(r.Context(), evtID)
	if err != nil {
		if errors.Is(err, eventrelay.ErrEventNotFound) {
			writeError(w, http.StatusNotFound, codeEventNotFound, "event not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "getEvent failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "failed to get event")
		return
	}

	logs, err := h.store.ListDeliveryLogsByEvent(r.Context(), evtID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "getEvent failed to load delivery logs", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "failed to load delivery logs")
		return
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].AttemptedAt.After(logs[j].AttemptedAt) })

	writeJSON(w, http.StatusOK, &eventWithLogs{Event: evt, DeliveryLogs: logs})
}
