package api

import (
	"errors"
	"net/http"
	"time"

	eventrelay "github.com/relayhq/eventrelay"
	"github.com/relayhq/eventrelay/admin"
	"github.com/relayhq/eventrelay/deliverylog"
	"github.com/relayhq/eventrelay/id"
)

func (h *Handler) listDeliveryLogs(w http.ResponseWriter, r *http.Request) {
	opts := deliverylog.ListOpts{
		Offset:    queryInt(r, "offset", 0),
		Limit:     queryInt(r, "limit", 50),
		EventType: queryParam(r, "eventType"),
	}

	if v := queryParam(r, "eventId"); v != "" {
		evtID, err := id.ParseEventID(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidationError, "invalid eventId")
			return
		}
		opts.EventID = evtID
	}
	if v := queryParam(r, "subscriptionId"); v != "" {
		subID, err := id.ParseSubscriptionID(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidationError, "invalid subscriptionId")
			return
		}
		opts.SubscriptionID = subID
	}
	if v := queryParam(r, "status"); v != "" {
		opts.Status = deliverylog.Status(v)
	}
	if v := queryParam(r, "startDate"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidationError, "invalid startDate")
			return
		}
		opts.From = &from
	}
	if v := queryParam(r, "endDate"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidationError, "invalid endDate")
			return
		}
		opts.To = &to
	}
	if page := queryInt(r, "page", 0); page > 0 {
		opts.Offset = (page - 1) * opts.Limit
	}

	logs, err := h.admin.DeliveryLogs(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "listDeliveryLogs failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "failed to list delivery logs")
		return
	}

	writeJSON(w, http.StatusOK, logs)
}

func (h *Handler) retryDeliveryLog(w http.ResponseWriter, r *http.Request) {
	logID, err := id.ParseDeliveryLogID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationError, "invalid delivery log id")
		return
	}

	if err := h.admin.RetryDeliveryLog(r.Context(), logID); err != nil {
		switch {
		case errors.Is(err, admin.ErrInvalidRetry):
			writeError(w, http.StatusBadRequest, codeInvalidRetry, "delivery log has already succeeded")
		case errors.Is(err, admin.ErrInactiveSubscription):
			writeError(w, http.StatusBadRequest, codeInactiveSubscription, "subscription is inactive")
		case errors.Is(err, eventrelay.ErrDeliveryLogNotFound):
			writeError(w, http.StatusNotFound, codeLogNotFound, "delivery log not found")
		default:
			h.logger.ErrorContext(r.Context(), "retryDeliveryLog failed", "error", err)
			writeError(w, http.StatusInternalServerError, codeInternalError, "failed to retry delivery log")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "requeued"})
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	olderThan := time.Now().Add(-5 * time.Minute)
	if v := queryParam(r, "olderThanSeconds"); v != "" {
		if secs := queryInt(r, "olderThanSeconds", 300); secs > 0 {
			olderThan = time.Now().Add(-time.Duration(secs) * time.Second)
		}
	}
	limit := queryInt(r, "limit", 100)

	n, err := h.admin.ReconcileMissingFanout(r.Context(), olderThan, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "reconcile failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "failed to reconcile")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"requeued": n})
}
