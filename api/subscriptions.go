package api

import (
	"errors"
	"net/http"

	eventrelay "github.com/relayhq/eventrelay"
	"github.com/relayhq/eventrelay/id"
	"github.com/relayhq/eventrelay/subscription"
)

func (h *Handler) createSubscription(w http.ResponseWriter, r *http.Request) {
	var in subscription.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationError, "malformed request body")
		return
	}

	sub, err := h.subscriptions.Create(r.Context(), in)
	if err != nil {
		var verr *subscription.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, codeValidationError, verr.Error())
			return
		}
		if errors.Is(err, subscription.ErrDuplicateSubscription) {
			writeError(w, http.StatusConflict, codeDuplicateSubscription, "an active subscription already exists for this event type and target url")
			return
		}
		h.logger.ErrorContext(r.Context(), "createSubscription failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "failed to create subscription")
		return
	}

	// The secret is returned in full exactly once, on this response.
	writeJSON(w, http.StatusCreated, sub)
}

// redactSecret returns a copy of sub with SecretKey cleared. The secret is
// only ever returned in full on the create response (spec: "returned
// exactly once on create"); every subsequent read scrubs it.
func redactSecret(sub *subscription.Subscription) *subscription.Subscription {
	redacted := *sub
	redacted.SecretKey = ""
	return &redacted
}

func redactSecrets(subs []*subscription.Subscription) []*subscription.Subscription {
	redacted := make([]*subscription.Subscription, len(subs))
	for i, sub := range subs {
		redacted[i] = redactSecret(sub)
	}
	return redacted
}

func (h *Handler) getSubscription(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseSubscriptionID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationError, "invalid subscription id")
		return
	}

	sub, err := h.subscriptions.Get(r.Context(), subID)
	if err != nil {
		if errors.Is(err, eventrelay.ErrSubscriptionNotFound) {
			writeError(w, http.StatusNotFound, codeSubscriptionNotFound, "subscription not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "getSubscription failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "failed to get subscription")
		return
	}

	writeJSON(w, http.StatusOK, redactSecret(sub))
}

func (h *Handler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	opts := subscription.ListOpts{
		Offset:    queryInt(r, "offset", 0),
		Limit:     queryInt(r, "limit", 50),
		EventType: queryParam(r, "eventType"),
	}
	if v := queryParam(r, "isActive"); v != "" {
		active := v == "true"
		opts.IsActive = &active
	}
	if page := queryInt(r, "page", 0); page > 0 {
		opts.Offset = (page - 1) * opts.Limit
	}

	subs, err := h.subscriptions.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "listSubscriptions failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "failed to list subscriptions")
		return
	}

	writeJSON(w, http.StatusOK, redactSecrets(subs))
}

func (h *Handler) updateSubscription(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseSubscriptionID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationError, "invalid subscription id")
		return
	}

	var in subscription.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationError, "malformed request body")
		return
	}

	sub, err := h.subscriptions.Update(r.Context(), subID, in)
	if err != nil {
		var verr *subscription.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, codeValidationError, verr.Error())
			return
		}
		if errors.Is(err, subscription.ErrDuplicateSubscription) {
			writeError(w, http.StatusConflict, codeDuplicateSubscription, "an active subscription already exists for this event type and target url")
			return
		}
		if errors.Is(err, eventrelay.ErrSubscriptionNotFound) {
			writeError(w, http.StatusNotFound, codeSubscriptionNotFound, "subscription not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "updateSubscription failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "failed to update subscription")
		return
	}

	writeJSON(w, http.StatusOK, redactSecret(sub))
}

func (h *Handler) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseSubscriptionID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationError, "invalid subscription id")
		return
	}

	if err := h.subscriptions.Delete(r.Context(), subID); err != nil {
		if errors.Is(err, eventrelay.ErrSubscriptionNotFound) {
			writeError(w, http.StatusNotFound, codeSubscriptionNotFound, "subscription not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "deleteSubscription failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "failed to delete subscription")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
