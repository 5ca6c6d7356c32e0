// Package api provides the HTTP surface for event ingestion and operator
// administration.
//
// Two audiences share one mux: producers call the ingestion routes under
// /api/v1/events, operators call the admin routes under /api/v1/admin.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/relayhq/eventrelay/admin"
	"github.com/relayhq/eventrelay/catalog"
	"github.com/relayhq/eventrelay/event"
	"github.com/relayhq/eventrelay/store"
	"github.com/relayhq/eventrelay/subscription"
)

// Error codes are stable strings on the wire (spec §7); handlers pick one
// of these for every non-2xx response.
const (
	codeMissingIdempotencyKey = "MISSING_IDEMPOTENCY_KEY"
	codeValidationError       = "VALIDATION_ERROR"
	codeDuplicateSubscription = "DUPLICATE_SUBSCRIPTION"
	codeEventNotFound         = "EVENT_NOT_FOUND"
	codeSubscriptionNotFound  = "SUBSCRIPTION_NOT_FOUND"
	codeLogNotFound           = "LOG_NOT_FOUND"
	codeInvalidRetry          = "INVALID_RETRY"
	codeInactiveSubscription  = "INACTIVE_SUBSCRIPTION"
	codeInternalError         = "INTERNAL_ERROR"
	codeEventTypeNotFound     = "EVENT_TYPE_NOT_FOUND"
)

// Ingester is the narrow ingestion surface the API depends on. Satisfied by
// *eventrelay.Relay.
type Ingester interface {
	Ingest(ctx context.Context, idempotencyKey, eventType string, payload []byte) (*event.Event, error)
}

// Handler is the root HTTP handler for the event relay's HTTP surface.
type Handler struct {
	store         store.Store
	ingest        Ingester
	subscriptions *subscription.Service
	admin         *admin.Service
	catalog       *catalog.Catalog
	logger        *slog.Logger
	mux           *http.ServeMux
	started       time.Time
}

// NewHandler creates a new HTTP handler wired to the given services.
func NewHandler(st store.Store, ingestSvc Ingester, subs *subscription.Service, adminSvc *admin.Service, cat *catalog.Catalog, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		store:         st,
		ingest:        ingestSvc,
		subscriptions: subs,
		admin:         adminSvc,
		catalog:       cat,
		logger:        logger,
		mux:           http.NewServeMux(),
		started:       time.Now(),
	}

	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.health)

	// Ingestion
	h.mux.HandleFunc("POST /api/v1/events", h.createEvent)
	h.mux.HandleFunc("GET /api/v1/events/{id}", h.getEvent)

	// Event type catalog (admin)
	h.mux.HandleFunc("POST /api/v1/admin/event-types", h.createEventType)
	h.mux.HandleFunc("GET /api/v1/admin/event-types", h.listEventTypes)
	h.mux.HandleFunc("DELETE /api/v1/admin/event-types/{name}", h.deleteEventType)

	// Subscriptions (admin)
	h.mux.HandleFunc("POST /api/v1/admin/subscriptions", h.createSubscription)
	h.mux.HandleFunc("GET /api/v1/admin/subscriptions", h.listSubscriptions)
	h.mux.HandleFunc("GET /api/v1/admin/subscriptions/{id}", h.getSubscription)
	h.mux.HandleFunc("PUT /api/v1/admin/subscriptions/{id}", h.updateSubscription)
	h.mux.HandleFunc("DELETE /api/v1/admin/subscriptions/{id}", h.deleteSubscription)

	// Delivery logs (admin)
	h.mux.HandleFunc("GET /api/v1/admin/delivery-logs", h.listDeliveryLogs)
	h.mux.HandleFunc("POST /api/v1/admin/delivery-logs/{id}/retry", h.retryDeliveryLog)

	// Stats & reconciliation (admin)
	h.mux.HandleFunc("GET /api/v1/admin/stats", h.getStats)
	h.mux.HandleFunc("POST /api/v1/admin/reconcile", h.reconcile)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.withMiddleware(h.mux).ServeHTTP(w, r)
}

func (h *Handler) withMiddleware(next http.Handler) http.Handler {
	return h.panicRecovery(h.logging(next))
}

func (h *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		h.logger.Info("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (h *Handler) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(h.started).Seconds(),
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// JSON helpers.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"code": code, "error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// queryParam returns a query parameter value, or empty string if not present.
func queryParam(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// queryInt returns a query parameter as int or a default value.
func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	var n int
	for _, c := range v {
		if c < '0' || c > '9' {
			return defaultVal
		}
		n = n*10 + int(c-'0')
	}
	return n
}
