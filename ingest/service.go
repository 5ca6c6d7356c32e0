// Package ingest implements the Ingestion API (C4): validates an inbound
// event, deduplicates it by idempotency key, persists it, and schedules
// fan-out.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/relayhq/eventrelay/catalog"
	"github.com/relayhq/eventrelay/event"
	"github.com/relayhq/eventrelay/id"
	"github.com/relayhq/eventrelay/observability"
	"github.com/relayhq/eventrelay/queue"
)

// maxPayloadBytes is the spec's cap on the marshaled event payload (1 MiB).
const maxPayloadBytes = 1 << 20

var eventTypePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidationError reports a rejected ingestion request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ingest: %s: %s", e.Field, e.Message)
}

// Store is the persistence surface ingestion needs.
type Store interface {
	CreateEvent(ctx context.Context, evt *event.Event) error
	GetEventByIdempotencyKey(ctx context.Context, key string) (*event.Event, error)
}

// Service accepts events, deduplicates them, and schedules fan-out.
type Service struct {
	store     Store
	queue     queue.Queue
	logger    *slog.Logger
	metrics   *observability.Metrics
	catalog   *catalog.Catalog
	validator *catalog.Validator
}

// NewService creates an ingestion service.
func NewService(store Store, q queue.Queue, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, queue: q, logger: logger, metrics: metrics, validator: catalog.NewValidator()}
}

// WithCatalog attaches the event type catalog, enabling optional per-event-
// type JSON Schema validation on ingest. Without it, any well-formed
// payload is accepted regardless of event type.
func (s *Service) WithCatalog(c *catalog.Catalog) *Service {
	s.catalog = c
	return s
}

// Ingest validates, deduplicates, persists, and schedules fan-out for an
// inbound event. A duplicate idempotencyKey returns the original event and
// does not trigger a second fan-out.
func (s *Service) Ingest(ctx context.Context, idempotencyKey, eventType string, payload json.RawMessage) (*event.Event, error) {
	if idempotencyKey == "" {
		return nil, &ValidationError{Field: "idempotencyKey", Message: "must not be empty"}
	}
	if eventType == "" {
		return nil, &ValidationError{Field: "eventType", Message: "must not be empty"}
	}
	if !eventTypePattern.MatchString(eventType) {
		return nil, &ValidationError{Field: "eventType", Message: "must match ^[A-Za-z0-9._-]+$"}
	}
	if len(payload) > maxPayloadBytes {
		return nil, &ValidationError{Field: "payload", Message: "exceeds 1 MiB limit"}
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, &ValidationError{Field: "payload", Message: "must be valid JSON"}
	}

	if s.catalog != nil {
		et, err := s.catalog.GetType(ctx, eventType)
		if err != nil {
			return nil, fmt.Errorf("ingest: lookup event type: %w", err)
		}
		if et != nil && len(et.Definition.Schema) > 0 {
			if validateErr := s.validator.Validate(et.Definition.Schema, decoded); validateErr != nil {
				return nil, &ValidationError{Field: "payload", Message: validateErr.Error()}
			}
		}
	}

	evt := &event.Event{
		ID:             id.New(id.PrefixEvent),
		IdempotencyKey: idempotencyKey,
		Type:           eventType,
		Payload:        decoded,
		ReceivedAt:     time.Now().UTC(),
	}

	if err := s.store.CreateEvent(ctx, evt); err != nil {
		if errors.Is(err, event.ErrDuplicateIdempotencyKey) {
			existing, lookupErr := s.store.GetEventByIdempotencyKey(ctx, idempotencyKey)
			if lookupErr != nil {
				return nil, fmt.Errorf("ingest: lookup duplicate: %w", lookupErr)
			}
			s.logger.DebugContext(ctx, "ingest: duplicate idempotency key",
				"idempotency_key", idempotencyKey, "event_id", existing.ID)
			return existing, nil
		}
		return nil, fmt.Errorf("ingest: persist event: %w", err)
	}

	if s.metrics != nil {
		s.metrics.EventsIngestedTotal.Inc()
	}

	if err := s.queue.EnqueueFanout(ctx, queue.FanoutJob{
		EventID:   evt.ID,
		EventType: evt.Type,
	}, queue.EnqueueFanoutOptions{Attempts: 1}); err != nil {
		// The event is durably persisted; a lost fan-out job can be
		// recovered later via an operator-triggered reconciliation scan.
		s.logger.WarnContext(ctx, "ingest: enqueue fanout failed, event persisted without scheduled delivery",
			"event_id", evt.ID, "error", err)
	}

	s.logger.DebugContext(ctx, "event ingested", "event_id", evt.ID, "type", evt.Type)
	return evt, nil
}
