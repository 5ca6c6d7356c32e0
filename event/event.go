// Package event defines the immutable Event entity: a record of something a
// producer reported to the relay.
package event

import (
	"time"

	"github.com/relayhq/eventrelay/id"
	"github.com/relayhq/eventrelay/internal/entity"
)

// Event is an immutable record of something a producer reported.
// Once created it is never mutated; retention is operator policy.
type Event struct {
	entity.Entity

	// ID is the unique TypeID for this event.
	ID id.ID `json:"id"`

	// IdempotencyKey is the producer-supplied opaque string that names this
	// event. Unique across all events.
	IdempotencyKey string `json:"idempotencyKey"`

	// Type is the dot-separated event type name (e.g. "invoice.created"),
	// matching ^[A-Za-z0-9._-]+$.
	Type string `json:"eventType"`

	// Payload is the arbitrary structured document reported by the
	// producer, capped at 1 MiB serialized.
	Payload any `json:"payload"`

	// ReceivedAt is the server clock time at acceptance.
	ReceivedAt time.Time `json:"receivedAt"`
}

// ListOpts configures filtering and pagination for event listing.
type ListOpts struct {
	Offset int
	Limit  int
	Type   string
	From   *time.Time
	To     *time.Time
}
