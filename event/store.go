package event

import (
	"context"
	"errors"
	"time"

	"github.com/relayhq/eventrelay/id"
)

// ErrDuplicateIdempotencyKey is returned when an event with the same
// idempotency key already exists. Not an application error: callers should
// treat it as "already accepted" and look up the winning row.
var ErrDuplicateIdempotencyKey = errors.New("event: duplicate idempotency key")

// Store defines the persistence contract for events.
//
// CreateEvent is the sole serialization point for idempotency: exactly one
// concurrent insert of a given idempotency key succeeds, the rest observe
// ErrDuplicateIdempotencyKey and must look the winning row up via
// GetEventByIdempotencyKey.
type Store interface {
	// CreateEvent persists a new event. Must be durable before returning.
	// Returns ErrDuplicateIdempotencyKey if the key already exists.
	CreateEvent(ctx context.Context, evt *Event) error

	// GetEvent returns an event by ID.
	GetEvent(ctx context.Context, evtID id.ID) (*Event, error)

	// GetEventByIdempotencyKey returns the event previously stored under the
	// given idempotency key, if any.
	GetEventByIdempotencyKey(ctx context.Context, key string) (*Event, error)

	// ListEvents returns events, optionally filtered by type or time range.
	ListEvents(ctx context.Context, opts ListOpts) ([]*Event, error)

	// EventsWithoutDeliveryLogs returns events older than the given
	// horizon that have zero delivery logs, i.e. events whose fan-out job
	// may have been lost. Supports the operator-triggered reconciliation
	// rescan (spec §9 open question 2).
	EventsWithoutDeliveryLogs(ctx context.Context, olderThan time.Time, limit int) ([]*Event, error)

	// CountEvents returns the total number of events, for admin stats.
	CountEvents(ctx context.Context) (int64, error)
}
