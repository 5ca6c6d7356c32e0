package eventrelay

import (
	"errors"

	"github.com/relayhq/eventrelay/admin"
	"github.com/relayhq/eventrelay/deliverylog"
	"github.com/relayhq/eventrelay/event"
	"github.com/relayhq/eventrelay/subscription"
)

// Sentinel errors returned by relay operations. HTTP handlers translate
// these into the stable wire codes via errors.Is at the API boundary.
//
// The idempotency, uniqueness, and state-transition sentinels are defined
// in their owning packages (event, subscription, deliverylog) so those
// packages can be consumed by ingest/fanout/delivery/admin without an
// import cycle back through this package; they are re-exported here for a
// single stable top-level error surface.
var (
	// ErrNoStore is returned when a Relay is created without a store.
	ErrNoStore = errors.New("eventrelay: store is required")

	// ErrNoQueue is returned when a Relay is created without a queue.
	ErrNoQueue = errors.New("eventrelay: queue is required")

	// ErrEventNotFound is returned when an event cannot be found.
	ErrEventNotFound = errors.New("eventrelay: event not found")

	// ErrSubscriptionNotFound is returned when a subscription cannot be found.
	ErrSubscriptionNotFound = errors.New("eventrelay: subscription not found")

	// ErrDeliveryLogNotFound is returned when a delivery log cannot be found.
	ErrDeliveryLogNotFound = errors.New("eventrelay: delivery log not found")

	// ErrDuplicateIdempotencyKey is returned when an event with the same
	// idempotency key already exists. Not an application error: callers
	// should treat it as "already accepted".
	ErrDuplicateIdempotencyKey = event.ErrDuplicateIdempotencyKey

	// ErrDuplicateSubscription is returned when an active subscription
	// already exists for the same (event_type, target_url) pair.
	ErrDuplicateSubscription = subscription.ErrDuplicateSubscription

	// ErrIllegalTransition is returned when finishing a delivery log that
	// is not currently pending.
	ErrIllegalTransition = deliverylog.ErrIllegalTransition

	// ErrInvalidRetry is returned when an admin retry targets a delivery
	// log that already succeeded.
	ErrInvalidRetry = admin.ErrInvalidRetry

	// ErrInactiveSubscription is returned when an operation requires an
	// active subscription and the subscription is inactive or deleted.
	ErrInactiveSubscription = admin.ErrInactiveSubscription

	// ErrValidation names a malformed ingestion request. No package in this
	// module returns it; ingest reports these as *ingest.ValidationError.
	ErrValidation = errors.New("eventrelay: validation failed")

	// ErrInvalidURL names a subscription target_url that is not a
	// syntactically valid absolute HTTP(S) URL. No package in this module
	// returns it; subscription reports it as *subscription.ValidationError.
	ErrInvalidURL = errors.New("eventrelay: invalid target url")

	// ErrPayloadTooLarge names a serialized event payload over the 1 MiB
	// cap. No package in this module returns it; ingest reports it as
	// *ingest.ValidationError.
	ErrPayloadTooLarge = errors.New("eventrelay: payload exceeds 1 MiB")

	// ErrPayloadValidationFailed names a payload that fails the registered
	// JSON Schema for its event type. No package in this module returns it;
	// ingest reports it as *ingest.ValidationError.
	ErrPayloadValidationFailed = errors.New("eventrelay: payload validation failed")

	// ErrStoreClosed is returned when a store operation is attempted after
	// the store is closed.
	ErrStoreClosed = errors.New("eventrelay: store is closed")

	// ErrMigrationFailed names a failed database migration. No package in
	// this module returns it; the Postgres store's Migrate wraps the
	// migrator's error in its own message instead.
	ErrMigrationFailed = errors.New("eventrelay: migration failed")
)
