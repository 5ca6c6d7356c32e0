// Package subscription defines the Subscription entity: a long-lived
// interest declaration binding an event type to a delivery target.
package subscription

import (
	"github.com/relayhq/eventrelay/id"
	"github.com/relayhq/eventrelay/internal/entity"
)

// Subscription binds an event type to a target URL. At most one active
// Subscription may exist for a given (EventType, TargetURL) pair.
type Subscription struct {
	entity.Entity

	// ID is the unique TypeID for this subscription.
	ID id.ID `json:"id"`

	// EventType is the event type this subscription is interested in.
	EventType string `json:"eventType"`

	// TargetURL is the webhook delivery URL. Must be an absolute http(s) URL.
	TargetURL string `json:"targetUrl"`

	// SecretKey is the HMAC signing secret, generated server-side and
	// returned exactly once on create. Never re-serialized afterward.
	SecretKey string `json:"secretKey,omitempty"`

	// IsActive indicates whether the subscription currently receives
	// deliveries.
	IsActive bool `json:"isActive"`
}

// Input is the creation/update payload for subscriptions.
type Input struct {
	EventType string `json:"eventType"`
	TargetURL string `json:"targetUrl"`
	IsActive  *bool  `json:"isActive,omitempty"`
}

// ListOpts configures filtering and pagination for subscription listing.
type ListOpts struct {
	Offset    int
	Limit     int
	EventType string
	IsActive  *bool
}
