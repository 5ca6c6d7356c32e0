package subscription

import (
	"context"
	"errors"

	"github.com/relayhq/eventrelay/id"
)

// ErrDuplicateSubscription is returned when an active subscription already
// exists for the same (EventType, TargetURL) pair.
var ErrDuplicateSubscription = errors.New("subscription: duplicate subscription")

// Store defines the persistence contract for subscriptions.
type Store interface {
	// CreateSubscription persists a new subscription. Returns
	// ErrDuplicateSubscription if an active subscription already exists for
	// the same (EventType, TargetURL) pair.
	CreateSubscription(ctx context.Context, sub *Subscription) error

	// GetSubscription returns a subscription by ID.
	GetSubscription(ctx context.Context, subID id.ID) (*Subscription, error)

	// UpdateSubscription applies a patch to an existing subscription,
	// re-checking the uniqueness rule if EventType, TargetURL, or IsActive
	// changes.
	UpdateSubscription(ctx context.Context, subID id.ID, in Input) (*Subscription, error)

	// DeleteSubscription hard-deletes a subscription. Existing delivery logs
	// are unaffected; they carry their own (event_id, subscription_id) pair.
	DeleteSubscription(ctx context.Context, subID id.ID) error

	// ListSubscriptions returns subscriptions matching the given filters.
	ListSubscriptions(ctx context.Context, opts ListOpts) ([]*Subscription, error)

	// ListActiveSubscriptions returns every active subscription for an
	// event type. This is the hot path, called by the fan-out processor
	// for every accepted event.
	ListActiveSubscriptions(ctx context.Context, eventType string) ([]*Subscription, error)

	// CountSubscriptions returns total/active/inactive counts for admin stats.
	CountSubscriptions(ctx context.Context) (total, active, inactive int64, err error)
}
