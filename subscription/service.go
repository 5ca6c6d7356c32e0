package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/relayhq/eventrelay/id"
	"github.com/relayhq/eventrelay/internal/entity"
	"github.com/relayhq/eventrelay/signature"
)

// eventTypePattern mirrors the ingestion grammar; subscriptions bind to a
// single concrete event type, not a glob pattern.
const eventTypePattern = `^[A-Za-z0-9._-]+$`

// Service provides subscription management operations for the admin surface.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new subscription service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Create registers a new subscription. The generated secret is stored with
// the subscription and returned in full on the Subscription Create returns.
func (svc *Service) Create(ctx context.Context, in Input) (*Subscription, error) {
	if err := validateEventType(in.EventType); err != nil {
		return nil, err
	}
	if err := validateTargetURL(in.TargetURL); err != nil {
		return nil, err
	}

	sub := &Subscription{
		Entity:    entity.New(),
		ID:        id.NewSubscriptionID(),
		EventType: in.EventType,
		TargetURL: in.TargetURL,
		SecretKey: signature.GenerateSecret(),
		IsActive:  true,
	}

	if err := svc.store.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	return sub, nil
}

// Get returns a subscription by ID.
func (svc *Service) Get(ctx context.Context, subID id.ID) (*Subscription, error) {
	return svc.store.GetSubscription(ctx, subID)
}

// Update patches an existing subscription's event type, target URL, or
// active flag.
func (svc *Service) Update(ctx context.Context, subID id.ID, in Input) (*Subscription, error) {
	if in.EventType != "" {
		if err := validateEventType(in.EventType); err != nil {
			return nil, err
		}
	}
	if in.TargetURL != "" {
		if err := validateTargetURL(in.TargetURL); err != nil {
			return nil, err
		}
	}

	return svc.store.UpdateSubscription(ctx, subID, in)
}

// Delete hard-deletes a subscription.
func (svc *Service) Delete(ctx context.Context, subID id.ID) error {
	return svc.store.DeleteSubscription(ctx, subID)
}

// List returns subscriptions matching the given filters.
func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*Subscription, error) {
	return svc.store.ListSubscriptions(ctx, opts)
}

// ValidationError indicates invalid subscription input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("subscription validation: %s: %s", e.Field, e.Message)
}

func validateEventType(t string) error {
	if t == "" {
		return &ValidationError{Field: "eventType", Message: "required"}
	}
	for _, r := range t {
		if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' ||
			r == '.' || r == '_' || r == '-') {
			return &ValidationError{Field: "eventType", Message: "must match " + eventTypePattern}
		}
	}
	return nil
}

func validateTargetURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return &ValidationError{Field: "targetUrl", Message: "invalid URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "targetUrl", Message: "must be http or https"}
	}
	if u.Host == "" {
		return &ValidationError{Field: "targetUrl", Message: "must be absolute"}
	}
	return nil
}
