package catalog

import "context"

// Store defines the persistence contract for the optional event-type schema
// catalog.
type Store interface {
	// RegisterType creates or updates a schema for an event type.
	RegisterType(ctx context.Context, et *EventType) error

	// GetType returns a registered schema by event type name. Returns
	// (nil, nil) if none is registered — absence is not an error, since an
	// event type with no schema is fully valid.
	GetType(ctx context.Context, name string) (*EventType, error)

	// ListTypes returns all registered event type schemas.
	ListTypes(ctx context.Context, opts ListOpts) ([]*EventType, error)

	// DeleteType removes a registered schema.
	DeleteType(ctx context.Context, name string) error
}
