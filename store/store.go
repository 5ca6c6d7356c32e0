// Package store defines the composite Store interface for all relay
// persistence.
//
// The composite store follows the teacher's ControlPlane pattern: each
// subsystem defines its own store interface, and the aggregate Store
// composes them all.
package store

import (
	"context"

	"github.com/relayhq/eventrelay/catalog"
	"github.com/relayhq/eventrelay/deliverylog"
	"github.com/relayhq/eventrelay/event"
	"github.com/relayhq/eventrelay/subscription"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface — same pattern as ControlPlane.
type Store interface {
	event.Store
	subscription.Store
	deliverylog.Store
	catalog.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
