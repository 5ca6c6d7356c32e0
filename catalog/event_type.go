package catalog

import (
	"github.com/relayhq/eventrelay/id"
	"github.com/relayhq/eventrelay/internal/entity"
)

// EventType is a registered event type schema entry.
type EventType struct {
	entity.Entity

	// ID is the unique TypeID for this catalog entry.
	ID id.ID `json:"id"`

	// Definition contains the event type descriptor and its optional schema.
	Definition WebhookDefinition `json:"definition"`
}

// ListOpts configures pagination for event type listing.
type ListOpts struct {
	Offset int
	Limit  int
}
