package catalog

import "encoding/json"

// WebhookDefinition is the optional JSON Schema registered for an event
// type. Registering one is pure enrichment: ingestion validates against it
// when present and is a no-op otherwise.
type WebhookDefinition struct {
	// Name is the event type name this schema applies to.
	Name string `json:"name"`

	// Description is a human-readable explanation of when this event fires.
	Description string `json:"description,omitempty"`

	// Schema is a JSON Schema (draft-07) describing the payload shape.
	Schema json.RawMessage `json:"schema,omitempty"`
}
