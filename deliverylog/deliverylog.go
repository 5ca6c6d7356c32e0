// Package deliverylog defines the append-only DeliveryLog entity: one row
// per attempt against one (Event, Subscription) pair.
package deliverylog

import (
	"time"

	"github.com/relayhq/eventrelay/id"
)

// Status is the terminal or in-flight state of a single delivery attempt.
type Status string

const (
	// StatusPending indicates the attempt's HTTP call has not yet returned.
	StatusPending Status = "pending"

	// StatusSuccess indicates the attempt completed with a 2xx response.
	// Terminal.
	StatusSuccess Status = "success"

	// StatusFailed indicates the attempt completed with a non-2xx response
	// or a transport-level error. Terminal.
	StatusFailed Status = "failed"
)

// DeliveryLog is one immutable record of a single delivery attempt.
// Once Status leaves StatusPending the row is never mutated again; a
// subsequent attempt for the same (EventID, SubscriptionID) pair produces a
// brand new row with a higher AttemptCount.
type DeliveryLog struct {
	// ID is the unique TypeID for this log row.
	ID id.ID `json:"id"`

	// EventID references the event being delivered.
	EventID id.ID `json:"eventId"`

	// SubscriptionID references the target subscription.
	SubscriptionID id.ID `json:"subscriptionId"`

	// Status is the current state of this attempt.
	Status Status `json:"status"`

	// AttemptCount is the 1-based ordinal of this attempt among all attempts
	// for (EventID, SubscriptionID).
	AttemptCount int `json:"attemptCount"`

	// AttemptedAt is when this row was created, immediately before the HTTP
	// call was issued.
	AttemptedAt time.Time `json:"attemptedAt"`

	// ResponseStatusCode is the HTTP status returned by the subscriber, or
	// nil if the attempt failed before a response was received.
	ResponseStatusCode *int `json:"responseStatusCode,omitempty"`

	// ResponseBody is the subscriber's response body, truncated to 1000
	// bytes, or nil if no response body was captured.
	ResponseBody *string `json:"responseBody,omitempty"`

	// ErrorMessage describes a transport-level failure (DNS, connect, TLS,
	// timeout, aborted), or an "HTTP <code>" summary for non-2xx responses.
	ErrorMessage *string `json:"errorMessage,omitempty"`
}

// ListOpts filters and paginates DeliveryLog reads.
type ListOpts struct {
	Offset         int
	Limit          int
	EventID        id.ID
	SubscriptionID id.ID
	Status         Status
	EventType      string
	From           *time.Time
	To             *time.Time
}

// maxResponseBody is the byte cap applied to stored response bodies (spec:
// "truncated to 1000 bytes").
const maxResponseBody = 1000

// Truncate caps s at maxResponseBody bytes.
func Truncate(s string) string {
	if len(s) <= maxResponseBody {
		return s
	}
	return s[:maxResponseBody]
}
