// Package eventrelay provides a reliable event-to-webhook relay for Go.
//
// eventrelay is a library — not a service. Import it into your application
// to get idempotent event ingestion, subscription-based webhook fan-out,
// HMAC-signed delivery with automatic retries, and an operator surface for
// inspecting and replaying failed deliveries.
//
// Key features:
//   - Idempotent event ingestion keyed on a caller-supplied idempotency key
//   - Subscription-based fan-out: one event type may have many active
//     webhook subscribers
//   - HMAC-SHA256 signed deliveries with a durable, at-least-once job queue
//   - Exponential backoff with jitter, bounded retry attempts
//   - Append-only delivery logs for every attempt, queryable by operators
//   - Optional per-event-type JSON Schema validation
//
// Quick start:
//
//	r, err := eventrelay.New(
//	    eventrelay.WithStore(memoryStore),
//	    eventrelay.WithQueue(memoryQueue),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	r.Start(ctx)
//
//	if _, err := r.Subscriptions().Create(ctx, subscription.Input{
//	    EventType: "invoice.created",
//	    TargetURL: "https://example.com/hooks",
//	}); err != nil {
//	    log.Fatal(err)
//	}
//
//	evt, err := r.Ingest(ctx, "idem-key-123", "invoice.created",
//	    []byte(`{"invoice_id":"inv_01h..."}`))
package eventrelay
