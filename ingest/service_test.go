package ingest_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/relayhq/eventrelay/catalog"
	"github.com/relayhq/eventrelay/ingest"
	"github.com/relayhq/eventrelay/queue"
	"github.com/relayhq/eventrelay/queue/memqueue"
	"github.com/relayhq/eventrelay/store/memory"
)

func ctx() context.Context { return context.Background() }

func TestIngestPersistsAndSchedulesFanout(t *testing.T) {
	s := memory.New()
	q := memqueue.New()
	svc := ingest.NewService(s, q, nil, nil)

	evt, err := svc.Ingest(ctx(), "idem-1", "invoice.created", json.RawMessage(`{"amount":100}`))
	if err != nil {
		t.Fatal(err)
	}
	if evt.IdempotencyKey != "idem-1" || evt.Type != "invoice.created" {
		t.Fatalf("unexpected event: %+v", evt)
	}

	job, err := q.Dequeue(ctx(), queue.TopicFanout)
	if err != nil {
		t.Fatal(err)
	}
	if job == nil || job.Fanout == nil || job.Fanout.EventID != evt.ID {
		t.Fatalf("expected a fanout job for %v, got %+v", evt.ID, job)
	}
}

func TestIngestDuplicateIdempotencyKeyReturnsOriginal(t *testing.T) {
	s := memory.New()
	q := memqueue.New()
	svc := ingest.NewService(s, q, nil, nil)

	first, err := svc.Ingest(ctx(), "idem-2", "invoice.created", json.RawMessage(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	// Drain the first fanout job so it doesn't get mistaken for a second one.
	if _, err := q.Dequeue(ctx(), queue.TopicFanout); err != nil {
		t.Fatal(err)
	}

	second, err := svc.Ingest(ctx(), "idem-2", "invoice.created", json.RawMessage(`{"different":true}`))
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected duplicate ingest to return original event %v, got %v", first.ID, second.ID)
	}

	pollCtx, cancel := context.WithTimeout(ctx(), 50*time.Millisecond)
	defer cancel()
	if job, _ := q.Dequeue(pollCtx, queue.TopicFanout); job != nil {
		t.Fatalf("expected no second fanout job for a duplicate ingest, got %+v", job)
	}
}

func TestIngestRejectsMalformedEventType(t *testing.T) {
	svc := ingest.NewService(memory.New(), memqueue.New(), nil, nil)

	_, err := svc.Ingest(ctx(), "idem-3", "invoice created", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected validation error for event type containing a space")
	}
	if _, ok := err.(*ingest.ValidationError); !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
}

func TestIngestRejectsInvalidJSONPayload(t *testing.T) {
	svc := ingest.NewService(memory.New(), memqueue.New(), nil, nil)

	_, err := svc.Ingest(ctx(), "idem-4", "invoice.created", json.RawMessage(`not json`))
	if err == nil {
		t.Fatal("expected validation error for malformed JSON payload")
	}
}

func TestIngestValidatesAgainstRegisteredSchema(t *testing.T) {
	s := memory.New()
	q := memqueue.New()
	cat := catalog.NewCatalog(s, catalog.Config{}, nil)
	svc := ingest.NewService(s, q, nil, nil).WithCatalog(cat)

	schema := json.RawMessage(`{
		"type": "object",
		"required": ["amount"],
		"properties": {"amount": {"type": "number"}}
	}`)
	if _, err := cat.RegisterType(ctx(), catalog.WebhookDefinition{Name: "invoice.created", Schema: schema}); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Ingest(ctx(), "idem-5", "invoice.created", json.RawMessage(`{"amount":"not-a-number"}`)); err == nil {
		t.Fatal("expected schema validation to reject a non-numeric amount")
	}

	if _, err := svc.Ingest(ctx(), "idem-6", "invoice.created", json.RawMessage(`{"amount":42}`)); err != nil {
		t.Fatalf("expected a schema-conformant payload to be accepted, got %v", err)
	}
}
