package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relayhq/eventrelay"
	"github.com/relayhq/eventrelay/catalog"
	"github.com/relayhq/eventrelay/deliverylog"
	"github.com/relayhq/eventrelay/event"
	"github.com/relayhq/eventrelay/id"
	"github.com/relayhq/eventrelay/internal/entity"
	"github.com/relayhq/eventrelay/subscription"
)

func ctx() context.Context { return context.Background() }

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	s := New()

	if err := s.Migrate(ctx()); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); !errors.Is(err, eventrelay.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// catalog.Store
// ──────────────────────────────────────────────────

func TestCatalogCRUD(t *testing.T) {
	s := New()

	et := &catalog.EventType{
		Entity: entity.New(),
		ID:     id.NewEventTypeID(),
		Definition: catalog.WebhookDefinition{
			Name:        "invoice.created",
			Description: "Invoice was created",
		},
	}

	if err := s.RegisterType(ctx(), et); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetType(ctx(), "invoice.created")
	if err != nil {
		t.Fatal(err)
	}
	if got.Definition.Name != "invoice.created" {
		t.Fatalf("got name %q", got.Definition.Name)
	}

	got, err = s.GetType(ctx(), "does.not.exist")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil for unregistered type, got %+v", got)
	}

	list, err := s.ListTypes(ctx(), catalog.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 type, got %d", len(list))
	}

	// Upsert (re-register same name).
	et2 := &catalog.EventType{
		Entity: entity.New(),
		ID:     id.NewEventTypeID(),
		Definition: catalog.WebhookDefinition{
			Name:        "invoice.created",
			Description: "Updated description",
		},
	}
	if err := s.RegisterType(ctx(), et2); err != nil {
		t.Fatal(err)
	}

	got, _ = s.GetType(ctx(), "invoice.created")
	if got.Definition.Description != "Updated description" {
		t.Fatalf("expected updated description, got %q", got.Definition.Description)
	}
	if et2.ID != et.ID {
		t.Fatalf("expected ID to be preserved on upsert")
	}

	if err := s.DeleteType(ctx(), "invoice.created"); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetType(ctx(), "invoice.created")
	if got != nil {
		t.Fatalf("expected nil after delete, got %+v", got)
	}
}

// ──────────────────────────────────────────────────
// event.Store
// ──────────────────────────────────────────────────

func TestEventCreateAndDedup(t *testing.T) {
	s := New()

	evt := &event.Event{
		ID:             id.NewEventID(),
		IdempotencyKey: "order-123",
		Type:           "order.created",
		Payload:        map[string]any{"amount": 42},
		ReceivedAt:     time.Now().UTC(),
	}

	if err := s.CreateEvent(ctx(), evt); err != nil {
		t.Fatal(err)
	}

	dup := &event.Event{
		ID:             id.NewEventID(),
		IdempotencyKey: "order-123",
		Type:           "order.created",
		Payload:        map[string]any{"amount": 99},
		ReceivedAt:     time.Now().UTC(),
	}
	if err := s.CreateEvent(ctx(), dup); !errors.Is(err, event.ErrDuplicateIdempotencyKey) {
		t.Fatalf("expected ErrDuplicateIdempotencyKey, got %v", err)
	}

	got, err := s.GetEventByIdempotencyKey(ctx(), "order-123")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != evt.ID {
		t.Fatalf("expected original event to win idempotency race")
	}

	if _, err := s.GetEvent(ctx(), id.NewEventID()); !errors.Is(err, eventrelay.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

func TestEventsWithoutDeliveryLogs(t *testing.T) {
	s := New()

	old := &event.Event{
		ID:             id.NewEventID(),
		IdempotencyKey: "a",
		Type:           "x",
		ReceivedAt:     time.Now().UTC().Add(-time.Hour),
	}
	fresh := &event.Event{
		ID:             id.NewEventID(),
		IdempotencyKey: "b",
		Type:           "x",
		ReceivedAt:     time.Now().UTC(),
	}
	if err := s.CreateEvent(ctx(), old); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateEvent(ctx(), fresh); err != nil {
		t.Fatal(err)
	}

	missing, err := s.EventsWithoutDeliveryLogs(ctx(), time.Now().UTC().Add(-time.Minute), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 1 || missing[0].ID != old.ID {
		t.Fatalf("expected only the old event without logs, got %+v", missing)
	}
}

// ──────────────────────────────────────────────────
// subscription.Store
// ──────────────────────────────────────────────────

func TestSubscriptionCRUD(t *testing.T) {
	s := New()

	sub := &subscription.Subscription{
		Entity:    entity.New(),
		ID:        id.NewSubscriptionID(),
		EventType: "order.created",
		TargetURL: "https://example.com/hooks",
		SecretKey: "whsec_abc",
		IsActive:  true,
	}
	if err := s.CreateSubscription(ctx(), sub); err != nil {
		t.Fatal(err)
	}

	dup := &subscription.Subscription{
		Entity:    entity.New(),
		ID:        id.NewSubscriptionID(),
		EventType: "order.created",
		TargetURL: "https://example.com/hooks",
		IsActive:  true,
	}
	if err := s.CreateSubscription(ctx(), dup); !errors.Is(err, subscription.ErrDuplicateSubscription) {
		t.Fatalf("expected ErrDuplicateSubscription, got %v", err)
	}

	active, err := s.ListActiveSubscriptions(ctx(), "order.created")
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active subscription, got %d", len(active))
	}

	disable := false
	updated, err := s.UpdateSubscription(ctx(), sub.ID, subscription.Input{IsActive: &disable})
	if err != nil {
		t.Fatal(err)
	}
	if updated.IsActive {
		t.Fatalf("expected subscription to be inactive")
	}

	active, _ = s.ListActiveSubscriptions(ctx(), "order.created")
	if len(active) != 0 {
		t.Fatalf("expected 0 active subscriptions after disable, got %d", len(active))
	}

	if err := s.DeleteSubscription(ctx(), sub.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetSubscription(ctx(), sub.ID); !errors.Is(err, eventrelay.ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// deliverylog.Store
// ──────────────────────────────────────────────────

func TestDeliveryLogLifecycle(t *testing.T) {
	s := New()

	evtID := id.NewEventID()
	subID := id.NewSubscriptionID()

	log := &deliverylog.DeliveryLog{
		ID:             id.NewDeliveryLogID(),
		EventID:        evtID,
		SubscriptionID: subID,
		Status:         deliverylog.StatusPending,
		AttemptCount:   1,
		AttemptedAt:    time.Now().UTC(),
	}
	if err := s.CreateDeliveryLog(ctx(), log); err != nil {
		t.Fatal(err)
	}

	code := 500
	body := "internal error"
	errMsg := "HTTP 500"
	if err := s.FinishDeliveryLog(ctx(), log.ID, deliverylog.StatusFailed, &code, &body, &errMsg); err != nil {
		t.Fatal(err)
	}

	// A terminal row cannot be finished again.
	if err := s.FinishDeliveryLog(ctx(), log.ID, deliverylog.StatusSuccess, nil, nil, nil); !errors.Is(err, deliverylog.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}

	total, success, failed, pending, err := s.CountDeliveryLogs(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || success != 0 || failed != 1 || pending != 0 {
		t.Fatalf("unexpected counts: total=%d success=%d failed=%d pending=%d", total, success, failed, pending)
	}

	byEvent, err := s.ListDeliveryLogsByEvent(ctx(), evtID)
	if err != nil {
		t.Fatal(err)
	}
	if len(byEvent) != 1 {
		t.Fatalf("expected 1 log for event, got %d", len(byEvent))
	}
}
