package admin_test

import (
	"context"
	"testing"
	"time"

	"github.com/relayhq/eventrelay/admin"
	"github.com/relayhq/eventrelay/deliverylog"
	"github.com/relayhq/eventrelay/event"
	"github.com/relayhq/eventrelay/id"
	"github.com/relayhq/eventrelay/queue/memqueue"
	"github.com/relayhq/eventrelay/store/memory"
	"github.com/relayhq/eventrelay/subscription"
)

func ctx() context.Context { return context.Background() }

func TestStatsAggregatesAcrossStores(t *testing.T) {
	s := memory.New()
	subs := subscription.NewService(s, nil)
	q := memqueue.New()
	svc := admin.NewService(s, subs, q, admin.Config{}, nil)

	if err := s.CreateEvent(ctx(), &event.Event{ID: id.NewEventID(), IdempotencyKey: "k1", Type: "a.event", ReceivedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	sub, err := subs.Create(ctx(), subscription.Input{EventType: "a.event", TargetURL: "https://example.com/a"})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.CreateDeliveryLog(ctx(), &deliverylog.DeliveryLog{
		ID: id.NewDeliveryLogID(), EventID: id.NewEventID(), SubscriptionID: sub.ID,
		Status: deliverylog.StatusSuccess, AttemptCount: 1, AttemptedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	stats, err := svc.Stats(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalEvents != 1 {
		t.Fatalf("expected 1 event, got %d", stats.TotalEvents)
	}
	if stats.TotalSubscriptions != 1 || stats.ActiveSubscriptions != 1 {
		t.Fatalf("expected 1 active subscription, got %+v", stats)
	}
	if stats.TotalDeliveries != 1 || stats.SuccessRate != 100 {
		t.Fatalf("expected 100%% success rate, got %+v", stats)
	}
}

func TestRetryDeliveryLogRejectsSuccess(t *testing.T) {
	s := memory.New()
	subs := subscription.NewService(s, nil)
	svc := admin.NewService(s, subs, memqueue.New(), admin.Config{}, nil)

	sub, err := subs.Create(ctx(), subscription.Input{EventType: "a.event", TargetURL: "https://example.com/a"})
	if err != nil {
		t.Fatal(err)
	}

	log := &deliverylog.DeliveryLog{
		ID: id.NewDeliveryLogID(), EventID: id.NewEventID(), SubscriptionID: sub.ID,
		Status: deliverylog.StatusSuccess, AttemptCount: 1, AttemptedAt: time.Now(),
	}
	if err := s.CreateDeliveryLog(ctx(), log); err != nil {
		t.Fatal(err)
	}

	if err := svc.RetryDeliveryLog(ctx(), log.ID); err != admin.ErrInvalidRetry {
		t.Fatalf("expected ErrInvalidRetry, got %v", err)
	}
}

func TestRetryDeliveryLogRejectsInactiveSubscription(t *testing.T) {
	s := memory.New()
	subs := subscription.NewService(s, nil)
	svc := admin.NewService(s, subs, memqueue.New(), admin.Config{}, nil)

	sub, err := subs.Create(ctx(), subscription.Input{EventType: "a.event", TargetURL: "https://example.com/a"})
	if err != nil {
		t.Fatal(err)
	}
	if err := subs.Delete(ctx(), sub.ID); err != nil {
		t.Fatal(err)
	}

	log := &deliverylog.DeliveryLog{
		ID: id.NewDeliveryLogID(), EventID: id.NewEventID(), SubscriptionID: sub.ID,
		Status: deliverylog.StatusFailed, AttemptCount: 1, AttemptedAt: time.Now(),
	}
	if err := s.CreateDeliveryLog(ctx(), log); err != nil {
		t.Fatal(err)
	}

	if err := svc.RetryDeliveryLog(ctx(), log.ID); err != admin.ErrInactiveSubscription {
		t.Fatalf("expected ErrInactiveSubscription, got %v", err)
	}
}

func TestRetryDeliveryLogStartsFreshAttemptTrail(t *testing.T) {
	s := memory.New()
	subs := subscription.NewService(s, nil)
	q := memqueue.New()
	svc := admin.NewService(s, subs, q, admin.Config{}, nil)

	sub, err := subs.Create(ctx(), subscription.Input{EventType: "a.event", TargetURL: "https://example.com/a"})
	if err != nil {
		t.Fatal(err)
	}

	evtID := id.NewEventID()
	// AttemptCount is 3 on the old log; a manual retry must not continue
	// that trail, it must start a brand new one at attempt 1.
	log := &deliverylog.DeliveryLog{
		ID: id.NewDeliveryLogID(), EventID: evtID, SubscriptionID: sub.ID,
		Status: deliverylog.StatusFailed, AttemptCount: 3, AttemptedAt: time.Now(),
	}
	if err := s.CreateDeliveryLog(ctx(), log); err != nil {
		t.Fatal(err)
	}

	if err := svc.RetryDeliveryLog(ctx(), log.ID); err != nil {
		t.Fatal(err)
	}

	job, err := q.Dequeue(ctx(), "delivery")
	if err != nil {
		t.Fatal(err)
	}
	if job == nil || job.Delivery == nil || job.Delivery.Attempt != 1 {
		t.Fatalf("expected a fresh delivery job at attempt 1, got %+v", job)
	}
}

func TestRetryDeliveryLogAppliesConfiguredRetryPolicy(t *testing.T) {
	s := memory.New()
	subs := subscription.NewService(s, nil)
	q := memqueue.New()
	svc := admin.NewService(s, subs, q, admin.Config{DeliveryMaxAttempts: 1, DeliveryInitialDelay: time.Millisecond}, nil)

	sub, err := subs.Create(ctx(), subscription.Input{EventType: "a.event", TargetURL: "https://example.com/a"})
	if err != nil {
		t.Fatal(err)
	}

	log := &deliverylog.DeliveryLog{
		ID: id.NewDeliveryLogID(), EventID: id.NewEventID(), SubscriptionID: sub.ID,
		Status: deliverylog.StatusFailed, AttemptCount: 1, AttemptedAt: time.Now(),
	}
	if err := s.CreateDeliveryLog(ctx(), log); err != nil {
		t.Fatal(err)
	}

	if err := svc.RetryDeliveryLog(ctx(), log.ID); err != nil {
		t.Fatal(err)
	}

	job, err := q.Dequeue(ctx(), "delivery")
	if err != nil {
		t.Fatal(err)
	}
	if job == nil || job.Delivery == nil {
		t.Fatalf("expected a fresh delivery job, got %+v", job)
	}

	// A configured cap of 1 attempt means this fresh trail must not survive
	// a subsequent failure.
	if err := q.Retry(ctx(), job, "subscriber returned 500"); err != nil {
		t.Fatal(err)
	}
	shortCtx, cancel := context.WithTimeout(ctx(), 100*time.Millisecond)
	defer cancel()
	redelivered, _ := q.Dequeue(shortCtx, "delivery")
	if redelivered != nil {
		t.Fatalf("expected manual retry's Attempts=1 policy to drop the job after one failure, got %+v", redelivered)
	}
}

func TestReconcileMissingFanoutRequeuesOrphanedEvents(t *testing.T) {
	s := memory.New()
	subs := subscription.NewService(s, nil)
	q := memqueue.New()
	svc := admin.NewService(s, subs, q, admin.Config{}, nil)

	old := &event.Event{ID: id.NewEventID(), IdempotencyKey: "orphan", Type: "a.event", ReceivedAt: time.Now().Add(-time.Hour)}
	if err := s.CreateEvent(ctx(), old); err != nil {
		t.Fatal(err)
	}

	n, err := svc.ReconcileMissingFanout(ctx(), time.Now().Add(-time.Minute), 10)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 requeued event, got %d", n)
	}

	job, err := q.Dequeue(ctx(), "fanout")
	if err != nil {
		t.Fatal(err)
	}
	if job == nil || job.Fanout == nil || job.Fanout.EventID != old.ID {
		t.Fatalf("expected fanout job for orphaned event, got %+v", job)
	}
}
