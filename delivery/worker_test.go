package delivery_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relayhq/eventrelay/deliverylog"
	"github.com/relayhq/eventrelay/delivery"
	"github.com/relayhq/eventrelay/event"
	"github.com/relayhq/eventrelay/id"
	"github.com/relayhq/eventrelay/queue"
	"github.com/relayhq/eventrelay/queue/memqueue"
	"github.com/relayhq/eventrelay/store/memory"
	"github.com/relayhq/eventrelay/subscription"
)

func ctx() context.Context { return context.Background() }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWorkerFinishesLogAndAcksOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := memory.New()
	q := memqueue.New()

	evt := &event.Event{ID: id.NewEventID(), IdempotencyKey: "k1", Type: "a.event", ReceivedAt: time.Now().UTC()}
	if err := s.CreateEvent(ctx(), evt); err != nil {
		t.Fatal(err)
	}
	sub := &subscription.Subscription{ID: id.NewSubscriptionID(), EventType: "a.event", TargetURL: srv.URL, SecretKey: "s", IsActive: true}
	if err := s.CreateSubscription(ctx(), sub); err != nil {
		t.Fatal(err)
	}

	w := delivery.NewWorker(s, q, delivery.Config{Concurrency: 1, RequestTimeout: 2 * time.Second, MaxRetryAttempts: 3}, nil)
	runCtx, cancel := context.WithCancel(ctx())
	defer cancel()
	w.Start(runCtx)
	defer w.Stop(ctx())

	if err := q.EnqueueDelivery(ctx(), queue.DeliveryJob{EventID: evt.ID, SubscriptionID: sub.ID, Attempt: 1}, queue.EnqueueDeliveryOptions{}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, func() bool {
		logs, err := s.ListDeliveryLogsByEvent(ctx(), evt.ID)
		return err == nil && len(logs) == 1 && logs[0].Status == deliverylog.StatusSuccess
	})
}

func TestWorkerRetriesFailureUnderMaxAttempts(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := memory.New()
	q := memqueue.New()

	evt := &event.Event{ID: id.NewEventID(), IdempotencyKey: "k2", Type: "a.event", ReceivedAt: time.Now().UTC()}
	if err := s.CreateEvent(ctx(), evt); err != nil {
		t.Fatal(err)
	}
	sub := &subscription.Subscription{ID: id.NewSubscriptionID(), EventType: "a.event", TargetURL: srv.URL, SecretKey: "s", IsActive: true}
	if err := s.CreateSubscription(ctx(), sub); err != nil {
		t.Fatal(err)
	}

	w := delivery.NewWorker(s, q, delivery.Config{Concurrency: 1, RequestTimeout: 2 * time.Second, MaxRetryAttempts: 3}, nil)
	runCtx, cancel := context.WithCancel(ctx())
	defer cancel()
	w.Start(runCtx)
	defer w.Stop(ctx())

	if err := q.EnqueueDelivery(ctx(), queue.DeliveryJob{EventID: evt.ID, SubscriptionID: sub.ID, Attempt: 1}, queue.EnqueueDeliveryOptions{}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 1*time.Second, func() bool {
		logs, err := s.ListDeliveryLogsByEvent(ctx(), evt.ID)
		return err == nil && len(logs) == 1 && logs[0].Status == deliverylog.StatusFailed
	})

	// A second delivery log for attempt 2 should appear once the retry
	// (delayed by backoff) is redelivered and processed.
	waitFor(t, 5*time.Second, func() bool {
		logs, err := s.ListDeliveryLogsByEvent(ctx(), evt.ID)
		return err == nil && len(logs) == 2
	})
}

func TestWorkerPermanentlyFailsAfterMaxAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := memory.New()
	q := memqueue.New()

	evt := &event.Event{ID: id.NewEventID(), IdempotencyKey: "k3", Type: "a.event", ReceivedAt: time.Now().UTC()}
	if err := s.CreateEvent(ctx(), evt); err != nil {
		t.Fatal(err)
	}
	sub := &subscription.Subscription{ID: id.NewSubscriptionID(), EventType: "a.event", TargetURL: srv.URL, SecretKey: "s", IsActive: true}
	if err := s.CreateSubscription(ctx(), sub); err != nil {
		t.Fatal(err)
	}

	w := delivery.NewWorker(s, q, delivery.Config{Concurrency: 1, RequestTimeout: 2 * time.Second, MaxRetryAttempts: 1}, nil)
	runCtx, cancel := context.WithCancel(ctx())
	defer cancel()
	w.Start(runCtx)
	defer w.Stop(ctx())

	if err := q.EnqueueDelivery(ctx(), queue.DeliveryJob{EventID: evt.ID, SubscriptionID: sub.ID, Attempt: 1}, queue.EnqueueDeliveryOptions{}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 1*time.Second, func() bool {
		logs, err := s.ListDeliveryLogsByEvent(ctx(), evt.ID)
		return err == nil && len(logs) == 1 && logs[0].Status == deliverylog.StatusFailed
	})

	// No retry should ever be enqueued: attempt 1 already met MaxRetryAttempts.
	time.Sleep(200 * time.Millisecond)
	logs, err := s.ListDeliveryLogsByEvent(ctx(), evt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected exactly one terminal delivery log, got %d", len(logs))
	}
}

func TestWorkerDropsJobForInactiveSubscriptionWithoutLogging(t *testing.T) {
	s := memory.New()
	q := memqueue.New()

	evt := &event.Event{ID: id.NewEventID(), IdempotencyKey: "k4", Type: "a.event", ReceivedAt: time.Now().UTC()}
	if err := s.CreateEvent(ctx(), evt); err != nil {
		t.Fatal(err)
	}
	sub := &subscription.Subscription{ID: id.NewSubscriptionID(), EventType: "a.event", TargetURL: "https://example.com/hook", SecretKey: "s", IsActive: false}
	if err := s.CreateSubscription(ctx(), sub); err != nil {
		t.Fatal(err)
	}

	w := delivery.NewWorker(s, q, delivery.Config{Concurrency: 1, RequestTimeout: 2 * time.Second, MaxRetryAttempts: 3}, nil)
	runCtx, cancel := context.WithCancel(ctx())
	defer cancel()
	w.Start(runCtx)
	defer w.Stop(ctx())

	if err := q.EnqueueDelivery(ctx(), queue.DeliveryJob{EventID: evt.ID, SubscriptionID: sub.ID, Attempt: 1}, queue.EnqueueDeliveryOptions{}); err != nil {
		t.Fatal(err)
	}

	time.Sleep(200 * time.Millisecond)
	logs, err := s.ListDeliveryLogsByEvent(ctx(), evt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 0 {
		t.Fatalf("expected no delivery log rows for a dropped job, got %d", len(logs))
	}
}
