package memqueue_test

import (
	"context"
	"testing"
	"time"

	"github.com/relayhq/eventrelay/id"
	"github.com/relayhq/eventrelay/queue"
	"github.com/relayhq/eventrelay/queue/memqueue"
)

func ctx() context.Context { return context.Background() }

func TestEnqueueDequeueFanout(t *testing.T) {
	q := memqueue.New()

	evtID := id.NewEventID()
	if err := q.EnqueueFanout(ctx(), queue.FanoutJob{EventID: evtID, EventType: "a.event"}, queue.EnqueueFanoutOptions{}); err != nil {
		t.Fatal(err)
	}

	job, err := q.Dequeue(ctx(), queue.TopicFanout)
	if err != nil {
		t.Fatal(err)
	}
	if job == nil || job.Fanout == nil || job.Fanout.EventID != evtID {
		t.Fatalf("expected fanout job for %v, got %+v", evtID, job)
	}
}

func TestDequeueFIFOOrder(t *testing.T) {
	q := memqueue.New()

	first := id.NewEventID()
	second := id.NewEventID()
	if err := q.EnqueueFanout(ctx(), queue.FanoutJob{EventID: first}, queue.EnqueueFanoutOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := q.EnqueueFanout(ctx(), queue.FanoutJob{EventID: second}, queue.EnqueueFanoutOptions{}); err != nil {
		t.Fatal(err)
	}

	j1, _ := q.Dequeue(ctx(), queue.TopicFanout)
	j2, _ := q.Dequeue(ctx(), queue.TopicFanout)
	if j1.Fanout.EventID != first || j2.Fanout.EventID != second {
		t.Fatalf("expected FIFO order, got %v then %v", j1.Fanout.EventID, j2.Fanout.EventID)
	}
}

func TestDequeueReturnsNilOnContextCancel(t *testing.T) {
	q := memqueue.New()

	shortCtx, cancel := context.WithTimeout(ctx(), 20*time.Millisecond)
	defer cancel()

	job, err := q.Dequeue(shortCtx, queue.TopicDelivery)
	if err != nil {
		t.Fatal(err)
	}
	if job != nil {
		t.Fatalf("expected nil job on empty queue with cancelled context, got %+v", job)
	}
}

func TestRetryRespectsBackoffDelay(t *testing.T) {
	q := memqueue.New()

	evtID := id.NewEventID()
	subID := id.NewSubscriptionID()
	if err := q.EnqueueDelivery(ctx(), queue.DeliveryJob{EventID: evtID, SubscriptionID: subID, Attempt: 1}, queue.EnqueueDeliveryOptions{}); err != nil {
		t.Fatal(err)
	}

	job, err := q.Dequeue(ctx(), queue.TopicDelivery)
	if err != nil {
		t.Fatal(err)
	}

	if err := q.Retry(ctx(), job, "subscriber returned 500"); err != nil {
		t.Fatal(err)
	}

	// The retried job is delayed by backoff; poll with a bounded overall
	// deadline until it becomes ready.
	deadline := time.Now().Add(3 * time.Second)
	var redelivered *queue.Job
	for time.Now().Before(deadline) {
		pollCtx, cancel := context.WithTimeout(ctx(), 100*time.Millisecond)
		redelivered, _ = q.Dequeue(pollCtx, queue.TopicDelivery)
		cancel()
		if redelivered != nil {
			break
		}
	}
	if redelivered == nil || redelivered.Delivery.Attempt != 2 {
		t.Fatalf("expected redelivery at attempt 2, got %+v", redelivered)
	}
}

func TestRetryHonorsConfiguredInitialDelay(t *testing.T) {
	q := memqueue.New()

	evtID := id.NewEventID()
	subID := id.NewSubscriptionID()
	opts := queue.EnqueueDeliveryOptions{InitialDelay: 30 * time.Second}
	if err := q.EnqueueDelivery(ctx(), queue.DeliveryJob{EventID: evtID, SubscriptionID: subID, Attempt: 1}, opts); err != nil {
		t.Fatal(err)
	}

	job, err := q.Dequeue(ctx(), queue.TopicDelivery)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Retry(ctx(), job, "subscriber returned 500"); err != nil {
		t.Fatal(err)
	}

	// 30s is far outside any reasonable poll window; the retried job must
	// not be ready yet.
	shortCtx, cancel := context.WithTimeout(ctx(), 100*time.Millisecond)
	defer cancel()
	redelivered, _ := q.Dequeue(shortCtx, queue.TopicDelivery)
	if redelivered != nil {
		t.Fatalf("expected retry to honor the 30s InitialDelay, got immediate redelivery: %+v", redelivered)
	}
}

func TestRetryDropsJobOnceConfiguredAttemptsExhausted(t *testing.T) {
	q := memqueue.New()

	evtID := id.NewEventID()
	subID := id.NewSubscriptionID()
	opts := queue.EnqueueDeliveryOptions{Attempts: 1, InitialDelay: time.Millisecond}
	if err := q.EnqueueDelivery(ctx(), queue.DeliveryJob{EventID: evtID, SubscriptionID: subID, Attempt: 1}, opts); err != nil {
		t.Fatal(err)
	}

	job, err := q.Dequeue(ctx(), queue.TopicDelivery)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Retry(ctx(), job, "subscriber returned 500"); err != nil {
		t.Fatal(err)
	}

	shortCtx, cancel := context.WithTimeout(ctx(), 200*time.Millisecond)
	defer cancel()
	redelivered, _ := q.Dequeue(shortCtx, queue.TopicDelivery)
	if redelivered != nil {
		t.Fatalf("expected job to be dropped once Attempts=1 was exhausted, got %+v", redelivered)
	}
}

func TestCloseRejectsFurtherEnqueues(t *testing.T) {
	q := memqueue.New()
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}

	err := q.EnqueueFanout(ctx(), queue.FanoutJob{EventID: id.NewEventID()}, queue.EnqueueFanoutOptions{})
	if err != queue.ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
