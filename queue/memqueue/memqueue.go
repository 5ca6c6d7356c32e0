// Package memqueue is an in-memory Queue implementation for tests and
// single-process deployments. It mirrors store/memory's
// mutex-protected-slice style rather than reaching for a real broker.
package memqueue

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/relayhq/eventrelay/id"
	"github.com/relayhq/eventrelay/queue"
)

const (
	defaultDeliveryAttempts     = 3
	defaultDeliveryInitialDelay = 2 * time.Second
)

type entry struct {
	job       queue.Job
	opts      any // queue.EnqueueFanoutOptions or queue.EnqueueDeliveryOptions
	readyAt   time.Time
	attempted int
}

// Queue is an unbounded, mutex-protected in-memory job queue; a one-slot
// notify channel signals that new work is ready.
type Queue struct {
	mu      sync.Mutex
	byTopic map[queue.Topic][]*entry

	// trailOpts remembers the EnqueueDeliveryOptions a (event, subscription)
	// delivery trail was started with, so Retry can honor the attempt cap
	// and backoff seed the trail was enqueued with instead of a hardcoded
	// policy. Entries are removed once the trail reaches a terminal state.
	trailOpts map[string]queue.EnqueueDeliveryOptions

	notify chan struct{}
	closed bool
}

// New creates an empty in-memory queue.
func New() *Queue {
	return &Queue{
		byTopic:   make(map[queue.Topic][]*entry),
		trailOpts: make(map[string]queue.EnqueueDeliveryOptions),
		notify:    make(chan struct{}, 1),
	}
}

func trailKey(evtID, subID id.ID) string {
	return evtID.String() + ":" + subID.String()
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func newJobID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// EnqueueFanout implements queue.Queue.
func (q *Queue) EnqueueFanout(_ context.Context, job queue.FanoutJob, opts queue.EnqueueFanoutOptions) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return queue.ErrClosed
	}
	fj := job
	q.byTopic[queue.TopicFanout] = append(q.byTopic[queue.TopicFanout], &entry{
		job:     queue.Job{ID: newJobID(), Topic: queue.TopicFanout, Fanout: &fj},
		opts:    opts,
		readyAt: time.Now(),
	})
	q.wake()
	return nil
}

// EnqueueDelivery implements queue.Queue.
func (q *Queue) EnqueueDelivery(_ context.Context, job queue.DeliveryJob, opts queue.EnqueueDeliveryOptions) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return queue.ErrClosed
	}
	dj := job
	q.trailOpts[trailKey(dj.EventID, dj.SubscriptionID)] = opts
	q.byTopic[queue.TopicDelivery] = append(q.byTopic[queue.TopicDelivery], &entry{
		job:     queue.Job{ID: newJobID(), Topic: queue.TopicDelivery, Delivery: &dj},
		opts:    opts,
		readyAt: time.Now(),
	})
	q.wake()
	return nil
}

// Dequeue implements queue.Queue. It polls the in-memory slice for the
// oldest ready entry on topic, blocking (subject to ctx) until one appears.
func (q *Queue) Dequeue(ctx context.Context, topic queue.Topic) (*queue.Job, error) {
	for {
		if j := q.tryDequeue(topic); j != nil {
			return j, nil
		}
		select {
		case <-ctx.Done():
			return nil, nil
		case <-q.notify:
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (q *Queue) tryDequeue(topic queue.Topic) *queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.byTopic[topic]
	now := time.Now()
	for i, e := range entries {
		if e.readyAt.After(now) {
			continue
		}
		q.byTopic[topic] = append(entries[:i:i], entries[i+1:]...)
		job := e.job
		return &job
	}
	return nil
}

// Ack implements queue.Queue; jobs are removed from the queue at dequeue
// time, so the only remaining work is forgetting the delivery trail's
// remembered options once it reaches a terminal state.
func (q *Queue) Ack(_ context.Context, job *queue.Job) error {
	if job.Delivery == nil {
		return nil
	}
	q.mu.Lock()
	delete(q.trailOpts, trailKey(job.Delivery.EventID, job.Delivery.SubscriptionID))
	q.mu.Unlock()
	return nil
}

// Retry re-enqueues job after a backoff seeded by the delivery trail's
// EnqueueDeliveryOptions, unless the trail's attempt budget is exhausted,
// in which case it is dropped (permanently failed) instead of re-enqueued.
func (q *Queue) Retry(_ context.Context, job *queue.Job, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return queue.ErrClosed
	}

	if job.Delivery != nil {
		key := trailKey(job.Delivery.EventID, job.Delivery.SubscriptionID)
		opts := q.trailOpts[key]

		maxAttempts := opts.Attempts
		if maxAttempts <= 0 {
			maxAttempts = defaultDeliveryAttempts
		}
		if job.Delivery.Attempt >= maxAttempts {
			delete(q.trailOpts, key)
			q.wake()
			return nil
		}

		initialDelay := opts.InitialDelay
		if initialDelay <= 0 {
			initialDelay = defaultDeliveryInitialDelay
		}

		next := *job.Delivery
		next.Attempt++
		delay := queue.ComputeBackoff(job.Delivery.Attempt, initialDelay)
		q.byTopic[queue.TopicDelivery] = append(q.byTopic[queue.TopicDelivery], &entry{
			job:     queue.Job{ID: newJobID(), Topic: queue.TopicDelivery, Delivery: &next},
			opts:    opts,
			readyAt: time.Now().Add(delay),
		})
	}
	q.wake()
	return nil
}

// Close implements queue.Queue.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
