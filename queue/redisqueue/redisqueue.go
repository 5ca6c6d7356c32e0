// Package redisqueue implements queue.Queue on Redis, using a sorted set
// per topic as a delay-aware ready queue: score is the Unix time (in
// fractional seconds) a job becomes eligible for dispatch. This is the
// natural Redis idiom for a job queue with per-job backoff.
package redisqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/relayhq/eventrelay/queue"
)

const (
	keyPrefix = "eventrelay:queue:"

	inFlightSuffix = ":inflight"
	trailPrefix    = "eventrelay:queue:trail:"

	defaultStallWindow          = 5 * time.Minute
	defaultDeliveryAttempts     = 3
	defaultDeliveryInitialDelay = 2 * time.Second
	trailTTL                    = 24 * time.Hour
)

// Queue implements queue.Queue on a *redis.Client.
type Queue struct {
	rdb          *goredis.Client
	pollInterval time.Duration
	stallWindow  time.Duration
}

// Option configures a Queue constructed with New.
type Option func(*Queue)

// WithStallWindow overrides how long a claimed job may stay in flight
// before the sweep in Dequeue considers the worker that claimed it dead
// and redispatches it.
func WithStallWindow(d time.Duration) Option {
	return func(q *Queue) { q.stallWindow = d }
}

// New creates a Redis-backed queue over an already-connected client.
func New(rdb *goredis.Client, opts ...Option) *Queue {
	q := &Queue{rdb: rdb, pollInterval: 200 * time.Millisecond, stallWindow: defaultStallWindow}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func trailKey(evtID, subID string) string {
	return trailPrefix + evtID + ":" + subID
}

type wireJob struct {
	ID       string             `json:"id"`
	Topic    queue.Topic        `json:"topic"`
	Fanout   *queue.FanoutJob   `json:"fanout,omitempty"`
	Delivery *queue.DeliveryJob `json:"delivery,omitempty"`
}

func zsetKey(topic queue.Topic) string {
	return keyPrefix + string(topic)
}

func newJobID() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36)
}

func (q *Queue) push(ctx context.Context, topic queue.Topic, j wireJob, readyAt time.Time) error {
	raw, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("redisqueue: marshal job: %w", err)
	}
	return q.pushRaw(ctx, topic, raw, readyAt)
}

func (q *Queue) pushRaw(ctx context.Context, topic queue.Topic, raw []byte, readyAt time.Time) error {
	score := float64(readyAt.UnixNano()) / 1e9
	return q.rdb.ZAdd(ctx, zsetKey(topic), goredis.Z{Score: score, Member: raw}).Err()
}

// EnqueueFanout implements queue.Queue.
func (q *Queue) EnqueueFanout(ctx context.Context, job queue.FanoutJob, _ queue.EnqueueFanoutOptions) error {
	fj := job
	return q.push(ctx, queue.TopicFanout, wireJob{ID: newJobID(), Topic: queue.TopicFanout, Fanout: &fj}, time.Now())
}

// EnqueueDelivery implements queue.Queue. opts is remembered under the
// (event, subscription) trail key so a later Retry can honor the attempt
// cap and backoff seed this trail was started with.
func (q *Queue) EnqueueDelivery(ctx context.Context, job queue.DeliveryJob, opts queue.EnqueueDeliveryOptions) error {
	dj := job
	raw, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("redisqueue: marshal delivery options: %w", err)
	}
	if err := q.rdb.Set(ctx, trailKey(dj.EventID.String(), dj.SubscriptionID.String()), raw, trailTTL).Err(); err != nil {
		return fmt.Errorf("redisqueue: store delivery options: %w", err)
	}
	return q.push(ctx, queue.TopicDelivery, wireJob{ID: newJobID(), Topic: queue.TopicDelivery, Delivery: &dj}, time.Now())
}

func inflightKey(topic queue.Topic) string {
	return keyPrefix + string(topic) + inFlightSuffix
}

func scoreOf(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', -1, 64)
}

// Dequeue polls the topic's sorted set for the lowest-score member that is
// due, removing it atomically with ZPOPMIN semantics scoped to a bounded
// range. Blocks (subject to ctx) polling at pollInterval when nothing is
// due. Each poll also sweeps the topic's stalled claims back onto the
// ready set, so a worker that claimed a job and then crashed does not
// strand it forever.
func (q *Queue) Dequeue(ctx context.Context, topic queue.Topic) (*queue.Job, error) {
	key := zsetKey(topic)
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		if err := q.sweepStalled(ctx, topic); err != nil {
			return nil, err
		}

		job, err := q.tryPop(ctx, topic, key)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, nil
		case <-ticker.C:
		}
	}
}

func (q *Queue) tryPop(ctx context.Context, topic queue.Topic, key string) (*queue.Job, error) {
	now := scoreOf(time.Now())

	members, err := q.rdb.ZRangeByScore(ctx, key, &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: 1,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redisqueue: scan due jobs: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	raw := members[0]
	removed, err := q.rdb.ZRem(ctx, key, raw).Result()
	if err != nil {
		return nil, fmt.Errorf("redisqueue: claim job: %w", err)
	}
	if removed == 0 {
		// Another worker claimed it first.
		return nil, nil
	}

	var wj wireJob
	if err := json.Unmarshal([]byte(raw), &wj); err != nil {
		return nil, fmt.Errorf("redisqueue: unmarshal job: %w", err)
	}

	// Track the claim in a deadline-scored sorted set so a crashed worker's
	// job is picked up and redispatched by sweepStalled once the stall
	// window elapses, instead of being lost until an operator intervenes.
	deadline := time.Now().Add(q.stallWindow)
	if err := q.rdb.ZAdd(ctx, inflightKey(topic), goredis.Z{Score: float64(deadline.UnixNano()) / 1e9, Member: raw}).Err(); err != nil {
		return nil, fmt.Errorf("redisqueue: mark in flight: %w", err)
	}

	return &queue.Job{ID: wj.ID, Topic: wj.Topic, Fanout: wj.Fanout, Delivery: wj.Delivery}, nil
}

// sweepStalled re-dispatches any claim on topic whose stall deadline has
// passed: it moves the job back onto the ready set at the current time and
// drops the in-flight marker. This is what makes the queue's at-least-once
// guarantee hold across a worker crash, not just a clean Ack/Retry.
func (q *Queue) sweepStalled(ctx context.Context, topic queue.Topic) error {
	ikey := inflightKey(topic)
	now := scoreOf(time.Now())

	expired, err := q.rdb.ZRangeByScore(ctx, ikey, &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: 50,
	}).Result()
	if err != nil {
		return fmt.Errorf("redisqueue: scan stalled claims: %w", err)
	}

	for _, raw := range expired {
		removed, err := q.rdb.ZRem(ctx, ikey, raw).Result()
		if err != nil {
			return fmt.Errorf("redisqueue: clear stalled claim: %w", err)
		}
		if removed == 0 {
			// Acked or retried out from under the sweep; nothing to redeliver.
			continue
		}
		if err := q.pushRaw(ctx, topic, []byte(raw), time.Now()); err != nil {
			return fmt.Errorf("redisqueue: redispatch stalled job: %w", err)
		}
	}
	return nil
}

// Ack implements queue.Queue. A delivery job's trail options are forgotten
// here since Ack only ever means the trail reached a terminal state
// (succeeded, or dropped because the event/subscription vanished).
func (q *Queue) Ack(ctx context.Context, job *queue.Job) error {
	pipe := q.rdb.Pipeline()
	pipe.ZRem(ctx, inflightKey(job.Topic), rawOf(job))
	if job.Delivery != nil {
		pipe.Del(ctx, trailKey(job.Delivery.EventID.String(), job.Delivery.SubscriptionID.String()))
	}
	_, err := pipe.Exec(ctx)
	return err
}

// clearInflight removes only the in-flight claim marker, leaving the
// delivery trail's remembered options intact for Retry to read.
func (q *Queue) clearInflight(ctx context.Context, job *queue.Job) error {
	return q.rdb.ZRem(ctx, inflightKey(job.Topic), rawOf(job)).Err()
}

// rawOf reconstructs the exact JSON encoding tryPop used as the inflight
// sorted set's member, so Ack/Retry can remove the matching entry.
func rawOf(job *queue.Job) string {
	raw, _ := json.Marshal(wireJob{ID: job.ID, Topic: job.Topic, Fanout: job.Fanout, Delivery: job.Delivery})
	return string(raw)
}

// Retry re-enqueues job onto its topic's sorted set after an exponentially
// backed-off delay, unless the delivery trail's configured attempt budget
// is exhausted, in which case the job is dropped instead of rescheduled.
func (q *Queue) Retry(ctx context.Context, job *queue.Job, _ string) error {
	_ = q.clearInflight(ctx, job)

	if job.Delivery == nil {
		// Fan-out jobs are attempts=1, non-retryable; nothing to reschedule.
		return nil
	}

	opts := q.deliveryOptions(ctx, job.Delivery.EventID.String(), job.Delivery.SubscriptionID.String())

	maxAttempts := opts.Attempts
	if maxAttempts <= 0 {
		maxAttempts = defaultDeliveryAttempts
	}
	if job.Delivery.Attempt >= maxAttempts {
		q.rdb.Del(ctx, trailKey(job.Delivery.EventID.String(), job.Delivery.SubscriptionID.String()))
		return nil
	}

	initialDelay := opts.InitialDelay
	if initialDelay <= 0 {
		initialDelay = defaultDeliveryInitialDelay
	}

	next := *job.Delivery
	next.Attempt++
	delay := queue.ComputeBackoff(job.Delivery.Attempt, initialDelay)

	return q.push(ctx, queue.TopicDelivery, wireJob{
		ID:       newJobID(),
		Topic:    queue.TopicDelivery,
		Delivery: &next,
	}, time.Now().Add(delay))
}

// deliveryOptions fetches the EnqueueDeliveryOptions a delivery trail was
// started with, falling back to the zero value (caller applies defaults)
// if the trail's options were never stored or have expired.
func (q *Queue) deliveryOptions(ctx context.Context, evtID, subID string) queue.EnqueueDeliveryOptions {
	var opts queue.EnqueueDeliveryOptions
	raw, err := q.rdb.Get(ctx, trailKey(evtID, subID)).Bytes()
	if err != nil {
		return opts
	}
	_ = json.Unmarshal(raw, &opts)
	return opts
}

// Close implements queue.Queue.
func (q *Queue) Close() error {
	return q.rdb.Close()
}
