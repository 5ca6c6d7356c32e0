// Package queue defines the durable job queue contract (C3): two named
// topics, fanout and delivery, each with at-least-once dispatch, per-job
// retry policy, and exponential backoff.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/relayhq/eventrelay/id"
)

// ErrClosed is returned by queue operations after Close has been called.
var ErrClosed = errors.New("queue: closed")

// Topic names the two logical queues the relay uses.
type Topic string

const (
	// TopicFanout carries fan-out jobs: one per accepted event.
	TopicFanout Topic = "fanout"

	// TopicDelivery carries delivery jobs: one per (event, subscription) attempt.
	TopicDelivery Topic = "delivery"
)

// FanoutJob asks the fan-out processor to resolve subscribers for an event.
type FanoutJob struct {
	EventID   id.ID  `json:"eventId"`
	EventType string `json:"eventType"`
}

// DeliveryJob asks a delivery worker to attempt one (event, subscription)
// delivery. Attempt is the 1-based ordinal the queue is dispatching; it is
// supplied by the queue so the worker never has to guess its own retry count.
type DeliveryJob struct {
	EventID        id.ID `json:"eventId"`
	SubscriptionID id.ID `json:"subscriptionId"`
	Attempt        int   `json:"attempt"`
}

// Job is a single dequeued unit of work. Exactly one of Fanout or Delivery
// is populated, matching the topic it was dequeued from.
type Job struct {
	// ID is the queue's own job identifier, opaque to the relay. Used to
	// Ack or Retry the specific delivery.
	ID string

	Topic    Topic
	Fanout   *FanoutJob
	Delivery *DeliveryJob
}

// EnqueueFanoutOptions configures a fan-out job. Fan-out is deliberately not
// retried with backoff: the expensive, failure-prone step is the outbound
// HTTP the fan-out spawns, not the short local resolve-and-enqueue.
type EnqueueFanoutOptions struct {
	Attempts int // default 1
}

// EnqueueDeliveryOptions configures a delivery job's retry policy.
type EnqueueDeliveryOptions struct {
	Attempts     int           // default 3
	InitialDelay time.Duration // default 2s, doubled per attempt
}

// Queue is the durable job queue contract. Implementations must guarantee
// at-least-once dispatch: a job is not considered complete until Ack is
// called, and a job in flight longer than the implementation's stall window
// is redispatched.
type Queue interface {
	// EnqueueFanout submits a fan-out job.
	EnqueueFanout(ctx context.Context, job FanoutJob, opts EnqueueFanoutOptions) error

	// EnqueueDelivery submits a delivery job. attempt is the 1-based attempt
	// number this specific job instance represents; a manual admin retry
	// always enqueues attempt 1 under a fresh attempt trail.
	EnqueueDelivery(ctx context.Context, job DeliveryJob, opts EnqueueDeliveryOptions) error

	// Dequeue blocks (up to the context deadline) waiting for the next job
	// on topic. Returns nil, nil if ctx is done with no job available.
	Dequeue(ctx context.Context, topic Topic) (*Job, error)

	// Ack marks a job as successfully processed; it will not be redelivered.
	Ack(ctx context.Context, job *Job) error

	// Retry reports that processing job failed and should be redelivered
	// per the topic's backoff policy, unless attempts are exhausted, in
	// which case the implementation marks it permanently failed.
	Retry(ctx context.Context, job *Job, reason string) error

	// Close releases the queue's connections.
	Close() error
}
