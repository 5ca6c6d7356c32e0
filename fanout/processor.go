// Package fanout implements the Fan-out Processor (C5): for each accepted
// event, resolve the active subscriptions bound to its event type and
// enqueue one delivery job per subscriber.
package fanout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/relayhq/eventrelay/id"
	"github.com/relayhq/eventrelay/observability"
	"github.com/relayhq/eventrelay/queue"
	"github.com/relayhq/eventrelay/subscription"
)

// Store is the persistence surface the fan-out processor needs.
type Store interface {
	ListActiveSubscriptions(ctx context.Context, eventType string) ([]*subscription.Subscription, error)
}

// Config configures the fan-out processor pool.
type Config struct {
	Concurrency int
	Metrics     *observability.Metrics

	// DeliveryMaxAttempts and DeliveryInitialDelay seed the retry policy
	// stamped onto every delivery job this processor enqueues (attempt 1
	// of a fresh trail). They come from the same relay-level configuration
	// the delivery worker uses to decide when to stop retrying, so the
	// queue's backoff and the worker's give-up point agree.
	DeliveryMaxAttempts  int
	DeliveryInitialDelay time.Duration
}

// Processor consumes the fanout topic and produces delivery jobs.
type Processor struct {
	store  Store
	queue  queue.Queue
	config Config
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcessor creates a fan-out processor.
func NewProcessor(store Store, q queue.Queue, cfg Config, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	return &Processor{store: store, queue: q, config: cfg, logger: logger}
}

// Start launches the processor's worker goroutines.
func (p *Processor) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for range p.config.Concurrency {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.loop(ctx)
		}()
	}
}

// Stop cancels dispatch and waits for in-flight jobs to finish.
func (p *Processor) Stop(_ context.Context) {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Processor) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := p.queue.Dequeue(ctx, queue.TopicFanout)
		if err != nil {
			p.logger.ErrorContext(ctx, "fanout dequeue failed", "error", err)
			continue
		}
		if job == nil {
			continue
		}
		p.process(ctx, job)
	}
}

// process resolves subscribers for a single event and enqueues one delivery
// job per active subscription bound to the event's type.
func (p *Processor) process(ctx context.Context, job *queue.Job) {
	fj := job.Fanout
	if fj == nil {
		p.logger.ErrorContext(ctx, "fanout processor received non-fanout job", "topic", job.Topic)
		_ = p.queue.Ack(ctx, job)
		return
	}

	subs, err := p.store.ListActiveSubscriptions(ctx, fj.EventType)
	if err != nil {
		p.logger.ErrorContext(ctx, "fanout: resolve subscriptions failed",
			"event_id", fj.EventID, "event_type", fj.EventType, "error", err)
		p.recordOutcome("resolve_error")
		_ = p.queue.Retry(ctx, job, "resolve subscriptions failed")
		return
	}

	if len(subs) == 0 {
		p.logger.DebugContext(ctx, "fanout: no active subscribers",
			"event_id", fj.EventID, "event_type", fj.EventType)
		p.recordOutcome("no_subscribers")
		_ = p.queue.Ack(ctx, job)
		return
	}

	var enqueueErr error
	for _, sub := range subs {
		enqueueErr = p.enqueueDelivery(ctx, fj.EventID, sub.ID)
		if enqueueErr != nil {
			p.logger.ErrorContext(ctx, "fanout: enqueue delivery failed",
				"event_id", fj.EventID, "subscription_id", sub.ID, "error", enqueueErr)
			break
		}
	}

	if enqueueErr != nil {
		p.recordOutcome("enqueue_error")
		_ = p.queue.Retry(ctx, job, "enqueue delivery failed")
		return
	}

	p.logger.DebugContext(ctx, "fanout complete",
		"event_id", fj.EventID, "event_type", fj.EventType, "subscribers", len(subs))
	p.recordOutcome("success")
	_ = p.queue.Ack(ctx, job)
}

func (p *Processor) enqueueDelivery(ctx context.Context, evtID, subID id.ID) error {
	return p.queue.EnqueueDelivery(ctx, queue.DeliveryJob{
		EventID:        evtID,
		SubscriptionID: subID,
		Attempt:        1,
	}, queue.EnqueueDeliveryOptions{
		Attempts:     p.config.DeliveryMaxAttempts,
		InitialDelay: p.config.DeliveryInitialDelay,
	})
}

func (p *Processor) recordOutcome(outcome string) {
	if p.config.Metrics != nil {
		p.config.Metrics.RecordFanout(outcome)
	}
}
