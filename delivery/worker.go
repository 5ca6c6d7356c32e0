// Package delivery implements the Delivery Worker (C6): loads state, signs,
// POSTs, classifies the result, writes the delivery log, and signals retry
// to the queue.
package delivery

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/relayhq/eventrelay/deliverylog"
	"github.com/relayhq/eventrelay/event"
	"github.com/relayhq/eventrelay/id"
	"github.com/relayhq/eventrelay/observability"
	"github.com/relayhq/eventrelay/queue"
	"github.com/relayhq/eventrelay/subscription"
)

// Store is the persistence surface the delivery worker needs.
type Store interface {
	GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error)
	GetSubscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error)
	CreateDeliveryLog(ctx context.Context, log *deliverylog.DeliveryLog) error
	FinishDeliveryLog(ctx context.Context, logID id.ID, status deliverylog.Status, responseCode *int, responseBody *string, errMsg *string) error
}

// Config configures the delivery worker pool. Retry backoff itself is the
// queue's responsibility (it owns EnqueueDeliveryOptions.InitialDelay for
// the trail); MaxRetryAttempts only governs the worker's own Ack-vs-Retry
// decision after a failed attempt.
type Config struct {
	Concurrency      int
	RequestTimeout   time.Duration
	MaxRetryAttempts int
	Metrics          *observability.Metrics
	Tracer           *observability.Tracer
}

// Worker is the bounded-concurrency pool of goroutines that consume the
// delivery topic and execute individual delivery attempts.
type Worker struct {
	store  Store
	queue  queue.Queue
	sender *Sender
	config Config
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a delivery worker pool.
func NewWorker(store Store, q queue.Queue, cfg Config, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	return &Worker{
		store:  store,
		queue:  q,
		sender: NewSender(cfg.RequestTimeout),
		config: cfg,
		logger: logger,
	}
}

// Start launches Concurrency goroutines, each pulling jobs off the delivery
// topic until Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	for range w.config.Concurrency {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.loop(ctx)
		}()
	}
}

// Stop cancels dispatch and waits for in-flight attempts to finish writing
// their terminal log before returning.
func (w *Worker) Stop(_ context.Context) {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := w.queue.Dequeue(ctx, queue.TopicDelivery)
		if err != nil {
			w.logger.ErrorContext(ctx, "delivery dequeue failed", "error", err)
			continue
		}
		if job == nil {
			continue
		}
		w.process(ctx, job)
	}
}

// process executes the C6 algorithm for a single delivery job.
func (w *Worker) process(ctx context.Context, job *queue.Job) {
	dj := job.Delivery
	if dj == nil {
		w.logger.ErrorContext(ctx, "delivery worker received non-delivery job", "topic", job.Topic)
		_ = w.queue.Ack(ctx, job)
		return
	}

	evt, err := w.store.GetEvent(ctx, dj.EventID)
	if err != nil {
		// Event missing is fatal: nothing to deliver, ever. Drop the job.
		w.logger.ErrorContext(ctx, "delivery: event not found, dropping job",
			"event_id", dj.EventID, "error", err)
		_ = w.queue.Ack(ctx, job)
		return
	}

	sub, err := w.store.GetSubscription(ctx, dj.SubscriptionID)
	if err != nil || sub == nil || !sub.IsActive {
		// Subscriber left deliberately: drop, no audit row, job succeeds.
		w.logger.DebugContext(ctx, "delivery: subscription inactive or missing, dropping",
			"subscription_id", dj.SubscriptionID)
		_ = w.queue.Ack(ctx, job)
		return
	}

	var span trace.Span
	if w.config.Tracer != nil {
		ctx, span = w.config.Tracer.StartDeliverySpan(ctx, evt.ID.String(), sub.ID.String(), dj.Attempt)
	}

	log := &deliverylog.DeliveryLog{
		ID:             id.New(id.PrefixDeliveryLog),
		EventID:        evt.ID,
		SubscriptionID: sub.ID,
		Status:         deliverylog.StatusPending,
		AttemptCount:   dj.Attempt,
		AttemptedAt:    time.Now().UTC(),
	}
	if err := w.store.CreateDeliveryLog(ctx, log); err != nil {
		w.logger.ErrorContext(ctx, "delivery: create delivery log failed", "error", err)
		if span != nil {
			w.config.Tracer.EndDeliverySpan(span, 0, 0, err.Error())
		}
		_ = w.queue.Retry(ctx, job, "create delivery log failed")
		return
	}

	result := w.sender.Send(ctx, sub, evt)
	latencySeconds := float64(result.LatencyMs) / 1000.0

	outcome := Classify(result)

	switch outcome {
	case Success:
		code := result.StatusCode
		body := deliverylog.Truncate(result.Response)
		if err := w.store.FinishDeliveryLog(ctx, log.ID, deliverylog.StatusSuccess, &code, &body, nil); err != nil {
			w.logger.ErrorContext(ctx, "delivery: finish delivery log failed", "error", err)
		}
		if w.config.Metrics != nil {
			w.config.Metrics.RecordDelivery("success", latencySeconds)
		}
		w.logger.DebugContext(ctx, "delivered", "event_id", evt.ID, "subscription_id", sub.ID, "status", code)
		_ = w.queue.Ack(ctx, job)

	case Failure:
		w.finishFailed(ctx, log.ID, result)
		if w.config.Metrics != nil {
			w.config.Metrics.RecordDelivery("failed", latencySeconds)
		}

		if dj.Attempt < w.effectiveMaxAttempts() {
			w.logger.DebugContext(ctx, "delivery attempt failed, will retry",
				"event_id", evt.ID, "subscription_id", sub.ID, "attempt", dj.Attempt)
			_ = w.queue.Retry(ctx, job, deliveryFailureReason(result))
		} else {
			w.logger.WarnContext(ctx, "delivery permanently failed",
				"event_id", evt.ID, "subscription_id", sub.ID, "attempts", dj.Attempt)
			_ = w.queue.Ack(ctx, job)
		}
	}

	if span != nil {
		w.config.Tracer.EndDeliverySpan(span, result.StatusCode, result.LatencyMs, result.Error)
	}
}

func (w *Worker) finishFailed(ctx context.Context, logID id.ID, r Result) {
	var code *int
	var body *string
	errMsg := deliveryFailureReason(r)

	if r.Error == "" {
		c := r.StatusCode
		code = &c
		b := deliverylog.Truncate(r.Response)
		body = &b
	}

	if err := w.store.FinishDeliveryLog(ctx, logID, deliverylog.StatusFailed, code, body, &errMsg); err != nil {
		w.logger.ErrorContext(ctx, "delivery: finish delivery log (failed) error", "error", err)
	}
}

func deliveryFailureReason(r Result) string {
	if r.Error != "" {
		return r.Error
	}
	return httpStatusReason(r.StatusCode)
}

func httpStatusReason(code int) string {
	return "HTTP " + strconv.Itoa(code)
}

func (w *Worker) effectiveMaxAttempts() int {
	if w.config.MaxRetryAttempts <= 0 {
		return 3
	}
	return w.config.MaxRetryAttempts
}
