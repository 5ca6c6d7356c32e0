package eventrelay

import (
	"context"

	"github.com/relayhq/eventrelay/admin"
	"github.com/relayhq/eventrelay/catalog"
	"github.com/relayhq/eventrelay/delivery"
	"github.com/relayhq/eventrelay/event"
	"github.com/relayhq/eventrelay/fanout"
	"github.com/relayhq/eventrelay/ingest"
	"github.com/relayhq/eventrelay/observability"
	"github.com/relayhq/eventrelay/queue"
	"github.com/relayhq/eventrelay/store"
	"github.com/relayhq/eventrelay/subscription"
)

// wireServices initializes the internal services after options have been applied.
func (r *Relay) wireServices() {
	r.catalog = catalog.NewCatalog(r.store, catalog.Config{
		CacheTTL: r.config.CacheTTL,
	}, r.logger)

	r.subscriptions = subscription.NewService(r.store, r.logger)

	r.ingest = ingest.NewService(r.store, r.queue, r.logger, r.metrics).WithCatalog(r.catalog)

	r.fanout = fanout.NewProcessor(r.store, r.queue, fanout.Config{
		Concurrency:          r.config.FanoutConcurrency,
		Metrics:              r.metrics,
		DeliveryMaxAttempts:  r.config.MaxRetryAttempts,
		DeliveryInitialDelay: r.config.InitialRetryDelay,
	}, r.logger)

	r.worker = delivery.NewWorker(r.store, r.queue, delivery.Config{
		Concurrency:      r.config.Concurrency,
		RequestTimeout:   r.config.RequestTimeout,
		MaxRetryAttempts: r.config.MaxRetryAttempts,
		Metrics:          r.metrics,
		Tracer:           r.tracer,
	}, r.logger)

	r.admin = admin.NewService(r.store, r.subscriptions, r.queue, admin.Config{
		DeliveryMaxAttempts:  r.config.MaxRetryAttempts,
		DeliveryInitialDelay: r.config.InitialRetryDelay,
	}, r.logger)
}

// Start begins the fan-out processor and delivery worker pool.
func (r *Relay) Start(ctx context.Context) {
	r.fanout.Start(ctx)
	r.worker.Start(ctx)
}

// Stop gracefully shuts down the fan-out processor and delivery worker pool.
func (r *Relay) Stop(ctx context.Context) {
	r.fanout.Stop(ctx)
	r.worker.Stop(ctx)
}

// Ingest validates and persists an event, then enqueues its fan-out job.
// See ingest.Service.Ingest for the full contract.
func (r *Relay) Ingest(ctx context.Context, idempotencyKey, eventType string, payload []byte) (*event.Event, error) {
	return r.ingest.Ingest(ctx, idempotencyKey, eventType, payload)
}

// Subscriptions returns the subscription management service.
func (r *Relay) Subscriptions() *subscription.Service {
	return r.subscriptions
}

// Catalog returns the event type catalog.
func (r *Relay) Catalog() *catalog.Catalog {
	return r.catalog
}

// Admin returns the operator-facing service (delivery log queries, manual
// retry, stats, fan-out reconciliation).
func (r *Relay) Admin() *admin.Service {
	return r.admin
}

// Store returns the underlying store.
func (r *Relay) Store() store.Store {
	return r.store
}

// Queue returns the underlying job queue.
func (r *Relay) Queue() queue.Queue {
	return r.queue
}

// Metrics returns the Prometheus metrics collector.
func (r *Relay) Metrics() *observability.Metrics {
	return r.metrics
}
