package eventrelay

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/relayhq/eventrelay/admin"
	"github.com/relayhq/eventrelay/catalog"
	"github.com/relayhq/eventrelay/delivery"
	"github.com/relayhq/eventrelay/fanout"
	"github.com/relayhq/eventrelay/ingest"
	"github.com/relayhq/eventrelay/observability"
	"github.com/relayhq/eventrelay/queue"
	"github.com/relayhq/eventrelay/store"
	"github.com/relayhq/eventrelay/subscription"
)

// Relay is the root event relay service.
type Relay struct {
	config  Config
	store   store.Store
	queue   queue.Queue
	catalog *catalog.Catalog

	subscriptions *subscription.Service
	ingest        *ingest.Service
	fanout        *fanout.Processor
	worker        *delivery.Worker
	admin         *admin.Service

	metrics *observability.Metrics
	tracer  *observability.Tracer

	logger *slog.Logger
}

// Option configures a Relay instance.
type Option func(*Relay) error

// New creates a new Relay with the given options.
func New(opts ...Option) (*Relay, error) {
	r := &Relay{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.store == nil {
		return nil, ErrNoStore
	}
	if r.queue == nil {
		return nil, ErrNoQueue
	}
	if r.metrics == nil {
		r.metrics = observability.NewMetrics(prometheus.NewRegistry())
	}
	if r.tracer == nil {
		r.tracer = observability.NewTracer()
	}
	r.wireServices()
	return r, nil
}

// WithStore sets the persistence backend for the Relay instance.
func WithStore(s store.Store) Option {
	return func(r *Relay) error {
		r.store = s
		return nil
	}
}

// WithQueue sets the job queue backend for the Relay instance.
func WithQueue(q queue.Queue) Option {
	return func(r *Relay) error {
		r.queue = q
		return nil
	}
}

// WithLogger sets the structured logger for the Relay instance.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) error {
		r.logger = logger
		return nil
	}
}

// WithMetrics sets the Prometheus registry used for metrics collection.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(r *Relay) error {
		r.metrics = observability.NewMetrics(reg)
		return nil
	}
}

// WithConcurrency sets the number of delivery worker goroutines.
func WithConcurrency(n int) Option {
	return func(r *Relay) error {
		r.config.Concurrency = n
		return nil
	}
}

// WithFanoutConcurrency sets the number of fan-out worker goroutines.
func WithFanoutConcurrency(n int) Option {
	return func(r *Relay) error {
		r.config.FanoutConcurrency = n
		return nil
	}
}

// WithRequestTimeout sets the HTTP timeout per delivery attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(r *Relay) error {
		r.config.RequestTimeout = d
		return nil
	}
}

// WithMaxRetryAttempts sets the maximum number of delivery attempts per
// (event, subscription) pair.
func WithMaxRetryAttempts(n int) Option {
	return func(r *Relay) error {
		r.config.MaxRetryAttempts = n
		return nil
	}
}

// WithInitialRetryDelay sets the seed delay for the queue's exponential
// backoff between delivery attempts.
func WithInitialRetryDelay(d time.Duration) Option {
	return func(r *Relay) error {
		r.config.InitialRetryDelay = d
		return nil
	}
}

// WithShutdownTimeout sets Config.ShutdownTimeout. Relay.Stop does not
// read it; Stop waits for in-flight deliveries without a deadline.
func WithShutdownTimeout(d time.Duration) Option {
	return func(r *Relay) error {
		r.config.ShutdownTimeout = d
		return nil
	}
}

// WithCacheTTL sets the TTL for the catalog's in-memory event type cache.
func WithCacheTTL(d time.Duration) Option {
	return func(r *Relay) error {
		r.config.CacheTTL = d
		return nil
	}
}
