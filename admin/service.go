// Package admin implements the operator-facing surface (C7): subscription
// management, delivery log inspection, manual retry, aggregate stats, and
// the operator-triggered fan-out reconciliation scan.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/relayhq/eventrelay/deliverylog"
	"github.com/relayhq/eventrelay/event"
	"github.com/relayhq/eventrelay/id"
	"github.com/relayhq/eventrelay/queue"
	"github.com/relayhq/eventrelay/subscription"
)

// ErrInvalidRetry is returned when a retry targets a delivery log that
// already succeeded.
var ErrInvalidRetry = errors.New("admin: delivery log already succeeded")

// ErrInactiveSubscription is returned when a retry targets a delivery log
// whose subscription is missing or inactive.
var ErrInactiveSubscription = errors.New("admin: subscription is inactive")

// Store is the persistence surface the admin service needs.
type Store interface {
	GetSubscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error)
	GetDeliveryLog(ctx context.Context, logID id.ID) (*deliverylog.DeliveryLog, error)
	ListDeliveryLogs(ctx context.Context, opts deliverylog.ListOpts) ([]*deliverylog.DeliveryLog, error)
	CountEvents(ctx context.Context) (int64, error)
	CountSubscriptions(ctx context.Context) (total, active, inactive int64, err error)
	CountDeliveryLogs(ctx context.Context) (total, success, failed, pending int64, err error)
	EventsWithoutDeliveryLogs(ctx context.Context, olderThan time.Time, limit int) ([]*event.Event, error)
}

// Stats is the aggregate operational snapshot returned by GET /admin/stats.
type Stats struct {
	TotalEvents           int64
	TotalSubscriptions    int64
	ActiveSubscriptions   int64
	InactiveSubscriptions int64
	TotalDeliveries       int64
	SuccessfulDeliveries  int64
	FailedDeliveries      int64
	PendingDeliveries     int64
	SuccessRate           float64 // percentage, 0 when there have been no deliveries
}

// Config configures the admin service's manual-retry policy.
type Config struct {
	// DeliveryMaxAttempts and DeliveryInitialDelay seed the fresh attempt
	// trail a manual retry starts, matching the policy the fan-out
	// processor stamps onto a delivery job's first attempt.
	DeliveryMaxAttempts  int
	DeliveryInitialDelay time.Duration
}

// Service backs the admin HTTP surface.
type Service struct {
	store         Store
	subscriptions *subscription.Service
	queue         queue.Queue
	config        Config
	logger        *slog.Logger
}

// NewService creates an admin service.
func NewService(store Store, subs *subscription.Service, q queue.Queue, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, subscriptions: subs, queue: q, config: cfg, logger: logger}
}

// Subscriptions exposes the subscription management service.
func (s *Service) Subscriptions() *subscription.Service {
	return s.subscriptions
}

// DeliveryLogs returns delivery logs matching the given filters.
func (s *Service) DeliveryLogs(ctx context.Context, opts deliverylog.ListOpts) ([]*deliverylog.DeliveryLog, error) {
	return s.store.ListDeliveryLogs(ctx, opts)
}

// RetryDeliveryLog manually re-enqueues a failed delivery under a fresh
// attempt trail. Rejects logs that already succeeded and logs whose
// subscription is gone or inactive.
func (s *Service) RetryDeliveryLog(ctx context.Context, logID id.ID) error {
	log, err := s.store.GetDeliveryLog(ctx, logID)
	if err != nil {
		return fmt.Errorf("admin: load delivery log: %w", err)
	}

	if log.Status == deliverylog.StatusSuccess {
		return ErrInvalidRetry
	}

	sub, err := s.store.GetSubscription(ctx, log.SubscriptionID)
	if err != nil || sub == nil || !sub.IsActive {
		return ErrInactiveSubscription
	}

	// A manual retry starts a brand new attempt trail; it does not continue
	// the automatic worker's sequence and never touches the old log row.
	if err := s.queue.EnqueueDelivery(ctx, queue.DeliveryJob{
		EventID:        log.EventID,
		SubscriptionID: log.SubscriptionID,
		Attempt:        1,
	}, queue.EnqueueDeliveryOptions{
		Attempts:     s.config.DeliveryMaxAttempts,
		InitialDelay: s.config.DeliveryInitialDelay,
	}); err != nil {
		return fmt.Errorf("admin: enqueue retry: %w", err)
	}

	s.logger.InfoContext(ctx, "admin: manual retry enqueued",
		"delivery_log_id", logID, "event_id", log.EventID, "subscription_id", log.SubscriptionID)
	return nil
}

// Stats computes the aggregate operational snapshot.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	totalEvents, err := s.store.CountEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("admin: count events: %w", err)
	}

	totalSubs, activeSubs, inactiveSubs, err := s.store.CountSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("admin: count subscriptions: %w", err)
	}

	totalDeliveries, success, failed, pending, err := s.store.CountDeliveryLogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("admin: count delivery logs: %w", err)
	}

	var rate float64
	if totalDeliveries > 0 {
		rate = float64(success) / float64(totalDeliveries) * 100
	}

	return &Stats{
		TotalEvents:           totalEvents,
		TotalSubscriptions:    totalSubs,
		ActiveSubscriptions:   activeSubs,
		InactiveSubscriptions: inactiveSubs,
		TotalDeliveries:       totalDeliveries,
		SuccessfulDeliveries:  success,
		FailedDeliveries:      failed,
		PendingDeliveries:     pending,
		SuccessRate:           rate,
	}, nil
}

// ReconcileMissingFanout is an operator-triggered rescan: it re-enqueues
// fan-out jobs for events older than olderThan that have zero delivery
// logs, recovering from a fan-out job lost between ingestion and the
// queue (spec §9 open question 2). It is never run automatically; an
// operator or a scheduled external job invokes it explicitly.
func (s *Service) ReconcileMissingFanout(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	events, err := s.store.EventsWithoutDeliveryLogs(ctx, olderThan, limit)
	if err != nil {
		return 0, fmt.Errorf("admin: list events without delivery logs: %w", err)
	}

	reenqueued := 0
	for _, evt := range events {
		if err := s.queue.EnqueueFanout(ctx, queue.FanoutJob{
			EventID:   evt.ID,
			EventType: evt.Type,
		}, queue.EnqueueFanoutOptions{Attempts: 1}); err != nil {
			s.logger.ErrorContext(ctx, "admin: reconcile: enqueue fanout failed",
				"event_id", evt.ID, "error", err)
			continue
		}
		reenqueued++
	}

	s.logger.InfoContext(ctx, "admin: fanout reconciliation complete",
		"candidates", len(events), "reenqueued", reenqueued)
	return reenqueued, nil
}
