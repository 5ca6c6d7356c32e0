// Package memory provides an in-memory Store implementation for unit testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/relayhq/eventrelay"
	"github.com/relayhq/eventrelay/catalog"
	"github.com/relayhq/eventrelay/deliverylog"
	"github.com/relayhq/eventrelay/event"
	"github.com/relayhq/eventrelay/id"
	"github.com/relayhq/eventrelay/subscription"

	relaystore "github.com/relayhq/eventrelay/store"
)

// compile-time interface check.
var _ relaystore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store for testing.
type Store struct {
	mu sync.RWMutex

	eventTypes      map[string]*catalog.EventType       // keyed by name
	events          map[string]*event.Event             // keyed by ID string
	eventsByIdemKey map[string]*event.Event             // keyed by idempotency key
	subscriptions   map[string]*subscription.Subscription // keyed by ID string
	deliveryLogs    map[string]*deliverylog.DeliveryLog // keyed by ID string

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		eventTypes:      make(map[string]*catalog.EventType),
		events:          make(map[string]*event.Event),
		eventsByIdemKey: make(map[string]*event.Event),
		subscriptions:   make(map[string]*subscription.Subscription),
		deliveryLogs:    make(map[string]*deliverylog.DeliveryLog),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the in-memory store.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return eventrelay.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// catalog.Store
// ──────────────────────────────────────────────────

// RegisterType creates or updates an event type definition (upsert by name).
func (s *Store) RegisterType(_ context.Context, et *catalog.EventType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.eventTypes[et.Definition.Name]; ok {
		existing.Definition = et.Definition
		existing.UpdatedAt = time.Now().UTC()
		et.ID = existing.ID
		return nil
	}

	s.eventTypes[et.Definition.Name] = et
	return nil
}

// GetType returns an event type by name, or (nil, nil) if none is registered.
func (s *Store) GetType(_ context.Context, name string) (*catalog.EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	et, ok := s.eventTypes[name]
	if !ok {
		return nil, nil
	}
	return et, nil
}

// ListTypes returns all registered event types.
func (s *Store) ListTypes(_ context.Context, opts catalog.ListOpts) ([]*catalog.EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*catalog.EventType, 0, len(s.eventTypes))
	for _, et := range s.eventTypes {
		result = append(result, et)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Definition.Name < result[j].Definition.Name
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// DeleteType removes an event type definition.
func (s *Store) DeleteType(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.eventTypes[name]; !ok {
		return nil
	}
	delete(s.eventTypes, name)
	return nil
}

// ──────────────────────────────────────────────────
// event.Store
// ──────────────────────────────────────────────────

// CreateEvent persists an event. Returns event.ErrDuplicateIdempotencyKey on conflict.
func (s *Store) CreateEvent(_ context.Context, evt *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if evt.IdempotencyKey != "" {
		if _, ok := s.eventsByIdemKey[evt.IdempotencyKey]; ok {
			return event.ErrDuplicateIdempotencyKey
		}
		s.eventsByIdemKey[evt.IdempotencyKey] = evt
	}

	s.events[evt.ID.String()] = evt
	return nil
}

// GetEvent returns an event by ID.
func (s *Store) GetEvent(_ context.Context, evtID id.ID) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evt, ok := s.events[evtID.String()]
	if !ok {
		return nil, eventrelay.ErrEventNotFound
	}
	return evt, nil
}

// GetEventByIdempotencyKey returns the event stored under the given key, if any.
func (s *Store) GetEventByIdempotencyKey(_ context.Context, key string) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evt, ok := s.eventsByIdemKey[key]
	if !ok {
		return nil, eventrelay.ErrEventNotFound
	}
	return evt, nil
}

// ListEvents returns events, optionally filtered.
func (s *Store) ListEvents(_ context.Context, opts event.ListOpts) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*event.Event, 0, len(s.events))
	for _, evt := range s.events {
		if !matchEventOpts(evt, opts) {
			continue
		}
		result = append(result, evt)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ReceivedAt.After(result[j].ReceivedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// EventsWithoutDeliveryLogs returns events older than olderThan with zero
// delivery logs, supporting the operator-triggered reconciliation rescan.
func (s *Store) EventsWithoutDeliveryLogs(_ context.Context, olderThan time.Time, limit int) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hasLog := make(map[string]bool, len(s.deliveryLogs))
	for _, l := range s.deliveryLogs {
		hasLog[l.EventID.String()] = true
	}

	result := make([]*event.Event, 0)
	for _, evt := range s.events {
		if evt.ReceivedAt.After(olderThan) {
			continue
		}
		if hasLog[evt.ID.String()] {
			continue
		}
		result = append(result, evt)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ReceivedAt.Before(result[j].ReceivedAt)
	})

	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

// CountEvents returns the total number of events.
func (s *Store) CountEvents(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.events)), nil
}

// ──────────────────────────────────────────────────
// subscription.Store
// ──────────────────────────────────────────────────

// CreateSubscription persists a new subscription.
func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.subscriptions {
		if existing.EventType == sub.EventType && existing.TargetURL == sub.TargetURL && existing.IsActive {
			return subscription.ErrDuplicateSubscription
		}
	}

	s.subscriptions[sub.ID.String()] = sub
	return nil
}

// GetSubscription returns a subscription by ID.
func (s *Store) GetSubscription(_ context.Context, subID id.ID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[subID.String()]
	if !ok {
		return nil, eventrelay.ErrSubscriptionNotFound
	}
	return sub, nil
}

// UpdateSubscription applies a patch to an existing subscription.
func (s *Store) UpdateSubscription(_ context.Context, subID id.ID, in subscription.Input) (*subscription.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subID.String()]
	if !ok {
		return nil, eventrelay.ErrSubscriptionNotFound
	}

	next := *sub
	if in.EventType != "" {
		next.EventType = in.EventType
	}
	if in.TargetURL != "" {
		next.TargetURL = in.TargetURL
	}
	if in.IsActive != nil {
		next.IsActive = *in.IsActive
	}

	if next.IsActive {
		for id2, existing := range s.subscriptions {
			if id2 == subID.String() {
				continue
			}
			if existing.EventType == next.EventType && existing.TargetURL == next.TargetURL && existing.IsActive {
				return nil, subscription.ErrDuplicateSubscription
			}
		}
	}

	next.UpdatedAt = time.Now().UTC()
	s.subscriptions[subID.String()] = &next
	return &next, nil
}

// DeleteSubscription hard-deletes a subscription.
func (s *Store) DeleteSubscription(_ context.Context, subID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscriptions[subID.String()]; !ok {
		return eventrelay.ErrSubscriptionNotFound
	}
	delete(s.subscriptions, subID.String())
	return nil
}

// ListSubscriptions returns subscriptions matching the given filters.
func (s *Store) ListSubscriptions(_ context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		if opts.EventType != "" && sub.EventType != opts.EventType {
			continue
		}
		if opts.IsActive != nil && sub.IsActive != *opts.IsActive {
			continue
		}
		result = append(result, sub)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// ListActiveSubscriptions returns every active subscription for an event type.
func (s *Store) ListActiveSubscriptions(_ context.Context, eventType string) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*subscription.Subscription
	for _, sub := range s.subscriptions {
		if sub.IsActive && sub.EventType == eventType {
			result = append(result, sub)
		}
	}
	return result, nil
}

// CountSubscriptions returns total/active/inactive subscription counts.
func (s *Store) CountSubscriptions(_ context.Context) (total, active, inactive int64, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subscriptions {
		total++
		if sub.IsActive {
			active++
		} else {
			inactive++
		}
	}
	return total, active, inactive, nil
}

// ──────────────────────────────────────────────────
// deliverylog.Store
// ──────────────────────────────────────────────────

// CreateDeliveryLog inserts a new pending delivery log row.
func (s *Store) CreateDeliveryLog(_ context.Context, log *deliverylog.DeliveryLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deliveryLogs[log.ID.String()] = log
	return nil
}

// FinishDeliveryLog transitions a row from pending to a terminal status.
func (s *Store) FinishDeliveryLog(_ context.Context, logID id.ID, status deliverylog.Status, responseCode *int, responseBody *string, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.deliveryLogs[logID.String()]
	if !ok {
		return eventrelay.ErrDeliveryLogNotFound
	}
	if log.Status != deliverylog.StatusPending {
		return deliverylog.ErrIllegalTransition
	}

	log.Status = status
	log.ResponseStatusCode = responseCode
	if responseBody != nil {
		truncated := deliverylog.Truncate(*responseBody)
		log.ResponseBody = &truncated
	}
	log.ErrorMessage = errMsg
	return nil
}

// GetDeliveryLog returns a delivery log by ID.
func (s *Store) GetDeliveryLog(_ context.Context, logID id.ID) (*deliverylog.DeliveryLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.deliveryLogs[logID.String()]
	if !ok {
		return nil, eventrelay.ErrDeliveryLogNotFound
	}
	return log, nil
}

// ListDeliveryLogs returns delivery logs matching the given filters.
func (s *Store) ListDeliveryLogs(_ context.Context, opts deliverylog.ListOpts) ([]*deliverylog.DeliveryLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*deliverylog.DeliveryLog, 0, len(s.deliveryLogs))
	for _, log := range s.deliveryLogs {
		if !zeroID(opts.EventID) && log.EventID.String() != opts.EventID.String() {
			continue
		}
		if !zeroID(opts.SubscriptionID) && log.SubscriptionID.String() != opts.SubscriptionID.String() {
			continue
		}
		if opts.Status != "" && log.Status != opts.Status {
			continue
		}
		if opts.From != nil && log.AttemptedAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && log.AttemptedAt.After(*opts.To) {
			continue
		}
		if opts.EventType != "" {
			evt, ok := s.events[log.EventID.String()]
			if !ok || evt.Type != opts.EventType {
				continue
			}
		}
		result = append(result, log)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].AttemptedAt.After(result[j].AttemptedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// ListDeliveryLogsByEvent returns every delivery log for an event.
func (s *Store) ListDeliveryLogsByEvent(_ context.Context, evtID id.ID) ([]*deliverylog.DeliveryLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*deliverylog.DeliveryLog, 0)
	for _, log := range s.deliveryLogs {
		if log.EventID.String() == evtID.String() {
			result = append(result, log)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].AttemptedAt.After(result[j].AttemptedAt)
	})
	return result, nil
}

// CountDeliveryLogs returns total/success/failed/pending counts.
func (s *Store) CountDeliveryLogs(_ context.Context) (total, success, failed, pending int64, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, log := range s.deliveryLogs {
		total++
		switch log.Status {
		case deliverylog.StatusSuccess:
			success++
		case deliverylog.StatusFailed:
			failed++
		case deliverylog.StatusPending:
			pending++
		}
	}
	return total, success, failed, pending, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func matchEventOpts(evt *event.Event, opts event.ListOpts) bool {
	if opts.Type != "" && evt.Type != opts.Type {
		return false
	}
	if opts.From != nil && evt.ReceivedAt.Before(*opts.From) {
		return false
	}
	if opts.To != nil && evt.ReceivedAt.After(*opts.To) {
		return false
	}
	return true
}

func zeroID(v id.ID) bool {
	return v.IsNil()
}

func applyPagination[T any](items []*T, offset, limit int) []*T {
	if offset > 0 && offset < len(items) {
		items = items[offset:]
	} else if offset >= len(items) {
		return nil
	}

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}
