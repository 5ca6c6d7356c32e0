package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	eventrelay "github.com/relayhq/eventrelay"
	"github.com/relayhq/eventrelay/catalog"
	"github.com/relayhq/eventrelay/deliverylog"
	"github.com/relayhq/eventrelay/event"
	"github.com/relayhq/eventrelay/id"
	relaystore "github.com/relayhq/eventrelay/store"
	"github.com/relayhq/eventrelay/subscription"
)

// compile-time interface check
var _ relaystore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("eventrelay/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("eventrelay/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Catalog Store ====================

func (s *Store) RegisterType(ctx context.Context, et *catalog.EventType) error {
	m := toEventTypeModel(et)
	_, err := s.pg.NewInsert(m).
		OnConflict("(name) DO UPDATE").
		Set("description = EXCLUDED.description").
		Set("schema = EXCLUDED.schema").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetType(ctx context.Context, name string) (*catalog.EventType, error) {
	m := new(eventTypeModel)
	err := s.pg.NewSelect(m).
		Where("name = $1", name).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return fromEventTypeModel(m)
}

func (s *Store) ListTypes(ctx context.Context, opts catalog.ListOpts) ([]*catalog.EventType, error) {
	var models []eventTypeModel
	q := s.pg.NewSelect(&models)

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*catalog.EventType, len(models))
	for i := range models {
		et, err := fromEventTypeModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = et
	}
	return result, nil
}

func (s *Store) DeleteType(ctx context.Context, name string) error {
	_, err := s.pg.NewDelete((*eventTypeModel)(nil)).
		Where("name = $1", name).
		Exec(ctx)
	return err
}

// ==================== Event Store ====================

func (s *Store) CreateEvent(ctx context.Context, evt *event.Event) error {
	m := toEventModel(evt)

	if evt.IdempotencyKey != "" {
		res, err := s.pg.NewInsert(m).
			OnConflict("(idempotency_key) WHERE idempotency_key != '' DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return event.ErrDuplicateIdempotencyKey
		}
		return nil
	}

	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	m := new(eventModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", evtID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, eventrelay.ErrEventNotFound
		}
		return nil, err
	}
	return fromEventModel(m)
}

func (s *Store) GetEventByIdempotencyKey(ctx context.Context, key string) (*event.Event, error) {
	m := new(eventModel)
	err := s.pg.NewSelect(m).
		Where("idempotency_key = $1", key).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, eventrelay.ErrEventNotFound
		}
		return nil, err
	}
	return fromEventModel(m)
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Type != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("type = $%d", argIdx), opts.Type)
	}
	if opts.From != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("received_at >= $%d", argIdx), *opts.From)
	}
	if opts.To != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("received_at <= $%d", argIdx), *opts.To)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("received_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*event.Event, len(models))
	for i := range models {
		evt, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = evt
	}
	return result, nil
}

func (s *Store) EventsWithoutDeliveryLogs(ctx context.Context, olderThan time.Time, limit int) ([]*event.Event, error) {
	var models []eventModel
	err := s.pg.NewRaw(`
		SELECT e.* FROM eventrelay_events e
		LEFT JOIN eventrelay_delivery_logs d ON d.event_id = e.id
		WHERE d.id IS NULL AND e.received_at < $1
		ORDER BY e.received_at ASC
		LIMIT $2
	`, olderThan, limit).Scan(ctx, &models)
	if err != nil {
		return nil, err
	}

	result := make([]*event.Event, len(models))
	for i := range models {
		evt, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = evt
	}
	return result, nil
}

func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	return s.pg.NewSelect((*eventModel)(nil)).Count(ctx)
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	if !sub.IsActive {
		_, err := s.pg.NewInsert(m).Exec(ctx)
		return err
	}

	res, err := s.pg.NewInsert(m).
		OnConflict("(event_type, target_url) WHERE is_active DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return subscription.ErrDuplicateSubscription
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", subID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, eventrelay.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) UpdateSubscription(ctx context.Context, subID id.ID, in subscription.Input) (*subscription.Subscription, error) {
	existing, err := s.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}

	if in.EventType != "" {
		existing.EventType = in.EventType
	}
	if in.TargetURL != "" {
		existing.TargetURL = in.TargetURL
	}
	if in.IsActive != nil {
		existing.IsActive = *in.IsActive
	}
	existing.UpdatedAt = time.Now().UTC()

	if existing.IsActive {
		var count int64
		count, err = s.pg.NewSelect((*subscriptionModel)(nil)).
			Where("event_type = $1", existing.EventType).
			Where("target_url = $2", existing.TargetURL).
			Where("is_active = true").
			Where("id != $3", subID.String()).
			Count(ctx)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, subscription.ErrDuplicateSubscription
		}
	}

	m := toSubscriptionModel(existing)
	if _, err := s.pg.NewUpdate(m).WherePK().Exec(ctx); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *Store) DeleteSubscription(ctx context.Context, subID id.ID) error {
	res, err := s.pg.NewDelete((*subscriptionModel)(nil)).
		Where("id = $1", subID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return eventrelay.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.EventType != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("event_type = $%d", argIdx), opts.EventType)
	}
	if opts.IsActive != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("is_active = $%d", argIdx), *opts.IsActive)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

func (s *Store) ListActiveSubscriptions(ctx context.Context, eventType string) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	if err := s.pg.NewSelect(&models).
		Where("event_type = $1", eventType).
		Where("is_active = true").
		Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

func (s *Store) CountSubscriptions(ctx context.Context) (total, active, inactive int64, err error) {
	total, err = s.pg.NewSelect((*subscriptionModel)(nil)).Count(ctx)
	if err != nil {
		return 0, 0, 0, err
	}
	active, err = s.pg.NewSelect((*subscriptionModel)(nil)).Where("is_active = true").Count(ctx)
	if err != nil {
		return 0, 0, 0, err
	}
	inactive = total - active
	return total, active, inactive, nil
}

// ==================== Delivery Log Store ====================

func (s *Store) CreateDeliveryLog(ctx context.Context, log *deliverylog.DeliveryLog) error {
	m := toDeliveryLogModel(log)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) FinishDeliveryLog(ctx context.Context, logID id.ID, status deliverylog.Status, responseCode *int, responseBody *string, errMsg *string) error {
	if responseBody != nil {
		truncated := deliverylog.Truncate(*responseBody)
		responseBody = &truncated
	}

	res, err := s.pg.NewUpdate((*deliveryLogModel)(nil)).
		Set("status = $1", string(status)).
		Set("response_status_code = $2", responseCode).
		Set("response_body = $3", responseBody).
		Set("error_message = $4", errMsg).
		Where("id = $5", logID.String()).
		Where("status = $6", string(deliverylog.StatusPending)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return deliverylog.ErrIllegalTransition
	}
	return nil
}

func (s *Store) GetDeliveryLog(ctx context.Context, logID id.ID) (*deliverylog.DeliveryLog, error) {
	m := new(deliveryLogModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", logID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, eventrelay.ErrDeliveryLogNotFound
		}
		return nil, err
	}
	return fromDeliveryLogModel(m)
}

func (s *Store) ListDeliveryLogs(ctx context.Context, opts deliverylog.ListOpts) ([]*deliverylog.DeliveryLog, error) {
	var models []deliveryLogModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if !opts.EventID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("event_id = $%d", argIdx), opts.EventID.String())
	}
	if !opts.SubscriptionID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("subscription_id = $%d", argIdx), opts.SubscriptionID.String())
	}
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if opts.From != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("attempted_at >= $%d", argIdx), *opts.From)
	}
	if opts.To != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("attempted_at <= $%d", argIdx), *opts.To)
	}
	if opts.EventType != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("event_id IN (SELECT id FROM eventrelay_events WHERE type = $%d)", argIdx), opts.EventType)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("attempted_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*deliverylog.DeliveryLog, len(models))
	for i := range models {
		l, err := fromDeliveryLogModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = l
	}
	return result, nil
}

func (s *Store) ListDeliveryLogsByEvent(ctx context.Context, evtID id.ID) ([]*deliverylog.DeliveryLog, error) {
	var models []deliveryLogModel
	if err := s.pg.NewSelect(&models).
		Where("event_id = $1", evtID.String()).
		OrderExpr("attempted_at DESC").
		Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*deliverylog.DeliveryLog, len(models))
	for i := range models {
		l, err := fromDeliveryLogModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = l
	}
	return result, nil
}

func (s *Store) CountDeliveryLogs(ctx context.Context) (total, success, failed, pending int64, err error) {
	total, err = s.pg.NewSelect((*deliveryLogModel)(nil)).Count(ctx)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	success, err = s.pg.NewSelect((*deliveryLogModel)(nil)).
		Where("status = $1", string(deliverylog.StatusSuccess)).Count(ctx)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	failed, err = s.pg.NewSelect((*deliveryLogModel)(nil)).
		Where("status = $1", string(deliverylog.StatusFailed)).Count(ctx)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	pending, err = s.pg.NewSelect((*deliveryLogModel)(nil)).
		Where("status = $1", string(deliverylog.StatusPending)).Count(ctx)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return total, success, failed, pending, nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
