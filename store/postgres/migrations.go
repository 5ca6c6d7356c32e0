package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the event relay store.
// It can be registered with the grove extension for orchestrated migration
// management (locking, version tracking, rollback support).
var Migrations = migrate.NewGroup("eventrelay")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_eventrelay_event_types",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS eventrelay_event_types (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    schema      JSONB,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS eventrelay_event_types`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_eventrelay_events",
			Version: "20260101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS eventrelay_events (
    id              TEXT PRIMARY KEY,
    type            TEXT NOT NULL DEFAULT '',
    payload         JSONB,
    idempotency_key TEXT NOT NULL DEFAULT '',
    received_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_eventrelay_events_type ON eventrelay_events (type);
CREATE UNIQUE INDEX IF NOT EXISTS idx_eventrelay_events_idempotency ON eventrelay_events (idempotency_key) WHERE idempotency_key != '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS eventrelay_events`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_eventrelay_subscriptions",
			Version: "20260101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS eventrelay_subscriptions (
    id          TEXT PRIMARY KEY,
    event_type  TEXT NOT NULL,
    target_url  TEXT NOT NULL,
    secret_key  TEXT NOT NULL,
    is_active   BOOLEAN NOT NULL DEFAULT TRUE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_eventrelay_subscriptions_event_type ON eventrelay_subscriptions (event_type) WHERE is_active;
CREATE UNIQUE INDEX IF NOT EXISTS idx_eventrelay_subscriptions_unique_active ON eventrelay_subscriptions (event_type, target_url) WHERE is_active;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS eventrelay_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_eventrelay_delivery_logs",
			Version: "20260101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS eventrelay_delivery_logs (
    id                   TEXT PRIMARY KEY,
    event_id             TEXT NOT NULL,
    subscription_id      TEXT NOT NULL,
    status               TEXT NOT NULL DEFAULT 'pending',
    attempt_count        INT NOT NULL DEFAULT 1,
    attempted_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    response_status_code INT,
    response_body        TEXT,
    error_message        TEXT
);

CREATE INDEX IF NOT EXISTS idx_eventrelay_delivery_logs_event ON eventrelay_delivery_logs (event_id);
CREATE INDEX IF NOT EXISTS idx_eventrelay_delivery_logs_subscription ON eventrelay_delivery_logs (event_id, subscription_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS eventrelay_delivery_logs`)
				return err
			},
		},
	)
}
