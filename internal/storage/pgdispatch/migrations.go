package pgdispatch

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type migration struct {
	version int
	name    string
	stmts   []string
}

// Миграции применяются строго по возрастанию версии, каждая в своей транзакции.
// Уже применённые версии не трогаем.
var migrations = []migration{
	{
		version: 1,
		name:    "base tables",
		stmts: []string{
			`
CREATE TABLE IF NOT EXISTS riders (
  name TEXT PRIMARY KEY,
  phone TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
			`
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  rider TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT '',
  created_ts BIGINT NOT NULL DEFAULT 0,
  pickup_ts BIGINT NULL,
  delivered_ts BIGINT NULL,
  eta_ts BIGINT NULL,
  origin_lng DOUBLE PRECISION NULL,
  origin_lat DOUBLE PRECISION NULL,
  dest_lng DOUBLE PRECISION NULL,
  dest_lat DOUBLE PRECISION NULL,
  fee DOUBLE PRECISION NOT NULL DEFAULT 0,
  distance_km DOUBLE PRECISION NOT NULL DEFAULT 0
)`,
			`CREATE INDEX IF NOT EXISTS idx_orders_created_ts ON orders(created_ts)`,
			`CREATE INDEX IF NOT EXISTS idx_orders_rider ON orders(rider)`,
			`
CREATE TABLE IF NOT EXISTS order_events (
  id BIGSERIAL PRIMARY KEY,
  order_id TEXT NOT NULL,
  ts BIGINT NOT NULL,
  type TEXT NOT NULL,
  meta JSONB NOT NULL DEFAULT '{}'::jsonb
)`,
			`CREATE INDEX IF NOT EXISTS idx_order_events_order_ts ON order_events(order_id, ts)`,
			`
CREATE TABLE IF NOT EXISTS live_points (
  id BIGSERIAL PRIMARY KEY,
  rider TEXT NOT NULL,
  lng DOUBLE PRECISION NOT NULL,
  lat DOUBLE PRECISION NOT NULL,
  ts_ms BIGINT NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_live_points_rider_ts ON live_points(rider, ts_ms DESC)`,
			`
CREATE TABLE IF NOT EXISTS tracks (
  id BIGSERIAL PRIMARY KEY,
  rider TEXT NOT NULL,
  phone TEXT NOT NULL DEFAULT '',
  start_ms BIGINT NOT NULL,
  end_ms BIGINT NOT NULL,
  distance_m DOUBLE PRECISION NOT NULL DEFAULT 0,
  points JSONB NOT NULL DEFAULT '[]'::jsonb,
  UNIQUE (rider, start_ms, end_ms)
)`,
			`CREATE INDEX IF NOT EXISTS idx_tracks_end_ms ON tracks(end_ms)`,
			`
CREATE TABLE IF NOT EXISTS alerts (
  id BIGSERIAL PRIMARY KEY,
  order_id TEXT NOT NULL,
  rider TEXT NOT NULL DEFAULT '',
  kind TEXT NOT NULL,
  ts BIGINT NOT NULL,
  lng DOUBLE PRECISION NOT NULL DEFAULT 0,
  lat DOUBLE PRECISION NOT NULL DEFAULT 0,
  severity INT NOT NULL DEFAULT 0
)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS uq_alerts_order_kind ON alerts(order_id, kind)`,
			`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts DESC)`,
			`
CREATE TABLE IF NOT EXISTS settlements (
  id BIGSERIAL PRIMARY KEY,
  rider TEXT NOT NULL,
  period_start BIGINT NOT NULL,
  period_end BIGINT NOT NULL,
  orders_count INT NOT NULL DEFAULT 0,
  total_income DOUBLE PRECISION NOT NULL DEFAULT 0,
  subsidy DOUBLE PRECISION NOT NULL DEFAULT 0,
  penalties DOUBLE PRECISION NOT NULL DEFAULT 0,
  net_income DOUBLE PRECISION NOT NULL DEFAULT 0,
  generated_ts BIGINT NOT NULL,
  UNIQUE (rider, period_start, period_end)
)`,
			`
CREATE TABLE IF NOT EXISTS mileage_daily (
  rider TEXT NOT NULL,
  day TEXT NOT NULL,
  km DOUBLE PRECISION NOT NULL DEFAULT 0,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (rider, day)
)`,
			`
CREATE TABLE IF NOT EXISTS performance_daily (
  rider TEXT NOT NULL,
  day TEXT NOT NULL,
  orders_count INT NOT NULL DEFAULT 0,
  on_time_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
  accept_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
  positive_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (rider, day)
)`,
		},
	},
	{
		version: 2,
		name:    "orders category",
		stmts: []string{
			`ALTER TABLE orders ADD COLUMN IF NOT EXISTS category TEXT NULL`,
		},
	},
}

const migrationsLockKey = 727001

func (s *Storage) migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INT PRIMARY KEY,
  name TEXT NOT NULL,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return errors.Wrap(err, "create schema_migrations")
	}

	for _, m := range migrations {
		applied, err := s.applyMigration(ctx, m)
		if err != nil {
			return errors.Wrapf(err, "migration %d (%s)", m.version, m.name)
		}
		if applied {
			slog.Info("migration applied", "version", m.version, "name", m.name)
		}
	}
	return nil
}

func (s *Storage) applyMigration(ctx context.Context, m migration) (bool, error) {
	applied := false
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		// Несколько инстансов могут стартовать одновременно.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationsLockKey); err != nil {
			return errors.Wrap(err, "lock migrations")
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.version).Scan(&exists); err != nil {
			return errors.Wrap(err, "check migration")
		}
		if exists {
			return nil
		}
		for _, q := range m.stmts {
			if _, err := tx.Exec(ctx, q); err != nil {
				return errors.Wrap(err, "exec migration")
			}
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.version, m.name); err != nil {
			return errors.Wrap(err, "record migration")
		}
		applied = true
		return nil
	})
	return applied, err
}

// SchemaVersion returns the highest applied migration version.
func (s *Storage) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v)
	return v, errors.Wrap(err, "schema version")
}
