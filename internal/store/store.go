// Package store is the server's TimescaleDB persistence layer: schema
// management, idempotent sample ingest, and the realtime and rollup read
// queries.
package store

import (
	"context"
	"embed"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sunspool/sunspool/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// rollupDDL creates the continuous aggregates behind the series frames.
// These statements cannot run inside a transaction, so they are applied
// one by one with autocommit instead of through the migration runner.
var rollupDDL = []string{
	`CREATE MATERIALIZED VIEW IF NOT EXISTS samples_hourly
WITH (timescaledb.continuous) AS
SELECT
    device_id,
    time_bucket(INTERVAL '1 hour', ts) AS bucket,
    avg(pv_power_w)      AS avg_pv_power_w,
    max(pv_power_w)      AS max_pv_power_w,
    avg(battery_power_w) AS avg_battery_power_w,
    avg(battery_soc_pct) AS avg_battery_soc_pct,
    avg(load_power_w)    AS avg_load_power_w,
    avg(export_power_w)  AS avg_export_power_w,
    sum(sample_count)    AS sample_count
FROM samples
GROUP BY device_id, bucket
WITH NO DATA`,
	`CREATE MATERIALIZED VIEW IF NOT EXISTS samples_daily
WITH (timescaledb.continuous) AS
SELECT
    device_id,
    time_bucket(INTERVAL '1 day', ts) AS bucket,
    avg(pv_power_w)      AS avg_pv_power_w,
    max(pv_power_w)      AS max_pv_power_w,
    avg(battery_power_w) AS avg_battery_power_w,
    avg(battery_soc_pct) AS avg_battery_soc_pct,
    avg(load_power_w)    AS avg_load_power_w,
    avg(export_power_w)  AS avg_export_power_w,
    sum(sample_count)    AS sample_count
FROM samples
GROUP BY device_id, bucket
WITH NO DATA`,
	`CREATE MATERIALIZED VIEW IF NOT EXISTS samples_monthly
WITH (timescaledb.continuous) AS
SELECT
    device_id,
    time_bucket(INTERVAL '1 month', ts) AS bucket,
    avg(pv_power_w)      AS avg_pv_power_w,
    max(pv_power_w)      AS max_pv_power_w,
    avg(battery_power_w) AS avg_battery_power_w,
    avg(battery_soc_pct) AS avg_battery_soc_pct,
    avg(load_power_w)    AS avg_load_power_w,
    avg(export_power_w)  AS avg_export_power_w,
    sum(sample_count)    AS sample_count
FROM samples
GROUP BY device_id, bucket
WITH NO DATA`,
	`SELECT add_continuous_aggregate_policy('samples_hourly',
    start_offset      => INTERVAL '3 hours',
    end_offset        => INTERVAL '10 minutes',
    schedule_interval => INTERVAL '30 minutes',
    if_not_exists     => TRUE)`,
	`SELECT add_continuous_aggregate_policy('samples_daily',
    start_offset      => INTERVAL '3 days',
    end_offset        => INTERVAL '1 hour',
    schedule_interval => INTERVAL '1 hour',
    if_not_exists     => TRUE)`,
	`SELECT add_continuous_aggregate_policy('samples_monthly',
    start_offset      => INTERVAL '3 months',
    end_offset        => INTERVAL '1 day',
    schedule_interval => INTERVAL '12 hours',
    if_not_exists     => TRUE)`,
}

// Store wraps the TimescaleDB connection pool.
type Store struct {
	pool *pgxpool.Pool

	// series executes a bucket query. Tests substitute it to drive the
	// rollup-to-raw fallback without a database.
	series func(ctx context.Context, query string, args []any) ([]model.Bucket, error)
}

// Open creates a connection pool against databaseURL and verifies it
// with a ping.
func Open(ctx context.Context, databaseURL string, maxConns int) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{pool: pool}
	s.series = s.scanBuckets
	return s, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies pending schema migrations, then ensures the rollup
// views exist. Rollup creation is best effort: on failure the server
// still starts and QuerySeries falls back to aggregating the raw
// hypertable until the views appear.
func (s *Store) Migrate(ctx context.Context, databaseURL string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("run migrations: %w", err)
	}

	for _, ddl := range rollupDDL {
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			log.Printf("[store] warning: create rollup views: %v", err)
			break
		}
	}
	return nil
}
