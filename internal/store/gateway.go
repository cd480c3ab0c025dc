// Package store is the single owner of persisted reservoir rows. Every
// operation acquires its own connection from the pool, so callers may invoke
// the gateway concurrently without external locking.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hydrowatch/reservoir-pipeline/internal/domain"
)

// Gateway wraps database access for the master and filtered tables.
type Gateway struct {
	pool *pgxpool.Pool
}

// New creates a Gateway backed by a pgx pool. Connection parameters come from
// the configured URL; nothing is hard-coded here.
func New(ctx context.Context, databaseURL string) (*Gateway, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create store pool: %w", err)
	}
	return &Gateway{pool: pool}, nil
}

// Close releases the pool resources.
func (g *Gateway) Close() {
	if g.pool != nil {
		g.pool.Close()
	}
}

// Ping verifies store connectivity, used by the readiness probe.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.pool.Ping(ctx)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS reservoir_data (
    station_id    VARCHAR(3)  NOT NULL,
    duration_code TEXT        NOT NULL DEFAULT '',
    sensor_number TEXT        NOT NULL DEFAULT '',
    sensor_type   TEXT        NOT NULL DEFAULT '',
    obs_date      DATE        NOT NULL,
    obs_datetime  TIMESTAMPTZ,
    value         DOUBLE PRECISION,
    units         TEXT        NOT NULL DEFAULT '',
    data_flag     TEXT        NOT NULL DEFAULT '',
    PRIMARY KEY (station_id, sensor_number, obs_date)
);

CREATE TABLE IF NOT EXISTS filtered_data (
    date    DATE             NOT NULL,
    cdec_id VARCHAR(3)       NOT NULL,
    feet    DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS filtered_data_station_date
    ON filtered_data (cdec_id, date);
`

// EnsureSchema creates both tables if they do not exist. An advisory lock
// serializes concurrent callers; IF NOT EXISTS alone can still race inside
// Postgres catalog inserts.
func (g *Gateway) EnsureSchema(ctx context.Context) error {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(0x7e5e70)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return tx.Commit(ctx)
}

// InsertSummary reports the outcome of one batch insert.
type InsertSummary struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

const insertObservationSQL = `
INSERT INTO reservoir_data
    (station_id, duration_code, sensor_number, sensor_type, obs_date, obs_datetime, value, units, data_flag)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (station_id, sensor_number, obs_date) DO UPDATE
SET value       = EXCLUDED.value,
    obs_datetime = EXCLUDED.obs_datetime,
    data_flag   = EXCLUDED.data_flag,
    units       = EXCLUDED.units
`

// InsertObservations writes the rows inside a single transaction. Any driver
// error rolls the whole batch back; the summary then reports every row as
// rejected. This is deliberately stricter than the legacy per-row commit.
func (g *Gateway) InsertObservations(ctx context.Context, rows []domain.RawObservation) (InsertSummary, error) {
	if len(rows) == 0 {
		return InsertSummary{}, nil
	}

	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return InsertSummary{Rejected: len(rows)}, fmt.Errorf("begin insert tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertObservationSQL,
			r.StationID, r.DurationCode, r.SensorNumber, r.SensorType,
			r.ObsDate, r.ObsDateTime, r.Value, r.Units, r.DataFlag)
	}

	res := tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := res.Exec(); err != nil {
			_ = res.Close()
			return InsertSummary{Rejected: len(rows)}, fmt.Errorf("insert observation: %w", err)
		}
	}
	if err := res.Close(); err != nil {
		return InsertSummary{Rejected: len(rows)}, fmt.Errorf("close insert batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return InsertSummary{Rejected: len(rows)}, fmt.Errorf("commit insert tx: %w", err)
	}
	return InsertSummary{Accepted: len(rows)}, nil
}

// InsertFilteredReading writes one summary row. Failures are reported to the
// caller, not retried.
func (g *Gateway) InsertFilteredReading(ctx context.Context, r domain.FilteredReading) error {
	_, err := g.pool.Exec(ctx,
		`INSERT INTO filtered_data (date, cdec_id, feet) VALUES ($1,$2,$3)`,
		r.Date, r.CdecID, r.Feet)
	if err != nil {
		return fmt.Errorf("insert filtered reading: %w", err)
	}
	return nil
}

const queryFilteredSQL = `
SELECT date, feet FROM filtered_data
WHERE cdec_id = $1 AND date BETWEEN $2 AND $3
ORDER BY date ASC
`

// QueryFiltered returns the stored summary rows for one station inside the
// date range, ascending by date. Duplicate (station, date) rows are returned
// as stored; the legacy schema does not enforce uniqueness.
func (g *Gateway) QueryFiltered(ctx context.Context, cdecID string, start, end time.Time) ([]domain.FilteredReading, error) {
	rows, err := g.pool.Query(ctx, queryFilteredSQL, cdecID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query filtered readings: %w", err)
	}
	defer rows.Close()

	readings := make([]domain.FilteredReading, 0)
	for rows.Next() {
		r := domain.FilteredReading{CdecID: cdecID}
		if err := rows.Scan(&r.Date, &r.Feet); err != nil {
			return nil, fmt.Errorf("scan filtered reading: %w", err)
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate filtered readings: %w", err)
	}
	return readings, nil
}

const summaryStatsSQL = `
SELECT cdec_id, MAX(feet), MIN(feet), AVG(feet)
FROM filtered_data
GROUP BY cdec_id
ORDER BY cdec_id
`

// SummaryStats aggregates all stored feet values per station.
func (g *Gateway) SummaryStats(ctx context.Context) ([]domain.StationSummary, error) {
	rows, err := g.pool.Query(ctx, summaryStatsSQL)
	if err != nil {
		return nil, fmt.Errorf("query summary stats: %w", err)
	}
	defer rows.Close()

	summaries := make([]domain.StationSummary, 0)
	for rows.Next() {
		var s domain.StationSummary
		if err := rows.Scan(&s.CdecID, &s.MaxFeet, &s.MinFeet, &s.AvgFeet); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary rows: %w", err)
	}
	return summaries, nil
}
