// Package pipeline holds the three orchestrations of the reservoir pipeline:
// the fetch-and-store run, the replay run, and the ingestion consumer. Each
// isolates per-unit failures and reports a structured per-station result map
// rather than a bare success flag.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/hydrowatch/reservoir-pipeline/internal/domain"
	"github.com/hydrowatch/reservoir-pipeline/internal/observability"
	"github.com/hydrowatch/reservoir-pipeline/internal/store"
)

// Fetcher retrieves raw CSV text for one station over a date range.
type Fetcher interface {
	Fetch(ctx context.Context, cdecID string, start, end time.Time) (string, error)
}

// Stager persists a fetched CSV verbatim and returns the staged path.
type Stager interface {
	Stage(stationName, text string) (string, error)
}

// ObservationStore is the slice of the store gateway the fetch run writes to.
type ObservationStore interface {
	InsertObservations(ctx context.Context, rows []domain.RawObservation) (store.InsertSummary, error)
	InsertFilteredReading(ctx context.Context, r domain.FilteredReading) error
}

// StationFetchResult reports one station's outcome within a fetch run.
type StationFetchResult struct {
	CdecID   string `json:"cdec_id"`
	Staged   string `json:"staged,omitempty"`
	Rows     int    `json:"rows"`
	Accepted int    `json:"accepted"`
	Rejected int    `json:"rejected"`
	Error    string `json:"error,omitempty"`
}

// FetchRun drives one bounded fetch-and-store pass over the monitored
// stations.
type FetchRun struct {
	fetcher Fetcher
	staging Stager
	store   ObservationStore
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewFetchRun wires a fetch run from its collaborators.
func NewFetchRun(f Fetcher, s Stager, st ObservationStore, logger *slog.Logger, metrics *observability.Metrics) *FetchRun {
	return &FetchRun{fetcher: f, staging: s, store: st, logger: logger, metrics: metrics}
}

// Run fetches, normalizes, and stores every monitored station for the date
// range. A failing station is recorded in its result entry and the loop
// continues; only context cancellation stops the run early.
func (f *FetchRun) Run(ctx context.Context, start, end time.Time) map[string]StationFetchResult {
	started := time.Now()
	results := make(map[string]StationFetchResult, len(domain.Stations))

	for _, station := range domain.Stations {
		if ctx.Err() != nil {
			break
		}
		results[station.Name] = f.runStation(ctx, station, start, end)
	}

	f.metrics.FetchDuration.Observe(time.Since(started).Seconds())
	return results
}

func (f *FetchRun) runStation(ctx context.Context, station domain.Station, start, end time.Time) StationFetchResult {
	result := StationFetchResult{CdecID: station.CdecID}

	text, err := f.fetcher.Fetch(ctx, station.CdecID, start, end)
	if err != nil {
		f.metrics.FetchErrors.WithLabelValues(station.CdecID).Inc()
		result.Error = err.Error()
		return result
	}

	path, err := f.staging.Stage(station.Name, text)
	if err != nil {
		// The staged copy is for traceability; a failed write is reported
		// but does not stop the store load.
		f.logger.Warn("staging failed", "station", station.CdecID, "error", err)
	} else {
		result.Staged = path
	}

	rows, err := domain.ParseCSV(text)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Rows = len(rows)
	f.metrics.RowsFetched.WithLabelValues(station.CdecID).Add(float64(len(rows)))

	accepted := make([]domain.RawObservation, 0, len(rows))
	for _, row := range rows {
		obs, err := domain.Normalize(row)
		if err != nil {
			f.logger.Warn("record rejected", "station", station.CdecID, "error", err)
			f.metrics.RecordsRejected.Inc()
			result.Rejected++
			continue
		}
		f.metrics.RecordsNormalized.Inc()
		accepted = append(accepted, obs)
	}

	summary, err := f.store.InsertObservations(ctx, accepted)
	if err != nil {
		f.metrics.InsertErrors.Inc()
		result.Error = err.Error()
		result.Rejected += summary.Rejected
		return result
	}
	result.Accepted = summary.Accepted
	f.metrics.RowsInserted.Add(float64(summary.Accepted))

	// Feed the summary table so the replay path has data without waiting for
	// transport traffic. Single-row failures are reported, not retried.
	for _, obs := range accepted {
		if obs.Value == nil {
			continue
		}
		reading := domain.FilteredReading{Date: obs.ObsDate, CdecID: obs.StationID, Feet: *obs.Value}
		if err := f.store.InsertFilteredReading(ctx, reading); err != nil {
			f.logger.Warn("filtered insert failed", "station", obs.StationID, "date", domain.DateOnly(obs.ObsDate), "error", err)
		}
	}

	return result
}
