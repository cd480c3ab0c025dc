package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hydrowatch/reservoir-pipeline/internal/domain"
	"github.com/hydrowatch/reservoir-pipeline/internal/observability"
)

// ReplayState names the phases of a replay run.
type ReplayState string

const (
	ReplayIdle       ReplayState = "idle"
	ReplayConnecting ReplayState = "connecting"
	ReplayPublishing ReplayState = "publishing"
	ReplayDone       ReplayState = "done"
	ReplayFailed     ReplayState = "failed"
)

// ConfigSource loads the current replay directives.
type ConfigSource interface {
	Load() ([]domain.ReservoirConfig, error)
}

// FilteredQuerier is the slice of the store gateway replay reads from.
type FilteredQuerier interface {
	QueryFiltered(ctx context.Context, cdecID string, start, end time.Time) ([]domain.FilteredReading, error)
}

// Publisher hands payloads to the transport.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// ConnectFunc opens the transport connection a replay run shares across all
// configured stations.
type ConnectFunc func(ctx context.Context) (Publisher, error)

// StationReplayResult reports one station's outcome within a replay run.
type StationReplayResult struct {
	Topic            string `json:"topic"`
	RecordsPublished int    `json:"records_published"`
	Error            string `json:"error,omitempty"`
}

// Replay republishes stored summary rows onto station topics, one message per
// row, as if freshly observed. Replay never mutates the store.
type Replay struct {
	configs ConfigSource
	store   FilteredQuerier
	connect ConnectFunc
	scheme  domain.TopicScheme
	logger  *slog.Logger
	metrics *observability.Metrics
	state   atomic.Value // ReplayState
}

// NewReplay wires a replay orchestrator from its collaborators.
func NewReplay(configs ConfigSource, store FilteredQuerier, connect ConnectFunc, scheme domain.TopicScheme, logger *slog.Logger, metrics *observability.Metrics) *Replay {
	r := &Replay{configs: configs, store: store, connect: connect, scheme: scheme, logger: logger, metrics: metrics}
	r.state.Store(ReplayIdle)
	return r
}

// State returns the current phase of the orchestrator.
func (r *Replay) State() ReplayState {
	return r.state.Load().(ReplayState)
}

// Run executes one replay pass: load config, open one shared transport
// connection, then per station query the date range and publish one summary
// message per row in ascending date order. Per-station query failures are
// recorded in the result map and do not abort later stations; a missing
// config or unreachable transport fails the whole run with no side effects.
func (r *Replay) Run(ctx context.Context) (map[string]StationReplayResult, error) {
	started := time.Now()
	r.metrics.ReplayRuns.Inc()

	configs, err := r.configs.Load()
	if err != nil {
		r.state.Store(ReplayFailed)
		return nil, err
	}

	r.state.Store(ReplayConnecting)
	pub, err := r.connect(ctx)
	if err != nil {
		r.state.Store(ReplayFailed)
		return nil, fmt.Errorf("connect transport: %w", err)
	}
	defer pub.Close() //nolint:errcheck // run results already collected

	r.state.Store(ReplayPublishing)
	results := make(map[string]StationReplayResult, len(configs))
	for _, cfg := range configs {
		results[cfg.CdecID] = r.runStation(ctx, pub, cfg)
	}

	r.state.Store(ReplayDone)
	r.metrics.ReplayDuration.Observe(time.Since(started).Seconds())
	return results, nil
}

func (r *Replay) runStation(ctx context.Context, pub Publisher, cfg domain.ReservoirConfig) StationReplayResult {
	topic := domain.TopicForStation(r.scheme, cfg.CdecID)
	result := StationReplayResult{Topic: topic}

	start, err := time.ParseInLocation("2006-01-02", cfg.StartDate, time.UTC)
	if err != nil {
		result.Error = fmt.Sprintf("invalid startDate %q", cfg.StartDate)
		return result
	}
	end, err := time.ParseInLocation("2006-01-02", cfg.EndDate, time.UTC)
	if err != nil {
		result.Error = fmt.Sprintf("invalid endDate %q", cfg.EndDate)
		return result
	}

	readings, err := r.store.QueryFiltered(ctx, cfg.CdecID, start, end)
	if err != nil {
		r.logger.Warn("replay query failed", "station", cfg.CdecID, "error", err)
		result.Error = err.Error()
		return result
	}

	for _, reading := range readings {
		payload, err := json.Marshal(domain.SummaryPayload{
			Date: domain.DateOnly(reading.Date),
			Feet: reading.Feet,
		})
		if err != nil {
			result.Error = err.Error()
			return result
		}
		if err := pub.Publish(ctx, topic, payload); err != nil {
			result.Error = err.Error()
			return result
		}
		result.RecordsPublished++
		r.metrics.MessagesPublished.WithLabelValues(topic).Inc()
	}

	return result
}
