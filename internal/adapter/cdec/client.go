// Package cdec retrieves raw CSV time series from the CDEC data servlet and
// stages the responses on disk for traceability.
package cdec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/hydrowatch/reservoir-pipeline/internal/config"
	"github.com/hydrowatch/reservoir-pipeline/internal/domain"
)

// ErrUpstream marks a fetch that failed at the CDEC endpoint: network error,
// deadline, non-success status, or an open circuit. Per-station failures are
// reported, never allowed to abort the remaining stations.
var ErrUpstream = errors.New("cdec upstream failure")

// Client fetches one station's CSV export per call. The request deadline is a
// hard cap from configuration; the circuit breaker keeps a flapping upstream
// from burning the whole station loop on every run.
type Client struct {
	rest         *resty.Client
	breaker      *gobreaker.CircuitBreaker
	sensorNumber string
	durationCode string
	logger       *slog.Logger
}

// NewClient creates a CDEC client from service configuration.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	rest := resty.New().
		SetBaseURL(cfg.CDECBaseURL).
		SetTimeout(cfg.CDECTimeout)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "cdec",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		rest:         rest,
		breaker:      breaker,
		sensorNumber: cfg.SensorNumber,
		durationCode: cfg.DurationCode,
		logger:       logger,
	}
}

// Fetch retrieves the raw CSV text for one station over the date range.
func (c *Client) Fetch(ctx context.Context, cdecID string, start, end time.Time) (string, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.rest.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"Stations":   cdecID,
				"SensorNums": c.sensorNumber,
				"dur_code":   c.durationCode,
				"Start":      domain.DateOnly(start),
				"End":        domain.DateOnly(end),
			}).
			Get("")
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("status %d", resp.StatusCode())
		}
		return resp.String(), nil
	})
	if err != nil {
		c.logger.Warn("cdec fetch failed", "station", cdecID, "error", err)
		return "", fmt.Errorf("%w: station %s: %v", ErrUpstream, cdecID, err)
	}
	return result.(string), nil
}
