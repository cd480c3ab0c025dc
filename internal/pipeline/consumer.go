package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/hydrowatch/reservoir-pipeline/internal/domain"
	"github.com/hydrowatch/reservoir-pipeline/internal/observability"
)

// Consumer ingests transport messages into the store. A single handler serves
// both payload shapes: compact replay summaries carrying a FEET key, and full
// telemetry records carrying normalizer columns. Malformed messages are
// logged and dropped; the delivery loop never stops for a bad payload.
type Consumer struct {
	store   ObservationStore
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool
}

// NewConsumer wires an ingestion consumer against the store.
func NewConsumer(store ObservationStore, logger *slog.Logger, metrics *observability.Metrics) *Consumer {
	return &Consumer{store: store, logger: logger, metrics: metrics}
}

// DeliveryLoop is a running subscription; Run blocks until the context ends.
type DeliveryLoop interface {
	Run(ctx context.Context) error
}

// SubscribeFunc opens a subscription dispatching to the handler.
type SubscribeFunc func(ctx context.Context, handler func(ctx context.Context, topic string, payload []byte)) (DeliveryLoop, error)

// Run subscribes and consumes until the context is cancelled. A failed
// subscribe or a dropped connection is retried after a short pause, so a
// broker that comes up late or restarts does not kill the service.
func (c *Consumer) Run(ctx context.Context, subscribe SubscribeFunc) error {
	for ctx.Err() == nil {
		loop, err := subscribe(ctx, c.Handle)
		if err != nil {
			c.logger.Warn("subscribe failed, retrying", "error", err)
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
			}
			continue
		}

		c.SetReady(true)
		err = loop.Run(ctx)
		c.SetReady(false)
		if err != nil {
			c.logger.Error("delivery loop stopped", "error", err)
		}
	}
	return nil
}

// Ready reports whether the consumer has an active subscription.
func (c *Consumer) Ready() bool {
	return c.ready.Load()
}

// SetReady flips the readiness flag; the runner calls this around the
// delivery loop.
func (c *Consumer) SetReady(ready bool) {
	c.ready.Store(ready)
	if ready {
		c.metrics.ConsumerRunning.Set(1)
	} else {
		c.metrics.ConsumerRunning.Set(0)
	}
}

// Handle processes one delivered message. Shape is decided by the payload
// itself, not the topic: a FEET key marks a summary, anything else is treated
// as a telemetry record.
func (c *Consumer) Handle(ctx context.Context, topic string, payload []byte) {
	c.metrics.MessagesConsumed.WithLabelValues(topic).Inc()

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		c.drop(topic, "not a JSON object", err)
		return
	}

	if _, ok := fields["FEET"]; ok {
		c.handleSummary(ctx, topic, fields)
		return
	}
	c.handleTelemetry(ctx, topic, fields)
}

func (c *Consumer) handleSummary(ctx context.Context, topic string, fields map[string]any) {
	station, err := domain.StationFromTopic(topic)
	if err != nil {
		c.drop(topic, "summary on non-station topic", err)
		return
	}

	feet, ok := fields["FEET"].(float64)
	if !ok {
		c.drop(topic, "FEET is not a number", nil)
		return
	}
	dateStr, ok := fields["DATE"].(string)
	if !ok {
		c.drop(topic, "DATE is not a string", nil)
		return
	}
	date, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
	if err != nil {
		c.drop(topic, fmt.Sprintf("unparseable DATE %q", dateStr), err)
		return
	}

	reading := domain.FilteredReading{Date: date, CdecID: station, Feet: feet}
	if err := c.store.InsertFilteredReading(ctx, reading); err != nil {
		c.drop(topic, "summary insert failed", err)
		return
	}
}

func (c *Consumer) handleTelemetry(ctx context.Context, topic string, fields map[string]any) {
	row := make(map[string]string, len(fields))
	for k, v := range fields {
		row[k] = stringify(v)
	}

	obs, err := domain.Normalize(row)
	if err != nil {
		c.metrics.RecordsRejected.Inc()
		c.drop(topic, "record rejected", err)
		return
	}
	c.metrics.RecordsNormalized.Inc()

	summary, err := c.store.InsertObservations(ctx, []domain.RawObservation{obs})
	if err != nil {
		c.metrics.InsertErrors.Inc()
		c.drop(topic, "telemetry insert failed", err)
		return
	}
	c.metrics.RowsInserted.Add(float64(summary.Accepted))
}

func (c *Consumer) drop(topic, reason string, err error) {
	c.metrics.ConsumerDropped.Inc()
	if err != nil {
		c.logger.Warn("message dropped", "topic", topic, "reason", reason, "error", err)
		return
	}
	c.logger.Warn("message dropped", "topic", topic, "reason", reason)
}

// stringify renders a decoded JSON value back into the column text form the
// normalizer expects.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
