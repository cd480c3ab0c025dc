//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	kafkaadapter "github.com/hydrowatch/reservoir-pipeline/internal/adapter/kafka"
	"github.com/hydrowatch/reservoir-pipeline/internal/configstore"
	"github.com/hydrowatch/reservoir-pipeline/internal/domain"
	"github.com/hydrowatch/reservoir-pipeline/internal/observability"
	"github.com/hydrowatch/reservoir-pipeline/internal/pipeline"
	"github.com/hydrowatch/reservoir-pipeline/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker in a container and returns its
// bootstrap address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("reservoir-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err, "resolve broker address")
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err, "dial broker")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "resolve controller")

	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err, "dial controller")
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// memStore is an in-memory ObservationStore for broker round-trip tests.
type memStore struct {
	mu       sync.Mutex
	inserted []domain.RawObservation
	filtered []domain.FilteredReading
}

func (m *memStore) InsertObservations(_ context.Context, rows []domain.RawObservation) (store.InsertSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted = append(m.inserted, rows...)
	return store.InsertSummary{Accepted: len(rows)}, nil
}

func (m *memStore) InsertFilteredReading(_ context.Context, r domain.FilteredReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filtered = append(m.filtered, r)
	return nil
}

func (m *memStore) filteredSnapshot() []domain.FilteredReading {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.FilteredReading(nil), m.filtered...)
}

// memQuerier serves canned filtered readings, standing in for Postgres on the
// replay side.
type memQuerier struct {
	byStation map[string][]domain.FilteredReading
}

func (q *memQuerier) QueryFiltered(_ context.Context, cdecID string, _, _ time.Time) ([]domain.FilteredReading, error) {
	return q.byStation[cdecID], nil
}

// TestBusPublishSubscribe verifies the adapter layer round-trips a payload
// through a real broker, including wildcard topic resolution.
func TestBusPublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, "station-SHA")

	bus := kafkaadapter.NewBus([]string{broker}, discardLogger())

	pub, err := bus.NewPublisher(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	payload, err := json.Marshal(domain.SummaryPayload{Date: "2022-01-02", Feet: 512.5})
	require.NoError(t, err)
	require.NoError(t, pub.Publish(ctx, "station-SHA", payload))

	type delivery struct {
		topic   string
		payload []byte
	}
	got := make(chan delivery, 1)

	groupID := fmt.Sprintf("test-bus-%d", time.Now().UnixNano())
	sub, err := bus.Subscribe(ctx, groupID, []string{"station-*"}, func(_ context.Context, topic string, payload []byte) {
		got <- delivery{topic: topic, payload: payload}
	})
	require.NoError(t, err, "wildcard pattern must resolve against broker metadata")

	runCtx, stop := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- sub.Run(runCtx) }()

	select {
	case d := <-got:
		assert.Equal(t, "station-SHA", d.topic)
		assert.JSONEq(t, string(payload), string(d.payload))
	case <-ctx.Done():
		t.Fatal("timed out waiting for delivery")
	}

	stop()
	require.NoError(t, <-errCh, "cancellation must stop the loop cleanly")
}

// TestReplayToConsumerRoundTrip wires the replay orchestrator and the
// ingestion consumer through a real broker: stored readings go out as summary
// payloads and land back as filtered rows, unchanged.
func TestReplayToConsumerRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, "station-SHA")
	createTopic(t, broker, "station-ORO")

	bus := kafkaadapter.NewBus([]string{broker}, discardLogger())
	metrics := observability.NewMetricsForTesting()

	// Consumer side first, so the group is reading before replay publishes.
	sink := &memStore{}
	consumer := pipeline.NewConsumer(sink, discardLogger(), metrics)

	groupID := fmt.Sprintf("test-roundtrip-%d", time.Now().UnixNano())
	sub, err := bus.Subscribe(ctx, groupID, []string{"station-SHA", "station-ORO"}, consumer.Handle)
	require.NoError(t, err)

	runCtx, stop := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- sub.Run(runCtx) }()

	// Replay side: directives on disk, readings in memory.
	configs := configstore.NewFile(filepath.Join(t.TempDir(), "reservoir_configs.json"))
	require.NoError(t, configs.Replace([]domain.ReservoirConfig{
		{Name: "Shasta Lake", CdecID: "SHA", StartDate: "2022-01-01", EndDate: "2022-01-31"},
		{Name: "Lake Oroville", CdecID: "ORO", StartDate: "2022-01-01", EndDate: "2022-01-31"},
	}))

	day := func(s string) time.Time {
		d, err := time.ParseInLocation("2006-01-02", s, time.UTC)
		require.NoError(t, err)
		return d
	}
	want := map[string][]domain.FilteredReading{
		"SHA": {
			{Date: day("2022-01-02"), CdecID: "SHA", Feet: 1011.4},
			{Date: day("2022-01-03"), CdecID: "SHA", Feet: 1012.0},
		},
		"ORO": {
			{Date: day("2022-01-02"), CdecID: "ORO", Feet: 771.3},
		},
	}

	replay := pipeline.NewReplay(configs, &memQuerier{byStation: want},
		func(ctx context.Context) (pipeline.Publisher, error) { return bus.NewPublisher(ctx) },
		domain.SchemeStation, discardLogger(), metrics)

	results, err := replay.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, results["SHA"].RecordsPublished)
	assert.Equal(t, 1, results["ORO"].RecordsPublished)

	// Wait for all three rows to arrive through the broker.
	deadline := time.After(60 * time.Second)
	for len(sink.filteredSnapshot()) < 3 {
		select {
		case <-deadline:
			t.Fatalf("timed out: got %d of 3 filtered rows", len(sink.filteredSnapshot()))
		case <-time.After(250 * time.Millisecond):
		}
	}

	byStation := map[string][]domain.FilteredReading{}
	for _, r := range sink.filteredSnapshot() {
		byStation[r.CdecID] = append(byStation[r.CdecID], r)
	}
	assert.ElementsMatch(t, want["SHA"], byStation["SHA"])
	assert.ElementsMatch(t, want["ORO"], byStation["ORO"])

	stop()
	require.NoError(t, <-errCh)
}
