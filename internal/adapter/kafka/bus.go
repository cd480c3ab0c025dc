// Package kafka adapts the pub/sub transport for the pipeline: topic-addressed
// publish, pattern subscription, and the blocking delivery loop. The adapter
// owns no state; messages are at most buffered in flight.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// ErrConnect marks a broker that was unreachable within the dial timeout.
// The caller decides retry policy; this adapter never retries a connect.
var ErrConnect = errors.New("broker unreachable")

const dialTimeout = 10 * time.Second

// Handler is invoked once per delivered message. Handlers must bound their
// own blocking work; a stalled handler stalls delivery on that topic.
type Handler func(ctx context.Context, topic string, payload []byte)

// Bus creates publishers and subscribers bound to one broker set.
type Bus struct {
	brokers []string
	logger  *slog.Logger
}

// NewBus wraps the given brokers. No connection is made until Connect,
// NewPublisher, or Subscribe.
func NewBus(brokers []string, logger *slog.Logger) *Bus {
	return &Bus{brokers: brokers, logger: logger}
}

// Connect verifies the broker set is reachable. Returns ErrConnect when no
// broker answers within the dial timeout.
func (b *Bus) Connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	var lastErr error
	for _, broker := range b.brokers {
		conn, err := kafkago.DialContext(dialCtx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("%w: %v", ErrConnect, lastErr)
}

// Publisher writes messages to per-message topics over one shared connection
// pool. WriteMessages hands the payload to the transport client; callers that
// need broker confirmation raise RequiredAcks at construction.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher verifies connectivity and returns a publisher shared across
// topics. Topics are created on first publish if the broker allows it.
func (b *Bus) NewPublisher(ctx context.Context) (*Publisher, error) {
	if err := b.Connect(ctx); err != nil {
		return nil, err
	}
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(b.brokers...),
		Balancer:               &kafkago.LeastBytes{},
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w, logger: b.logger}, nil
}

// Publish sends one payload to the topic. Per-topic publish order follows
// call order on a single Publisher.
func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte) error {
	err := p.writer.WriteMessages(ctx, kafkago.Message{
		Topic: topic,
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Close releases the publisher's connections.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Subscriber consumes from a resolved topic set and dispatches each message
// to a single handler.
type Subscriber struct {
	reader  *kafkago.Reader
	handler Handler
	logger  *slog.Logger
}

// Subscribe resolves the topic patterns and prepares a group consumer.
// Patterns may be exact topic names or contain the wildcard "*"; wildcards
// are matched client-side against broker metadata at subscribe time, since
// the transport has no broker-side wildcard. Delivery order is preserved
// within one topic, not across topics.
func (b *Bus) Subscribe(ctx context.Context, groupID string, patterns []string, handler Handler) (*Subscriber, error) {
	if err := b.Connect(ctx); err != nil {
		return nil, err
	}

	topics, err := b.resolveTopics(ctx, patterns)
	if err != nil {
		return nil, err
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("no topics match patterns %v", patterns)
	}

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     b.brokers,
		GroupID:     groupID,
		GroupTopics: topics,
		StartOffset: kafkago.FirstOffset,
	})
	b.logger.Info("subscribed", "topics", topics, "group", groupID)
	return &Subscriber{reader: reader, handler: handler, logger: b.logger}, nil
}

// Run blocks, dispatching each delivered message to the handler until the
// context is cancelled. Cancellation stops the loop and releases the
// connection.
func (s *Subscriber) Run(ctx context.Context) error {
	defer s.reader.Close() //nolint:errcheck // nothing actionable on close error

	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				s.logger.Info("subscriber stopping", "reason", ctx.Err())
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}
		s.handler(ctx, msg.Topic, msg.Value)
	}
}

// Close releases the reader; safe to call while Run is blocked.
func (s *Subscriber) Close() error {
	return s.reader.Close()
}

// resolveTopics expands wildcard patterns against broker metadata and passes
// exact names through untouched.
func (b *Bus) resolveTopics(ctx context.Context, patterns []string) ([]string, error) {
	exact, wildcards := splitPatterns(patterns)
	if len(wildcards) == 0 {
		return exact, nil
	}

	client := &kafkago.Client{Addr: kafkago.TCP(b.brokers...)}
	meta, err := client.Metadata(ctx, &kafkago.MetadataRequest{})
	if err != nil {
		return nil, fmt.Errorf("list broker topics: %w", err)
	}

	names := make([]string, 0, len(meta.Topics))
	for _, t := range meta.Topics {
		names = append(names, t.Name)
	}
	return append(exact, matchTopics(names, wildcards)...), nil
}

// splitPatterns separates exact topic names from wildcard patterns.
func splitPatterns(patterns []string) (exact, wildcards []string) {
	for _, p := range patterns {
		if strings.ContainsAny(p, "*?") || p == "#" {
			wildcards = append(wildcards, p)
		} else {
			exact = append(exact, p)
		}
	}
	return exact, wildcards
}

// matchTopics returns the broker topics matching any pattern. The legacy MQTT
// catch-all "#" is accepted as an alias for "*". Internal topics (leading
// underscores) never match a wildcard.
func matchTopics(names, patterns []string) []string {
	var out []string
	for _, name := range names {
		if strings.HasPrefix(name, "_") {
			continue
		}
		for _, p := range patterns {
			if p == "#" {
				p = "*"
			}
			if ok, err := path.Match(p, name); err == nil && ok {
				out = append(out, name)
				break
			}
		}
	}
	return out
}
