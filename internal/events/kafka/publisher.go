// Package kafka publishes domain events to a Kafka-compatible broker.
// Records are keyed by aggregate ID, so one aggregate's events stay ordered
// within a partition; across aggregates there is no ordering guarantee.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"vendcore/internal/events"
	"vendcore/pkg/domain"
)

// Publisher writes event envelopes as JSON records, one topic per aggregate
// type.
type Publisher struct {
	client      *kgo.Client
	admin       *kadm.Client
	topicPrefix string
	log         *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithTopicPrefix namespaces topics (e.g. "vendcore" yields
// "vendcore.controller").
func WithTopicPrefix(prefix string) Option {
	return func(p *Publisher) { p.topicPrefix = prefix }
}

func WithLogger(log *slog.Logger) Option {
	return func(p *Publisher) { p.log = log }
}

// New connects to the brokers. Callers own Close.
func New(brokers []string, opts ...Option) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	p := &Publisher{
		client:      client,
		admin:       kadm.NewClient(client),
		topicPrefix: "vendcore",
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

var _ events.Publisher = (*Publisher)(nil)

// EnsureTopics creates the topic for each aggregate type if missing.
// Already-existing topics are fine; anything else is startup-fatal.
func (p *Publisher) EnsureTopics(ctx context.Context, aggregateTypes []string, partitions int32, replicas int16) error {
	topics := make([]string, 0, len(aggregateTypes))
	for _, aggregateType := range aggregateTypes {
		topics = append(topics, p.topic(aggregateType))
	}
	responses, err := p.admin.CreateTopics(ctx, partitions, replicas, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, response := range responses.Sorted() {
		if response.Err != nil && !kerr.IsRetriable(response.Err) {
			if response.Err == kerr.TopicAlreadyExists {
				continue
			}
			return fmt.Errorf("create topic %s: %w", response.Topic, response.Err)
		}
	}
	return nil
}

func (p *Publisher) Publish(ctx context.Context, event domain.Event) error {
	record, err := p.record(event)
	if err != nil {
		return err
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce event %s: %w", event.ID.String(), err)
	}
	return nil
}

func (p *Publisher) PublishBatch(ctx context.Context, batch []domain.Event) error {
	if len(batch) == 0 {
		return nil
	}
	records := make([]*kgo.Record, 0, len(batch))
	for _, event := range batch {
		record, err := p.record(event)
		if err != nil {
			return err
		}
		records = append(records, record)
	}
	if err := p.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce event batch: %w", err)
	}
	return nil
}

func (p *Publisher) record(event domain.Event) (*kgo.Record, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", event.ID.String(), err)
	}
	return &kgo.Record{
		Topic: p.topic(event.AggregateType),
		Key:   []byte(event.AggregateID),
		Value: value,
	}, nil
}

func (p *Publisher) topic(aggregateType string) string {
	name := strings.ToLower(aggregateType)
	if p.topicPrefix == "" {
		return name
	}
	return p.topicPrefix + "." + name
}

// Close flushes and releases the client.
func (p *Publisher) Close() {
	p.client.Close()
}
