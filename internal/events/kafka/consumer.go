package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"

	"vendcore/pkg/domain"
)

// Dispatcher receives decoded envelopes. The in-process bus satisfies it.
type Dispatcher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Consumer reads event topics within a consumer group and hands each decoded
// envelope to a dispatcher. Offsets are committed after the dispatcher
// returns, so redelivery is possible and handlers dedupe on event ID.
type Consumer struct {
	client      *kgo.Client
	dispatcher  Dispatcher
	topicPrefix string
	log         *slog.Logger
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

func WithConsumerTopicPrefix(prefix string) ConsumerOption {
	return func(c *Consumer) { c.topicPrefix = prefix }
}

func WithConsumerLogger(log *slog.Logger) ConsumerOption {
	return func(c *Consumer) { c.log = log }
}

// NewConsumer joins the group and subscribes to one topic per aggregate type.
func NewConsumer(brokers []string, group string, aggregateTypes []string, dispatcher Dispatcher, opts ...ConsumerOption) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if group == "" {
		return nil, fmt.Errorf("consumer group is required")
	}
	if len(aggregateTypes) == 0 {
		return nil, fmt.Errorf("at least one aggregate type is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	c := &Consumer{
		dispatcher:  dispatcher,
		topicPrefix: "vendcore",
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	topics := make([]string, 0, len(aggregateTypes))
	for _, aggregateType := range aggregateTypes {
		topics = append(topics, c.subscribeTopic(aggregateType))
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	c.client = client
	return c, nil
}

// Run polls until the context is cancelled. Dispatch errors are logged and
// the offset is committed anyway; the dedupe layer and outbox replay cover
// recovery, a poison record must not wedge the partition.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return ctx.Err()
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.log.ErrorContext(ctx, "fetch failed",
				"topic", topic, "partition", partition, "error", err)
		})
		fetches.EachRecord(func(record *kgo.Record) {
			c.handle(ctx, record)
		})
		if err := c.client.CommitUncommittedOffsets(ctx); err != nil && ctx.Err() == nil {
			c.log.ErrorContext(ctx, "commit offsets failed", "error", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, record *kgo.Record) {
	var event domain.Event
	if err := json.Unmarshal(record.Value, &event); err != nil {
		c.log.ErrorContext(ctx, "discarding undecodable record",
			"topic", record.Topic, "offset", record.Offset, "error", err)
		return
	}
	if err := c.dispatcher.Publish(ctx, event); err != nil {
		c.log.ErrorContext(ctx, "event dispatch failed",
			"event_id", event.ID.String(), "event_type", string(event.Type), "error", err)
	}
}

func (c *Consumer) subscribeTopic(aggregateType string) string {
	name := strings.ToLower(aggregateType)
	if c.topicPrefix == "" {
		return name
	}
	return c.topicPrefix + "." + name
}

// Close leaves the group and releases the client.
func (c *Consumer) Close() {
	c.client.Close()
}
