//go:build integration

package kafka

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"vendcore/pkg/domain"
	"vendcore/pkg/testutil/containers"
)

type KafkaSuite struct {
	suite.Suite
	ctx     context.Context
	brokers []string
}

func TestKafkaSuite(t *testing.T) {
	suite.Run(t, new(KafkaSuite))
}

func (s *KafkaSuite) SetupSuite() {
	s.ctx = context.Background()
	s.brokers = containers.GetRedpanda(s.T()).Brokers
}

// prefix isolates each test's topics on the shared broker.
func (s *KafkaSuite) prefix() string {
	return fmt.Sprintf("t%d", time.Now().UnixNano())
}

type capture struct {
	mu     sync.Mutex
	events []domain.Event
}

func (c *capture) Publish(ctx context.Context, event domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capture) snapshot() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Event, len(c.events))
	copy(out, c.events)
	return out
}

func (s *KafkaSuite) TestEnsureTopicsIsIdempotent() {
	publisher, err := New(s.brokers, WithTopicPrefix(s.prefix()))
	s.Require().NoError(err)
	defer publisher.Close()

	s.Require().NoError(publisher.EnsureTopics(s.ctx, []string{"order", "payment"}, 1, 1))
	s.Require().NoError(publisher.EnsureTopics(s.ctx, []string{"order", "payment"}, 1, 1))
}

func (s *KafkaSuite) TestPublishedEventsReachConsumer() {
	prefix := s.prefix()

	publisher, err := New(s.brokers, WithTopicPrefix(prefix))
	s.Require().NoError(err)
	defer publisher.Close()
	s.Require().NoError(publisher.EnsureTopics(s.ctx, []string{"order"}, 1, 1))

	sink := &capture{}
	consumer, err := NewConsumer(s.brokers, prefix+"-group", []string{"order"}, sink,
		WithConsumerTopicPrefix(prefix))
	s.Require().NoError(err)
	defer consumer.Close()

	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go func() { _ = consumer.Run(runCtx) }()

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	first := domain.NewEvent("OrderPlaced", "order-1", "order", now,
		map[string]any{"total_cents": float64(1100)})
	second := domain.NewEvent("OrderCancelled", "order-1", "order", now.Add(time.Minute), nil)
	s.Require().NoError(publisher.PublishBatch(s.ctx, []domain.Event{first, second}))

	require.Eventually(s.T(), func() bool {
		return len(sink.snapshot()) == 2
	}, 30*time.Second, 100*time.Millisecond)

	got := sink.snapshot()
	s.Equal(first.ID, got[0].ID)
	s.Equal(domain.EventType("OrderPlaced"), got[0].Type)
	s.Equal("order-1", got[0].AggregateID)
	s.Equal(map[string]any{"total_cents": float64(1100)}, got[0].Payload)
	s.Equal(second.ID, got[1].ID)
}

func (s *KafkaSuite) TestSameAggregateStaysOrdered() {
	prefix := s.prefix()

	publisher, err := New(s.brokers, WithTopicPrefix(prefix))
	s.Require().NoError(err)
	defer publisher.Close()
	s.Require().NoError(publisher.EnsureTopics(s.ctx, []string{"payment"}, 3, 1))

	var batch []domain.Event
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		batch = append(batch, domain.NewEvent("PaymentInitiated", "payment-7", "payment",
			base.Add(time.Duration(i)*time.Second),
			map[string]any{"seq": float64(i)}))
	}
	s.Require().NoError(publisher.PublishBatch(s.ctx, batch))

	sink := &capture{}
	consumer, err := NewConsumer(s.brokers, prefix+"-group", []string{"payment"}, sink,
		WithConsumerTopicPrefix(prefix))
	s.Require().NoError(err)
	defer consumer.Close()

	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go func() { _ = consumer.Run(runCtx) }()

	require.Eventually(s.T(), func() bool {
		return len(sink.snapshot()) == 10
	}, 30*time.Second, 100*time.Millisecond)

	for i, event := range sink.snapshot() {
		s.Equal(float64(i), event.Payload["seq"])
	}
}
