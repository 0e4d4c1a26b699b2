package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vendcore/pkg/domain"
)

// flakyPublisher fails the first n publishes, then succeeds.
type flakyPublisher struct {
	failures  int
	published []domain.Event
}

func (p *flakyPublisher) Publish(ctx context.Context, event domain.Event) error {
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, event)
	return nil
}

func (p *flakyPublisher) PublishBatch(ctx context.Context, batch []domain.Event) error {
	for _, event := range batch {
		if err := p.Publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

type WorkerSuite struct {
	suite.Suite
	store     *MemoryStore
	publisher *flakyPublisher
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	s.store = NewMemoryStore()
	s.publisher = &flakyPublisher{}
}

func (s *WorkerSuite) newWorker(opts ...WorkerOption) *Worker {
	worker, err := NewWorker(s.store, s.publisher, opts...)
	s.Require().NoError(err)
	return worker
}

func (s *WorkerSuite) appendEvent(eventType domain.EventType, aggregateID string) domain.Event {
	event := domain.NewEvent(eventType, aggregateID, "controller", time.Now(), nil)
	s.Require().NoError(s.store.Append(context.Background(), []domain.Event{event}))
	return event
}

func (s *WorkerSuite) TestNewWorker() {
	s.Run("requires a store", func() {
		_, err := NewWorker(nil, s.publisher)
		s.Error(err)
	})

	s.Run("requires a publisher", func() {
		_, err := NewWorker(s.store, nil)
		s.Error(err)
	})

	s.Run("rejects non-positive batch size", func() {
		_, err := NewWorker(s.store, s.publisher, WithBatchSize(0))
		s.Error(err)
	})
}

func (s *WorkerSuite) TestProcessBatch() {
	ctx := context.Background()

	s.Run("publishes pending rows in order and marks them", func() {
		first := s.appendEvent("ControllerStatusChanged", "ctl-1")
		second := s.appendEvent("ControllerStatusChanged", "ctl-2")

		s.Require().NoError(s.newWorker().ProcessBatch(ctx))

		s.Len(s.publisher.published, 2)
		s.Equal(first.ID, s.publisher.published[0].ID)
		s.Equal(second.ID, s.publisher.published[1].ID)

		row, ok := s.store.Row(first.ID)
		s.True(ok)
		s.Equal(StatusPublished, row.Status)
		s.NotNil(row.PublishedAt)
	})
}

func (s *WorkerSuite) TestRetryAndParking() {
	ctx := context.Background()

	s.Run("failed publish returns the row to pending", func() {
		event := s.appendEvent("OrderPlaced", "order-1")
		s.publisher.failures = 1

		s.Require().NoError(s.newWorker().ProcessBatch(ctx))

		row, ok := s.store.Row(event.ID)
		s.True(ok)
		s.Equal(StatusPending, row.Status)
		s.Equal(1, row.Attempts)
		s.NotEmpty(row.LastError)

		// Next pass succeeds.
		s.Require().NoError(s.newWorker().ProcessBatch(ctx))
		row, _ = s.store.Row(event.ID)
		s.Equal(StatusPublished, row.Status)
	})

	s.Run("row parks as failed at the attempt cap", func() {
		event := s.appendEvent("OrderPlaced", "order-2")
		s.publisher.failures = 100
		worker := s.newWorker(WithMaxAttempts(2))

		for range 3 {
			s.Require().NoError(worker.ProcessBatch(ctx))
		}

		row, ok := s.store.Row(event.ID)
		s.True(ok)
		s.Equal(StatusFailed, row.Status)
		s.Equal(2, row.Attempts)
	})
}

func (s *WorkerSuite) TestReplay() {
	ctx := context.Background()
	first := s.appendEvent("DeviceStatusChanged", "dev-1")
	s.appendEvent("DeviceEnrolled", "dev-2")
	second := s.appendEvent("DeviceStatusChanged", "dev-1")

	s.Run("by aggregate id", func() {
		s.publisher.published = nil
		count, err := Replay(ctx, s.store, ReplayFilter{AggregateID: "dev-1"}, s.publisher)
		s.NoError(err)
		s.Equal(2, count)
		s.Equal([]domain.Event{first, second}, s.publisher.published)
	})

	s.Run("by event type", func() {
		s.publisher.published = nil
		count, err := Replay(ctx, s.store, ReplayFilter{EventType: "DeviceEnrolled", Limit: 10}, s.publisher)
		s.NoError(err)
		s.Equal(1, count)
	})

	s.Run("empty filter is rejected", func() {
		_, err := Replay(ctx, s.store, ReplayFilter{}, s.publisher)
		s.Error(err)
	})
}
