//go:build integration

package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vendcore/internal/ownership"
	"vendcore/pkg/domain"
	"vendcore/pkg/platform/sentinel"
	"vendcore/pkg/testutil/containers"
)

type PostgresOutboxSuite struct {
	suite.Suite
	ctx   context.Context
	pg    *containers.PostgresContainer
	store *PostgresStore
}

func TestPostgresOutboxSuite(t *testing.T) {
	suite.Run(t, new(PostgresOutboxSuite))
}

func (s *PostgresOutboxSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.GetPostgres(s.T())

	s.Require().NoError(s.pg.ApplySchema(s.ctx, Schema("commerce_events")))

	registry, err := ownership.NewRegistry(ownership.DefaultTopology())
	s.Require().NoError(err)
	guard := ownership.NewGuard(registry, ownership.ServiceCommerce)

	s.store, err = NewPostgres(s.pg.DB, guard, "commerce_events")
	s.Require().NoError(err)
}

func (s *PostgresOutboxSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(s.ctx, "commerce_events"))
}

func (s *PostgresOutboxSuite) event(aggregateID string) domain.Event {
	return domain.NewEvent("OrderPlaced", aggregateID, "order",
		time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		map[string]any{"total_cents": float64(1100)})
}

func (s *PostgresOutboxSuite) TestAppendRoundTrip() {
	event := s.event("order-1")
	s.Require().NoError(s.store.Append(s.ctx, []domain.Event{event}))

	pending, err := s.store.Pending(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)

	got := pending[0]
	s.Equal(event.ID, got.Event.ID)
	s.Equal(event.Type, got.Event.Type)
	s.Equal("order-1", got.Event.AggregateID)
	s.Equal(event.Payload, got.Event.Payload)
	s.Equal(StatusPending, got.Status)
	s.Equal(0, got.Attempts)
}

func (s *PostgresOutboxSuite) TestDuplicateEventIDConflicts() {
	event := s.event("order-2")
	s.Require().NoError(s.store.Append(s.ctx, []domain.Event{event}))
	s.ErrorIs(s.store.Append(s.ctx, []domain.Event{event}), sentinel.ErrConflict)
}

func (s *PostgresOutboxSuite) TestClaimIsExclusive() {
	event := s.event("order-3")
	s.Require().NoError(s.store.Append(s.ctx, []domain.Event{event}))

	s.Require().NoError(s.store.MarkProcessing(s.ctx, event.ID))
	s.Error(s.store.MarkProcessing(s.ctx, event.ID))

	pending, err := s.store.Pending(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *PostgresOutboxSuite) TestPublishLifecycle() {
	event := s.event("order-4")
	s.Require().NoError(s.store.Append(s.ctx, []domain.Event{event}))
	s.Require().NoError(s.store.MarkProcessing(s.ctx, event.ID))
	s.Require().NoError(s.store.MarkPublished(s.ctx, event.ID))

	count, err := s.store.PendingCount(s.ctx)
	s.Require().NoError(err)
	s.Zero(count)

	history, err := s.store.History(s.ctx, "order-4")
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal(event.ID, history[0].ID)
}

func (s *PostgresOutboxSuite) TestFailedRowRetriesUntilCap() {
	event := s.event("order-5")
	s.Require().NoError(s.store.Append(s.ctx, []domain.Event{event}))

	// First failure goes back to pending, attempts below the cap.
	s.Require().NoError(s.store.MarkProcessing(s.ctx, event.ID))
	s.Require().NoError(s.store.MarkFailed(s.ctx, event.ID, "broker down", 2))

	pending, err := s.store.Pending(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal("broker down", pending[0].LastError)

	// Second failure reaches the cap and parks the row.
	s.Require().NoError(s.store.MarkProcessing(s.ctx, event.ID))
	s.Require().NoError(s.store.MarkFailed(s.ctx, event.ID, "broker still down", 2))

	pending, err = s.store.Pending(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *PostgresOutboxSuite) TestHistoryOrderedByOccurrence() {
	first := domain.NewEvent("OrderPlaced", "order-6", "order",
		time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), nil)
	second := domain.NewEvent("OrderCancelled", "order-6", "order",
		time.Date(2026, 3, 2, 12, 5, 0, 0, time.UTC), nil)
	s.Require().NoError(s.store.Append(s.ctx, []domain.Event{second, first}))

	history, err := s.store.History(s.ctx, "order-6")
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(first.ID, history[0].ID)
	s.Equal(second.ID, history[1].ID)
}
