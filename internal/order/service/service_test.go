package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"vendcore/internal/events/outbox"
	"vendcore/internal/order/models"
	"vendcore/internal/order/store"
	"vendcore/internal/storage"
	"vendcore/internal/storage/memory"
	"vendcore/pkg/domain"
	dErrors "vendcore/pkg/domain-errors"
)

type buyers map[string]bool

func (b buyers) CanPurchase(_ context.Context, userID string) (bool, error) {
	return b[userID], nil
}

type ServiceSuite struct {
	suite.Suite
	ctx    context.Context
	repo   *store.Memory
	outbox *outbox.MemoryStore
	svc    *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.outbox = outbox.NewMemoryStore()
	s.repo = store.NewMemory(memory.WithEventSink[*models.Order](s.outbox))
	s.svc = New(s.repo, buyers{"user-1": true})
}

func (s *ServiceSuite) place(taxCents int64) *models.Order {
	res := s.svc.Place(s.ctx, PlaceCommand{
		UserID: "user-1",
		Items: []domain.OrderItem{
			{ProductID: "prod-1", ProductName: "Espresso", UnitPriceCents: 10_00, Quantity: 1},
		},
		TaxCents: taxCents,
	})
	s.Require().NoError(res.Err())
	return res.Value()
}

func (s *ServiceSuite) TestPlaceComputesTotals() {
	o := s.place(1_00)
	s.Equal(models.StatusPlaced, o.Status)
	s.Equal(int64(10_00), o.SubtotalCents)
	s.Equal(int64(11_00), o.TotalCents)

	pending, err := s.outbox.Pending(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(models.EventOrderPlaced, pending[0].Event.Type)
	s.Equal(o.ID, pending[0].Event.AggregateID)
}

func (s *ServiceSuite) TestPlaceRejectsUnknownBuyer() {
	res := s.svc.Place(s.ctx, PlaceCommand{
		UserID: "user-9",
		Items: []domain.OrderItem{
			{ProductID: "prod-1", ProductName: "Espresso", UnitPriceCents: 2_50, Quantity: 1},
		},
	})
	s.Require().Error(res.Err())
	s.True(dErrors.HasCode(res.Err(), dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestPlaceRejectsEmptyCart() {
	res := s.svc.Place(s.ctx, PlaceCommand{UserID: "user-1"})
	s.Require().Error(res.Err())
	s.True(dErrors.HasCode(res.Err(), dErrors.CodeInvariantViolation))
}

func (s *ServiceSuite) TestPaymentAndFulfilment() {
	o := s.place(0)

	paid := s.svc.MarkPaid(s.ctx, o.ID, "payment-1")
	s.Require().NoError(paid.Err())
	s.Equal(models.StatusPaid, paid.Value().Status)

	done := s.svc.MarkFulfilled(s.ctx, o.ID)
	s.Require().NoError(done.Err())
	s.Equal(models.StatusFulfilled, done.Value().Status)

	spent, err := s.repo.TotalSpentCents(s.ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(int64(10_00), spent)
}

func (s *ServiceSuite) TestCancelFulfilledOrderFails() {
	o := s.place(0)
	s.Require().NoError(s.svc.MarkPaid(s.ctx, o.ID, "payment-1").Err())
	s.Require().NoError(s.svc.MarkFulfilled(s.ctx, o.ID).Err())

	res := s.svc.Cancel(s.ctx, o.ID, "too late")
	s.Require().Error(res.Err())
	s.True(dErrors.HasCode(res.Err(), dErrors.CodeInvariantViolation))
}

func (s *ServiceSuite) TestListForUserPaginates() {
	for range 3 {
		s.place(0)
	}

	res := s.svc.ListForUser(s.ctx, "user-1", storage.PageRequest{Page: 2, Limit: 2})
	s.Require().NoError(res.Err())
	page := res.Value()
	s.Len(page.Data, 1)
	s.Equal(3, page.Meta.Total)
	s.Equal(2, page.Meta.TotalPages)
	s.False(page.Meta.HasNext)
	s.True(page.Meta.HasPrevious)
}
