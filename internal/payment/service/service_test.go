package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"vendcore/internal/events/outbox"
	"vendcore/internal/payment/mocks"
	"vendcore/internal/payment/models"
	"vendcore/internal/payment/risk"
	"vendcore/internal/payment/store"
	"vendcore/internal/storage/memory"
	dErrors "vendcore/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	ctrl    *gomock.Controller
	gateway *mocks.MockGateway
	repo    *store.Memory
	outbox  *outbox.MemoryStore
	svc     *Service
	method  *models.PaymentMethod
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.gateway = mocks.NewMockGateway(s.ctrl)
	s.outbox = outbox.NewMemoryStore()
	s.repo = store.NewMemory(memory.WithEventSink[*models.Payment](s.outbox))
	methods := store.NewMethodMemory()
	screener := risk.NewScreener(risk.WithLimits(50_00, 100_00))
	s.svc = New(s.repo, methods, s.gateway, screener)

	m, err := models.NewPaymentMethod("user-1", models.MethodCard, "4242", "tok_abc")
	s.Require().NoError(err)
	s.method, err = methods.Save(s.ctx, m)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestChargeSettlesAndPublishes() {
	s.gateway.EXPECT().
		Charge(gomock.Any(), gomock.Any()).
		Return("ch_123", nil)

	res := s.svc.Charge(s.ctx, ChargeCommand{
		UserID:      "user-1",
		OrderID:     "order-1",
		MethodID:    s.method.ID,
		AmountCents: 11_00,
		Currency:    "EUR",
	})
	s.Require().NoError(res.Err())
	p := res.Value()
	s.Equal(models.StatusSucceeded, p.Status)
	s.Equal("ch_123", p.GatewayRef)

	pending, err := s.outbox.Pending(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(models.EventPaymentInitiated, pending[0].Event.Type)
	s.Equal(models.EventPaymentSucceeded, pending[1].Event.Type)
}

func (s *ServiceSuite) TestGatewayFailureMarksPaymentFailed() {
	s.gateway.EXPECT().
		Charge(gomock.Any(), gomock.Any()).
		Return("", errors.New("card declined"))

	res := s.svc.Charge(s.ctx, ChargeCommand{
		UserID:      "user-1",
		MethodID:    s.method.ID,
		AmountCents: 5_00,
		Currency:    "EUR",
	})
	s.Require().NoError(res.Err())
	s.Equal(models.StatusFailed, res.Value().Status)
	s.Equal("card declined", res.Value().FailureReason)
}

func (s *ServiceSuite) TestChargeRejectsForeignMethod() {
	res := s.svc.Charge(s.ctx, ChargeCommand{
		UserID:      "user-2",
		MethodID:    s.method.ID,
		AmountCents: 5_00,
		Currency:    "EUR",
	})
	s.Require().Error(res.Err())
	s.True(dErrors.HasCode(res.Err(), dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestScreenerBlocksOversizedCharge() {
	res := s.svc.Charge(s.ctx, ChargeCommand{
		UserID:      "user-1",
		MethodID:    s.method.ID,
		AmountCents: 60_00,
		Currency:    "EUR",
	})
	s.Require().Error(res.Err())
	s.True(dErrors.HasCode(res.Err(), dErrors.CodeInvariantViolation))
}

func (s *ServiceSuite) TestRefundedPaymentIsImmutable() {
	s.gateway.EXPECT().Charge(gomock.Any(), gomock.Any()).Return("ch_123", nil)
	s.gateway.EXPECT().Refund(gomock.Any(), "ch_123", int64(11_00)).Return(nil)

	charged := s.svc.Charge(s.ctx, ChargeCommand{
		UserID:      "user-1",
		MethodID:    s.method.ID,
		AmountCents: 11_00,
		Currency:    "EUR",
	})
	s.Require().NoError(charged.Err())

	refunded := s.svc.Refund(s.ctx, charged.Value().ID)
	s.Require().NoError(refunded.Err())
	s.Equal(models.StatusRefunded, refunded.Value().Status)

	again := s.svc.Refund(s.ctx, charged.Value().ID)
	s.Require().Error(again.Err())
	s.True(dErrors.HasCode(again.Err(), dErrors.CodeInvariantViolation))
}

func (s *ServiceSuite) TestTopUpHasNoOrder() {
	s.gateway.EXPECT().Charge(gomock.Any(), gomock.Any()).Return("ch_topup", nil)

	res := s.svc.Charge(s.ctx, ChargeCommand{
		UserID:      "user-1",
		MethodID:    s.method.ID,
		AmountCents: 20_00,
		Currency:    "EUR",
	})
	s.Require().NoError(res.Err())
	s.True(res.Value().IsTopUp())
}
