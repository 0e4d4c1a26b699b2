package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dErrors "vendcore/pkg/domain-errors"
)

type PaymentSuite struct {
	suite.Suite
	now time.Time
}

func TestPaymentSuite(t *testing.T) {
	suite.Run(t, new(PaymentSuite))
}

func (s *PaymentSuite) SetupTest() {
	s.now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
}

func (s *PaymentSuite) newPayment(orderID string) *Payment {
	p, err := NewPayment("user-1", orderID, "method-1", 1100, "EUR", s.now)
	s.Require().NoError(err)
	return p
}

func (s *PaymentSuite) TestNewPaymentValidates() {
	cases := []struct {
		name     string
		userID   string
		methodID string
		amount   int64
		currency string
	}{
		{"missing user", "", "method-1", 1100, "EUR"},
		{"missing method", "user-1", "", 1100, "EUR"},
		{"zero amount", "user-1", "method-1", 0, "EUR"},
		{"negative amount", "user-1", "method-1", -100, "EUR"},
		{"bad currency", "user-1", "method-1", 1100, "EURO"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := NewPayment(tc.userID, "", tc.methodID, tc.amount, tc.currency, s.now)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func (s *PaymentSuite) TestNewPaymentStartsPendingWithInitiatedEvent() {
	p := s.newPayment("order-1")
	s.Equal(StatusPending, p.Status)
	s.False(p.IsTopUp())

	queued := p.UncommittedEvents()
	s.Require().Len(queued, 1)
	s.Equal(EventPaymentInitiated, queued[0].Type)
	s.Equal("user-1", queued[0].UserID)
}

func (s *PaymentSuite) TestEmptyOrderIsTopUp() {
	s.True(s.newPayment("").IsTopUp())
}

func (s *PaymentSuite) TestTransitionGraph() {
	allowed := []struct {
		from, to Status
	}{
		{StatusPending, StatusProcessing},
		{StatusPending, StatusCancelled},
		{StatusProcessing, StatusSucceeded},
		{StatusProcessing, StatusFailed},
		{StatusProcessing, StatusCancelled},
		{StatusSucceeded, StatusRefunded},
	}
	for _, tc := range allowed {
		s.True(tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}

	forbidden := []struct {
		from, to Status
	}{
		{StatusPending, StatusSucceeded},
		{StatusFailed, StatusProcessing},
		{StatusCancelled, StatusPending},
		{StatusRefunded, StatusSucceeded},
		{StatusSucceeded, StatusProcessing},
	}
	for _, tc := range forbidden {
		s.False(tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}

	s.True(StatusFailed.Terminal())
	s.True(StatusCancelled.Terminal())
	s.True(StatusRefunded.Terminal())
	s.False(StatusSucceeded.Terminal())
}

func (s *PaymentSuite) TestSettlementLifecycle() {
	p := s.newPayment("order-1")
	s.Require().NoError(p.StartProcessing(s.now))

	event, err := p.Succeed("gw-123", s.now.Add(time.Second))
	s.Require().NoError(err)
	s.Equal(StatusSucceeded, p.Status)
	s.Equal("gw-123", p.GatewayRef)
	s.Equal(EventPaymentSucceeded, event.Type)
	s.Equal("order-1", event.Payload["order_id"])

	refund, err := p.Refund(s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(EventPaymentRefunded, refund.Type)

	_, err = p.Refund(s.now.Add(2 * time.Minute))
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *PaymentSuite) TestFailureKeepsReason() {
	p := s.newPayment("order-1")
	s.Require().NoError(p.StartProcessing(s.now))

	event, err := p.Fail("card declined", s.now)
	s.Require().NoError(err)
	s.Equal(StatusFailed, p.Status)
	s.Equal("card declined", p.FailureReason)
	s.Equal("card declined", event.Payload["reason"])

	_, err = p.Succeed("gw-999", s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *PaymentSuite) TestCloneDropsQueuedEvents() {
	p := s.newPayment("order-1")
	clone := p.Clone()
	s.Empty(clone.UncommittedEvents())
	s.Len(p.UncommittedEvents(), 1)
}

func (s *PaymentSuite) TestMethodValidation() {
	_, err := NewPaymentMethod("user-1", MethodCard, "123", "tok-1")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = NewPaymentMethod("user-1", MethodCard, "1234", "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = NewPaymentMethod("user-1", "crypto", "", "tok-1")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	m, err := NewPaymentMethod("user-1", MethodWallet, "", "tok-1")
	s.Require().NoError(err)
	s.Equal(MethodWallet, m.Kind)
}
