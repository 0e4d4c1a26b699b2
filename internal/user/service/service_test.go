package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vendcore/internal/events/outbox"
	"vendcore/internal/storage/memory"
	"vendcore/internal/user/loyalty"
	"vendcore/internal/user/models"
	"vendcore/internal/user/store"
	"vendcore/internal/user/token"
	dErrors "vendcore/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite
	ctx    context.Context
	outbox *outbox.MemoryStore
	tokens *token.Service
	svc    *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.outbox = outbox.NewMemoryStore()
	s.tokens = token.NewService("test-signing-key", "vendcore-test", time.Hour)
	repo := store.NewMemory(memory.WithEventSink[*models.User](s.outbox))
	s.svc = New(repo, s.tokens, WithPurchaseHistory(stubHistory{spent: 300_00, orders: 12}))
}

type stubHistory struct {
	spent  int64
	orders int
}

func (h stubHistory) TotalSpentCents(context.Context, string) (int64, error) { return h.spent, nil }
func (h stubHistory) CompletedOrders(context.Context, string) (int, error)   { return h.orders, nil }

func (s *ServiceSuite) register(email string) *models.User {
	res := s.svc.Register(s.ctx, RegisterCommand{
		Email:    email,
		FullName: "Alex Vend",
		Password: "correct horse",
		Role:     models.RoleCustomer,
	})
	s.Require().NoError(res.Err())
	return res.Value()
}

func (s *ServiceSuite) TestRegisterPublishesEvent() {
	u := s.register("alex@example.com")
	s.True(u.IsActive)
	s.NotEqual("correct horse", u.PasswordHash)

	pending, err := s.outbox.Pending(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(models.EventUserRegistered, pending[0].Event.Type)
}

func (s *ServiceSuite) TestRegisterNormalizesAndDeduplicatesEmail() {
	s.register("alex@example.com")

	res := s.svc.Register(s.ctx, RegisterCommand{
		Email:    "  ALEX@Example.com ",
		FullName: "Other Alex",
		Password: "correct horse",
		Role:     models.RoleCustomer,
	})
	s.Require().Error(res.Err())
	s.True(dErrors.HasCode(res.Err(), dErrors.CodeConflict))
}

func (s *ServiceSuite) TestRegisterRejectsShortPassword() {
	res := s.svc.Register(s.ctx, RegisterCommand{
		Email:    "alex@example.com",
		FullName: "Alex Vend",
		Password: "short",
		Role:     models.RoleCustomer,
	})
	s.Require().Error(res.Err())
	s.True(dErrors.HasCode(res.Err(), dErrors.CodeValidation))
}

func (s *ServiceSuite) TestAuthenticateIssuesValidToken() {
	u := s.register("alex@example.com")

	res := s.svc.Authenticate(s.ctx, "Alex@Example.com", "correct horse")
	s.Require().NoError(res.Err())
	session := res.Value()
	s.Equal(u.ID, session.User.ID)

	claims, err := s.tokens.Validate(session.AccessToken)
	s.Require().NoError(err)
	s.Equal(u.ID, claims.UserID)
	s.Equal(string(models.RoleCustomer), claims.Role)
}

func (s *ServiceSuite) TestAuthenticateRejectsWrongPassword() {
	s.register("alex@example.com")

	res := s.svc.Authenticate(s.ctx, "alex@example.com", "wrong password")
	s.Require().Error(res.Err())
	s.True(dErrors.HasCode(res.Err(), dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestAuthenticateRejectsDeactivatedUser() {
	u := s.register("alex@example.com")
	s.Require().NoError(s.svc.Deactivate(s.ctx, u.ID, "fraud review").Err())

	res := s.svc.Authenticate(s.ctx, "alex@example.com", "correct horse")
	s.Require().Error(res.Err())
	s.True(dErrors.HasCode(res.Err(), dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestChangePasswordRequiresCurrent() {
	u := s.register("alex@example.com")

	res := s.svc.ChangePassword(s.ctx, u.ID, "wrong password", "new password 1")
	s.Require().Error(res.Err())
	s.True(dErrors.HasCode(res.Err(), dErrors.CodeUnauthorized))

	s.Require().NoError(s.svc.ChangePassword(s.ctx, u.ID, "correct horse", "new password 1").Err())
	s.Require().NoError(s.svc.Authenticate(s.ctx, "alex@example.com", "new password 1").Err())
}

func (s *ServiceSuite) TestDeleteStripsCredentials() {
	u := s.register("alex@example.com")

	res := s.svc.Delete(s.ctx, u.ID)
	s.Require().NoError(res.Err())
	s.Empty(res.Value().PasswordHash)

	got := s.svc.Get(s.ctx, u.ID)
	s.Require().Error(got.Err())
	s.True(dErrors.HasCode(got.Err(), dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestLoyaltyStandingGradesFromHistory() {
	u := s.register("alex@example.com")

	res := s.svc.LoyaltyStanding(s.ctx, u.ID)
	s.Require().NoError(res.Err())
	standing := res.Value()
	s.Equal(loyalty.TierGold, standing.Tier)
	s.Equal(int64(300_00), standing.TotalSpentCents)
	s.Equal(12, standing.CompletedOrders)
}

func (s *ServiceSuite) TestLoyaltyStandingUnknownUser() {
	res := s.svc.LoyaltyStanding(s.ctx, "9e9c6f1a-0000-4000-8000-000000000000")
	s.Require().Error(res.Err())
	s.True(dErrors.HasCode(res.Err(), dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestUpdateProfileStaleVersionConflicts() {
	u := s.register("alex@example.com")
	name := "Alexandra Vend"

	res := s.svc.UpdateProfile(s.ctx, u.ID, u.EntityVersion()+3, models.Patch{FullName: &name})
	s.Require().Error(res.Err())
	s.True(dErrors.HasCode(res.Err(), dErrors.CodeConflict))
}
