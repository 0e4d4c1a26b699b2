// Package service implements user accounts and authentication for the
// commerce service.
package service

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"vendcore/internal/platform/metrics"
	"vendcore/internal/storage"
	"vendcore/internal/user"
	"vendcore/internal/user/loyalty"
	"vendcore/internal/user/models"
	"vendcore/internal/user/token"
	dErrors "vendcore/pkg/domain-errors"
	"vendcore/pkg/platform/sentinel"
	"vendcore/pkg/requestcontext"
	"vendcore/pkg/result"
)

// PurchaseHistory answers lifetime purchase questions; the order repository
// satisfies it.
type PurchaseHistory interface {
	TotalSpentCents(ctx context.Context, userID string) (int64, error)
	CompletedOrders(ctx context.Context, userID string) (int, error)
}

type Service struct {
	store   user.Repository
	tokens  *token.Service
	history PurchaseHistory
	log     *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithPurchaseHistory(history PurchaseHistory) Option {
	return func(s *Service) { s.history = history }
}

func New(store user.Repository, tokens *token.Service, opts ...Option) *Service {
	s := &Service{store: store, tokens: tokens, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("service", "user")
	return s
}

type RegisterCommand struct {
	Email    string
	FullName string
	Password string
	Role     models.Role
}

// Session is the outcome of a successful authentication.
type Session struct {
	User        *models.User
	AccessToken string
}

// Register creates an active account. A taken email address is a conflict.
func (s *Service) Register(ctx context.Context, cmd RegisterCommand) result.Result[*models.User] {
	if len(cmd.Password) < 8 {
		return result.Err[*models.User](dErrors.New(dErrors.CodeValidation,
			"password must be at least 8 characters"))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), bcrypt.DefaultCost)
	if err != nil {
		return result.Err[*models.User](dErrors.Wrap(err, dErrors.CodeInternal, "hash password"))
	}
	u, err := models.NewUser(cmd.Email, cmd.FullName, cmd.Role, string(hash), requestcontext.Now(ctx))
	if err != nil {
		return result.Err[*models.User](err)
	}
	if _, err := s.store.FindByEmail(ctx, u.Email); err == nil {
		return result.Err[*models.User](dErrors.New(dErrors.CodeConflict, "email address is already registered"))
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return result.Err[*models.User](s.translate(err, "look up user by email"))
	}
	saved, err := s.store.SaveWithEvents(ctx, u, u.UncommittedEvents())
	if err != nil {
		return result.Err[*models.User](s.translate(err, "save user"))
	}
	s.metrics.IncAggregateRegistered(models.AggregateType)
	s.log.Info("user registered", "user_id", saved.ID, "role", saved.Role)
	return result.Ok(saved)
}

// Authenticate verifies credentials and issues an access token. Unknown
// email, wrong password, and deactivated account all map to the same
// unauthorized error.
func (s *Service) Authenticate(ctx context.Context, email, password string) result.Result[Session] {
	denied := dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	u, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return result.Err[Session](denied)
		}
		return result.Err[Session](s.translate(err, "look up user by email"))
	}
	if !u.IsActive {
		s.log.Warn("authentication rejected for inactive user", "user_id", u.ID)
		return result.Err[Session](denied)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return result.Err[Session](denied)
	}
	accessToken, err := s.tokens.Issue(u, requestcontext.Now(ctx))
	if err != nil {
		return result.Err[Session](dErrors.Wrap(err, dErrors.CodeInternal, "issue access token"))
	}
	return result.Ok(Session{User: u, AccessToken: accessToken})
}

// UpdateProfile applies a typed profile patch under optimistic concurrency.
func (s *Service) UpdateProfile(ctx context.Context, id string, expectedVersion int, patch models.Patch) result.Result[*models.User] {
	updated, err := s.store.Update(ctx, id, expectedVersion, patch)
	if err != nil {
		return result.Err[*models.User](s.translate(err, "update profile"))
	}
	return result.Ok(updated)
}

// ChangePassword verifies the current password before storing a new hash.
func (s *Service) ChangePassword(ctx context.Context, id, current, next string) result.Result[*models.User] {
	if len(next) < 8 {
		return result.Err[*models.User](dErrors.New(dErrors.CodeValidation,
			"password must be at least 8 characters"))
	}
	u, err := s.store.FindByID(ctx, id)
	if err != nil {
		return result.Err[*models.User](s.translate(err, "load user"))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)); err != nil {
		return result.Err[*models.User](dErrors.New(dErrors.CodeUnauthorized, "current password is wrong"))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return result.Err[*models.User](dErrors.Wrap(err, dErrors.CodeInternal, "hash password"))
	}
	updated, err := s.store.Update(ctx, id, u.EntityVersion(), credentialPatch{hash: string(hash)})
	if err != nil {
		return result.Err[*models.User](s.translate(err, "store new password"))
	}
	s.log.Info("password changed", "user_id", id)
	return result.Ok(updated)
}

func (s *Service) Deactivate(ctx context.Context, id, reason string) result.Result[*models.User] {
	return s.toggleActive(ctx, id, false, reason)
}

func (s *Service) Reactivate(ctx context.Context, id string) result.Result[*models.User] {
	return s.toggleActive(ctx, id, true, "")
}

func (s *Service) toggleActive(ctx context.Context, id string, active bool, reason string) result.Result[*models.User] {
	u, err := s.store.FindByID(ctx, id)
	if err != nil {
		return result.Err[*models.User](s.translate(err, "load user"))
	}
	now := requestcontext.Now(ctx)
	if active {
		_, err = u.Reactivate(now)
	} else {
		_, err = u.Deactivate(reason, now)
	}
	if err != nil {
		return result.Err[*models.User](err)
	}
	updated, err := s.store.UpdateWithEvents(ctx, id, u.EntityVersion(),
		activePatch{active: active}, u.UncommittedEvents())
	if err != nil {
		return result.Err[*models.User](s.translate(err, "persist account state"))
	}
	s.log.Info("user account toggled", "user_id", id, "active", active, "reason", reason)
	return result.Ok(updated)
}

// Delete soft-deletes the account and strips credentials.
func (s *Service) Delete(ctx context.Context, id string) result.Result[*models.User] {
	u, err := s.store.FindByID(ctx, id)
	if err != nil {
		return result.Err[*models.User](s.translate(err, "load user"))
	}
	if _, err := u.Erase(requestcontext.Now(ctx)); err != nil {
		return result.Err[*models.User](err)
	}
	if err := s.store.DeleteWithEvents(ctx, id, u.UncommittedEvents()); err != nil {
		return result.Err[*models.User](s.translate(err, "delete user"))
	}
	s.log.Info("user deleted", "user_id", id)
	return result.Ok(u)
}

func (s *Service) Get(ctx context.Context, id string) result.Result[*models.User] {
	u, err := s.store.FindByID(ctx, id)
	if err != nil {
		return result.Err[*models.User](s.translate(err, "load user"))
	}
	return result.Ok(u)
}

// LoyaltyStanding grades one customer from their lifetime purchases. Deleted
// users are not found; deactivated users keep their standing.
func (s *Service) LoyaltyStanding(ctx context.Context, userID string) result.Result[loyalty.Standing] {
	if s.history == nil {
		return result.Err[loyalty.Standing](dErrors.New(dErrors.CodeInternal,
			"purchase history is not configured"))
	}
	if _, err := s.store.FindByID(ctx, userID); err != nil {
		return result.Err[loyalty.Standing](s.translate(err, "load user"))
	}
	spent, err := s.history.TotalSpentCents(ctx, userID)
	if err != nil {
		return result.Err[loyalty.Standing](dErrors.Wrap(err, dErrors.CodeInternal, "sum purchases"))
	}
	completed, err := s.history.CompletedOrders(ctx, userID)
	if err != nil {
		return result.Err[loyalty.Standing](dErrors.Wrap(err, dErrors.CodeInternal, "count orders"))
	}
	return result.Ok(loyalty.Grade(userID, spent, completed))
}

func (s *Service) List(ctx context.Context, filters storage.Filters, page storage.PageRequest) result.Result[storage.Page[*models.User]] {
	listed, err := s.store.FindAllPaginated(ctx, filters, page)
	if err != nil {
		return result.Err[storage.Page[*models.User]](s.translate(err, "list users"))
	}
	return result.Ok(listed)
}

func (s *Service) translate(err error, op string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	case errors.Is(err, sentinel.ErrVersionMismatch):
		s.metrics.IncVersionConflict(models.AggregateType)
		return dErrors.New(dErrors.CodeConflict, "user was modified concurrently")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "email address is already registered")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, op)
	}
}

type credentialPatch struct {
	hash string
}

func (p credentialPatch) Apply(u *models.User) error {
	u.PasswordHash = p.hash
	return nil
}

func (p credentialPatch) FieldNames() []string { return []string{"password_hash"} }

type activePatch struct {
	active bool
}

func (p activePatch) Apply(u *models.User) error {
	u.IsActive = p.active
	return nil
}

func (p activePatch) FieldNames() []string { return []string{"is_active"} }
