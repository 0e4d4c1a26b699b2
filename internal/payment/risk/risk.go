// Package risk screens charges before they reach the gateway.
package risk

import (
	"log/slog"
	"time"

	"vendcore/internal/payment/models"
	dErrors "vendcore/pkg/domain-errors"
)

// Screener rejects charges that break the platform's exposure limits:
// a per-charge cap and a rolling daily cap per user. It judges the
// settlement history the caller hands it and performs no I/O of its own.
type Screener struct {
	log            *slog.Logger
	maxChargeCents int64
	dailyCapCents  int64
	window         time.Duration
}

type Option func(*Screener)

func WithLimits(maxChargeCents, dailyCapCents int64) Option {
	return func(s *Screener) {
		s.maxChargeCents = maxChargeCents
		s.dailyCapCents = dailyCapCents
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Screener) { s.log = log }
}

func NewScreener(opts ...Option) *Screener {
	s := &Screener{
		log:            slog.Default(),
		maxChargeCents: 100_00,
		dailyCapCents:  500_00,
		window:         24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Screen returns an invariant violation when the charge would break a limit.
// recentSettled is the user's settled payment history; entries outside the
// rolling window are ignored.
func (s *Screener) Screen(userID string, amountCents int64, recentSettled []*models.Payment, now time.Time) error {
	if amountCents > s.maxChargeCents {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"charge of %d cents exceeds the per-charge limit of %d", amountCents, s.maxChargeCents)
	}
	cutoff := now.Add(-s.window)
	var recent int64
	for _, p := range recentSettled {
		if p.Status != models.StatusSucceeded || p.UpdatedTime().Before(cutoff) {
			continue
		}
		recent += p.AmountCents
	}
	if recent+amountCents > s.dailyCapCents {
		s.log.Warn("daily cap reached",
			"user_id", userID, "recent_cents", recent, "attempted_cents", amountCents)
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"charge would exceed the daily cap of %d cents", s.dailyCapCents)
	}
	return nil
}
