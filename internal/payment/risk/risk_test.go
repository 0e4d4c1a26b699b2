package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendcore/internal/payment/models"
	dErrors "vendcore/pkg/domain-errors"
)

func settledPayment(amountCents int64, updatedAt time.Time) *models.Payment {
	p := &models.Payment{
		UserID:      "user-1",
		AmountCents: amountCents,
		Currency:    "EUR",
		Status:      models.StatusSucceeded,
	}
	p.UpdatedAt = updatedAt
	return p
}

func TestScreener(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	screener := NewScreener(WithLimits(50_00, 100_00))

	t.Run("oversized charge is rejected", func(t *testing.T) {
		err := screener.Screen("user-1", 60_00, nil, now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("charge within both limits passes", func(t *testing.T) {
		history := []*models.Payment{settledPayment(40_00, now.Add(-time.Hour))}
		assert.NoError(t, screener.Screen("user-1", 30_00, history, now))
	})

	t.Run("daily cap counts settlements inside the window", func(t *testing.T) {
		history := []*models.Payment{
			settledPayment(40_00, now.Add(-time.Hour)),
			settledPayment(40_00, now.Add(-2*time.Hour)),
		}
		err := screener.Screen("user-1", 30_00, history, now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("settlements outside the window are ignored", func(t *testing.T) {
		history := []*models.Payment{
			settledPayment(90_00, now.Add(-25*time.Hour)),
			settledPayment(40_00, now.Add(-time.Hour)),
		}
		assert.NoError(t, screener.Screen("user-1", 30_00, history, now))
	})

	t.Run("unsettled entries do not count toward the cap", func(t *testing.T) {
		pending := settledPayment(90_00, now.Add(-time.Hour))
		pending.Status = models.StatusPending
		assert.NoError(t, screener.Screen("user-1", 30_00, []*models.Payment{pending}, now))
	})
}
