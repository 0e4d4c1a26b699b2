// Package loyalty grades customers by their purchase history.
package loyalty

// Tier is a loyalty band. Thresholds are lifetime spend in cents.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

const (
	silverThresholdCents   int64 = 50_00
	goldThresholdCents     int64 = 250_00
	platinumThresholdCents int64 = 1000_00
)

// Standing is one customer's loyalty assessment.
type Standing struct {
	UserID          string
	Tier            Tier
	TotalSpentCents int64
	CompletedOrders int
	// ToNextTierCents is zero at the top tier.
	ToNextTierCents int64
}

// Grade computes loyalty standing from lifetime purchase totals the caller
// loads. Deactivated users keep their standing.
func Grade(userID string, totalSpentCents int64, completedOrders int) Standing {
	tier, toNext := tierFor(totalSpentCents)
	return Standing{
		UserID:          userID,
		Tier:            tier,
		TotalSpentCents: totalSpentCents,
		CompletedOrders: completedOrders,
		ToNextTierCents: toNext,
	}
}

func tierFor(spentCents int64) (Tier, int64) {
	switch {
	case spentCents >= platinumThresholdCents:
		return TierPlatinum, 0
	case spentCents >= goldThresholdCents:
		return TierGold, platinumThresholdCents - spentCents
	case spentCents >= silverThresholdCents:
		return TierSilver, goldThresholdCents - spentCents
	default:
		return TierBronze, silverThresholdCents - spentCents
	}
}
