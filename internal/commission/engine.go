package commission

import (
	"strings"
	"time"

	"lv-brokerfeed/internal/model"
	"lv-brokerfeed/internal/settings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultTier names commissions paid at the fallback rate.
const DefaultTier = "default"

// ComputeCommission derives one commission per eligible referrer in chain.
// Referrers are skipped when empty, repeated or the trader themselves. An IB
// outside every tier band earns ib.DefaultCommissionRate.
func ComputeCommission(income model.BrokerIncome, chain []model.Referrer, tiers *settings.TierTable, ib settings.IBSettings) []model.IBCommission {
	if !income.TotalIncome.GreaterThan(decimal.Zero) {
		return nil
	}
	trader := strings.TrimSpace(income.UserID)
	seen := map[string]struct{}{trader: {}}

	var out []model.IBCommission
	for i, ref := range chain {
		ibID := strings.TrimSpace(ref.UserID)
		if ibID == "" {
			continue
		}
		if _, dup := seen[ibID]; dup {
			continue
		}
		seen[ibID] = struct{}{}

		rate, tierName := ib.DefaultCommissionRate, DefaultTier
		if tier, ok := tiers.Lookup(ref.Referrals); ok {
			rate, tierName = tier.CommissionRate, tier.Name
		}
		amount := income.TotalIncome.Mul(rate).Round(2)
		if !amount.GreaterThan(decimal.Zero) {
			continue
		}
		out = append(out, model.IBCommission{
			ID:             uuid.New(),
			IBUserID:       ibID,
			ReferredUserID: trader,
			TradeID:        income.TradeID,
			Level:          i + 1,
			Amount:         amount,
			Rate:           rate,
			Tier:           tierName,
			CreatedAt:      time.Now().UTC(),
		})
	}
	return out
}
