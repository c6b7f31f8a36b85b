package commission

import (
	"testing"

	"lv-brokerfeed/internal/model"
	"lv-brokerfeed/internal/settings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

var tiers = settings.MustTierTable([]settings.IBTier{
	{Name: "bronze", MinReferrals: 0, MaxReferrals: 9, CommissionRate: d("0.10")},
	{Name: "silver", MinReferrals: 10, MaxReferrals: 49, CommissionRate: d("0.15")},
	{Name: "gold", MinReferrals: 50, MaxReferrals: settings.Unbounded, CommissionRate: d("0.25")},
})

func income(total string) model.BrokerIncome {
	return model.BrokerIncome{TradeID: "t-1", UserID: "trader", Symbol: "EURUSD", TotalIncome: d(total)}
}

func TestNoReferrerNoCommission(t *testing.T) {
	assert.Empty(t, ComputeCommission(income("25"), nil, tiers, settings.DefaultIBSettings()))
	assert.Empty(t, ComputeCommission(income("25"), []model.Referrer{{UserID: " "}}, tiers, settings.DefaultIBSettings()))
}

func TestSelfReferralIgnored(t *testing.T) {
	got := ComputeCommission(income("25"), []model.Referrer{{UserID: "trader", Referrals: 3}}, tiers, settings.DefaultIBSettings())
	assert.Empty(t, got)
}

func TestTierRateApplies(t *testing.T) {
	cases := []struct {
		referrals int
		tier      string
		amount    string
	}{
		{0, "bronze", "2.50"},
		{9, "bronze", "2.50"},
		{10, "silver", "3.75"},
		{50, "gold", "6.25"},
	}
	for _, tc := range cases {
		got := ComputeCommission(income("25"), []model.Referrer{{UserID: "ib-1", Referrals: tc.referrals}}, tiers, settings.DefaultIBSettings())
		require.Len(t, got, 1)
		c := got[0]
		assert.Equal(t, tc.tier, c.Tier)
		assert.True(t, c.Amount.Equal(d(tc.amount)), "referrals=%d amount=%s", tc.referrals, c.Amount)
		assert.Equal(t, "ib-1", c.IBUserID)
		assert.Equal(t, "trader", c.ReferredUserID)
		assert.Equal(t, "t-1", c.TradeID)
		assert.Equal(t, 1, c.Level)
		assert.NotEqual(t, uuid.Nil, c.ID)
	}
}

func TestDefaultRateWhenNoTierMatches(t *testing.T) {
	ib := settings.DefaultIBSettings()
	got := ComputeCommission(income("25"), []model.Referrer{{UserID: "ib-1", Referrals: 4}}, nil, ib)
	require.Len(t, got, 1)
	assert.Equal(t, DefaultTier, got[0].Tier)
	assert.True(t, got[0].Amount.Equal(d("2.5")))

	bounded := settings.MustTierTable([]settings.IBTier{
		{Name: "starter", MinReferrals: 0, MaxReferrals: 2, CommissionRate: d("0.2")},
	})
	got = ComputeCommission(income("25"), []model.Referrer{{UserID: "ib-1", Referrals: 7}}, bounded, ib)
	require.Len(t, got, 1)
	assert.Equal(t, DefaultTier, got[0].Tier)
}

func TestZeroAmountsAreNotEmitted(t *testing.T) {
	assert.Empty(t, ComputeCommission(income("0"), []model.Referrer{{UserID: "ib-1"}}, tiers, settings.DefaultIBSettings()))
	assert.Empty(t, ComputeCommission(income("0.04"), []model.Referrer{{UserID: "ib-1"}}, tiers, settings.DefaultIBSettings()))
}

func TestMultiLevelChain(t *testing.T) {
	chain := []model.Referrer{
		{UserID: "ib-1", Referrals: 12},
		{UserID: "ib-2", Referrals: 60},
		{UserID: "ib-1", Referrals: 12},
	}
	got := ComputeCommission(income("100"), chain, tiers, settings.DefaultIBSettings())
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Level)
	assert.True(t, got[0].Amount.Equal(d("15")))
	assert.Equal(t, 2, got[1].Level)
	assert.True(t, got[1].Amount.Equal(d("25")))
}
