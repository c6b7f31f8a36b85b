package settings

import (
	"testing"

	"lv-brokerfeed/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTradingSettings(t *testing.T) {
	cfg := DefaultTradingSettings()
	assert.True(t, cfg.MinDeposit.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 100, cfg.Leverage)
	assert.True(t, cfg.GlobalSpreadPips.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, types.ChargeTypePerLot, cfg.GlobalChargeType)
	assert.True(t, cfg.GlobalChargeAmount.Equal(decimal.NewFromInt(5)))
	assert.False(t, cfg.GlobalMinCharge.Valid)
	assert.False(t, cfg.GlobalMaxCharge.Valid)
	assert.NotNil(t, cfg.InstrumentSpreads)
	assert.Equal(t, SourceDefault, cfg.Source)
}

func TestOverrideFirstMatchWins(t *testing.T) {
	cfg := DefaultTradingSettings()
	cfg.InstrumentSpreads = []InstrumentOverride{
		{Symbol: "EURUSD", SpreadPips: decimal.NewNullDecimal(decimal.NewFromInt(1))},
		{Symbol: "eurusd", SpreadPips: decimal.NewNullDecimal(decimal.NewFromInt(9))},
	}
	o, ok := cfg.Override(" eurusd ")
	require.True(t, ok)
	assert.True(t, o.SpreadPips.Decimal.Equal(decimal.NewFromInt(1)))

	_, ok = cfg.Override("GBPUSD")
	assert.False(t, ok)
}

func TestDefaultIBSettings(t *testing.T) {
	ib := DefaultIBSettings()
	assert.True(t, ib.DefaultCommissionRate.Equal(decimal.RequireFromString("0.1")))
	assert.True(t, ib.MinWithdrawalAmount.Equal(decimal.NewFromInt(30)))
	assert.False(t, ib.KYCRequiredForWithdrawal)
}

func rate(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestNewTierTable(t *testing.T) {
	table, err := NewTierTable([]IBTier{
		{Name: "gold", MinReferrals: 11, MaxReferrals: Unbounded, CommissionRate: rate("0.20")},
		{Name: "bronze", MinReferrals: 0, MaxReferrals: 4, CommissionRate: rate("0.10")},
		{Name: "silver", MinReferrals: 5, MaxReferrals: 10, CommissionRate: rate("0.15")},
	})
	require.NoError(t, err)

	cases := map[int]string{0: "bronze", 4: "bronze", 5: "silver", 10: "silver", 11: "gold", 5000: "gold"}
	for referrals, want := range cases {
		tier, ok := table.Lookup(referrals)
		require.True(t, ok, "referrals=%d", referrals)
		assert.Equal(t, want, tier.Name, "referrals=%d", referrals)
	}
	assert.Equal(t, "bronze", table.Tiers()[0].Name)
}

func TestTierTableBoundedTop(t *testing.T) {
	table, err := NewTierTable([]IBTier{
		{Name: "starter", MinReferrals: 0, MaxReferrals: 9, CommissionRate: rate("0.05")},
	})
	require.NoError(t, err)
	_, ok := table.Lookup(10)
	assert.False(t, ok)
}

func TestNewTierTableRejects(t *testing.T) {
	cases := map[string][]IBTier{
		"gap": {
			{Name: "a", MinReferrals: 0, MaxReferrals: 4, CommissionRate: rate("0.1")},
			{Name: "b", MinReferrals: 6, MaxReferrals: Unbounded, CommissionRate: rate("0.2")},
		},
		"overlap": {
			{Name: "a", MinReferrals: 0, MaxReferrals: 5, CommissionRate: rate("0.1")},
			{Name: "b", MinReferrals: 5, MaxReferrals: Unbounded, CommissionRate: rate("0.2")},
		},
		"not from zero": {
			{Name: "a", MinReferrals: 1, MaxReferrals: Unbounded, CommissionRate: rate("0.1")},
		},
		"unbounded in middle": {
			{Name: "a", MinReferrals: 0, MaxReferrals: Unbounded, CommissionRate: rate("0.1")},
			{Name: "b", MinReferrals: 5, MaxReferrals: 9, CommissionRate: rate("0.2")},
		},
		"rate above one": {
			{Name: "a", MinReferrals: 0, MaxReferrals: Unbounded, CommissionRate: rate("1.5")},
		},
		"negative rate": {
			{Name: "a", MinReferrals: 0, MaxReferrals: Unbounded, CommissionRate: rate("-0.1")},
		},
		"inverted band": {
			{Name: "a", MinReferrals: 0, MaxReferrals: -5, CommissionRate: rate("0.1")},
		},
		"unnamed": {
			{MinReferrals: 0, MaxReferrals: Unbounded, CommissionRate: rate("0.1")},
		},
	}
	for name, tiers := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewTierTable(tiers)
			assert.Error(t, err)
		})
	}
}

func TestEmptyAndNilTierTable(t *testing.T) {
	empty, err := NewTierTable(nil)
	require.NoError(t, err)
	_, ok := empty.Lookup(0)
	assert.False(t, ok)

	var table *TierTable
	_, ok = table.Lookup(3)
	assert.False(t, ok)
	assert.Nil(t, table.Tiers())
}

func TestParseHelpers(t *testing.T) {
	v, ok := parseNonNegative(" 12.5 ")
	require.True(t, ok)
	assert.True(t, v.Equal(rate("12.5")))
	_, ok = parseNonNegative("-1")
	assert.False(t, ok)
	_, ok = parseNonNegative("abc")
	assert.False(t, ok)

	assert.False(t, parseNull(nil).Valid)
	s := "3"
	assert.True(t, parseNull(&s).Valid)
}
