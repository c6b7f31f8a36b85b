package settings

import (
	"errors"
	"strings"

	"lv-brokerfeed/internal/types"

	"github.com/shopspring/decimal"
)

// ErrConfigurationMissing is returned when no active settings row exists.
var ErrConfigurationMissing = errors.New("configuration missing")

const (
	SourceDatabase = "database"
	SourceDefault  = "default"
)

type InstrumentOverride struct {
	Symbol       string              `json:"symbol"`
	SpreadPips   decimal.NullDecimal `json:"spread_pips"`
	ChargeType   types.ChargeType    `json:"charge_type,omitempty"`
	ChargeAmount decimal.NullDecimal `json:"charge_amount"`
}

type TradingSettings struct {
	MinDeposit         decimal.Decimal      `json:"min_deposit"`
	Leverage           int                  `json:"leverage"`
	TradeCharges       decimal.Decimal      `json:"trade_charges"`
	GlobalSpreadPips   decimal.Decimal      `json:"global_spread_pips"`
	GlobalChargeType   types.ChargeType     `json:"global_charge_type"`
	GlobalChargeAmount decimal.Decimal      `json:"global_charge_amount"`
	GlobalMinCharge    decimal.NullDecimal  `json:"global_min_charge"`
	GlobalMaxCharge    decimal.NullDecimal  `json:"global_max_charge"`
	InstrumentSpreads  []InstrumentOverride `json:"instrument_spreads"`
	Source             string               `json:"source"`
}

func DefaultTradingSettings() TradingSettings {
	return TradingSettings{
		MinDeposit:         decimal.NewFromInt(100),
		Leverage:           100,
		TradeCharges:       decimal.Zero,
		GlobalSpreadPips:   decimal.NewFromInt(2),
		GlobalChargeType:   types.ChargeTypePerLot,
		GlobalChargeAmount: decimal.NewFromInt(5),
		InstrumentSpreads:  []InstrumentOverride{},
		Source:             SourceDefault,
	}
}

// Override returns the first override listed for symbol.
func (s TradingSettings) Override(symbol string) (InstrumentOverride, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, o := range s.InstrumentSpreads {
		if strings.EqualFold(o.Symbol, symbol) {
			return o, true
		}
	}
	return InstrumentOverride{}, false
}

type IBSettings struct {
	DefaultCommissionRate    decimal.Decimal `json:"default_commission_rate"`
	MinWithdrawalAmount      decimal.Decimal `json:"min_withdrawal_amount"`
	KYCRequiredForWithdrawal bool            `json:"kyc_required_for_withdrawal"`
}

func DefaultIBSettings() IBSettings {
	return IBSettings{
		DefaultCommissionRate: decimal.RequireFromString("0.10"),
		MinWithdrawalAmount:   decimal.NewFromInt(30),
	}
}
