package pricing

import (
	"errors"
	"fmt"

	"lv-brokerfeed/internal/catalog"
	"lv-brokerfeed/internal/quotes"
	"lv-brokerfeed/internal/settings"
	"lv-brokerfeed/internal/types"

	"github.com/shopspring/decimal"
)

var ErrInvalidInput = errors.New("invalid input")

var hundred = decimal.NewFromInt(100)

// Economics is the broker's take on a single trade. Money fields are USD at
// full precision so they stay linear in lot size; use Rounded before booking.
type Economics struct {
	Symbol         string           `json:"symbol"`
	Side           types.TradeSide  `json:"side"`
	LotSize        decimal.Decimal  `json:"lot_size"`
	SpreadPips     decimal.Decimal  `json:"spread_pips"`
	PipValue       decimal.Decimal  `json:"pip_value"`
	SpreadAmount   decimal.Decimal  `json:"spread_amount"`
	ChargeType     types.ChargeType `json:"charge_type"`
	ChargeAmount   decimal.Decimal  `json:"charge_amount"`
	TotalIncome    decimal.Decimal  `json:"total_income"`
	EffectiveBid   decimal.Decimal  `json:"effective_bid"`
	EffectiveAsk   decimal.Decimal  `json:"effective_ask"`
	ExecutionPrice decimal.Decimal  `json:"execution_price"`
}

func ComputeTradeEconomics(q quotes.Quote, inst catalog.Instrument, lotSize decimal.Decimal, side types.TradeSide, cfg settings.TradingSettings) (Economics, error) {
	if !lotSize.GreaterThan(decimal.Zero) {
		return Economics{}, fmt.Errorf("%w: lot size must be positive", ErrInvalidInput)
	}
	if !side.Valid() {
		return Economics{}, fmt.Errorf("%w: unknown trade side %q", ErrInvalidInput, side)
	}
	if q.Bid <= 0 || q.Ask <= 0 || q.Ask < q.Bid {
		return Economics{}, fmt.Errorf("%w: unusable quote for %s", ErrInvalidInput, q.Symbol)
	}
	if quotes.NormalizeSymbol(q.Symbol) != inst.Symbol {
		return Economics{}, fmt.Errorf("%w: quote %s does not match instrument %s", ErrInvalidInput, q.Symbol, inst.Symbol)
	}

	pips, chargeType, chargeAmount := resolve(inst.Symbol, cfg)

	pipValue, err := PipValueUSD(inst, q)
	if err != nil {
		return Economics{}, err
	}

	bid, ask, err := EffectiveQuote(q, inst, pips)
	if err != nil {
		return Economics{}, err
	}
	exec := ask
	if side == types.TradeSideSell {
		exec = bid
	}

	spreadAmount := pips.Mul(pipValue).Mul(lotSize)

	var charge decimal.Decimal
	switch chargeType {
	case types.ChargeTypePerExecution:
		charge = chargeAmount
	case types.ChargeTypePercentage:
		charge = chargeAmount.Div(hundred).Mul(NotionalPerLotUSD(inst, exec, pipValue)).Mul(lotSize)
	default:
		charge = chargeAmount.Mul(lotSize)
	}
	charge = clamp(charge, cfg.GlobalMinCharge, cfg.GlobalMaxCharge)

	total := spreadAmount.Add(charge)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Economics{
		Symbol:         inst.Symbol,
		Side:           side,
		LotSize:        lotSize,
		SpreadPips:     pips,
		PipValue:       pipValue,
		SpreadAmount:   spreadAmount,
		ChargeType:     chargeType,
		ChargeAmount:   charge,
		TotalIncome:    total,
		EffectiveBid:   bid,
		EffectiveAsk:   ask,
		ExecutionPrice: exec,
	}, nil
}

// Rounded returns e with the money fields rounded to cents. TotalIncome is
// the sum of the rounded parts.
func (e Economics) Rounded() Economics {
	e.SpreadAmount = e.SpreadAmount.Round(2)
	e.ChargeAmount = e.ChargeAmount.Round(2)
	e.TotalIncome = e.SpreadAmount.Add(e.ChargeAmount)
	if e.TotalIncome.IsNegative() {
		e.TotalIncome = decimal.Zero
	}
	return e
}

// resolve picks spread and charge for symbol: the first matching override
// wins field by field, the global settings fill the rest.
func resolve(symbol string, cfg settings.TradingSettings) (decimal.Decimal, types.ChargeType, decimal.Decimal) {
	pips := cfg.GlobalSpreadPips
	chargeType := cfg.GlobalChargeType
	chargeAmount := cfg.GlobalChargeAmount

	if o, ok := cfg.Override(symbol); ok {
		if o.SpreadPips.Valid {
			pips = o.SpreadPips.Decimal
		}
		if o.ChargeType.Valid() {
			chargeType = o.ChargeType
		}
		if o.ChargeAmount.Valid {
			chargeAmount = o.ChargeAmount.Decimal
		}
	}
	if !chargeType.Valid() {
		chargeType = settings.DefaultTradingSettings().GlobalChargeType
	}
	if pips.IsNegative() {
		pips = decimal.Zero
	}
	if chargeAmount.IsNegative() {
		chargeAmount = decimal.Zero
	}
	return pips, chargeType, chargeAmount
}

// PipValueUSD is the USD value of one pip on one lot.
func PipValueUSD(inst catalog.Instrument, q quotes.Quote) (decimal.Decimal, error) {
	if inst.PipValue.Valid {
		return inst.PipValue.Decimal, nil
	}
	perLot := inst.PipSize.Mul(inst.ContractSize)
	switch {
	case inst.QuoteCurrency == "USD":
		return perLot, nil
	case inst.BaseCurrency == "USD":
		mid := decimal.NewFromFloat(q.Mid())
		if !mid.GreaterThan(decimal.Zero) {
			return decimal.Zero, fmt.Errorf("%w: no mid price for %s", ErrInvalidInput, inst.Symbol)
		}
		return perLot.Div(mid), nil
	}
	return decimal.Zero, fmt.Errorf("%w: %s has no pip value configured", ErrInvalidInput, inst.Symbol)
}

// NotionalPerLotUSD is the USD value of one lot at price. USD-quoted
// instruments need no conversion; others use the rate implied by pipValue.
func NotionalPerLotUSD(inst catalog.Instrument, price, pipValue decimal.Decimal) decimal.Decimal {
	notional := price.Mul(inst.ContractSize)
	if inst.QuoteCurrency == "USD" {
		return notional
	}
	usdPerQuote := pipValue.Div(inst.PipSize.Mul(inst.ContractSize))
	return notional.Mul(usdPerQuote)
}

// EffectiveQuote widens the raw quote symmetrically around mid by the broker
// markup of spreadPips, rounded to the instrument's display digits. A markup
// that leaves no positive bid is rejected.
func EffectiveQuote(q quotes.Quote, inst catalog.Instrument, spreadPips decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	bid := decimal.NewFromFloat(q.Bid)
	ask := decimal.NewFromFloat(q.Ask)
	if spreadPips.IsPositive() {
		half := spreadPips.Mul(inst.PipSize).Div(decimal.NewFromInt(2))
		bid = bid.Sub(half)
		ask = ask.Add(half)
	}
	if inst.Digits > 0 {
		bid = bid.Round(int32(inst.Digits))
		ask = ask.Round(int32(inst.Digits))
	}
	if !bid.IsPositive() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %s markup of %s pips exceeds the bid", ErrInvalidInput, inst.Symbol, spreadPips)
	}
	return bid, ask, nil
}

func clamp(v decimal.Decimal, lo, hi decimal.NullDecimal) decimal.Decimal {
	if !lo.Valid || !hi.Valid || lo.Decimal.GreaterThan(hi.Decimal) {
		return v
	}
	if v.LessThan(lo.Decimal) {
		return lo.Decimal
	}
	if v.GreaterThan(hi.Decimal) {
		return hi.Decimal
	}
	return v
}
