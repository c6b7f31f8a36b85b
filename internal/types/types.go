package types

import "strings"

type TradeSide string

type ChargeType string

type Category string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

const (
	ChargeTypePerLot       ChargeType = "per_lot"
	ChargeTypePerExecution ChargeType = "per_execution"
	ChargeTypePercentage   ChargeType = "percentage"
)

const (
	CategoryForex       Category = "forex"
	CategoryCrypto      Category = "crypto"
	CategoryCommodities Category = "commodities"
	CategoryIndices     Category = "indices"
	CategoryStocks      Category = "stocks"
)

// Categories lists every instrument category in display order.
var Categories = []Category{
	CategoryForex,
	CategoryCrypto,
	CategoryCommodities,
	CategoryIndices,
	CategoryStocks,
}

func (s TradeSide) Valid() bool {
	return s == TradeSideBuy || s == TradeSideSell
}

func (c ChargeType) Valid() bool {
	switch c {
	case ChargeTypePerLot, ChargeTypePerExecution, ChargeTypePercentage:
		return true
	}
	return false
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

func ParseTradeSide(v string) TradeSide {
	return TradeSide(strings.ToLower(strings.TrimSpace(v)))
}

func ParseChargeType(v string) ChargeType {
	return ChargeType(strings.ToLower(strings.TrimSpace(v)))
}

func ParseCategory(v string) Category {
	return Category(strings.ToLower(strings.TrimSpace(v)))
}
