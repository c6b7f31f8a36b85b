package model

import (
	"time"

	"lv-brokerfeed/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BrokerIncome is written once per settled trade and never updated.
type BrokerIncome struct {
	TradeID      string           `json:"trade_id"`
	UserID       string           `json:"user_id"`
	Symbol       string           `json:"symbol"`
	TradeType    types.TradeSide  `json:"trade_type"`
	LotSize      decimal.Decimal  `json:"lot_size"`
	SpreadPips   decimal.Decimal  `json:"spread_pips"`
	SpreadAmount decimal.Decimal  `json:"spread_amount"`
	ChargeType   types.ChargeType `json:"charge_type"`
	ChargeAmount decimal.Decimal  `json:"charge_amount"`
	TotalIncome  decimal.Decimal  `json:"total_income"`
	CreatedAt    time.Time        `json:"created_at"`
}

type IBCommission struct {
	ID             uuid.UUID       `json:"id"`
	IBUserID       string          `json:"ib_user_id"`
	ReferredUserID string          `json:"referred_user_id"`
	TradeID        string          `json:"trade_id"`
	Level          int             `json:"level"`
	Amount         decimal.Decimal `json:"amount"`
	Rate           decimal.Decimal `json:"rate"`
	Tier           string          `json:"tier"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Referrer is one link of a referral chain, nearest first.
type Referrer struct {
	UserID    string `json:"user_id"`
	Referrals int    `json:"referrals"`
}
