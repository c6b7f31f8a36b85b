package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lv-brokerfeed/internal/catalog"
	"lv-brokerfeed/internal/commission"
	"lv-brokerfeed/internal/feed"
	"lv-brokerfeed/internal/ledger"
	"lv-brokerfeed/internal/metrics"
	"lv-brokerfeed/internal/model"
	"lv-brokerfeed/internal/pricing"
	"lv-brokerfeed/internal/quotes"
	"lv-brokerfeed/internal/settings"
	"lv-brokerfeed/internal/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type QuoteSource interface {
	GetPriceAsync(ctx context.Context, symbol string) (quotes.Quote, error)
}

type Instruments interface {
	Find(symbol string) (catalog.Instrument, bool)
}

type SettingsSource interface {
	ActiveTrading(ctx context.Context) settings.TradingSettings
	ActiveIB(ctx context.Context) settings.IBSettings
	Tiers(ctx context.Context) (*settings.TierTable, error)
}

type Referrals interface {
	Referrers(ctx context.Context, userID string) ([]model.Referrer, error)
}

type Ledger interface {
	RecordSettlement(ctx context.Context, income model.BrokerIncome, commissions []model.IBCommission) (int, error)
}

type Publisher interface {
	PublishIncome(ctx context.Context, ev IncomeEvent) error
}

type Request struct {
	TradeID string
	UserID  string
	Symbol  string
	Side    types.TradeSide
	LotSize decimal.Decimal
}

type Result struct {
	Income              model.BrokerIncome
	Economics           pricing.Economics
	Commissions         []model.IBCommission
	CommissionsRecorded int
}

type Service struct {
	quotes      QuoteSource
	instruments Instruments
	settings    SettingsSource
	referrals   Referrals
	ledger      Ledger
	publisher   Publisher
	logger      *zap.Logger
}

func NewService(q QuoteSource, instruments Instruments, cfg SettingsSource, referrals Referrals, l Ledger, pub Publisher, logger *zap.Logger) *Service {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &Service{
		quotes:      q,
		instruments: instruments,
		settings:    cfg,
		referrals:   referrals,
		ledger:      l,
		publisher:   pub,
		logger:      logger.Named("settlement"),
	}
}

// Settle prices a completed trade, records the broker income and any IB
// commissions, then announces the result. Commission problems never block
// the income record; ledger errors are always returned.
func (s *Service) Settle(ctx context.Context, req Request) (Result, error) {
	req.TradeID = strings.TrimSpace(req.TradeID)
	req.UserID = strings.TrimSpace(req.UserID)
	req.Symbol = quotes.NormalizeSymbol(req.Symbol)
	if req.TradeID == "" || req.UserID == "" || req.Symbol == "" {
		return Result{}, fmt.Errorf("%w: trade_id, user_id and symbol are required", pricing.ErrInvalidInput)
	}
	if !req.Side.Valid() {
		return Result{}, fmt.Errorf("%w: unknown trade side %q", pricing.ErrInvalidInput, req.Side)
	}
	if !req.LotSize.GreaterThan(decimal.Zero) {
		return Result{}, fmt.Errorf("%w: lot size must be positive", pricing.ErrInvalidInput)
	}

	inst, ok := s.instruments.Find(req.Symbol)
	if !ok {
		return Result{}, fmt.Errorf("%s: %w", req.Symbol, feed.ErrUnknownSymbol)
	}
	q, err := s.quotes.GetPriceAsync(ctx, req.Symbol)
	if err != nil {
		metrics.Settlements.WithLabelValues("failed").Inc()
		return Result{}, fmt.Errorf("quote %s: %w", req.Symbol, err)
	}

	eco, err := pricing.ComputeTradeEconomics(q, inst, req.LotSize, req.Side, s.settings.ActiveTrading(ctx))
	if err != nil {
		return Result{}, err
	}
	booked := eco.Rounded()
	income := model.BrokerIncome{
		TradeID:      req.TradeID,
		UserID:       req.UserID,
		Symbol:       inst.Symbol,
		TradeType:    req.Side,
		LotSize:      req.LotSize,
		SpreadPips:   booked.SpreadPips,
		SpreadAmount: booked.SpreadAmount,
		ChargeType:   booked.ChargeType,
		ChargeAmount: booked.ChargeAmount,
		TotalIncome:  booked.TotalIncome,
	}

	commissions := s.commissions(ctx, income)

	recorded, err := s.ledger.RecordSettlement(ctx, income, commissions)
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateTrade) {
			metrics.Settlements.WithLabelValues("duplicate").Inc()
		} else {
			metrics.Settlements.WithLabelValues("failed").Inc()
			s.logger.Error("income write failed", zap.String("trade_id", req.TradeID), zap.Error(err))
		}
		return Result{}, err
	}
	metrics.Settlements.WithLabelValues("recorded").Inc()
	if recorded == 0 {
		commissions = nil
	}

	if err := s.publisher.PublishIncome(ctx, newIncomeEvent(income, commissions)); err != nil {
		s.logger.Warn("income event not published", zap.String("trade_id", req.TradeID), zap.Error(err))
	}

	return Result{
		Income:              income,
		Economics:           eco,
		Commissions:         commissions,
		CommissionsRecorded: recorded,
	}, nil
}

func (s *Service) commissions(ctx context.Context, income model.BrokerIncome) []model.IBCommission {
	chain, err := s.referrals.Referrers(ctx, income.UserID)
	if err != nil {
		s.logger.Warn("referrer lookup failed, no commission", zap.String("trade_id", income.TradeID), zap.Error(err))
		return nil
	}
	if len(chain) == 0 {
		return nil
	}
	tiers, err := s.settings.Tiers(ctx)
	if err != nil {
		s.logger.Error("tier table unavailable, using default rate", zap.String("trade_id", income.TradeID), zap.Error(err))
		tiers = nil
	}
	return commission.ComputeCommission(income, chain, tiers, s.settings.ActiveIB(ctx))
}
