package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lv-brokerfeed/internal/db"
	"lv-brokerfeed/internal/metrics"
	"lv-brokerfeed/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store reads trading and IB configuration. The Active* methods never fail:
// any lookup problem yields the hardcoded defaults.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{pool: pool, logger: logger.Named("settings")}
}

func (s *Store) Trading(ctx context.Context) (TradingSettings, error) {
	cfg := DefaultTradingSettings()
	var (
		id                                    int64
		minDeposit, tradeCharges, spread, amt string
		chargeType                            string
		leverage                              int
		minCharge, maxCharge                  *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, min_deposit::text, leverage, trade_charges::text, global_spread_pips::text,
		       global_charge_type, global_charge_amount::text,
		       global_min_charge::text, global_max_charge::text
		FROM trading_settings
		WHERE is_active = TRUE
		ORDER BY updated_at DESC
		LIMIT 1
	`).Scan(&id, &minDeposit, &leverage, &tradeCharges, &spread, &chargeType, &amt, &minCharge, &maxCharge)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || db.IsUndefinedTable(err) {
			return cfg, ErrConfigurationMissing
		}
		return cfg, fmt.Errorf("load trading settings: %w", err)
	}

	if v, ok := parseNonNegative(minDeposit); ok {
		cfg.MinDeposit = v
	}
	if leverage > 0 {
		cfg.Leverage = leverage
	}
	if v, ok := parseNonNegative(tradeCharges); ok {
		cfg.TradeCharges = v
	}
	if v, ok := parseNonNegative(spread); ok {
		cfg.GlobalSpreadPips = v
	}
	if ct := types.ParseChargeType(chargeType); ct.Valid() {
		cfg.GlobalChargeType = ct
	}
	if v, ok := parseNonNegative(amt); ok {
		cfg.GlobalChargeAmount = v
	}
	cfg.GlobalMinCharge = parseNull(minCharge)
	cfg.GlobalMaxCharge = parseNull(maxCharge)

	overrides, err := s.overrides(ctx, id)
	if err != nil {
		return DefaultTradingSettings(), err
	}
	cfg.InstrumentSpreads = overrides
	cfg.Source = SourceDatabase
	return cfg, nil
}

func (s *Store) overrides(ctx context.Context, settingsID int64) ([]InstrumentOverride, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT symbol, spread_pips::text, COALESCE(charge_type, ''), charge_amount::text
		FROM instrument_spreads
		WHERE settings_id = $1
		ORDER BY position, id
	`, settingsID)
	if err != nil {
		if db.IsUndefinedTable(err) {
			return []InstrumentOverride{}, nil
		}
		return nil, fmt.Errorf("load instrument spreads: %w", err)
	}
	defer rows.Close()

	out := []InstrumentOverride{}
	for rows.Next() {
		var (
			symbol, chargeType string
			spread, amount     *string
		)
		if err := rows.Scan(&symbol, &spread, &chargeType, &amount); err != nil {
			return nil, err
		}
		o := InstrumentOverride{
			Symbol:       strings.ToUpper(strings.TrimSpace(symbol)),
			SpreadPips:   parseNull(spread),
			ChargeAmount: parseNull(amount),
		}
		if ct := types.ParseChargeType(chargeType); ct.Valid() {
			o.ChargeType = ct
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ActiveTrading returns the active settings or the defaults.
func (s *Store) ActiveTrading(ctx context.Context) TradingSettings {
	cfg, err := s.Trading(ctx)
	if err != nil {
		metrics.SettingsFallbacks.WithLabelValues("trading").Inc()
		if errors.Is(err, ErrConfigurationMissing) {
			s.logger.Debug("no active trading settings, using defaults")
		} else {
			s.logger.Warn("trading settings lookup failed, using defaults", zap.Error(err))
		}
		return DefaultTradingSettings()
	}
	return cfg
}

func (s *Store) IB(ctx context.Context) (IBSettings, error) {
	cfg := DefaultIBSettings()
	var (
		rate, minWithdrawal string
		kyc                 bool
	)
	err := s.pool.QueryRow(ctx, `
		SELECT default_commission_rate::text, min_withdrawal_amount::text, kyc_required_for_withdrawal
		FROM ib_settings
		WHERE id = 1
	`).Scan(&rate, &minWithdrawal, &kyc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || db.IsUndefinedTable(err) {
			return cfg, ErrConfigurationMissing
		}
		return cfg, fmt.Errorf("load ib settings: %w", err)
	}
	if v, ok := parseNonNegative(rate); ok && v.LessThanOrEqual(decimal.NewFromInt(1)) {
		cfg.DefaultCommissionRate = v
	}
	if v, ok := parseNonNegative(minWithdrawal); ok {
		cfg.MinWithdrawalAmount = v
	}
	cfg.KYCRequiredForWithdrawal = kyc
	return cfg, nil
}

func (s *Store) ActiveIB(ctx context.Context) IBSettings {
	cfg, err := s.IB(ctx)
	if err != nil {
		metrics.SettingsFallbacks.WithLabelValues("ib").Inc()
		if !errors.Is(err, ErrConfigurationMissing) {
			s.logger.Warn("ib settings lookup failed, using defaults", zap.Error(err))
		}
		return DefaultIBSettings()
	}
	return cfg
}

// Tiers loads and validates the IB tier bands. A missing table yields an
// empty table, so every IB earns the default rate.
func (s *Store) Tiers(ctx context.Context) (*TierTable, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, min_referrals, max_referrals, commission_rate::text
		FROM ib_tiers
		ORDER BY min_referrals
	`)
	if err != nil {
		if db.IsUndefinedTable(err) {
			return &TierTable{}, nil
		}
		return nil, fmt.Errorf("load ib tiers: %w", err)
	}
	defer rows.Close()

	var tiers []IBTier
	for rows.Next() {
		var (
			t    IBTier
			rate string
		)
		if err := rows.Scan(&t.Name, &t.MinReferrals, &t.MaxReferrals, &rate); err != nil {
			return nil, err
		}
		r, err := decimal.NewFromString(rate)
		if err != nil {
			return nil, fmt.Errorf("tier %q: invalid commission rate %q", t.Name, rate)
		}
		t.CommissionRate = r
		tiers = append(tiers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return NewTierTable(tiers)
}

func parseNonNegative(raw string) (decimal.Decimal, bool) {
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || v.IsNegative() {
		return decimal.Zero, false
	}
	return v, true
}

func parseNull(raw *string) decimal.NullDecimal {
	if raw == nil {
		return decimal.NullDecimal{}
	}
	v, err := decimal.NewFromString(strings.TrimSpace(*raw))
	if err != nil || v.IsNegative() {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: v, Valid: true}
}
