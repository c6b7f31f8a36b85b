package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"lv-brokerfeed/internal/db"
	"lv-brokerfeed/internal/metrics"
	"lv-brokerfeed/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var ErrDuplicateTrade = errors.New("trade already settled")

type Service struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewService(pool *pgxpool.Pool, logger *zap.Logger) *Service {
	return &Service{pool: pool, logger: logger.Named("ledger")}
}

// RecordSettlement appends the income row for a trade and credits its
// commissions. Commissions are written inside a savepoint: if any of them
// fails the income still commits and the returned count is zero.
func (s *Service) RecordSettlement(ctx context.Context, income model.BrokerIncome, commissions []model.IBCommission) (int, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if err := s.appendIncome(ctx, tx, income); err != nil {
		return 0, err
	}

	recorded := 0
	if len(commissions) > 0 {
		n, err := s.recordCommissions(ctx, tx, commissions)
		if err != nil {
			s.logger.Warn("commission write failed, income kept",
				zap.String("trade_id", income.TradeID), zap.Error(err))
		} else {
			recorded = n
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	metrics.CommissionsRecorded.Add(float64(recorded))
	return recorded, nil
}

func (s *Service) appendIncome(ctx context.Context, tx pgx.Tx, in model.BrokerIncome) error {
	if _, err := tx.Exec(ctx, "select pg_advisory_xact_lock(2)"); err != nil {
		return err
	}
	var prevHash *string
	err := tx.QueryRow(ctx, "select encode(hash, 'hex') from broker_income order by sequence desc limit 1").Scan(&prevHash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var seq int64
	err = tx.QueryRow(ctx, `
		INSERT INTO broker_income (
			trade_id, user_id, symbol, trade_type, lot_size,
			spread_pips, spread_amount, charge_type, charge_amount, total_income,
			prev_hash, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, decode(nullif($11, ''), 'hex'), $12)
		ON CONFLICT (trade_id) DO NOTHING
		RETURNING sequence
	`, in.TradeID, in.UserID, in.Symbol, string(in.TradeType), in.LotSize,
		in.SpreadPips, in.SpreadAmount, string(in.ChargeType), in.ChargeAmount, in.TotalIncome,
		nullable(prevHash), createdAt).Scan(&seq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s: %w", in.TradeID, ErrDuplicateTrade)
		}
		return fmt.Errorf("insert broker income: %w", err)
	}

	hash := computeHash(in, seq, prevHash)
	_, err = tx.Exec(ctx, "update broker_income set hash = decode($1, 'hex') where sequence = $2", hash, seq)
	return err
}

func (s *Service) recordCommissions(ctx context.Context, tx pgx.Tx, commissions []model.IBCommission) (int, error) {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer sp.Rollback(ctx)

	n := 0
	for _, c := range commissions {
		var id string
		err := sp.QueryRow(ctx, `
			INSERT INTO ib_commissions (id, ib_user_id, referred_user_id, trade_id, level, amount, rate, tier, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (trade_id, ib_user_id) DO NOTHING
			RETURNING id::text
		`, c.ID, c.IBUserID, c.ReferredUserID, c.TradeID, c.Level, c.Amount, c.Rate, c.Tier, c.CreatedAt).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return 0, err
		}
		if err := creditWalletTx(ctx, sp, c.IBUserID, c.Amount); err != nil {
			return 0, err
		}
		if err := appendEventTx(ctx, sp, c.IBUserID, c.ReferredUserID, eventTradeCommission, c.Amount, c.Rate, commissionSourceRef(c)); err != nil {
			return 0, err
		}
		n++
	}
	if err := sp.Commit(ctx); err != nil {
		return 0, err
	}
	return n, nil
}

// Referrers returns the referral chain for userID, nearest first. Users
// without a referrer get an empty chain.
func (s *Service) Referrers(ctx context.Context, userID string) ([]model.Referrer, error) {
	var (
		ibID  string
		count int
	)
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(u.referred_by::text, ''),
		       (SELECT COUNT(*) FROM users r WHERE r.referred_by = u.referred_by)
		FROM users u
		WHERE u.id = $1
	`, userID).Scan(&ibID, &count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || db.IsUndefinedColumn(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load referrer: %w", err)
	}
	ibID = strings.TrimSpace(ibID)
	if ibID == "" {
		return nil, nil
	}
	return []model.Referrer{{UserID: ibID, Referrals: count}}, nil
}

func computeHash(in model.BrokerIncome, seq int64, prevHash *string) string {
	buf := in.TradeID + "|" + in.UserID + "|" + in.Symbol + "|" + string(in.TradeType) + "|" +
		in.LotSize.String() + "|" + in.SpreadAmount.String() + "|" + in.ChargeAmount.String() + "|" +
		in.TotalIncome.String() + "|" + strconv.FormatInt(seq, 10) + "|"
	if prevHash != nil {
		buf += *prevHash
	}
	sum := sha256.Sum256([]byte(buf))
	return hex.EncodeToString(sum[:])
}

func commissionSourceRef(c model.IBCommission) string {
	return "trade_commission:" + c.TradeID + ":" + c.IBUserID
}

func nullable(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
