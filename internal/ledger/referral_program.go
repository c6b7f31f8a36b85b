package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lv-brokerfeed/internal/commission"
	"lv-brokerfeed/internal/db"
	"lv-brokerfeed/internal/settings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	eventTradeCommission = "trade_commission"
	eventWithdraw        = "withdraw"
)

type WalletState struct {
	Balance        decimal.Decimal `json:"balance"`
	TotalEarned    decimal.Decimal `json:"total_earned"`
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn"`
}

type IBStatus struct {
	Wallet         WalletState `json:"wallet"`
	ReferralsTotal int         `json:"referrals_total"`
	KYCPassed      bool        `json:"kyc_passed"`
	CanWithdraw    bool        `json:"can_withdraw"`
}

type Withdrawal struct {
	ID      uuid.UUID       `json:"id"`
	Amount  decimal.Decimal `json:"amount"`
	Balance decimal.Decimal `json:"balance"`
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func ensureWalletTx(ctx context.Context, tx pgx.Tx, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("user_id is required")
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO referral_wallets (user_id, balance, total_earned, total_withdrawn, updated_at)
		VALUES ($1, 0, 0, 0, NOW())
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	return err
}

func creditWalletTx(ctx context.Context, tx pgx.Tx, userID string, amount decimal.Decimal) error {
	if !amount.GreaterThan(decimal.Zero) {
		return nil
	}
	if err := ensureWalletTx(ctx, tx, userID); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		UPDATE referral_wallets
		SET balance = balance + $2,
		    total_earned = total_earned + $2,
		    updated_at = NOW()
		WHERE user_id = $1
	`, userID, amount)
	return err
}

func debitWalletTx(ctx context.Context, tx pgx.Tx, userID string, amount decimal.Decimal) error {
	cmd, err := tx.Exec(ctx, `
		UPDATE referral_wallets
		SET balance = balance - $2,
		    total_withdrawn = total_withdrawn + $2,
		    updated_at = NOW()
		WHERE user_id = $1
		  AND balance >= $2
	`, userID, amount)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return commission.ErrInsufficientBalance
	}
	return nil
}

func appendEventTx(ctx context.Context, tx pgx.Tx, userID, relatedUserID, kind string, amount, rate decimal.Decimal, sourceRef string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO referral_events (user_id, related_user_id, kind, amount, commission_percent, source_ref, created_at)
		VALUES ($1, nullif($2, ''), $3, $4, $5, $6, NOW())
		ON CONFLICT (kind, source_ref) DO NOTHING
	`, userID, relatedUserID, kind, amount, rate.Mul(decimal.NewFromInt(100)), sourceRef)
	return err
}

func readWallet(ctx context.Context, q querier, userID string) (WalletState, error) {
	var out WalletState
	err := q.QueryRow(ctx, `
		SELECT COALESCE(balance, 0), COALESCE(total_earned, 0), COALESCE(total_withdrawn, 0)
		FROM referral_wallets
		WHERE user_id = $1
	`, userID).Scan(&out.Balance, &out.TotalEarned, &out.TotalWithdrawn)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || db.IsUndefinedTable(err) {
			return WalletState{}, nil
		}
		return WalletState{}, err
	}
	return out, nil
}

func kycPassed(ctx context.Context, q querier, userID string) (bool, error) {
	var ok bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM kyc_verification_requests
			WHERE user_id = $1 AND status = 'approved'
		)
	`, userID).Scan(&ok)
	if err != nil {
		if db.IsUndefinedTable(err) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

func (s *Service) IBStatus(ctx context.Context, ibUserID string, ib settings.IBSettings) (IBStatus, error) {
	wallet, err := readWallet(ctx, s.pool, ibUserID)
	if err != nil {
		return IBStatus{}, fmt.Errorf("read wallet: %w", err)
	}
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE referred_by = $1`, ibUserID).Scan(&total); err != nil {
		if !db.IsUndefinedColumn(err) {
			return IBStatus{}, fmt.Errorf("count referrals: %w", err)
		}
	}
	kyc, err := kycPassed(ctx, s.pool, ibUserID)
	if err != nil {
		return IBStatus{}, fmt.Errorf("kyc lookup: %w", err)
	}
	return IBStatus{
		Wallet:         wallet,
		ReferralsTotal: total,
		KYCPassed:      kyc,
		CanWithdraw:    commission.CheckWithdrawal(wallet.Balance, wallet.Balance, kyc, ib) == nil,
	}, nil
}

// Withdraw debits amount from the IB wallet, or the whole balance when amount
// is not set.
func (s *Service) Withdraw(ctx context.Context, ibUserID string, amount decimal.NullDecimal, ib settings.IBSettings) (Withdrawal, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return Withdrawal{}, err
	}
	defer tx.Rollback(ctx)

	if err := ensureWalletTx(ctx, tx, ibUserID); err != nil {
		return Withdrawal{}, err
	}
	var balance decimal.Decimal
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(balance, 0)
		FROM referral_wallets
		WHERE user_id = $1
		FOR UPDATE
	`, ibUserID).Scan(&balance); err != nil {
		return Withdrawal{}, err
	}
	kyc, err := kycPassed(ctx, tx, ibUserID)
	if err != nil {
		return Withdrawal{}, err
	}

	want := balance
	if amount.Valid {
		want = amount.Decimal.Round(2)
	}
	if err := commission.CheckWithdrawal(balance, want, kyc, ib); err != nil {
		return Withdrawal{}, err
	}
	if err := debitWalletTx(ctx, tx, ibUserID, want); err != nil {
		return Withdrawal{}, err
	}

	id := uuid.New()
	if err := appendEventTx(ctx, tx, ibUserID, "", eventWithdraw, want.Neg(), decimal.Zero, "withdraw:"+id.String()); err != nil {
		return Withdrawal{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Withdrawal{}, err
	}
	return Withdrawal{ID: id, Amount: want, Balance: balance.Sub(want)}, nil
}
