package commission

import (
	"errors"
	"fmt"

	"lv-brokerfeed/internal/settings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount       = errors.New("invalid withdrawal amount")
	ErrBelowMinimum        = errors.New("below minimum withdrawal amount")
	ErrKYCRequired         = errors.New("kyc required for withdrawal")
	ErrInsufficientBalance = errors.New("insufficient commission balance")
)

// CheckWithdrawal reports whether an IB holding balance may withdraw amount.
func CheckWithdrawal(balance, amount decimal.Decimal, kycPassed bool, ib settings.IBSettings) error {
	if !amount.GreaterThan(decimal.Zero) {
		return ErrInvalidAmount
	}
	if balance.LessThan(ib.MinWithdrawalAmount) || amount.LessThan(ib.MinWithdrawalAmount) {
		return fmt.Errorf("%w of %s USD", ErrBelowMinimum, ib.MinWithdrawalAmount.StringFixed(2))
	}
	if ib.KYCRequiredForWithdrawal && !kycPassed {
		return ErrKYCRequired
	}
	if amount.GreaterThan(balance) {
		return ErrInsufficientBalance
	}
	return nil
}
