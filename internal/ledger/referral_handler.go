package ledger

import (
	"errors"
	"net/http"
	"strings"

	"lv-brokerfeed/internal/commission"
	"lv-brokerfeed/internal/httputil"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ibStatusResponse struct {
	Balance                  string `json:"balance"`
	TotalEarned              string `json:"total_earned"`
	TotalWithdrawn           string `json:"total_withdrawn"`
	ReferralsTotal           int    `json:"referrals_total"`
	DefaultCommissionPercent string `json:"default_commission_percent"`
	MinWithdrawUSD           string `json:"min_withdraw_usd"`
	KYCRequired              bool   `json:"kyc_required"`
	KYCPassed                bool   `json:"kyc_passed"`
	CanWithdraw              bool   `json:"can_withdraw"`
}

type withdrawRequest struct {
	AmountUSD string `json:"amount_usd"`
}

type withdrawResponse struct {
	Status    string `json:"status"`
	ID        string `json:"id"`
	AmountUSD string `json:"amount_usd"`
	Balance   string `json:"balance"`
}

func (h *Handler) IBStatus(w http.ResponseWriter, r *http.Request, userID string) {
	ib := h.settings.ActiveIB(r.Context())
	status, err := h.svc.IBStatus(r.Context(), userID, ib)
	if err != nil {
		h.logger.Error("ib status failed", zap.String("user_id", userID), zap.Error(err))
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "ib status unavailable"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ibStatusResponse{
		Balance:                  status.Wallet.Balance.StringFixed(2),
		TotalEarned:              status.Wallet.TotalEarned.StringFixed(2),
		TotalWithdrawn:           status.Wallet.TotalWithdrawn.StringFixed(2),
		ReferralsTotal:           status.ReferralsTotal,
		DefaultCommissionPercent: ib.DefaultCommissionRate.Mul(decimal.NewFromInt(100)).StringFixed(2),
		MinWithdrawUSD:           ib.MinWithdrawalAmount.StringFixed(2),
		KYCRequired:              ib.KYCRequiredForWithdrawal,
		KYCPassed:                status.KYCPassed,
		CanWithdraw:              status.CanWithdraw,
	})
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request, userID string) {
	var req withdrawRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	var amount decimal.NullDecimal
	if raw := strings.TrimSpace(req.AmountUSD); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil || !parsed.GreaterThan(decimal.Zero) {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount_usd"})
			return
		}
		amount = decimal.NewNullDecimal(parsed)
	}

	out, err := h.svc.Withdraw(r.Context(), userID, amount, h.settings.ActiveIB(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, commission.ErrKYCRequired):
			httputil.WriteJSON(w, http.StatusForbidden, httputil.ErrorResponse{Error: err.Error()})
		case errors.Is(err, commission.ErrBelowMinimum),
			errors.Is(err, commission.ErrInsufficientBalance),
			errors.Is(err, commission.ErrInvalidAmount):
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		default:
			h.logger.Error("ib withdraw failed", zap.String("user_id", userID), zap.Error(err))
			httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "withdraw failed"})
		}
		return
	}
	httputil.WriteJSON(w, http.StatusOK, withdrawResponse{
		Status:    "ok",
		ID:        out.ID.String(),
		AmountUSD: out.Amount.StringFixed(2),
		Balance:   out.Balance.StringFixed(2),
	})
}
