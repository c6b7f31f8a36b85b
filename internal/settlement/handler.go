package settlement

import (
	"errors"
	"net/http"
	"strings"

	"lv-brokerfeed/internal/feed"
	"lv-brokerfeed/internal/httputil"
	"lv-brokerfeed/internal/ledger"
	"lv-brokerfeed/internal/model"
	"lv-brokerfeed/internal/pricing"
	"lv-brokerfeed/internal/types"

	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type settleRequest struct {
	TradeID string `json:"trade_id"`
	UserID  string `json:"user_id"`
	Symbol  string `json:"symbol"`
	Side    string `json:"side"`
	LotSize string `json:"lot_size"`
}

type settleResponse struct {
	Income         model.BrokerIncome   `json:"income"`
	EffectiveBid   decimal.Decimal      `json:"effective_bid"`
	EffectiveAsk   decimal.Decimal      `json:"effective_ask"`
	ExecutionPrice decimal.Decimal      `json:"execution_price"`
	Commissions    []model.IBCommission `json:"commissions"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	lots, err := decimal.NewFromString(strings.TrimSpace(req.LotSize))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid lot_size"})
		return
	}

	res, err := h.svc.Settle(r.Context(), Request{
		TradeID: req.TradeID,
		UserID:  req.UserID,
		Symbol:  req.Symbol,
		Side:    types.ParseTradeSide(req.Side),
		LotSize: lots,
	})
	if err != nil {
		switch {
		case errors.Is(err, pricing.ErrInvalidInput):
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		case errors.Is(err, feed.ErrUnknownSymbol):
			httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: err.Error()})
		case errors.Is(err, ledger.ErrDuplicateTrade):
			httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{Error: err.Error()})
		case feed.Retryable(err):
			httputil.WriteJSON(w, http.StatusServiceUnavailable, httputil.ErrorResponse{Error: "quote unavailable, retry later"})
		default:
			httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "settlement failed"})
		}
		return
	}

	commissions := res.Commissions
	if commissions == nil {
		commissions = []model.IBCommission{}
	}
	httputil.WriteJSON(w, http.StatusCreated, settleResponse{
		Income:         res.Income,
		EffectiveBid:   res.Economics.EffectiveBid,
		EffectiveAsk:   res.Economics.EffectiveAsk,
		ExecutionPrice: res.Economics.ExecutionPrice,
		Commissions:    commissions,
	})
}
