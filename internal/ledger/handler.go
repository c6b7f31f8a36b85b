package ledger

import (
	"context"

	"lv-brokerfeed/internal/settings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ibStore interface {
	IBStatus(ctx context.Context, ibUserID string, ib settings.IBSettings) (IBStatus, error)
	Withdraw(ctx context.Context, ibUserID string, amount decimal.NullDecimal, ib settings.IBSettings) (Withdrawal, error)
}

type ibSettingsSource interface {
	ActiveIB(ctx context.Context) settings.IBSettings
}

type Handler struct {
	svc      ibStore
	settings ibSettingsSource
	logger   *zap.Logger
}

func NewHandler(svc ibStore, cfg ibSettingsSource, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, settings: cfg, logger: logger.Named("ib-handler")}
}
