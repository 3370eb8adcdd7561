package usecase

import (
	"context"
	"net/http"

	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// 一回のチャージ上限
const maxAddMoney = 1_000_000

type WalletUsecase struct {
	wallet repo.WalletGateway
	log    *zap.Logger
}

func NewWalletUsecase(wallet repo.WalletGateway, log *zap.Logger) *WalletUsecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &WalletUsecase{wallet: wallet, log: log}
}

type BalanceOutput struct {
	Balance decimal.Decimal `json:"balance"`
}

// 残高は毎回取りに行く（キャッシュしない）
func (u *WalletUsecase) Balance(ctx context.Context, userID int64) (BalanceOutput, error) {
	if userID <= 0 {
		return BalanceOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	b, err := u.wallet.Balance(ctx)
	if err != nil {
		return BalanceOutput{}, remoteError(err)
	}
	return BalanceOutput{Balance: b}, nil
}

// AddMoney はチャージしてから最新の残高を返す
func (u *WalletUsecase) AddMoney(ctx context.Context, userID int64, amount int64) (BalanceOutput, error) {
	if userID <= 0 {
		return BalanceOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if amount <= 0 || amount > maxAddMoney {
		return BalanceOutput{}, ValidationError("invalid amount")
	}

	if err := u.wallet.AddMoney(ctx, amount); err != nil {
		return BalanceOutput{}, remoteError(err)
	}
	u.log.Info("wallet topped up", zap.Int64("user_id", userID), zap.Int64("amount", amount))

	return u.Balance(ctx, userID)
}
