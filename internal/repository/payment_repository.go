package repository

import (
	"context"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
)

// ウォレット（リモートAPI）を約束。
type WalletGateway interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
	//idempotencyKeyが同じなら二重に引き落とされない
	Transfer(ctx context.Context, idempotencyKey string, amount int64) error
	AddMoney(ctx context.Context, amount int64) error
}

// 支払い試行の保存を約束。
type PaymentAttemptRepository interface {
	Create(ctx context.Context, a model.PaymentAttempt) error
	FindByID(ctx context.Context, id string) (model.PaymentAttempt, error)
	//注文の最新の試行。無ければErrNotFound
	FindLatestByOrderID(ctx context.Context, orderID int64) (model.PaymentAttempt, error)
	UpdateStatus(ctx context.Context, id string, status model.AttemptStatus, reason string) error
}

// 支払い後処理ステップの保存を約束。
type CleanupStepRepository interface {
	ListByOrderID(ctx context.Context, orderID int64) ([]model.CleanupStep, error)
	CreateBulk(ctx context.Context, steps []model.CleanupStep) error
	MarkDone(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, lastErr string) error
}
