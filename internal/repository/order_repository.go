package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 注文作成リクエスト（リモートAPI向け）
type CreateOrderRequest struct {
	UserID     int64
	Address    string
	TotalPrice int64
	BuyNow     bool
	Items      []model.LineItem
}

// 注文の作成・ステータス更新（リモートAPI）を約束。
type OrderGateway interface {
	//作成された注文IDを返す
	CreateOrder(ctx context.Context, req CreateOrderRequest) (int64, error)
	UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) error
}

// 注文スナップショットの保存先。1ユーザー1件。
type SnapshotRepository interface {
	//同じユーザーの古いものは置き換える
	Save(ctx context.Context, s model.OrderSnapshot) error
	//無ければErrNotFound
	FindByUserID(ctx context.Context, userID int64) (model.OrderSnapshot, error)
	MarkPaid(ctx context.Context, userID int64, orderID int64) error
	//orderIDが一致するときだけ消す（別タブで作り直した新しい注文は消さない）
	Delete(ctx context.Context, userID int64, orderID int64) error
}
