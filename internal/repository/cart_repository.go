package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// サーバー側カートの操作（リモートAPI）を約束。
type CartGateway interface {
	GetCart(ctx context.Context, userID int64) (model.Cart, error)
	UpdateItem(ctx context.Context, userID int64, cartItemID int64, qty int64) (model.Cart, error)
	ClearCart(ctx context.Context, userID int64) error
}
