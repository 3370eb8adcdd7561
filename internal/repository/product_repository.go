package repository

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
)

var ErrNotFound = errors.New("not found")

// 商品カタログの取得（リモートAPI）を約束。
type CatalogGateway interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
	//在庫を減らす（支払い後処理）
	ReduceStock(ctx context.Context, productID int64, qty int64) error
}
