package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 照合イベント（outbox）の保存・取り出しの約束。
type ReconciliationRepository interface {
	//1件保存
	Create(ctx context.Context, ev model.ReconciliationEvent) error

	//未送信を古い順にlimit件
	ListUnpublished(ctx context.Context, limit int) ([]model.ReconciliationEvent, error)

	MarkPublished(ctx context.Context, id int64) error
}
