// Package cache はredisを使った商品一覧キャッシュと二重送信防止ロック。
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/repository"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const catalogKey = "catalog:products"

var ErrCacheMiss = errors.New("cache miss")

// CatalogCache はCatalogGatewayの前に置くキャッシュ。
// redisが落ちていてもリモートAPIから取れれば返す。
type CatalogCache struct {
	next   repository.CatalogGateway
	client *redis.Client
	ttl    time.Duration
	sfg    singleflight.Group
	log    *zap.Logger
}

var _ repository.CatalogGateway = (*CatalogCache)(nil)

func NewCatalogCache(next repository.CatalogGateway, client *redis.Client, ttl time.Duration, log *zap.Logger) *CatalogCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &CatalogCache{next: next, client: client, ttl: ttl, log: log}
}

func (c *CatalogCache) ListProducts(ctx context.Context) ([]model.Product, error) {
	products, err := c.get(ctx)
	if err == nil {
		return products, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		c.log.Warn("catalog cache read failed", zap.Error(err))
	}

	//同時のミスは1回だけリモートに取りに行く
	v, err, _ := c.sfg.Do(catalogKey, func() (interface{}, error) {
		products, err := c.next.ListProducts(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.set(ctx, products); err != nil {
			c.log.Warn("catalog cache write failed", zap.Error(err))
		}
		return products, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Product), nil
}

// 在庫が変わるのでキャッシュも捨てる
func (c *CatalogCache) ReduceStock(ctx context.Context, productID int64, qty int64) error {
	if err := c.next.ReduceStock(ctx, productID, qty); err != nil {
		return err
	}
	if err := c.Invalidate(ctx); err != nil {
		c.log.Warn("catalog cache invalidate failed", zap.Error(err))
	}
	return nil
}

func (c *CatalogCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, catalogKey).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (c *CatalogCache) get(ctx context.Context) ([]model.Product, error) {
	data, err := c.client.Get(ctx, catalogKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var products []model.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("unmarshal products failed: %w", err)
	}
	return products, nil
}

func (c *CatalogCache) set(ctx context.Context, products []model.Product) error {
	data, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("marshal products failed: %w", err)
	}
	if err := c.client.Set(ctx, catalogKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}
