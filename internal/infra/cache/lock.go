package cache

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 持ち主のときだけ消す
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// InflightLock は同じ注文・同じユーザーの処理を同時に1つに絞るロック。
// TTLが切れると自然に外れる。
type InflightLock struct {
	client *redis.Client
	ttl    time.Duration
}

var _ repository.InflightLocker = (*InflightLock)(nil)

func NewInflightLock(client *redis.Client, ttl time.Duration) *InflightLock {
	return &InflightLock{client: client, ttl: ttl}
}

// Acquire は取れなければrepository.ErrLocked。
func (l *InflightLock) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx failed: %w", err)
	}
	if !ok {
		return nil, repository.ErrLocked
	}

	release := func() {
		//リクエストのctxが切れていても解放する
		_ = releaseScript.Run(context.Background(), l.client, []string{key}, token).Err()
	}
	return release, nil
}
