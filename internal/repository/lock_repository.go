package repository

import (
	"context"
	"errors"
)

// 既に誰かが処理中
var ErrLocked = errors.New("already in progress")

// 処理中ロックを約束。取れたら解放関数を返す。
type InflightLocker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
