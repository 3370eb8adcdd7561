package repository

import (
	"errors"
	"fmt"
)

var (
	// リモート呼び出しがタイムアウトした（相手側で処理されたかは不明）
	ErrRemoteTimeout = errors.New("remote api timeout")
	// 接続できない・サーキットが開いている
	ErrRemoteUnavailable = errors.New("remote api unavailable")
)

// リモートAPIの2xx以外の応答
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// errがリモートAPIのstatus応答ならそれを返す
func AsRemoteError(err error) (*RemoteError, bool) {
	var re *RemoteError
	ok := errors.As(err, &re)
	return re, ok
}
