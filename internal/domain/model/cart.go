package model

// サーバー側カート（ユーザーごと）
// このサービスは表示と計算のための一時的なコピーしか持たない。
type Cart struct {
	UserID int64      `json:"user_id"`
	Items  []CartItem `json:"items"`
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}
