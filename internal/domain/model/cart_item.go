package model

// カートの明細
type CartItem struct {
	ID        int64 `json:"id"`
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// 今すぐ購入の選択（画面遷移で運ばれるだけで永続化しない）
type BuyNowSelection struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// buy-nowとして有効か
func (s *BuyNowSelection) Active() bool {
	return s != nil && s.ProductID > 0
}
