package model

import "github.com/shopspring/decimal"

// 商品（リモートAPIが所有、このサービスでは読み取りのみ）
type Product struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	ImageURL    string `json:"image_url"`

	//定価
	Price decimal.Decimal `json:"price"`

	//在庫数
	Stock int64 `json:"stock"`

	//割引率（0〜100、0は割引なし）
	OfferPercentage decimal.Decimal `json:"offer_percentage"`
}

// 割引があるか
func (p Product) HasOffer() bool {
	return p.OfferPercentage.IsPositive()
}

// 数量を[1, stock]に収める。在庫0なら0を返す。
func (p Product) ClampQuantity(qty int64) int64 {
	if p.Stock <= 0 {
		return 0
	}
	if qty < 1 {
		return 1
	}
	if qty > p.Stock {
		return p.Stock
	}
	return qty
}
