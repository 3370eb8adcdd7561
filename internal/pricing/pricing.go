// Package pricing は商品・数量・配送ポリシーから金額内訳を計算する。副作用なし。
package pricing

import (
	"errors"
	"strings"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
)

var ErrUnknownVoucher = errors.New("unknown voucher code")

var hundred = decimal.NewFromInt(100)

// 配送料・クーポンの設定
type Policy struct {
	//小計がこれを「超えた」ら配送料0
	FreeDeliveryThreshold int64
	DeliveryFee           int64
	//コード -> 割引率(%)
	Vouchers map[string]int64
}

// 計算対象の1行。Productがnilの行は0扱いでスキップする。
type PricedLine struct {
	Product    *model.Product
	CartItemID int64
	Quantity   int64
}

// 計算結果
type Quote struct {
	Lines     []model.LineItem     `json:"lines"`
	Breakdown model.PriceBreakdown `json:"breakdown"`
}

// 表示と送信で共通の丸め（整数単位、0.5は0から遠い方へ）
func Round(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

// 割引後の単価。ここで一度だけ丸め、以降は整数で計算する。
func UnitPrice(p model.Product) int64 {
	if !p.HasOffer() {
		return Round(p.Price)
	}
	return Round(p.Price.Sub(p.Price.Mul(p.OfferPercentage).Div(hundred)))
}

// 行合計 = 丸め済み単価 × 数量（送信する明細と必ず一致する）
func LineTotal(p model.Product, qty int64) int64 {
	return UnitPrice(p) * qty
}

// 小計が閾値を超えたら0、閾値ちょうどは有料
func (p Policy) DeliveryFeeFor(subtotal int64) int64 {
	if subtotal > p.FreeDeliveryThreshold {
		return 0
	}
	return p.DeliveryFee
}

// コードの割引率。空なら0。
func (p Policy) VoucherPercent(code string) (int64, error) {
	code = NormalizeVoucher(code)
	if code == "" {
		return 0, nil
	}
	pct, ok := p.Vouchers[code]
	if !ok {
		return 0, ErrUnknownVoucher
	}
	return pct, nil
}

func NormalizeVoucher(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// 小計・割引・配送料・合計を出す
func Calculate(policy Policy, lines []PricedLine, voucherCode string) (Quote, error) {
	pct, err := policy.VoucherPercent(voucherCode)
	if err != nil {
		return Quote{}, err
	}

	items := make([]model.LineItem, 0, len(lines))
	var subtotal int64

	for _, l := range lines {
		if l.Product == nil {
			continue
		}
		subtotal += LineTotal(*l.Product, l.Quantity)
		items = append(items, model.LineItem{
			ProductID:  l.Product.ID,
			CartItemID: l.CartItemID,
			Name:       l.Product.Name,
			Quantity:   l.Quantity,
			UnitPrice:  UnitPrice(*l.Product),
		})
	}

	discount := Round(decimal.NewFromInt(subtotal).Mul(decimal.NewFromInt(pct)).Div(hundred))
	b := model.PriceBreakdown{
		Subtotal:    subtotal,
		Discount:    discount,
		DeliveryFee: policy.DeliveryFeeFor(subtotal),
	}
	b.Total = b.Subtotal - b.Discount + b.DeliveryFee
	if pct > 0 {
		b.VoucherCode = NormalizeVoucher(voucherCode)
	}

	return Quote{Lines: items, Breakdown: b}, nil
}
