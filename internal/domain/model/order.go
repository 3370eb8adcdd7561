package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// リモートAPI上の注文ステータス
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "PENDING_PAYMENT"
	OrderStatusPaid           OrderStatus = "PAID"
)

// チェックアウト対象
type CheckoutMode string

const (
	CheckoutModeBuyNow CheckoutMode = "BUY_NOW"
	CheckoutModeCart   CheckoutMode = "CART"
)

// 注文明細（単価は割引・丸め済み）
type LineItem struct {
	ProductID  int64  `json:"product_id"`
	CartItemID int64  `json:"cart_item_id,omitempty"`
	Name       string `json:"name"`
	Quantity   int64  `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
}

// 金額内訳（すべて丸め済みの整数単位）
type PriceBreakdown struct {
	Subtotal    int64  `json:"subtotal"`
	Discount    int64  `json:"discount"`
	DeliveryFee int64  `json:"delivery_fee"`
	Total       int64  `json:"total"`
	VoucherCode string `json:"voucher_code,omitempty"`
}

// 内訳が足し算として合っているか
func (b PriceBreakdown) Consistent() bool {
	return b.Subtotal-b.Discount+b.DeliveryFee == b.Total
}

// スナップショットの形式バージョン。形を変えたら上げる。
const SnapshotSchemaVersion = 1

var ErrInvalidSnapshot = errors.New("invalid order snapshot")

// 作成済み注文のスナップショット（チェックアウト→支払いの受け渡し）
// 1ユーザーにつき1件（currentOrder相当）。書き込むのはチェックアウト/支払いフローだけ。
type OrderSnapshot struct {
	ID            int64       `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID        int64       `gorm:"not null;uniqueIndex" json:"user_id"`
	OrderID       int64       `gorm:"not null;index" json:"order_id"`
	SchemaVersion int         `gorm:"not null" json:"schema_version"`
	BuyNow        bool        `gorm:"not null" json:"buy_now"`
	Address       string      `gorm:"type:text;not null" json:"address"`
	ItemsJSON     string      `gorm:"type:text;not null" json:"-"`
	Subtotal      int64       `gorm:"not null" json:"subtotal"`
	Discount      int64       `gorm:"not null" json:"discount"`
	DeliveryFee   int64       `gorm:"not null" json:"delivery_fee"`
	Total         int64       `gorm:"not null" json:"total"`
	VoucherCode   string      `gorm:"type:varchar(64)" json:"voucher_code,omitempty"`
	Status        OrderStatus `gorm:"type:varchar(20);not null" json:"status"`
	CreatedAt     time.Time   `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time   `gorm:"not null;autoUpdateTime" json:"updated_at"`

	Items []LineItem `gorm:"-" json:"items"`
}

// 明細と内訳からスナップショットを作る
func NewOrderSnapshot(userID, orderID int64, buyNow bool, address string, items []LineItem, b PriceBreakdown) (OrderSnapshot, error) {
	raw, err := json.Marshal(items)
	if err != nil {
		return OrderSnapshot{}, fmt.Errorf("marshal items: %w", err)
	}

	return OrderSnapshot{
		UserID:        userID,
		OrderID:       orderID,
		SchemaVersion: SnapshotSchemaVersion,
		BuyNow:        buyNow,
		Address:       address,
		ItemsJSON:     string(raw),
		Subtotal:      b.Subtotal,
		Discount:      b.Discount,
		DeliveryFee:   b.DeliveryFee,
		Total:         b.Total,
		VoucherCode:   b.VoucherCode,
		Status:        OrderStatusPendingPayment,
		Items:         items,
	}, nil
}

func (s OrderSnapshot) Breakdown() PriceBreakdown {
	return PriceBreakdown{
		Subtotal:    s.Subtotal,
		Discount:    s.Discount,
		DeliveryFee: s.DeliveryFee,
		Total:       s.Total,
		VoucherCode: s.VoucherCode,
	}
}

// DBから読んだ後にItemsを復元してスキーマチェックする
func (s *OrderSnapshot) Decode() error {
	var items []LineItem
	if err := json.Unmarshal([]byte(s.ItemsJSON), &items); err != nil {
		return fmt.Errorf("%w: items: %v", ErrInvalidSnapshot, err)
	}
	s.Items = items
	return s.Validate()
}

func (s OrderSnapshot) Validate() error {
	if s.SchemaVersion != SnapshotSchemaVersion {
		return fmt.Errorf("%w: schema version %d", ErrInvalidSnapshot, s.SchemaVersion)
	}
	if s.UserID <= 0 || s.OrderID <= 0 {
		return fmt.Errorf("%w: missing ids", ErrInvalidSnapshot)
	}
	if len(s.Items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidSnapshot)
	}
	for _, it := range s.Items {
		if it.ProductID <= 0 || it.Quantity <= 0 {
			return fmt.Errorf("%w: bad item", ErrInvalidSnapshot)
		}
	}
	if s.Total <= 0 || !s.Breakdown().Consistent() {
		return fmt.Errorf("%w: breakdown", ErrInvalidSnapshot)
	}
	if s.Status != OrderStatusPendingPayment && s.Status != OrderStatusPaid {
		return fmt.Errorf("%w: status %q", ErrInvalidSnapshot, s.Status)
	}
	return nil
}
