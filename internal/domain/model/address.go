package model

import "strings"

// 配送先住所
// 自由記述(Text)か、構造化(Name〜PostalCode)のどちらか。
type Address struct {
	//宛名
	Name string `json:"name,omitempty" validate:"omitempty,max=255"`

	//電話番号
	Phone string `json:"phone,omitempty" validate:"omitempty,min=6,max=30"`

	//番地など
	Street string `json:"street,omitempty" validate:"omitempty,max=255"`

	//市区町村
	City string `json:"city,omitempty" validate:"omitempty,max=255"`

	//郵便番号
	PostalCode string `json:"postal_code,omitempty" validate:"omitempty,max=20"`

	//自由記述
	Text string `json:"text,omitempty" validate:"omitempty,max=1000"`
}

// 全部空白ならtrue
func (a Address) IsEmpty() bool {
	for _, v := range []string{a.Name, a.Phone, a.Street, a.City, a.PostalCode, a.Text} {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// リモートAPIに送る1行表記
func (a Address) String() string {
	if t := strings.TrimSpace(a.Text); t != "" {
		return t
	}

	parts := make([]string, 0, 5)
	for _, v := range []string{a.Name, a.Street, a.City, a.PostalCode, a.Phone} {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}
