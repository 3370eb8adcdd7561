package validator

import (
	"errors"
	"strings"

	"storefront/internal/domain/model"

	"github.com/go-playground/validator/v10"
)

// 入力が不正
var ErrInvalidInput = errors.New("invalid input")

// New は独自タグ込みのvalidatorを返す。
//   - payment_method: 画面で選べる支払い方法
//   - voucher: 空か、空白を含まないコード
func New() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("payment_method", isPaymentMethod)
	_ = v.RegisterValidation("voucher", isVoucherLike)
	return v
}

func isPaymentMethod(fl validator.FieldLevel) bool {
	m := model.PaymentMethod(fl.Field().String())
	for _, pm := range model.PaymentMethods {
		if m == pm {
			return true
		}
	}
	return false
}

func isVoucherLike(fl validator.FieldLevel) bool {
	s := strings.TrimSpace(fl.Field().String())
	return !strings.ContainsAny(s, " \t\n")
}

// EchoValidator はecho.Validatorの実装。
type EchoValidator struct {
	v *validator.Validate
}

func NewEchoValidator() *EchoValidator {
	return &EchoValidator{v: New()}
}

func (ev *EchoValidator) Validate(i interface{}) error {
	if err := ev.v.Struct(i); err != nil {
		return errors.Join(ErrInvalidInput, err)
	}
	return nil
}
