package usecase

import (
	"errors"
	"fmt"
	"net/http"

	repo "storefront/internal/repository"
)

// エラーの種類（画面側の出し分けに使う）
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindNetwork           ErrorKind = "network"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	//結果不明。同じattemptで再試行する
	KindAmbiguous ErrorKind = "ambiguous_outcome"
	//閉じられないエラー。サポートへ連絡
	KindInconsistent ErrorKind = "inconsistent_state"
	KindConflict     ErrorKind = "conflict"
)

type HTTPError struct {
	Status  int
	Kind    ErrorKind
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

func newKindError(status int, kind ErrorKind, message string) error {
	return &HTTPError{Status: status, Kind: kind, Message: message}
}

func ValidationError(message string) error {
	return newKindError(http.StatusBadRequest, KindValidation, message)
}

func NetworkError(message string) error {
	return newKindError(http.StatusBadGateway, KindNetwork, message)
}

func InsufficientFundsError() error {
	return newKindError(http.StatusPaymentRequired, KindInsufficientFunds, "insufficient balance")
}

func AmbiguousOutcomeError() error {
	return newKindError(http.StatusGatewayTimeout, KindAmbiguous, "payment result unknown, retry with the same attempt")
}

func InconsistentStateError() error {
	return newKindError(http.StatusConflict, KindInconsistent, "payment taken but order not updated, contact support")
}

func ConflictError(message string) error {
	return newKindError(http.StatusConflict, KindConflict, message)
}

// リモートAPIのエラーを画面向けに分類する
func remoteError(err error) error {
	if err == nil {
		return nil
	}
	if he, ok := AsHTTPError(err); ok {
		return he
	}
	if errors.Is(err, repo.ErrRemoteTimeout) || errors.Is(err, repo.ErrRemoteUnavailable) {
		return NetworkError("shop service unavailable")
	}

	re, ok := repo.AsRemoteError(err)
	if !ok {
		return NetworkError("shop service error")
	}
	switch {
	case re.StatusCode == http.StatusUnauthorized || re.StatusCode == http.StatusForbidden:
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	case re.StatusCode == http.StatusNotFound:
		return NewHTTPError(http.StatusNotFound, "not found")
	case re.StatusCode >= 500:
		return NetworkError("shop service error")
	default:
		msg := re.Message
		if msg == "" {
			msg = "rejected by shop service"
		}
		return ValidationError(msg)
	}
}
