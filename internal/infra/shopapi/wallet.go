package shopapi

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
)

type amountBody struct {
	Amount int64 `json:"amount"`
}

// GET /wallet/balance（数値だけが返る）
func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := c.do(ctx, request{op: "wallet balance", method: http.MethodGet, path: "/wallet/balance"}, &balance)
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// POST /payment/transfer
// 同じIdempotency-Keyの再送はサーバー側で1回分として扱われる。
func (c *Client) Transfer(ctx context.Context, idempotencyKey string, amount int64) error {
	return c.do(ctx, request{
		op:      "wallet transfer",
		method:  http.MethodPost,
		path:    "/payment/transfer",
		body:    amountBody{Amount: amount},
		headers: map[string]string{"Idempotency-Key": idempotencyKey},
		timeout: c.transferTimeout,
	}, nil)
}

// POST /wallet/add-money
func (c *Client) AddMoney(ctx context.Context, amount int64) error {
	return c.do(ctx, request{
		op:     "wallet add money",
		method: http.MethodPost,
		path:   "/wallet/add-money",
		body:   amountBody{Amount: amount},
	}, nil)
}
