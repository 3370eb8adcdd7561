package shopapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"storefront/internal/domain/model"
	"storefront/internal/repository"
)

type orderItemDTO struct {
	ProductID int64 `json:"productId"`
	Quantity  int64 `json:"quantity"`
	Price     int64 `json:"price"`
}

type createOrderBody struct {
	UserID     int64          `json:"userId"`
	Address    string         `json:"address"`
	TotalPrice int64          `json:"totalPrice"`
	Status     string         `json:"status"`
	Items      []orderItemDTO `json:"items,omitempty"`
	ProductID  int64          `json:"productId,omitempty"`
	Quantity   int64          `json:"quantity,omitempty"`
}

type createOrderResponse struct {
	ID int64 `json:"id"`
}

// POST /orders
// buy-nowは productId+quantity、カートは items[] で送る。
func (c *Client) CreateOrder(ctx context.Context, req repository.CreateOrderRequest) (int64, error) {
	body := createOrderBody{
		UserID:     req.UserID,
		Address:    req.Address,
		TotalPrice: req.TotalPrice,
		Status:     string(model.OrderStatusPendingPayment),
	}
	if req.BuyNow && len(req.Items) == 1 {
		body.ProductID = req.Items[0].ProductID
		body.Quantity = req.Items[0].Quantity
	} else {
		body.Items = make([]orderItemDTO, 0, len(req.Items))
		for _, it := range req.Items {
			body.Items = append(body.Items, orderItemDTO{
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				Price:     it.UnitPrice,
			})
		}
	}

	var out createOrderResponse
	err := c.do(ctx, request{op: "create order", method: http.MethodPost, path: "/orders", body: body}, &out)
	if err != nil {
		return 0, err
	}
	if out.ID <= 0 {
		return 0, errors.New("create order: response has no id")
	}
	return out.ID, nil
}

// PUT /payment/update/{orderId}?status=PAID
func (c *Client) UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	q := url.Values{}
	q.Set("status", string(status))

	return c.do(ctx, request{
		op:     "update order status",
		method: http.MethodPut,
		path:   fmt.Sprintf("/payment/update/%d?%s", orderID, q.Encode()),
	}, nil)
}
