package shopapi

import (
	"context"
	"fmt"
	"net/http"

	"storefront/internal/domain/model"
)

type cartDTO struct {
	Items []struct {
		ID        int64 `json:"id"`
		ProductID int64 `json:"productId"`
		Quantity  int64 `json:"quantity"`
	} `json:"items"`
}

func (d cartDTO) toModel(userID int64) model.Cart {
	cart := model.Cart{UserID: userID, Items: make([]model.CartItem, 0, len(d.Items))}
	for _, it := range d.Items {
		cart.Items = append(cart.Items, model.CartItem{
			ID:        it.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
		})
	}
	return cart
}

// GET /cart/{userId}
func (c *Client) GetCart(ctx context.Context, userID int64) (model.Cart, error) {
	var dto cartDTO
	err := c.do(ctx, request{
		op:     "get cart",
		method: http.MethodGet,
		path:   fmt.Sprintf("/cart/%d", userID),
	}, &dto)
	if err != nil {
		return model.Cart{}, err
	}
	return dto.toModel(userID), nil
}

// PUT /cart/{userId}/item/{itemId}
func (c *Client) UpdateItem(ctx context.Context, userID int64, cartItemID int64, qty int64) (model.Cart, error) {
	var dto cartDTO
	err := c.do(ctx, request{
		op:     "update cart item",
		method: http.MethodPut,
		path:   fmt.Sprintf("/cart/%d/item/%d", userID, cartItemID),
		body:   quantityBody{Quantity: qty},
	}, &dto)
	if err != nil {
		return model.Cart{}, err
	}
	return dto.toModel(userID), nil
}

// DELETE /cart/{userId}/clear
func (c *Client) ClearCart(ctx context.Context, userID int64) error {
	return c.do(ctx, request{
		op:     "clear cart",
		method: http.MethodDelete,
		path:   fmt.Sprintf("/cart/%d/clear", userID),
	}, nil)
}
