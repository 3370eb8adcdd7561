package shopapi

import (
	"context"
	"fmt"
	"net/http"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
)

type productDTO struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	Stock           int64           `json:"stock"`
	OfferPercentage decimal.Decimal `json:"offerPercentage"`
	Category        string          `json:"category"`
	ImageURL        string          `json:"imageUrl"`
}

func (d productDTO) toModel() model.Product {
	return model.Product{
		ID:              d.ID,
		Name:            d.Name,
		Description:     d.Description,
		Category:        d.Category,
		ImageURL:        d.ImageURL,
		Price:           d.Price,
		Stock:           d.Stock,
		OfferPercentage: d.OfferPercentage,
	}
}

// GET /products
func (c *Client) ListProducts(ctx context.Context) ([]model.Product, error) {
	var dtos []productDTO
	err := c.do(ctx, request{op: "list products", method: http.MethodGet, path: "/products"}, &dtos)
	if err != nil {
		return nil, err
	}

	out := make([]model.Product, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toModel())
	}
	return out, nil
}

type quantityBody struct {
	Quantity int64 `json:"quantity"`
}

// PUT /products/{id}/reduce-stock
func (c *Client) ReduceStock(ctx context.Context, productID int64, qty int64) error {
	return c.do(ctx, request{
		op:     "reduce stock",
		method: http.MethodPut,
		path:   fmt.Sprintf("/products/%d/reduce-stock", productID),
		body:   quantityBody{Quantity: qty},
	}, nil)
}
