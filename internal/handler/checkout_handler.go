package handler

import (
	"net/http"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /checkout 画面のAPI
type CheckoutHandler struct {
	uc *usecase.CheckoutUsecase
}

func NewCheckoutHandler(uc *usecase.CheckoutUsecase) *CheckoutHandler {
	return &CheckoutHandler{uc: uc}
}

type BuyNowRequest struct {
	ProductID int64 `json:"product_id" validate:"gte=0"`
	//0なら1として扱う
	Quantity int64 `json:"quantity" validate:"gte=0"`
}

func (r *BuyNowRequest) toModel() *model.BuyNowSelection {
	if r == nil {
		return nil
	}
	return &model.BuyNowSelection{ProductID: r.ProductID, Quantity: r.Quantity}
}

type CheckoutResolveRequest struct {
	BuyNow      *BuyNowRequest `json:"buy_now"`
	VoucherCode string         `json:"voucher_code" validate:"max=64,voucher"`
}

type CheckoutQuantityRequest struct {
	BuyNow      *BuyNowRequest `json:"buy_now"`
	CartItemID  int64          `json:"cart_item_id" validate:"gte=0"`
	Quantity    int64          `json:"quantity"`
	VoucherCode string         `json:"voucher_code" validate:"max=64,voucher"`
}

type PlaceOrderRequest struct {
	BuyNow      *BuyNowRequest `json:"buy_now"`
	Address     model.Address  `json:"address"`
	VoucherCode string         `json:"voucher_code" validate:"max=64,voucher"`
}

func (h *CheckoutHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/checkout")
	g.Use(middleware.AuthJWT(cfg))

	g.POST("/resolve", h.resolve)
	g.PATCH("/quantity", h.updateQuantity)
	g.POST("/orders", h.placeOrder)
}

func (h *CheckoutHandler) resolve(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req CheckoutResolveRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	out, err := h.uc.Resolve(c.Request().Context(), userID, usecase.ResolveInput{
		BuyNow:      req.BuyNow.toModel(),
		VoucherCode: req.VoucherCode,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CheckoutHandler) updateQuantity(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req CheckoutQuantityRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	out, err := h.uc.UpdateQuantity(c.Request().Context(), userID, usecase.UpdateQuantityInput{
		BuyNow:      req.BuyNow.toModel(),
		CartItemID:  req.CartItemID,
		Quantity:    req.Quantity,
		VoucherCode: req.VoucherCode,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// 作成したら支払い画面へ
func (h *CheckoutHandler) placeOrder(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req PlaceOrderRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	snap, err := h.uc.PlaceOrder(c.Request().Context(), userID, usecase.PlaceOrderInput{
		BuyNow:      req.BuyNow.toModel(),
		Address:     req.Address,
		VoucherCode: req.VoucherCode,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, snap)
}
