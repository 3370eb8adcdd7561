package handler

import (
	"net/http"
	"strings"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// 再試行用のattempt id（リクエスト/レスポンス両方）
const HeaderPaymentAttempt = "X-Payment-Attempt"

type PaymentHandler struct {
	uc     *usecase.PaymentUsecase
	wallet *usecase.WalletUsecase
}

func NewPaymentHandler(uc *usecase.PaymentUsecase, wallet *usecase.WalletUsecase) *PaymentHandler {
	return &PaymentHandler{uc: uc, wallet: wallet}
}

type DemoPaymentRequest struct {
	Method model.PaymentMethod `json:"method" validate:"required,payment_method"`
}

func (h *PaymentHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/payment")
	g.Use(middleware.AuthJWT(cfg))

	g.GET("", h.load)
	g.GET("/balance", h.balance)
	g.POST("/wallet", h.payWithWallet)
	g.POST("/demo", h.payWithDemo)
}

func (h *PaymentHandler) load(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.Load(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PaymentHandler) balance(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.wallet.Balance(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PaymentHandler) payWithWallet(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	attemptID := strings.TrimSpace(c.Request().Header.Get(HeaderPaymentAttempt))

	out, err := h.uc.PayWithWallet(c.Request().Context(), userID, usecase.PayInput{AttemptID: attemptID})
	//失敗時もattempt idは返す（結果不明なら同じidで再試行）
	if out.AttemptID != "" {
		c.Response().Header().Set(HeaderPaymentAttempt, out.AttemptID)
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PaymentHandler) payWithDemo(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req DemoPaymentRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	out, err := h.uc.PayWithDemoMethod(c.Request().Context(), userID, req.Method)
	if out.AttemptID != "" {
		c.Response().Header().Set(HeaderPaymentAttempt, out.AttemptID)
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
