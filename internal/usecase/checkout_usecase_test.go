package usecase_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"storefront/internal/domain/model"
	"storefront/internal/pricing"
	repo "storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testUserID int64 = 7

var testPolicy = pricing.Policy{
	FreeDeliveryThreshold: 500,
	DeliveryFee:           40,
	Vouchers:              map[string]int64{"SAVE10": 10},
}

type harness struct {
	catalog   *CatalogMock
	carts     *CartMock
	orders    *OrderMock
	wallet    *WalletMock
	snapshots *memSnapshots
	attempts  *memAttempts
	steps     *memSteps
	recon     *memRecon
	locker    *fakeLocker

	checkout *usecase.CheckoutUsecase
	payment  *usecase.PaymentUsecase
	cleanup  *usecase.CleanupUsecase
	wallets  *usecase.WalletUsecase
}

func newHarness() *harness {
	h := &harness{
		catalog:   new(CatalogMock),
		carts:     new(CartMock),
		orders:    new(OrderMock),
		wallet:    new(WalletMock),
		snapshots: newMemSnapshots(),
		attempts:  newMemAttempts(),
		steps:     &memSteps{},
		recon:     &memRecon{},
		locker:    newFakeLocker(),
	}
	tx := &fakeTx{snapshots: h.snapshots, attempts: h.attempts, steps: h.steps, recon: h.recon}

	h.cleanup = usecase.NewCleanupUsecase(tx, h.steps, h.snapshots, h.catalog, h.carts, nil)
	h.payment = usecase.NewPaymentUsecase(tx, h.snapshots, h.attempts, h.wallet, h.orders, h.locker, h.cleanup, nil)
	h.checkout = usecase.NewCheckoutUsecase(h.catalog, h.carts, h.orders, h.snapshots, h.locker, h.payment, testPolicy, nil)
	h.wallets = usecase.NewWalletUsecase(h.wallet, nil)
	return h
}

// 1: 1000円の20%オフ（単価800）在庫5
// 2: 100円 在庫10
// 3: 250円 在庫0
func testProducts() []model.Product {
	return []model.Product{
		{ID: 1, Name: "Shoe", Price: decimal.NewFromInt(1000), OfferPercentage: decimal.NewFromInt(20), Stock: 5},
		{ID: 2, Name: "Sock", Price: decimal.NewFromInt(100), Stock: 10},
		{ID: 3, Name: "Hat", Price: decimal.NewFromInt(250), Stock: 0},
	}
}

func assertHTTPError(t *testing.T, err error, status int, msg string) *usecase.HTTPError {
	t.Helper()
	require.Error(t, err)
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok, "expected HTTPError, got %T: %v", err, err)
	assert.Equal(t, status, he.Status)
	if msg != "" {
		assert.Contains(t, he.Message, msg)
	}
	return he
}

// =====================
// Resolve
// =====================

func TestCheckout_Resolve_BuyNowDefaultsToOne(t *testing.T) {
	h := newHarness()
	h.catalog.On("ListProducts", mock.Anything).Return(testProducts(), nil)

	view, err := h.checkout.Resolve(context.Background(), testUserID, usecase.ResolveInput{
		BuyNow: &model.BuyNowSelection{ProductID: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, model.CheckoutModeBuyNow, view.Mode)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, int64(1), view.Lines[0].Quantity)
	assert.Equal(t, int64(800), view.Lines[0].UnitPrice)
	assert.Equal(t, model.PriceBreakdown{Subtotal: 800, DeliveryFee: 0, Total: 800}, view.Breakdown)
	h.carts.AssertNotCalled(t, "GetCart", mock.Anything, mock.Anything)
}

// Test: 在庫超過は在庫数に収める
func TestCheckout_Resolve_BuyNowClampsToStock(t *testing.T) {
	h := newHarness()
	h.catalog.On("ListProducts", mock.Anything).Return(testProducts(), nil)

	view, err := h.checkout.Resolve(context.Background(), testUserID, usecase.ResolveInput{
		BuyNow: &model.BuyNowSelection{ProductID: 1, Quantity: 9},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), view.Lines[0].Quantity)
	assert.Equal(t, int64(4000), view.Breakdown.Total)
}

func TestCheckout_Resolve_CartDropsMissingProducts(t *testing.T) {
	h := newHarness()
	h.catalog.On("ListProducts", mock.Anything).Return(testProducts(), nil)
	h.carts.On("GetCart", mock.Anything, testUserID).Return(model.Cart{UserID: testUserID, Items: []model.CartItem{
		{ID: 10, ProductID: 1, Quantity: 2},
		{ID: 11, ProductID: 2, Quantity: 1},
		{ID: 12, ProductID: 99, Quantity: 1},
	}}, nil)

	view, err := h.checkout.Resolve(context.Background(), testUserID, usecase.ResolveInput{})
	require.NoError(t, err)

	assert.Equal(t, model.CheckoutModeCart, view.Mode)
	require.Len(t, view.Lines, 2)
	assert.Equal(t, int64(10), view.Lines[0].CartItemID)
	assert.Equal(t, int64(1700), view.Breakdown.Subtotal)
	assert.Equal(t, int64(0), view.Breakdown.DeliveryFee)
	assert.Equal(t, int64(1700), view.Breakdown.Total)
}

func TestCheckout_Resolve_CartWithVoucher(t *testing.T) {
	h := newHarness()
	h.catalog.On("ListProducts", mock.Anything).Return(testProducts(), nil)
	h.carts.On("GetCart", mock.Anything, testUserID).Return(model.Cart{Items: []model.CartItem{
		{ID: 11, ProductID: 2, Quantity: 3},
	}}, nil)

	view, err := h.checkout.Resolve(context.Background(), testUserID, usecase.ResolveInput{VoucherCode: " save10 "})
	require.NoError(t, err)

	// 300 - 30 + 40
	assert.Equal(t, model.PriceBreakdown{Subtotal: 300, Discount: 30, DeliveryFee: 40, Total: 310, VoucherCode: "SAVE10"}, view.Breakdown)
}

func TestCheckout_Resolve_UnknownVoucher(t *testing.T) {
	h := newHarness()
	h.catalog.On("ListProducts", mock.Anything).Return(testProducts(), nil)

	_, err := h.checkout.Resolve(context.Background(), testUserID, usecase.ResolveInput{
		BuyNow:      &model.BuyNowSelection{ProductID: 2},
		VoucherCode: "FREE100",
	})
	he := assertHTTPError(t, err, http.StatusBadRequest, "invalid voucher code")
	assert.Equal(t, usecase.KindValidation, he.Kind)
}

// Test: カートはログイン必須
func TestCheckout_Resolve_CartRequiresUser(t *testing.T) {
	h := newHarness()

	_, err := h.checkout.Resolve(context.Background(), 0, usecase.ResolveInput{})
	assertHTTPError(t, err, http.StatusUnauthorized, "unauthorized")
	h.carts.AssertNotCalled(t, "GetCart", mock.Anything, mock.Anything)
}

func TestCheckout_Resolve_CartNotFoundIsEmpty(t *testing.T) {
	h := newHarness()
	h.carts.On("GetCart", mock.Anything, testUserID).
		Return(model.Cart{}, &repo.RemoteError{Op: "get cart", StatusCode: http.StatusNotFound})

	view, err := h.checkout.Resolve(context.Background(), testUserID, usecase.ResolveInput{})
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
	assert.Equal(t, int64(40), view.Breakdown.Total)
	h.catalog.AssertNotCalled(t, "ListProducts", mock.Anything)
}

func TestCheckout_Resolve_CatalogDown(t *testing.T) {
	h := newHarness()
	h.catalog.On("ListProducts", mock.Anything).Return(nil, repo.ErrRemoteUnavailable)

	_, err := h.checkout.Resolve(context.Background(), testUserID, usecase.ResolveInput{
		BuyNow: &model.BuyNowSelection{ProductID: 1},
	})
	he := assertHTTPError(t, err, http.StatusBadGateway, "")
	assert.Equal(t, usecase.KindNetwork, he.Kind)
}

// =====================
// UpdateQuantity
// =====================

// Test: buy-nowの数量変更はサーバーに書かない
func TestCheckout_UpdateQuantity_BuyNowIsLocal(t *testing.T) {
	h := newHarness()
	h.catalog.On("ListProducts", mock.Anything).Return(testProducts(), nil)

	view, err := h.checkout.UpdateQuantity(context.Background(), testUserID, usecase.UpdateQuantityInput{
		BuyNow:   &model.BuyNowSelection{ProductID: 1, Quantity: 1},
		Quantity: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), view.Lines[0].Quantity)
	assert.Equal(t, int64(2400), view.Breakdown.Total)
	h.carts.AssertNotCalled(t, "UpdateItem", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// Test: カートは在庫に収めて書いてから読み直す
func TestCheckout_UpdateQuantity_CartWritesThrough(t *testing.T) {
	h := newHarness()
	h.catalog.On("ListProducts", mock.Anything).Return(testProducts(), nil)
	h.carts.On("GetCart", mock.Anything, testUserID).Return(model.Cart{Items: []model.CartItem{
		{ID: 10, ProductID: 1, Quantity: 1},
	}}, nil).Once()
	h.carts.On("UpdateItem", mock.Anything, testUserID, int64(10), int64(5)).Return(model.Cart{}, nil).Once()
	h.carts.On("GetCart", mock.Anything, testUserID).Return(model.Cart{Items: []model.CartItem{
		{ID: 10, ProductID: 1, Quantity: 5},
	}}, nil).Once()

	view, err := h.checkout.UpdateQuantity(context.Background(), testUserID, usecase.UpdateQuantityInput{
		CartItemID: 10,
		Quantity:   9,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), view.Lines[0].Quantity)
	assert.Equal(t, int64(4000), view.Breakdown.Total)
	h.carts.AssertExpectations(t)
}

func TestCheckout_UpdateQuantity_Invalid(t *testing.T) {
	h := newHarness()

	_, err := h.checkout.UpdateQuantity(context.Background(), testUserID, usecase.UpdateQuantityInput{CartItemID: 10, Quantity: 0})
	assertHTTPError(t, err, http.StatusBadRequest, "invalid quantity")
}

// =====================
// PlaceOrder
// =====================

// Test: 住所が空ならネットワークに出ない
func TestCheckout_PlaceOrder_EmptyAddress(t *testing.T) {
	h := newHarness()

	_, err := h.checkout.PlaceOrder(context.Background(), testUserID, usecase.PlaceOrderInput{
		BuyNow:  &model.BuyNowSelection{ProductID: 1, Quantity: 1},
		Address: model.Address{Text: "   "},
	})
	he := assertHTTPError(t, err, http.StatusBadRequest, "address required")
	assert.Equal(t, usecase.KindValidation, he.Kind)

	h.catalog.AssertNotCalled(t, "ListProducts", mock.Anything)
	h.carts.AssertNotCalled(t, "GetCart", mock.Anything, mock.Anything)
	h.orders.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
	assert.False(t, h.snapshots.has(testUserID))
}

func TestCheckout_PlaceOrder_InvalidStructuredAddress(t *testing.T) {
	h := newHarness()

	_, err := h.checkout.PlaceOrder(context.Background(), testUserID, usecase.PlaceOrderInput{
		BuyNow:  &model.BuyNowSelection{ProductID: 1, Quantity: 1},
		Address: model.Address{Name: "Taro", Phone: "123"},
	})
	assertHTTPError(t, err, http.StatusBadRequest, "invalid address")
	h.orders.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

// Test: 1000円20%オフ×2 → 合計1600（配送料0）
func TestCheckout_PlaceOrder_BuyNow(t *testing.T) {
	h := newHarness()
	h.catalog.On("ListProducts", mock.Anything).Return(testProducts(), nil)
	h.orders.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req repo.CreateOrderRequest) bool {
		return req.UserID == testUserID &&
			req.BuyNow &&
			req.TotalPrice == 1600 &&
			req.Address == "1-2-3 Shibuya" &&
			len(req.Items) == 1 &&
			req.Items[0].ProductID == 1 &&
			req.Items[0].Quantity == 2 &&
			req.Items[0].UnitPrice == 800
	})).Return(int64(42), nil)

	snap, err := h.checkout.PlaceOrder(context.Background(), testUserID, usecase.PlaceOrderInput{
		BuyNow:  &model.BuyNowSelection{ProductID: 1, Quantity: 2},
		Address: model.Address{Text: "1-2-3 Shibuya"},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(42), snap.OrderID)
	assert.True(t, snap.BuyNow)
	assert.Equal(t, model.OrderStatusPendingPayment, snap.Status)
	assert.Equal(t, model.PriceBreakdown{Subtotal: 1600, Total: 1600}, snap.Breakdown())
	assert.True(t, h.snapshots.has(testUserID))
	h.orders.AssertExpectations(t)
}

// Test: 閾値ちょうど(500)は配送料がかかる
func TestCheckout_PlaceOrder_ThresholdChargesFee(t *testing.T) {
	h := newHarness()
	h.catalog.On("ListProducts", mock.Anything).Return(testProducts(), nil)
	h.orders.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req repo.CreateOrderRequest) bool {
		return req.TotalPrice == 540
	})).Return(int64(43), nil)

	snap, err := h.checkout.PlaceOrder(context.Background(), testUserID, usecase.PlaceOrderInput{
		BuyNow:  &model.BuyNowSelection{ProductID: 2, Quantity: 5},
		Address: model.Address{Text: "somewhere"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(40), snap.DeliveryFee)
	assert.Equal(t, int64(540), snap.Total)
}

// Test: 送信時は在庫に収めず弾く
func TestCheckout_PlaceOrder_StockExceeded(t *testing.T) {
	h := newHarness()
	h.catalog.On("ListProducts", mock.Anything).Return(testProducts(), nil)

	_, err := h.checkout.PlaceOrder(context.Background(), testUserID, usecase.PlaceOrderInput{
		BuyNow:  &model.BuyNowSelection{ProductID: 1, Quantity: 6},
		Address: model.Address{Text: "somewhere"},
	})
	assertHTTPError(t, err, http.StatusBadRequest, "stock exceeded")
	h.orders.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestCheckout_PlaceOrder_OutOfStock(t *testing.T) {
	h := newHarness()
	h.catalog.On("ListProducts", mock.Anything).Return(testProducts(), nil)

	_, err := h.checkout.PlaceOrder(context.Background(), testUserID, usecase.PlaceOrderInput{
		BuyNow:  &model.BuyNowSelection{ProductID: 3, Quantity: 1},
		Address: model.Address{Text: "somewhere"},
	})
	assertHTTPError(t, err, http.StatusBadRequest, "out of stock")
}

func TestCheckout_PlaceOrder_EmptyCart(t *testing.T) {
	h := newHarness()
	h.carts.On("GetCart", mock.Anything, testUserID).Return(model.Cart{}, nil)

	_, err := h.checkout.PlaceOrder(context.Background(), testUserID, usecase.PlaceOrderInput{
		Address: model.Address{Text: "somewhere"},
	})
	assertHTTPError(t, err, http.StatusBadRequest, "nothing to order")
}

// Test: 二重送信は409
func TestCheckout_PlaceOrder_InFlight(t *testing.T) {
	h := newHarness()
	h.locker.hold("order-submit:7")

	_, err := h.checkout.PlaceOrder(context.Background(), testUserID, usecase.PlaceOrderInput{
		BuyNow:  &model.BuyNowSelection{ProductID: 1, Quantity: 1},
		Address: model.Address{Text: "somewhere"},
	})
	he := assertHTTPError(t, err, http.StatusConflict, "in progress")
	assert.Equal(t, usecase.KindConflict, he.Kind)
	h.catalog.AssertNotCalled(t, "ListProducts", mock.Anything)
}

// Test: 注文作成失敗ならスナップショットを書かない
func TestCheckout_PlaceOrder_RemoteFailure(t *testing.T) {
	h := newHarness()
	h.catalog.On("ListProducts", mock.Anything).Return(testProducts(), nil)
	h.orders.On("CreateOrder", mock.Anything, mock.Anything).
		Return(int64(0), &repo.RemoteError{Op: "create order", StatusCode: http.StatusInternalServerError})

	_, err := h.checkout.PlaceOrder(context.Background(), testUserID, usecase.PlaceOrderInput{
		BuyNow:  &model.BuyNowSelection{ProductID: 1, Quantity: 1},
		Address: model.Address{Text: "somewhere"},
	})
	he := assertHTTPError(t, err, http.StatusBadGateway, "")
	assert.Equal(t, usecase.KindNetwork, he.Kind)
	assert.False(t, h.snapshots.has(testUserID))

	//ロックは解放されている
	release, err := h.locker.Acquire(context.Background(), "order-submit:7")
	require.NoError(t, err)
	release()
}

func TestCheckout_PlaceOrder_SnapshotSaveFails(t *testing.T) {
	h := newHarness()
	h.snapshots.saveErr = errors.New("db down")
	h.catalog.On("ListProducts", mock.Anything).Return(testProducts(), nil)
	h.orders.On("CreateOrder", mock.Anything, mock.Anything).Return(int64(42), nil)

	_, err := h.checkout.PlaceOrder(context.Background(), testUserID, usecase.PlaceOrderInput{
		BuyNow:  &model.BuyNowSelection{ProductID: 1, Quantity: 1},
		Address: model.Address{Text: "somewhere"},
	})
	assertHTTPError(t, err, http.StatusInternalServerError, "db error")
}

// Test: チェックアウトの合計 == 支払い画面で読み戻した合計（buy-now/カート両方）
func TestCheckout_TotalRoundTripsToPayment(t *testing.T) {
	cases := []struct {
		name   string
		buyNow *model.BuyNowSelection
		cart   []model.CartItem
	}{
		{name: "buy-now", buyNow: &model.BuyNowSelection{ProductID: 2, Quantity: 3}},
		{name: "cart", cart: []model.CartItem{{ID: 10, ProductID: 1, Quantity: 1}, {ID: 11, ProductID: 2, Quantity: 2}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			ctx := context.Background()
			h.catalog.On("ListProducts", mock.Anything).Return(testProducts(), nil)
			h.carts.On("GetCart", mock.Anything, testUserID).Return(model.Cart{Items: tc.cart}, nil)
			h.orders.On("CreateOrder", mock.Anything, mock.Anything).Return(int64(42), nil)

			view, err := h.checkout.Resolve(ctx, testUserID, usecase.ResolveInput{BuyNow: tc.buyNow, VoucherCode: "SAVE10"})
			require.NoError(t, err)

			_, err = h.checkout.PlaceOrder(ctx, testUserID, usecase.PlaceOrderInput{
				BuyNow:      tc.buyNow,
				Address:     model.Address{Text: "somewhere"},
				VoucherCode: "SAVE10",
			})
			require.NoError(t, err)

			pv, err := h.payment.Load(ctx, testUserID)
			require.NoError(t, err)
			require.NotNil(t, pv.Order)
			assert.Equal(t, model.PaymentStateAwaitingMethodSelection, pv.State)
			assert.Equal(t, view.Breakdown, pv.Order.Breakdown())
			assert.Equal(t, tc.buyNow != nil, pv.Order.BuyNow)
		})
	}
}

// Test: 割引で端数が出ても、送る明細の合計と注文合計が一致する
func TestCheckout_PlaceOrder_FractionalOfferLinesMatchTotal(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	products := []model.Product{
		{ID: 5, Name: "Lamp", Price: decimal.NewFromInt(999), OfferPercentage: decimal.NewFromInt(15), Stock: 20},
	}
	cart := model.Cart{Items: []model.CartItem{{ID: 50, ProductID: 5, Quantity: 10}}}
	h.catalog.On("ListProducts", mock.Anything).Return(products, nil)
	h.carts.On("GetCart", mock.Anything, testUserID).Return(cart, nil)

	var sent repo.CreateOrderRequest
	h.orders.On("CreateOrder", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(repo.CreateOrderRequest) }).
		Return(int64(42), nil)

	view, err := h.checkout.Resolve(ctx, testUserID, usecase.ResolveInput{})
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, int64(849), view.Lines[0].UnitPrice)
	assert.Equal(t, int64(8490), view.Lines[0].LineTotal)
	assert.Equal(t, int64(8490), view.Breakdown.Total)

	_, err = h.checkout.PlaceOrder(ctx, testUserID, usecase.PlaceOrderInput{Address: model.Address{Text: "somewhere"}})
	require.NoError(t, err)

	var sum int64
	for _, it := range sent.Items {
		sum += it.UnitPrice * it.Quantity
	}
	assert.Equal(t, int64(8490), sent.TotalPrice)
	assert.Equal(t, sent.TotalPrice, sum)
}

// =====================
// PlaceOrder（前の注文が残っている）
// =====================

// Test: 支払い済みで後処理が残っていれば、それを終えてから新しい注文を書く
func TestCheckout_PlaceOrder_FinishesPreviousCleanupFirst(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	seedCart(t, h)
	h.wallet.On("Balance", mock.Anything).Return(decimal.NewFromInt(5000), nil)
	h.wallet.On("Transfer", mock.Anything, mock.Anything, int64(1700)).Return(nil)
	h.orders.On("UpdateStatus", mock.Anything, testOrderID, model.OrderStatusPaid).Return(nil)
	h.catalog.On("ReduceStock", mock.Anything, int64(1), int64(2)).Return(nil).Once()
	h.catalog.On("ReduceStock", mock.Anything, int64(2), int64(1)).Return(errors.New("boom")).Once()
	h.catalog.On("ReduceStock", mock.Anything, int64(2), int64(1)).Return(nil).Once()
	h.carts.On("ClearCart", mock.Anything, testUserID).Return(nil)

	res, err := h.payment.PayWithWallet(ctx, testUserID, usecase.PayInput{})
	require.NoError(t, err)
	require.False(t, res.CleanupCompleted)

	h.catalog.On("ListProducts", mock.Anything).Return(testProducts(), nil)
	h.orders.On("CreateOrder", mock.Anything, mock.Anything).Return(int64(43), nil)

	snap, err := h.checkout.PlaceOrder(ctx, testUserID, usecase.PlaceOrderInput{
		BuyNow:  &model.BuyNowSelection{ProductID: 2, Quantity: 1},
		Address: model.Address{Text: "somewhere"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(43), snap.OrderID)

	//前の注文の残りステップは実行済み
	h.catalog.AssertNumberOfCalls(t, "ReduceStock", 3)
	h.carts.AssertNumberOfCalls(t, "ClearCart", 1)
	steps, err := h.steps.ListByOrderID(ctx, testOrderID)
	require.NoError(t, err)
	require.NotEmpty(t, steps)
	for _, s := range steps {
		assert.Equal(t, model.CleanupStatusDone, s.Status)
	}
}

// Test: 前の注文の後処理がまだ失敗するなら409。支払い済みスナップショットは残す
func TestCheckout_PlaceOrder_PreviousCleanupStillFailing(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	seedBuyNow(t, h)
	h.wallet.On("Balance", mock.Anything).Return(decimal.NewFromInt(5000), nil)
	h.wallet.On("Transfer", mock.Anything, mock.Anything, int64(800)).Return(nil)
	h.orders.On("UpdateStatus", mock.Anything, testOrderID, model.OrderStatusPaid).Return(nil)
	h.catalog.On("ReduceStock", mock.Anything, int64(1), int64(1)).Return(errors.New("boom"))

	_, err := h.payment.PayWithWallet(ctx, testUserID, usecase.PayInput{})
	require.NoError(t, err)

	_, err = h.checkout.PlaceOrder(ctx, testUserID, usecase.PlaceOrderInput{
		BuyNow:  &model.BuyNowSelection{ProductID: 2, Quantity: 1},
		Address: model.Address{Text: "somewhere"},
	})
	he := assertHTTPError(t, err, http.StatusConflict, "still being finalized")
	assert.Equal(t, usecase.KindConflict, he.Kind)
	h.orders.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)

	snap, err := h.snapshots.FindByUserID(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, testOrderID, snap.OrderID)
	assert.Equal(t, model.OrderStatusPaid, snap.Status)
}

// Test: 結果不明の送金が残る注文は上書きしない（再試行キーを失わない）
func TestCheckout_PlaceOrder_RefusesWhilePaymentUnresolved(t *testing.T) {
	for _, st := range []model.AttemptStatus{
		model.AttemptStatusTransferUnknown,
		model.AttemptStatusTransferred,
		model.AttemptStatusInconsistent,
	} {
		t.Run(string(st), func(t *testing.T) {
			h := newHarness()
			ctx := context.Background()
			snap := seedBuyNow(t, h)
			require.NoError(t, h.attempts.Create(ctx, model.PaymentAttempt{
				ID: "a-1", OrderID: snap.OrderID, UserID: testUserID, IdempotencyKey: "k-1",
				Method: model.PaymentMethodWallet, Amount: 800, Status: st,
			}))

			_, err := h.checkout.PlaceOrder(ctx, testUserID, usecase.PlaceOrderInput{
				BuyNow:  &model.BuyNowSelection{ProductID: 2, Quantity: 1},
				Address: model.Address{Text: "somewhere"},
			})
			assertHTTPError(t, err, http.StatusConflict, "")
			h.orders.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)

			cur, err := h.snapshots.FindByUserID(ctx, testUserID)
			require.NoError(t, err)
			assert.Equal(t, testOrderID, cur.OrderID)
		})
	}
}

// Test: お金が動いていない未払い注文は新しい注文で置き換えてよい
func TestCheckout_PlaceOrder_ReplacesAbandonedOrder(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	snap := seedBuyNow(t, h)
	require.NoError(t, h.attempts.Create(ctx, model.PaymentAttempt{
		ID: "a-1", OrderID: snap.OrderID, UserID: testUserID, IdempotencyKey: "k-1",
		Method: model.PaymentMethodWallet, Amount: 800, Status: model.AttemptStatusFailed,
	}))
	h.catalog.On("ListProducts", mock.Anything).Return(testProducts(), nil)
	h.orders.On("CreateOrder", mock.Anything, mock.Anything).Return(int64(43), nil)

	next, err := h.checkout.PlaceOrder(ctx, testUserID, usecase.PlaceOrderInput{
		BuyNow:  &model.BuyNowSelection{ProductID: 2, Quantity: 1},
		Address: model.Address{Text: "somewhere"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(43), next.OrderID)
}
