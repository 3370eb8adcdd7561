package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"storefront/internal/domain/model"
	"storefront/internal/pricing"
	repo "storefront/internal/repository"
	reqvalidator "storefront/internal/validator"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type CheckoutUsecase struct {
	catalog   repo.CatalogGateway
	carts     repo.CartGateway
	orders    repo.OrderGateway
	snapshots repo.SnapshotRepository
	locker    repo.InflightLocker
	payments  *PaymentUsecase
	policy    pricing.Policy
	validate  *validator.Validate
	log       *zap.Logger
}

// DI
func NewCheckoutUsecase(
	catalog repo.CatalogGateway,
	carts repo.CartGateway,
	orders repo.OrderGateway,
	snapshots repo.SnapshotRepository,
	locker repo.InflightLocker,
	payments *PaymentUsecase,
	policy pricing.Policy,
	log *zap.Logger,
) *CheckoutUsecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &CheckoutUsecase{
		catalog:   catalog,
		carts:     carts,
		orders:    orders,
		snapshots: snapshots,
		locker:    locker,
		payments:  payments,
		policy:    policy,
		validate:  reqvalidator.New(),
		log:       log,
	}
}

type ResolveInput struct {
	BuyNow      *model.BuyNowSelection
	VoucherCode string
}

type UpdateQuantityInput struct {
	BuyNow      *model.BuyNowSelection
	CartItemID  int64
	Quantity    int64
	VoucherCode string
}

type PlaceOrderInput struct {
	BuyNow      *model.BuyNowSelection
	Address     model.Address
	VoucherCode string
}

// 画面表示用の1行
type CheckoutLine struct {
	ProductID  int64  `json:"product_id"`
	CartItemID int64  `json:"cart_item_id,omitempty"`
	Name       string `json:"name"`
	ImageURL   string `json:"image_url,omitempty"`
	Quantity   int64  `json:"quantity"`
	Stock      int64  `json:"stock"`
	UnitPrice  int64  `json:"unit_price"`
	LineTotal  int64  `json:"line_total"`
}

type CheckoutView struct {
	Mode      model.CheckoutMode   `json:"mode"`
	Lines     []CheckoutLine       `json:"lines"`
	Breakdown model.PriceBreakdown `json:"breakdown"`
}

// 解決済みの1行（商品はカタログから引いたもの）
type resolvedLine struct {
	product    model.Product
	cartItemID int64
	quantity   int64
}

// Resolve はチェックアウト画面の中身を組み立てる。
// buy-nowの指定があればその1商品、なければサーバーのカート。
func (u *CheckoutUsecase) Resolve(ctx context.Context, userID int64, in ResolveInput) (CheckoutView, error) {
	mode, lines, err := u.resolveLines(ctx, userID, in.BuyNow, true)
	if err != nil {
		return CheckoutView{}, err
	}
	return u.view(mode, lines, in.VoucherCode)
}

// UpdateQuantity はbuy-nowなら手元で計算し直すだけ、カートならサーバーに書いてから読み直す。
func (u *CheckoutUsecase) UpdateQuantity(ctx context.Context, userID int64, in UpdateQuantityInput) (CheckoutView, error) {
	if in.Quantity < 1 {
		return CheckoutView{}, ValidationError("invalid quantity")
	}

	if in.BuyNow.Active() {
		sel := *in.BuyNow
		sel.Quantity = in.Quantity
		return u.Resolve(ctx, userID, ResolveInput{BuyNow: &sel, VoucherCode: in.VoucherCode})
	}

	if userID <= 0 {
		return CheckoutView{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.CartItemID <= 0 {
		return CheckoutView{}, ValidationError("invalid cart_item_id")
	}

	//在庫を超えないように収めてから書く
	_, lines, err := u.resolveLines(ctx, userID, nil, false)
	if err != nil {
		return CheckoutView{}, err
	}
	var target *resolvedLine
	for i := range lines {
		if lines[i].cartItemID == in.CartItemID {
			target = &lines[i]
			break
		}
	}
	if target == nil {
		return CheckoutView{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	qty := target.product.ClampQuantity(in.Quantity)
	if qty < 1 {
		return CheckoutView{}, ValidationError("out of stock")
	}

	if _, err := u.carts.UpdateItem(ctx, userID, in.CartItemID, qty); err != nil {
		return CheckoutView{}, remoteError(err)
	}

	//サーバーのカートが正
	return u.Resolve(ctx, userID, ResolveInput{VoucherCode: in.VoucherCode})
}

// PlaceOrder は注文を作り、支払い画面に渡すスナップショットを保存する。
// 価格はここで計算し直し、画面から送られた金額は使わない。
func (u *CheckoutUsecase) PlaceOrder(ctx context.Context, userID int64, in PlaceOrderInput) (model.OrderSnapshot, error) {
	if userID <= 0 {
		return model.OrderSnapshot{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	//ネットワークに出る前に入力チェック
	if in.Address.IsEmpty() {
		return model.OrderSnapshot{}, ValidationError("address required")
	}
	if err := u.validate.Struct(in.Address); err != nil {
		return model.OrderSnapshot{}, ValidationError("invalid address")
	}
	buyNow := in.BuyNow.Active()
	if buyNow {
		if in.BuyNow.Quantity < 0 {
			return model.OrderSnapshot{}, ValidationError("invalid quantity")
		}
	}
	if _, err := u.policy.VoucherPercent(in.VoucherCode); err != nil {
		return model.OrderSnapshot{}, ValidationError("invalid voucher code")
	}

	//二重送信防止
	release, err := u.locker.Acquire(ctx, orderSubmitKey(userID))
	if errors.Is(err, repo.ErrLocked) {
		return model.OrderSnapshot{}, ConflictError("order submission in progress")
	}
	if err != nil {
		return model.OrderSnapshot{}, NewHTTPError(http.StatusInternalServerError, "lock error")
	}
	defer release()

	//前の注文を片付けてから上書きする
	if err := u.payments.settlePrevious(ctx, userID); err != nil {
		return model.OrderSnapshot{}, err
	}

	//送信時は収めずに在庫と突き合わせる
	var sel *model.BuyNowSelection
	if buyNow {
		sel = in.BuyNow
	}
	_, lines, err := u.resolveLines(ctx, userID, sel, false)
	if err != nil {
		return model.OrderSnapshot{}, err
	}
	if len(lines) == 0 {
		return model.OrderSnapshot{}, ValidationError("nothing to order")
	}
	for _, l := range lines {
		if l.product.Stock <= 0 {
			return model.OrderSnapshot{}, ValidationError(fmt.Sprintf("out of stock: %s", l.product.Name))
		}
		if l.quantity < 1 {
			return model.OrderSnapshot{}, ValidationError("invalid quantity")
		}
		if l.quantity > l.product.Stock {
			return model.OrderSnapshot{}, ValidationError(fmt.Sprintf("stock exceeded: %s", l.product.Name))
		}
	}

	quote, err := pricing.Calculate(u.policy, pricedLines(lines), in.VoucherCode)
	if err != nil {
		return model.OrderSnapshot{}, ValidationError("invalid voucher code")
	}
	if quote.Breakdown.Total <= 0 {
		return model.OrderSnapshot{}, ValidationError("invalid total")
	}

	address := in.Address.String()
	orderID, err := u.orders.CreateOrder(ctx, repo.CreateOrderRequest{
		UserID:     userID,
		Address:    address,
		TotalPrice: quote.Breakdown.Total,
		BuyNow:     buyNow,
		Items:      quote.Lines,
	})
	if err != nil {
		return model.OrderSnapshot{}, remoteError(err)
	}

	snap, err := model.NewOrderSnapshot(userID, orderID, buyNow, address, quote.Lines, quote.Breakdown)
	if err != nil {
		return model.OrderSnapshot{}, NewHTTPError(http.StatusInternalServerError, "snapshot error")
	}
	if err := u.snapshots.Save(ctx, snap); err != nil {
		//リモートには注文がある。支払い画面に進めないのでログに残す
		u.log.Error("save order snapshot failed",
			zap.Int64("user_id", userID),
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)
		return model.OrderSnapshot{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	u.log.Info("order placed",
		zap.Int64("user_id", userID),
		zap.Int64("order_id", orderID),
		zap.Bool("buy_now", buyNow),
		zap.Int64("total", quote.Breakdown.Total),
	)
	return snap, nil
}

// resolveLines はbuy-now/カートの明細を商品情報と突き合わせる。
// clampがtrueなら数量を[1, stock]に収める（表示用）。
func (u *CheckoutUsecase) resolveLines(ctx context.Context, userID int64, sel *model.BuyNowSelection, clamp bool) (model.CheckoutMode, []resolvedLine, error) {
	mode := model.CheckoutModeCart
	var wanted []resolvedLine

	if sel.Active() {
		mode = model.CheckoutModeBuyNow
		qty := sel.Quantity
		if qty == 0 {
			qty = 1
		}
		wanted = append(wanted, resolvedLine{product: model.Product{ID: sel.ProductID}, quantity: qty})
	} else {
		//カートはログイン必須（呼び出し側でログインへ）
		if userID <= 0 {
			return "", nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
		cart, err := u.carts.GetCart(ctx, userID)
		if err != nil {
			//カート未作成は空扱い
			if re, ok := repo.AsRemoteError(err); ok && re.StatusCode == http.StatusNotFound {
				cart = model.Cart{UserID: userID}
			} else {
				return "", nil, remoteError(err)
			}
		}
		for _, it := range cart.Items {
			wanted = append(wanted, resolvedLine{
				product:    model.Product{ID: it.ProductID},
				cartItemID: it.ID,
				quantity:   it.Quantity,
			})
		}
	}

	if len(wanted) == 0 {
		return mode, []resolvedLine{}, nil
	}

	products, err := u.catalog.ListProducts(ctx)
	if err != nil {
		return "", nil, remoteError(err)
	}
	byID := make(map[int64]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	out := make([]resolvedLine, 0, len(wanted))
	for _, w := range wanted {
		p, ok := byID[w.product.ID]
		if !ok {
			//カタログから消えた商品は出さない
			u.log.Debug("product missing from catalog", zap.Int64("product_id", w.product.ID))
			continue
		}
		w.product = p
		if clamp {
			w.quantity = p.ClampQuantity(w.quantity)
		}
		out = append(out, w)
	}
	return mode, out, nil
}

func (u *CheckoutUsecase) view(mode model.CheckoutMode, lines []resolvedLine, voucherCode string) (CheckoutView, error) {
	quote, err := pricing.Calculate(u.policy, pricedLines(lines), voucherCode)
	if errors.Is(err, pricing.ErrUnknownVoucher) {
		return CheckoutView{}, ValidationError("invalid voucher code")
	}
	if err != nil {
		return CheckoutView{}, err
	}

	out := CheckoutView{Mode: mode, Lines: make([]CheckoutLine, 0, len(lines)), Breakdown: quote.Breakdown}
	for _, l := range lines {
		out.Lines = append(out.Lines, CheckoutLine{
			ProductID:  l.product.ID,
			CartItemID: l.cartItemID,
			Name:       l.product.Name,
			ImageURL:   l.product.ImageURL,
			Quantity:   l.quantity,
			Stock:      l.product.Stock,
			UnitPrice:  pricing.UnitPrice(l.product),
			LineTotal:  pricing.LineTotal(l.product, l.quantity),
		})
	}
	return out, nil
}

func pricedLines(lines []resolvedLine) []pricing.PricedLine {
	out := make([]pricing.PricedLine, 0, len(lines))
	for i := range lines {
		out = append(out, pricing.PricedLine{
			Product:    &lines[i].product,
			CartItemID: lines[i].cartItemID,
			Quantity:   lines[i].quantity,
		})
	}
	return out
}

func orderSubmitKey(userID int64) string {
	return fmt.Sprintf("order-submit:%d", userID)
}

func paymentKey(orderID int64) string {
	return fmt.Sprintf("pay:%d", orderID)
}
