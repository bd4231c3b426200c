package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"fscabinet/server/internal/services"
)

// OrderController - JSON API корзины, оформления и оплаты заказа
type OrderController struct {
	carts    *services.CartService
	orders   *services.OrderService
	payments *services.PaymentService
}

// NewOrderController создает контроллер заказов
func NewOrderController(carts *services.CartService, orders *services.OrderService, payments *services.PaymentService) *OrderController {
	return &OrderController{carts: carts, orders: orders, payments: payments}
}

// AddToCart добавляет позицию с набором допов
// POST /api/v1/order/add-to-cart/
func (oc *OrderController) AddToCart(c *gin.Context) {
	var req services.AddToCartRequest
	if !bindJSON(c, &req) {
		return
	}
	total, err := oc.carts.AddToCart(c.Request.Context(), requestContext(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total_amount": total})
}

// IncreaseCount увеличивает количество в строке корзины
// POST /api/v1/order/increase-count/
func (oc *OrderController) IncreaseCount(c *gin.Context) {
	oc.changeCount(c, oc.carts.IncreaseCount)
}

// DecreaseCount уменьшает количество в строке корзины (не ниже 1)
// POST /api/v1/order/decrease-count/
func (oc *OrderController) DecreaseCount(c *gin.Context) {
	oc.changeCount(c, oc.carts.DecreaseCount)
}

type countChanger func(ctx context.Context, rc services.RequestContext, req services.CartItemRequest) (services.CartItemSummary, error)

func (oc *OrderController) changeCount(c *gin.Context, change countChanger) {
	var req services.CartItemRequest
	if !bindJSON(c, &req) {
		return
	}
	summary, err := change(c.Request.Context(), requestContext(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":                  summary.Count,
		"cart_item_total_amount": summary.CartItemTotalAmount,
		"total_amount":           summary.TotalAmount,
	})
}

// RemoveCartItem удаляет строку корзины
// POST /api/v1/order/remove-cart-item/
func (oc *OrderController) RemoveCartItem(c *gin.Context) {
	var req services.CartItemRequest
	if !bindJSON(c, &req) {
		return
	}
	total, err := oc.carts.RemoveCartItem(c.Request.Context(), requestContext(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total_amount": total})
}

// RemoveCartItemAddition убирает доп из строки корзины
// POST /api/v1/order/remove-cart-item-addition/
func (oc *OrderController) RemoveCartItemAddition(c *gin.Context) {
	var req services.RemoveAdditionRequest
	if !bindJSON(c, &req) {
		return
	}
	summary, err := oc.carts.RemoveCartItemAddition(c.Request.Context(), requestContext(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cart_item_total_amount": summary.CartItemTotalAmount,
		"total_amount":           summary.TotalAmount,
	})
}

// ClearCart очищает корзину
// POST /api/v1/order/clear/
func (oc *OrderController) ClearCart(c *gin.Context) {
	if err := oc.carts.ClearCart(c.Request.Context(), requestContext(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

// CreateOrder оформляет заказ из корзины
// POST /api/v1/order/create/
func (oc *OrderController) CreateOrder(c *gin.Context) {
	var req services.CreateOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	order, err := oc.orders.CreateOrder(c.Request.Context(), requestContext(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_required": order.IsPaymentRequired()})
}

// RejectOrder - покупатель отказывается от неоплаченного заказа
// POST /api/v1/order/reject/
func (oc *OrderController) RejectOrder(c *gin.Context) {
	if err := oc.payments.RejectCurrentOrder(c.Request.Context(), requestContext(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

// PaymentCallback - тело коллбека LiqPay
type PaymentCallback struct {
	Data      string `json:"data" form:"data"`
	Signature string `json:"signature" form:"signature"`
}

// ConfirmPayment принимает коллбек LiqPay (form-urlencoded или JSON).
// После проверки подписи отвечает 200 и при неуспешной оплате, чтобы шлюз не повторял запрос.
// POST /api/v1/order/payment/confirm/
func (oc *OrderController) ConfirmPayment(c *gin.Context) {
	var req PaymentCallback
	if err := c.ShouldBind(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if req.Data == "" || req.Signature == "" {
		log.Warn().Str("ip", c.ClientIP()).Msg("⚠️ Коллбек LiqPay без data/signature")
		respondError(c, services.ErrInvalidSignature)
		return
	}
	if err := oc.payments.ConfirmGatewayPayment(c.Request.Context(), req.Data, req.Signature); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}
