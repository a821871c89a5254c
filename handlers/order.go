package handlers

import (
	"context"
	"net/http"
	"strconv"

	"shop-svc/middleware"
	"shop-svc/models"
	"shop-svc/payment"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderWorkflow is the order engine behind the order and payment routes.
type OrderWorkflow interface {
	CreateOrder(ctx context.Context, buyerID int, lines []models.OrderLine) (*models.Order, error)
	GetOrdersForUser(ctx context.Context, userID int) ([]models.Order, error)
	GetOrder(ctx context.Context, orderID, userID int) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID, userID int) (*models.Order, error)
	CancelOrderAsSeller(ctx context.Context, orderID, sellerID int) (*models.Order, error)
	SetOrderStatus(ctx context.Context, orderID int, status models.OrderStatus) (*models.Order, error)
	CreatePaymentOnlyOrder(ctx context.Context, req models.PaymentOnlyOrder) (*models.Order, error)
}

type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, p payment.CheckoutParams) (*models.CheckoutSession, error)
}

type OrderHandler struct {
	orders   OrderWorkflow
	checkout CheckoutProvider
	logger   *zap.Logger
}

func NewOrderHandler(orders OrderWorkflow, checkout CheckoutProvider, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		checkout: checkout,
		logger:   logger,
	}
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "CreateOrder")
	defer span.End()

	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	order, err := h.orders.CreateOrder(ctx, middleware.CurrentUserID(c), req.Items)
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}

	span.SetAttributes(attribute.Int("order.id", order.ID))
	respond(c, http.StatusCreated, "Order created successfully", order)
}

func (h *OrderHandler) GetOrders(c *gin.Context) {
	orders, err := h.orders.GetOrdersForUser(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Orders fetched successfully", orders)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), id, middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Order fetched successfully", order)
}

func (h *OrderHandler) CancelOrder(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.CancelOrder(c.Request.Context(), id, middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Order cancelled successfully", order)
}

func (h *OrderHandler) SellerCancelOrder(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.CancelOrderAsSeller(c.Request.Context(), id, middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Order cancelled successfully", order)
}

// CreateStripeOrder records a payment-only order for the caller and opens a
// checkout session for it. A failed checkout leaves the order pending.
func (h *OrderHandler) CreateStripeOrder(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "CreateStripeOrder")
	defer span.End()

	var req models.StripeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	order, err := h.orders.CreatePaymentOnlyOrder(ctx, models.PaymentOnlyOrder{
		Price:       req.Price,
		Description: req.Description,
		BuyerRef:    strconv.Itoa(middleware.CurrentUserID(c)),
		Email:       req.Email,
	})
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}

	session, err := h.checkout.CreateCheckoutSession(ctx, payment.CheckoutParams{
		OrderID:     order.ID,
		Amount:      order.TotalAmount,
		Description: order.Description,
		Email:       req.Email,
		SuccessURL:  req.SuccessURL,
		CancelURL:   req.CancelURL,
	})
	if err != nil {
		span.RecordError(err)
		h.logger.Warn("Order left pending without checkout session",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.Int("order_id", order.ID),
			zap.Error(err),
		)
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusCreated, "Checkout session created", gin.H{
		"order":      order,
		"session_id": session.ID,
		"url":        session.URL,
	})
}
