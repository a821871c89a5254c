package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"shop-svc/apperr"
	"shop-svc/middleware"
	"shop-svc/models"
	"shop-svc/payment"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	maxWebhookBody  = 64 << 10
	webhookEventTTL = 24 * time.Hour
)

type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*payment.WebhookEvent, error)
}

// EventRegistry remembers processed provider events.
type EventRegistry interface {
	MarkEventProcessed(ctx context.Context, source, eventID string, ttl time.Duration) (bool, error)
	ForgetEvent(ctx context.Context, source, eventID string) error
}

type PaymentHandler struct {
	orders      OrderWorkflow
	checkout    CheckoutProvider
	webhooks    WebhookParser
	events      EventRegistry
	frontendURL string
	logger      *zap.Logger
}

func NewPaymentHandler(orders OrderWorkflow, checkout CheckoutProvider, webhooks WebhookParser, events EventRegistry, frontendURL string, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		orders:      orders,
		checkout:    checkout,
		webhooks:    webhooks,
		events:      events,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// Checkout opens a checkout session for a pending order of the caller,
// charging the stored order total.
func (h *PaymentHandler) Checkout(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "Checkout")
	defer span.End()

	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	span.SetAttributes(attribute.Int("order.id", req.OrderID))

	order, err := h.orders.GetOrder(ctx, req.OrderID, middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if order.Status != models.OrderStatusPending {
		respondError(c, h.logger, apperr.InvalidState("Only pending orders can be paid"))
		return
	}

	session, err := h.checkout.CreateCheckoutSession(ctx, payment.CheckoutParams{
		OrderID:     order.ID,
		Amount:      order.TotalAmount,
		Description: order.Description,
		Email:       req.Email,
		SuccessURL:  fmt.Sprintf("%s/orders/%d/success?session_id={CHECKOUT_SESSION_ID}", h.frontendURL, order.ID),
		CancelURL:   fmt.Sprintf("%s/orders/%d/cancel", h.frontendURL, order.ID),
	})
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusCreated, "Checkout session created", session)
}

// Webhook receives Stripe events. Event types that are not acted on are
// acknowledged with 2xx; a completed checkout that cannot be applied is
// rejected so Stripe retries it.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "StripeWebhook")
	defer span.End()

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		respondError(c, h.logger, apperr.InvalidInput("failed to read request body"))
		return
	}

	event, err := h.webhooks.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		middleware.RecordPaymentCallback("stripe", "rejected")
		h.logger.Warn("Rejected webhook", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Error(err))
		respondError(c, h.logger, err)
		return
	}
	span.SetAttributes(attribute.String("event.id", event.ID), attribute.String("event.type", event.Type))

	first, err := h.events.MarkEventProcessed(ctx, "stripe", event.ID, webhookEventTTL)
	if err != nil {
		// Marking status is idempotent, so processing without the marker is safe.
		h.logger.Warn("Webhook de-duplication unavailable", zap.String("event_id", event.ID), zap.Error(err))
		first = true
	}
	if !first {
		middleware.RecordPaymentCallback("stripe", "duplicate")
		c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": true})
		return
	}

	switch event.Type {
	case payment.EventCheckoutCompleted:
		_, err := h.orders.SetOrderStatus(ctx, event.OrderID, models.OrderStatusPaid)
		if err != nil {
			// Clear the marker so a redelivery is processed again.
			span.RecordError(err)
			middleware.RecordPaymentCallback("stripe", "failed")
			if ferr := h.events.ForgetEvent(ctx, "stripe", event.ID); ferr != nil {
				h.logger.Warn("Failed to clear webhook marker", zap.String("event_id", event.ID), zap.Error(ferr))
			}
			h.logger.Warn("Payment callback not applied",
				zap.String("trace_id", middleware.GetTraceID(ctx)),
				zap.String("event_id", event.ID),
				zap.Int("order_id", event.OrderID),
				zap.Error(err),
			)
			respondError(c, h.logger, err)
			return
		}
		middleware.RecordPaymentCallback("stripe", "applied")
		h.logger.Info("Order paid",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("event_id", event.ID),
			zap.Int("order_id", event.OrderID),
			zap.String("session_id", event.SessionID),
		)
	case payment.EventCheckoutExpired:
		middleware.RecordPaymentCallback("stripe", "ignored")
		h.logger.Info("Checkout session expired",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.Int("order_id", event.OrderID),
			zap.String("session_id", event.SessionID),
		)
	default:
		middleware.RecordPaymentCallback("stripe", "ignored")
		h.logger.Debug("Unhandled webhook event", zap.String("event_type", event.Type))
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
