package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"shop-svc/apperr"
	"shop-svc/circuitbreaker"
	"shop-svc/config"
	"shop-svc/middleware"
	"shop-svc/models"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
)

// CheckoutParams describes a single-line checkout for one order.
type CheckoutParams struct {
	OrderID     int
	Amount      decimal.Decimal
	Description string
	Email       string
	SuccessURL  string
	CancelURL   string
}

// WebhookEvent is the verified subset of a Stripe event the shop acts on.
type WebhookEvent struct {
	ID            string
	Type          string
	SessionID     string
	OrderID       int
	PaymentStatus string
}

type StripeNotifier struct {
	sessions      session.Client
	webhookSecret string
	currency      string
	breaker       *circuitbreaker.CircuitBreaker
	logger        *zap.Logger
	tracer        trace.Tracer
}

// NewStripeNotifier builds a notifier on backend, or on the default Stripe
// API backend when backend is nil.
func NewStripeNotifier(cfg config.Config, backend stripe.Backend, logger *zap.Logger) *StripeNotifier {
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}

	breaker := circuitbreaker.NewCircuitBreaker("stripe", 5, 30*time.Second,
		circuitbreaker.WithFailurePredicate(isProviderFailure),
		circuitbreaker.WithStateChange(func(name string, from, to circuitbreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}),
	)

	return &StripeNotifier{
		sessions:      session.Client{B: backend, Key: cfg.StripeSecretKey},
		webhookSecret: cfg.StripeWebhookSecret,
		currency:      cfg.StripeCurrency,
		breaker:       breaker,
		logger:        logger,
		tracer:        otel.Tracer("shop-service"),
	}
}

// ToMinorUnits converts an amount to cents, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func (n *StripeNotifier) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*models.CheckoutSession, error) {
	ctx, span := n.tracer.Start(ctx, "payment.CreateCheckoutSession")
	defer span.End()
	span.SetAttributes(attribute.Int("order.id", p.OrderID))

	unitAmount := ToMinorUnits(p.Amount)
	if unitAmount <= 0 {
		return nil, apperr.InvalidInput("amount must be greater than zero")
	}

	description := strings.TrimSpace(p.Description)
	if description == "" {
		description = fmt.Sprintf("Order #%d", p.OrderID)
	}
	orderRef := strconv.Itoa(p.OrderID)

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		ClientReferenceID:  stripe.String(orderRef),
		SuccessURL:         stripe.String(p.SuccessURL),
		CancelURL:          stripe.String(p.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(n.currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(description),
					},
					UnitAmount: stripe.Int64(unitAmount),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	if p.Email != "" {
		params.CustomerEmail = stripe.String(p.Email)
	}
	params.Context = ctx
	params.AddMetadata("order_id", orderRef)

	var sess *stripe.CheckoutSession
	err := n.breaker.Execute(ctx, func() error {
		var err error
		sess, err = n.sessions.New(params)
		return err
	})
	if err != nil {
		span.RecordError(err)
		n.logger.Error("Failed to create checkout session",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.Int("order_id", p.OrderID),
			zap.Error(err),
		)
		return nil, classify(err)
	}

	n.logger.Info("Checkout session created",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("order_id", p.OrderID),
		zap.String("session_id", sess.ID),
		zap.Int64("unit_amount", unitAmount),
	)
	return &models.CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// ParseWebhook verifies the signature header and decodes the event.
func (n *StripeNotifier) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, n.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindInvalidInput, Message: "invalid webhook signature", Err: err}
	}

	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if event.Type != EventCheckoutCompleted && event.Type != EventCheckoutExpired {
		return out, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, apperr.InvalidInput("malformed checkout session in event %s", event.ID)
	}
	out.SessionID = sess.ID
	out.PaymentStatus = string(sess.PaymentStatus)

	ref := sess.ClientReferenceID
	if ref == "" {
		ref = sess.Metadata["order_id"]
	}
	orderID, err := strconv.Atoi(ref)
	if err != nil || orderID <= 0 {
		return nil, apperr.InvalidInput("event %s carries no order reference", event.ID)
	}
	out.OrderID = orderID
	return out, nil
}

// isProviderFailure keeps request errors such as invalid parameters from
// opening the breaker.
func isProviderFailure(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == 0 || stripeErr.HTTPStatusCode >= 500 || stripeErr.HTTPStatusCode == 429
	}
	return err != nil
}

func classify(err error) error {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return apperr.PartialFailure(err)
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && !isProviderFailure(err) {
		return &apperr.Error{Kind: apperr.KindInvalidInput, Message: stripeErr.Msg, Err: err}
	}
	return apperr.PartialFailure(err)
}
