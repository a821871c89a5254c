package models

import "github.com/shopspring/decimal"

type CheckoutRequest struct {
	OrderID int    `json:"order_id" binding:"required,gt=0"`
	Email   string `json:"email" binding:"required,email"`
}

// CheckoutSession is the provider session a buyer is redirected to.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type PaymentStatus string

const (
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// PaymentEvent is consumed from the payment events topic.
type PaymentEvent struct {
	PaymentID     int             `json:"payment_id"`
	OrderID       int             `json:"order_id"`
	UserID        int             `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        PaymentStatus   `json:"status"`
	EventType     string          `json:"event_type"` // payment_success, payment_failed
	TransactionID string          `json:"transaction_id"`
}
