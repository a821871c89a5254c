package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusCancelled:
		return true
	}
	return false
}

type Order struct {
	ID           int             `json:"id"`
	UserID       int             `json:"user_id"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Status       OrderStatus     `json:"status"`
	Description  string          `json:"description,omitempty"`
	ContactEmail string          `json:"contact_email,omitempty"`
	Items        []OrderItem     `json:"items"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type OrderItem struct {
	ID        int             `json:"id"`
	OrderID   int             `json:"order_id"`
	ProductID int             `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Product   *Product        `json:"product,omitempty"`
}

// Subtotal is the snapshot price times quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderLine is one requested (product, quantity) pair.
type OrderLine struct {
	ProductID int `json:"product_id" binding:"required,gt=0"`
	Quantity  int `json:"quantity" binding:"required,gte=1"`
}

type CreateOrderRequest struct {
	Items []OrderLine `json:"items" binding:"required,min=1,dive"`
}

// PaymentOnlyOrder creates an order with a total but no line items.
type PaymentOnlyOrder struct {
	Price       decimal.Decimal
	Description string
	BuyerRef    string
	Email       string
}

type StripeOrderRequest struct {
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description" binding:"required"`
	Email       string          `json:"email" binding:"required,email"`
	SuccessURL  string          `json:"success_url" binding:"required,url"`
	CancelURL   string          `json:"cancel_url" binding:"required,url"`
}

type OrderEvent struct {
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"` // order_created, order_cancelled, order_seller_cancelled, order_status_changed
	OrderID     int             `json:"order_id"`
	UserID      int             `json:"user_id"`
	ActorID     int             `json:"actor_id,omitempty"`
	Status      OrderStatus     `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []OrderItem     `json:"items,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
