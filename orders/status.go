package orders

import "shop-svc/models"

// StatusPolicy controls how SetOrderStatus treats the current status.
type StatusPolicy string

const (
	// PolicyStrict only lets a payment callback confirm a pending order.
	PolicyStrict StatusPolicy = "strict"
	// PolicyOverwrite writes whatever status the notifier reports.
	PolicyOverwrite StatusPolicy = "overwrite"
)

func IsTerminal(s models.OrderStatus) bool {
	return s == models.OrderStatusPaid || s == models.OrderStatusCancelled
}

// CanTransition reports whether an order may move from one status to the
// other. PENDING is the only non-terminal status.
func CanTransition(from, to models.OrderStatus) bool {
	return from == models.OrderStatusPending && IsTerminal(to)
}

// canApplyPayment is the strict-policy rule for callbacks: cancellation
// must go through the cancel operations so stock is released.
func canApplyPayment(from, to models.OrderStatus) bool {
	return from == models.OrderStatusPending && to == models.OrderStatusPaid
}
