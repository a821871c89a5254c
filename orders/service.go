package orders

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"shop-svc/apperr"
	"shop-svc/middleware"
	"shop-svc/models"
	"shop-svc/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	EventOrderCreated         = "order_created"
	EventOrderCancelled       = "order_cancelled"
	EventOrderSellerCancelled = "order_seller_cancelled"
	EventOrderStatusChanged   = "order_status_changed"
)

// Store is the catalog and order persistence the workflow depends on.
type Store interface {
	GetProduct(ctx context.Context, id int) (*models.Product, error)
	GetOrderForUser(ctx context.Context, orderID, userID int) (*models.Order, error)
	ListOrdersForUser(ctx context.Context, userID int) ([]models.Order, error)
	AttachItems(ctx context.Context, orders []models.Order) error
	InsertOrder(ctx context.Context, o *models.Order) error
	RunAtomic(ctx context.Context, fn func(q *store.Queries) error) error
}

type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event models.OrderEvent) error
}

type ProductCache interface {
	InvalidateProducts(ctx context.Context, ids ...int)
}

type Service struct {
	store     Store
	publisher EventPublisher
	cache     ProductCache
	policy    StatusPolicy
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewService wires the order workflow. publisher and cache may be nil.
func NewService(st Store, publisher EventPublisher, cache ProductCache, policy StatusPolicy, logger *zap.Logger) *Service {
	if policy != PolicyOverwrite {
		policy = PolicyStrict
	}
	return &Service{
		store:     st,
		publisher: publisher,
		cache:     cache,
		policy:    policy,
		logger:    logger,
		tracer:    otel.Tracer("shop-service"),
		now:       time.Now,
	}
}

// CreateOrder validates every line against the catalog, then reserves stock
// and writes the order with its items in one transaction.
func (s *Service) CreateOrder(ctx context.Context, buyerID int, lines []models.OrderLine) (*models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.CreateOrder")
	defer span.End()
	span.SetAttributes(attribute.Int("user_id", buyerID), attribute.Int("order.lines", len(lines)))

	if len(lines) == 0 {
		return nil, apperr.InvalidInput("order must contain at least one item")
	}
	for i, line := range lines {
		if line.ProductID <= 0 {
			return nil, apperr.InvalidInput("item %d: product_id must be positive", i+1)
		}
		if line.Quantity < 1 {
			return nil, apperr.InvalidInput("item %d: quantity must be at least 1", i+1)
		}
	}

	// Validation pass. Nothing is written until every line is known to fit.
	for _, line := range lines {
		p, err := s.store.GetProduct(ctx, line.ProductID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("Product %d not found", line.ProductID)
		}
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to load product %d: %w", line.ProductID, err)
		}
		if p.Stock < line.Quantity {
			return nil, &apperr.InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Title,
				Requested:   line.Quantity,
				Available:   p.Stock,
			}
		}
	}

	var order *models.Order
	err := s.atomic(ctx, func(q *store.Queries) error {
		locked, err := q.LockProducts(ctx, productIDs(lines))
		if err != nil {
			return err
		}

		// Re-check against the locked rows; remaining tracks repeated
		// products within the same order.
		remaining := make(map[int]int, len(locked))
		for id, p := range locked {
			remaining[id] = p.Stock
		}

		items := make([]models.OrderItem, 0, len(lines))
		total := decimal.Zero
		for _, line := range lines {
			p, ok := locked[line.ProductID]
			if !ok {
				return apperr.NotFound("Product %d not found", line.ProductID)
			}
			if remaining[p.ID] < line.Quantity {
				middleware.RecordStockConflict()
				return &apperr.InsufficientStockError{
					ProductID:   p.ID,
					ProductName: p.Title,
					Requested:   line.Quantity,
					Available:   remaining[p.ID],
				}
			}
			remaining[p.ID] -= line.Quantity

			item := models.OrderItem{ProductID: p.ID, Quantity: line.Quantity, Price: p.Price}
			total = total.Add(item.Subtotal())
			items = append(items, item)
		}

		order = &models.Order{
			UserID:      buyerID,
			TotalAmount: total,
			Status:      models.OrderStatusPending,
		}
		if err := q.InsertOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}

		for i := range items {
			items[i].OrderID = order.ID
			if err := q.InsertOrderItem(ctx, &items[i]); err != nil {
				return fmt.Errorf("failed to insert order item: %w", err)
			}
		}

		for _, line := range lines {
			ok, err := q.DecrementStock(ctx, line.ProductID, line.Quantity)
			if err != nil {
				return fmt.Errorf("failed to reserve stock: %w", err)
			}
			if !ok {
				// The row is locked, so this means stock would go negative.
				middleware.RecordStockConflict()
				p := locked[line.ProductID]
				return &apperr.InsufficientStockError{
					ProductID:   p.ID,
					ProductName: p.Title,
					Requested:   line.Quantity,
					Available:   remaining[p.ID] + line.Quantity,
				}
			}
		}

		order.Items = items
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("order.id", order.ID))
	middleware.RecordOrderCreated()
	s.logger.Info("Order created",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("order_id", order.ID),
		zap.Int("user_id", buyerID),
		zap.String("total_amount", order.TotalAmount.StringFixed(2)),
	)

	s.invalidate(ctx, order.Items)
	s.publish(ctx, EventOrderCreated, order, buyerID)
	return order, nil
}

func (s *Service) GetOrdersForUser(ctx context.Context, userID int) ([]models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.GetOrdersForUser")
	defer span.End()

	orders, err := s.store.ListOrdersForUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.store.AttachItems(ctx, orders); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	return orders, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID, userID int) (*models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.GetOrder")
	defer span.End()
	span.SetAttributes(attribute.Int("order.id", orderID))

	order, err := s.store.GetOrderForUser(ctx, orderID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Order %d not found", orderID)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	orders := []models.Order{*order}
	if err := s.store.AttachItems(ctx, orders); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &orders[0], nil
}

// CancelOrder cancels a pending order owned by userID and returns every
// item's quantity to stock.
func (s *Service) CancelOrder(ctx context.Context, orderID, userID int) (*models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.CancelOrder")
	defer span.End()
	span.SetAttributes(attribute.Int("order.id", orderID), attribute.Int("user_id", userID))

	var order *models.Order
	err := s.atomic(ctx, func(q *store.Queries) error {
		o, err := q.LockOrderForUser(ctx, orderID, userID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Order %d not found", orderID)
		}
		if err != nil {
			return err
		}
		if !CanTransition(o.Status, models.OrderStatusCancelled) {
			return apperr.InvalidState("Only pending orders can be cancelled")
		}

		items, err := q.ListOrderItems(ctx, o.ID)
		if err != nil {
			return err
		}
		if err := s.cancelLocked(ctx, q, o, items); err != nil {
			return err
		}

		o.Items = items
		order = o
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	middleware.RecordOrderCancelled("buyer")
	s.logger.Info("Order cancelled",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("order_id", order.ID),
		zap.Int("user_id", userID),
	)

	s.invalidate(ctx, order.Items)
	s.publish(ctx, EventOrderCancelled, order, userID)
	return order, nil
}

// CancelOrderAsSeller cancels the whole order when sellerID owns at least
// one of its products, but only restores stock for that seller's items.
func (s *Service) CancelOrderAsSeller(ctx context.Context, orderID, sellerID int) (*models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.CancelOrderAsSeller")
	defer span.End()
	span.SetAttributes(attribute.Int("order.id", orderID), attribute.Int("seller_id", sellerID))

	var order *models.Order
	var restored []models.OrderItem
	err := s.atomic(ctx, func(q *store.Queries) error {
		o, err := q.LockOrder(ctx, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Order %d not found", orderID)
		}
		if err != nil {
			return err
		}

		items, err := q.ListOrderItems(ctx, o.ID)
		if err != nil {
			return err
		}

		sellerItems := make([]models.OrderItem, 0, len(items))
		for _, item := range items {
			if item.Product != nil && item.Product.OwnerID == sellerID {
				sellerItems = append(sellerItems, item)
			}
		}
		if len(sellerItems) == 0 {
			return apperr.Forbidden("You are not the seller of this order")
		}
		if !CanTransition(o.Status, models.OrderStatusCancelled) {
			return apperr.InvalidState("Only pending orders can be cancelled")
		}

		if err := s.cancelLocked(ctx, q, o, sellerItems); err != nil {
			return err
		}

		o.Items = items
		order = o
		restored = sellerItems
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	middleware.RecordOrderCancelled("seller")
	s.logger.Info("Order cancelled by seller",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("order_id", order.ID),
		zap.Int("seller_id", sellerID),
		zap.Int("restored_items", len(restored)),
	)

	s.invalidate(ctx, restored)
	s.publish(ctx, EventOrderSellerCancelled, order, sellerID)
	return order, nil
}

// cancelLocked flips a locked pending order to CANCELLED and puts the given
// items back in stock. Rows are touched in ascending product id, the same
// order CreateOrder locks them in.
func (s *Service) cancelLocked(ctx context.Context, q *store.Queries, o *models.Order, restock []models.OrderItem) error {
	ok, err := q.TransitionOrderStatus(ctx, o.ID, models.OrderStatusPending, models.OrderStatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to cancel order: %w", err)
	}
	if !ok {
		return apperr.InvalidState("Only pending orders can be cancelled")
	}

	restock = slices.Clone(restock)
	slices.SortStableFunc(restock, func(a, b models.OrderItem) int {
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	for _, item := range restock {
		ok, err := q.IncrementStock(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return fmt.Errorf("failed to restore stock: %w", err)
		}
		if !ok {
			return apperr.NotFound("Product %d not found", item.ProductID)
		}
	}

	o.Status = models.OrderStatusCancelled
	o.UpdatedAt = s.now()
	return nil
}

// SetOrderStatus applies a status reported by the payment notifier. It
// never touches stock. Re-applying the current status is a no-op.
func (s *Service) SetOrderStatus(ctx context.Context, orderID int, status models.OrderStatus) (*models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.SetOrderStatus")
	defer span.End()
	span.SetAttributes(attribute.Int("order.id", orderID), attribute.String("order.status", string(status)))

	if !status.Valid() {
		return nil, apperr.InvalidInput("unknown order status %q", status)
	}

	var order *models.Order
	changed := false
	err := s.atomic(ctx, func(q *store.Queries) error {
		if s.policy == PolicyOverwrite {
			o, err := q.OverwriteOrderStatus(ctx, orderID, status)
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("Order %d not found", orderID)
			}
			if err != nil {
				return err
			}
			order, changed = o, true
			return nil
		}

		o, err := q.LockOrder(ctx, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Order %d not found", orderID)
		}
		if err != nil {
			return err
		}
		if o.Status == status {
			order = o
			return nil
		}
		if !canApplyPayment(o.Status, status) {
			return apperr.InvalidState("Order %d cannot move from %s to %s", orderID, o.Status, status)
		}

		ok, err := q.TransitionOrderStatus(ctx, o.ID, o.Status, status)
		if err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		if !ok {
			return apperr.InvalidState("Order %d changed concurrently", orderID)
		}
		o.Status = status
		o.UpdatedAt = s.now()
		order, changed = o, true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if changed {
		middleware.RecordOrderStatusUpdate(string(status))
		s.logger.Info("Order status updated",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.Int("order_id", orderID),
			zap.String("status", string(status)),
		)
		s.publish(ctx, EventOrderStatusChanged, order, 0)
	}
	return order, nil
}

// CreatePaymentOnlyOrder records a pending order that has a total but no
// line items. It never checks or reserves stock.
func (s *Service) CreatePaymentOnlyOrder(ctx context.Context, req models.PaymentOnlyOrder) (*models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.CreatePaymentOnlyOrder")
	defer span.End()

	buyerID, err := strconv.Atoi(strings.TrimSpace(req.BuyerRef))
	if err != nil || buyerID <= 0 {
		return nil, apperr.InvalidInput("buyer reference %q is not a valid user id", req.BuyerRef)
	}
	if !req.Price.IsPositive() {
		return nil, apperr.InvalidInput("price must be greater than zero")
	}
	if !req.Price.Equal(req.Price.Round(2)) {
		return nil, apperr.InvalidInput("price can have at most two decimal places")
	}
	if strings.TrimSpace(req.Email) == "" {
		return nil, apperr.InvalidInput("email is required")
	}

	order := &models.Order{
		UserID:       buyerID,
		TotalAmount:  req.Price,
		Status:       models.OrderStatusPending,
		Description:  req.Description,
		ContactEmail: req.Email,
		Items:        []models.OrderItem{},
	}
	if err := s.store.InsertOrder(ctx, order); err != nil {
		span.RecordError(err)
		if errors.Is(err, store.ErrReferenced) {
			return nil, apperr.NotFound("User %d not found", buyerID)
		}
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}

	span.SetAttributes(attribute.Int("order.id", order.ID))
	middleware.RecordOrderCreated()
	s.logger.Info("Payment-only order created",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("order_id", order.ID),
		zap.Int("user_id", buyerID),
	)

	s.publish(ctx, EventOrderCreated, order, buyerID)
	return order, nil
}

// atomic runs fn in a transaction. Errors without a domain kind are
// reported as a retryable partial failure.
func (s *Service) atomic(ctx context.Context, fn func(q *store.Queries) error) error {
	err := s.store.RunAtomic(ctx, fn)
	if err == nil || apperr.IsDomain(err) {
		return err
	}
	s.logger.Error("Order transaction rolled back",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Error(err),
	)
	return apperr.PartialFailure(err)
}

func (s *Service) invalidate(ctx context.Context, items []models.OrderItem) {
	if s.cache == nil || len(items) == 0 {
		return
	}
	ids := make([]int, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	s.cache.InvalidateProducts(ctx, ids...)
}

func (s *Service) publish(ctx context.Context, eventType string, order *models.Order, actorID int) {
	if s.publisher == nil {
		return
	}
	event := models.OrderEvent{
		EventID:     uuid.NewString(),
		EventType:   eventType,
		OrderID:     order.ID,
		UserID:      order.UserID,
		ActorID:     actorID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		Items:       order.Items,
		OccurredAt:  s.now().UTC(),
	}
	if err := s.publisher.PublishOrderEvent(ctx, event); err != nil {
		// The transaction is already committed; the event is best effort.
		s.logger.Error("Failed to publish order event",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("event_type", eventType),
			zap.Int("order_id", order.ID),
			zap.Error(err),
		)
	}
}

func productIDs(lines []models.OrderLine) []int {
	seen := make(map[int]struct{}, len(lines))
	ids := make([]int, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	return ids
}
