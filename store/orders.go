package store

import (
	"context"
	"fmt"

	"shop-svc/models"

	"github.com/lib/pq"
)

const orderColumns = "id, user_id, total_amount, status, description, contact_email, created_at, updated_at"

func scanOrder(row scanner) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Status, &o.Description, &o.ContactEmail, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Items = []models.OrderItem{}
	return &o, nil
}

func (q *Queries) queryOrder(ctx context.Context, query string, args ...any) (*models.Order, error) {
	o, err := scanOrder(q.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapError(err)
	}
	return o, nil
}

func (q *Queries) InsertOrder(ctx context.Context, o *models.Order) error {
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO orders (user_id, total_amount, status, description, contact_email)
		VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at, updated_at`,
		o.UserID, o.TotalAmount, o.Status, o.Description, o.ContactEmail,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	return mapError(err)
}

func (q *Queries) InsertOrderItem(ctx context.Context, item *models.OrderItem) error {
	err := q.db.QueryRowContext(ctx,
		"INSERT INTO order_items (order_id, product_id, quantity, price) VALUES ($1, $2, $3, $4) RETURNING id",
		item.OrderID, item.ProductID, item.Quantity, item.Price,
	).Scan(&item.ID)
	return mapError(err)
}

func (q *Queries) GetOrder(ctx context.Context, orderID int) (*models.Order, error) {
	return q.queryOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", orderID)
}

// GetOrderForUser returns ErrNotFound both for unknown ids and for orders
// owned by someone else.
func (q *Queries) GetOrderForUser(ctx context.Context, orderID, userID int) (*models.Order, error) {
	return q.queryOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1 AND user_id = $2", orderID, userID)
}

func (q *Queries) LockOrder(ctx context.Context, orderID int) (*models.Order, error) {
	return q.queryOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", orderID)
}

func (q *Queries) LockOrderForUser(ctx context.Context, orderID, userID int) (*models.Order, error) {
	return q.queryOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1 AND user_id = $2 FOR UPDATE", orderID, userID)
}

func (q *Queries) ListOrdersForUser(ctx context.Context, userID int) ([]models.Order, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// ListOrderItems fetches the items of the given orders joined with their
// products, ordered by order and insertion.
func (q *Queries) ListOrderItems(ctx context.Context, orderIDs ...int) ([]models.OrderItem, error) {
	if len(orderIDs) == 0 {
		return []models.OrderItem{}, nil
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.price,
			p.id, p.title, p.description, p.price, p.stock, p.category_id, p.user_id, p.created_at, p.updated_at
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.id`, pq.Array(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	defer rows.Close()

	items := []models.OrderItem{}
	for rows.Next() {
		var item models.OrderItem
		var p models.Product
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price,
			&p.ID, &p.Title, &p.Description, &p.Price, &p.Stock, &p.CategoryID, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		item.Product = &p
		items = append(items, item)
	}
	return items, rows.Err()
}

// AttachItems loads and attaches the items of every order in place.
func (q *Queries) AttachItems(ctx context.Context, orders []models.Order) error {
	ids := make([]int, len(orders))
	index := make(map[int]int, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		index[orders[i].ID] = i
		orders[i].Items = []models.OrderItem{}
	}

	items, err := q.ListOrderItems(ctx, ids...)
	if err != nil {
		return err
	}
	for _, item := range items {
		if i, ok := index[item.OrderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	return nil
}

// TransitionOrderStatus moves an order from one status to another only if
// it is still in the expected status. It reports whether the swap happened.
func (q *Queries) TransitionOrderStatus(ctx context.Context, orderID int, from, to models.OrderStatus) (bool, error) {
	return q.execOne(ctx,
		"UPDATE orders SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2 AND status = $3",
		to, orderID, from)
}

// OverwriteOrderStatus sets the status whatever the current value is.
func (q *Queries) OverwriteOrderStatus(ctx context.Context, orderID int, status models.OrderStatus) (*models.Order, error) {
	return q.queryOrder(ctx,
		"UPDATE orders SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2 RETURNING "+orderColumns,
		status, orderID)
}
