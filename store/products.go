package store

import (
	"context"
	"fmt"

	"shop-svc/models"

	"github.com/lib/pq"
)

const productSelect = `SELECT p.id, p.title, p.description, p.price, p.stock, p.category_id, c.name, p.user_id, u.name, p.created_at, p.updated_at
	FROM products p
	JOIN categories c ON c.id = p.category_id
	JOIN users u ON u.id = p.user_id`

func scanProduct(row scanner) (*models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Price, &p.Stock,
		&p.CategoryID, &p.CategoryName, &p.OwnerID, &p.OwnerName, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (q *Queries) GetProduct(ctx context.Context, id int) (*models.Product, error) {
	p, err := scanProduct(q.db.QueryRowContext(ctx, productSelect+" WHERE p.id = $1", id))
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

func (q *Queries) ListProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := q.db.QueryContext(ctx, productSelect+" ORDER BY p.created_at DESC, p.id DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (q *Queries) CreateProduct(ctx context.Context, p *models.Product) error {
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO products (title, description, price, stock, category_id, user_id)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at, updated_at`,
		p.Title, p.Description, p.Price, p.Stock, p.CategoryID, p.OwnerID,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return mapError(err)
}

// UpdateProduct overwrites the catalog fields of p, stock included.
func (q *Queries) UpdateProduct(ctx context.Context, p *models.Product) error {
	err := q.db.QueryRowContext(ctx,
		`UPDATE products SET title = $1, description = $2, price = $3, stock = $4, category_id = $5, updated_at = CURRENT_TIMESTAMP
		WHERE id = $6 RETURNING updated_at`,
		p.Title, p.Description, p.Price, p.Stock, p.CategoryID, p.ID,
	).Scan(&p.UpdatedAt)
	return mapError(err)
}

func (q *Queries) DeleteProduct(ctx context.Context, id int) error {
	result, err := q.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return mapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const lockColumns = "id, title, description, price, stock, category_id, user_id, created_at, updated_at"

func scanLockedProduct(row scanner) (*models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Price, &p.Stock,
		&p.CategoryID, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// LockProduct re-reads a product row and holds its lock until the
// surrounding transaction ends.
func (q *Queries) LockProduct(ctx context.Context, id int) (*models.Product, error) {
	p, err := scanLockedProduct(q.db.QueryRowContext(ctx,
		"SELECT "+lockColumns+" FROM products WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

// LockProducts locks every listed product in ascending id order so that
// concurrent orders over overlapping products cannot deadlock. Missing ids
// are simply absent from the result.
func (q *Queries) LockProducts(ctx context.Context, ids []int) (map[int]*models.Product, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+lockColumns+" FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE",
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to lock products: %w", mapError(err))
	}
	defer rows.Close()

	locked := make(map[int]*models.Product, len(ids))
	for rows.Next() {
		p, err := scanLockedProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		locked[p.ID] = p
	}
	return locked, rows.Err()
}

// DecrementStock removes qty units if at least qty remain. It reports false
// when the guard rejected the update.
func (q *Queries) DecrementStock(ctx context.Context, id, qty int) (bool, error) {
	return q.execOne(ctx,
		`UPDATE products SET stock = stock - $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND stock >= $1`, qty, id)
}

// IncrementStock returns qty units to a product. It reports false when the
// product no longer exists.
func (q *Queries) IncrementStock(ctx context.Context, id, qty int) (bool, error) {
	return q.execOne(ctx,
		`UPDATE products SET stock = stock + $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2`, qty, id)
}

func (q *Queries) execOne(ctx context.Context, query string, args ...any) (bool, error) {
	result, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, mapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
