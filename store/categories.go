package store

import (
	"context"
	"fmt"

	"shop-svc/models"
)

const categorySelect = `SELECT c.id, c.name, c.description, c.user_id, u.name, c.created_at, c.updated_at
	FROM categories c
	JOIN users u ON u.id = c.user_id`

func scanCategory(row scanner) (*models.Category, error) {
	var c models.Category
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.OwnerID, &c.OwnerName, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (q *Queries) CreateCategory(ctx context.Context, c *models.Category) error {
	err := q.db.QueryRowContext(ctx,
		"INSERT INTO categories (name, description, user_id) VALUES ($1, $2, $3) RETURNING id, created_at, updated_at",
		c.Name, c.Description, c.OwnerID,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return mapError(err)
}

func (q *Queries) GetCategory(ctx context.Context, id int) (*models.Category, error) {
	c, err := scanCategory(q.db.QueryRowContext(ctx, categorySelect+" WHERE c.id = $1", id))
	if err != nil {
		return nil, mapError(err)
	}
	return c, nil
}

func (q *Queries) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := q.db.QueryContext(ctx, categorySelect+" ORDER BY c.id")
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, *c)
	}
	return categories, rows.Err()
}

func (q *Queries) UpdateCategory(ctx context.Context, c *models.Category) error {
	err := q.db.QueryRowContext(ctx,
		"UPDATE categories SET name = $1, description = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $3 RETURNING updated_at",
		c.Name, c.Description, c.ID,
	).Scan(&c.UpdatedAt)
	return mapError(err)
}

func (q *Queries) DeleteCategory(ctx context.Context, id int) error {
	result, err := q.db.ExecContext(ctx, "DELETE FROM categories WHERE id = $1", id)
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
