package store

import (
	"context"
	"fmt"

	"shop-svc/models"
)

const reviewSelect = `SELECT r.id, r.product_id, p.title, r.user_id, u.name, r.rating, r.comment, r.created_at, r.updated_at
	FROM reviews r
	JOIN products p ON p.id = r.product_id
	JOIN users u ON u.id = r.user_id`

func scanReview(row scanner) (*models.Review, error) {
	var r models.Review
	if err := row.Scan(&r.ID, &r.ProductID, &r.ProductTitle, &r.UserID, &r.UserName,
		&r.Rating, &r.Comment, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func (q *Queries) CreateReview(ctx context.Context, r *models.Review) error {
	err := q.db.QueryRowContext(ctx,
		"INSERT INTO reviews (product_id, user_id, rating, comment) VALUES ($1, $2, $3, $4) RETURNING id, created_at, updated_at",
		r.ProductID, r.UserID, r.Rating, r.Comment,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	return mapError(err)
}

func (q *Queries) GetReview(ctx context.Context, id int) (*models.Review, error) {
	r, err := scanReview(q.db.QueryRowContext(ctx, reviewSelect+" WHERE r.id = $1", id))
	if err != nil {
		return nil, mapError(err)
	}
	return r, nil
}

func (q *Queries) ListReviews(ctx context.Context) ([]models.Review, error) {
	return q.listReviews(ctx, reviewSelect+" ORDER BY r.created_at DESC, r.id DESC")
}

func (q *Queries) ListReviewsForProduct(ctx context.Context, productID int) ([]models.Review, error) {
	return q.listReviews(ctx, reviewSelect+" WHERE r.product_id = $1 ORDER BY r.created_at DESC, r.id DESC", productID)
}

func (q *Queries) listReviews(ctx context.Context, query string, args ...any) ([]models.Review, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []models.Review{}
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, *r)
	}
	return reviews, rows.Err()
}

func (q *Queries) UpdateReview(ctx context.Context, r *models.Review) error {
	err := q.db.QueryRowContext(ctx,
		"UPDATE reviews SET rating = $1, comment = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $3 RETURNING updated_at",
		r.Rating, r.Comment, r.ID,
	).Scan(&r.UpdatedAt)
	return mapError(err)
}

func (q *Queries) DeleteReview(ctx context.Context, id int) error {
	result, err := q.db.ExecContext(ctx, "DELETE FROM reviews WHERE id = $1", id)
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
