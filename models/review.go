package models

import "time"

type Review struct {
	ID           int       `json:"id"`
	ProductID    int       `json:"product_id"`
	ProductTitle string    `json:"product,omitempty"`
	UserID       int       `json:"user_id"`
	UserName     string    `json:"review_owner,omitempty"`
	Rating       int       `json:"rating"`
	Comment      string    `json:"comment"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type CreateReviewRequest struct {
	ProductID int    `json:"product_id" binding:"required,gt=0"`
	Rating    int    `json:"rating" binding:"required"`
	Comment   string `json:"comment" binding:"required"`
}

type UpdateReviewRequest struct {
	Rating  *int    `json:"rating"`
	Comment *string `json:"comment"`
}
