package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID           int             `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	Stock        int             `json:"stock"`
	CategoryID   int             `json:"category_id"`
	CategoryName string          `json:"category,omitempty"`
	OwnerID      int             `json:"owner_id"`
	OwnerName    string          `json:"owner,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type CreateProductRequest struct {
	Title       string          `json:"title" binding:"required"`
	Description string          `json:"description" binding:"required"`
	Price       decimal.Decimal `json:"price"`
	Stock       *int            `json:"stock" binding:"required,gte=0"`
	CategoryID  int             `json:"category_id" binding:"required,gt=0"`
}

// UpdateProductRequest carries optional fields; nil means unchanged.
type UpdateProductRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock" binding:"omitempty,gte=0"`
	CategoryID  *int             `json:"category_id" binding:"omitempty,gt=0"`
}
