package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"shop-svc/apperr"
	"shop-svc/circuitbreaker"
	"shop-svc/middleware"
	"shop-svc/models"
	"shop-svc/store"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type ProductCache interface {
	GetProduct(ctx context.Context, id int) (*models.Product, bool)
	SetProduct(ctx context.Context, p *models.Product)
	GetProductList(ctx context.Context) ([]models.Product, bool)
	SetProductList(ctx context.Context, products []models.Product)
	InvalidateProducts(ctx context.Context, ids ...int)
}

type ProductHandler struct {
	store          *store.Store
	cache          ProductCache
	logger         *zap.Logger
	circuitBreaker *circuitbreaker.CircuitBreaker
}

func NewProductHandler(st *store.Store, cache ProductCache, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		store:  st,
		cache:  cache,
		logger: logger,
		circuitBreaker: circuitbreaker.NewCircuitBreaker("catalog", 5, 30*time.Second,
			circuitbreaker.WithFailurePredicate(func(err error) bool {
				return !errors.Is(err, store.ErrNotFound)
			}),
		),
	}
}

func (h *ProductHandler) GetProducts(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "GetProducts")
	defer span.End()

	if products, ok := h.cache.GetProductList(ctx); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		respond(c, http.StatusOK, "Products fetched successfully", products)
		return
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	var products []models.Product
	err := h.circuitBreaker.Execute(ctx, func() error {
		var err error
		products, err = h.store.ListProducts(ctx)
		return err
	})
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, h.unavailable(err))
		return
	}

	h.cache.SetProductList(ctx, products)
	span.SetAttributes(attribute.Int("products.count", len(products)))
	respond(c, http.StatusOK, "Products fetched successfully", products)
}

func (h *ProductHandler) GetProduct(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "GetProduct")
	defer span.End()

	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int("product.id", id))

	if product, ok := h.cache.GetProduct(ctx, id); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		respond(c, http.StatusOK, "Product fetched successfully", product)
		return
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	var product *models.Product
	err := h.circuitBreaker.Execute(ctx, func() error {
		var err error
		product, err = h.store.GetProduct(ctx, id)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		respondError(c, h.logger, apperr.NotFound("Product %d not found", id))
		return
	}
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, h.unavailable(err))
		return
	}

	h.cache.SetProduct(ctx, product)
	respond(c, http.StatusOK, "Product fetched successfully", product)
}

func (h *ProductHandler) CreateProduct(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "CreateProduct")
	defer span.End()

	var req models.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if !validPrice(req.Price) {
		respondError(c, h.logger, apperr.InvalidInput("price must be greater than zero with at most two decimal places"))
		return
	}

	if _, err := h.store.GetCategory(ctx, req.CategoryID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(c, h.logger, apperr.NotFound("Category %d not found", req.CategoryID))
			return
		}
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}

	product := &models.Product{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Price:       req.Price,
		Stock:       *req.Stock,
		CategoryID:  req.CategoryID,
		OwnerID:     middleware.CurrentUserID(c),
	}
	if err := h.store.CreateProduct(ctx, product); err != nil {
		if errors.Is(err, store.ErrReferenced) {
			respondError(c, h.logger, apperr.NotFound("Category %d not found", req.CategoryID))
			return
		}
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}

	h.cache.InvalidateProducts(ctx, product.ID)
	span.SetAttributes(attribute.Int("product.id", product.ID))
	h.logger.Info("Product created",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("product_id", product.ID),
	)
	respond(c, http.StatusCreated, "Product created successfully", h.reload(ctx, product))
}

// UpdateProduct applies a partial update under the product's row lock so it
// cannot interleave with an order reserving stock.
func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "UpdateProduct")
	defer span.End()

	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int("product.id", id))

	var req models.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if req.Price != nil && !validPrice(*req.Price) {
		respondError(c, h.logger, apperr.InvalidInput("price must be greater than zero with at most two decimal places"))
		return
	}

	userID := middleware.CurrentUserID(c)
	var product *models.Product
	err := h.store.RunAtomic(ctx, func(q *store.Queries) error {
		p, err := q.LockProduct(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Product %d not found", id)
		}
		if err != nil {
			return err
		}
		if p.OwnerID != userID {
			return apperr.Forbidden("You can only modify your own products")
		}

		if req.Title != nil {
			p.Title = strings.TrimSpace(*req.Title)
		}
		if req.Description != nil {
			p.Description = strings.TrimSpace(*req.Description)
		}
		if req.Price != nil {
			p.Price = *req.Price
		}
		if req.Stock != nil {
			p.Stock = *req.Stock
		}
		if req.CategoryID != nil && *req.CategoryID != p.CategoryID {
			if _, err := q.GetCategory(ctx, *req.CategoryID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return apperr.NotFound("Category %d not found", *req.CategoryID)
				}
				return err
			}
			p.CategoryID = *req.CategoryID
		}

		if err := q.UpdateProduct(ctx, p); err != nil {
			return err
		}
		product = p
		return nil
	})
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}

	h.cache.InvalidateProducts(ctx, id)
	h.logger.Info("Product updated", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Int("product_id", id))
	respond(c, http.StatusOK, "Product updated successfully", h.reload(ctx, product))
}

func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "DeleteProduct")
	defer span.End()

	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	product, err := h.store.GetProduct(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(c, h.logger, apperr.NotFound("Product %d not found", id))
		return
	}
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}
	if product.OwnerID != middleware.CurrentUserID(c) {
		respondError(c, h.logger, apperr.Forbidden("You can only delete your own products"))
		return
	}

	if err := h.store.DeleteProduct(ctx, id); err != nil {
		switch {
		case errors.Is(err, store.ErrReferenced):
			respondError(c, h.logger, apperr.InvalidState("Product %d is part of existing orders and cannot be deleted", id))
		case errors.Is(err, store.ErrNotFound):
			respondError(c, h.logger, apperr.NotFound("Product %d not found", id))
		default:
			span.RecordError(err)
			respondError(c, h.logger, err)
		}
		return
	}

	h.cache.InvalidateProducts(ctx, id)
	h.logger.Info("Product deleted", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Int("product_id", id))
	respond(c, http.StatusOK, "Product deleted successfully", nil)
}

// reload returns the joined view of p, falling back to p itself.
func (h *ProductHandler) reload(ctx context.Context, p *models.Product) *models.Product {
	full, err := h.store.GetProduct(ctx, p.ID)
	if err != nil {
		h.logger.Warn("Failed to reload product", zap.Int("product_id", p.ID), zap.Error(err))
		return p
	}
	return full
}

func (h *ProductHandler) unavailable(err error) error {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return apperr.PartialFailure(err)
	}
	return err
}
