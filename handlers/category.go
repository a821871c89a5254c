package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"shop-svc/apperr"
	"shop-svc/middleware"
	"shop-svc/models"
	"shop-svc/store"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type CategoryHandler struct {
	store  *store.Store
	logger *zap.Logger
}

func NewCategoryHandler(st *store.Store, logger *zap.Logger) *CategoryHandler {
	return &CategoryHandler{store: st, logger: logger}
}

func (h *CategoryHandler) CreateCategory(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "CreateCategory")
	defer span.End()

	var req models.CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	category := &models.Category{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		OwnerID:     middleware.CurrentUserID(c),
	}
	if err := h.store.CreateCategory(ctx, category); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			respondError(c, h.logger, apperr.Conflict("Category %q already exists", category.Name))
			return
		}
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}

	span.SetAttributes(attribute.Int("category.id", category.ID))
	h.logger.Info("Category created",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("category_id", category.ID),
	)
	respond(c, http.StatusCreated, "Category created successfully", category)
}

func (h *CategoryHandler) GetCategories(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "GetCategories")
	defer span.End()

	categories, err := h.store.ListCategories(ctx)
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Categories fetched successfully", categories)
}

func (h *CategoryHandler) GetCategory(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "GetCategory")
	defer span.End()

	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	category, err := h.load(ctx, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Category fetched successfully", category)
}

func (h *CategoryHandler) UpdateCategory(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "UpdateCategory")
	defer span.End()

	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req models.CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	category, err := h.load(ctx, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if category.OwnerID != middleware.CurrentUserID(c) {
		respondError(c, h.logger, apperr.Forbidden("You can only modify your own categories"))
		return
	}

	category.Name = strings.TrimSpace(req.Name)
	category.Description = strings.TrimSpace(req.Description)
	if err := h.store.UpdateCategory(ctx, category); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			respondError(c, h.logger, apperr.Conflict("Category %q already exists", category.Name))
			return
		}
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Category updated", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Int("category_id", id))
	respond(c, http.StatusOK, "Category updated successfully", category)
}

func (h *CategoryHandler) DeleteCategory(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "DeleteCategory")
	defer span.End()

	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	category, err := h.load(ctx, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if category.OwnerID != middleware.CurrentUserID(c) {
		respondError(c, h.logger, apperr.Forbidden("You can only delete your own categories"))
		return
	}

	if err := h.store.DeleteCategory(ctx, id); err != nil {
		switch {
		case errors.Is(err, store.ErrReferenced):
			respondError(c, h.logger, apperr.InvalidState("Category %d still has products", id))
		case errors.Is(err, store.ErrNotFound):
			respondError(c, h.logger, apperr.NotFound("Category %d not found", id))
		default:
			span.RecordError(err)
			respondError(c, h.logger, err)
		}
		return
	}

	h.logger.Info("Category deleted", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Int("category_id", id))
	respond(c, http.StatusOK, "Category deleted successfully", nil)
}

func (h *CategoryHandler) load(ctx context.Context, id int) (*models.Category, error) {
	category, err := h.store.GetCategory(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Category %d not found", id)
	}
	return category, err
}
