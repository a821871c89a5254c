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

type ReviewHandler struct {
	store  *store.Store
	logger *zap.Logger
}

func NewReviewHandler(st *store.Store, logger *zap.Logger) *ReviewHandler {
	return &ReviewHandler{store: st, logger: logger}
}

func validRating(rating int) bool {
	return rating >= 1 && rating <= 5
}

func (h *ReviewHandler) CreateReview(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "CreateReview")
	defer span.End()

	var req models.CreateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if !validRating(req.Rating) {
		respondError(c, h.logger, apperr.InvalidInput("rating must be between 1 and 5"))
		return
	}
	comment := strings.TrimSpace(req.Comment)
	if comment == "" {
		respondError(c, h.logger, apperr.InvalidInput("comment must not be empty"))
		return
	}

	if _, err := h.store.GetProduct(ctx, req.ProductID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(c, h.logger, apperr.NotFound("Product %d not found", req.ProductID))
			return
		}
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}

	review := &models.Review{
		ProductID: req.ProductID,
		UserID:    middleware.CurrentUserID(c),
		Rating:    req.Rating,
		Comment:   comment,
	}
	if err := h.store.CreateReview(ctx, review); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			respondError(c, h.logger, apperr.Conflict("You have already reviewed this product"))
		case errors.Is(err, store.ErrReferenced):
			respondError(c, h.logger, apperr.NotFound("Product %d not found", req.ProductID))
		default:
			span.RecordError(err)
			respondError(c, h.logger, err)
		}
		return
	}

	span.SetAttributes(attribute.Int("review.id", review.ID))
	h.logger.Info("Review created",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("review_id", review.ID),
		zap.Int("product_id", review.ProductID),
	)
	respond(c, http.StatusCreated, "Review created successfully", review)
}

func (h *ReviewHandler) GetReviews(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "GetReviews")
	defer span.End()

	reviews, err := h.store.ListReviews(ctx)
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Reviews fetched successfully", reviews)
}

func (h *ReviewHandler) GetProductReviews(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "GetProductReviews")
	defer span.End()

	productID, ok := paramID(c, "id")
	if !ok {
		return
	}

	reviews, err := h.store.ListReviewsForProduct(ctx, productID)
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Reviews fetched successfully", reviews)
}

func (h *ReviewHandler) GetReview(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "GetReview")
	defer span.End()

	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	review, err := h.load(ctx, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Review fetched successfully", review)
}

func (h *ReviewHandler) UpdateReview(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "UpdateReview")
	defer span.End()

	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req models.UpdateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	review, err := h.load(ctx, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if review.UserID != middleware.CurrentUserID(c) {
		respondError(c, h.logger, apperr.Forbidden("You can only modify your own reviews"))
		return
	}

	if req.Rating != nil {
		if !validRating(*req.Rating) {
			respondError(c, h.logger, apperr.InvalidInput("rating must be between 1 and 5"))
			return
		}
		review.Rating = *req.Rating
	}
	if req.Comment != nil {
		comment := strings.TrimSpace(*req.Comment)
		if comment == "" {
			respondError(c, h.logger, apperr.InvalidInput("comment must not be empty"))
			return
		}
		review.Comment = comment
	}

	if err := h.store.UpdateReview(ctx, review); err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Review updated successfully", review)
}

func (h *ReviewHandler) DeleteReview(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "DeleteReview")
	defer span.End()

	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	review, err := h.load(ctx, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if review.UserID != middleware.CurrentUserID(c) {
		respondError(c, h.logger, apperr.Forbidden("You can only delete your own reviews"))
		return
	}

	if err := h.store.DeleteReview(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Review deleted successfully", nil)
}

func (h *ReviewHandler) load(ctx context.Context, id int) (*models.Review, error) {
	review, err := h.store.GetReview(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Review %d not found", id)
	}
	return review, err
}
