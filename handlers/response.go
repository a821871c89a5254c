package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"shop-svc/apperr"
	"shop-svc/middleware"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, gin.H{
		"success": true,
		"message": message,
		"data":    data,
	})
}

// respondError renders err with the status of its kind. Errors without a
// kind are logged and hidden behind a generic message.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	kind := apperr.KindOf(err)
	body := gin.H{
		"success": false,
		"error":   err.Error(),
		"code":    kind,
	}

	var stockErr *apperr.InsufficientStockError
	if errors.As(err, &stockErr) {
		body["product"] = stockErr.ProductName
		body["requested"] = stockErr.Requested
		body["available"] = stockErr.Available
	}

	switch kind {
	case apperr.KindInternal:
		logger.Error("Request failed",
			zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		body["error"] = "Internal server error"
	case apperr.KindPartialFailure:
		logger.Warn("Request rolled back",
			zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
			zap.String("path", c.FullPath()),
			zap.Error(errors.Unwrap(err)),
		)
	}

	c.JSON(apperr.HTTPStatus(kind), body)
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   err.Error(),
		"code":    apperr.KindInvalidInput,
	})
}

// paramID parses a positive integer path parameter, answering 400 itself
// when it is malformed.
func paramID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid " + name,
			"code":    apperr.KindInvalidInput,
		})
		return 0, false
	}
	return id, true
}

func validPrice(price decimal.Decimal) bool {
	return price.IsPositive() && price.Equal(price.Round(2))
}
