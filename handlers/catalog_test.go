package handlers

import (
	"net/http"
	"testing"
	"time"

	"shop-svc/middleware"
	"shop-svc/models"
	"shop-svc/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

var reviewCols = []string{"id", "product_id", "product", "user_id", "review_owner", "rating", "comment", "created_at", "updated_at"}

const reviewByID = `SELECT (.+) FROM reviews r (.+) WHERE r\.id = \$1`

func setupCatalogTest(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	st := store.New(db)
	categories := NewCategoryHandler(st, logger)
	reviews := NewReviewHandler(st, logger)

	router := gin.New()
	router.GET("/categories/:id", categories.GetCategory)
	router.GET("/products/:id/reviews", reviews.GetProductReviews)

	authed := router.Group("", middleware.AuthMiddleware(testTokens))
	authed.POST("/categories", middleware.RequireRole(models.RoleAdmin), categories.CreateCategory)
	authed.PUT("/categories/:id", middleware.RequireRole(models.RoleAdmin), categories.UpdateCategory)
	authed.DELETE("/categories/:id", middleware.RequireRole(models.RoleAdmin), categories.DeleteCategory)
	authed.POST("/reviews", reviews.CreateReview)
	authed.PUT("/reviews/:id", reviews.UpdateReview)
	authed.DELETE("/reviews/:id", reviews.DeleteReview)

	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return mock, router
}

func categoryRow(id, ownerID int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(categoryCols).AddRow(id, "Kitchen", "Things", ownerID, "Admin", now, now)
}

func reviewRow(id, userID int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(reviewCols).AddRow(id, 5, "Mug", userID, "Bob", 4, "Solid mug", now, now)
}

func TestCategoryHandler_CreateCategory(t *testing.T) {
	mock, router := setupCatalogTest(t)

	now := time.Now()
	mock.ExpectQuery("INSERT INTO categories").
		WithArgs("Kitchen", "Things", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(3, now, now))

	w := performRequest(router, "POST", "/categories", gin.H{"name": "Kitchen", "description": "Things"}, bearer(t, 1, models.RoleAdmin))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.EqualValues(t, 3, decodeBody(t, w)["data"].(map[string]any)["id"])
}

func TestCategoryHandler_CreateCategory_Duplicate(t *testing.T) {
	mock, router := setupCatalogTest(t)

	mock.ExpectQuery("INSERT INTO categories").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "categories_name_key"})

	w := performRequest(router, "POST", "/categories", gin.H{"name": "Kitchen", "description": "Things"}, bearer(t, 1, models.RoleAdmin))

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCategoryHandler_GetCategory_NotFound(t *testing.T) {
	mock, router := setupCatalogTest(t)

	mock.ExpectQuery(categoryByID).WithArgs(8).WillReturnRows(sqlmock.NewRows(categoryCols))

	w := performRequest(router, "GET", "/categories/8", nil, "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCategoryHandler_UpdateCategory_NotOwner(t *testing.T) {
	mock, router := setupCatalogTest(t)

	mock.ExpectQuery(categoryByID).WithArgs(3).WillReturnRows(categoryRow(3, 1))

	w := performRequest(router, "PUT", "/categories/3", gin.H{"name": "Home", "description": "Stuff"}, bearer(t, 2, models.RoleAdmin))

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCategoryHandler_DeleteCategory_StillHasProducts(t *testing.T) {
	mock, router := setupCatalogTest(t)

	mock.ExpectQuery(categoryByID).WithArgs(3).WillReturnRows(categoryRow(3, 1))
	mock.ExpectExec("DELETE FROM categories").WithArgs(3).
		WillReturnError(&pq.Error{Code: "23503", Constraint: "products_category_id_fkey"})

	w := performRequest(router, "DELETE", "/categories/3", nil, bearer(t, 1, models.RoleAdmin))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_STATE", decodeBody(t, w)["code"])
}

func TestReviewHandler_CreateReview(t *testing.T) {
	mock, router := setupCatalogTest(t)

	now := time.Now()
	mock.ExpectQuery(productByID).WithArgs(5).WillReturnRows(productRow(5, 1, 10, "12.50"))
	mock.ExpectQuery("INSERT INTO reviews").
		WithArgs(5, 2, 4, "Solid mug").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(9, now, now))

	w := performRequest(router, "POST", "/reviews", gin.H{"product_id": 5, "rating": 4, "comment": " Solid mug "}, bearer(t, 2, models.RoleUser))

	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestReviewHandler_CreateReview_Validation(t *testing.T) {
	_, router := setupCatalogTest(t)
	auth := bearer(t, 2, models.RoleUser)

	cases := map[string]gin.H{
		"rating too high": {"product_id": 5, "rating": 6, "comment": "ok"},
		"rating negative": {"product_id": 5, "rating": -1, "comment": "ok"},
		"blank comment":   {"product_id": 5, "rating": 3, "comment": "   "},
		"missing product": {"rating": 3, "comment": "ok"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := performRequest(router, "POST", "/reviews", body, auth)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestReviewHandler_CreateReview_AlreadyReviewed(t *testing.T) {
	mock, router := setupCatalogTest(t)

	mock.ExpectQuery(productByID).WithArgs(5).WillReturnRows(productRow(5, 1, 10, "12.50"))
	mock.ExpectQuery("INSERT INTO reviews").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "reviews_product_id_user_id_key"})

	w := performRequest(router, "POST", "/reviews", gin.H{"product_id": 5, "rating": 4, "comment": "Again"}, bearer(t, 2, models.RoleUser))

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestReviewHandler_GetProductReviews(t *testing.T) {
	mock, router := setupCatalogTest(t)

	mock.ExpectQuery(`SELECT (.+) FROM reviews r (.+) WHERE r\.product_id = \$1`).WithArgs(5).WillReturnRows(reviewRow(9, 2))

	w := performRequest(router, "GET", "/products/5/reviews", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	reviews := decodeBody(t, w)["data"].([]any)
	require.Len(t, reviews, 1)
	assert.Equal(t, "Bob", reviews[0].(map[string]any)["review_owner"])
}

func TestReviewHandler_UpdateReview(t *testing.T) {
	mock, router := setupCatalogTest(t)

	mock.ExpectQuery(reviewByID).WithArgs(9).WillReturnRows(reviewRow(9, 2))
	mock.ExpectQuery("UPDATE reviews SET").
		WithArgs(5, "Solid mug", 9).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

	w := performRequest(router, "PUT", "/reviews/9", gin.H{"rating": 5}, bearer(t, 2, models.RoleUser))

	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 5, decodeBody(t, w)["data"].(map[string]any)["rating"])
}

func TestReviewHandler_DeleteReview_NotOwner(t *testing.T) {
	mock, router := setupCatalogTest(t)

	mock.ExpectQuery(reviewByID).WithArgs(9).WillReturnRows(reviewRow(9, 2))

	w := performRequest(router, "DELETE", "/reviews/9", nil, bearer(t, 3, models.RoleUser))

	assert.Equal(t, http.StatusForbidden, w.Code)
}
