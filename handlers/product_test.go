package handlers

import (
	"net/http"
	"testing"
	"time"

	"shop-svc/cache"
	"shop-svc/middleware"
	"shop-svc/models"
	"shop-svc/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

var (
	productCols  = []string{"id", "title", "description", "price", "stock", "category_id", "category", "user_id", "owner", "created_at", "updated_at"}
	lockCols     = []string{"id", "title", "description", "price", "stock", "category_id", "user_id", "created_at", "updated_at"}
	categoryCols = []string{"id", "name", "description", "user_id", "owner", "created_at", "updated_at"}
)

const (
	productByID  = `SELECT (.+) FROM products p (.+) WHERE p\.id = \$1`
	productList  = `SELECT (.+) FROM products p (.+) ORDER BY p\.created_at DESC`
	productLock  = `SELECT (.+) FROM products WHERE id = \$1 FOR UPDATE`
	categoryByID = `SELECT (.+) FROM categories c (.+) WHERE c\.id = \$1`
)

type productTest struct {
	mock   sqlmock.Sqlmock
	redis  *miniredis.Miniredis
	router *gin.Engine
}

func setupProductTest(t *testing.T) productTest {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	handler := NewProductHandler(store.New(db), cache.New(rdb, time.Minute, logger), logger)

	router := gin.New()
	router.GET("/products", handler.GetProducts)
	router.GET("/products/:id", handler.GetProduct)
	admin := router.Group("/products", middleware.AuthMiddleware(testTokens), middleware.RequireRole(models.RoleAdmin))
	admin.POST("", handler.CreateProduct)
	admin.PUT("/:id", handler.UpdateProduct)
	admin.DELETE("/:id", handler.DeleteProduct)

	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return productTest{mock: mock, redis: mr, router: router}
}

func productRow(id, ownerID, stock int, price string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(productCols).AddRow(id, "Mug", "Ceramic", price, stock, 3, "Kitchen", ownerID, "Admin", now, now)
}

func TestProductHandler_GetProduct_CachesAfterMiss(t *testing.T) {
	pt := setupProductTest(t)

	pt.mock.ExpectQuery(productByID).WithArgs(5).WillReturnRows(productRow(5, 1, 10, "12.50"))

	w := performRequest(pt.router, "GET", "/products/5", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, pt.redis.Exists("product:5"))

	// Served from the cache: no further query is expected.
	w = performRequest(pt.router, "GET", "/products/5", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeBody(t, w)["data"].(map[string]any)
	assert.Equal(t, "12.5", data["price"])
	assert.Equal(t, "Kitchen", data["category"])
}

func TestProductHandler_GetProduct_NotFound(t *testing.T) {
	pt := setupProductTest(t)

	pt.mock.ExpectQuery(productByID).WithArgs(99).WillReturnRows(sqlmock.NewRows(productCols))

	w := performRequest(pt.router, "GET", "/products/99", nil, "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decodeBody(t, w)["code"])
	assert.False(t, pt.redis.Exists("product:99"))
}

func TestProductHandler_GetProducts(t *testing.T) {
	pt := setupProductTest(t)

	pt.mock.ExpectQuery(productList).WillReturnRows(productRow(5, 1, 10, "12.50"))

	w := performRequest(pt.router, "GET", "/products", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["data"], 1)
	assert.True(t, pt.redis.Exists("products:all"))
}

func TestProductHandler_CreateProduct(t *testing.T) {
	pt := setupProductTest(t)
	require.NoError(t, pt.redis.Set("products:all", "[]"))

	now := time.Now()
	pt.mock.ExpectQuery(categoryByID).WithArgs(3).
		WillReturnRows(sqlmock.NewRows(categoryCols).AddRow(3, "Kitchen", "Things", 1, "Admin", now, now))
	pt.mock.ExpectQuery("INSERT INTO products").
		WithArgs("Mug", "Ceramic", sqlmock.AnyArg(), 10, 3, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(5, now, now))
	pt.mock.ExpectQuery(productByID).WithArgs(5).WillReturnRows(productRow(5, 1, 10, "12.50"))

	w := performRequest(pt.router, "POST", "/products", gin.H{
		"title":       " Mug ",
		"description": "Ceramic",
		"price":       "12.50",
		"stock":       10,
		"category_id": 3,
	}, bearer(t, 1, models.RoleAdmin))

	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.False(t, pt.redis.Exists("products:all"), "list cache must be invalidated")
}

func TestProductHandler_CreateProduct_InvalidPrice(t *testing.T) {
	pt := setupProductTest(t)

	for _, price := range []string{"0", "-1", "1.999"} {
		w := performRequest(pt.router, "POST", "/products", gin.H{
			"title":       "Mug",
			"description": "Ceramic",
			"price":       price,
			"stock":       1,
			"category_id": 3,
		}, bearer(t, 1, models.RoleAdmin))

		assert.Equal(t, http.StatusBadRequest, w.Code, "price %s", price)
	}
}

func TestProductHandler_CreateProduct_RequiresAdmin(t *testing.T) {
	pt := setupProductTest(t)

	w := performRequest(pt.router, "POST", "/products", gin.H{"title": "Mug"}, bearer(t, 2, models.RoleUser))

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestProductHandler_UpdateProduct(t *testing.T) {
	pt := setupProductTest(t)
	require.NoError(t, pt.redis.Set("product:5", "{}"))

	now := time.Now()
	pt.mock.ExpectBegin()
	pt.mock.ExpectQuery(productLock).WithArgs(5).
		WillReturnRows(sqlmock.NewRows(lockCols).AddRow(5, "Mug", "Ceramic", "12.50", 10, 3, 1, now, now))
	pt.mock.ExpectQuery("UPDATE products SET").
		WithArgs("Mug", "Ceramic", sqlmock.AnyArg(), 4, 3, 5).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
	pt.mock.ExpectCommit()
	pt.mock.ExpectQuery(productByID).WithArgs(5).WillReturnRows(productRow(5, 1, 4, "12.50"))

	w := performRequest(pt.router, "PUT", "/products/5", gin.H{"stock": 4}, bearer(t, 1, models.RoleAdmin))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 4, decodeBody(t, w)["data"].(map[string]any)["stock"])
	assert.False(t, pt.redis.Exists("product:5"))
}

func TestProductHandler_UpdateProduct_NotOwner(t *testing.T) {
	pt := setupProductTest(t)

	now := time.Now()
	pt.mock.ExpectBegin()
	pt.mock.ExpectQuery(productLock).WithArgs(5).
		WillReturnRows(sqlmock.NewRows(lockCols).AddRow(5, "Mug", "Ceramic", "12.50", 10, 3, 1, now, now))
	pt.mock.ExpectRollback()

	w := performRequest(pt.router, "PUT", "/products/5", gin.H{"stock": 4}, bearer(t, 2, models.RoleAdmin))

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestProductHandler_DeleteProduct_ReferencedByOrders(t *testing.T) {
	pt := setupProductTest(t)

	pt.mock.ExpectQuery(productByID).WithArgs(5).WillReturnRows(productRow(5, 1, 10, "12.50"))
	pt.mock.ExpectExec("DELETE FROM products").WithArgs(5).
		WillReturnError(&pq.Error{Code: "23503", Constraint: "order_items_product_id_fkey"})

	w := performRequest(pt.router, "DELETE", "/products/5", nil, bearer(t, 1, models.RoleAdmin))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_STATE", decodeBody(t, w)["code"])
}

func TestProductHandler_DeleteProduct(t *testing.T) {
	pt := setupProductTest(t)
	require.NoError(t, pt.redis.Set("product:5", "{}"))

	pt.mock.ExpectQuery(productByID).WithArgs(5).WillReturnRows(productRow(5, 1, 10, "12.50"))
	pt.mock.ExpectExec("DELETE FROM products").WithArgs(5).WillReturnResult(sqlmock.NewResult(0, 1))

	w := performRequest(pt.router, "DELETE", "/products/5", nil, bearer(t, 1, models.RoleAdmin))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, pt.redis.Exists("product:5"))
}
