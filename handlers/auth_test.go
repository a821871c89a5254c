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
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

var userCols = []string{"id", "name", "email", "password_hash", "role", "created_at"}

func setupAuthTest(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	handler := NewAuthHandler(store.New(db), testTokens, logger)

	router := gin.New()
	router.POST("/auth/register", handler.Register)
	router.POST("/auth/login", handler.Login)
	router.POST("/auth/refresh", handler.Refresh)

	authed := router.Group("", middleware.AuthMiddleware(testTokens))
	authed.GET("/auth/me", handler.Me)
	admin := authed.Group("/users", middleware.RequireRole(models.RoleAdmin))
	admin.GET("", handler.ListUsers)
	admin.GET("/:id", handler.GetUser)

	return mock, router
}

func TestAuthHandler_Register_Success(t *testing.T) {
	mock, router := setupAuthTest(t)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("alice", "alice@example.com", sqlmock.AnyArg(), "user").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, time.Now()))

	w := performRequest(router, "POST", "/auth/register", gin.H{
		"email":    "Alice@Example.com",
		"password": "password123",
	}, "")

	if w.Code != http.StatusCreated {
		t.Errorf("Expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	data := decodeBody(t, w)["data"].(map[string]any)
	if data["access_token"] == "" || data["refresh_token"] == "" {
		t.Errorf("Expected tokens in response, got %v", data)
	}
	if _, leaked := data["user"].(map[string]any)["password_hash"]; leaked {
		t.Errorf("Password hash must not be serialized")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestAuthHandler_Register_UserExists(t *testing.T) {
	mock, router := setupAuthTest(t)

	mock.ExpectQuery("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	w := performRequest(router, "POST", "/auth/register", gin.H{
		"name":     "Alice",
		"email":    "alice@example.com",
		"password": "password123",
	}, "")

	if w.Code != http.StatusConflict {
		t.Errorf("Expected status %d, got %d", http.StatusConflict, w.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestAuthHandler_Register_InvalidInput(t *testing.T) {
	_, router := setupAuthTest(t)

	cases := []gin.H{
		{"email": "not-an-email", "password": "password123"},
		{"email": "alice@example.com", "password": "123"},
		{"email": "alice@example.com", "password": "password123", "role": "superuser"},
	}
	for _, body := range cases {
		w := performRequest(router, "POST", "/auth/register", body, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status %d, got %d for %v", http.StatusBadRequest, w.Code, body)
		}
	}
}

func TestAuthHandler_Login(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name     string
		password string
		want     int
	}{
		{"correct password", "password123", http.StatusOK},
		{"wrong password", "password124", http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock, router := setupAuthTest(t)
			mock.ExpectQuery("SELECT (.+) FROM users WHERE email = \\$1").
				WithArgs("alice@example.com").
				WillReturnRows(sqlmock.NewRows(userCols).AddRow(1, "Alice", "alice@example.com", string(hash), "user", time.Now()))

			w := performRequest(router, "POST", "/auth/login", gin.H{
				"email":    "alice@example.com",
				"password": tc.password,
			}, "")

			if w.Code != tc.want {
				t.Errorf("Expected status %d, got %d", tc.want, w.Code)
			}
		})
	}
}

func TestAuthHandler_Login_UnknownEmail(t *testing.T) {
	mock, router := setupAuthTest(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email = \\$1").
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows(userCols))

	w := performRequest(router, "POST", "/auth/login", gin.H{
		"email":    "ghost@example.com",
		"password": "password123",
	}, "")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestAuthHandler_Refresh(t *testing.T) {
	mock, router := setupAuthTest(t)

	refresh, err := testTokens.Issue(&models.User{ID: 1, Role: models.RoleUser}, middleware.TokenTypeRefresh)
	if err != nil {
		t.Fatal(err)
	}
	mock.ExpectQuery("SELECT (.+) FROM users WHERE id = \\$1").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(1, "Alice", "alice@example.com", "x", "admin", time.Now()))

	w := performRequest(router, "POST", "/auth/refresh", gin.H{"refresh_token": refresh}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	access := decodeBody(t, w)["data"].(map[string]any)["access_token"].(string)
	claims, err := testTokens.Parse(access, middleware.TokenTypeAccess)
	if err != nil {
		t.Fatalf("Issued access token does not parse: %v", err)
	}
	if claims.Role != models.RoleAdmin {
		t.Errorf("Expected refreshed role %q, got %q", models.RoleAdmin, claims.Role)
	}
}

func TestAuthHandler_Refresh_RejectsAccessToken(t *testing.T) {
	_, router := setupAuthTest(t)

	access, _ := testTokens.Issue(&models.User{ID: 1, Role: models.RoleUser}, middleware.TokenTypeAccess)
	w := performRequest(router, "POST", "/auth/refresh", gin.H{"refresh_token": access}, "")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestAuthHandler_Me(t *testing.T) {
	mock, router := setupAuthTest(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id = \\$1").
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(4, "Bob", "bob@example.com", "x", "user", time.Now()))

	w := performRequest(router, "GET", "/auth/me", nil, bearer(t, 4, models.RoleUser))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
}

func TestAuthHandler_ListUsers_AdminOnly(t *testing.T) {
	mock, router := setupAuthTest(t)

	w := performRequest(router, "GET", "/users", nil, bearer(t, 4, models.RoleUser))
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status %d, got %d", http.StatusForbidden, w.Code)
	}

	mock.ExpectQuery("SELECT (.+) FROM users ORDER BY id").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(4, "Bob", "bob@example.com", "x", "user", time.Now()))

	w = performRequest(router, "GET", "/users", nil, bearer(t, 1, models.RoleAdmin))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}
