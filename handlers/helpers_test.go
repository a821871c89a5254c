package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"shop-svc/middleware"
	"shop-svc/models"
	"shop-svc/payment"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
)

var testTokens = middleware.NewTokenIssuer("test-secret", time.Hour, 24*time.Hour)

func init() {
	gin.SetMode(gin.TestMode)
}

func bearer(t *testing.T, userID int, role models.Role) string {
	t.Helper()
	token, err := testTokens.Issue(&models.User{ID: userID, Email: "user@example.com", Role: role}, middleware.TokenTypeAccess)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	return "Bearer " + token
}

func performRequest(router *gin.Engine, method, path string, body any, auth string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			_ = json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return body
}

type mockOrders struct {
	mock.Mock
}

func (m *mockOrders) order(args mock.Arguments) (*models.Order, error) {
	order, _ := args.Get(0).(*models.Order)
	return order, args.Error(1)
}

func (m *mockOrders) CreateOrder(ctx context.Context, buyerID int, lines []models.OrderLine) (*models.Order, error) {
	return m.order(m.Called(ctx, buyerID, lines))
}

func (m *mockOrders) GetOrdersForUser(ctx context.Context, userID int) ([]models.Order, error) {
	args := m.Called(ctx, userID)
	orders, _ := args.Get(0).([]models.Order)
	return orders, args.Error(1)
}

func (m *mockOrders) GetOrder(ctx context.Context, orderID, userID int) (*models.Order, error) {
	return m.order(m.Called(ctx, orderID, userID))
}

func (m *mockOrders) CancelOrder(ctx context.Context, orderID, userID int) (*models.Order, error) {
	return m.order(m.Called(ctx, orderID, userID))
}

func (m *mockOrders) CancelOrderAsSeller(ctx context.Context, orderID, sellerID int) (*models.Order, error) {
	return m.order(m.Called(ctx, orderID, sellerID))
}

func (m *mockOrders) SetOrderStatus(ctx context.Context, orderID int, status models.OrderStatus) (*models.Order, error) {
	return m.order(m.Called(ctx, orderID, status))
}

func (m *mockOrders) CreatePaymentOnlyOrder(ctx context.Context, req models.PaymentOnlyOrder) (*models.Order, error) {
	return m.order(m.Called(ctx, req))
}

type mockCheckout struct {
	mock.Mock
}

func (m *mockCheckout) CreateCheckoutSession(ctx context.Context, p payment.CheckoutParams) (*models.CheckoutSession, error) {
	args := m.Called(ctx, p)
	session, _ := args.Get(0).(*models.CheckoutSession)
	return session, args.Error(1)
}
