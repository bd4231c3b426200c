package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"fscabinet/server/internal/database"
	"fscabinet/server/internal/liqpay"
	"fscabinet/server/internal/models"
	"fscabinet/server/internal/services"
)

const (
	testCookie        = "sessionid"
	testAdminUser     = "admin"
	testAdminPassword = "admin-password"
	testLiqPaySecret  = "sandbox_private"
)

var testLoc = time.FixedZone("EET", 2*60*60)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	t       *testing.T
	db      *gorm.DB
	router  *gin.Engine
	gateway *liqpay.Client
	auth    *services.AuthService
	hub     *Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.ConnectSQLite(fmt.Sprintf("file:api_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, models.AutoMigrate(db))
	require.NoError(t, models.EnsureAdmin(db, testAdminUser, testAdminPassword, "admin@example.com"))

	gateway := liqpay.NewClient("sandbox_public", testLiqPaySecret)
	settings := services.NewSettingsService(db)
	carts := services.NewCartService(db, testLoc)
	orders := services.NewOrderService(db, settings, nil, nil, testLoc)
	payments := services.NewPaymentService(db, gateway, nil, nil, nil)
	auth := services.NewAuthService(db, "test-secret", time.Hour)
	hub := NewHub()

	router, err := NewRouter(RouterDeps{
		Menu:              services.NewMenuService(db, nil),
		Carts:             carts,
		Orders:            orders,
		Payments:          payments,
		Settings:          settings,
		Auth:              auth,
		Export:            services.NewExportService(orders, testLoc),
		Hub:               hub,
		Health:            NewHealthChecker(db, nil),
		SessionCookieName: testCookie,
		PublicBaseURL:     "https://shop.example.com",
		Location:          testLoc,
		RateLimitRPS:      1000,
		RateLimitBurst:    1000,
	})
	require.NoError(t, err)

	return &testServer{t: t, db: db, router: router, gateway: gateway, auth: auth, hub: hub}
}

// client - браузер покупателя или сотрудника с постоянной cookie сессии
type client struct {
	srv     *testServer
	session string
	token   string
}

func (s *testServer) anonymous() *client {
	return &client{srv: s, session: uuid.New().String()}
}

func (s *testServer) staff(username, password string) *client {
	s.t.Helper()
	c := s.anonymous()
	resp := c.postJSON("/api/v1/auth/login", map[string]string{"username": username, "password": password})
	require.Equal(s.t, http.StatusOK, resp.Code, resp.Body.String())

	var body struct {
		Token string `json:"token"`
	}
	require.NoError(s.t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.NotEmpty(s.t, body.Token)
	c.token = body.Token
	return c
}

func (s *testServer) admin() *client {
	return s.staff(testAdminUser, testAdminPassword)
}

func (c *client) do(method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.AddCookie(&http.Cookie{Name: testCookie, Value: c.session})
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	w := httptest.NewRecorder()
	c.srv.router.ServeHTTP(w, req)
	return w
}

func (c *client) get(target string) *httptest.ResponseRecorder {
	return c.do(http.MethodGet, target, nil, "")
}

func (c *client) postJSON(target string, payload interface{}) *httptest.ResponseRecorder {
	c.srv.t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(c.srv.t, err)
	return c.do(http.MethodPost, target, strings.NewReader(string(raw)), "application/json")
}

func (c *client) postForm(target string, form url.Values) *httptest.ResponseRecorder {
	return c.do(http.MethodPost, target, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func (s *testServer) createMenuItem(title string, price int64) *models.MenuItem {
	s.t.Helper()
	category := models.MenuCategory{Name: "main", Title: "Основне", Show: true, CanOrder: true}
	require.NoError(s.t, s.db.Create(&category).Error)

	item := &models.MenuItem{Title: title, Price: decimal.NewFromInt(price), Show: true, CategoryID: &category.ID}
	require.NoError(s.t, s.db.Omit("Category").Create(item).Error)
	return item
}

func (s *testServer) cartItemID(session string) uint {
	s.t.Helper()
	var item models.CartItem
	require.NoError(s.t, s.db.
		Joins("JOIN carts ON carts.id = cart_items.cart_id").
		Where("carts.session_key = ?", session).
		First(&item).Error)
	return item.ID
}

func selfPickupOrder(payment models.PaymentMethod) map[string]interface{} {
	return map[string]interface{}{
		"delivery_method":  string(models.DeliverySelfPickup),
		"self_pickup_time": time.Now().Add(3 * time.Hour).Format(time.RFC3339),
		"payment_method":   string(payment),
		"customer_name":    "Олена",
		"phone_number":     "+380991234567",
	}
}

// testContext stands in for testing.T.Context (Go 1.24+): a context that is
// canceled when the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
