package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"fscabinet/server/internal/database"
	"fscabinet/server/internal/liqpay"
	"fscabinet/server/internal/mailer"
	"fscabinet/server/internal/models"
	"fscabinet/server/internal/utils"
)

// Часовой пояс заведения в тестах (без зависимости от tzdata)
var testLoc = time.FixedZone("EET", 2*60*60)

// 30 октября 2021, 12:00 по времени заведения
var testNow = time.Date(2021, 10, 30, 12, 0, 0, 0, testLoc)

const (
	testSession      = "session-1"
	otherSession     = "session-2"
	testLiqPayPublic = "sandbox_public"
	testLiqPaySecret = "sandbox_private"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []uint
}

func (f *fakeNotifier) SendNewOrderNotification(_ context.Context, orderID uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, orderID)
}

func (f *fakeNotifier) Sent() []uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint(nil), f.sent...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event OrderEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Types() []OrderEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]OrderEventType, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

type captureMailer struct {
	mu       sync.Mutex
	messages []mailer.Message
	err      error
}

func (m *captureMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

type testEnv struct {
	ctx      context.Context
	db       *gorm.DB
	mr       *miniredis.Miniredis
	redis    *utils.RedisClient
	gateway  *liqpay.Client
	notifier *fakeNotifier
	events   *recordingPublisher
	settings *SettingsService
	carts    *CartService
	orders   *OrderService
	payments *PaymentService
	menu     *MenuService
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.ConnectSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := openTestDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	redisUtil := utils.NewRedisClient(client)

	clock := func() time.Time { return testNow }
	env := &testEnv{
		ctx:      context.Background(),
		db:       db,
		mr:       mr,
		redis:    redisUtil,
		gateway:  liqpay.NewClient(testLiqPayPublic, testLiqPaySecret),
		notifier: &fakeNotifier{},
		events:   &recordingPublisher{},
	}
	env.settings = NewSettingsService(db)
	env.carts = NewCartService(db, testLoc)
	env.carts.SetClock(clock)
	env.orders = NewOrderService(db, env.settings, env.notifier, env.events, testLoc)
	env.orders.SetClock(clock)
	env.payments = NewPaymentService(db, env.gateway, redisUtil, env.notifier, env.events)
	env.payments.SetClock(clock)
	env.menu = NewMenuService(db, redisUtil)
	return env
}

func anon(session string) RequestContext {
	return RequestContext{SessionKey: session}
}

func staffContext() RequestContext {
	return RequestContext{SessionKey: testSession, Authenticated: true, StaffID: "staff-1"}
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func uintPtr(v uint) *uint {
	return &v
}

func timeOfDay(h, m int) *datatypes.Time {
	t := datatypes.NewTime(h, m, 0, 0)
	return &t
}

func (e *testEnv) createCategory(t *testing.T, mutate func(c *models.MenuCategory)) *models.MenuCategory {
	t.Helper()
	category := &models.MenuCategory{Name: "main", Title: "Основне", Show: true, CanOrder: true}
	if mutate != nil {
		mutate(category)
	}
	require.NoError(t, e.db.Create(category).Error)
	return category
}

func (e *testEnv) createAddition(t *testing.T, title string, price int64) models.Addition {
	t.Helper()
	addition := models.Addition{Title: title, Price: dec(price), Show: true}
	require.NoError(t, e.db.Create(&addition).Error)
	return addition
}

func (e *testEnv) createMenuItem(t *testing.T, title string, price int64, category *models.MenuCategory, additions ...models.Addition) *models.MenuItem {
	t.Helper()
	item := &models.MenuItem{Title: title, Price: dec(price), Show: true, PossibleAdditions: additions}
	if category != nil {
		item.CategoryID = &category.ID
	}
	require.NoError(t, e.db.Omit("Category", "PossibleAdditions.*").Create(item).Error)
	return item
}

func (e *testEnv) addToCart(t *testing.T, session string, item *models.MenuItem, count int, additionIDs ...uint) decimal.Decimal {
	t.Helper()
	total, err := e.carts.AddToCart(e.ctx, anon(session), AddToCartRequest{
		MenuItemID:  &item.ID,
		Count:       &count,
		AdditionIDs: additionIDs,
	})
	require.NoError(t, err)
	return total
}

func (e *testEnv) setPrepaymentThreshold(t *testing.T, amount int64) {
	t.Helper()
	threshold := dec(amount)
	_, err := e.settings.Update(e.ctx, UpdateSettingsRequest{OrderPrepaymentStartFrom: &threshold})
	require.NoError(t, err)
}

// fillCart кладет в корзину две позиции по 10 и 20 без допов
func (e *testEnv) fillCart(t *testing.T, session string) {
	t.Helper()
	category := e.createCategory(t, nil)
	e.addToCart(t, session, e.createMenuItem(t, "Капучино", 10, category), 1)
	e.addToCart(t, session, e.createMenuItem(t, "Круасан", 20, category), 1)
}

func selfPickupRequest(payment models.PaymentMethod) CreateOrderRequest {
	return CreateOrderRequest{
		DeliveryMethod: string(models.DeliverySelfPickup),
		SelfPickupTime: testNow.Add(2 * time.Hour).Format(time.RFC3339),
		PaymentMethod:  string(payment),
		CustomerName:   "Олена",
		PhoneNumber:    "+380991234567",
	}
}

func courierRequest(payment models.PaymentMethod) CreateOrderRequest {
	return CreateOrderRequest{
		DeliveryMethod:  string(models.DeliveryCourier),
		PaymentMethod:   string(payment),
		CustomerName:    "Олена",
		PhoneNumber:     "+380991234567",
		Settlement:      "Київ",
		Street:          "Хрещатик",
		BuildingNumber:  "1",
		ApartmentNumber: "12",
	}
}

func (e *testEnv) createOrder(t *testing.T, session string, req CreateOrderRequest) *models.Order {
	t.Helper()
	order, err := e.orders.CreateOrder(e.ctx, anon(session), req)
	require.NoError(t, err)
	return order
}

// signedCallback кодирует поля коллбека так, как их присылает LiqPay
func (e *testEnv) signedCallback(t *testing.T, fields map[string]interface{}) (string, string) {
	t.Helper()
	raw, err := json.Marshal(fields)
	require.NoError(t, err)
	data := base64.StdEncoding.EncodeToString(raw)
	return data, e.gateway.Sign(data)
}

func (e *testEnv) reloadTransaction(t *testing.T, orderID uint) models.OrderTransaction {
	t.Helper()
	var trx models.OrderTransaction
	require.NoError(t, e.db.Where("order_id = ?", orderID).First(&trx).Error)
	return trx
}
