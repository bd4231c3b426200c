package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fscabinet/server/internal/database"
	"fscabinet/server/internal/models"
	"fscabinet/server/internal/pricing"
)

// CreateOrderRequest - данные оформления заказа
type CreateOrderRequest struct {
	DeliveryMethod  string `json:"delivery_method" validate:"required,oneof=COURIER SELF_PICKUP"`
	SelfPickupTime  string `json:"self_pickup_time" validate:"required_if=DeliveryMethod SELF_PICKUP"`
	PaymentMethod   string `json:"payment_method" validate:"required,oneof=CASH CARD LIQPAY"`
	CustomerName    string `json:"customer_name" validate:"required,max=100"`
	PhoneNumber     string `json:"phone_number" validate:"required,ua_phone"`
	Settlement      string `json:"settlement" validate:"required_if=DeliveryMethod COURIER,max=100"`
	Street          string `json:"street" validate:"required_if=DeliveryMethod COURIER,max=100"`
	BuildingNumber  string `json:"building_number" validate:"required_if=DeliveryMethod COURIER,max=20"`
	ApartmentNumber string `json:"apartment_number" validate:"max=20"`
	EntranceNumber  string `json:"entrance_number" validate:"max=20"`
	FloorNumber     string `json:"floor_number" validate:"max=20"`
	DoorPhoneNumber string `json:"door_phone_number" validate:"max=20"`
	PeoplesCount    *int   `json:"peoples_count" validate:"omitempty,min=0,max=32767"`
	CustomerComment string `json:"customer_comment" validate:"max=1000"`
}

// OrderNotifier отправляет письмо о новом заказе; ошибки логируются внутри
type OrderNotifier interface {
	SendNewOrderNotification(ctx context.Context, orderID uint)
}

// OrderFilter - фильтры списка заказов в админке
type OrderFilter struct {
	IsRejected     *bool
	Paid           *bool // есть платеж и он оплачен / есть неоплаченный платеж
	PaymentMethod  string
	DeliveryMethod string
	From           *time.Time
	To             *time.Time
	Search         string // телефон или имя покупателя
	Limit          int
	Offset         int
}

// naive форматы времени самовывоза трактуются в часовом поясе заведения
var selfPickupLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// OrderService собирает заказ из корзины и обслуживает заказы в админке
type OrderService struct {
	db       *gorm.DB
	settings *SettingsService
	notifier OrderNotifier
	events   EventPublisher
	localClock
}

// NewOrderService создает новый сервис заказов; notifier и events могут быть nil
func NewOrderService(db *gorm.DB, settings *SettingsService, notifier OrderNotifier, events EventPublisher, loc *time.Location) *OrderService {
	return &OrderService{
		db:         db,
		settings:   settings,
		notifier:   notifier,
		events:     events,
		localClock: newLocalClock(loc),
	}
}

// SetClock подменяет источник времени
func (s *OrderService) SetClock(c Clock) {
	s.clock = c
}

// ParseSelfPickupTime разбирает время самовывоза: RFC3339 или время без зоны (в поясе loc)
func ParseSelfPickupTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	for _, layout := range selfPickupLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid self pickup time %q", value)
}

// CreateOrder превращает корзину сессии в заказ. Вся сборка (покупатель, заказ, позиции,
// адрес, платеж, удаление корзины) выполняется в одной транзакции.
func (s *OrderService) CreateOrder(ctx context.Context, rc RequestContext, req CreateOrderRequest) (*models.Order, error) {
	if err := requireAnonymous(rc); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NewDomainError(CodeCartNotFound)
		}
		return nil, err
	}
	db := s.db.WithContext(ctx)

	cart, err := findCart(db, rc.SessionKey)
	if errors.Is(err, ErrNotFound) {
		return nil, NewDomainError(CodeCartNotFound)
	}
	if err != nil {
		return nil, err
	}

	var itemsCount int64
	if err := db.Model(&models.CartItem{}).Where("cart_id = ?", cart.ID).Count(&itemsCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count cart items: %w", err)
	}
	if itemsCount == 0 {
		return nil, NewDomainError(CodeCartEmpty)
	}

	if err := validateStruct(req); err != nil {
		return nil, err
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	var pickupTime *time.Time
	if req.SelfPickupTime != "" {
		t, err := ParseSelfPickupTime(req.SelfPickupTime, s.loc)
		if err != nil {
			return nil, NewFieldError("self_pickup_time", CodeInvalid, "Datetime has wrong format.")
		}
		if t.Before(s.localNow().Add(settings.MinOrderCompletionTime())) {
			return nil, NewDomainError(CodeSelfPickupTimeTooEarly)
		}
		utc := t.UTC()
		pickupTime = &utc
	}

	var order models.Order
	err = database.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		full, err := loadCart(tx, cart.ID)
		if errors.Is(err, ErrNotFound) {
			return NewDomainError(CodeCartNotFound)
		}
		if err != nil {
			return err
		}
		if len(full.Items) == 0 {
			return NewDomainError(CodeCartEmpty)
		}

		customer, err := upsertCustomer(tx, req.PhoneNumber, req.CustomerName)
		if err != nil {
			return err
		}

		order = buildOrder(rc.SessionKey, req, full, settings, pickupTime)
		order.CustomerID = &customer.ID

		// Позиции, допы, адрес и платеж создаются вместе с заказом
		if err := tx.Create(&order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		return deleteCart(tx, full.ID)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Uint("order_id", order.ID).
		Str("delivery", string(order.DeliveryMethod)).
		Str("payment", string(order.PaymentMethod)).
		Str("total", order.TotalAmount().String()).
		Bool("payment_required", order.IsPaymentRequired()).
		Msg("✅ Заказ оформлен")

	s.publish(ctx, EventOrderCreated, &order)

	// Без онлайн-платежа сотрудники получают письмо сразу, иначе после оплаты
	if !order.IsPaymentRequired() && s.notifier != nil {
		s.notifier.SendNewOrderNotification(ctx, order.ID)
	}

	return &order, nil
}

// upsertCustomer находит покупателя по телефону или создает его. Имя существующего не меняется.
func upsertCustomer(tx *gorm.DB, phone, name string) (*models.Customer, error) {
	var customer models.Customer
	err := tx.Where("phone_number = ?", phone).First(&customer).Error
	if err == nil {
		return &customer, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to find customer: %w", err)
	}

	created := models.Customer{PhoneNumber: phone, Name: name}
	if err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "phone_number"}}, DoNothing: true}).Create(&created).Error; err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	if err := tx.Where("phone_number = ?", phone).First(&customer).Error; err != nil {
		return nil, fmt.Errorf("failed to reload customer: %w", err)
	}
	return &customer, nil
}

// buildOrder копирует содержимое корзины в новый заказ и решает, нужен ли платеж
func buildOrder(sessionKey string, req CreateOrderRequest, cart *models.Cart, settings *models.Settings, pickupTime *time.Time) models.Order {
	paymentMethod := models.PaymentMethod(req.PaymentMethod)
	deliveryMethod := models.DeliveryMethod(req.DeliveryMethod)
	total := cart.TotalAmount()

	order := models.Order{
		SessionKey:      sessionKey,
		DeliveryMethod:  deliveryMethod,
		SelfPickupTime:  pickupTime,
		PeoplesCount:    req.PeoplesCount,
		CustomerComment: req.CustomerComment,
		PaymentMethod:   paymentMethod,
		PrepaymentRequired: paymentMethod != models.PaymentLiqPay &&
			total.GreaterThanOrEqual(settings.OrderPrepaymentStartFrom),
		Items: make([]models.OrderItem, 0, len(cart.Items)),
	}

	for _, line := range cart.Items {
		menuItemID := line.MenuItemID
		item := models.OrderItem{
			MenuItemID: &menuItemID,
			Title:      line.MenuItem.Title,
			Price:      line.MenuItem.Price,
			Volume:     line.MenuItem.Volume,
			Count:      line.Count,
			Additions:  make([]models.AdditionItem, 0, len(line.Additions)),
		}
		for _, a := range line.Additions {
			additionID := a.ID
			item.Additions = append(item.Additions, models.AdditionItem{
				AdditionID: &additionID,
				Title:      a.Title,
				Price:      a.Price,
			})
		}
		order.Items = append(order.Items, item)
	}

	if deliveryMethod == models.DeliveryCourier {
		order.DeliveryAddress = &models.DeliveryAddress{
			Settlement:      req.Settlement,
			Street:          req.Street,
			BuildingNumber:  req.BuildingNumber,
			ApartmentNumber: req.ApartmentNumber,
			EntranceNumber:  req.EntranceNumber,
			FloorNumber:     req.FloorNumber,
			DoorPhoneNumber: req.DoorPhoneNumber,
		}
	}

	switch {
	case paymentMethod == models.PaymentLiqPay:
		order.Transaction = &models.OrderTransaction{
			Type:   models.TransactionFullPayment,
			Status: models.TransactionNotPaid,
			Amount: pricing.FullPaymentAmount(total),
		}
	case order.PrepaymentRequired:
		order.Transaction = &models.OrderTransaction{
			Type:   models.TransactionPrepayment,
			Status: models.TransactionNotPaid,
			Amount: pricing.PrepaymentAmount(total, settings.PrepaymentPercentDecimal()),
		}
	}

	return order
}

// withOrderContents подгружает все дочерние записи заказа
func withOrderContents(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Customer").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("order_items.id") }).
		Preload("Items.Additions", func(db *gorm.DB) *gorm.DB { return db.Order("addition_items.id") }).
		Preload("DeliveryAddress").
		Preload("Transaction")
}

// loadOrder загружает заказ со всем содержимым
func loadOrder(db *gorm.DB, orderID uint) (*models.Order, error) {
	var order models.Order
	if err := withOrderContents(db).First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &order, nil
}

// GetOrder возвращает заказ со всем содержимым
func (s *OrderService) GetOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	return loadOrder(s.db.WithContext(ctx), orderID)
}

// ListOrders - заказы для админки, новые сверху. Возвращает страницу и общее количество.
func (s *OrderService) ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Order{})

	if filter.IsRejected != nil {
		query = query.Where("orders.is_rejected = ?", *filter.IsRejected)
	}
	if filter.Paid != nil {
		status := models.TransactionNotPaid
		if *filter.Paid {
			status = models.TransactionPaid
		}
		query = query.Where("EXISTS (SELECT 1 FROM order_transactions t WHERE t.order_id = orders.id AND t.status = ?)", status)
	}
	if filter.PaymentMethod != "" {
		query = query.Where("orders.payment_method = ?", filter.PaymentMethod)
	}
	if filter.DeliveryMethod != "" {
		query = query.Where("orders.delivery_method = ?", filter.DeliveryMethod)
	}
	if filter.From != nil {
		query = query.Where("orders.created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("orders.created_at < ?", filter.To.UTC())
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.
			Joins("LEFT JOIN customers ON customers.id = orders.customer_id").
			Where("LOWER(customers.name) LIKE ? OR customers.phone_number LIKE ?", like, like)
	}

	// Условия общие для подсчета и выборки страницы
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	var orders []models.Order
	err := withOrderContents(query).
		Order("orders.created_at DESC").
		Order("orders.id DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&orders).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

// RejectOrder отклоняет заказ из админки. Оплаченный заказ отклонить нельзя.
func (s *OrderService) RejectOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	var order *models.Order
	err := database.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		locked, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if locked.Transaction != nil && locked.Transaction.IsPaid() {
			return NewDomainError(CodeCannotBeRejected)
		}
		if !locked.IsRejected {
			if err := tx.Omit(clause.Associations).Model(locked).Update("is_rejected", true).Error; err != nil {
				return fmt.Errorf("failed to reject order: %w", err)
			}
		}
		order, err = loadOrder(tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().Uint("order_id", orderID).Msg("🚫 Заказ отклонен")
	s.publish(ctx, EventOrderRejected, order)
	return order, nil
}

// lockOrder блокирует строку заказа до конца транзакции (отклонение против подтверждения оплаты)
func lockOrder(tx *gorm.DB, orderID uint) (*models.Order, error) {
	var order models.Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}

	var trx models.OrderTransaction
	err = tx.Where("order_id = ?", orderID).First(&trx).Error
	switch {
	case err == nil:
		order.Transaction = &trx
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("failed to load order transaction: %w", err)
	}
	return &order, nil
}

// ListCustomers - покупатели с поиском по имени или телефону
func (s *OrderService) ListCustomers(ctx context.Context, search string, limit, offset int) ([]models.Customer, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Customer{})
	if search = strings.TrimSpace(search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR phone_number LIKE ?", like, like)
	}

	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count customers: %w", err)
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	var customers []models.Customer
	if err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&customers).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list customers: %w", err)
	}
	return customers, total, nil
}

func (s *OrderService) publish(ctx context.Context, eventType OrderEventType, order *models.Order) {
	if s.events == nil || order == nil {
		return
	}
	s.events.Publish(ctx, NewOrderEvent(eventType, order, s.clock()))
}
