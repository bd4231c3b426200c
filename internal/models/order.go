package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"fscabinet/server/internal/pricing"
)

// DeliveryMethod - способ получения заказа
type DeliveryMethod string

const (
	DeliveryCourier    DeliveryMethod = "COURIER"     // Доставка курьером
	DeliverySelfPickup DeliveryMethod = "SELF_PICKUP" // Самовывоз
)

// PaymentMethod - способ оплаты
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "CASH"
	PaymentCard   PaymentMethod = "CARD"
	PaymentLiqPay PaymentMethod = "LIQPAY"
)

// TransactionType - тип платежа по заказу
type TransactionType string

const (
	TransactionPrepayment  TransactionType = "PREPAYMENT"
	TransactionFullPayment TransactionType = "FULL_PAYMENT"
)

// TransactionStatus - статус платежа по заказу
type TransactionStatus string

const (
	TransactionPaid    TransactionStatus = "PAID"
	TransactionNotPaid TransactionStatus = "NOT_PAID"
)

// Label возвращает человекочитаемое название для писем и выгрузки
func (m DeliveryMethod) Label() string {
	switch m {
	case DeliveryCourier:
		return "Кур'єр"
	case DeliverySelfPickup:
		return "Самовивіз"
	}
	return string(m)
}

// Label возвращает человекочитаемое название
func (m PaymentMethod) Label() string {
	switch m {
	case PaymentCash:
		return "Готівка"
	case PaymentCard:
		return "Картка"
	case PaymentLiqPay:
		return "LiqPay"
	}
	return string(m)
}

// Label возвращает человекочитаемое название
func (t TransactionType) Label() string {
	switch t {
	case TransactionPrepayment:
		return "Передоплата"
	case TransactionFullPayment:
		return "Повна оплата"
	}
	return string(t)
}

// Label возвращает человекочитаемое название
func (s TransactionStatus) Label() string {
	switch s {
	case TransactionPaid:
		return "Оплачено"
	case TransactionNotPaid:
		return "Не оплачено"
	}
	return string(s)
}

// Customer - покупатель, идентифицируется номером телефона
type Customer struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	PhoneNumber string    `json:"phone_number" gorm:"type:varchar(13);uniqueIndex;not null"`
	Name        string    `json:"name" gorm:"type:varchar(100);not null"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (Customer) TableName() string {
	return "customers"
}

// Order - оформленный заказ. Позиции копируются из корзины и дальше не меняются.
type Order struct {
	ID                 uint           `json:"id" gorm:"primaryKey"`
	SessionKey         string         `json:"session_key" gorm:"type:varchar(40);not null;index"`
	DeliveryMethod     DeliveryMethod `json:"delivery_method" gorm:"type:varchar(20);not null"`
	SelfPickupTime     *time.Time     `json:"self_pickup_time"`
	PeoplesCount       *int           `json:"peoples_count"`
	CustomerComment    string         `json:"customer_comment" gorm:"type:text;not null;default:''"`
	PaymentMethod      PaymentMethod  `json:"payment_method" gorm:"type:varchar(20);not null"`
	PrepaymentRequired bool           `json:"prepayment_required" gorm:"not null"`
	IsRejected         bool           `json:"is_rejected" gorm:"not null;index"`
	CreatedAt          time.Time      `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt          time.Time      `json:"updated_at" gorm:"autoUpdateTime"`

	CustomerID *uint     `json:"customer_id" gorm:"index"`
	Customer   *Customer `json:"customer,omitempty" gorm:"foreignKey:CustomerID;constraint:OnDelete:SET NULL"`

	Items           []OrderItem       `json:"items" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	DeliveryAddress *DeliveryAddress  `json:"delivery_address,omitempty" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Transaction     *OrderTransaction `json:"transaction,omitempty" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

// TableName указывает имя таблицы
func (Order) TableName() string {
	return "orders"
}

// IsPaymentRequired - заказ требует онлайн-платежа (предоплата или полная оплата через LiqPay)
func (o *Order) IsPaymentRequired() bool {
	return o.PrepaymentRequired || o.PaymentMethod == PaymentLiqPay
}

// TotalAmount - сумма всех позиций заказа (Items и их Additions должны быть загружены)
func (o *Order) TotalAmount() decimal.Decimal {
	totals := make([]decimal.Decimal, 0, len(o.Items))
	for i := range o.Items {
		totals = append(totals, o.Items[i].TotalAmount())
	}
	return pricing.Sum(totals...)
}

// OrderItem - снимок позиции меню на момент заказа
type OrderItem struct {
	ID         uint            `json:"id" gorm:"primaryKey"`
	OrderID    uint            `json:"order_id" gorm:"not null;index"`
	MenuItemID *uint           `json:"menu_item_id" gorm:"index"`
	Title      string          `json:"title" gorm:"type:varchar(100);not null"`
	Price      decimal.Decimal `json:"price" gorm:"type:numeric(8,0);not null"`
	Volume     *string         `json:"volume" gorm:"type:varchar(50)"`
	Count      int             `json:"count" gorm:"not null"`

	MenuItem  *MenuItem      `json:"-" gorm:"foreignKey:MenuItemID;constraint:OnDelete:SET NULL"`
	Additions []AdditionItem `json:"additions" gorm:"foreignKey:OrderItemID;constraint:OnDelete:CASCADE"`
}

// TableName указывает имя таблицы
func (OrderItem) TableName() string {
	return "order_items"
}

// TotalAmount - (цена + цены допов) × количество
func (oi *OrderItem) TotalAmount() decimal.Decimal {
	prices := make([]decimal.Decimal, 0, len(oi.Additions))
	for _, a := range oi.Additions {
		prices = append(prices, a.Price)
	}
	return pricing.LineTotal(oi.Price, prices, oi.Count)
}

// AdditionItem - снимок допа на момент заказа
type AdditionItem struct {
	ID          uint            `json:"id" gorm:"primaryKey"`
	OrderItemID uint            `json:"order_item_id" gorm:"not null;index"`
	AdditionID  *uint           `json:"addition_id" gorm:"index"`
	Title       string          `json:"title" gorm:"type:varchar(100);not null"`
	Price       decimal.Decimal `json:"price" gorm:"type:numeric(8,0);not null"`

	Addition *Addition `json:"-" gorm:"foreignKey:AdditionID;constraint:OnDelete:SET NULL"`
}

// TableName указывает имя таблицы
func (AdditionItem) TableName() string {
	return "addition_items"
}

// DeliveryAddress - адрес курьерской доставки (только для COURIER)
type DeliveryAddress struct {
	ID              uint   `json:"id" gorm:"primaryKey"`
	OrderID         uint   `json:"order_id" gorm:"uniqueIndex;not null"`
	Settlement      string `json:"settlement" gorm:"type:varchar(100);not null"`
	Street          string `json:"street" gorm:"type:varchar(100);not null"`
	BuildingNumber  string `json:"building_number" gorm:"type:varchar(20);not null"`
	ApartmentNumber string `json:"apartment_number" gorm:"type:varchar(20);not null;default:''"`
	EntranceNumber  string `json:"entrance_number" gorm:"type:varchar(20);not null;default:''"`
	FloorNumber     string `json:"floor_number" gorm:"type:varchar(20);not null;default:''"`
	DoorPhoneNumber string `json:"door_phone_number" gorm:"type:varchar(20);not null;default:''"`
}

// TableName указывает имя таблицы
func (DeliveryAddress) TableName() string {
	return "delivery_addresses"
}

// OrderTransaction - платеж по заказу (предоплата или полная оплата).
// AdditionalData хранит последний ответ платежного шлюза и перезаписывается каждым коллбеком.
type OrderTransaction struct {
	ID             uint              `json:"id" gorm:"primaryKey"`
	OrderID        uint              `json:"order_id" gorm:"uniqueIndex;not null"`
	Type           TransactionType   `json:"type" gorm:"type:varchar(20);not null"`
	Status         TransactionStatus `json:"status" gorm:"type:varchar(20);not null;default:'NOT_PAID'"`
	Amount         decimal.Decimal   `json:"amount" gorm:"type:numeric(8,0);not null"`
	AdditionalData datatypes.JSONMap `json:"additional_data"`
	CreatedAt      time.Time         `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time         `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (OrderTransaction) TableName() string {
	return "order_transactions"
}

// IsPaid сообщает, оплачен ли платеж
func (t *OrderTransaction) IsPaid() bool {
	return t.Status == TransactionPaid
}

// PaymentDescription - назначение платежа для платежного шлюза
func (t *OrderTransaction) PaymentDescription() string {
	if t.Type == TransactionPrepayment {
		return fmt.Sprintf("Prepayment for order ID %d", t.OrderID)
	}
	return fmt.Sprintf("Payment for order ID %d", t.OrderID)
}
