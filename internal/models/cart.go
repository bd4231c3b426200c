package models

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fscabinet/server/internal/pricing"
)

// Cart - корзина анонимной сессии. Создается при первом добавлении позиции,
// удаляется при оформлении заказа.
type Cart struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	SessionKey string    `json:"session_key" gorm:"type:varchar(40);uniqueIndex;not null"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Items []CartItem `json:"items" gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
}

// TableName указывает имя таблицы
func (Cart) TableName() string {
	return "carts"
}

// TotalAmount - сумма всех позиций корзины (Items должны быть загружены вместе с MenuItem и Additions)
func (c *Cart) TotalAmount() decimal.Decimal {
	totals := make([]decimal.Decimal, 0, len(c.Items))
	for i := range c.Items {
		totals = append(totals, c.Items[i].TotalAmount())
	}
	return pricing.Sum(totals...)
}

// CartItem - строка корзины: позиция меню + точный набор допов.
// AdditionsKey - канонический ключ набора допов ("1,4,7"), по нему ищется существующая строка.
type CartItem struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	CartID       uint      `json:"cart_id" gorm:"not null;uniqueIndex:idx_cart_items_line"`
	MenuItemID   uint      `json:"menu_item_id" gorm:"not null;uniqueIndex:idx_cart_items_line"`
	AdditionsKey string    `json:"-" gorm:"type:varchar(255);not null;default:'';uniqueIndex:idx_cart_items_line"`
	Count        int       `json:"count" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	MenuItem  MenuItem   `json:"menu_item" gorm:"foreignKey:MenuItemID;constraint:OnDelete:CASCADE"`
	Additions []Addition `json:"additions" gorm:"many2many:cart_item_additions"`
}

// TableName указывает имя таблицы
func (CartItem) TableName() string {
	return "cart_items"
}

// TotalAmount - (цена позиции + цены допов) × количество
func (ci *CartItem) TotalAmount() decimal.Decimal {
	prices := make([]decimal.Decimal, 0, len(ci.Additions))
	for _, a := range ci.Additions {
		prices = append(prices, a.Price)
	}
	return pricing.LineTotal(ci.MenuItem.Price, prices, ci.Count)
}

// AdditionsKeyFor строит канонический ключ набора допов: уникальные id по возрастанию через запятую
func AdditionsKeyFor(ids []uint) string {
	if len(ids) == 0 {
		return ""
	}
	uniq := make(map[uint]struct{}, len(ids))
	sorted := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := uniq[id]; ok {
			continue
		}
		uniq[id] = struct{}{}
		sorted = append(sorted, int(id))
	}
	sort.Ints(sorted)

	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
