package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// MenuCategory - раздел меню (завтраки, напитки, ...)
// FromTime/ToTime задают окно времени суток, в которое позиции раздела можно заказать
type MenuCategory struct {
	ID         uint            `json:"id" gorm:"primaryKey"`
	Name       string          `json:"name" gorm:"type:varchar(100);not null"`  // Короткое имя (в миниатюрах)
	Title      string          `json:"title" gorm:"type:varchar(100);not null"` // Заголовок секции на странице
	IconURL    string          `json:"icon_url" gorm:"type:varchar(255)"`
	Show       bool            `json:"show" gorm:"not null;index"`
	OrderIndex *int            `json:"order_index"`
	FromTime   *datatypes.Time `json:"from_time"`
	ToTime     *datatypes.Time `json:"to_time"`
	CanOrder   bool            `json:"can_order" gorm:"not null"`
	CreatedAt  time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time       `json:"updated_at" gorm:"autoUpdateTime"`

	MenuItems []MenuItem `json:"menu_items,omitempty" gorm:"foreignKey:CategoryID"`
}

// TableName указывает имя таблицы
func (MenuCategory) TableName() string {
	return "menu_categories"
}

// HasTimeRestriction сообщает, задано ли хотя бы одно из ограничений по времени
func (c *MenuCategory) HasTimeRestriction() bool {
	return c.FromTime != nil || c.ToTime != nil
}

// CanOrderAt проверяет окно доступности для момента localNow (время заведения).
// Границы строгие: from < now < to. Без ограничений раздел доступен всегда.
func (c *MenuCategory) CanOrderAt(localNow time.Time) bool {
	if !c.HasTimeRestriction() {
		return true
	}

	h, m, s := localNow.Clock()
	now := datatypes.NewTime(h, m, s, localNow.Nanosecond())

	if c.FromTime != nil && !(*c.FromTime < now) {
		return false
	}
	if c.ToTime != nil && !(now < *c.ToTime) {
		return false
	}
	return true
}

// Addition - доп к позиции меню (сироп, сыр, ...)
type Addition struct {
	ID        uint            `json:"id" gorm:"primaryKey"`
	Title     string          `json:"title" gorm:"type:varchar(100);not null"`
	Price     decimal.Decimal `json:"price" gorm:"type:numeric(8,0);not null"`
	Show      bool            `json:"show" gorm:"not null;index"`
	CreatedAt time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (Addition) TableName() string {
	return "additions"
}

// MenuItem - позиция меню
type MenuItem struct {
	ID          uint            `json:"id" gorm:"primaryKey"`
	Title       string          `json:"title" gorm:"type:varchar(100);not null"`
	Price       decimal.Decimal `json:"price" gorm:"type:numeric(8,0);not null"`
	ImageURL    string          `json:"image_url" gorm:"type:varchar(255)"`
	Volume      *string         `json:"volume" gorm:"type:varchar(50)"`
	Description *string         `json:"description" gorm:"type:text"`
	Show        bool            `json:"show" gorm:"not null;index"`
	CreatedAt   time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time       `json:"updated_at" gorm:"autoUpdateTime"`

	// При удалении категории позиция остается без категории
	CategoryID *uint         `json:"category_id" gorm:"index"`
	Category   *MenuCategory `json:"category,omitempty" gorm:"foreignKey:CategoryID;constraint:OnDelete:SET NULL"`

	PossibleAdditions []Addition `json:"possible_additions,omitempty" gorm:"many2many:menu_item_possible_additions"`
}

// TableName указывает имя таблицы
func (MenuItem) TableName() string {
	return "menu_items"
}

// Action - промо-баннер на главной странице
type Action struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	Name       string    `json:"name" gorm:"type:varchar(100);not null;default:''"`
	ImageURL   string    `json:"image_url" gorm:"type:varchar(255)"`
	Show       bool      `json:"show" gorm:"not null;index"`
	OrderIndex *int      `json:"order_index"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (Action) TableName() string {
	return "actions"
}
