package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettingsID - id единственной строки настроек
const SettingsID = 1

// Settings - глобальные настройки заведения (одна строка, создается миграцией).
// Длительности хранятся в минутах.
type Settings struct {
	ID                          uint            `json:"id" gorm:"primaryKey"`
	MinOrderCompletionMinutes   int             `json:"min_order_completion_time" gorm:"not null"`
	OrderPrepaymentStartFrom    decimal.Decimal `json:"order_prepayment_start_from" gorm:"type:numeric(8,0);not null"`
	PrepaymentPercent           int             `json:"prepayment_percent" gorm:"not null"`
	PhoneNumber                 string          `json:"phone_number" gorm:"type:varchar(20);not null;default:''"`
	InstagramURL                string          `json:"instagram_url" gorm:"type:varchar(255);not null;default:''"`
	FacebookURL                 string          `json:"facebook_url" gorm:"type:varchar(255);not null;default:''"`
	Address                     string          `json:"address" gorm:"type:varchar(255);not null;default:''"`
	AddressURL                  string          `json:"address_url" gorm:"type:varchar(255);not null;default:''"`
	WorkSchedule                string          `json:"work_schedule" gorm:"type:varchar(255);not null;default:''"`
	WorkScheduleOnWeekend       string          `json:"work_schedule_on_weekend" gorm:"type:varchar(255);not null;default:''"`
	DeliveryAvailable           bool            `json:"delivery_available" gorm:"not null"`
	DeliveryTimeWithinCityMins  int             `json:"delivery_time_within_city" gorm:"not null"`
	DeliveryTimeBeyondCityMins  int             `json:"delivery_time_beyond_city" gorm:"not null"`
	DeliveryCost                decimal.Decimal `json:"delivery_cost" gorm:"type:numeric(8,0);not null"`
	UpdatedAt                   time.Time       `json:"updated_at" gorm:"autoUpdateTime"`

	// Сотрудники, получающие письма о новых заказах
	NotifyUsers []Staff `json:"notify_users,omitempty" gorm:"many2many:settings_notify_users"`
}

// TableName указывает имя таблицы
func (Settings) TableName() string {
	return "settings"
}

// DefaultSettings - значения, с которыми создается строка настроек
func DefaultSettings() Settings {
	return Settings{
		ID:                         SettingsID,
		MinOrderCompletionMinutes:  30,
		OrderPrepaymentStartFrom:   decimal.NewFromInt(400),
		PrepaymentPercent:          25,
		DeliveryAvailable:          true,
		DeliveryTimeWithinCityMins: 30,
		DeliveryTimeBeyondCityMins: 60,
		DeliveryCost:               decimal.NewFromInt(30),
	}
}

// MinOrderCompletionTime - минимальное время от оформления до самовывоза
func (s *Settings) MinOrderCompletionTime() time.Duration {
	return time.Duration(s.MinOrderCompletionMinutes) * time.Minute
}

// DeliveryTimeWithinCity - время доставки по городу
func (s *Settings) DeliveryTimeWithinCity() time.Duration {
	return time.Duration(s.DeliveryTimeWithinCityMins) * time.Minute
}

// DeliveryTimeBeyondCity - время доставки за город
func (s *Settings) DeliveryTimeBeyondCity() time.Duration {
	return time.Duration(s.DeliveryTimeBeyondCityMins) * time.Minute
}

// PrepaymentPercentDecimal - процент предоплаты для расчетов
func (s *Settings) PrepaymentPercentDecimal() decimal.Decimal {
	return decimal.NewFromInt(int64(s.PrepaymentPercent))
}
