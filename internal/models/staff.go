package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Staff - сотрудник заведения (вход в админку, получение писем о заказах).
// Сотрудники не могут оформлять заказы.
type Staff struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"` // UUID как строка
	Username     string    `gorm:"type:varchar(150);uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"type:varchar(255);not null;default:''" json:"email"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`
	IsActive     bool      `gorm:"not null" json:"is_active"`
	IsSuperuser  bool      `gorm:"not null" json:"is_superuser"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName возвращает имя таблицы
func (Staff) TableName() string {
	return "staff"
}

// BeforeCreate генерирует UUID, если он не задан
func (s *Staff) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// ToMap преобразует Staff в map для API ответа
func (s *Staff) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"id":           s.ID,
		"username":     s.Username,
		"email":        s.Email,
		"is_active":    s.IsActive,
		"is_superuser": s.IsSuperuser,
		"created_at":   s.CreatedAt.Format(time.RFC3339),
		"updated_at":   s.UpdatedAt.Format(time.RFC3339),
	}
	if s.LastLoginAt != nil {
		result["last_login_at"] = s.LastLoginAt.Format(time.RFC3339)
	}
	return result
}
