package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fscabinet/server/internal/models"
)

// SettingsService читает и обновляет единственную строку настроек
type SettingsService struct {
	db *gorm.DB
}

// NewSettingsService создает новый сервис настроек
func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{db: db}
}

// Get возвращает настройки; если строки нет (чистая БД без миграции), создает ее со значениями по умолчанию
func (s *SettingsService) Get(ctx context.Context) (*models.Settings, error) {
	return s.get(s.db.WithContext(ctx), false)
}

// GetWithRecipients возвращает настройки вместе со списком получателей уведомлений
func (s *SettingsService) GetWithRecipients(ctx context.Context) (*models.Settings, error) {
	return s.get(s.db.WithContext(ctx), true)
}

func (s *SettingsService) get(db *gorm.DB, withRecipients bool) (*models.Settings, error) {
	query := db
	if withRecipients {
		query = query.Preload("NotifyUsers")
	}

	var settings models.Settings
	err := query.First(&settings, models.SettingsID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := models.EnsureSettings(db); err != nil {
			return nil, err
		}
		err = query.First(&settings, models.SettingsID).Error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return &settings, nil
}

// NotificationEmails - адреса активных сотрудников из списка уведомлений
func (s *SettingsService) NotificationEmails(ctx context.Context) ([]string, error) {
	settings, err := s.GetWithRecipients(ctx)
	if err != nil {
		return nil, err
	}

	emails := make([]string, 0, len(settings.NotifyUsers))
	for _, u := range settings.NotifyUsers {
		if u.IsActive && u.Email != "" {
			emails = append(emails, u.Email)
		}
	}
	return emails, nil
}

// UpdateSettingsRequest - частичное обновление настроек (nil - поле не меняется)
type UpdateSettingsRequest struct {
	MinOrderCompletionMinutes  *int             `json:"min_order_completion_time" binding:"omitempty,gte=0"`
	OrderPrepaymentStartFrom   *decimal.Decimal `json:"order_prepayment_start_from"`
	PrepaymentPercent          *int             `json:"prepayment_percent" binding:"omitempty,gte=0,lte=100"`
	PhoneNumber                *string          `json:"phone_number"`
	InstagramURL               *string          `json:"instagram_url"`
	FacebookURL                *string          `json:"facebook_url"`
	Address                    *string          `json:"address"`
	AddressURL                 *string          `json:"address_url"`
	WorkSchedule               *string          `json:"work_schedule"`
	WorkScheduleOnWeekend      *string          `json:"work_schedule_on_weekend"`
	DeliveryAvailable          *bool            `json:"delivery_available"`
	DeliveryTimeWithinCityMins *int             `json:"delivery_time_within_city" binding:"omitempty,gte=0"`
	DeliveryTimeBeyondCityMins *int             `json:"delivery_time_beyond_city" binding:"omitempty,gte=0"`
	DeliveryCost               *decimal.Decimal `json:"delivery_cost"`
	NotifyUserIDs              *[]string        `json:"notify_user_ids"`
}

// Update применяет изменения к строке настроек. Создать вторую строку нельзя.
func (s *SettingsService) Update(ctx context.Context, req UpdateSettingsRequest) (*models.Settings, error) {
	if req.OrderPrepaymentStartFrom != nil && req.OrderPrepaymentStartFrom.IsNegative() {
		return nil, NewFieldError("order_prepayment_start_from", CodeInvalid, "Ensure this value is greater than or equal to 0.")
	}
	if req.DeliveryCost != nil && req.DeliveryCost.IsNegative() {
		return nil, NewFieldError("delivery_cost", CodeInvalid, "Ensure this value is greater than or equal to 0.")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		settings, err := s.get(tx, false)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{}
		setIf := func(column string, present bool, value interface{}) {
			if present {
				updates[column] = value
			}
		}
		setIf("min_order_completion_minutes", req.MinOrderCompletionMinutes != nil, derefInt(req.MinOrderCompletionMinutes))
		setIf("order_prepayment_start_from", req.OrderPrepaymentStartFrom != nil, derefDecimal(req.OrderPrepaymentStartFrom))
		setIf("prepayment_percent", req.PrepaymentPercent != nil, derefInt(req.PrepaymentPercent))
		setIf("phone_number", req.PhoneNumber != nil, derefString(req.PhoneNumber))
		setIf("instagram_url", req.InstagramURL != nil, derefString(req.InstagramURL))
		setIf("facebook_url", req.FacebookURL != nil, derefString(req.FacebookURL))
		setIf("address", req.Address != nil, derefString(req.Address))
		setIf("address_url", req.AddressURL != nil, derefString(req.AddressURL))
		setIf("work_schedule", req.WorkSchedule != nil, derefString(req.WorkSchedule))
		setIf("work_schedule_on_weekend", req.WorkScheduleOnWeekend != nil, derefString(req.WorkScheduleOnWeekend))
		setIf("delivery_available", req.DeliveryAvailable != nil, req.DeliveryAvailable != nil && *req.DeliveryAvailable)
		setIf("delivery_time_within_city_mins", req.DeliveryTimeWithinCityMins != nil, derefInt(req.DeliveryTimeWithinCityMins))
		setIf("delivery_time_beyond_city_mins", req.DeliveryTimeBeyondCityMins != nil, derefInt(req.DeliveryTimeBeyondCityMins))
		setIf("delivery_cost", req.DeliveryCost != nil, derefDecimal(req.DeliveryCost))

		if len(updates) > 0 {
			if err := tx.Omit(clause.Associations).Model(settings).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to update settings: %w", err)
			}
		}

		if req.NotifyUserIDs != nil {
			staff := []models.Staff{}
			if len(*req.NotifyUserIDs) > 0 {
				if err := tx.Where("id IN ?", *req.NotifyUserIDs).Find(&staff).Error; err != nil {
					return fmt.Errorf("failed to load staff: %w", err)
				}
				if len(staff) != len(*req.NotifyUserIDs) {
					return NewFieldError("notify_user_ids", CodeInvalid, "Unknown staff id.")
				}
			}
			if err := tx.Model(settings).Association("NotifyUsers").Replace(staff); err != nil {
				return fmt.Errorf("failed to update notify users: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetWithRecipients(ctx)
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefDecimal(v *decimal.Decimal) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return *v
}
