package models

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AutoMigrate создает таблицы в БД и заполняет обязательные данные
func AutoMigrate(db *gorm.DB) error {
	tables := []interface{}{
		&Staff{},
		&Settings{},
		&MenuCategory{},
		&Addition{},
		&MenuItem{},
		&Action{},
		&Cart{},
		&CartItem{},
		&Customer{},
		&Order{},
		&OrderItem{},
		&AdditionItem{},
		&DeliveryAddress{},
		&OrderTransaction{},
	}

	for _, table := range tables {
		if err := db.AutoMigrate(table); err != nil {
			log.Error().Err(err).Msgf("❌ AutoMigrate для %T failed", table)
			return fmt.Errorf("auto migrate %T: %w", table, err)
		}
	}
	log.Info().Int("tables", len(tables)).Msg("✅ Tables migrated successfully")

	if err := EnsureSettings(db); err != nil {
		return err
	}
	return nil
}

// EnsureSettings создает строку настроек со значениями по умолчанию, если ее нет.
// Через API настройки только читаются и обновляются.
func EnsureSettings(db *gorm.DB) error {
	settings := DefaultSettings()
	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&settings)
	if result.Error != nil {
		return fmt.Errorf("failed to seed settings: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		log.Info().Msg("✅ Создана строка настроек по умолчанию")
	}
	return nil
}

// EnsureAdmin создает первого суперпользователя, если сотрудника с таким логином нет.
// Пустой пароль отключает создание.
func EnsureAdmin(db *gorm.DB, username, password, email string) error {
	if username == "" || password == "" {
		log.Warn().Msg("⚠️ ADMIN_PASSWORD не задан, дефолтный администратор не создается")
		return nil
	}

	var existing Staff
	err := db.Where("username = ?", username).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := Staff{
		Username:     username,
		Email:        email,
		PasswordHash: string(passwordHash),
		IsActive:     true,
		IsSuperuser:  true,
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}

	// Администратор сразу получает уведомления о заказах
	settings := Settings{ID: SettingsID}
	if err := db.Model(&settings).Association("NotifyUsers").Append(&admin); err != nil {
		log.Warn().Err(err).Msg("⚠️ Не удалось добавить администратора в список уведомлений")
	}

	log.Info().Str("username", username).Msg("✅ Создан дефолтный администратор")
	return nil
}
