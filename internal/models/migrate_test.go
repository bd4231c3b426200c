package models

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestAutoMigrateSeedsSettingsOnce(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, AutoMigrate(db))
	require.NoError(t, AutoMigrate(db))

	var settings []Settings
	require.NoError(t, db.Find(&settings).Error)
	require.Len(t, settings, 1)

	s := settings[0]
	assert.Equal(t, uint(SettingsID), s.ID)
	assert.Equal(t, 30, s.MinOrderCompletionMinutes)
	assert.Equal(t, 25, s.PrepaymentPercent)
	assert.True(t, decimal.NewFromInt(400).Equal(s.OrderPrepaymentStartFrom))
	assert.True(t, s.DeliveryAvailable)
}

func TestEnsureSettingsKeepsEditedValues(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	require.NoError(t, db.Model(&Settings{ID: SettingsID}).Update("prepayment_percent", 50).Error)
	require.NoError(t, EnsureSettings(db))

	var s Settings
	require.NoError(t, db.First(&s, SettingsID).Error)
	assert.Equal(t, 50, s.PrepaymentPercent)
}

func TestEnsureAdmin(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	require.NoError(t, EnsureAdmin(db, "admin", "s3cret", "admin@example.com"))
	require.NoError(t, EnsureAdmin(db, "admin", "other", "admin@example.com"))

	var staff []Staff
	require.NoError(t, db.Find(&staff).Error)
	require.Len(t, staff, 1)
	assert.True(t, staff[0].IsSuperuser)
	assert.True(t, staff[0].IsActive)
	assert.NotEmpty(t, staff[0].ID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(staff[0].PasswordHash), []byte("s3cret")))

	var settings Settings
	require.NoError(t, db.Preload("NotifyUsers").First(&settings, SettingsID).Error)
	require.Len(t, settings.NotifyUsers, 1)
	assert.Equal(t, "admin", settings.NotifyUsers[0].Username)
}

func TestEnsureAdminSkipsWithoutPassword(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	require.NoError(t, EnsureAdmin(db, "admin", "", ""))

	var count int64
	require.NoError(t, db.Model(&Staff{}).Count(&count).Error)
	assert.Zero(t, count)
}
