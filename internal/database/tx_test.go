package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type counter struct {
	ID    uint `gorm:"primaryKey"`
	Value int
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := ConnectSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&counter{}))
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func TestIsSerializationFailure(t *testing.T) {
	assert.True(t, IsSerializationFailure(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsSerializationFailure(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40001"})))
	assert.False(t, IsSerializationFailure(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsSerializationFailure(errors.New("boom")))
	assert.False(t, IsSerializationFailure(nil))
}

func TestTxOptionsNilForSQLite(t *testing.T) {
	db := openTestDB(t)
	assert.Nil(t, TxOptions(db))
	assert.Nil(t, TxOptions(nil))
}

func TestTransactionRetriesSerializationFailures(t *testing.T) {
	db := openTestDB(t)

	calls := 0
	err := Transaction(context.Background(), db, func(tx *gorm.DB) error {
		calls++
		if calls < 2 {
			return &pgconn.PgError{Code: "40001"}
		}
		return tx.Create(&counter{Value: calls}).Error
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	var stored counter
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, 2, stored.Value)
}

func TestTransactionGivesUpAfterMaxAttempts(t *testing.T) {
	db := openTestDB(t)

	calls := 0
	err := Transaction(context.Background(), db, func(tx *gorm.DB) error {
		calls++
		return &pgconn.PgError{Code: "40001"}
	})
	assert.True(t, IsSerializationFailure(err))
	assert.Equal(t, maxTxAttempts, calls)
}

func TestTransactionRollsBackOnError(t *testing.T) {
	db := openTestDB(t)

	boom := errors.New("boom")
	err := Transaction(context.Background(), db, func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(&counter{Value: 1}).Error)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, db.Model(&counter{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestConnectRedisRejectsEmptyURL(t *testing.T) {
	_, err := ConnectRedis("", nil, "")
	assert.Error(t, err)
}
