package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// maxTxAttempts - сколько раз повторяем транзакцию после конфликта сериализации
const maxTxAttempts = 3

// serializationFailure - SQLSTATE конфликта SERIALIZABLE транзакций
const serializationFailure = "40001"

// IsSerializationFailure проверяет, что транзакция отклонена PostgreSQL из-за конкурентного изменения
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == serializationFailure
}

// Transaction выполняет fn в транзакции с уровнем изоляции из TxOptions.
// При конфликте сериализации транзакция повторяется целиком, fn должна быть повторяемой.
func Transaction(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		if opts := TxOptions(db); opts != nil {
			err = db.WithContext(ctx).Transaction(fn, opts)
		} else {
			err = db.WithContext(ctx).Transaction(fn)
		}
		if err == nil || !IsSerializationFailure(err) {
			return err
		}
		log.Warn().Int("attempt", attempt).Msg("⚠️ Конфликт сериализации, повторяем транзакцию")
	}
	return err
}
