package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sqlitePrefix - схема DATABASE_URL для локального запуска без PostgreSQL
const sqlitePrefix = "sqlite://"

// Лимиты пула соединений PostgreSQL
const (
	pgMaxOpenConns    = 25
	pgMaxIdleConns    = 10
	pgConnMaxLifetime = 5 * time.Minute
	pgConnMaxIdleTime = time.Minute
)

// Connect выбирает драйвер по DATABASE_URL: sqlite://path для локальной разработки, иначе PostgreSQL
func Connect(databaseURL string) (*gorm.DB, error) {
	if strings.HasPrefix(databaseURL, sqlitePrefix) {
		return ConnectSQLite(strings.TrimPrefix(databaseURL, sqlitePrefix))
	}
	return ConnectPostgres(databaseURL)
}

// ConnectPostgres открывает пул соединений к PostgreSQL и проверяет его пингом
func ConnectPostgres(databaseURL string) (*gorm.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, sqlDB, err := open(postgres.Open(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	sqlDB.SetMaxOpenConns(pgMaxOpenConns)
	sqlDB.SetMaxIdleConns(pgMaxIdleConns)
	sqlDB.SetConnMaxLifetime(pgConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(pgConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Int("max_open", pgMaxOpenConns).
		Int("max_idle", pgMaxIdleConns).
		Msg("✅ PostgreSQL подключен успешно")
	return db, nil
}

// ConnectSQLite открывает SQLite (pure Go драйвер).
// Одно соединение: SQLite не умеет параллельные транзакции на запись.
func ConnectSQLite(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite dsn is empty")
	}

	db, sqlDB, err := open(sqlite.Open(dsn))
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	log.Info().Str("dsn", dsn).Msg("✅ SQLite подключен")
	return db, nil
}

// open создает *gorm.DB с общими настройками: без SQL-логов, время в UTC
func open(dialector gorm.Dialector) (*gorm.DB, *sql.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return db, sqlDB, nil
}

// Close закрывает пул соединений
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// TxOptions возвращает опции транзакции для многошаговых операций (корзина, оформление заказа).
// На PostgreSQL SERIALIZABLE, остальные диалекты работают с уровнем по умолчанию.
func TxOptions(db *gorm.DB) *sql.TxOptions {
	if db != nil && db.Dialector != nil && db.Dialector.Name() == "postgres" {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}
