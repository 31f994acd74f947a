// Package db предоставляет общие функции подключения к базам данных.
// Используется обоими сервисами (Payment, Policy).
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"example.com/travel-insurance/pkg/config"
)

// Connect открывает подключение к хранилищу, выбранному в DB_DRIVER.
func Connect(cfg config.DBConfig, debug bool) (*gorm.DB, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return ConnectSQLite(cfg.SQLitePath, debug)
	default:
		return ConnectMySQL(cfg.MySQL, debug)
	}
}

// ConnectMySQL создаёт подключение к MySQL через GORM.
// Включает PingContext для проверки соединения и настройку пула.
func ConnectMySQL(cfg config.MySQLConfig, debug bool) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), gormConfig(debug))
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к MySQL: %w", err)
	}

	sqlDB, err := ping(db)
	if err != nil {
		return nil, fmt.Errorf("ошибка ping MySQL: %w", err)
	}

	// Настраиваем пул соединений
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

// ConnectSQLite открывает файл SQLite. Путь ":memory:" даёт базу в памяти.
func ConnectSQLite(path string, debug bool) (*gorm.DB, error) {
	// busy_timeout сглаживает конкурентные записи из параллельных запросов
	dsn := path + "?_busy_timeout=5000&_foreign_keys=on"
	if path == ":memory:" {
		// Приватная база на единственном соединении пула
		dsn = "file::memory:?_busy_timeout=5000"
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(debug))
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия SQLite %s: %w", path, err)
	}

	sqlDB, err := ping(db)
	if err != nil {
		return nil, fmt.Errorf("ошибка ping SQLite: %w", err)
	}

	// SQLite допускает одного писателя
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

// Close закрывает пул соединений GORM.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func gormConfig(debug bool) *gorm.Config {
	// Настраиваем логгер GORM
	logLevel := gormlogger.Silent
	if debug {
		logLevel = gormlogger.Info
	}

	return &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
		// Ошибки уникальности драйвера приводятся к gorm.ErrDuplicatedKey
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func ping(db *gorm.DB) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("ошибка получения sql.DB: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, err
	}
	return sqlDB, nil
}
