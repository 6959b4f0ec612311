package database

import (
	"fmt"
	"time"

	"github.com/AzielCF/az-compare/core/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// GlobalDB holds the connection opened by NewDatabase.
var GlobalDB *gorm.DB

// NewDatabase opens the configured vendor database and stores it in GlobalDB.
func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := NewDatabaseWithCustomPath(cfg, cfg.Database.Name)
	if err == nil {
		GlobalDB = db
	}
	return db, err
}

// NewDatabaseWithCustomPath opens path (a file for SQLite, a database name for
// Postgres) with the global settings.
func NewDatabaseWithCustomPath(cfg *config.Config, path string) (*gorm.DB, error) {
	dialector, err := openDialector(cfg.Database, path)
	if err != nil {
		return nil, err
	}

	level := logger.Warn
	if cfg.App.Debug {
		level = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(level),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database (%s): %w", path, err)
	}

	if err := tunePool(db, cfg.Database.Driver); err != nil {
		return nil, err
	}
	return db, nil
}

func openDialector(cfg config.DatabaseConfig, path string) (gorm.Dialector, error) {
	switch cfg.Driver {
	case DriverPostgres:
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
			cfg.Host, cfg.User, cfg.Password, path, cfg.Port)
		return postgres.Open(dsn), nil
	case DriverSQLite, "":
		return sqlite.Open(fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on", path)), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// tunePool keeps SQLite on a single writer; the vendor tables are read-mostly
// so Postgres gets a small pool.
func tunePool(db *gorm.DB, driver string) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB instance: %w", err)
	}
	if driver == DriverPostgres {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
	} else {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	return nil
}

// Close releases db and clears GlobalDB when it points to the same connection.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	if GlobalDB == db {
		GlobalDB = nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
