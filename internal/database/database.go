package database

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/schoollibrary/internal/entities"
)

// dsnParams enables WAL and waits on locks instead of failing with
// SQLITE_BUSY. Foreign keys are off by default in SQLite.
const dsnParams = "?_journal=WAL&_timeout=5000&_busy_timeout=5000&_foreign_keys=on"

// At most one active loan per item, enforced by the database itself.
const activeLoanIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_loans_one_active
	ON loans(item_id) WHERE state = 'active'`

type Database struct {
	DB *gorm.DB
}

func NewDatabase(dbPath string, log zerolog.Logger) (*Database, error) {
	gormLogger := logger.New(
		&log,
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(sqlite.Open(dbPath+dsnParams), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// Writers are serialized by SQLite anyway; one connection keeps
	// transactions from tripping over each other's locks.
	sqlDB.SetMaxOpenConns(1)

	log.Info().Str("path", dbPath).Msg("database initialized")

	return &Database{DB: db}, nil
}

// Migrate creates or updates all tables and indexes.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&entities.CatalogEntry{},
		&entities.LoanRecord{},
		&entities.User{},
		&entities.AuditEvent{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := db.Exec(activeLoanIndex).Error; err != nil {
		return fmt.Errorf("failed to create active loan index: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
