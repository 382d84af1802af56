package database

import (
	"fmt"
	"time"

	"github.com/Egham-7/adaptive-h1/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB wraps the gorm handle of the journal store together with the driver that
// opened it.
type DB struct {
	*gorm.DB
	config     models.DatabaseConfig
	driverName string
}

func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (db *DB) Ping() error {
	if db.DB == nil {
		return fmt.Errorf("database not connected")
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (db *DB) DriverName() string {
	return db.driverName
}

// IsClickHouse reports whether tables must be created with ClickHouse DDL
func (db *DB) IsClickHouse() bool {
	return db.driverName == "clickhouse"
}

func (db *DB) setConnectionPool() {
	if db.DB == nil {
		return
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		return
	}

	if db.config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(db.config.MaxOpenConns)
	}
	if db.config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(db.config.MaxIdleConns)
	}
	if db.config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(db.config.ConnMaxLifetime) * time.Second)
	}
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}
}

// New opens the store selected by config.Type and verifies it answers
func New(config models.DatabaseConfig) (*DB, error) {
	d, err := lookupDialect(config.Type)
	if err != nil {
		return nil, err
	}
	dsn, err := d.connectionString(config)
	if err != nil {
		return nil, err
	}

	settings := gormConfig()
	if d.gormConfig != nil {
		settings = d.gormConfig()
	}

	gormDB, err := gorm.Open(d.open(dsn), settings)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", d.label, err)
	}

	db := &DB{
		DB:         gormDB,
		config:     config,
		driverName: d.name,
	}
	db.setConnectionPool()

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", d.label, err)
	}
	return db, nil
}
