package database

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/Egham-7/adaptive-h1/internal/models"

	"gorm.io/driver/clickhouse"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// dialect describes how one journal store is reached
type dialect struct {
	name  string // reported by DriverName
	label string // used in error messages
	dsn   func(models.DatabaseConfig) (string, error)
	open  func(dsn string) gorm.Dialector
	// gormConfig overrides the shared gorm settings when set
	gormConfig func() *gorm.Config
}

var dialects = map[models.DatabaseType]dialect{
	models.PostgreSQL: {
		name:  "postgres",
		label: "PostgreSQL",
		dsn: func(c models.DatabaseConfig) (string, error) {
			sslMode := c.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
				c.Host, c.Port, c.Username, c.Password, c.Database, sslMode), nil
		},
		open: postgres.Open,
	},
	models.MySQL: {
		name:  "mysql",
		label: "MySQL",
		dsn: func(c models.DatabaseConfig) (string, error) {
			// parseTime keeps created_at scannable into time.Time
			return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
				c.Username, c.Password, c.Host, c.Port, c.Database), nil
		},
		open: mysql.Open,
	},
	models.SQLite: {
		name:  "sqlite3",
		label: "SQLite",
		dsn: func(c models.DatabaseConfig) (string, error) {
			if c.FilePath == "" {
				return "", errors.New("file_path is required for SQLite")
			}
			return c.FilePath, nil
		},
		open: sqlite.Open,
	},
	models.ClickHouse: {
		name:  "clickhouse",
		label: "ClickHouse",
		dsn: func(c models.DatabaseConfig) (string, error) {
			u := url.URL{
				Scheme: "clickhouse",
				User:   url.UserPassword(c.Username, c.Password),
				Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
				Path:   "/" + c.Database,
			}
			return u.String(), nil
		},
		open: func(dsn string) gorm.Dialector {
			return clickhouse.New(clickhouse.Config{
				DSN:                    dsn,
				DefaultGranularity:     3,
				DefaultCompression:     "LZ4",
				DefaultIndexType:       "minmax",
				DefaultTableEngineOpts: "ENGINE=MergeTree() ORDER BY (destination, created_at)",
			})
		},
		gormConfig: func() *gorm.Config {
			cfg := gormConfig()
			// The driver's prepared statement support breaks column introspection
			// (go-gorm/gorm#7493).
			cfg.PrepareStmt = false
			return cfg
		},
	},
}

func lookupDialect(t models.DatabaseType) (dialect, error) {
	d, ok := dialects[t]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported database type: %s", t)
	}
	return d, nil
}

// connectionString returns the explicit DSN or one assembled from the fields
func (d dialect) connectionString(config models.DatabaseConfig) (string, error) {
	if config.DSN != "" {
		return config.DSN, nil
	}
	return d.dsn(config)
}
