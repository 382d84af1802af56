package database

import (
	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// RunClickHouseMigrations creates the journal tables directly; gorm's
// AutoMigrate does not work reliably with the ClickHouse driver.
func RunClickHouseMigrations(db *gorm.DB) error {
	recordsSQL := `
	CREATE TABLE IF NOT EXISTS exchange_records (
		id UInt64,
		exchange_id String NOT NULL,
		destination String NOT NULL,
		method String NOT NULL DEFAULT '',
		path String NOT NULL DEFAULT '',
		status Int32 NOT NULL DEFAULT 0,
		succeeded UInt8 NOT NULL DEFAULT 0,
		failure_kind String NOT NULL DEFAULT '',
		error_message String NOT NULL DEFAULT '',
		body_mode String NOT NULL DEFAULT '',
		content_bytes Int64 NOT NULL DEFAULT 0,
		fragments Int32 NOT NULL DEFAULT 0,
		reused UInt8 NOT NULL DEFAULT 0,
		latency_ms Int64 NOT NULL DEFAULT 0,
		created_at DateTime NOT NULL DEFAULT now()
	) ENGINE = MergeTree()
	ORDER BY (destination, created_at)
	SETTINGS index_granularity = 8192;
	`

	if err := db.Exec(recordsSQL).Error; err != nil {
		return err
	}

	indexSQL := []string{
		`CREATE INDEX IF NOT EXISTS idx_exchange_records_exchange_id ON exchange_records (exchange_id) TYPE minmax GRANULARITY 3`,
		`CREATE INDEX IF NOT EXISTS idx_exchange_records_succeeded ON exchange_records (succeeded) TYPE minmax GRANULARITY 3`,
	}

	for _, sql := range indexSQL {
		if err := db.Exec(sql).Error; err != nil {
			// Indexes might already exist
			fiberlog.Debugf("ClickHouse index skipped: %v", err)
			continue
		}
	}

	return nil
}
