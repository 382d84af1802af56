package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/Egham-7/adaptive-h1/internal/models"
	"github.com/Egham-7/adaptive-h1/internal/services/database"
)

// Service persists finished exchanges and answers per-destination queries
type Service struct {
	db *database.DB
}

func NewService(db *database.DB) *Service {
	return &Service{db: db}
}

func (s *Service) AutoMigrate() error {
	if s.db.IsClickHouse() {
		return database.RunClickHouseMigrations(s.db.DB)
	}
	return s.db.AutoMigrate(&models.ExchangeRecord{})
}

func (s *Service) Record(ctx context.Context, record *models.ExchangeRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to record exchange %s: %w", record.ExchangeID, err)
	}
	return nil
}

func (s *Service) ListByDestination(ctx context.Context, destination string, limit, offset int) ([]models.ExchangeRecord, error) {
	var records []models.ExchangeRecord

	query := s.db.WithContext(ctx).
		Where("destination = ?", destination).
		Order("created_at DESC").
		Order("id DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list exchanges: %w", err)
	}

	return records, nil
}

var summaryColumns = []string{
	"destination",
	"COUNT(*) as total_exchanges",
	"COALESCE(SUM(CASE WHEN succeeded THEN 1 ELSE 0 END), 0) as success_count",
	"COALESCE(SUM(CASE WHEN succeeded THEN 0 ELSE 1 END), 0) as failure_count",
	"COALESCE(SUM(content_bytes), 0) as total_bytes",
	"COALESCE(AVG(latency_ms), 0) as avg_latency_ms",
	"COALESCE(SUM(CASE WHEN reused THEN 1 ELSE 0 END), 0) as reused_exchanges",
}

// Summary aggregates the journal for one destination since the given time.
// A zero since covers the whole journal.
func (s *Service) Summary(ctx context.Context, destination string, since time.Time) (*models.ExchangeSummary, error) {
	var summary models.ExchangeSummary

	query := s.db.WithContext(ctx).
		Model(&models.ExchangeRecord{}).
		Where("destination = ?", destination)

	if !since.IsZero() {
		query = query.Where("created_at >= ?", since)
	}

	err := query.
		Select(summaryColumns).
		Group("destination").
		Scan(&summary).Error
	if err != nil {
		return nil, fmt.Errorf("failed to summarize exchanges: %w", err)
	}

	summary.Destination = destination
	return &summary, nil
}

// Summaries aggregates the journal per destination
func (s *Service) Summaries(ctx context.Context, since time.Time) ([]models.ExchangeSummary, error) {
	var summaries []models.ExchangeSummary

	query := s.db.WithContext(ctx).Model(&models.ExchangeRecord{})
	if !since.IsZero() {
		query = query.Where("created_at >= ?", since)
	}

	err := query.
		Select(summaryColumns).
		Group("destination").
		Order("destination").
		Scan(&summaries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to summarize exchanges: %w", err)
	}

	return summaries, nil
}
