package models

import "time"

// ExchangeRecord is one journaled request/response exchange
type ExchangeRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ExchangeID   string    `gorm:"not null;size:36;uniqueIndex" json:"exchange_id"`
	Destination  string    `gorm:"not null;size:255;index" json:"destination"`
	Method       string    `gorm:"not null;size:16;default:''" json:"method"`
	Path         string    `gorm:"not null;type:text;default:''" json:"path"`
	Status       int       `gorm:"not null;default:0" json:"status"`
	Succeeded    bool      `gorm:"not null;default:false;index" json:"succeeded"`
	FailureKind  string    `gorm:"not null;size:32;default:''" json:"failure_kind,omitzero"`
	ErrorMessage string    `gorm:"not null;type:text;default:''" json:"error_message,omitzero"`
	BodyMode     string    `gorm:"not null;size:16;default:''" json:"body_mode,omitzero"`
	ContentBytes int64     `gorm:"not null;default:0" json:"content_bytes"`
	Fragments    int       `gorm:"not null;default:0" json:"fragments"`
	Reused       bool      `gorm:"not null;default:false" json:"reused"`
	LatencyMs    int64     `gorm:"not null;default:0" json:"latency_ms"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"`
}

func (ExchangeRecord) TableName() string {
	return "exchange_records"
}

// ExchangeSummary aggregates journaled exchanges for one destination
type ExchangeSummary struct {
	Destination     string  `json:"destination"`
	TotalExchanges  int64   `json:"total_exchanges"`
	SuccessCount    int64   `json:"success_count"`
	FailureCount    int64   `json:"failure_count"`
	TotalBytes      int64   `json:"total_bytes"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
	ReusedExchanges int64   `json:"reused_exchanges"`
}
