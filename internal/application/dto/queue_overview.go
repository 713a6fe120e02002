package dto

import "time"

type GetQueueOverviewQuery struct {
	Now time.Time
}

type QueueOverview struct {
	QueuedCount     int64     `json:"queued_count"`
	RequestingCount int64     `json:"requesting_count"`
	FailedCount     int64     `json:"failed_count"`
	MaxRetry        int       `json:"max_retry"`
	OldestRecordID  *int64    `json:"oldest_record_id,omitempty"`
	CheckedAt       time.Time `json:"checked_at"`
	Online          bool      `json:"online"`
	CircuitOpen     bool      `json:"circuit_open"`
	RateLimited     bool      `json:"rate_limited"`
}
