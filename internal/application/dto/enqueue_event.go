package dto

import "karte/internal/domain/entities"

type EnqueueEventCommand struct {
	Record entities.EventRecord
}

type EnqueueEventOutput struct {
	RecordID int64
	Stored   bool
	Reason   string
}

const (
	EnqueueRejectedOfflineNonRetryable = "offline_non_retryable"
	EnqueueRejectedInvalidRecord       = "invalid_record"
	EnqueueRejectedStoreFailed         = "store_failed"
)
