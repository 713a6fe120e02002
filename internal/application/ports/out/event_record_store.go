package out

import "karte/internal/domain/entities"

const (
	EventRecordColumnVisitorID    = "visitor_id"
	EventRecordColumnOriginalPvID = "original_pv_id"
	EventRecordColumnPvID         = "pv_id"
	EventRecordColumnEvent        = "event"
	EventRecordColumnRetry        = "retry"
	EventRecordColumnState        = "state"
)

type EventRecordStore = DataStore[entities.EventRecord]
