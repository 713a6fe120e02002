package entities

import (
	"unicode/utf8"

	apperrors "karte/internal/shared_kernel/errors"
)

const (
	// MaxRetryCount is the highest retry number a record may be persisted
	// with. A failure that would push it past this ceiling drops the record.
	MaxRetryCount = 6

	UnpersistedRecordID int64 = -1
)

type EventRecordState int

const (
	EventRecordStateQueued EventRecordState = iota
	EventRecordStateRequesting
	EventRecordStateFailed
)

func (s EventRecordState) String() string {
	switch s {
	case EventRecordStateQueued:
		return "queued"
	case EventRecordStateRequesting:
		return "requesting"
	case EventRecordStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s EventRecordState) Valid() bool {
	return s >= EventRecordStateQueued && s <= EventRecordStateFailed
}

type EventRecord struct {
	ID           int64
	VisitorID    string
	OriginalPvID string
	PvID         string
	Event        string
	Retry        int
	State        EventRecordState
}

type EventGroupKey struct {
	VisitorID    string
	OriginalPvID string
	PvID         string
	Retried      bool
}

func NewEventRecord(visitorID, originalPvID, pvID string, event Event) (EventRecord, *apperrors.AppError) {
	if visitorID == "" {
		return EventRecord{}, apperrors.NewValidation(
			"event_record_visitor_id_missing",
			"visitor id is required",
			map[string]any{"event_name": event.Name},
		)
	}
	serialized, err := event.Serialize()
	if err != nil {
		return EventRecord{}, apperrors.NewValidation(
			"event_record_serialize_failed",
			"failed to serialize event",
			map[string]any{"event_name": event.Name, "error": err.Error()},
		)
	}

	return EventRecord{
		ID:           UnpersistedRecordID,
		VisitorID:    visitorID,
		OriginalPvID: originalPvID,
		PvID:         pvID,
		Event:        serialized,
		Retry:        0,
		State:        EventRecordStateQueued,
	}, nil
}

func (r EventRecord) DecodeEvent() (Event, error) {
	return ParseEvent(r.Event)
}

// Size approximates the stored footprint by character count. Good enough
// for the per-record window guard.
func (r EventRecord) Size() int {
	return utf8.RuneCountInString(r.VisitorID) +
		utf8.RuneCountInString(r.OriginalPvID) +
		utf8.RuneCountInString(r.PvID) +
		utf8.RuneCountInString(r.Event)
}

func (r EventRecord) IsPersisted() bool {
	return r.ID != UnpersistedRecordID && r.ID > 0
}

func (r EventRecord) GroupKey() EventGroupKey {
	return EventGroupKey{
		VisitorID:    r.VisitorID,
		OriginalPvID: r.OriginalPvID,
		PvID:         r.PvID,
		Retried:      r.Retry > 0,
	}
}

func (r EventRecord) NextRetry() int {
	return r.Retry + 1
}

// ShouldDrop reports whether a failed delivery attempt retires the record
// instead of re-queuing it.
func ShouldDrop(nextRetry int, retryable bool) bool {
	return !retryable || nextRetry > MaxRetryCount
}
