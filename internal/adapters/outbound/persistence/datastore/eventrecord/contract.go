package eventrecord

import (
	"fmt"
	"log"

	"karte/internal/adapters/outbound/persistence/datastore"
	portsout "karte/internal/application/ports/out"
	"karte/internal/domain/entities"
)

const (
	Namespace = "events"
	Version   = 1
)

var _ portsout.EventRecordStore = (*datastore.Store[entities.EventRecord])(nil)

// Contract maps EventRecord onto the events table.
func Contract() datastore.Contract[entities.EventRecord] {
	return datastore.Contract[entities.EventRecord]{
		Schema: Schema(),
		ID: func(record entities.EventRecord) int64 {
			return record.ID
		},
		WithID: func(record entities.EventRecord, id int64) entities.EventRecord {
			record.ID = id
			return record
		},
		Values: func(record entities.EventRecord) map[string]any {
			return map[string]any{
				portsout.EventRecordColumnVisitorID:    record.VisitorID,
				portsout.EventRecordColumnOriginalPvID: record.OriginalPvID,
				portsout.EventRecordColumnPvID:         record.PvID,
				portsout.EventRecordColumnEvent:        record.Event,
				portsout.EventRecordColumnRetry:        int64(record.Retry),
				portsout.EventRecordColumnState:        int64(record.State),
			}
		},
		Create: create,
	}
}

func Schema() datastore.Schema {
	return datastore.Schema{
		Namespace: Namespace,
		Version:   Version,
		Columns: []datastore.Column{
			{Name: portsout.EventRecordColumnVisitorID, Type: datastore.ColumnText},
			{Name: portsout.EventRecordColumnOriginalPvID, Type: datastore.ColumnText},
			{Name: portsout.EventRecordColumnPvID, Type: datastore.ColumnText},
			{Name: portsout.EventRecordColumnEvent, Type: datastore.ColumnText},
			{Name: portsout.EventRecordColumnRetry, Type: datastore.ColumnInteger},
			{Name: portsout.EventRecordColumnState, Type: datastore.ColumnInteger},
		},
	}
}

func NewStore(database *datastore.Database, logger *log.Logger, opts ...datastore.StoreOption) (*datastore.Store[entities.EventRecord], error) {
	return datastore.NewStore(database, Contract(), logger, opts...)
}

// create rejects rows whose payload no longer parses as an event, which the
// store treats as table corruption.
func create(id int64, values map[string]any) (entities.EventRecord, error) {
	visitorID, err := textValue(values, portsout.EventRecordColumnVisitorID)
	if err != nil {
		return entities.EventRecord{}, err
	}
	originalPvID, err := textValue(values, portsout.EventRecordColumnOriginalPvID)
	if err != nil {
		return entities.EventRecord{}, err
	}
	pvID, err := textValue(values, portsout.EventRecordColumnPvID)
	if err != nil {
		return entities.EventRecord{}, err
	}
	event, err := textValue(values, portsout.EventRecordColumnEvent)
	if err != nil {
		return entities.EventRecord{}, err
	}
	if _, err := entities.ParseEvent(event); err != nil {
		return entities.EventRecord{}, fmt.Errorf("record %d: %w", id, err)
	}
	retry, err := integerValue(values, portsout.EventRecordColumnRetry)
	if err != nil {
		return entities.EventRecord{}, err
	}
	state, err := integerValue(values, portsout.EventRecordColumnState)
	if err != nil {
		return entities.EventRecord{}, err
	}
	recordState := entities.EventRecordState(state)
	if !recordState.Valid() {
		return entities.EventRecord{}, fmt.Errorf("record %d: unknown state %d", id, state)
	}

	return entities.EventRecord{
		ID:           id,
		VisitorID:    visitorID,
		OriginalPvID: originalPvID,
		PvID:         pvID,
		Event:        event,
		Retry:        int(retry),
		State:        recordState,
	}, nil
}

func textValue(values map[string]any, column string) (string, error) {
	switch typed := values[column].(type) {
	case string:
		return typed, nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("column %s: unexpected type %T", column, typed)
	}
}

func integerValue(values map[string]any, column string) (int64, error) {
	typed, ok := values[column].(int64)
	if !ok {
		return 0, fmt.Errorf("column %s: unexpected type %T", column, values[column])
	}
	return typed, nil
}
