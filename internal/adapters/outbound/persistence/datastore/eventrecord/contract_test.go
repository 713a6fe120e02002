//go:build !integration

package eventrecord

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"

	"karte/internal/adapters/outbound/persistence/datastore"
	portsout "karte/internal/application/ports/out"
	"karte/internal/domain/entities"
	apperrors "karte/internal/shared_kernel/errors"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*datastore.Database, *datastore.Store[entities.EventRecord]) {
	t.Helper()

	ctx := context.Background()
	logger := log.New(io.Discard, "", 0)
	database, err := datastore.Open(datastore.Config{
		Engine: datastore.EngineSQLite,
		DSN:    filepath.Join(t.TempDir(), "events.db"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = database.Close()
	})

	gateway := datastore.NewBootstrapGateway(database, []datastore.Schema{Schema()}, logger)
	require.Nil(t, gateway.RunMigrations(ctx))
	_, appErr := gateway.PrepareContracts(ctx)
	require.Nil(t, appErr)

	store, err := NewStore(database, logger)
	require.NoError(t, err)
	return database, store
}

func newRecord(t *testing.T, visitorID string, name string) entities.EventRecord {
	t.Helper()
	record, appErr := entities.NewEventRecord(visitorID, "P1", "P1", entities.NewEvent(name, map[string]any{"k": "v"}))
	require.Nil(t, appErr)
	return record
}

func TestEventRecordStoreFiltersByState(t *testing.T) {
	ctx := context.Background()
	_, store := newTestStore(t)

	queuedID, appErr := store.Put(ctx, newRecord(t, "V1", "buy"))
	require.Nil(t, appErr)
	_, appErr = store.Put(ctx, newRecord(t, "V1", "view"))
	require.Nil(t, appErr)

	appErr = store.Transaction(ctx, func(tx portsout.Persister[entities.EventRecord]) *apperrors.AppError {
		records, appErr := tx.Read(ctx, portsout.Unequal(portsout.EventRecordColumnState, entities.EventRecordStateRequesting))
		if appErr != nil {
			return appErr
		}
		require.Len(t, records, 2)
		records[1].State = entities.EventRecordStateRequesting
		_, appErr = tx.Update(ctx, records[1])
		return appErr
	})
	require.Nil(t, appErr)

	pending, appErr := store.Read(ctx, portsout.Unequal(portsout.EventRecordColumnState, entities.EventRecordStateRequesting))
	require.Nil(t, appErr)
	require.Len(t, pending, 1)
	require.Equal(t, queuedID, pending[0].ID)

	event, err := pending[0].DecodeEvent()
	require.NoError(t, err)
	require.Equal(t, "buy", event.Name)
	require.Equal(t, "v", event.Values["k"])

	requesting, appErr := store.Read(ctx, portsout.Equal(portsout.EventRecordColumnState, entities.EventRecordStateRequesting))
	require.Nil(t, appErr)
	require.Len(t, requesting, 1)
	require.Equal(t, "view", mustDecode(t, requesting[0]).Name)
}

func TestEventRecordStoreRecoversFromUndecodableEvent(t *testing.T) {
	ctx := context.Background()
	database, store := newTestStore(t)

	_, appErr := store.Put(ctx, newRecord(t, "V1", "buy"))
	require.Nil(t, appErr)
	_, err := database.DB().ExecContext(ctx,
		`INSERT INTO "events" ("visitor_id", "original_pv_id", "pv_id", "event", "retry", "state") VALUES ('V1', 'P1', 'P1', '{not json', 0, 0)`)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	records, appErr := store.Read(ctx)
	require.Nil(t, appErr)
	require.Empty(t, records)

	id, appErr := store.Put(ctx, newRecord(t, "V1", "after"))
	require.Nil(t, appErr)
	records, appErr = store.Read(ctx)
	require.Nil(t, appErr)
	require.Len(t, records, 1)
	require.Equal(t, id, records[0].ID)
}

func TestCreateRejectsUnknownState(t *testing.T) {
	serialized, err := entities.NewEvent("buy", nil).Serialize()
	require.NoError(t, err)

	_, err = create(1, map[string]any{
		portsout.EventRecordColumnVisitorID:    "V1",
		portsout.EventRecordColumnOriginalPvID: "P1",
		portsout.EventRecordColumnPvID:         "P1",
		portsout.EventRecordColumnEvent:        serialized,
		portsout.EventRecordColumnRetry:        int64(0),
		portsout.EventRecordColumnState:        int64(7),
	})
	require.Error(t, err)
}

func mustDecode(t *testing.T, record entities.EventRecord) entities.Event {
	t.Helper()
	event, err := record.DecodeEvent()
	require.NoError(t, err)
	return event
}
