//go:build !integration

package datastore

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"

	portsout "karte/internal/application/ports/out"
	apperrors "karte/internal/shared_kernel/errors"

	"github.com/stretchr/testify/require"
)

type note struct {
	ID     int64
	Owner  string
	Body   string
	Weight int
}

func (n note) Size() int {
	return len(n.Owner) + len(n.Body)
}

func noteSchema(version int) Schema {
	return Schema{
		Namespace: "notes",
		Version:   version,
		Columns: []Column{
			{Name: "owner", Type: ColumnText},
			{Name: "body", Type: ColumnText},
			{Name: "weight", Type: ColumnInteger},
		},
	}
}

func noteContract() Contract[note] {
	return Contract[note]{
		Schema: noteSchema(1),
		ID:     func(n note) int64 { return n.ID },
		WithID: func(n note, id int64) note {
			n.ID = id
			return n
		},
		Values: func(n note) map[string]any {
			return map[string]any{"owner": n.Owner, "body": n.Body, "weight": n.Weight}
		},
		Create: func(id int64, values map[string]any) (note, error) {
			body, _ := values["body"].(string)
			if strings.HasPrefix(body, "corrupt") {
				return note{}, fmt.Errorf("note %d is corrupt", id)
			}
			owner, _ := values["owner"].(string)
			weight, _ := values["weight"].(int64)
			return note{ID: id, Owner: owner, Body: body, Weight: int(weight)}, nil
		},
	}
}

func openTestDatabase(t *testing.T) *Database {
	t.Helper()

	logger := log.New(io.Discard, "", 0)
	database, err := Open(Config{Engine: EngineSQLite, DSN: filepath.Join(t.TempDir(), "karte.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = database.Close()
	})

	gateway := NewBootstrapGateway(database, []Schema{noteSchema(1)}, logger)
	ctx := context.Background()
	require.Nil(t, gateway.CheckReadiness(ctx))
	require.Nil(t, gateway.RunMigrations(ctx))
	_, appErr := gateway.PrepareContracts(ctx)
	require.Nil(t, appErr)
	return database
}

func newNoteStore(t *testing.T, database *Database, opts ...StoreOption) *Store[note] {
	t.Helper()
	store, err := NewStore(database, noteContract(), log.New(io.Discard, "", 0), opts...)
	require.NoError(t, err)
	return store
}

func TestStorePutReadUpdateDelete(t *testing.T) {
	ctx := context.Background()
	store := newNoteStore(t, openTestDatabase(t))

	firstID, appErr := store.Put(ctx, note{Owner: "a", Body: "one", Weight: 1})
	require.Nil(t, appErr)
	secondID, appErr := store.Put(ctx, note{Owner: "b", Body: "two", Weight: 2})
	require.Nil(t, appErr)
	require.Greater(t, secondID, firstID)

	all, appErr := store.Read(ctx)
	require.Nil(t, appErr)
	require.Len(t, all, 2)
	require.Equal(t, "one", all[0].Body)

	filtered, appErr := store.Read(ctx, portsout.Equal("owner", "b"))
	require.Nil(t, appErr)
	require.Len(t, filtered, 1)
	require.Equal(t, secondID, filtered[0].ID)

	others, appErr := store.Read(ctx, portsout.Unequal("weight", 2))
	require.Nil(t, appErr)
	require.Len(t, others, 1)
	require.Equal(t, firstID, others[0].ID)

	updated := filtered[0]
	updated.Body = "two-updated"
	affected, appErr := store.Update(ctx, updated)
	require.Nil(t, appErr)
	require.EqualValues(t, 1, affected)

	require.Nil(t, store.Delete(ctx, all[0]))
	remaining, appErr := store.Read(ctx)
	require.Nil(t, appErr)
	require.Equal(t, []note{{ID: secondID, Owner: "b", Body: "two-updated", Weight: 2}}, remaining)
}

func TestStoreRejectsRecordsAboveWindow(t *testing.T) {
	ctx := context.Background()
	store := newNoteStore(t, openTestDatabase(t), WithWindowSize(8))

	id, appErr := store.Put(ctx, note{Owner: "a", Body: "far too long for the window"})
	require.Equal(t, portsout.FailureID, id)
	require.NotNil(t, appErr)
	require.Equal(t, apperrors.TypeValidation, appErr.Type)

	records, appErr := store.Read(ctx)
	require.Nil(t, appErr)
	require.Empty(t, records)
}

func TestStoreServesCompleteCacheWithoutQuery(t *testing.T) {
	ctx := context.Background()
	database := openTestDatabase(t)
	store := newNoteStore(t, database)

	_, appErr := store.Put(ctx, note{Owner: "a", Body: "one"})
	require.Nil(t, appErr)
	_, appErr = store.Read(ctx)
	require.Nil(t, appErr)

	// A row written behind the store's back stays invisible until the cache
	// is invalidated.
	_, err := database.DB().ExecContext(ctx, `INSERT INTO "notes" ("owner", "body", "weight") VALUES ('x', 'hidden', 0)`)
	require.NoError(t, err)

	cached, appErr := store.Read(ctx)
	require.Nil(t, appErr)
	require.Len(t, cached, 1)

	require.NoError(t, store.Close())
	reloaded, appErr := store.Read(ctx)
	require.Nil(t, appErr)
	require.Len(t, reloaded, 2)
}

func TestStoreTransactionCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	store := newNoteStore(t, openTestDatabase(t))

	_, appErr := store.Put(ctx, note{Owner: "a", Body: "one"})
	require.Nil(t, appErr)

	appErr = store.Transaction(ctx, func(tx portsout.Persister[note]) *apperrors.AppError {
		records, appErr := tx.Read(ctx, portsout.Equal("owner", "a"))
		if appErr != nil {
			return appErr
		}
		for _, record := range records {
			record.Weight = 9
			if _, appErr := tx.Update(ctx, record); appErr != nil {
				return appErr
			}
		}
		_, appErr = tx.Put(ctx, note{Owner: "c", Body: "three"})
		return appErr
	})
	require.Nil(t, appErr)

	records, appErr := store.Read(ctx)
	require.Nil(t, appErr)
	require.Len(t, records, 2)
	require.Equal(t, 9, records[0].Weight)
	require.Equal(t, "c", records[1].Owner)
}

func TestStoreTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := newNoteStore(t, openTestDatabase(t))

	_, appErr := store.Put(ctx, note{Owner: "a", Body: "one"})
	require.Nil(t, appErr)
	_, appErr = store.Read(ctx)
	require.Nil(t, appErr)

	failure := apperrors.NewInternal("test_failure", "abort", nil)
	appErr = store.Transaction(ctx, func(tx portsout.Persister[note]) *apperrors.AppError {
		if _, appErr := tx.Put(ctx, note{Owner: "b", Body: "two"}); appErr != nil {
			return appErr
		}
		return failure
	})
	require.Same(t, failure, appErr)

	records, appErr := store.Read(ctx)
	require.Nil(t, appErr)
	require.Len(t, records, 1)
	require.Equal(t, "a", records[0].Owner)
}

func TestStoreClearsTableOnCorruptRow(t *testing.T) {
	ctx := context.Background()
	database := openTestDatabase(t)
	store := newNoteStore(t, database)

	_, appErr := store.Put(ctx, note{Owner: "a", Body: "one"})
	require.Nil(t, appErr)
	_, err := database.DB().ExecContext(ctx, `INSERT INTO "notes" ("owner", "body", "weight") VALUES ('x', 'corrupt-payload', 0)`)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	records, appErr := store.Read(ctx)
	require.Nil(t, appErr)
	require.Empty(t, records)

	var count int
	require.NoError(t, database.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM "notes"`).Scan(&count))
	require.Zero(t, count)
}

func TestStoreDeleteAll(t *testing.T) {
	ctx := context.Background()
	store := newNoteStore(t, openTestDatabase(t))

	for i := 0; i < 3; i++ {
		_, appErr := store.Put(ctx, note{Owner: "a", Body: fmt.Sprintf("n%d", i)})
		require.Nil(t, appErr)
	}
	require.Nil(t, store.DeleteAll(ctx))

	records, appErr := store.Read(ctx)
	require.Nil(t, appErr)
	require.Empty(t, records)
}

func TestStoreRejectsUnknownColumn(t *testing.T) {
	store := newNoteStore(t, openTestDatabase(t))

	_, appErr := store.Read(context.Background(), portsout.Equal("missing", 1))
	require.NotNil(t, appErr)
	require.Equal(t, "DATASTORE_UNKNOWN_COLUMN", appErr.Code)
}

func TestPrepareSchemaRecreatesTableOnVersionChange(t *testing.T) {
	ctx := context.Background()
	database := openTestDatabase(t)
	store := newNoteStore(t, database)

	_, appErr := store.Put(ctx, note{Owner: "a", Body: "one"})
	require.Nil(t, appErr)

	recreated, err := database.PrepareSchema(ctx, noteSchema(1))
	require.NoError(t, err)
	require.False(t, recreated)

	recreated, err = database.PrepareSchema(ctx, noteSchema(2))
	require.NoError(t, err)
	require.True(t, recreated)

	require.NoError(t, store.Close())
	records, appErr := store.Read(ctx)
	require.Nil(t, appErr)
	require.Empty(t, records)
}

func TestMigrateIsIdempotent(t *testing.T) {
	database := openTestDatabase(t)

	applied, err := database.Migrate(context.Background())
	require.NoError(t, err)
	require.False(t, applied)
}
