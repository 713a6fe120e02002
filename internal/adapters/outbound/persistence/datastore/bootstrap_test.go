//go:build !integration

package datastore

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"karte/internal/application/dto"
	"karte/internal/application/use_cases"

	"github.com/stretchr/testify/require"
)

func initializeNotes(t *testing.T, database *Database, version int) dto.InitializePersistenceOutput {
	t.Helper()

	gateway := NewBootstrapGateway(database, []Schema{noteSchema(version)}, log.New(io.Discard, "", 0))
	output, appErr := use_cases.NewInitializePersistenceUseCase(gateway).Execute(
		context.Background(),
		dto.InitializePersistenceCommand{
			ReadinessTimeout:       time.Second,
			ReadinessRetryInterval: 10 * time.Millisecond,
		},
	)
	require.Nil(t, appErr)
	return output
}

func openEmptyDatabase(t *testing.T) *Database {
	t.Helper()

	database, err := Open(
		Config{Engine: EngineSQLite, DSN: filepath.Join(t.TempDir(), "karte.db")},
		log.New(io.Discard, "", 0),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = database.Close()
	})
	return database
}

func TestInitializePersistenceDropsRowsWhenContractVersionChanges(t *testing.T) {
	ctx := context.Background()
	database := openEmptyDatabase(t)

	output := initializeNotes(t, database, 1)
	require.Equal(t, 1, output.ReadinessAttempts)
	require.Equal(t, []dto.ContractStatus{{Namespace: "notes", Version: 1}}, output.Contracts)

	_, appErr := newNoteStore(t, database).Put(ctx, note{Owner: "a", Body: "queued"})
	require.Nil(t, appErr)

	output = initializeNotes(t, database, 1)
	require.Empty(t, output.RecreatedContracts())
	kept, appErr := newNoteStore(t, database).Read(ctx)
	require.Nil(t, appErr)
	require.Len(t, kept, 1)

	output = initializeNotes(t, database, 2)
	require.Equal(t, []dto.ContractStatus{{Namespace: "notes", Version: 2, Recreated: true}}, output.Contracts)
	dropped, appErr := newNoteStore(t, database).Read(ctx)
	require.Nil(t, appErr)
	require.Empty(t, dropped)

	output = initializeNotes(t, database, 2)
	require.Empty(t, output.RecreatedContracts())
}

func TestInitializePersistenceTimesOutOnClosedDatabase(t *testing.T) {
	database := openEmptyDatabase(t)
	require.NoError(t, database.Close())

	gateway := NewBootstrapGateway(database, []Schema{noteSchema(1)}, log.New(io.Discard, "", 0))
	output, appErr := use_cases.NewInitializePersistenceUseCase(gateway).Execute(
		context.Background(),
		dto.InitializePersistenceCommand{
			ReadinessTimeout:       40 * time.Millisecond,
			ReadinessRetryInterval: 5 * time.Millisecond,
		},
	)

	require.NotNil(t, appErr)
	require.Equal(t, "DB_READINESS_TIMEOUT", appErr.Code)
	require.Equal(t, "DB_CONNECT_FAILED", appErr.Details["last_code"])
	require.Greater(t, output.ReadinessAttempts, 1)
	require.Empty(t, output.Contracts)
}
