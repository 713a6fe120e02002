//go:build integration

package datastore

import (
	"context"
	"io"
	"log"
	"os"
	"testing"
	"time"

	portsout "karte/internal/application/ports/out"
	apperrors "karte/internal/shared_kernel/errors"
)

func TestStorePostgres_Integration(t *testing.T) {
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TEST_DATABASE_URL to run integration test")
	}

	logger := log.New(io.Discard, "", 0)
	database, err := Open(Config{Engine: EnginePostgres, DSN: databaseURL}, logger)
	if err != nil {
		t.Fatalf("open datastore: %v", err)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	gateway := NewBootstrapGateway(database, []Schema{noteSchema(1)}, logger)
	if appErr := gateway.CheckReadiness(ctx); appErr != nil {
		t.Fatalf("expected readiness success, got %v", appErr)
	}
	if appErr := gateway.RunMigrations(ctx); appErr != nil {
		t.Fatalf("expected migration success, got %v", appErr)
	}
	if appErr := gateway.RunMigrations(ctx); appErr != nil {
		t.Fatalf("expected second migration run success, got %v", appErr)
	}
	if _, appErr := gateway.PrepareContracts(ctx); appErr != nil {
		t.Fatalf("expected contract preparation success, got %v", appErr)
	}

	store, err := NewStore(database, noteContract(), logger)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if appErr := store.DeleteAll(ctx); appErr != nil {
		t.Fatalf("delete all: %v", appErr)
	}

	id, appErr := store.Put(ctx, note{Owner: "a", Body: "one", Weight: 3})
	if appErr != nil {
		t.Fatalf("put: %v", appErr)
	}

	appErr = store.Transaction(ctx, func(tx portsout.Persister[note]) *apperrors.AppError {
		records, appErr := tx.Read(ctx, portsout.Equal("weight", 3))
		if appErr != nil {
			return appErr
		}
		if len(records) != 1 || records[0].ID != id {
			t.Fatalf("expected record %d inside transaction, got %+v", id, records)
		}
		return tx.Delete(ctx, records[0])
	})
	if appErr != nil {
		t.Fatalf("transaction: %v", appErr)
	}

	records, appErr := store.Read(ctx)
	if appErr != nil {
		t.Fatalf("read: %v", appErr)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty table, got %d records", len(records))
	}
}
