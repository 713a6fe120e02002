//go:build !integration

package use_cases

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"karte/internal/application/dto"
	portsout "karte/internal/application/ports/out"
	"karte/internal/domain/entities"
	"karte/internal/domain/policies"
	apperrors "karte/internal/shared_kernel/errors"

	"github.com/stretchr/testify/require"
)

func TestEnqueueEventStoresRecord(t *testing.T) {
	store := newFakeEventStore()
	useCase := NewEnqueueEventUseCase(store, &fakeConnectivity{online: true}, log.New(io.Discard, "", 0))

	output, appErr := useCase.Execute(context.Background(), dto.EnqueueEventCommand{
		Record: newTestRecord(t, "V1", "P1", entities.NewEvent("buy", nil)),
	})
	require.Nil(t, appErr)
	require.True(t, output.Stored)
	require.Equal(t, int64(1), output.RecordID)
	require.Len(t, store.snapshot(), 1)
}

func TestEnqueueEventSkipsNonRetryableWhileOffline(t *testing.T) {
	store := newFakeEventStore()
	useCase := NewEnqueueEventUseCase(store, &fakeConnectivity{online: false}, nil)

	event := entities.NewEvent(entities.EventNameFetchVariables, nil, entities.WithRetryable(false))
	output, appErr := useCase.Execute(context.Background(), dto.EnqueueEventCommand{
		Record: newTestRecord(t, "V1", "P1", event),
	})
	require.Nil(t, appErr)
	require.False(t, output.Stored)
	require.Equal(t, dto.EnqueueRejectedOfflineNonRetryable, output.Reason)
	require.Empty(t, store.snapshot())

	retryable, appErr := useCase.Execute(context.Background(), dto.EnqueueEventCommand{
		Record: newTestRecord(t, "V1", "P1", entities.NewEvent("buy", nil)),
	})
	require.Nil(t, appErr)
	require.True(t, retryable.Stored)
}

func TestEnqueueEventReportsStoreFailure(t *testing.T) {
	store := newFakeEventStore()
	store.putErr = apperrors.NewValidation("DATASTORE_RECORD_TOO_LARGE", "too large", nil)
	useCase := NewEnqueueEventUseCase(store, nil, nil)

	output, appErr := useCase.Execute(context.Background(), dto.EnqueueEventCommand{
		Record: newTestRecord(t, "V1", "P1", entities.NewEvent("buy", nil)),
	})
	require.NotNil(t, appErr)
	require.False(t, output.Stored)
	require.Equal(t, portsout.FailureID, output.RecordID)
	require.Equal(t, dto.EnqueueRejectedStoreFailed, output.Reason)
}

func TestEnqueueEventRejectsUndecodableRecord(t *testing.T) {
	useCase := NewEnqueueEventUseCase(newFakeEventStore(), nil, nil)

	_, appErr := useCase.Execute(context.Background(), dto.EnqueueEventCommand{
		Record: entities.EventRecord{ID: entities.UnpersistedRecordID, VisitorID: "V1", Event: "{"},
	})
	require.NotNil(t, appErr)
	require.Equal(t, "event_record_invalid", appErr.Code)
}

func TestRecoverEventsResetsRequestingRecords(t *testing.T) {
	requesting := newTestRecord(t, "V1", "P1", entities.NewEvent("buy", nil))
	requesting.State = entities.EventRecordStateRequesting
	store := newFakeEventStore(requesting, newTestRecord(t, "V1", "P1", entities.NewEvent("buy", nil)))

	output, appErr := NewRecoverEventsUseCase(store, nil).Execute(context.Background(), dto.RecoverEventsCommand{})
	require.Nil(t, appErr)
	require.Equal(t, 1, output.Recovered)

	records := store.snapshot()
	require.Equal(t, entities.EventRecordStateFailed, records[0].State)
	require.Equal(t, entities.EventRecordStateQueued, records[1].State)
}

func TestGetQueueOverviewCountsStates(t *testing.T) {
	failed := retriedRecord(newTestRecord(t, "V1", "P1", entities.NewEvent("buy", nil)), 1)
	requesting := newTestRecord(t, "V1", "P1", entities.NewEvent("buy", nil))
	requesting.State = entities.EventRecordStateRequesting
	store := newFakeEventStore(failed, requesting, newTestRecord(t, "V1", "P1", entities.NewEvent("buy", nil)))

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	breaker := policies.NewCircuitBreaker(1, time.Minute, func() time.Time { return now })
	breaker.RecordFailure()

	overview, appErr := NewGetQueueOverviewUseCase(store, breaker, nil, &fakeConnectivity{online: true}).
		Execute(context.Background(), dto.GetQueueOverviewQuery{Now: now})
	require.Nil(t, appErr)
	require.EqualValues(t, 1, overview.QueuedCount)
	require.EqualValues(t, 1, overview.RequestingCount)
	require.EqualValues(t, 1, overview.FailedCount)
	require.Equal(t, entities.MaxRetryCount, overview.MaxRetry)
	require.NotNil(t, overview.OldestRecordID)
	require.Equal(t, int64(1), *overview.OldestRecordID)
	require.True(t, overview.Online)
	require.True(t, overview.CircuitOpen)
	require.False(t, overview.RateLimited)
	require.Equal(t, now, overview.CheckedAt)
}
