package use_cases

import (
	"context"
	"time"

	"karte/internal/application/dto"
	portsin "karte/internal/application/ports/in"
	portsout "karte/internal/application/ports/out"
	"karte/internal/domain/entities"
	"karte/internal/domain/policies"
	apperrors "karte/internal/shared_kernel/errors"
)

type getQueueOverviewUseCase struct {
	store        portsout.EventRecordStore
	breaker      *policies.CircuitBreaker
	rateLimit    *policies.RateLimit
	connectivity portsout.ConnectivityObserver
}

func NewGetQueueOverviewUseCase(
	store portsout.EventRecordStore,
	breaker *policies.CircuitBreaker,
	rateLimit *policies.RateLimit,
	connectivity portsout.ConnectivityObserver,
) portsin.GetQueueOverviewUseCase {
	return &getQueueOverviewUseCase{
		store:        store,
		breaker:      breaker,
		rateLimit:    rateLimit,
		connectivity: connectivity,
	}
}

func (u *getQueueOverviewUseCase) Execute(
	ctx context.Context,
	query dto.GetQueueOverviewQuery,
) (dto.QueueOverview, *apperrors.AppError) {
	if u.store == nil {
		return dto.QueueOverview{}, apperrors.NewInternal(
			"event_record_store_missing",
			"event record store is required",
			nil,
		)
	}

	now := query.Now.UTC()
	if query.Now.IsZero() {
		now = time.Now().UTC()
	}

	records, appErr := u.store.Read(ctx)
	if appErr != nil {
		return dto.QueueOverview{}, appErr
	}

	overview := dto.QueueOverview{
		MaxRetry:  entities.MaxRetryCount,
		CheckedAt: now,
		Online:    true,
	}
	for _, record := range records {
		switch record.State {
		case entities.EventRecordStateQueued:
			overview.QueuedCount++
		case entities.EventRecordStateRequesting:
			overview.RequestingCount++
		case entities.EventRecordStateFailed:
			overview.FailedCount++
		}
		if overview.OldestRecordID == nil {
			id := record.ID
			overview.OldestRecordID = &id
		}
	}
	if u.connectivity != nil {
		overview.Online = u.connectivity.IsOnline()
	}
	if u.breaker != nil {
		overview.CircuitOpen = !u.breaker.CanRequest()
	}
	if u.rateLimit != nil {
		overview.RateLimited = !u.rateLimit.CanRequest()
	}
	return overview, nil
}
