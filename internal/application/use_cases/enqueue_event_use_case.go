package use_cases

import (
	"context"
	"log"

	"karte/internal/application/dto"
	portsin "karte/internal/application/ports/in"
	portsout "karte/internal/application/ports/out"
	"karte/internal/domain/policies"
	apperrors "karte/internal/shared_kernel/errors"
)

type enqueueEventUseCase struct {
	store        portsout.EventRecordStore
	connectivity portsout.ConnectivityObserver
	logger       *log.Logger
}

func NewEnqueueEventUseCase(
	store portsout.EventRecordStore,
	connectivity portsout.ConnectivityObserver,
	logger *log.Logger,
) portsin.EnqueueEventUseCase {
	return &enqueueEventUseCase{
		store:        store,
		connectivity: connectivity,
		logger:       logger,
	}
}

func (u *enqueueEventUseCase) Execute(
	ctx context.Context,
	command dto.EnqueueEventCommand,
) (dto.EnqueueEventOutput, *apperrors.AppError) {
	if u.store == nil {
		return dto.EnqueueEventOutput{}, apperrors.NewInternal(
			"event_record_store_missing",
			"event record store is required",
			nil,
		)
	}

	record := command.Record
	event, err := record.DecodeEvent()
	if err != nil {
		return dto.EnqueueEventOutput{Reason: dto.EnqueueRejectedInvalidRecord}, apperrors.NewValidation(
			"event_record_invalid",
			"event record payload cannot be decoded",
			map[string]any{"error": err.Error()},
		)
	}

	// A non-retryable event cannot survive a failed first attempt, so it is
	// not worth storing while offline.
	if !event.IsRetryable && u.connectivity != nil && !u.connectivity.IsOnline() {
		u.logf("event not queued event=%s reason=%s", event.Name, dto.EnqueueRejectedOfflineNonRetryable)
		return dto.EnqueueEventOutput{Reason: dto.EnqueueRejectedOfflineNonRetryable}, nil
	}

	for _, message := range policies.EventDeprecationMessages(event) {
		u.logf("event validation warning kind=deprecated %s", message)
	}
	for _, message := range policies.EventInvalidMessages(event) {
		u.logf("event validation warning kind=invalid %s", message)
	}

	id, appErr := u.store.Put(ctx, record)
	if appErr != nil || id == portsout.FailureID {
		code := ""
		if appErr != nil {
			code = appErr.Code
		}
		u.logf("event not queued event=%s reason=%s code=%s", event.Name, dto.EnqueueRejectedStoreFailed, code)
		return dto.EnqueueEventOutput{RecordID: portsout.FailureID, Reason: dto.EnqueueRejectedStoreFailed}, appErr
	}

	return dto.EnqueueEventOutput{RecordID: id, Stored: true}, nil
}

func (u *enqueueEventUseCase) logf(format string, args ...any) {
	if u == nil || u.logger == nil {
		return
	}
	u.logger.Printf(format, args...)
}
