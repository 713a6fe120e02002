package use_cases

import (
	"context"
	"log"

	"karte/internal/application/dto"
	portsin "karte/internal/application/ports/in"
	portsout "karte/internal/application/ports/out"
	"karte/internal/domain/entities"
	apperrors "karte/internal/shared_kernel/errors"
)

type recoverEventsUseCase struct {
	store  portsout.EventRecordStore
	logger *log.Logger
}

// NewRecoverEventsUseCase returns the startup step that hands records left
// Requesting by a previous process back to the retry path.
func NewRecoverEventsUseCase(store portsout.EventRecordStore, logger *log.Logger) portsin.RecoverEventsUseCase {
	return &recoverEventsUseCase{
		store:  store,
		logger: logger,
	}
}

func (u *recoverEventsUseCase) Execute(ctx context.Context, _ dto.RecoverEventsCommand) (dto.RecoverEventsOutput, *apperrors.AppError) {
	if u.store == nil {
		return dto.RecoverEventsOutput{}, apperrors.NewInternal(
			"event_record_store_missing",
			"event record store is required",
			nil,
		)
	}

	output := dto.RecoverEventsOutput{}
	appErr := u.store.Transaction(ctx, func(tx portsout.Persister[entities.EventRecord]) *apperrors.AppError {
		records, appErr := tx.Read(ctx, portsout.Equal(portsout.EventRecordColumnState, entities.EventRecordStateRequesting))
		if appErr != nil {
			return appErr
		}
		for _, record := range records {
			record.State = entities.EventRecordStateFailed
			if _, appErr := tx.Update(ctx, record); appErr != nil {
				return appErr
			}
			output.Recovered++
		}
		return nil
	})
	if appErr != nil {
		return dto.RecoverEventsOutput{}, appErr
	}

	if output.Recovered > 0 {
		u.logf("in-flight events recovered count=%d state=%s", output.Recovered, entities.EventRecordStateFailed)
	}
	return output, nil
}

func (u *recoverEventsUseCase) logf(format string, args ...any) {
	if u == nil || u.logger == nil {
		return
	}
	u.logger.Printf(format, args...)
}
