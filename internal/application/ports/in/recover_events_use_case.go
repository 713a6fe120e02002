package in

import (
	"context"

	"karte/internal/application/dto"
	apperrors "karte/internal/shared_kernel/errors"
)

type RecoverEventsUseCase interface {
	Execute(ctx context.Context, command dto.RecoverEventsCommand) (dto.RecoverEventsOutput, *apperrors.AppError)
}
