package in

import (
	"context"

	"karte/internal/application/dto"
	apperrors "karte/internal/shared_kernel/errors"
)

type EnqueueEventUseCase interface {
	Execute(ctx context.Context, command dto.EnqueueEventCommand) (dto.EnqueueEventOutput, *apperrors.AppError)
}
