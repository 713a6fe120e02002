package in

import (
	"context"

	"karte/internal/application/dto"
	apperrors "karte/internal/shared_kernel/errors"
)

type DispatchEventsUseCase interface {
	Execute(ctx context.Context, command dto.DispatchEventsCommand) (dto.DispatchEventsOutput, *apperrors.AppError)
}
