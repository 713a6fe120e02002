package in

import (
	"context"

	"karte/internal/application/dto"
	apperrors "karte/internal/shared_kernel/errors"
)

type GetHealthUseCase interface {
	Execute(ctx context.Context, command dto.GetHealthCommand) (dto.HealthOutput, *apperrors.AppError)
}
