package in

import (
	"context"

	"karte/internal/application/dto"
	apperrors "karte/internal/shared_kernel/errors"
)

type InitializePersistenceUseCase interface {
	Execute(ctx context.Context, command dto.InitializePersistenceCommand) (dto.InitializePersistenceOutput, *apperrors.AppError)
}
