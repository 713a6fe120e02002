package in

import (
	"context"

	"karte/internal/application/dto"
	apperrors "karte/internal/shared_kernel/errors"
)

type GetOpenAPISpecUseCase interface {
	Execute(ctx context.Context, query dto.GetOpenAPISpecQuery) (dto.OpenAPISpecOutput, *apperrors.AppError)
}
