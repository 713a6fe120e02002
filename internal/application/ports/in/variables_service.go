package in

import (
	"context"

	"karte/internal/application/dto"
	apperrors "karte/internal/shared_kernel/errors"
)

type VariablesService interface {
	FetchVariables(ctx context.Context, command dto.FetchVariablesCommand) *apperrors.AppError
	GetVariables(ctx context.Context, query dto.GetVariablesQuery) (dto.GetVariablesOutput, *apperrors.AppError)
}
