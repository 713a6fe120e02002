package in

import (
	"context"

	"karte/internal/application/dto"
	apperrors "karte/internal/shared_kernel/errors"
)

type GetQueueOverviewUseCase interface {
	Execute(ctx context.Context, query dto.GetQueueOverviewQuery) (dto.QueueOverview, *apperrors.AppError)
}
