package out

import (
	"context"

	"karte/internal/application/dto"
	apperrors "karte/internal/shared_kernel/errors"
)

type PersistenceBootstrapGateway interface {
	CheckReadiness(ctx context.Context) *apperrors.AppError
	RunMigrations(ctx context.Context) *apperrors.AppError
	PrepareContracts(ctx context.Context) ([]dto.ContractStatus, *apperrors.AppError)
}
