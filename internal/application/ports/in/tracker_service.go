package in

import (
	"context"

	"karte/internal/application/dto"
	apperrors "karte/internal/shared_kernel/errors"
)

// TrackerService is the host-facing surface of the SDK application.
type TrackerService interface {
	Track(ctx context.Context, command dto.TrackEventCommand) (dto.TrackEventOutput, *apperrors.AppError)
	RenewVisitorID(ctx context.Context) (dto.RenewVisitorIDOutput, *apperrors.AppError)
	OptOut(ctx context.Context) (dto.OptOutOutput, *apperrors.AppError)
	OptIn(ctx context.Context) (dto.OptOutOutput, *apperrors.AppError)
	ExecuteCommand(ctx context.Context, command dto.ExecuteCommandCommand) (dto.ExecuteCommandOutput, *apperrors.AppError)
}
