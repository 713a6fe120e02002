package out

import (
	"context"

	"karte/internal/application/dto"
	apperrors "karte/internal/shared_kernel/errors"
)

// TrackGateway performs one collection request. Any HTTP status is
// returned as a response; an error means no usable response was obtained.
type TrackGateway interface {
	Send(ctx context.Context, request dto.TrackRequest) (dto.TrackResponse, *apperrors.AppError)
}
