package out

import (
	"context"

	apperrors "karte/internal/shared_kernel/errors"
)

// KeyValueRepository is a small namespaced preference store.
type KeyValueRepository interface {
	Get(ctx context.Context, key string) (string, bool, *apperrors.AppError)
	Put(ctx context.Context, key string, value string) *apperrors.AppError
	Remove(ctx context.Context, key string) *apperrors.AppError
	RemoveAll(ctx context.Context) *apperrors.AppError
	Namespace(namespace string) KeyValueRepository
}
