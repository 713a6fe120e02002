package valueobjects

import (
	"strings"

	apperrors "karte/internal/shared_kernel/errors"
)

const appKeyLength = 32

type AppKey string

func NewAppKey(raw string) (AppKey, *apperrors.AppError) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) != appKeyLength {
		return "", apperrors.NewValidation(
			"invalid_configuration",
			"app key must be 32 characters",
			map[string]any{"field": "app_key", "length": len(trimmed)},
		)
	}
	return AppKey(trimmed), nil
}

func (k AppKey) String() string {
	return string(k)
}

// Masked keeps only the last four characters, for logs.
func (k AppKey) Masked() string {
	if len(k) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(k)-4) + string(k[len(k)-4:])
}
