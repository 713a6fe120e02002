package valueobjects

import (
	"strings"

	apperrors "karte/internal/shared_kernel/errors"
)

type OperationMode string

const (
	OperationModeDefault OperationMode = "DEFAULT"
	OperationModeIngest  OperationMode = "INGEST"
)

func ParseOperationMode(raw string) (OperationMode, *apperrors.AppError) {
	switch OperationMode(strings.ToUpper(strings.TrimSpace(raw))) {
	case OperationModeDefault, "":
		return OperationModeDefault, nil
	case OperationModeIngest:
		return OperationModeIngest, nil
	default:
		return "", apperrors.NewValidation(
			"invalid_configuration",
			"operation mode must be DEFAULT or INGEST",
			map[string]any{"field": "operation_mode", "value": raw},
		)
	}
}

// EndpointPath is the collection path appended to the base URL.
func (m OperationMode) EndpointPath() string {
	if m == OperationModeIngest {
		return "/ingest"
	}
	return "/track"
}

func (m OperationMode) String() string {
	return string(m)
}
