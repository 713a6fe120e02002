package docs

import (
	"context"
	"os"

	portsout "karte/internal/application/ports/out"
	apperrors "karte/internal/shared_kernel/errors"
)

const openAPIContentType = "application/yaml; charset=utf-8"

// OpenAPISpecReadModel serves the OpenAPI document from an override file
// when a path is configured, and from the embedded copy otherwise.
type OpenAPISpecReadModel struct {
	path     string
	embedded []byte
}

var _ portsout.OpenAPISpecReadModel = (*OpenAPISpecReadModel)(nil)

func NewOpenAPISpecReadModel(path string, embedded []byte) *OpenAPISpecReadModel {
	return &OpenAPISpecReadModel{
		path:     path,
		embedded: embedded,
	}
}

func (r *OpenAPISpecReadModel) Read(_ context.Context) ([]byte, string, *apperrors.AppError) {
	if r.path == "" {
		if len(r.embedded) == 0 {
			return nil, "", apperrors.NewInternal(
				"OPENAPI_SPEC_MISSING",
				"no OpenAPI spec is configured",
				nil,
			)
		}
		return r.embedded, openAPIContentType, nil
	}

	content, err := os.ReadFile(r.path)
	if err != nil {
		return nil, "", apperrors.NewInternal(
			"OPENAPI_FILE_READ_FAILED",
			"failed to read OpenAPI spec file",
			map[string]any{"path": r.path},
		)
	}

	return content, openAPIContentType, nil
}
