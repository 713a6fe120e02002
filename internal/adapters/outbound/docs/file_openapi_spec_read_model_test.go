//go:build !integration

package docs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenAPISpecReadModelPrefersConfiguredFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openapi.yaml")
	if err := os.WriteFile(path, []byte("openapi: 3.0.3\ninfo:\n  title: override\n"), 0o600); err != nil {
		t.Fatalf("write spec: %v", err)
	}

	content, contentType, appErr := NewOpenAPISpecReadModel(path, []byte("embedded")).Read(context.Background())
	if appErr != nil {
		t.Fatalf("expected no error, got %v", appErr)
	}
	if string(content) == "embedded" {
		t.Fatalf("expected override file content")
	}
	if contentType != openAPIContentType {
		t.Fatalf("unexpected content type %q", contentType)
	}
}

func TestOpenAPISpecReadModelFallsBackToEmbedded(t *testing.T) {
	content, _, appErr := NewOpenAPISpecReadModel("", []byte("embedded")).Read(context.Background())
	if appErr != nil {
		t.Fatalf("expected no error, got %v", appErr)
	}
	if string(content) != "embedded" {
		t.Fatalf("expected embedded content, got %q", content)
	}
}

func TestOpenAPISpecReadModelErrors(t *testing.T) {
	_, _, appErr := NewOpenAPISpecReadModel(filepath.Join(t.TempDir(), "missing.yaml"), nil).Read(context.Background())
	if appErr == nil || appErr.Code != "OPENAPI_FILE_READ_FAILED" {
		t.Fatalf("expected OPENAPI_FILE_READ_FAILED, got %v", appErr)
	}

	_, _, appErr = NewOpenAPISpecReadModel("", nil).Read(context.Background())
	if appErr == nil || appErr.Code != "OPENAPI_SPEC_MISSING" {
		t.Fatalf("expected OPENAPI_SPEC_MISSING, got %v", appErr)
	}
}
