//go:build !integration

package use_cases

import (
	"context"
	"testing"
	"time"

	"karte/internal/application/dto"
	"karte/internal/domain/policies"
)

func TestGetHealthUseCase_Execute(t *testing.T) {
	useCase := NewGetHealthUseCase(&fakeConnectivity{online: true}, policies.NewCircuitBreaker(3, time.Minute, nil))

	output, appErr := useCase.Execute(context.Background(), dto.GetHealthCommand{})
	if appErr != nil {
		t.Fatalf("expected no error, got %v", appErr)
	}

	if output.Status != "ok" {
		t.Fatalf("expected status to be ok, got %q", output.Status)
	}
}

func TestGetHealthUseCase_ExecuteDegradedWhenOffline(t *testing.T) {
	useCase := NewGetHealthUseCase(&fakeConnectivity{online: false}, nil)

	output, appErr := useCase.Execute(context.Background(), dto.GetHealthCommand{})
	if appErr != nil {
		t.Fatalf("expected no error, got %v", appErr)
	}

	if output.Status != "degraded" {
		t.Fatalf("expected status to be degraded, got %q", output.Status)
	}
}
