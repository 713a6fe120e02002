package use_cases

import (
	"context"

	"karte/internal/application/dto"
	portsin "karte/internal/application/ports/in"
	portsout "karte/internal/application/ports/out"
	"karte/internal/domain/policies"
	"karte/internal/domain/value_objects"
	apperrors "karte/internal/shared_kernel/errors"
)

type getHealthUseCase struct {
	connectivity portsout.ConnectivityObserver
	breaker      *policies.CircuitBreaker
}

func NewGetHealthUseCase(connectivity portsout.ConnectivityObserver, breaker *policies.CircuitBreaker) portsin.GetHealthUseCase {
	return &getHealthUseCase{
		connectivity: connectivity,
		breaker:      breaker,
	}
}

func (u *getHealthUseCase) Execute(_ context.Context, _ dto.GetHealthCommand) (dto.HealthOutput, *apperrors.AppError) {
	online := u.connectivity == nil || u.connectivity.IsOnline()
	circuitOpen := u.breaker != nil && !u.breaker.CanRequest()
	status := valueobjects.NewHealthStatus(online, circuitOpen)

	return dto.HealthOutput{
		Status: status.String(),
	}, nil
}
