package use_cases

import (
	"context"
	"strconv"

	"karte/internal/application/dto"
	portsin "karte/internal/application/ports/in"
	portsout "karte/internal/application/ports/out"
	apperrors "karte/internal/shared_kernel/errors"

	"github.com/cenkalti/backoff/v5"
)

type initializePersistenceUseCase struct {
	gateway portsout.PersistenceBootstrapGateway
}

func NewInitializePersistenceUseCase(gateway portsout.PersistenceBootstrapGateway) portsin.InitializePersistenceUseCase {
	return &initializePersistenceUseCase{
		gateway: gateway,
	}
}

// Execute polls the datastore until it answers, applies the bookkeeping
// migrations and prepares every contract table. A contract whose version
// changed comes back with Recreated set; its queued rows are gone.
func (u *initializePersistenceUseCase) Execute(
	ctx context.Context,
	command dto.InitializePersistenceCommand,
) (dto.InitializePersistenceOutput, *apperrors.AppError) {
	if u.gateway == nil {
		return dto.InitializePersistenceOutput{}, apperrors.NewInternal(
			"PERSISTENCE_GATEWAY_MISSING",
			"persistence gateway is required",
			nil,
		)
	}
	if command.ReadinessTimeout <= 0 {
		return dto.InitializePersistenceOutput{}, apperrors.NewValidation(
			"READINESS_TIMEOUT_INVALID",
			"readiness timeout must be greater than zero",
			nil,
		)
	}
	if command.ReadinessRetryInterval <= 0 {
		return dto.InitializePersistenceOutput{}, apperrors.NewValidation(
			"READINESS_RETRY_INTERVAL_INVALID",
			"readiness retry interval must be greater than zero",
			nil,
		)
	}

	attempts, appErr := u.awaitReadiness(ctx, command)
	output := dto.InitializePersistenceOutput{ReadinessAttempts: attempts}
	if appErr != nil {
		return output, appErr
	}

	if appErr := u.gateway.RunMigrations(ctx); appErr != nil {
		return output, appErr
	}

	contracts, appErr := u.gateway.PrepareContracts(ctx)
	if appErr != nil {
		return output, appErr
	}
	output.Contracts = contracts
	return output, nil
}

func (u *initializePersistenceUseCase) awaitReadiness(
	ctx context.Context,
	command dto.InitializePersistenceCommand,
) (int, *apperrors.AppError) {
	readinessCtx, cancel := context.WithTimeout(ctx, command.ReadinessTimeout)
	defer cancel()

	attempts := 0
	var lastErr *apperrors.AppError
	_, err := backoff.Retry(
		readinessCtx,
		func() (struct{}, error) {
			attempts++
			if appErr := u.gateway.CheckReadiness(readinessCtx); appErr != nil {
				lastErr = appErr
				return struct{}{}, appErr
			}
			return struct{}{}, nil
		},
		backoff.WithBackOff(backoff.NewConstantBackOff(command.ReadinessRetryInterval)),
		backoff.WithMaxElapsedTime(command.ReadinessTimeout),
	)
	if err == nil {
		return attempts, nil
	}

	details := map[string]any{
		"attempts": strconv.Itoa(attempts),
		"timeout":  command.ReadinessTimeout.String(),
	}
	if lastErr != nil {
		details["last_code"] = lastErr.Code
	}
	return attempts, apperrors.NewInternal(
		"DB_READINESS_TIMEOUT",
		"datastore readiness check timed out",
		details,
	)
}
