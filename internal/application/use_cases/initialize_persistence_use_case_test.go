//go:build !integration

package use_cases

import (
	"context"
	"testing"
	"time"

	"karte/internal/application/dto"
	apperrors "karte/internal/shared_kernel/errors"

	"github.com/stretchr/testify/require"
)

var fastReadiness = dto.InitializePersistenceCommand{
	ReadinessTimeout:       200 * time.Millisecond,
	ReadinessRetryInterval: 2 * time.Millisecond,
}

func TestInitializePersistenceReportsPreparedContracts(t *testing.T) {
	unreachable := apperrors.NewInternal("DB_CONNECT_FAILED", "failed", nil)
	gateway := &scriptedPersistenceGateway{
		readiness: []*apperrors.AppError{unreachable, unreachable, nil},
		contracts: []dto.ContractStatus{
			{Namespace: "event_records", Version: 2, Recreated: true},
			{Namespace: "preferences", Version: 1},
		},
	}

	output, appErr := NewInitializePersistenceUseCase(gateway).Execute(context.Background(), fastReadiness)

	require.Nil(t, appErr)
	require.Equal(t, 3, output.ReadinessAttempts)
	require.Equal(t, gateway.contracts, output.Contracts)
	require.Equal(t, []string{"event_records"}, output.RecreatedContracts())
	require.Equal(t, []string{"ready", "ready", "ready", "migrate", "contracts"}, gateway.calls)
}

func TestInitializePersistenceStopsAtFailingStage(t *testing.T) {
	tests := []struct {
		name      string
		gateway   *scriptedPersistenceGateway
		command   dto.InitializePersistenceCommand
		wantCode  string
		wantCalls []string
	}{
		{
			name: "datastore never ready",
			gateway: &scriptedPersistenceGateway{
				readiness: []*apperrors.AppError{apperrors.NewInternal("DB_CONNECT_FAILED", "failed", nil)},
			},
			command: dto.InitializePersistenceCommand{
				ReadinessTimeout:       30 * time.Millisecond,
				ReadinessRetryInterval: 5 * time.Millisecond,
			},
			wantCode: "DB_READINESS_TIMEOUT",
		},
		{
			name: "migration fails",
			gateway: &scriptedPersistenceGateway{
				migrationErr: apperrors.NewInternal("DB_MIGRATION_APPLY_FAILED", "failed", nil),
			},
			command:   fastReadiness,
			wantCode:  "DB_MIGRATION_APPLY_FAILED",
			wantCalls: []string{"ready", "migrate"},
		},
		{
			name: "contract preparation fails",
			gateway: &scriptedPersistenceGateway{
				contractsErr: apperrors.NewInternal("DB_CONTRACT_PREPARE_FAILED", "failed", nil),
			},
			command:   fastReadiness,
			wantCode:  "DB_CONTRACT_PREPARE_FAILED",
			wantCalls: []string{"ready", "migrate", "contracts"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, appErr := NewInitializePersistenceUseCase(tt.gateway).Execute(context.Background(), tt.command)

			require.NotNil(t, appErr)
			require.Equal(t, tt.wantCode, appErr.Code)
			require.Empty(t, output.Contracts)
			if tt.wantCalls != nil {
				require.Equal(t, tt.wantCalls, tt.gateway.calls)
			}
		})
	}
}

func TestInitializePersistenceTimeoutCarriesLastReadinessCode(t *testing.T) {
	gateway := &scriptedPersistenceGateway{
		readiness: []*apperrors.AppError{apperrors.NewInternal("DB_CONNECT_FAILED", "failed", nil)},
	}

	output, appErr := NewInitializePersistenceUseCase(gateway).Execute(context.Background(), dto.InitializePersistenceCommand{
		ReadinessTimeout:       30 * time.Millisecond,
		ReadinessRetryInterval: 5 * time.Millisecond,
	})

	require.NotNil(t, appErr)
	require.Equal(t, "DB_CONNECT_FAILED", appErr.Details["last_code"])
	require.Greater(t, output.ReadinessAttempts, 1)
	require.NotContains(t, gateway.calls, "migrate")
}

func TestInitializePersistenceRejectsInvalidCommand(t *testing.T) {
	tests := []struct {
		name     string
		gateway  *scriptedPersistenceGateway
		command  dto.InitializePersistenceCommand
		wantCode string
	}{
		{name: "missing gateway", command: fastReadiness, wantCode: "PERSISTENCE_GATEWAY_MISSING"},
		{
			name:     "zero timeout",
			gateway:  &scriptedPersistenceGateway{},
			command:  dto.InitializePersistenceCommand{ReadinessRetryInterval: time.Millisecond},
			wantCode: "READINESS_TIMEOUT_INVALID",
		},
		{
			name:     "zero interval",
			gateway:  &scriptedPersistenceGateway{},
			command:  dto.InitializePersistenceCommand{ReadinessTimeout: time.Second},
			wantCode: "READINESS_RETRY_INTERVAL_INVALID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useCase := NewInitializePersistenceUseCase(nil)
			if tt.gateway != nil {
				useCase = NewInitializePersistenceUseCase(tt.gateway)
			}

			_, appErr := useCase.Execute(context.Background(), tt.command)

			require.NotNil(t, appErr)
			require.Equal(t, tt.wantCode, appErr.Code)
			if tt.gateway != nil {
				require.Empty(t, tt.gateway.calls)
			}
		})
	}
}

// scriptedPersistenceGateway answers readiness checks from a script and
// repeats the last entry once it runs out.
type scriptedPersistenceGateway struct {
	readiness    []*apperrors.AppError
	migrationErr *apperrors.AppError
	contracts    []dto.ContractStatus
	contractsErr *apperrors.AppError
	calls        []string
}

func (g *scriptedPersistenceGateway) CheckReadiness(_ context.Context) *apperrors.AppError {
	g.calls = append(g.calls, "ready")
	if len(g.readiness) == 0 {
		return nil
	}
	attempt := min(countCalls(g.calls, "ready"), len(g.readiness))
	return g.readiness[attempt-1]
}

func (g *scriptedPersistenceGateway) RunMigrations(_ context.Context) *apperrors.AppError {
	g.calls = append(g.calls, "migrate")
	return g.migrationErr
}

func (g *scriptedPersistenceGateway) PrepareContracts(_ context.Context) ([]dto.ContractStatus, *apperrors.AppError) {
	g.calls = append(g.calls, "contracts")
	if g.contractsErr != nil {
		return nil, g.contractsErr
	}
	return g.contracts, nil
}

func countCalls(calls []string, name string) int {
	count := 0
	for _, call := range calls {
		if call == name {
			count++
		}
	}
	return count
}
