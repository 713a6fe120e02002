package datastore

import (
	"context"
	"log"

	"karte/internal/application/dto"
	portsout "karte/internal/application/ports/out"
	apperrors "karte/internal/shared_kernel/errors"
)

// BootstrapGateway readies a Database: connectivity, bookkeeping migrations
// and one table per registered contract schema.
type BootstrapGateway struct {
	database *Database
	schemas  []Schema
	logger   *log.Logger
}

var _ portsout.PersistenceBootstrapGateway = (*BootstrapGateway)(nil)

func NewBootstrapGateway(database *Database, schemas []Schema, logger *log.Logger) *BootstrapGateway {
	return &BootstrapGateway{
		database: database,
		schemas:  append([]Schema(nil), schemas...),
		logger:   logger,
	}
}

func (g *BootstrapGateway) CheckReadiness(ctx context.Context) *apperrors.AppError {
	if err := g.database.Ping(ctx); err != nil {
		g.logf("datastore readiness check failed target=%s error=%v", g.database.Target(), err)
		return apperrors.NewInternal(
			"DB_CONNECT_FAILED",
			"failed to connect to datastore",
			map[string]any{"database_target": g.database.Target()},
		)
	}

	g.logf("datastore readiness check succeeded target=%s", g.database.Target())
	return nil
}

func (g *BootstrapGateway) RunMigrations(ctx context.Context) *apperrors.AppError {
	if err := ctx.Err(); err != nil {
		return apperrors.NewInternal(
			"DB_MIGRATION_CONTEXT_CANCELED",
			"migration context canceled",
			map[string]any{"database_target": g.database.Target()},
		)
	}

	applied, err := g.database.Migrate(ctx)
	if err != nil {
		g.logf("datastore migrations failed target=%s error=%v", g.database.Target(), err)
		return apperrors.NewInternal(
			"DB_MIGRATION_APPLY_FAILED",
			"failed to apply migrations",
			map[string]any{"database_target": g.database.Target()},
		)
	}

	g.logf("datastore migrations completed target=%s applied=%t", g.database.Target(), applied)
	return nil
}

// PrepareContracts creates every registered table, recreating the ones whose
// recorded version differs from the schema.
func (g *BootstrapGateway) PrepareContracts(ctx context.Context) ([]dto.ContractStatus, *apperrors.AppError) {
	statuses := make([]dto.ContractStatus, 0, len(g.schemas))
	for _, schema := range g.schemas {
		recreated, err := g.database.PrepareSchema(ctx, schema)
		if err != nil {
			g.logf("datastore contract preparation failed namespace=%s error=%v", schema.Namespace, err)
			return statuses, apperrors.NewInternal(
				"DB_CONTRACT_PREPARE_FAILED",
				"failed to prepare datastore contract",
				map[string]any{
					"database_target": g.database.Target(),
					"namespace":       schema.Namespace,
					"version":         schema.Version,
				},
			)
		}
		g.logf("datastore contract ready namespace=%s version=%d recreated=%t", schema.Namespace, schema.Version, recreated)
		statuses = append(statuses, dto.ContractStatus{
			Namespace: schema.Namespace,
			Version:   schema.Version,
			Recreated: recreated,
		})
	}
	return statuses, nil
}

func (g *BootstrapGateway) logf(format string, args ...any) {
	if g == nil || g.logger == nil {
		return
	}
	g.logger.Printf(format, args...)
}
