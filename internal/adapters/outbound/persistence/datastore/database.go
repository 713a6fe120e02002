package datastore

import (
	"context"
	"database/sql"
	"embed"
	stderrors "errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const contractsTable = "store_contracts"

type Config struct {
	Engine       Engine
	DSN          string
	MaxOpenConns int
}

// Schema describes one contract table. A change of Version drops the table
// and recreates it empty.
type Schema struct {
	Namespace string
	Version   int
	Columns   []Column
}

type Column struct {
	Name string
	Type ColumnType
}

type Database struct {
	db      *sql.DB
	dialect dialect
	dsn     string
	logger  *log.Logger
}

func Open(cfg Config, logger *log.Logger) (*Database, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("datastore dsn is required")
	}
	dialect, err := dialectFor(cfg.Engine)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.driverName(), dialect.dataSourceName(dsn))
	if err != nil {
		return nil, fmt.Errorf("open datastore: %w", err)
	}

	switch dialect.engine() {
	case EngineSQLite:
		// One writer; serialises access without SQLITE_BUSY churn.
		db.SetMaxOpenConns(1)
	default:
		maxOpen := cfg.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 4
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen)
		db.SetConnMaxIdleTime(5 * time.Minute)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	database := &Database{
		db:      db,
		dialect: dialect,
		dsn:     dsn,
		logger:  logger,
	}
	database.logf("datastore opened engine=%s target=%s", dialect.engine(), database.Target())
	return database, nil
}

func (d *Database) Engine() Engine {
	return d.dialect.engine()
}

func (d *Database) Target() string {
	return d.dialect.target(d.dsn)
}

// DB exposes the pool for components that share the datastore connection.
func (d *Database) DB() *sql.DB {
	return d.db
}

func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Migrate applies the embedded bookkeeping migrations. It reports whether
// anything was applied.
func (d *Database) Migrate(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return false, fmt.Errorf("load embedded migrations: %w", err)
	}
	runner, err := migrate.NewWithSourceInstance("iofs", source, d.dialect.migrationURL(d.dsn))
	if err != nil {
		return false, fmt.Errorf("initialize migration runner: %w", err)
	}
	defer func() {
		sourceErr, dbErr := runner.Close()
		if sourceErr != nil {
			d.logf("migration source close warning target=%s error=%v", d.Target(), sourceErr)
		}
		if dbErr != nil {
			d.logf("migration db close warning target=%s error=%v", d.Target(), dbErr)
		}
	}()

	err = runner.Up()
	if stderrors.Is(err, migrate.ErrNoChange) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("apply migrations: %w", err)
	}
	return true, nil
}

// PrepareSchema creates the table for schema, dropping an existing table
// first when its recorded version differs. It reports whether the table was
// recreated.
func (d *Database) PrepareSchema(ctx context.Context, schema Schema) (bool, error) {
	if strings.TrimSpace(schema.Namespace) == "" {
		return false, fmt.Errorf("schema namespace is required")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	recorded := 0
	row := tx.QueryRowContext(
		ctx,
		"SELECT version FROM "+contractsTable+" WHERE namespace = "+d.dialect.placeholder(1),
		schema.Namespace,
	)
	err = row.Scan(&recorded)
	found := err == nil
	if err != nil && !stderrors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("read contract version %s: %w", schema.Namespace, err)
	}

	recreated := false
	if found && recorded != schema.Version {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdentifier(schema.Namespace)); err != nil {
			return false, fmt.Errorf("drop contract table %s: %w", schema.Namespace, err)
		}
		recreated = true
	}

	if _, err := tx.ExecContext(ctx, d.createTableSQL(schema)); err != nil {
		return false, fmt.Errorf("create contract table %s: %w", schema.Namespace, err)
	}

	upsert := fmt.Sprintf(
		"INSERT INTO %s (namespace, version, updated_at) VALUES (%s, %s, %s) "+
			"ON CONFLICT (namespace) DO UPDATE SET version = excluded.version, updated_at = excluded.updated_at",
		contractsTable,
		d.dialect.placeholder(1),
		d.dialect.placeholder(2),
		d.dialect.placeholder(3),
	)
	if _, err := tx.ExecContext(ctx, upsert, schema.Namespace, schema.Version, time.Now().UTC().UnixMilli()); err != nil {
		return false, fmt.Errorf("record contract version %s: %w", schema.Namespace, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit schema %s: %w", schema.Namespace, err)
	}
	if recreated {
		d.logf("datastore contract recreated namespace=%s from_version=%d to_version=%d", schema.Namespace, recorded, schema.Version)
	}
	return recreated, nil
}

func (d *Database) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *Database) createTableSQL(schema Schema) string {
	parts := make([]string, 0, len(schema.Columns)+1)
	parts = append(parts, "_id "+d.dialect.primaryKey())
	for _, column := range schema.Columns {
		parts = append(parts, quoteIdentifier(column.Name)+" "+d.dialect.columnType(column.Type))
	}
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s)",
		quoteIdentifier(schema.Namespace),
		strings.Join(parts, ", "),
	)
}

func (d *Database) logf(format string, args ...any) {
	if d == nil || d.logger == nil {
		return
	}
	d.logger.Printf(format, args...)
}
