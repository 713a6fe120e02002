package datastore

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

type Engine string

const (
	EngineSQLite   Engine = "sqlite"
	EnginePostgres Engine = "postgres"
)

type ColumnType int

const (
	ColumnText ColumnType = iota
	ColumnInteger
	ColumnBlob
)

type dialect interface {
	engine() Engine
	driverName() string
	dataSourceName(dsn string) string
	migrationURL(dsn string) string
	placeholder(position int) string
	columnType(columnType ColumnType) string
	primaryKey() string
	target(dsn string) string
}

func dialectFor(engine Engine) (dialect, error) {
	switch engine {
	case EngineSQLite, "":
		return sqliteDialect{}, nil
	case EnginePostgres, "postgresql":
		return postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported datastore engine: %s", engine)
	}
}

type sqliteDialect struct{}

func (sqliteDialect) engine() Engine {
	return EngineSQLite
}

func (sqliteDialect) driverName() string {
	return "sqlite"
}

func (sqliteDialect) dataSourceName(dsn string) string {
	path := strings.TrimPrefix(strings.TrimSpace(dsn), "file:")
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (sqliteDialect) migrationURL(dsn string) string {
	return "sqlite://" + strings.TrimPrefix(strings.TrimSpace(dsn), "file:")
}

func (sqliteDialect) placeholder(int) string {
	return "?"
}

func (sqliteDialect) columnType(columnType ColumnType) string {
	switch columnType {
	case ColumnInteger:
		return "INTEGER"
	case ColumnBlob:
		return "BLOB"
	default:
		return "TEXT"
	}
}

func (sqliteDialect) primaryKey() string {
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (sqliteDialect) target(dsn string) string {
	return strings.TrimPrefix(strings.TrimSpace(dsn), "file:")
}

type postgresDialect struct{}

func (postgresDialect) engine() Engine {
	return EnginePostgres
}

func (postgresDialect) driverName() string {
	return "pgx"
}

func (postgresDialect) dataSourceName(dsn string) string {
	return strings.TrimSpace(dsn)
}

func (postgresDialect) migrationURL(dsn string) string {
	return strings.TrimSpace(dsn)
}

func (postgresDialect) placeholder(position int) string {
	return "$" + strconv.Itoa(position)
}

func (postgresDialect) columnType(columnType ColumnType) string {
	switch columnType {
	case ColumnInteger:
		return "BIGINT"
	case ColumnBlob:
		return "BYTEA"
	default:
		return "TEXT"
	}
}

func (postgresDialect) primaryKey() string {
	return "BIGSERIAL PRIMARY KEY"
}

func (postgresDialect) target(dsn string) string {
	parsed, err := url.Parse(strings.TrimSpace(dsn))
	if err != nil || parsed.Host == "" {
		return "postgres"
	}
	return parsed.Host + parsed.Path
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
