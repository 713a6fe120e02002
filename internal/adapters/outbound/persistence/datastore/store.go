package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"reflect"
	"slices"
	"strings"
	"sync"

	portsout "karte/internal/application/ports/out"
	apperrors "karte/internal/shared_kernel/errors"
)

// DefaultWindowSize caps the approximate size of a single stored record.
const DefaultWindowSize = 1024 * 1024

type StoreOption func(*storeOptions)

type storeOptions struct {
	windowSize int
}

func WithWindowSize(size int) StoreOption {
	return func(o *storeOptions) {
		if size > 0 {
			o.windowSize = size
		}
	}
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store persists one contract's records and keeps an id-keyed cache of them.
// Once a full table load has landed, reads are answered from memory.
// Database I/O never happens while mu is held.
type Store[T Persistable] struct {
	database   *Database
	contract   Contract[T]
	windowSize int
	logger     *log.Logger

	mu         sync.Mutex
	cache      map[int64]T
	complete   bool
	generation uint64
}

func NewStore[T Persistable](database *Database, contract Contract[T], logger *log.Logger, opts ...StoreOption) (*Store[T], error) {
	if database == nil {
		return nil, fmt.Errorf("datastore database is required")
	}
	if err := contract.validate(); err != nil {
		return nil, err
	}
	options := storeOptions{windowSize: DefaultWindowSize}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return &Store[T]{
		database:   database,
		contract:   contract,
		windowSize: options.windowSize,
		logger:     logger,
		cache:      map[int64]T{},
	}, nil
}

func (s *Store[T]) Schema() Schema {
	return s.contract.Schema
}

func (s *Store[T]) Put(ctx context.Context, record T) (int64, *apperrors.AppError) {
	id, appErr := s.insert(ctx, s.database.db, record)
	if appErr != nil {
		return portsout.FailureID, appErr
	}
	s.applyMutations([]mutation[T]{{kind: mutationUpsert, record: s.contract.WithID(record, id)}})
	return id, nil
}

func (s *Store[T]) Read(ctx context.Context, conditions ...portsout.Condition) ([]T, *apperrors.AppError) {
	if appErr := s.validateConditions(conditions); appErr != nil {
		return nil, appErr
	}

	s.mu.Lock()
	if s.complete {
		result := s.filterLocked(conditions)
		s.mu.Unlock()
		return result, nil
	}
	generation := s.generation
	s.mu.Unlock()

	records, corrupted, appErr := s.query(ctx, s.database.db, nil)
	if appErr != nil {
		return nil, appErr
	}
	if corrupted {
		if appErr := s.recoverCorruption(ctx, s.database.db); appErr != nil {
			return nil, appErr
		}
		s.resetCache(true)
		return []T{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == generation {
		s.cache = make(map[int64]T, len(records))
		for _, record := range records {
			s.cache[s.contract.ID(record)] = record
		}
		s.complete = true
	}
	return filterRecords(s.contract, records, conditions), nil
}

func (s *Store[T]) Update(ctx context.Context, record T) (int64, *apperrors.AppError) {
	affected, appErr := s.update(ctx, s.database.db, record)
	if appErr != nil {
		return 0, appErr
	}
	if affected > 0 {
		s.applyMutations([]mutation[T]{{kind: mutationUpsert, record: record}})
	}
	return affected, nil
}

func (s *Store[T]) Delete(ctx context.Context, record T) *apperrors.AppError {
	if appErr := s.delete(ctx, s.database.db, record); appErr != nil {
		return appErr
	}
	s.applyMutations([]mutation[T]{{kind: mutationDelete, record: record}})
	return nil
}

func (s *Store[T]) DeleteAll(ctx context.Context) *apperrors.AppError {
	if _, err := s.database.db.ExecContext(ctx, "DELETE FROM "+s.table()); err != nil {
		return s.queryFailed("DATASTORE_DELETE_ALL_FAILED", "failed to delete records", err)
	}
	s.resetCache(true)
	return nil
}

// Transaction runs fn against one database transaction. The transaction
// commits only when fn returns nil; otherwise it rolls back and the cache is
// discarded. fn must use tx, not the store, for all access.
func (s *Store[T]) Transaction(ctx context.Context, fn func(tx portsout.Persister[T]) *apperrors.AppError) *apperrors.AppError {
	sqlTx, err := s.database.db.BeginTx(ctx, nil)
	if err != nil {
		return s.queryFailed("DATASTORE_TX_BEGIN_FAILED", "failed to begin transaction", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if err := sqlTx.Rollback(); err != nil {
			s.logf("datastore rollback warning namespace=%s error=%v", s.contract.Namespace, err)
		}
		s.resetCache(false)
	}()

	tx := &txPersister[T]{store: s, tx: sqlTx}
	if appErr := fn(tx); appErr != nil {
		return appErr
	}
	if err := sqlTx.Commit(); err != nil {
		return s.queryFailed("DATASTORE_TX_COMMIT_FAILED", "failed to commit transaction", err)
	}
	committed = true
	s.applyMutations(tx.mutations)
	return nil
}

// Close drops the cache. The shared Database is closed by its owner.
func (s *Store[T]) Close() error {
	s.resetCache(false)
	return nil
}

func (s *Store[T]) insert(ctx context.Context, q queryer, record T) (int64, *apperrors.AppError) {
	if size := record.Size(); size > s.windowSize {
		s.logf("datastore record rejected namespace=%s size=%d window=%d", s.contract.Namespace, size, s.windowSize)
		return portsout.FailureID, apperrors.NewValidation(
			"DATASTORE_RECORD_TOO_LARGE",
			"record exceeds the storage window",
			map[string]any{"namespace": s.contract.Namespace, "size": size, "window_size": s.windowSize},
		)
	}

	names := s.contract.columnNames()
	quoted := make([]string, 0, len(names))
	placeholders := make([]string, 0, len(names))
	for i, name := range names {
		quoted = append(quoted, quoteIdentifier(name))
		placeholders = append(placeholders, s.database.dialect.placeholder(i+1))
	}
	statement := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING _id",
		s.table(),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)

	var id int64
	if err := q.QueryRowContext(ctx, statement, normalizeArgs(s.contract.orderedValues(record))...).Scan(&id); err != nil {
		return portsout.FailureID, s.queryFailed("DATASTORE_PUT_FAILED", "failed to store record", err)
	}
	return id, nil
}

func (s *Store[T]) update(ctx context.Context, q queryer, record T) (int64, *apperrors.AppError) {
	names := s.contract.columnNames()
	assignments := make([]string, 0, len(names))
	for i, name := range names {
		assignments = append(assignments, quoteIdentifier(name)+" = "+s.database.dialect.placeholder(i+1))
	}
	statement := fmt.Sprintf(
		"UPDATE %s SET %s WHERE _id = %s",
		s.table(),
		strings.Join(assignments, ", "),
		s.database.dialect.placeholder(len(names)+1),
	)
	args := append(normalizeArgs(s.contract.orderedValues(record)), s.contract.ID(record))

	result, err := q.ExecContext(ctx, statement, args...)
	if err != nil {
		return 0, s.queryFailed("DATASTORE_UPDATE_FAILED", "failed to update record", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, s.queryFailed("DATASTORE_UPDATE_FAILED", "failed to read affected rows", err)
	}
	return affected, nil
}

func (s *Store[T]) delete(ctx context.Context, q queryer, record T) *apperrors.AppError {
	statement := "DELETE FROM " + s.table() + " WHERE _id = " + s.database.dialect.placeholder(1)
	if _, err := q.ExecContext(ctx, statement, s.contract.ID(record)); err != nil {
		return s.queryFailed("DATASTORE_DELETE_FAILED", "failed to delete record", err)
	}
	return nil
}

// query selects records in insertion order. A row that cannot be decoded
// marks the table corrupted; the caller decides how to recover.
func (s *Store[T]) query(ctx context.Context, q queryer, conditions []portsout.Condition) ([]T, bool, *apperrors.AppError) {
	columns := make([]string, 0, len(s.contract.Columns)+1)
	columns = append(columns, "_id")
	for _, name := range s.contract.columnNames() {
		columns = append(columns, quoteIdentifier(name))
	}

	statement := "SELECT " + strings.Join(columns, ", ") + " FROM " + s.table()
	args := make([]any, 0, len(conditions))
	if len(conditions) > 0 {
		clauses := make([]string, 0, len(conditions))
		for i, condition := range conditions {
			operator := "="
			if condition.Operator == portsout.OperatorUnequal {
				operator = "<>"
			}
			clauses = append(clauses, quoteIdentifier(condition.Column)+" "+operator+" "+s.database.dialect.placeholder(i+1))
			args = append(args, normalizeValue(condition.Value))
		}
		statement += " WHERE " + strings.Join(clauses, " AND ")
	}
	statement += " ORDER BY _id ASC"

	rows, err := q.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, false, s.queryFailed("DATASTORE_READ_FAILED", "failed to read records", err)
	}

	records := make([]T, 0)
	corrupted := false
	for rows.Next() {
		record, err := s.scan(rows)
		if err != nil {
			s.logf("datastore row decode failed namespace=%s error=%v", s.contract.Namespace, err)
			corrupted = true
			break
		}
		records = append(records, record)
	}
	iterErr := rows.Err()
	// Rows must be released before any recovery statement runs on the same
	// connection.
	_ = rows.Close()
	if corrupted {
		return nil, true, nil
	}
	if iterErr != nil {
		return nil, false, s.queryFailed("DATASTORE_READ_FAILED", "failed to iterate records", iterErr)
	}
	return records, false, nil
}

func (s *Store[T]) scan(rows *sql.Rows) (T, error) {
	var zero T
	var id int64
	targets := make([]any, 0, len(s.contract.Columns)+1)
	targets = append(targets, &id)
	for _, column := range s.contract.Columns {
		switch column.Type {
		case ColumnInteger:
			targets = append(targets, new(sql.NullInt64))
		case ColumnBlob:
			targets = append(targets, new([]byte))
		default:
			targets = append(targets, new(sql.NullString))
		}
	}
	if err := rows.Scan(targets...); err != nil {
		return zero, err
	}

	values := make(map[string]any, len(s.contract.Columns))
	for i, column := range s.contract.Columns {
		switch target := targets[i+1].(type) {
		case *sql.NullInt64:
			if target.Valid {
				values[column.Name] = target.Int64
			} else {
				values[column.Name] = nil
			}
		case *sql.NullString:
			if target.Valid {
				values[column.Name] = target.String
			} else {
				values[column.Name] = nil
			}
		case *[]byte:
			values[column.Name] = *target
		}
	}
	return s.contract.Create(id, values)
}

func (s *Store[T]) recoverCorruption(ctx context.Context, q queryer) *apperrors.AppError {
	if _, err := q.ExecContext(ctx, "DELETE FROM "+s.table()); err != nil {
		return s.queryFailed("DATASTORE_RECOVERY_FAILED", "failed to clear corrupted records", err)
	}
	s.logf("datastore corruption recovered namespace=%s action=cleared", s.contract.Namespace)
	return nil
}

func (s *Store[T]) validateConditions(conditions []portsout.Condition) *apperrors.AppError {
	for _, condition := range conditions {
		if !s.contract.hasColumn(condition.Column) {
			return apperrors.NewValidation(
				"DATASTORE_UNKNOWN_COLUMN",
				"condition references an unknown column",
				map[string]any{"namespace": s.contract.Namespace, "column": condition.Column},
			)
		}
		if condition.Operator != portsout.OperatorEqual && condition.Operator != portsout.OperatorUnequal {
			return apperrors.NewValidation(
				"DATASTORE_UNKNOWN_OPERATOR",
				"condition operator is not supported",
				map[string]any{"namespace": s.contract.Namespace, "operator": string(condition.Operator)},
			)
		}
	}
	return nil
}

func (s *Store[T]) filterLocked(conditions []portsout.Condition) []T {
	ids := make([]int64, 0, len(s.cache))
	for id := range s.cache {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	records := make([]T, 0, len(ids))
	for _, id := range ids {
		records = append(records, s.cache[id])
	}
	return filterRecords(s.contract, records, conditions)
}

func (s *Store[T]) applyMutations(mutations []mutation[T]) {
	if len(mutations) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++

	for _, m := range mutations {
		switch m.kind {
		case mutationUpsert:
			s.cache[s.contract.ID(m.record)] = m.record
		case mutationDelete:
			delete(s.cache, s.contract.ID(m.record))
		case mutationClear:
			s.cache = map[int64]T{}
			s.complete = true
		}
	}
}

// resetCache empties the cache. known reports that the table is known to be
// empty, so the cache stays authoritative.
func (s *Store[T]) resetCache(known bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.cache = map[int64]T{}
	s.complete = known
}

func (s *Store[T]) table() string {
	return quoteIdentifier(s.contract.Namespace)
}

func (s *Store[T]) queryFailed(code string, message string, err error) *apperrors.AppError {
	s.logf("datastore query failed namespace=%s code=%s error=%v", s.contract.Namespace, code, err)
	return apperrors.NewInternal(code, message, map[string]any{
		"namespace": s.contract.Namespace,
		"target":    s.database.Target(),
	})
}

func (s *Store[T]) logf(format string, args ...any) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

type mutationKind int

const (
	mutationUpsert mutationKind = iota
	mutationDelete
	mutationClear
)

type mutation[T Persistable] struct {
	kind   mutationKind
	record T
}

type txPersister[T Persistable] struct {
	store     *Store[T]
	tx        *sql.Tx
	mutations []mutation[T]
}

func (p *txPersister[T]) Put(ctx context.Context, record T) (int64, *apperrors.AppError) {
	id, appErr := p.store.insert(ctx, p.tx, record)
	if appErr != nil {
		return portsout.FailureID, appErr
	}
	p.mutations = append(p.mutations, mutation[T]{kind: mutationUpsert, record: p.store.contract.WithID(record, id)})
	return id, nil
}

func (p *txPersister[T]) Read(ctx context.Context, conditions ...portsout.Condition) ([]T, *apperrors.AppError) {
	if appErr := p.store.validateConditions(conditions); appErr != nil {
		return nil, appErr
	}
	records, corrupted, appErr := p.store.query(ctx, p.tx, conditions)
	if appErr != nil {
		return nil, appErr
	}
	if corrupted {
		if appErr := p.store.recoverCorruption(ctx, p.tx); appErr != nil {
			return nil, appErr
		}
		p.mutations = append(p.mutations, mutation[T]{kind: mutationClear})
		return []T{}, nil
	}
	return records, nil
}

func (p *txPersister[T]) Update(ctx context.Context, record T) (int64, *apperrors.AppError) {
	affected, appErr := p.store.update(ctx, p.tx, record)
	if appErr != nil {
		return 0, appErr
	}
	if affected > 0 {
		p.mutations = append(p.mutations, mutation[T]{kind: mutationUpsert, record: record})
	}
	return affected, nil
}

func (p *txPersister[T]) Delete(ctx context.Context, record T) *apperrors.AppError {
	if appErr := p.store.delete(ctx, p.tx, record); appErr != nil {
		return appErr
	}
	p.mutations = append(p.mutations, mutation[T]{kind: mutationDelete, record: record})
	return nil
}

func filterRecords[T Persistable](contract Contract[T], records []T, conditions []portsout.Condition) []T {
	if len(conditions) == 0 {
		return records
	}
	out := make([]T, 0, len(records))
	for _, record := range records {
		values := contract.Values(record)
		matched := true
		for _, condition := range conditions {
			equal := reflect.DeepEqual(normalizeValue(values[condition.Column]), normalizeValue(condition.Value))
			if equal != (condition.Operator == portsout.OperatorEqual) {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, record)
		}
	}
	return out
}

func normalizeArgs(values []any) []any {
	out := make([]any, len(values))
	for i, value := range values {
		out[i] = normalizeValue(value)
	}
	return out
}

// normalizeValue folds named and sized integer and string kinds onto int64
// and string so cached values compare the way the database does.
func normalizeValue(value any) any {
	if value == nil {
		return nil
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		if rv.Bool() {
			return int64(1)
		}
		return int64(0)
	default:
		return value
	}
}
