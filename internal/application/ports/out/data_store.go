package out

import (
	"context"

	apperrors "karte/internal/shared_kernel/errors"
)

// FailureID is returned by Put when a record was not stored.
const FailureID int64 = -1

type RelationalOperator string

const (
	OperatorEqual   RelationalOperator = "="
	OperatorUnequal RelationalOperator = "!="
)

type Condition struct {
	Column   string
	Operator RelationalOperator
	Value    any
}

func Equal(column string, value any) Condition {
	return Condition{Column: column, Operator: OperatorEqual, Value: value}
}

func Unequal(column string, value any) Condition {
	return Condition{Column: column, Operator: OperatorUnequal, Value: value}
}

// Persister is the record-level surface shared by a store and an open
// transaction on it. Reads return rows in insertion order.
type Persister[T any] interface {
	Put(ctx context.Context, record T) (int64, *apperrors.AppError)
	Read(ctx context.Context, conditions ...Condition) ([]T, *apperrors.AppError)
	Update(ctx context.Context, record T) (int64, *apperrors.AppError)
	Delete(ctx context.Context, record T) *apperrors.AppError
}

type DataStore[T any] interface {
	Persister[T]
	// Transaction commits only when fn returns nil.
	Transaction(ctx context.Context, fn func(tx Persister[T]) *apperrors.AppError) *apperrors.AppError
	DeleteAll(ctx context.Context) *apperrors.AppError
	Close() error
}
