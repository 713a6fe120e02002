package preferences

import (
	"context"
	"fmt"
	"log"
	"unicode/utf8"

	"karte/internal/adapters/outbound/persistence/datastore"
	portsout "karte/internal/application/ports/out"
	apperrors "karte/internal/shared_kernel/errors"
)

const (
	Namespace = "preferences"
	Version   = 1

	columnNamespace = "namespace"
	columnKey       = "key"
	columnValue     = "value"

	// DefaultNamespace holds core state such as the visitor id.
	DefaultNamespace = "karte"
)

type Entry struct {
	ID        int64
	Namespace string
	Key       string
	Value     string
}

func (e Entry) Size() int {
	return utf8.RuneCountInString(e.Namespace) + utf8.RuneCountInString(e.Key) + utf8.RuneCountInString(e.Value)
}

func Schema() datastore.Schema {
	return datastore.Schema{
		Namespace: Namespace,
		Version:   Version,
		Columns: []datastore.Column{
			{Name: columnNamespace, Type: datastore.ColumnText},
			{Name: columnKey, Type: datastore.ColumnText},
			{Name: columnValue, Type: datastore.ColumnText},
		},
	}
}

func Contract() datastore.Contract[Entry] {
	return datastore.Contract[Entry]{
		Schema: Schema(),
		ID: func(entry Entry) int64 {
			return entry.ID
		},
		WithID: func(entry Entry, id int64) Entry {
			entry.ID = id
			return entry
		},
		Values: func(entry Entry) map[string]any {
			return map[string]any{
				columnNamespace: entry.Namespace,
				columnKey:       entry.Key,
				columnValue:     entry.Value,
			}
		},
		Create: func(id int64, values map[string]any) (Entry, error) {
			entry := Entry{ID: id}
			var ok bool
			if entry.Namespace, ok = values[columnNamespace].(string); !ok {
				return Entry{}, fmt.Errorf("preference %d: namespace is not text", id)
			}
			if entry.Key, ok = values[columnKey].(string); !ok {
				return Entry{}, fmt.Errorf("preference %d: key is not text", id)
			}
			entry.Value, _ = values[columnValue].(string)
			return entry, nil
		},
	}
}

// Repository is a namespaced key/value view over the preferences table.
// Views created with Namespace share one store and its cache.
type Repository struct {
	store     portsout.DataStore[Entry]
	namespace string
	logger    *log.Logger
}

var _ portsout.KeyValueRepository = (*Repository)(nil)

func NewRepository(database *datastore.Database, logger *log.Logger) (*Repository, error) {
	store, err := datastore.NewStore(database, Contract(), logger)
	if err != nil {
		return nil, err
	}
	return NewRepositoryWithStore(store, DefaultNamespace, logger), nil
}

func NewRepositoryWithStore(store portsout.DataStore[Entry], namespace string, logger *log.Logger) *Repository {
	return &Repository{store: store, namespace: namespace, logger: logger}
}

func (r *Repository) Namespace(namespace string) portsout.KeyValueRepository {
	return &Repository{store: r.store, namespace: namespace, logger: r.logger}
}

func (r *Repository) Get(ctx context.Context, key string) (string, bool, *apperrors.AppError) {
	entries, appErr := r.store.Read(ctx,
		portsout.Equal(columnNamespace, r.namespace),
		portsout.Equal(columnKey, key),
	)
	if appErr != nil {
		return "", false, appErr
	}
	if len(entries) == 0 {
		return "", false, nil
	}
	return entries[len(entries)-1].Value, true, nil
}

func (r *Repository) Put(ctx context.Context, key string, value string) *apperrors.AppError {
	return r.store.Transaction(ctx, func(tx portsout.Persister[Entry]) *apperrors.AppError {
		entries, appErr := tx.Read(ctx,
			portsout.Equal(columnNamespace, r.namespace),
			portsout.Equal(columnKey, key),
		)
		if appErr != nil {
			return appErr
		}
		if len(entries) == 0 {
			_, appErr := tx.Put(ctx, Entry{Namespace: r.namespace, Key: key, Value: value})
			return appErr
		}

		current := entries[0]
		current.Value = value
		if _, appErr := tx.Update(ctx, current); appErr != nil {
			return appErr
		}
		for _, duplicate := range entries[1:] {
			if appErr := tx.Delete(ctx, duplicate); appErr != nil {
				return appErr
			}
		}
		return nil
	})
}

func (r *Repository) Remove(ctx context.Context, key string) *apperrors.AppError {
	return r.removeMatching(ctx, portsout.Equal(columnKey, key))
}

func (r *Repository) RemoveAll(ctx context.Context) *apperrors.AppError {
	return r.removeMatching(ctx)
}

func (r *Repository) removeMatching(ctx context.Context, extra ...portsout.Condition) *apperrors.AppError {
	conditions := append([]portsout.Condition{portsout.Equal(columnNamespace, r.namespace)}, extra...)
	return r.store.Transaction(ctx, func(tx portsout.Persister[Entry]) *apperrors.AppError {
		entries, appErr := tx.Read(ctx, conditions...)
		if appErr != nil {
			return appErr
		}
		for _, entry := range entries {
			if appErr := tx.Delete(ctx, entry); appErr != nil {
				return appErr
			}
		}
		if len(entries) > 0 {
			r.logf("preferences removed namespace=%s count=%d", r.namespace, len(entries))
		}
		return nil
	})
}

func (r *Repository) logf(format string, args ...any) {
	if r == nil || r.logger == nil {
		return
	}
	r.logger.Printf(format, args...)
}
