package datastore

import "fmt"

// Persistable is implemented by every record kind a Store can hold.
type Persistable interface {
	Size() int
}

// Contract binds a record type to its table. Values must return one entry per
// schema column; Create rebuilds a record from the same map plus its id.
type Contract[T Persistable] struct {
	Schema
	ID     func(record T) int64
	WithID func(record T, id int64) T
	Values func(record T) map[string]any
	Create func(id int64, values map[string]any) (T, error)
}

func (c Contract[T]) validate() error {
	if c.Namespace == "" {
		return fmt.Errorf("contract namespace is required")
	}
	if len(c.Columns) == 0 {
		return fmt.Errorf("contract %s declares no columns", c.Namespace)
	}
	if c.ID == nil || c.WithID == nil || c.Values == nil || c.Create == nil {
		return fmt.Errorf("contract %s is missing accessors", c.Namespace)
	}
	return nil
}

func (c Contract[T]) hasColumn(name string) bool {
	for _, column := range c.Columns {
		if column.Name == name {
			return true
		}
	}
	return false
}

func (c Contract[T]) columnNames() []string {
	names := make([]string, 0, len(c.Columns))
	for _, column := range c.Columns {
		names = append(names, column.Name)
	}
	return names
}

// orderedValues lists the record's column values in schema order.
func (c Contract[T]) orderedValues(record T) []any {
	values := c.Values(record)
	ordered := make([]any, 0, len(c.Columns))
	for _, column := range c.Columns {
		ordered = append(ordered, values[column.Name])
	}
	return ordered
}
