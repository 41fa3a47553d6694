// Package repo defines the generic repository contract backing the
// compliance snapshot store.
package repo

import "context"

// Repository is a generic keyed store.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
	Merge(ctx context.Context, entity T) error
	Delete(ctx context.Context, id ID) error
}

// ListOpts pages List results.
type ListOpts struct {
	Offset int
	Limit  int
}
