package grid

import (
	"context"

	"github.com/imgajeed76/gridsync/internal/cascade"
)

// OptionsSource returns the full option catalog of one filter dimension.
type OptionsSource interface {
	Options(ctx context.Context, dimension string) ([]cascade.Option, error)
}

// OptionsSourceFunc adapts a function to OptionsSource.
type OptionsSourceFunc func(ctx context.Context, dimension string) ([]cascade.Option, error)

// Options implements OptionsSource.
func (f OptionsSourceFunc) Options(ctx context.Context, dimension string) ([]cascade.Option, error) {
	return f(ctx, dimension)
}

// Mutator deletes a batch of rows in one request.
type Mutator interface {
	DeleteMany(ctx context.Context, ids []string) error
}

// MutatorFunc adapts a function to Mutator.
type MutatorFunc func(ctx context.Context, ids []string) error

// DeleteMany implements Mutator.
func (f MutatorFunc) DeleteMany(ctx context.Context, ids []string) error {
	return f(ctx, ids)
}

// URLWriter receives the canonical query string after every effective view
// change. Writes replace the previous entry; there is no history.
type URLWriter interface {
	Replace(query string) error
}

// URLWriterFunc adapts a function to URLWriter.
type URLWriterFunc func(query string) error

// Replace implements URLWriter.
func (f URLWriterFunc) Replace(query string) error {
	return f(query)
}
