// Package uow defines the transaction boundary shared by domain services.
package uow

import "context"

// Runner executes fn inside a single atomic unit of work. Implementations
// propagate the active transaction through ctx so that repositories called
// from fn participate in it. Nested calls run inside the outer unit.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Passthrough runs fn directly without opening a transaction.
type Passthrough struct{}

// RunInTx implements Runner.
func (Passthrough) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
