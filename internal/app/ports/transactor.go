package ports

import "context"

// Transactor runs fn in a single storage transaction. Repository calls made
// with the ctx handed to fn join that transaction.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
