package repository

import "context"

// Transactor runs fn inside a storage transaction carried by the context.
// Repositories called with that context join the transaction; any error
// returned by fn rolls everything back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
