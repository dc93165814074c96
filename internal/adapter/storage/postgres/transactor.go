package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Transactor hands out pgx transactions from the pool. The reconciler and the
// notification queue share one of these so a receipt, a payment transition and
// its queued notification commit or roll back as a unit.
type Transactor struct {
	pool Pool
}

// NewTransactor creates a Transactor over the given pool.
func NewTransactor(pool Pool) *Transactor {
	return &Transactor{pool: pool}
}

func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return t.pool.Begin(ctx)
}
