package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// ledgerTxOptions is used for every ledger transaction. Read committed is
// enough because postings lock the wallet rows they touch.
var ledgerTxOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

// Transactor implements ports.DBTransactor.
type Transactor struct {
	pool Pool
}

func NewTransactor(pool Pool) *Transactor {
	return &Transactor{pool: pool}
}

// Begin starts a ledger transaction.
func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return t.pool.BeginTx(ctx, ledgerTxOptions)
}
