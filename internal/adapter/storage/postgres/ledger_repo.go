package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-settlement/internal/core/domain"
	"wallet-settlement/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const ledgerColumnList = `id, idempotency_key, kind, debit_wallet_id, credit_wallet_id, amount, currency, reference, created_at`

// LedgerRepo implements ports.LedgerRepository. Entries are append-only.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// Create inserts an entry within a database transaction. A second entry for
// the same idempotency key violates ledger_entries_idempotency_key_key.
func (r *LedgerRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (` + ledgerColumnList + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.IdempotencyKey, string(e.Kind), e.DebitWalletID, e.CreditWalletID,
		e.Amount, e.Currency, e.Reference, e.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ErrDuplicateTransaction()
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// GetByIdempotencyKey fetches the entry written for key, if any.
func (r *LedgerRepo) GetByIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) (*domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumnList + ` FROM ledger_entries WHERE idempotency_key = $1`

	e, err := scanLedgerEntry(tx.QueryRow(ctx, query, key))
	if err != nil {
		return nil, fmt.Errorf("get ledger entry by key: %w", err)
	}
	return e, nil
}

// GetByID fetches an entry by its transaction id.
func (r *LedgerRepo) GetByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumnList + ` FROM ledger_entries WHERE id = $1`

	e, err := scanLedgerEntry(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get ledger entry by id: %w", err)
	}
	return e, nil
}

func scanLedgerEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var (
		e    domain.LedgerEntry
		kind string
	)
	err := row.Scan(
		&e.ID, &e.IdempotencyKey, &kind, &e.DebitWalletID, &e.CreditWalletID,
		&e.Amount, &e.Currency, &e.Reference, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	e.Kind = domain.EntryKind(kind)
	return &e, nil
}
