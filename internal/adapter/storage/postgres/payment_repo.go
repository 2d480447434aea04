package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-settlement/internal/core/domain"
	"wallet-settlement/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const paymentColumnList = `payment_id, request_id, request_hash, end_to_end_id, message_id,
	debtor_participant_id, debtor_account_enc, creditor_participant_id, creditor_account_enc,
	amount, currency, reference, route, status, status_reason, status_reason_code,
	hold_entry_id, created_at, updated_at, completed_at`

// PaymentRepo implements ports.PaymentRepository. Account ids are only ever
// stored encrypted.
type PaymentRepo struct {
	pool Pool
}

// NewPaymentRepo creates a new PaymentRepo.
func NewPaymentRepo(pool Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

// Insert stores p unless its request id is taken. The unique constraint on
// request_id is the authority for payment idempotency.
func (r *PaymentRepo) Insert(ctx context.Context, tx pgx.Tx, p *domain.PaymentRecord) (bool, error) {
	query := `INSERT INTO payments (` + paymentColumnList + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (request_id) DO NOTHING`

	tag, err := tx.Exec(ctx, query,
		p.PaymentID, p.RequestID, p.RequestHash, p.EndToEndID, p.MessageID,
		p.DebtorParticipantID, p.DebtorAccountEnc, p.CreditorParticipantID, p.CreditorAccountEnc,
		p.Amount, p.Currency, p.Reference, string(p.Route), string(p.Status), p.StatusReason, p.StatusReasonCode,
		p.HoldEntryID, p.CreatedAt, p.UpdatedAt, p.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// end_to_end_id or message_id reused by a different request
			return false, apperror.ErrDuplicateTransaction()
		}
		return false, fmt.Errorf("insert payment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByID fetches a payment by its id.
func (r *PaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error) {
	return r.getOne(ctx, r.pool, "payment_id = $1", id)
}

// GetByIDForUpdate locks the payment row. This MUST be called within a transaction.
func (r *PaymentRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.PaymentRecord, error) {
	return r.getOne(ctx, tx, "payment_id = $1 FOR UPDATE", id)
}

// GetByRequestID fetches a payment by the caller's idempotency key.
func (r *PaymentRepo) GetByRequestID(ctx context.Context, requestID string) (*domain.PaymentRecord, error) {
	return r.getOne(ctx, r.pool, "request_id = $1", requestID)
}

// GetByEndToEndID fetches a payment by its interbank end-to-end id.
func (r *PaymentRepo) GetByEndToEndID(ctx context.Context, endToEndID string) (*domain.PaymentRecord, error) {
	return r.getOne(ctx, r.pool, "end_to_end_id = $1", endToEndID)
}

// GetByMessageID fetches a payment by the id of its initiation message.
func (r *PaymentRepo) GetByMessageID(ctx context.Context, messageID string) (*domain.PaymentRecord, error) {
	return r.getOne(ctx, r.pool, "message_id = $1", messageID)
}

// UpdateStatus is the conditional PENDING -> terminal transition.
func (r *PaymentRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, u domain.StatusUpdate) (bool, error) {
	query := `UPDATE payments
		SET status = $2, status_reason = $3, status_reason_code = $4, updated_at = $5, completed_at = $5
		WHERE payment_id = $1 AND status = 'PENDING'`

	tag, err := tx.Exec(ctx, query, id, string(u.Status), u.Reason, u.ReasonCode, u.At)
	if err != nil {
		return false, fmt.Errorf("update payment status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetHoldEntry links the funds hold posted for the payment.
func (r *PaymentRepo) SetHoldEntry(ctx context.Context, tx pgx.Tx, id uuid.UUID, entryID uuid.UUID) error {
	tag, err := tx.Exec(ctx, `UPDATE payments SET hold_entry_id = $2 WHERE payment_id = $1`, id, entryID)
	if err != nil {
		return fmt.Errorf("set payment hold entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment not found: %s", id)
	}
	return nil
}

// ListPending returns the oldest PENDING payments created before createdBefore.
func (r *PaymentRepo) ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]domain.PaymentRecord, error) {
	query := `SELECT ` + paymentColumnList + ` FROM payments
		WHERE status = 'PENDING' AND created_at < $1
		ORDER BY created_at ASC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending payments: %w", err)
	}
	defer rows.Close()

	var out []domain.PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment row: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment rows: %w", err)
	}
	return out, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *PaymentRepo) getOne(ctx context.Context, q queryRower, where string, arg any) (*domain.PaymentRecord, error) {
	query := `SELECT ` + paymentColumnList + ` FROM payments WHERE ` + where

	p, err := scanPayment(q.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, lockError("get payment", err)
	}
	return p, nil
}

func scanPayment(row pgx.Row) (*domain.PaymentRecord, error) {
	var (
		p      domain.PaymentRecord
		route  string
		status string
	)
	err := row.Scan(
		&p.PaymentID, &p.RequestID, &p.RequestHash, &p.EndToEndID, &p.MessageID,
		&p.DebtorParticipantID, &p.DebtorAccountEnc, &p.CreditorParticipantID, &p.CreditorAccountEnc,
		&p.Amount, &p.Currency, &p.Reference, &route, &status, &p.StatusReason, &p.StatusReasonCode,
		&p.HoldEntryID, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Route = domain.PaymentRoute(route)
	p.Status = domain.PaymentStatus(status)
	return &p, nil
}
