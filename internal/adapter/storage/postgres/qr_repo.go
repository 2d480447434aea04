package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const qrColumnList = `id, merchant_id, amount, currency, reference, issued_at, expires_at, offline, payload,
	redeemed_at, redeemed_by_payer_id, redeem_channel, device_id,
	settlement_status, settlement_reason, transaction_id`

// QRCodeRepo implements ports.QRCodeRepository.
type QRCodeRepo struct {
	pool Pool
}

// NewQRCodeRepo creates a new QRCodeRepo.
func NewQRCodeRepo(pool Pool) *QRCodeRepo {
	return &QRCodeRepo{pool: pool}
}

// Create stores a freshly issued, unclaimed QR code.
func (r *QRCodeRepo) Create(ctx context.Context, qr *domain.QRCode) error {
	query := `INSERT INTO qr_codes (id, merchant_id, amount, currency, reference, issued_at, expires_at, offline, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		qr.ID, qr.MerchantID, qr.Amount, qr.Currency, qr.Reference,
		qr.IssuedAt, qr.ExpiresAt, qr.Offline, qr.Payload,
	)
	if err != nil {
		return fmt.Errorf("insert qr code: %w", err)
	}
	return nil
}

// GetByID fetches a QR code with its claim state.
func (r *QRCodeRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.QRCode, error) {
	query := `SELECT ` + qrColumnList + ` FROM qr_codes WHERE id = $1`

	var (
		qr         domain.QRCode
		channel    *string
		settlement *string
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&qr.ID, &qr.MerchantID, &qr.Amount, &qr.Currency, &qr.Reference,
		&qr.IssuedAt, &qr.ExpiresAt, &qr.Offline, &qr.Payload,
		&qr.RedeemedAt, &qr.RedeemedByPayerID, &channel, &qr.DeviceID,
		&settlement, &qr.SettlementReason, &qr.TransactionID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get qr code by id: %w", err)
	}
	if channel != nil {
		c := domain.Channel(*channel)
		qr.RedeemChannel = &c
	}
	if settlement != nil {
		s := domain.SettlementStatus(*settlement)
		qr.SettlementStatus = &s
	}
	return &qr, nil
}

// Claim is the single conditional write that consumes a code. Exactly one
// caller can move redeemed_at from NULL to a timestamp.
func (r *QRCodeRepo) Claim(ctx context.Context, c domain.QRRedemptionClaim) (bool, error) {
	query := `UPDATE qr_codes
		SET redeemed_at = $2, redeemed_by_payer_id = $3, redeem_channel = $4, device_id = $5, settlement_status = 'PENDING'
		WHERE id = $1 AND redeemed_at IS NULL AND expires_at > $2`

	tag, err := r.pool.Exec(ctx, query, c.QRID, c.RedeemedAt, c.RedeemedByPayerID, string(c.Channel), c.DeviceID)
	if err != nil {
		return false, fmt.Errorf("claim qr code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordSettlement stores the outcome of the funds movement for a claimed code.
func (r *QRCodeRepo) RecordSettlement(ctx context.Context, id uuid.UUID, status domain.SettlementStatus, transactionID *uuid.UUID, reason *string) error {
	query := `UPDATE qr_codes SET settlement_status = $2, transaction_id = $3, settlement_reason = $4
		WHERE id = $1 AND redeemed_at IS NOT NULL`

	tag, err := r.pool.Exec(ctx, query, id, string(status), transactionID, reason)
	if err != nil {
		return fmt.Errorf("record qr settlement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("claimed qr code not found: %s", id)
	}
	return nil
}
