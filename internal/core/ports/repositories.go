package ports

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

import (
	"context"
	"time"

	"wallet-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// QRCodeRepository defines persistence operations for merchant QR codes.
type QRCodeRepository interface {
	Create(ctx context.Context, qr *domain.QRCode) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.QRCode, error)
	// Claim applies the redemption claim only if the code is unredeemed and
	// unexpired at claim.RedeemedAt. It returns false when another caller
	// already holds the claim or the code expired.
	Claim(ctx context.Context, claim domain.QRRedemptionClaim) (bool, error)
	RecordSettlement(ctx context.Context, id uuid.UUID, status domain.SettlementStatus, transactionID *uuid.UUID, reason *string) error
}

// MerchantRepository defines persistence operations for merchants.
type MerchantRepository interface {
	Create(ctx context.Context, merchant *domain.Merchant) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error)
}

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance int64) error
}

// LedgerRepository persists immutable ledger entries. Idempotency keys are unique.
type LedgerRepository interface {
	// Create returns apperror PAY_003 when the idempotency key already exists.
	Create(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error
	GetByIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) (*domain.LedgerEntry, error)
	GetByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.LedgerEntry, error)
}

// PaymentRepository defines persistence operations for instant payment records.
type PaymentRepository interface {
	// Insert stores the record unless its request id already exists. Returns
	// false on conflict without error.
	Insert(ctx context.Context, tx pgx.Tx, p *domain.PaymentRecord) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.PaymentRecord, error)
	GetByRequestID(ctx context.Context, requestID string) (*domain.PaymentRecord, error)
	GetByEndToEndID(ctx context.Context, endToEndID string) (*domain.PaymentRecord, error)
	GetByMessageID(ctx context.Context, messageID string) (*domain.PaymentRecord, error)
	// UpdateStatus moves a PENDING record to a new status. Returns false if
	// the record was no longer PENDING.
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, update domain.StatusUpdate) (bool, error)
	SetHoldEntry(ctx context.Context, tx pgx.Tx, id uuid.UUID, entryID uuid.UUID) error
	ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]domain.PaymentRecord, error)
}

// DeviceRepository reads and updates terminal attestation state.
type DeviceRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Device, error)
	UpdateStatus(ctx context.Context, id string, status domain.DeviceStatus) error
}

// AuditRepository persists audit trail entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
