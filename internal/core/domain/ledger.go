package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrRowLockTimeout is returned by repositories when a row lock could not be
// acquired within the database lock_timeout.
var ErrRowLockTimeout = errors.New("row lock timeout")

// EntryKind represents the kind of money movement recorded in the ledger.
type EntryKind string

const (
	EntryKindQRRedemption EntryKind = "QR_REDEMPTION"
	EntryKindPaymentHold  EntryKind = "PAYMENT_HOLD"
	EntryKindHoldRelease  EntryKind = "HOLD_RELEASE"
)

// Posting is a request to move funds between two wallets exactly once.
type Posting struct {
	IdempotencyKey string
	Kind           EntryKind
	DebitWalletID  uuid.UUID
	CreditWalletID uuid.UUID
	Amount         int64
	Currency       string
	Reference      *string
}

// LedgerEntry is the authoritative, immutable record of one logical movement.
// Its ID is the transaction id surfaced to channels.
type LedgerEntry struct {
	ID             uuid.UUID `json:"id"`
	IdempotencyKey string    `json:"idempotency_key"`
	Kind           EntryKind `json:"kind"`
	DebitWalletID  uuid.UUID `json:"debit_wallet_id"`
	CreditWalletID uuid.UUID `json:"credit_wallet_id"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	Reference      *string   `json:"reference,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// QRRedemptionKey is the ledger idempotency key for a QR redemption.
func QRRedemptionKey(qrID uuid.UUID) string {
	return "qr:" + qrID.String()
}

// PaymentHoldKey is the ledger idempotency key for a payment funds hold.
func PaymentHoldKey(paymentID uuid.UUID) string {
	return "ips:hold:" + paymentID.String()
}

// HoldReleaseKey is the ledger idempotency key for releasing a payment hold.
func HoldReleaseKey(paymentID uuid.UUID) string {
	return "ips:release:" + paymentID.String()
}
