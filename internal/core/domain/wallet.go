package domain

import (
	"time"

	"github.com/google/uuid"
)

// WalletStatus represents the state of an e-money wallet.
type WalletStatus string

const (
	WalletStatusActive WalletStatus = "ACTIVE"
	WalletStatusFrozen WalletStatus = "FROZEN"
)

// Wallet is an e-money wallet. Balances change only through the ledger writer.
type Wallet struct {
	ID        uuid.UUID    `json:"id"`
	OwnerID   uuid.UUID    `json:"owner_id"`
	Currency  string       `json:"currency"`
	Balance   int64        `json:"balance"` // In minor units
	PINHash   *string      `json:"-"`       // Argon2id, never expose
	Status    WalletStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// IsActive returns true if the wallet may be debited or credited.
func (w *Wallet) IsActive() bool {
	return w.Status == WalletStatusActive
}
