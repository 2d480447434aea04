package domain

import (
	"time"

	"github.com/google/uuid"
)

// Channel identifies the payer-facing channel a redemption arrives through.
type Channel string

const (
	ChannelPOS  Channel = "POS"
	ChannelATM  Channel = "ATM"
	ChannelUSSD Channel = "USSD"
	ChannelApp  Channel = "APP"
)

// Valid returns true for the channels known to the settlement core.
func (c Channel) Valid() bool {
	switch c {
	case ChannelPOS, ChannelATM, ChannelUSSD, ChannelApp:
		return true
	}
	return false
}

// RequiresAttestation returns true for terminal channels whose device must be
// checked before funds move.
func (c Channel) RequiresAttestation() bool {
	return c == ChannelPOS || c == ChannelATM
}

// SettlementStatus tracks the funds movement that follows a successful claim.
type SettlementStatus string

const (
	SettlementStatusPending SettlementStatus = "PENDING"
	SettlementStatusSettled SettlementStatus = "SETTLED"
	SettlementStatusFailed  SettlementStatus = "FAILED"
)

// QRCode is a merchant payment code. It is immutable after generation except
// for the redemption claim columns, which are written exactly once.
type QRCode struct {
	ID         uuid.UUID `json:"id"`
	MerchantID uuid.UUID `json:"merchant_id"`
	Amount     int64     `json:"amount"` // In minor units
	Currency   string    `json:"currency"`
	Reference  *string   `json:"reference,omitempty"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Offline    bool      `json:"offline"`
	Payload    string    `json:"payload"`

	// Redemption claim. RedeemedAt is the mutual-exclusion token.
	RedeemedAt        *time.Time `json:"redeemed_at,omitempty"`
	RedeemedByPayerID *uuid.UUID `json:"redeemed_by_payer_id,omitempty"`
	RedeemChannel     *Channel   `json:"redeem_channel,omitempty"`
	DeviceID          *string    `json:"device_id,omitempty"`

	SettlementStatus *SettlementStatus `json:"settlement_status,omitempty"`
	SettlementReason *string           `json:"settlement_reason,omitempty"`
	TransactionID    *uuid.UUID        `json:"transaction_id,omitempty"`
}

// IsRedeemed returns true once the claim has been taken.
func (q *QRCode) IsRedeemed() bool {
	return q.RedeemedAt != nil
}

// IsExpired returns true when expiresAt lies before now. Expiry is derived,
// never stored.
func (q *QRCode) IsExpired(now time.Time) bool {
	return now.After(q.ExpiresAt)
}

// QRRedemptionClaim is the conditional state transition applied to a code.
type QRRedemptionClaim struct {
	QRID              uuid.UUID
	RedeemedAt        time.Time
	RedeemedByPayerID uuid.UUID
	Channel           Channel
	DeviceID          *string
}

// QRPayload holds the fields carried inside a signed QR payload.
type QRPayload struct {
	QRID       uuid.UUID
	MerchantID uuid.UUID
	Amount     int64
	Currency   string
	ExpiresAt  time.Time
	Offline    bool
}

// Validation reasons reported by QR validation.
const (
	ReasonMalformedPayload = "malformed_payload"
	ReasonInvalidSignature = "invalid_signature"
	ReasonExpired          = "expired"
	ReasonNotFound         = "not_found"
	ReasonPayloadMismatch  = "payload_mismatch"
	ReasonAlreadyRedeemed  = "already_redeemed"
	ReasonLookupFailed     = "lookup_failed"
)

// Redemption reasons reported by QR redemption.
const (
	ReasonChannelNotPermitted = "channel_not_permitted"
	ReasonInvalidPIN          = "invalid_pin"
	ReasonDeviceRejected      = "device_rejected"
	ReasonInsufficientBalance = "insufficient_balance"
	ReasonWalletNotFound      = "wallet_not_found"
	ReasonWalletUnavailable   = "wallet_unavailable"
	ReasonCurrencyMismatch    = "currency_mismatch"
	ReasonMerchantUnavailable = "merchant_unavailable"
	ReasonSettlementError     = "settlement_error"
)

// QRValidation is the read-only outcome of validating a scanned payload.
type QRValidation struct {
	Valid      bool      `json:"valid"`
	QRID       uuid.UUID `json:"qr_id,omitempty"`
	MerchantID uuid.UUID `json:"merchant_id,omitempty"`
	Amount     int64     `json:"amount,omitempty"`
	Currency   string    `json:"currency,omitempty"`
	Offline    bool      `json:"offline"`
	Reason     string    `json:"reason,omitempty"`
}

// RedemptionOutcome classifies a redemption result.
type RedemptionOutcome string

const (
	RedemptionOutcomeSuccess  RedemptionOutcome = "SUCCESS"
	RedemptionOutcomeConflict RedemptionOutcome = "CONFLICT" // code already claimed
	RedemptionOutcomeRejected RedemptionOutcome = "REJECTED" // validation or device policy
	RedemptionOutcomeFailed   RedemptionOutcome = "FAILED"   // funds movement failed after the claim
)

// RedemptionResult is returned to channels for every redemption attempt.
type RedemptionResult struct {
	Success       bool              `json:"success"`
	Outcome       RedemptionOutcome `json:"outcome"`
	TransactionID *uuid.UUID        `json:"transaction_id,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	// RedeemedByCaller is set on conflicts when the existing claim belongs to
	// the same payer, so a channel can tell a retry from a stolen code.
	RedeemedByCaller bool `json:"redeemed_by_caller,omitempty"`
}

// Consumed reports whether the code is spent after this attempt.
func (r *RedemptionResult) Consumed() bool {
	switch r.Outcome {
	case RedemptionOutcomeSuccess, RedemptionOutcomeConflict, RedemptionOutcomeFailed:
		return true
	}
	return r.Reason == ReasonDeviceRejected
}

// PayloadError reports why a scanned QR payload was refused before any
// storage lookup.
type PayloadError struct {
	Reason string
	Err    error
}

func (e *PayloadError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}
