package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"time"

	"wallet-settlement/internal/core/domain"

	"github.com/google/uuid"
)

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
	BuildCanonicalString(method, path string, timestamp int64, nonce string, body string) string
	SignedHeaders(secretKey, participantID, method, path string, body []byte, now time.Time) map[string]string
}

// HashService handles PIN hashing (Argon2id).
type HashService interface {
	Hash(secret string) (string, error)
	Verify(secret string, hash string) (bool, error)
}

// QRCodec signs and verifies QR payloads. Decode returns *domain.PayloadError
// for malformed, expired or badly signed payloads.
type QRCodec interface {
	Encode(payload domain.QRPayload, issuedAt time.Time) (string, error)
	Decode(payload string, now time.Time) (*domain.QRPayload, error)
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached record JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// NonceStore manages nonce uniqueness for replay attack prevention.
type NonceStore interface {
	// CheckAndSet atomically checks if nonce exists, sets it if not.
	// Returns true if nonce is new (valid), false if already used.
	CheckAndSet(ctx context.Context, participantID string, nonce string, ttl time.Duration) (bool, error)
}

// RateLimitStore counts requests per key in fixed windows.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error)
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // Unix timestamp
}

// --- Service Ports (Business Logic) ---

// QRService is the merchant QR settlement engine.
type QRService interface {
	Generate(ctx context.Context, req GenerateQRRequest) (*domain.QRCode, error)
	Validate(ctx context.Context, payload string) *domain.QRValidation
	Redeem(ctx context.Context, req RedeemRequest) (*domain.RedemptionResult, error)
	IsRedeemableFromChannel(channel domain.Channel) bool
}

// GenerateQRRequest holds validated input for QR generation.
type GenerateQRRequest struct {
	MerchantID    uuid.UUID
	Amount        int64
	Currency      string
	Reference     *string
	ExpiryMinutes *int
	Offline       bool
	ClientIP      string
}

// RedeemRequest holds input for QR redemption.
type RedeemRequest struct {
	QRID          uuid.UUID
	PayerID       uuid.UUID // beneficiary redeeming the code
	PayerWalletID uuid.UUID
	PIN           *string
	DeviceID      *string
	Channel       domain.Channel
	ClientIP      string
}

// PaymentClient is the instant payment client.
type PaymentClient interface {
	InitiatePayment(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentResult, error)
	SendPayment(ctx context.Context, req domain.PaymentRequest, debtorName, creditorName string) (*domain.PaymentResult, error)
	ReceivePayment(ctx context.Context, msg domain.StatusMessage) (*domain.StatusAck, error)
	GetPaymentStatus(ctx context.Context, paymentID uuid.UUID) (*domain.PaymentRecord, error)
}

// PaymentTransport delivers initiation messages and status queries to a
// gateway or participant endpoint.
type PaymentTransport interface {
	// Submit returns an error only when the outcome is unknown after retries.
	Submit(ctx context.Context, target domain.RouteTarget, msg domain.InitiationMessage) (*domain.SubmissionOutcome, error)
	QueryStatus(ctx context.Context, target domain.RouteTarget, endToEndID string) (*domain.StatusMessage, error)
}

// ParticipantDirectory is the read-only participant registry.
type ParticipantDirectory interface {
	List(ctx context.Context) ([]domain.Participant, error)
	Lookup(ctx context.Context, participantID string) (*domain.Participant, error)
}

// LedgerWriter is the only code path that mutates balances or payment status.
type LedgerWriter interface {
	PostTransfer(ctx context.Context, posting domain.Posting) (*domain.LedgerEntry, error)
	// OpenPayment inserts the record, or returns the existing one for the same
	// request id with inserted=false.
	OpenPayment(ctx context.Context, record *domain.PaymentRecord, hold *domain.Posting) (*domain.PaymentRecord, bool, error)
	// ApplyPaymentStatus transitions a PENDING record. applied=false when the
	// record was already terminal or the update is not a transition.
	ApplyPaymentStatus(ctx context.Context, paymentID uuid.UUID, update domain.StatusUpdate) (*domain.PaymentRecord, bool, error)
}

// Reconciler resolves PENDING payments by querying their counterparty.
type Reconciler interface {
	ReconcileOnce(ctx context.Context) (int, error)
}

// AuditService records audit trail entries.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
