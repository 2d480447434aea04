package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// BuildPaymentCacheKey constructs the fast-path cache key for a payment request id.
func BuildPaymentCacheKey(requestID string) string {
	return "payment:" + requestID
}

// Fingerprint returns a stable hash of the fields that define the logical
// payment. A replay with the same request id must carry the same fingerprint.
func (r *PaymentRequest) Fingerprint() string {
	parts := []string{
		r.Debtor.ParticipantID,
		r.Debtor.AccountID,
		r.Creditor.ParticipantID,
		r.Creditor.AccountID,
		strconv.FormatInt(r.Amount, 10),
		strings.ToUpper(r.Currency),
	}
	if r.Reference != nil {
		parts = append(parts, *r.Reference)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
