package service

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACSignatureService_SignAndVerify(t *testing.T) {
	svc := NewHMACSignatureService()
	secretKey := "participant-secret"
	payload := "POST|/api/v1/payments/callbacks|1708092000|abc123nonce|{\"status\":\"ACSC\"}"

	signature := svc.Sign(secretKey, payload)

	assert.Regexp(t, `^[0-9a-f]{64}$`, signature, "signature should be 64-char lowercase hex (SHA-256)")
	assert.True(t, svc.Verify(secretKey, payload, signature))
}

func TestHMACSignatureService_VerifyFails(t *testing.T) {
	svc := NewHMACSignatureService()
	signature := svc.Sign("correct-key", "original payload")

	assert.False(t, svc.Verify("wrong-key", "original payload", signature))
	assert.False(t, svc.Verify("correct-key", "tampered payload", signature))
	assert.False(t, svc.Verify("correct-key", "original payload", "invalidsignature"))
}

func TestHMACSignatureService_DeterministicSign(t *testing.T) {
	svc := NewHMACSignatureService()
	assert.Equal(t, svc.Sign("key", "data"), svc.Sign("key", "data"))
}

func TestHMACSignatureService_BuildCanonicalString(t *testing.T) {
	svc := NewHMACSignatureService()

	assert.Equal(t,
		"POST|/payments|1708092000|abc123|{\"amount\":\"1.00\"}",
		svc.BuildCanonicalString("POST", "/payments", 1708092000, "abc123", `{"amount":"1.00"}`))
	assert.Equal(t,
		"GET|/payments/E2E-1/status|1708092000|nonce1|",
		svc.BuildCanonicalString("GET", "/payments/E2E-1/status", 1708092000, "nonce1", ""))
}

func TestHMACSignatureService_SignedHeaders(t *testing.T) {
	svc := NewHMACSignatureService()
	now := time.Unix(1708092000, 0)
	body := []byte(`{"end_to_end_id":"E2E-1"}`)

	headers := svc.SignedHeaders("secret", "WALLETNA", "POST", "/payments", body, now)

	assert.Equal(t, "WALLETNA", headers[HeaderParticipantID])
	assert.Equal(t, strconv.FormatInt(now.Unix(), 10), headers[HeaderTimestamp])
	require.NotEmpty(t, headers[HeaderNonce])

	canonical := svc.BuildCanonicalString("POST", "/payments", now.Unix(), headers[HeaderNonce], string(body))
	assert.True(t, svc.Verify("secret", canonical, headers[HeaderSignature]))

	again := svc.SignedHeaders("secret", "WALLETNA", "POST", "/payments", body, now)
	assert.NotEqual(t, headers[HeaderNonce], again[HeaderNonce], "every request carries a fresh nonce")
}
