package service

import (
	"errors"
	"fmt"
	"time"

	"wallet-settlement/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// qrClaims is the signed body of a QR payload. The JWT ID is the qrId.
type qrClaims struct {
	MerchantID string `json:"mid"`
	Amount     int64  `json:"amt"`
	Currency   string `json:"cur"`
	Offline    bool   `json:"off,omitempty"`
	jwt.RegisteredClaims
}

// JWTQRCodec implements ports.QRCodec with HS256-signed compact JWTs.
type JWTQRCodec struct {
	secret []byte
	issuer string
}

// NewJWTQRCodec creates a QR codec signing with the configured secret.
func NewJWTQRCodec(secret, issuer string) (*JWTQRCodec, error) {
	if secret == "" {
		return nil, errors.New("qr signing secret is required")
	}
	return &JWTQRCodec{secret: []byte(secret), issuer: issuer}, nil
}

// Encode signs the payload fields. Times are carried with second precision.
func (c *JWTQRCodec) Encode(p domain.QRPayload, issuedAt time.Time) (string, error) {
	claims := qrClaims{
		MerchantID: p.MerchantID.String(),
		Amount:     p.Amount,
		Currency:   p.Currency,
		Offline:    p.Offline,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        p.QRID.String(),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(p.ExpiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing qr payload: %w", err)
	}
	return signed, nil
}

// Decode verifies and decodes a payload. Expiry is checked on the unverified
// claims first, so an expired code reports expired whatever its signature.
func (c *JWTQRCodec) Decode(payload string, now time.Time) (*domain.QRPayload, error) {
	unverified := &qrClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(payload, unverified); err != nil {
		return nil, &domain.PayloadError{Reason: domain.ReasonMalformedPayload, Err: err}
	}
	if unverified.ExpiresAt == nil {
		return nil, &domain.PayloadError{Reason: domain.ReasonMalformedPayload, Err: errors.New("missing exp")}
	}
	if !now.Before(unverified.ExpiresAt.Time) {
		return nil, &domain.PayloadError{Reason: domain.ReasonExpired}
	}

	claims := &qrClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	_, err := jwt.ParseWithClaims(payload, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &domain.PayloadError{Reason: domain.ReasonExpired, Err: err}
		}
		return nil, &domain.PayloadError{Reason: domain.ReasonInvalidSignature, Err: err}
	}

	qrID, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, &domain.PayloadError{Reason: domain.ReasonMalformedPayload, Err: fmt.Errorf("qr id: %w", err)}
	}
	merchantID, err := uuid.Parse(claims.MerchantID)
	if err != nil {
		return nil, &domain.PayloadError{Reason: domain.ReasonMalformedPayload, Err: fmt.Errorf("merchant id: %w", err)}
	}
	if claims.Amount <= 0 || claims.Currency == "" {
		return nil, &domain.PayloadError{Reason: domain.ReasonMalformedPayload, Err: errors.New("amount or currency missing")}
	}

	return &domain.QRPayload{
		QRID:       qrID,
		MerchantID: merchantID,
		Amount:     claims.Amount,
		Currency:   claims.Currency,
		ExpiresAt:  claims.ExpiresAt.Time,
		Offline:    claims.Offline,
	}, nil
}
