package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wallet-settlement/internal/core/domain"
	"wallet-settlement/internal/core/ports"
	"wallet-settlement/internal/metrics"
	"wallet-settlement/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// QRPolicy holds the issuing rules of the QR engine.
type QRPolicy struct {
	DefaultExpiry       time.Duration
	OfflineExpiry       time.Duration
	MaxExpiry           time.Duration
	SupportedCurrencies []string
}

func (p QRPolicy) supports(currency string) bool {
	for _, c := range p.SupportedCurrencies {
		if strings.EqualFold(c, currency) {
			return true
		}
	}
	return false
}

// QRServiceImpl implements ports.QRService.
type QRServiceImpl struct {
	qrRepo       ports.QRCodeRepository
	merchantRepo ports.MerchantRepository
	walletRepo   ports.WalletRepository
	deviceRepo   ports.DeviceRepository
	ledger       ports.LedgerWriter
	codec        ports.QRCodec
	hashSvc      ports.HashService
	audit        ports.AuditService
	policy       QRPolicy
	now          func() time.Time
	log          zerolog.Logger
}

// NewQRService creates a new QRServiceImpl.
func NewQRService(
	qrRepo ports.QRCodeRepository,
	merchantRepo ports.MerchantRepository,
	walletRepo ports.WalletRepository,
	deviceRepo ports.DeviceRepository,
	ledger ports.LedgerWriter,
	codec ports.QRCodec,
	hashSvc ports.HashService,
	audit ports.AuditService,
	policy QRPolicy,
	log zerolog.Logger,
) *QRServiceImpl {
	return &QRServiceImpl{
		qrRepo:       qrRepo,
		merchantRepo: merchantRepo,
		walletRepo:   walletRepo,
		deviceRepo:   deviceRepo,
		ledger:       ledger,
		codec:        codec,
		hashSvc:      hashSvc,
		audit:        audit,
		policy:       policy,
		now:          func() time.Time { return time.Now().UTC() },
		log:          log,
	}
}

// Generate issues a signed QR code for a merchant.
func (s *QRServiceImpl) Generate(ctx context.Context, req ports.GenerateQRRequest) (*domain.QRCode, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if !s.policy.supports(currency) {
		return nil, apperror.ErrUnsupportedCurrency()
	}

	expiry := s.policy.DefaultExpiry
	if req.Offline {
		expiry = s.policy.OfflineExpiry
	}
	if req.ExpiryMinutes != nil {
		expiry = time.Duration(*req.ExpiryMinutes) * time.Minute
		if expiry <= 0 || expiry > s.policy.MaxExpiry {
			return nil, apperror.ErrInvalidExpiry()
		}
	}

	merchant, err := s.merchantRepo.GetByID(ctx, req.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get merchant: %w", err))
	}
	if merchant == nil || !merchant.IsActive() {
		return nil, apperror.ErrUnknownMerchant()
	}

	// The payload carries whole seconds; keep the stored times identical.
	now := s.now().Truncate(time.Second)
	qr := &domain.QRCode{
		ID:         uuid.New(),
		MerchantID: merchant.ID,
		Amount:     req.Amount,
		Currency:   currency,
		Reference:  req.Reference,
		IssuedAt:   now,
		ExpiresAt:  now.Add(expiry),
		Offline:    req.Offline,
	}

	qr.Payload, err = s.codec.Encode(domain.QRPayload{
		QRID:       qr.ID,
		MerchantID: qr.MerchantID,
		Amount:     qr.Amount,
		Currency:   qr.Currency,
		ExpiresAt:  qr.ExpiresAt,
		Offline:    qr.Offline,
	}, qr.IssuedAt)
	if err != nil {
		return nil, apperror.ErrSigningFailure(err)
	}

	if err := s.qrRepo.Create(ctx, qr); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create qr code: %w", err))
	}

	metrics.QRGeneratedTotal.Inc()
	s.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		Action:       domain.AuditActionQRGenerate,
		ResourceType: "qr_code",
		ResourceID:   qr.ID.String(),
		IPAddress:    req.ClientIP,
		CreatedAt:    now,
	})
	s.log.Info().
		Str("qr_id", qr.ID.String()).
		Str("merchant_id", qr.MerchantID.String()).
		Int64("amount", qr.Amount).
		Time("expires_at", qr.ExpiresAt).
		Bool("offline", qr.Offline).
		Msg("qr code generated")

	return qr, nil
}

// Validate checks a scanned payload without changing any state.
func (s *QRServiceImpl) Validate(ctx context.Context, payload string) *domain.QRValidation {
	now := s.now()

	p, err := s.codec.Decode(payload, now)
	if err != nil {
		return &domain.QRValidation{Reason: payloadReason(err)}
	}

	res := &domain.QRValidation{
		QRID:       p.QRID,
		MerchantID: p.MerchantID,
		Amount:     p.Amount,
		Currency:   p.Currency,
		Offline:    p.Offline,
	}

	qr, err := s.qrRepo.GetByID(ctx, p.QRID)
	if err != nil {
		s.log.Warn().Err(err).Str("qr_id", p.QRID.String()).Msg("qr lookup failed during validation")
		res.Reason = domain.ReasonLookupFailed
		return res
	}
	switch {
	case qr == nil:
		res.Reason = domain.ReasonNotFound
	case qr.MerchantID != p.MerchantID || qr.Amount != p.Amount || qr.Currency != p.Currency:
		res.Reason = domain.ReasonPayloadMismatch
	case qr.IsRedeemed():
		res.Reason = domain.ReasonAlreadyRedeemed
	case qr.IsExpired(now):
		res.Reason = domain.ReasonExpired
	default:
		res.Valid = true
	}
	return res
}

// IsRedeemableFromChannel reports whether codes may be redeemed through channel.
func (s *QRServiceImpl) IsRedeemableFromChannel(channel domain.Channel) bool {
	return channel.Valid()
}

// Redeem consumes a QR code at most once and moves the funds. Only
// infrastructure failures before the claim are returned as errors.
func (s *QRServiceImpl) Redeem(ctx context.Context, req ports.RedeemRequest) (*domain.RedemptionResult, error) {
	if !s.IsRedeemableFromChannel(req.Channel) {
		return s.finish(rejected(domain.ReasonChannelNotPermitted)), nil
	}

	qr, err := s.qrRepo.GetByID(ctx, req.QRID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get qr code: %w", err))
	}
	if qr == nil {
		return s.finish(rejected(domain.ReasonNotFound)), nil
	}

	now := s.now()
	if qr.IsRedeemed() {
		return s.finish(conflict(qr, req.PayerID)), nil
	}
	if qr.IsExpired(now) {
		return s.finish(rejected(domain.ReasonExpired)), nil
	}

	if req.PIN != nil {
		reason, err := s.checkPIN(ctx, req.PayerWalletID, *req.PIN)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			return s.finish(rejected(reason)), nil
		}
	}

	merchant, err := s.merchantRepo.GetByID(ctx, qr.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get merchant: %w", err))
	}
	if merchant == nil || !merchant.IsActive() {
		return s.finish(rejected(domain.ReasonMerchantUnavailable)), nil
	}

	claimed, err := s.qrRepo.Claim(ctx, domain.QRRedemptionClaim{
		QRID:              qr.ID,
		RedeemedAt:        now,
		RedeemedByPayerID: req.PayerID,
		Channel:           req.Channel,
		DeviceID:          req.DeviceID,
	})
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("claim qr code: %w", err))
	}
	if !claimed {
		return s.finish(s.claimLost(ctx, qr, req.PayerID)), nil
	}

	// The code is consumed from here on; the caller going away must not
	// leave it half-settled.
	ctx = context.WithoutCancel(ctx)

	s.log.Info().
		Str("qr_id", qr.ID.String()).
		Str("payer_id", req.PayerID.String()).
		Str("channel", string(req.Channel)).
		Msg("qr code claimed")

	if req.Channel.RequiresAttestation() && req.DeviceID != nil && !s.deviceTrusted(ctx, *req.DeviceID) {
		s.recordSettlement(ctx, qr.ID, domain.SettlementStatusFailed, nil, domain.ReasonDeviceRejected)
		return s.finish(rejected(domain.ReasonDeviceRejected)), nil
	}

	entry, err := s.ledger.PostTransfer(ctx, domain.Posting{
		IdempotencyKey: domain.QRRedemptionKey(qr.ID),
		Kind:           domain.EntryKindQRRedemption,
		DebitWalletID:  req.PayerWalletID,
		CreditWalletID: merchant.SettlementWalletID,
		Amount:         qr.Amount,
		Currency:       qr.Currency,
		Reference:      qr.Reference,
	})
	if err != nil {
		reason := settlementReason(err)
		s.log.Warn().Err(err).Str("qr_id", qr.ID.String()).Str("reason", reason).Msg("qr settlement failed after claim")
		s.recordSettlement(ctx, qr.ID, domain.SettlementStatusFailed, nil, reason)
		return s.finish(&domain.RedemptionResult{
			Outcome: domain.RedemptionOutcomeFailed,
			Reason:  reason,
		}), nil
	}

	s.recordSettlement(ctx, qr.ID, domain.SettlementStatusSettled, &entry.ID, "")
	s.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		Action:       domain.AuditActionQRRedeem,
		ResourceType: "qr_code",
		ResourceID:   qr.ID.String(),
		Details:      fmt.Sprintf(`{"transaction_id":%q,"channel":%q}`, entry.ID, req.Channel),
		IPAddress:    req.ClientIP,
		CreatedAt:    now,
	})

	txID := entry.ID
	return s.finish(&domain.RedemptionResult{
		Success:       true,
		Outcome:       domain.RedemptionOutcomeSuccess,
		TransactionID: &txID,
	}), nil
}

// claimLost classifies a failed claim. The conditional update also refuses
// codes that expired after the pre-check.
func (s *QRServiceImpl) claimLost(ctx context.Context, qr *domain.QRCode, payerID uuid.UUID) *domain.RedemptionResult {
	current, err := s.qrRepo.GetByID(ctx, qr.ID)
	if err != nil || current == nil {
		return &domain.RedemptionResult{Outcome: domain.RedemptionOutcomeConflict, Reason: domain.ReasonAlreadyRedeemed}
	}
	if !current.IsRedeemed() {
		return rejected(domain.ReasonExpired)
	}
	return conflict(current, payerID)
}

func (s *QRServiceImpl) checkPIN(ctx context.Context, walletID uuid.UUID, pin string) (string, error) {
	wallet, err := s.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		return "", apperror.InternalError(fmt.Errorf("get payer wallet: %w", err))
	}
	if wallet == nil {
		return domain.ReasonWalletNotFound, nil
	}
	if wallet.PINHash == nil {
		return domain.ReasonInvalidPIN, nil
	}
	ok, err := s.hashSvc.Verify(pin, *wallet.PINHash)
	if err != nil {
		s.log.Warn().Err(err).Str("wallet_id", walletID.String()).Msg("stored pin hash unreadable")
		return domain.ReasonInvalidPIN, nil
	}
	if !ok {
		return domain.ReasonInvalidPIN, nil
	}
	return "", nil
}

// deviceTrusted fails closed: an unknown device or a lookup error rejects.
func (s *QRServiceImpl) deviceTrusted(ctx context.Context, deviceID string) bool {
	device, err := s.deviceRepo.GetByID(ctx, deviceID)
	if err != nil {
		s.log.Warn().Err(err).Str("device_id", deviceID).Msg("device attestation lookup failed")
		return false
	}
	return device != nil && device.IsTrusted()
}

func (s *QRServiceImpl) recordSettlement(ctx context.Context, qrID uuid.UUID, status domain.SettlementStatus, txID *uuid.UUID, reason string) {
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	if err := s.qrRepo.RecordSettlement(ctx, qrID, status, txID, reasonPtr); err != nil {
		s.log.Error().Err(err).Str("qr_id", qrID.String()).Str("status", string(status)).Msg("failed to record qr settlement")
	}
}

func (s *QRServiceImpl) finish(res *domain.RedemptionResult) *domain.RedemptionResult {
	metrics.QRRedemptionsTotal.WithLabelValues(string(res.Outcome), res.Reason).Inc()
	return res
}

func rejected(reason string) *domain.RedemptionResult {
	return &domain.RedemptionResult{Outcome: domain.RedemptionOutcomeRejected, Reason: reason}
}

// conflict reports an already-claimed code. The original transaction id is
// only disclosed to the payer who holds the claim.
func conflict(qr *domain.QRCode, payerID uuid.UUID) *domain.RedemptionResult {
	res := &domain.RedemptionResult{
		Outcome:          domain.RedemptionOutcomeConflict,
		Reason:           domain.ReasonAlreadyRedeemed,
		RedeemedByCaller: qr.RedeemedByPayerID != nil && *qr.RedeemedByPayerID == payerID,
	}
	if res.RedeemedByCaller {
		res.TransactionID = qr.TransactionID
	}
	return res
}

func payloadReason(err error) string {
	var perr *domain.PayloadError
	if errors.As(err, &perr) {
		return perr.Reason
	}
	return domain.ReasonMalformedPayload
}

func settlementReason(err error) string {
	switch {
	case apperror.HasCode(err, "PAY_001"):
		return domain.ReasonInsufficientBalance
	case apperror.HasCode(err, "PAY_004"):
		return domain.ReasonWalletNotFound
	case apperror.HasCode(err, "PAY_007"):
		return domain.ReasonCurrencyMismatch
	case apperror.HasCode(err, "PAY_008"):
		return domain.ReasonWalletUnavailable
	}
	return domain.ReasonSettlementError
}
