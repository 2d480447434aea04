package service

import (
	"context"
	"encoding/json"
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

const paymentCacheTTL = 24 * time.Hour

const maxRequestIDLength = 64

// PaymentRouting configures where outbound payments go.
type PaymentRouting struct {
	SelfParticipantID string
	// Gateway is nil when payments are routed to participant endpoints.
	Gateway           *domain.RouteTarget
	SimulationEnabled bool
	// SuspenseWalletID receives funds held for outgoing payments of this
	// issuer's own wallets. uuid.Nil disables the hold.
	SuspenseWalletID uuid.UUID
}

// Router resolves the destination of a payment.
type Router struct {
	directory ports.ParticipantDirectory
	routing   PaymentRouting
}

// NewRouter creates a new Router.
func NewRouter(directory ports.ParticipantDirectory, routing PaymentRouting) *Router {
	return &Router{directory: directory, routing: routing}
}

// Resolve picks the route for a new payment to creditorID.
func (r *Router) Resolve(ctx context.Context, creditorID string) (domain.RouteTarget, error) {
	if r.routing.Gateway != nil {
		return *r.routing.Gateway, nil
	}

	p, err := r.directory.Lookup(ctx, creditorID)
	if err != nil {
		return domain.RouteTarget{}, apperror.InternalError(fmt.Errorf("directory lookup: %w", err))
	}
	if p != nil && p.Endpoint != "" && p.Supports(domain.CapabilityInstantPayment) {
		return domain.RouteTarget{
			Route:         domain.PaymentRouteParticipant,
			ParticipantID: p.ID,
			Endpoint:      p.Endpoint,
			Secret:        p.CallbackSecret,
		}, nil
	}

	if r.routing.SimulationEnabled {
		return domain.RouteTarget{Route: domain.PaymentRouteSimulated, ParticipantID: creditorID}, nil
	}
	return domain.RouteTarget{}, apperror.ErrNoRoute()
}

// TargetFor returns the counterparty of an existing payment. ok is false when
// the route it was sent on is no longer available.
func (r *Router) TargetFor(ctx context.Context, rec *domain.PaymentRecord) (domain.RouteTarget, bool, error) {
	switch rec.Route {
	case domain.PaymentRouteGateway:
		if r.routing.Gateway == nil {
			return domain.RouteTarget{}, false, nil
		}
		return *r.routing.Gateway, true, nil
	case domain.PaymentRouteParticipant:
		p, err := r.directory.Lookup(ctx, rec.CreditorParticipantID)
		if err != nil {
			return domain.RouteTarget{}, false, apperror.InternalError(fmt.Errorf("directory lookup: %w", err))
		}
		if p == nil || p.Endpoint == "" {
			return domain.RouteTarget{}, false, nil
		}
		return domain.RouteTarget{
			Route:         domain.PaymentRouteParticipant,
			ParticipantID: p.ID,
			Endpoint:      p.Endpoint,
			Secret:        p.CallbackSecret,
		}, true, nil
	}
	return domain.RouteTarget{}, false, nil
}

// CallbackSecret returns the secret participantID signs its status messages
// with. The gateway signs with its own secret; participants with the
// callback_secret from the directory.
func (r *Router) CallbackSecret(ctx context.Context, participantID string) (string, bool, error) {
	if gw := r.routing.Gateway; gw != nil && gw.ParticipantID == participantID {
		return gw.Secret, gw.Secret != "", nil
	}
	p, err := r.directory.Lookup(ctx, participantID)
	if err != nil {
		return "", false, fmt.Errorf("directory lookup: %w", err)
	}
	if p == nil || p.CallbackSecret == "" {
		return "", false, nil
	}
	return p.CallbackSecret, true, nil
}

// cachedPayment is the fast-path idempotency entry for a request id.
type cachedPayment struct {
	PaymentID   uuid.UUID `json:"payment_id"`
	RequestHash string    `json:"request_hash"`
}

// PaymentClientImpl implements ports.PaymentClient.
type PaymentClientImpl struct {
	paymentRepo ports.PaymentRepository
	ledger      ports.LedgerWriter
	transport   ports.PaymentTransport
	router      *Router
	cache       ports.IdempotencyCache
	encSvc      ports.EncryptionService
	audit       ports.AuditService
	routing     PaymentRouting
	now         func() time.Time
	log         zerolog.Logger
}

// NewPaymentClient creates a new PaymentClientImpl.
func NewPaymentClient(
	paymentRepo ports.PaymentRepository,
	ledger ports.LedgerWriter,
	transport ports.PaymentTransport,
	router *Router,
	cache ports.IdempotencyCache,
	encSvc ports.EncryptionService,
	audit ports.AuditService,
	routing PaymentRouting,
	log zerolog.Logger,
) *PaymentClientImpl {
	return &PaymentClientImpl{
		paymentRepo: paymentRepo,
		ledger:      ledger,
		transport:   transport,
		router:      router,
		cache:       cache,
		encSvc:      encSvc,
		audit:       audit,
		routing:     routing,
		now:         func() time.Time { return time.Now().UTC() },
		log:         log,
	}
}

// InitiatePayment submits a payment without party names.
func (c *PaymentClientImpl) InitiatePayment(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentResult, error) {
	return c.SendPayment(ctx, req, "", "")
}

// SendPayment submits a payment at most once per request id. A replay returns
// the stored record with Duplicate set; a replay with different payment
// fields is rejected.
func (c *PaymentClientImpl) SendPayment(ctx context.Context, req domain.PaymentRequest, debtorName, creditorName string) (*domain.PaymentResult, error) {
	if err := normalizePaymentRequest(&req); err != nil {
		return nil, err
	}
	hash := req.Fingerprint()

	if existing, err := c.lookupExisting(ctx, req.RequestID); err != nil {
		return nil, err
	} else if existing != nil {
		return c.duplicate(existing, hash)
	}

	target, err := c.router.Resolve(ctx, req.Creditor.ParticipantID)
	if err != nil {
		return nil, err
	}

	record, err := c.newRecord(req, hash, target.Route)
	if err != nil {
		return nil, err
	}
	hold, err := c.holdFor(req, record.PaymentID)
	if err != nil {
		return nil, err
	}

	rec, inserted, err := c.ledger.OpenPayment(ctx, record, hold)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return c.duplicate(rec, hash)
	}
	c.remember(ctx, rec)

	// The record exists now; the submission must not be abandoned with the caller.
	ctx = context.WithoutCancel(ctx)

	c.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		Action:       domain.AuditActionPaymentInitiate,
		ResourceType: "payment",
		ResourceID:   rec.PaymentID.String(),
		Details:      fmt.Sprintf(`{"request_id":%q,"route":%q}`, rec.RequestID, rec.Route),
		CreatedAt:    rec.CreatedAt,
	})

	outcome, err := c.submit(ctx, target, req, rec, debtorName, creditorName)
	if err != nil {
		c.log.Warn().Err(err).
			Str("payment_id", rec.PaymentID.String()).
			Str("route", string(target.Route)).
			Msg("payment outcome unknown, left pending")
		metrics.PaymentsTotal.WithLabelValues(string(target.Route), string(rec.Status)).Inc()
		return &domain.PaymentResult{Record: rec}, nil
	}

	if outcome.Status.IsTerminal() {
		updated, _, err := c.ledger.ApplyPaymentStatus(ctx, rec.PaymentID, domain.StatusUpdate{
			Status:     outcome.Status,
			Reason:     outcome.Reason,
			ReasonCode: outcome.ReasonCode,
			At:         c.now(),
		})
		if err != nil {
			c.log.Error().Err(err).Str("payment_id", rec.PaymentID.String()).Msg("failed to apply synchronous payment status")
		} else {
			rec = updated
		}
	}

	metrics.PaymentsTotal.WithLabelValues(string(target.Route), string(rec.Status)).Inc()
	c.log.Info().
		Str("payment_id", rec.PaymentID.String()).
		Str("request_id", rec.RequestID).
		Str("route", string(rec.Route)).
		Str("status", string(rec.Status)).
		Int64("amount", rec.Amount).
		Msg("payment submitted")

	return &domain.PaymentResult{Record: c.reveal(rec)}, nil
}

// ReceivePayment applies an asynchronous status message. Messages for a
// record that is already terminal are acknowledged without effect.
func (c *PaymentClientImpl) ReceivePayment(ctx context.Context, msg domain.StatusMessage) (*domain.StatusAck, error) {
	status, ok := domain.ParsePaymentStatus(msg.Status)
	if !ok {
		return nil, apperror.ErrInvalidStatus()
	}

	rec, err := c.correlate(ctx, msg)
	if err != nil {
		return nil, err
	}
	if err := c.authorizeSender(rec, msg.SenderID); err != nil {
		c.log.Warn().
			Str("payment_id", rec.PaymentID.String()).
			Str("sender", msg.SenderID).
			Str("route", string(rec.Route)).
			Msg("status message from a participant outside the payment")
		return nil, err
	}

	ack := &domain.StatusAck{
		Acknowledged:      true,
		OriginalMessageID: msg.MessageID,
		PaymentID:         rec.PaymentID,
		Status:            rec.Status,
	}
	if !status.IsTerminal() {
		metrics.PaymentCallbacksTotal.WithLabelValues("callback", "false").Inc()
		return ack, nil
	}

	updated, applied, err := c.ledger.ApplyPaymentStatus(ctx, rec.PaymentID, domain.StatusUpdate{
		Status:     status,
		Reason:     msg.Reason,
		ReasonCode: msg.ReasonCode,
		At:         c.now(),
	})
	if err != nil {
		return nil, err
	}
	ack.Status = updated.Status
	ack.Applied = applied
	metrics.PaymentCallbacksTotal.WithLabelValues("callback", fmt.Sprint(applied)).Inc()

	if applied {
		c.audit.Log(ctx, &domain.AuditLog{
			ID:           uuid.New(),
			Action:       domain.AuditActionPaymentStatus,
			ResourceType: "payment",
			ResourceID:   updated.PaymentID.String(),
			Details:      fmt.Sprintf(`{"status":%q,"message_id":%q}`, updated.Status, msg.MessageID),
			CreatedAt:    c.now(),
		})
		c.log.Info().
			Str("payment_id", updated.PaymentID.String()).
			Str("status", string(updated.Status)).
			Str("message_id", msg.MessageID).
			Msg("payment status received")
	} else {
		c.log.Debug().
			Str("payment_id", rec.PaymentID.String()).
			Str("message_id", msg.MessageID).
			Msg("duplicate or late status message ignored")
	}

	return ack, nil
}

// GetPaymentStatus returns the stored record.
func (c *PaymentClientImpl) GetPaymentStatus(ctx context.Context, paymentID uuid.UUID) (*domain.PaymentRecord, error) {
	rec, err := c.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get payment: %w", err))
	}
	if rec == nil {
		return nil, apperror.ErrNotFound("payment")
	}
	return c.reveal(rec), nil
}

// authorizeSender accepts status messages only from the counterparty the
// payment was submitted to. Simulated payments never take callbacks.
func (c *PaymentClientImpl) authorizeSender(rec *domain.PaymentRecord, sender string) error {
	var expected string
	switch rec.Route {
	case domain.PaymentRouteGateway:
		if c.routing.Gateway != nil {
			expected = c.routing.Gateway.ParticipantID
		}
	case domain.PaymentRouteParticipant:
		expected = rec.CreditorParticipantID
	}
	if expected == "" || sender != expected {
		return apperror.ErrParticipantMismatch()
	}
	return nil
}

func (c *PaymentClientImpl) correlate(ctx context.Context, msg domain.StatusMessage) (*domain.PaymentRecord, error) {
	var (
		rec *domain.PaymentRecord
		err error
	)
	switch {
	case msg.PaymentID != "":
		id, perr := uuid.Parse(msg.PaymentID)
		if perr != nil {
			return nil, apperror.Validation("payment_id is not a valid UUID")
		}
		rec, err = c.paymentRepo.GetByID(ctx, id)
	case msg.EndToEndID != "":
		rec, err = c.paymentRepo.GetByEndToEndID(ctx, msg.EndToEndID)
	case msg.OriginalMessageID != "":
		rec, err = c.paymentRepo.GetByMessageID(ctx, msg.OriginalMessageID)
	default:
		return nil, apperror.Validation("status message carries no payment reference")
	}
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("correlate status message: %w", err))
	}
	if rec == nil {
		return nil, apperror.ErrNotFound("payment")
	}
	return rec, nil
}

// lookupExisting checks the cache first and falls back to storage.
func (c *PaymentClientImpl) lookupExisting(ctx context.Context, requestID string) (*domain.PaymentRecord, error) {
	key := domain.BuildPaymentCacheKey(requestID)
	cached, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached != nil {
		var entry cachedPayment
		if err := json.Unmarshal(cached, &entry); err == nil {
			rec, err := c.paymentRepo.GetByID(ctx, entry.PaymentID)
			if err != nil {
				return nil, apperror.InternalError(fmt.Errorf("get cached payment: %w", err))
			}
			if rec != nil {
				return rec, nil
			}
		}
	}

	rec, err := c.paymentRepo.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get payment by request id: %w", err))
	}
	return rec, nil
}

func (c *PaymentClientImpl) remember(ctx context.Context, rec *domain.PaymentRecord) {
	data, err := json.Marshal(cachedPayment{PaymentID: rec.PaymentID, RequestHash: rec.RequestHash})
	if err != nil {
		return
	}
	key := domain.BuildPaymentCacheKey(rec.RequestID)
	if err := c.cache.Set(ctx, key, data, paymentCacheTTL); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("failed to cache payment in redis")
	}
}

func (c *PaymentClientImpl) duplicate(rec *domain.PaymentRecord, hash string) (*domain.PaymentResult, error) {
	if rec.RequestHash != hash {
		return nil, apperror.ErrIdempotencyMismatch()
	}
	return &domain.PaymentResult{Record: c.reveal(rec), Duplicate: true}, nil
}

func (c *PaymentClientImpl) newRecord(req domain.PaymentRequest, hash string, route domain.PaymentRoute) (*domain.PaymentRecord, error) {
	debtorEnc, err := c.encSvc.Encrypt(req.Debtor.AccountID)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(fmt.Errorf("encrypt debtor account: %w", err))
	}
	creditorEnc, err := c.encSvc.Encrypt(req.Creditor.AccountID)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(fmt.Errorf("encrypt creditor account: %w", err))
	}

	now := c.now()
	return &domain.PaymentRecord{
		PaymentID:             uuid.New(),
		RequestID:             req.RequestID,
		RequestHash:           hash,
		EndToEndID:            req.EndToEndID,
		MessageID:             uuid.NewString(),
		DebtorParticipantID:   req.Debtor.ParticipantID,
		DebtorAccountID:       req.Debtor.AccountID,
		DebtorAccountEnc:      debtorEnc,
		CreditorParticipantID: req.Creditor.ParticipantID,
		CreditorAccountID:     req.Creditor.AccountID,
		CreditorAccountEnc:    creditorEnc,
		Amount:                req.Amount,
		Currency:              req.Currency,
		Reference:             req.Reference,
		Route:                 route,
		Status:                domain.PaymentStatusPending,
		CreatedAt:             now,
		UpdatedAt:             now,
	}, nil
}

// holdFor returns the funds hold for payments debiting one of our wallets.
func (c *PaymentClientImpl) holdFor(req domain.PaymentRequest, paymentID uuid.UUID) (*domain.Posting, error) {
	if c.routing.SuspenseWalletID == uuid.Nil || req.Debtor.ParticipantID != c.routing.SelfParticipantID {
		return nil, nil
	}
	walletID, err := uuid.Parse(req.Debtor.AccountID)
	if err != nil {
		return nil, apperror.Validation("debtor account_id must be a wallet id")
	}
	return &domain.Posting{
		IdempotencyKey: domain.PaymentHoldKey(paymentID),
		Kind:           domain.EntryKindPaymentHold,
		DebitWalletID:  walletID,
		CreditWalletID: c.routing.SuspenseWalletID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Reference:      req.Reference,
	}, nil
}

func (c *PaymentClientImpl) submit(ctx context.Context, target domain.RouteTarget, req domain.PaymentRequest, rec *domain.PaymentRecord, debtorName, creditorName string) (*domain.SubmissionOutcome, error) {
	if target.Route == domain.PaymentRouteSimulated {
		c.log.Debug().Str("payment_id", rec.PaymentID.String()).Msg("no counterparty endpoint, settling locally")
		return &domain.SubmissionOutcome{Status: domain.PaymentStatusAccepted}, nil
	}

	return c.transport.Submit(ctx, target, domain.InitiationMessage{
		MessageID:    rec.MessageID,
		EndToEndID:   rec.EndToEndID,
		RequestID:    rec.RequestID,
		Debtor:       req.Debtor,
		DebtorName:   debtorName,
		Creditor:     req.Creditor,
		CreditorName: creditorName,
		Amount:       rec.Amount,
		Currency:     rec.Currency,
		Reference:    rec.Reference,
		CreatedAt:    rec.CreatedAt,
	})
}

// reveal fills the plaintext account ids of a stored record.
func (c *PaymentClientImpl) reveal(rec *domain.PaymentRecord) *domain.PaymentRecord {
	if rec.DebtorAccountID == "" && rec.DebtorAccountEnc != "" {
		if v, err := c.encSvc.Decrypt(rec.DebtorAccountEnc); err == nil {
			rec.DebtorAccountID = v
		} else {
			c.log.Error().Err(err).Str("payment_id", rec.PaymentID.String()).Msg("failed to decrypt debtor account")
		}
	}
	if rec.CreditorAccountID == "" && rec.CreditorAccountEnc != "" {
		if v, err := c.encSvc.Decrypt(rec.CreditorAccountEnc); err == nil {
			rec.CreditorAccountID = v
		} else {
			c.log.Error().Err(err).Str("payment_id", rec.PaymentID.String()).Msg("failed to decrypt creditor account")
		}
	}
	return rec
}

func normalizePaymentRequest(req *domain.PaymentRequest) error {
	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.RequestID == "" {
		return apperror.Validation("request_id is required")
	}
	if len(req.RequestID) > maxRequestIDLength {
		return apperror.Validation("request_id is too long")
	}
	if req.Debtor.ParticipantID == "" || req.Debtor.AccountID == "" {
		return apperror.Validation("debtor participant_id and account_id are required")
	}
	if req.Creditor.ParticipantID == "" || req.Creditor.AccountID == "" {
		return apperror.Validation("creditor participant_id and account_id are required")
	}
	if req.Amount <= 0 {
		return apperror.ErrInvalidAmount()
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(req.Currency) != 3 {
		return apperror.Validation("currency must be a 3-letter ISO 4217 code")
	}
	if req.EndToEndID == "" {
		req.EndToEndID = req.RequestID
	}
	return nil
}
