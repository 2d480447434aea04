package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"wallet-settlement/internal/core/domain"
	"wallet-settlement/internal/core/ports"
	"wallet-settlement/internal/metrics"
	"wallet-settlement/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// amountExponent is the minor-unit exponent of every supported currency.
const amountExponent = -2

const maxResponseBody = 1 << 20

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// TransportConfig bounds outbound calls.
type TransportConfig struct {
	SelfParticipantID string
	Timeout           time.Duration // per attempt
	MaxAttempts       int
	Backoff           time.Duration // doubled after every failed attempt
}

// wireParty is a debtor or creditor on the wire.
type wireParty struct {
	ParticipantID string `json:"participant_id"`
	AccountID     string `json:"account_id"`
	Name          string `json:"name,omitempty"`
}

// initiationWire is the JSON body of POST {endpoint}/payments.
type initiationWire struct {
	MessageID        string    `json:"message_id"`
	CreationDateTime string    `json:"creation_date_time"`
	EndToEndID       string    `json:"end_to_end_id"`
	RequestID        string    `json:"request_id"`
	Debtor           wireParty `json:"debtor"`
	Creditor         wireParty `json:"creditor"`
	Amount           string    `json:"amount"`
	Currency         string    `json:"currency"`
	Remittance       *string   `json:"remittance_information,omitempty"`
}

// HTTPPaymentTransport implements ports.PaymentTransport over signed JSON HTTP.
type HTTPPaymentTransport struct {
	client HTTPClient
	sigSvc ports.SignatureService
	cfg    TransportConfig
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	log    zerolog.Logger
}

// NewHTTPPaymentTransport creates a new HTTPPaymentTransport.
func NewHTTPPaymentTransport(client HTTPClient, sigSvc ports.SignatureService, cfg TransportConfig, log zerolog.Logger) *HTTPPaymentTransport {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &HTTPPaymentTransport{
		client: client,
		sigSvc: sigSvc,
		cfg:    cfg,
		now:    time.Now,
		sleep:  sleepContext,
		log:    log,
	}
}

// FormatAmount renders minor units as a decimal string, e.g. 12345 -> "123.45".
func FormatAmount(minor int64) string {
	return decimal.New(minor, amountExponent).StringFixed(-amountExponent)
}

// ParseAmount converts a decimal string back to minor units.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parsing amount: %w", err)
	}
	minor := d.Shift(-amountExponent)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("amount %s has more than %d decimals", s, -amountExponent)
	}
	return minor.IntPart(), nil
}

// Submit posts the initiation message. Network errors, 5xx, 408 and 429 are
// retried with backoff; any other 4xx is a terminal rejection carrying the
// counterparty's reason. An error means the outcome is unknown.
func (t *HTTPPaymentTransport) Submit(ctx context.Context, target domain.RouteTarget, msg domain.InitiationMessage) (*domain.SubmissionOutcome, error) {
	body, err := json.Marshal(initiationWire{
		MessageID:        msg.MessageID,
		CreationDateTime: msg.CreatedAt.UTC().Format(time.RFC3339),
		EndToEndID:       msg.EndToEndID,
		RequestID:        msg.RequestID,
		Debtor:           wireParty{ParticipantID: msg.Debtor.ParticipantID, AccountID: msg.Debtor.AccountID, Name: msg.DebtorName},
		Creditor:         wireParty{ParticipantID: msg.Creditor.ParticipantID, AccountID: msg.Creditor.AccountID, Name: msg.CreditorName},
		Amount:           FormatAmount(msg.Amount),
		Currency:         msg.Currency,
		Remittance:       msg.Reference,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal initiation message: %w", err)
	}

	const path = "/payments"
	var lastErr error
	for attempt := 1; attempt <= t.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := t.sleep(ctx, t.cfg.Backoff<<(attempt-2)); err != nil {
				return nil, apperror.ErrUpstreamUnavailable(err)
			}
		}

		status, respBody, err := t.do(ctx, target, http.MethodPost, path, body)
		if err != nil {
			lastErr = err
			metrics.TransportAttemptsTotal.WithLabelValues(string(target.Route), "network_error").Inc()
			t.log.Warn().Err(err).Str("end_to_end_id", msg.EndToEndID).Int("attempt", attempt).Msg("payment submission failed")
			continue
		}

		switch {
		case status >= 200 && status < 300:
			metrics.TransportAttemptsTotal.WithLabelValues(string(target.Route), "accepted").Inc()
			return decodeSubmissionAnswer(respBody), nil
		case retryableStatus(status):
			lastErr = fmt.Errorf("counterparty returned %d", status)
			metrics.TransportAttemptsTotal.WithLabelValues(string(target.Route), "retryable").Inc()
			t.log.Warn().Str("end_to_end_id", msg.EndToEndID).Int("attempt", attempt).Int("status", status).Msg("payment submission not accepted, retrying")
		default:
			metrics.TransportAttemptsTotal.WithLabelValues(string(target.Route), "rejected").Inc()
			outcome := decodeSubmissionAnswer(respBody)
			outcome.Status = domain.PaymentStatusRejected
			return outcome, nil
		}
	}

	t.log.Error().Err(lastErr).Str("end_to_end_id", msg.EndToEndID).Str("route", string(target.Route)).Msg("payment submission attempts exhausted")
	return nil, apperror.ErrUpstreamUnavailable(lastErr)
}

// QueryStatus asks the counterparty for the current status of a payment.
func (t *HTTPPaymentTransport) QueryStatus(ctx context.Context, target domain.RouteTarget, endToEndID string) (*domain.StatusMessage, error) {
	path := "/payments/" + url.PathEscape(endToEndID) + "/status"

	status, respBody, err := t.do(ctx, target, http.MethodGet, path, nil)
	if err != nil {
		return nil, apperror.ErrUpstreamUnavailable(err)
	}
	if status == http.StatusNotFound {
		return nil, apperror.ErrNotFound("payment at counterparty")
	}
	if status < 200 || status >= 300 {
		return nil, apperror.ErrUpstreamUnavailable(fmt.Errorf("status query returned %d", status))
	}

	var msg domain.StatusMessage
	if err := json.Unmarshal(respBody, &msg); err != nil {
		return nil, apperror.ErrUpstreamUnavailable(fmt.Errorf("decoding status answer: %w", err))
	}
	if msg.EndToEndID == "" {
		msg.EndToEndID = endToEndID
	}
	return &msg, nil
}

func (t *HTTPPaymentTransport) do(ctx context.Context, target domain.RouteTarget, method, path string, body []byte) (int, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, method, target.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range t.sigSvc.SignedHeaders(target.Secret, t.cfg.SelfParticipantID, method, path, body, t.now()) {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// decodeSubmissionAnswer reads a synchronous answer. An empty or unrecognised
// status means the message was taken for asynchronous processing.
func decodeSubmissionAnswer(body []byte) *domain.SubmissionOutcome {
	outcome := &domain.SubmissionOutcome{Status: domain.PaymentStatusPending}
	if len(bytes.TrimSpace(body)) == 0 {
		return outcome
	}
	var msg domain.StatusMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return outcome
	}
	if st, ok := domain.ParsePaymentStatus(msg.Status); ok {
		outcome.Status = st
	}
	outcome.Reason = msg.Reason
	outcome.ReasonCode = msg.ReasonCode
	return outcome
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
