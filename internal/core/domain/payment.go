package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the lifecycle state of an instant payment.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusAccepted PaymentStatus = "ACCEPTED"
	PaymentStatusRejected PaymentStatus = "REJECTED"
)

// IsTerminal returns true for absorbing states.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusAccepted || s == PaymentStatusRejected
}

// ParsePaymentStatus maps status names and ISO 20022 transaction status codes
// onto a PaymentStatus. ACSP (settlement in process) is not final.
func ParsePaymentStatus(raw string) (PaymentStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "ACCEPTED", "ACSC", "ACCC":
		return PaymentStatusAccepted, true
	case "REJECTED", "RJCT":
		return PaymentStatusRejected, true
	case "PENDING", "PDNG", "ACSP", "ACTC":
		return PaymentStatusPending, true
	}
	return "", false
}

// PaymentRoute records where a payment was submitted.
type PaymentRoute string

const (
	PaymentRouteGateway     PaymentRoute = "GATEWAY"
	PaymentRouteParticipant PaymentRoute = "PARTICIPANT"
	PaymentRouteSimulated   PaymentRoute = "SIMULATED"
)

// AccountRef identifies an account held at a participant.
type AccountRef struct {
	ParticipantID string `json:"participant_id"`
	AccountID     string `json:"account_id"`
}

// PaymentRequest is a caller-submitted instant payment. RequestID is the
// idempotency key for the logical payment attempt.
type PaymentRequest struct {
	RequestID  string     `json:"request_id"`
	Debtor     AccountRef `json:"debtor"`
	Creditor   AccountRef `json:"creditor"`
	Amount     int64      `json:"amount"` // In minor units
	Currency   string     `json:"currency"`
	EndToEndID string     `json:"end_to_end_id,omitempty"`
	Reference  *string    `json:"reference,omitempty"`
}

// PaymentRecord is the durable state of a submitted payment.
type PaymentRecord struct {
	PaymentID             uuid.UUID     `json:"payment_id"`
	RequestID             string        `json:"request_id"`
	RequestHash           string        `json:"-"`
	EndToEndID            string        `json:"end_to_end_id"`
	MessageID             string        `json:"message_id"`
	DebtorParticipantID   string        `json:"debtor_participant_id"`
	DebtorAccountID       string        `json:"debtor_account_id,omitempty"`
	DebtorAccountEnc      string        `json:"-"`
	CreditorParticipantID string        `json:"creditor_participant_id"`
	CreditorAccountID     string        `json:"creditor_account_id,omitempty"`
	CreditorAccountEnc    string        `json:"-"`
	Amount                int64         `json:"amount"`
	Currency              string        `json:"currency"`
	Reference             *string       `json:"reference,omitempty"`
	Route                 PaymentRoute  `json:"route"`
	Status                PaymentStatus `json:"status"`
	StatusReason          *string       `json:"status_reason,omitempty"`
	StatusReasonCode      *string       `json:"status_reason_code,omitempty"`
	HoldEntryID           *uuid.UUID    `json:"hold_entry_id,omitempty"`
	CreatedAt             time.Time     `json:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at"`
	CompletedAt           *time.Time    `json:"completed_at,omitempty"`
}

// IsTerminal returns true if the record can no longer change.
func (p *PaymentRecord) IsTerminal() bool {
	return p.Status.IsTerminal()
}

// PaymentResult is returned by payment initiation.
type PaymentResult struct {
	Record *PaymentRecord `json:"record"`
	// Duplicate is true when the request id had already been seen and the
	// existing record was returned.
	Duplicate bool `json:"duplicate"`
}

// StatusUpdate is a status transition requested for a payment record.
type StatusUpdate struct {
	Status     PaymentStatus
	Reason     *string
	ReasonCode *string
	At         time.Time
}

// StatusMessage is an inbound asynchronous payment status notification.
type StatusMessage struct {
	MessageID         string  `json:"message_id"`
	OriginalMessageID string  `json:"original_message_id,omitempty"`
	PaymentID         string  `json:"payment_id,omitempty"`
	EndToEndID        string  `json:"end_to_end_id,omitempty"`
	Status            string  `json:"status"`
	Reason            *string `json:"reason,omitempty"`
	ReasonCode        *string `json:"reason_code,omitempty"`
	// SenderID is the authenticated participant that delivered the message.
	SenderID          string  `json:"-"`
}

// StatusAck acknowledges an inbound status message.
type StatusAck struct {
	Acknowledged      bool          `json:"acknowledged"`
	OriginalMessageID string        `json:"original_message_id,omitempty"`
	PaymentID         uuid.UUID     `json:"payment_id"`
	Status            PaymentStatus `json:"status"`
	// Applied is false for duplicate or out-of-order messages on a terminal record.
	Applied bool `json:"applied"`
}

// InitiationMessage is the payment-initiation message sent to a gateway or
// creditor participant.
type InitiationMessage struct {
	MessageID    string
	EndToEndID   string
	RequestID    string
	Debtor       AccountRef
	DebtorName   string
	Creditor     AccountRef
	CreditorName string
	Amount       int64
	Currency     string
	Reference    *string
	CreatedAt    time.Time
}

// RouteTarget is the resolved destination of an outbound payment.
type RouteTarget struct {
	Route         PaymentRoute
	ParticipantID string
	Endpoint      string
	Secret        string
}

// SubmissionOutcome is the counterparty's synchronous answer to a submission.
// A PENDING outcome means the message was accepted for asynchronous processing.
type SubmissionOutcome struct {
	Status     PaymentStatus
	Reason     *string
	ReasonCode *string
}
