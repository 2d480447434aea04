package dto

// GenerateQRRequest is the request body for merchant QR generation.
type GenerateQRRequest struct {
	MerchantID    string  `json:"merchant_id" binding:"required,uuid"`
	Amount        int64   `json:"amount" binding:"required,gt=0"`
	Currency      string  `json:"currency" binding:"required,currency"`
	Reference     *string `json:"reference,omitempty" binding:"omitempty,max=140"`
	ExpiryMinutes *int    `json:"expiry_minutes,omitempty" binding:"omitempty,gt=0"`
	Offline       bool    `json:"offline"`
}

// QRResponse is the response body for an issued QR code.
type QRResponse struct {
	QRID       string  `json:"qr_id"`
	MerchantID string  `json:"merchant_id"`
	Amount     int64   `json:"amount"`
	Currency   string  `json:"currency"`
	Reference  *string `json:"reference,omitempty"`
	Payload    string  `json:"payload"`
	Offline    bool    `json:"offline"`
	IssuedAt   string  `json:"issued_at"`
	ExpiresAt  string  `json:"expires_at"`
}

// ValidateQRRequest is the request body for validating a scanned payload.
type ValidateQRRequest struct {
	Payload string `json:"payload" binding:"required,max=4096"`
}

// RedeemQRRequest is the request body for redeeming a QR code from a channel.
// An omitted channel is treated as APP.
type RedeemQRRequest struct {
	PayerID       string  `json:"payer_id" binding:"required,uuid"`
	PayerWalletID string  `json:"payer_wallet_id" binding:"required,uuid"`
	PIN           *string `json:"pin,omitempty" binding:"omitempty,numeric,min=4,max=12"`
	DeviceID      *string `json:"device_id,omitempty" binding:"omitempty,max=64,safe_id"`
	Channel       string  `json:"channel,omitempty" binding:"omitempty,channel"`
}

// ChannelPolicyResponse reports whether a channel may redeem codes.
type ChannelPolicyResponse struct {
	Channel    string `json:"channel"`
	Redeemable bool   `json:"redeemable"`
}

// PartyRequest identifies one side of an instant payment.
type PartyRequest struct {
	ParticipantID string `json:"participant_id" binding:"required,max=35,safe_id"`
	AccountID     string `json:"account_id" binding:"required,max=64,safe_id"`
	Name          string `json:"name,omitempty" binding:"omitempty,max=140"`
}

// PaymentRequest is the request body for initiating an instant payment.
type PaymentRequest struct {
	RequestID  string       `json:"request_id" binding:"required,max=64,safe_id"`
	Debtor     PartyRequest `json:"debtor" binding:"required"`
	Creditor   PartyRequest `json:"creditor" binding:"required"`
	Amount     int64        `json:"amount" binding:"required,gt=0"`
	Currency   string       `json:"currency" binding:"required,currency"`
	EndToEndID string       `json:"end_to_end_id,omitempty" binding:"omitempty,max=35,safe_id"`
	Reference  *string      `json:"reference,omitempty" binding:"omitempty,max=140" sanitize:"trim"`
}

// StatusCallbackRequest is an asynchronous status message from the gateway
// or a participant.
type StatusCallbackRequest struct {
	MessageID         string  `json:"message_id" binding:"required,max=64"`
	OriginalMessageID string  `json:"original_message_id,omitempty" binding:"omitempty,max=64"`
	PaymentID         string  `json:"payment_id,omitempty" binding:"omitempty,uuid"`
	EndToEndID        string  `json:"end_to_end_id,omitempty" binding:"omitempty,max=35"`
	Status            string  `json:"status" binding:"required,max=16"`
	Reason            *string `json:"reason,omitempty" binding:"omitempty,max=256" sanitize:"trim"`
	ReasonCode        *string `json:"reason_code,omitempty" binding:"omitempty,max=8"`
}

// PaymentResponse is the response body for payment initiation and status.
type PaymentResponse struct {
	PaymentID             string  `json:"payment_id"`
	RequestID             string  `json:"request_id"`
	EndToEndID            string  `json:"end_to_end_id"`
	MessageID             string  `json:"message_id"`
	DebtorParticipantID   string  `json:"debtor_participant_id"`
	DebtorAccountID       string  `json:"debtor_account_id,omitempty"`
	CreditorParticipantID string  `json:"creditor_participant_id"`
	CreditorAccountID     string  `json:"creditor_account_id,omitempty"`
	Amount                int64   `json:"amount"`
	Currency              string  `json:"currency"`
	Reference             *string `json:"reference,omitempty"`
	Route                 string  `json:"route"`
	Status                string  `json:"status"`
	StatusReason          *string `json:"status_reason,omitempty"`
	StatusReasonCode      *string `json:"status_reason_code,omitempty"`
	Duplicate             bool    `json:"duplicate,omitempty"`
	CreatedAt             string  `json:"created_at"`
	CompletedAt           *string `json:"completed_at,omitempty"`
}

// ParticipantResponse is one entry of the participant directory.
type ParticipantResponse struct {
	ParticipantID string   `json:"participant_id"`
	Name          string   `json:"name"`
	Capabilities  []string `json:"capabilities"`
}
