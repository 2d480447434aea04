package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionQRGenerate      AuditAction = "QR_GENERATE"
	AuditActionQRRedeem        AuditAction = "QR_REDEEM"
	AuditActionPaymentInitiate AuditAction = "PAYMENT_INITIATE"
	AuditActionPaymentStatus   AuditAction = "PAYMENT_STATUS"

	// Security events recorded by the HTTP layer.
	AuditActionCallbackRejected AuditAction = "CALLBACK_REJECTED"
	AuditActionRateLimited      AuditAction = "RATE_LIMITED"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	ActorID      *string     `json:"actor_id,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
