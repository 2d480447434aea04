package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeviceStatus is the attestation state of a POS or ATM terminal.
type DeviceStatus string

const (
	DeviceStatusActive    DeviceStatus = "ACTIVE"
	DeviceStatusSuspended DeviceStatus = "SUSPENDED"
	DeviceStatusKilled    DeviceStatus = "KILLED"
)

// Device is a registered terminal.
type Device struct {
	ID         string       `json:"id"`
	MerchantID *uuid.UUID   `json:"merchant_id,omitempty"`
	Channel    Channel      `json:"channel"`
	Status     DeviceStatus `json:"status"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// IsTrusted returns true if the device may complete redemptions.
func (d *Device) IsTrusted() bool {
	return d.Status == DeviceStatusActive
}
