package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-settlement/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// DeviceRepo implements ports.DeviceRepository.
type DeviceRepo struct {
	pool Pool
}

// NewDeviceRepo creates a new DeviceRepo.
func NewDeviceRepo(pool Pool) *DeviceRepo {
	return &DeviceRepo{pool: pool}
}

// GetByID fetches a terminal by its registered id.
func (r *DeviceRepo) GetByID(ctx context.Context, id string) (*domain.Device, error) {
	query := `SELECT id, merchant_id, channel, status, updated_at FROM devices WHERE id = $1`

	d := &domain.Device{}
	err := r.pool.QueryRow(ctx, query, id).Scan(&d.ID, &d.MerchantID, &d.Channel, &d.Status, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get device by id: %w", err)
	}
	return d, nil
}

// UpdateStatus changes a terminal's attestation state, e.g. the kill switch.
func (r *DeviceRepo) UpdateStatus(ctx context.Context, id string, status domain.DeviceStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE devices SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update device status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("device not found: %s", id)
	}
	return nil
}
