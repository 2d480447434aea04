package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const merchantColumnList = `id, merchant_name, settlement_wallet_id, status, created_at, updated_at`

// MerchantRepo implements ports.MerchantRepository.
type MerchantRepo struct {
	pool Pool
}

func NewMerchantRepo(pool Pool) *MerchantRepo {
	return &MerchantRepo{pool: pool}
}

// Create registers a merchant against its settlement wallet.
func (r *MerchantRepo) Create(ctx context.Context, m *domain.Merchant) error {
	query := `INSERT INTO merchants (` + merchantColumnList + `) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		m.ID, m.MerchantName, m.SettlementWalletID, m.Status, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("merchant %s already registered: %w", m.ID, err)
		}
		return fmt.Errorf("insert merchant: %w", err)
	}
	return nil
}

// GetByID returns nil, nil when the merchant is unknown so QR generation can
// report it as a domain error rather than a storage failure.
func (r *MerchantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error) {
	query := `SELECT ` + merchantColumnList + ` FROM merchants WHERE id = $1`

	var m domain.Merchant
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.MerchantName, &m.SettlementWalletID, &m.Status, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get merchant %s: %w", id, err)
	}
	return &m, nil
}
