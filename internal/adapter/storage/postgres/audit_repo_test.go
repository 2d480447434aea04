package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"wallet-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAuditRepo(mock)
	entry := &domain.AuditLog{
		ID:           uuid.New(),
		ActorID:      strPtr("payer-1"),
		Action:       domain.AuditActionQRRedeem,
		ResourceType: "qr_code",
		ResourceID:   uuid.NewString(),
		Details:      `{"channel":"POS"}`,
		IPAddress:    "10.0.0.7",
		CreatedAt:    time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(entry.ID, entry.ActorID, string(entry.Action), entry.ResourceType,
			entry.ResourceID, &entry.Details, entry.IPAddress, entry.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Create(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepo_Create_EmptyDetailsStoredAsNull(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAuditRepo(mock)
	entry := &domain.AuditLog{
		ID:           uuid.New(),
		Action:       domain.AuditActionPaymentInitiate,
		ResourceType: "payment",
		CreatedAt:    time.Now().UTC(),
	}

	var nilDetails *string
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(entry.ID, entry.ActorID, string(entry.Action), entry.ResourceType,
			entry.ResourceID, nilDetails, entry.IPAddress, entry.CreatedAt).
		WillReturnError(errors.New("connection reset"))

	err = repo.Create(context.Background(), entry)
	assert.ErrorContains(t, err, "insert audit log")
	assert.NoError(t, mock.ExpectationsWereMet())
}
