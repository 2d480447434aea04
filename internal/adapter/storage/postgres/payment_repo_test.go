package postgres

import (
	"context"
	"testing"
	"time"

	"wallet-settlement/internal/core/domain"
	"wallet-settlement/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPayment() *domain.PaymentRecord {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.PaymentRecord{
		PaymentID:             uuid.New(),
		RequestID:             "req-" + uuid.NewString()[:8],
		RequestHash:           "9f86d081884c7d659a2feaa0c55ad015",
		EndToEndID:            "e2e-1",
		MessageID:             uuid.NewString(),
		DebtorParticipantID:   "WALLETCO",
		DebtorAccountEnc:      "enc-debtor",
		CreditorParticipantID: "BANKB",
		CreditorAccountEnc:    "enc-creditor",
		Amount:                50000,
		Currency:              "KES",
		Route:                 domain.PaymentRouteGateway,
		Status:                domain.PaymentStatusPending,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

func paymentColumns() []string {
	return []string{
		"payment_id", "request_id", "request_hash", "end_to_end_id", "message_id",
		"debtor_participant_id", "debtor_account_enc", "creditor_participant_id", "creditor_account_enc",
		"amount", "currency", "reference", "route", "status", "status_reason", "status_reason_code",
		"hold_entry_id", "created_at", "updated_at", "completed_at",
	}
}

func paymentRows(ps ...*domain.PaymentRecord) *pgxmock.Rows {
	rows := pgxmock.NewRows(paymentColumns())
	for _, p := range ps {
		rows.AddRow(
			p.PaymentID, p.RequestID, p.RequestHash, p.EndToEndID, p.MessageID,
			p.DebtorParticipantID, p.DebtorAccountEnc, p.CreditorParticipantID, p.CreditorAccountEnc,
			p.Amount, p.Currency, p.Reference, string(p.Route), string(p.Status), p.StatusReason, p.StatusReasonCode,
			p.HoldEntryID, p.CreatedAt, p.UpdatedAt, p.CompletedAt,
		)
	}
	return rows
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPaymentRepo_Insert(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"new request id", 1, true},
		{"request id already stored", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			repo := NewPaymentRepo(mock)
			p := newTestPayment()

			mock.ExpectBegin()
			mock.ExpectExec(`INSERT INTO payments .+ ON CONFLICT \(request_id\) DO NOTHING`).
				WithArgs(anyArgs(20)...).
				WillReturnResult(pgxmock.NewResult("INSERT", tt.affected))

			tx, err := mock.Begin(context.Background())
			require.NoError(t, err)

			ok, err := repo.Insert(context.Background(), tx, p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPaymentRepo_Insert_EndToEndIDTaken(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO payments").
		WithArgs(anyArgs(20)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "payments_end_to_end_id_key"})

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	ok, err := repo.Insert(context.Background(), tx, newTestPayment())
	assert.False(t, ok)
	assert.True(t, apperror.HasCode(err, "PAY_003"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_Lookups(t *testing.T) {
	p := newTestPayment()
	p.Reference = strPtr("rent")

	tests := []struct {
		name  string
		query string
		arg   any
		call  func(r *PaymentRepo) (*domain.PaymentRecord, error)
	}{
		{"by id", "WHERE payment_id", p.PaymentID, func(r *PaymentRepo) (*domain.PaymentRecord, error) {
			return r.GetByID(context.Background(), p.PaymentID)
		}},
		{"by request id", "WHERE request_id", p.RequestID, func(r *PaymentRepo) (*domain.PaymentRecord, error) {
			return r.GetByRequestID(context.Background(), p.RequestID)
		}},
		{"by end to end id", "WHERE end_to_end_id", p.EndToEndID, func(r *PaymentRepo) (*domain.PaymentRecord, error) {
			return r.GetByEndToEndID(context.Background(), p.EndToEndID)
		}},
		{"by message id", "WHERE message_id", p.MessageID, func(r *PaymentRepo) (*domain.PaymentRecord, error) {
			return r.GetByMessageID(context.Background(), p.MessageID)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectQuery("SELECT .+ FROM payments " + tt.query).
				WithArgs(tt.arg).
				WillReturnRows(paymentRows(p))

			got, err := tt.call(NewPaymentRepo(mock))
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, p.PaymentID, got.PaymentID)
			assert.Equal(t, domain.PaymentRouteGateway, got.Route)
			assert.Equal(t, domain.PaymentStatusPending, got.Status)
			assert.Equal(t, "rent", *got.Reference)
			assert.Empty(t, got.DebtorAccountID)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPaymentRepo_GetByRequestID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM payments WHERE request_id").
		WithArgs("missing").
		WillReturnRows(paymentRows())

	got, err := NewPaymentRepo(mock).GetByRequestID(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_GetByIDForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	p := newTestPayment()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM payments WHERE payment_id = \\$1 FOR UPDATE").
		WithArgs(p.PaymentID).
		WillReturnRows(paymentRows(p))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	got, err := NewPaymentRepo(mock).GetByIDForUpdate(context.Background(), tx, p.PaymentID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.RequestHash, got.RequestHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_UpdateStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	id := uuid.New()
	update := domain.StatusUpdate{
		Status:     domain.PaymentStatusRejected,
		Reason:     strPtr("account closed"),
		ReasonCode: strPtr("AC04"),
		At:         time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE payments .+ WHERE payment_id = \\$1 AND status = 'PENDING'").
		WithArgs(id, "REJECTED", update.Reason, update.ReasonCode, update.At).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE payments .+ status = 'PENDING'").
		WithArgs(id, "REJECTED", update.Reason, update.ReasonCode, update.At).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	applied, err := repo.UpdateStatus(context.Background(), tx, id, update)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.UpdateStatus(context.Background(), tx, id, update)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_SetHoldEntry(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	id, entryID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE payments SET hold_entry_id").
		WithArgs(id, entryID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.SetHoldEntry(context.Background(), tx, id, entryID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_ListPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	before := time.Now().UTC()
	a, b := newTestPayment(), newTestPayment()

	mock.ExpectQuery("SELECT .+ FROM payments\\s+WHERE status = 'PENDING' AND created_at < \\$1\\s+ORDER BY created_at ASC LIMIT \\$2").
		WithArgs(before, 50).
		WillReturnRows(paymentRows(a, b))

	got, err := repo.ListPending(context.Background(), before, 50)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a.PaymentID, got[0].PaymentID)
	assert.Equal(t, b.PaymentID, got[1].PaymentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
