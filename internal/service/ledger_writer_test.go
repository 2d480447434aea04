package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wallet-settlement/internal/core/domain"
	"wallet-settlement/internal/core/ports/mocks"
	"wallet-settlement/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type ledgerFixture struct {
	store  *memStore
	writer *LedgerWriterImpl
}

func newLedgerFixture() *ledgerFixture {
	store := newMemStore()
	return &ledgerFixture{
		store:  store,
		writer: NewLedgerWriter(memWalletRepo{store}, memLedgerRepo{store}, memPaymentRepo{store}, &lockingTransactor{}, newTestLogger()),
	}
}

func (f *ledgerFixture) wallet(t *testing.T, currency string, balance int64) uuid.UUID {
	t.Helper()
	w := domain.Wallet{ID: uuid.New(), Currency: currency, Balance: balance, Status: domain.WalletStatusActive}
	require.NoError(t, memWalletRepo{f.store}.Create(context.Background(), &w))
	return w.ID
}

func TestLedgerWriter_PostTransfer(t *testing.T) {
	f := newLedgerFixture()
	from := f.wallet(t, "KES", 10000)
	to := f.wallet(t, "KES", 0)

	p := domain.Posting{
		IdempotencyKey: "qr:" + uuid.NewString(),
		Kind:           domain.EntryKindQRRedemption,
		DebitWalletID:  from,
		CreditWalletID: to,
		Amount:         3000,
		Currency:       "KES",
	}

	entry, err := f.writer.PostTransfer(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, p.IdempotencyKey, entry.IdempotencyKey)
	assert.Equal(t, int64(7000), f.store.balance(from))
	assert.Equal(t, int64(3000), f.store.balance(to))

	replay, err := f.writer.PostTransfer(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, replay.ID)
	assert.Equal(t, int64(7000), f.store.balance(from))
	assert.Equal(t, 1, f.store.entryCount())
}

func TestLedgerWriter_PostTransfer_Errors(t *testing.T) {
	f := newLedgerFixture()
	kes := f.wallet(t, "KES", 100)
	kes2 := f.wallet(t, "KES", 0)
	ugx := f.wallet(t, "UGX", 100)
	frozen := domain.Wallet{ID: uuid.New(), Currency: "KES", Balance: 1000, Status: domain.WalletStatusFrozen}
	require.NoError(t, memWalletRepo{f.store}.Create(context.Background(), &frozen))

	tests := []struct {
		name   string
		debit  uuid.UUID
		credit uuid.UUID
		amount int64
		key    string
		code   string
	}{
		{"insufficient funds", kes, kes2, 101, "k1", "PAY_001"},
		{"missing wallet", uuid.New(), kes2, 10, "k2", "PAY_004"},
		{"currency mismatch", kes, ugx, 10, "k3", "PAY_007"},
		{"frozen wallet", frozen.ID, kes2, 10, "k4", "PAY_008"},
		{"zero amount", kes, kes2, 0, "k5", "PAY_002"},
		{"same wallet", kes, kes, 10, "k6", "PAY_002"},
		{"no key", kes, kes2, 10, "", "PAY_002"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.writer.PostTransfer(context.Background(), domain.Posting{
				IdempotencyKey: tt.key,
				Kind:           domain.EntryKindQRRedemption,
				DebitWalletID:  tt.debit,
				CreditWalletID: tt.credit,
				Amount:         tt.amount,
				Currency:       "KES",
			})
			assert.True(t, apperror.HasCode(err, tt.code), "got %v", err)
		})
	}

	assert.Equal(t, int64(100), f.store.balance(kes))
	assert.Equal(t, 0, f.store.entryCount())
}

func TestLedgerWriter_PostTransfer_ConcurrentSameKey(t *testing.T) {
	f := newLedgerFixture()
	from := f.wallet(t, "KES", 10000)
	to := f.wallet(t, "KES", 0)

	p := domain.Posting{IdempotencyKey: "qr:same", Kind: domain.EntryKindQRRedemption, DebitWalletID: from, CreditWalletID: to, Amount: 500, Currency: "KES"}

	var wg sync.WaitGroup
	ids := make(chan uuid.UUID, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := f.writer.PostTransfer(context.Background(), p)
			if assert.NoError(t, err) {
				ids <- e.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[uuid.UUID]bool{}
	for id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, 1)
	assert.Equal(t, int64(9500), f.store.balance(from))
	assert.Equal(t, 1, f.store.entryCount())
}

func TestLedgerWriter_PostTransfer_ConcurrentDrainNeverOverdraws(t *testing.T) {
	f := newLedgerFixture()
	from := f.wallet(t, "KES", 5000)
	to := f.wallet(t, "KES", 0)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		refused   atomic.Int32
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.writer.PostTransfer(context.Background(), domain.Posting{
				IdempotencyKey: uuid.NewString(),
				Kind:           domain.EntryKindQRRedemption,
				DebitWalletID:  from,
				CreditWalletID: to,
				Amount:         100,
				Currency:       "KES",
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case apperror.HasCode(err, "PAY_001"):
				refused.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(50), succeeded.Load())
	assert.Equal(t, int32(50), refused.Load())
	assert.Equal(t, int64(0), f.store.balance(from))
	assert.Equal(t, int64(5000), f.store.balance(to))
}

func TestLedgerWriter_PostTransfer_LostInsertRace(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWalletRepo := mocks.NewMockWalletRepository(ctrl)
	mockLedgerRepo := mocks.NewMockLedgerRepository(ctrl)
	mockTransactor := mocks.NewMockDBTransactor(ctrl)

	writer := NewLedgerWriter(mockWalletRepo, mockLedgerRepo, nil, mockTransactor, newTestLogger())

	from := &domain.Wallet{ID: uuid.New(), Currency: "KES", Balance: 1000, Status: domain.WalletStatusActive}
	to := &domain.Wallet{ID: uuid.New(), Currency: "KES", Status: domain.WalletStatusActive}
	winner := &domain.LedgerEntry{ID: uuid.New(), IdempotencyKey: "qr:raced"}

	mockTransactor.EXPECT().Begin(gomock.Any()).DoAndReturn(func(ctx context.Context) (pgx.Tx, error) {
		return &memTx{release: func() {}}, nil
	}).Times(2)
	mockWalletRepo.EXPECT().GetByIDForUpdate(gomock.Any(), gomock.Any(), from.ID).Return(from, nil)
	mockWalletRepo.EXPECT().GetByIDForUpdate(gomock.Any(), gomock.Any(), to.ID).Return(to, nil)
	gomock.InOrder(
		mockLedgerRepo.EXPECT().GetByIdempotencyKey(gomock.Any(), gomock.Any(), "qr:raced").Return(nil, nil),
		mockLedgerRepo.EXPECT().GetByIdempotencyKey(gomock.Any(), gomock.Any(), "qr:raced").Return(winner, nil),
	)
	mockWalletRepo.EXPECT().UpdateBalance(gomock.Any(), gomock.Any(), from.ID, int64(900)).Return(nil)
	mockWalletRepo.EXPECT().UpdateBalance(gomock.Any(), gomock.Any(), to.ID, int64(100)).Return(nil)
	mockLedgerRepo.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Return(apperror.ErrDuplicateTransaction())

	entry, err := writer.PostTransfer(context.Background(), domain.Posting{
		IdempotencyKey: "qr:raced",
		Kind:           domain.EntryKindQRRedemption,
		DebitWalletID:  from.ID,
		CreditWalletID: to.ID,
		Amount:         100,
		Currency:       "KES",
	})
	require.NoError(t, err)
	assert.Equal(t, winner.ID, entry.ID)
}

func newPendingRecord(requestID string) *domain.PaymentRecord {
	now := time.Now().UTC()
	return &domain.PaymentRecord{
		PaymentID:             uuid.New(),
		RequestID:             requestID,
		RequestHash:           "hash-" + requestID,
		EndToEndID:            requestID,
		MessageID:             uuid.NewString(),
		DebtorParticipantID:   "WALLETCO",
		CreditorParticipantID: "BANKB",
		Amount:                2000,
		Currency:              "KES",
		Route:                 domain.PaymentRouteGateway,
		Status:                domain.PaymentStatusPending,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

func TestLedgerWriter_OpenPayment_WithHold(t *testing.T) {
	f := newLedgerFixture()
	debtor := f.wallet(t, "KES", 5000)
	suspense := f.wallet(t, "KES", 0)

	rec := newPendingRecord("req-hold")
	hold := &domain.Posting{
		IdempotencyKey: domain.PaymentHoldKey(rec.PaymentID),
		Kind:           domain.EntryKindPaymentHold,
		DebitWalletID:  debtor,
		CreditWalletID: suspense,
		Amount:         rec.Amount,
		Currency:       "KES",
	}

	opened, inserted, err := f.writer.OpenPayment(context.Background(), rec, hold)
	require.NoError(t, err)
	assert.True(t, inserted)
	require.NotNil(t, opened.HoldEntryID)
	assert.Equal(t, int64(3000), f.store.balance(debtor))
	assert.Equal(t, int64(2000), f.store.balance(suspense))

	dup := newPendingRecord("req-hold")
	existing, inserted, err := f.writer.OpenPayment(context.Background(), dup, nil)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, rec.PaymentID, existing.PaymentID)
	assert.Equal(t, int64(3000), f.store.balance(debtor))
}

func TestLedgerWriter_OpenPayment_HoldFailureLeavesNoRecord(t *testing.T) {
	f := newLedgerFixture()
	debtor := f.wallet(t, "KES", 100)
	suspense := f.wallet(t, "KES", 0)

	rec := newPendingRecord("req-broke")
	_, _, err := f.writer.OpenPayment(context.Background(), rec, &domain.Posting{
		IdempotencyKey: domain.PaymentHoldKey(rec.PaymentID),
		Kind:           domain.EntryKindPaymentHold,
		DebitWalletID:  debtor,
		CreditWalletID: suspense,
		Amount:         rec.Amount,
		Currency:       "KES",
	})
	assert.True(t, apperror.HasCode(err, "PAY_001"))

	stored, err := memPaymentRepo{f.store}.GetByRequestID(context.Background(), "req-broke")
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.Equal(t, int64(100), f.store.balance(debtor))
}

func TestLedgerWriter_ApplyPaymentStatus_RejectReleasesHold(t *testing.T) {
	f := newLedgerFixture()
	debtor := f.wallet(t, "KES", 5000)
	suspense := f.wallet(t, "KES", 0)
	ctx := context.Background()

	rec := newPendingRecord("req-reject")
	_, _, err := f.writer.OpenPayment(ctx, rec, &domain.Posting{
		IdempotencyKey: domain.PaymentHoldKey(rec.PaymentID),
		Kind:           domain.EntryKindPaymentHold,
		DebitWalletID:  debtor,
		CreditWalletID: suspense,
		Amount:         rec.Amount,
		Currency:       "KES",
	})
	require.NoError(t, err)

	at := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	updated, applied, err := f.writer.ApplyPaymentStatus(ctx, rec.PaymentID, domain.StatusUpdate{
		Status:     domain.PaymentStatusRejected,
		ReasonCode: strPtr("AC04"),
		At:         at,
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, domain.PaymentStatusRejected, updated.Status)
	assert.Equal(t, at, *updated.CompletedAt)
	assert.Equal(t, int64(5000), f.store.balance(debtor))
	assert.Equal(t, int64(0), f.store.balance(suspense))
	assert.Equal(t, 2, f.store.entryCount())

	again, applied, err := f.writer.ApplyPaymentStatus(ctx, rec.PaymentID, domain.StatusUpdate{
		Status: domain.PaymentStatusAccepted,
		At:     at.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, domain.PaymentStatusRejected, again.Status)
	assert.Equal(t, at, *again.CompletedAt)
	assert.Equal(t, int64(5000), f.store.balance(debtor))
}

func TestLedgerWriter_ApplyPaymentStatus_AcceptKeepsHold(t *testing.T) {
	f := newLedgerFixture()
	debtor := f.wallet(t, "KES", 5000)
	suspense := f.wallet(t, "KES", 0)
	ctx := context.Background()

	rec := newPendingRecord("req-accept")
	_, _, err := f.writer.OpenPayment(ctx, rec, &domain.Posting{
		IdempotencyKey: domain.PaymentHoldKey(rec.PaymentID),
		Kind:           domain.EntryKindPaymentHold,
		DebitWalletID:  debtor,
		CreditWalletID: suspense,
		Amount:         rec.Amount,
		Currency:       "KES",
	})
	require.NoError(t, err)

	_, applied, err := f.writer.ApplyPaymentStatus(ctx, rec.PaymentID, domain.StatusUpdate{Status: domain.PaymentStatusAccepted})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(3000), f.store.balance(debtor))
	assert.Equal(t, int64(2000), f.store.balance(suspense))
}

func TestLedgerWriter_ApplyPaymentStatus_NoTransition(t *testing.T) {
	f := newLedgerFixture()
	ctx := context.Background()

	rec := newPendingRecord("req-pending")
	_, _, err := f.writer.OpenPayment(ctx, rec, nil)
	require.NoError(t, err)

	same, applied, err := f.writer.ApplyPaymentStatus(ctx, rec.PaymentID, domain.StatusUpdate{Status: domain.PaymentStatusPending})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, domain.PaymentStatusPending, same.Status)
	assert.Nil(t, same.CompletedAt)

	_, _, err = f.writer.ApplyPaymentStatus(ctx, uuid.New(), domain.StatusUpdate{Status: domain.PaymentStatusAccepted})
	assert.True(t, apperror.HasCode(err, "PAY_004"))
}

func TestLedgerWriter_PostTransfer_LockTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWalletRepo := mocks.NewMockWalletRepository(ctrl)
	mockTransactor := mocks.NewMockDBTransactor(ctrl)

	writer := NewLedgerWriter(mockWalletRepo, nil, nil, mockTransactor, newTestLogger())

	mockTransactor.EXPECT().Begin(gomock.Any()).Return(&memTx{release: func() {}}, nil)
	mockWalletRepo.EXPECT().GetByIDForUpdate(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, fmt.Errorf("get wallet for update by id: %w", domain.ErrRowLockTimeout))

	_, err := writer.PostTransfer(context.Background(), domain.Posting{
		IdempotencyKey: "qr:busy",
		Kind:           domain.EntryKindQRRedemption,
		DebitWalletID:  uuid.New(),
		CreditWalletID: uuid.New(),
		Amount:         100,
		Currency:       "KES",
	})
	assert.True(t, apperror.HasCode(err, "SYS_002"), "got %v", err)
}

func TestLedgerWriter_OpenPayment_EndToEndIDTakenByOtherRequest(t *testing.T) {
	f := newLedgerFixture()
	ctx := context.Background()

	first := newPendingRecord("req-a")
	_, inserted, err := f.writer.OpenPayment(ctx, first, nil)
	require.NoError(t, err)
	require.True(t, inserted)

	clash := newPendingRecord("req-b")
	clash.EndToEndID = first.EndToEndID

	_, _, err = f.writer.OpenPayment(ctx, clash, nil)
	assert.True(t, apperror.HasCode(err, "PAY_003"), "got %v", err)
	assert.False(t, apperror.HasCode(err, "SYS_001"))
}

func TestLedgerWriter_OpenPayment_ConcurrentInsertHitsSecondaryIndex(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPaymentRepo := mocks.NewMockPaymentRepository(ctrl)
	mockTransactor := mocks.NewMockDBTransactor(ctrl)
	writer := NewLedgerWriter(nil, nil, mockPaymentRepo, mockTransactor, newTestLogger())

	winner := newPendingRecord("req-race")
	loser := newPendingRecord("req-race")

	mockTransactor.EXPECT().Begin(gomock.Any()).Return(&memTx{release: func() {}}, nil)
	mockPaymentRepo.EXPECT().Insert(gomock.Any(), gomock.Any(), loser).Return(false, apperror.ErrDuplicateTransaction())
	mockPaymentRepo.EXPECT().GetByRequestID(gomock.Any(), "req-race").Return(winner, nil)

	got, inserted, err := writer.OpenPayment(context.Background(), loser, nil)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, winner.PaymentID, got.PaymentID)
}
