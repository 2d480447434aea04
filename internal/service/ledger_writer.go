package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-settlement/internal/core/domain"
	"wallet-settlement/internal/core/ports"
	"wallet-settlement/internal/metrics"
	"wallet-settlement/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// LedgerWriterImpl implements ports.LedgerWriter. Every balance mutation and
// payment status transition in the service goes through it.
type LedgerWriterImpl struct {
	walletRepo  ports.WalletRepository
	ledgerRepo  ports.LedgerRepository
	paymentRepo ports.PaymentRepository
	transactor  ports.DBTransactor
	now         func() time.Time
	log         zerolog.Logger
}

// NewLedgerWriter creates a new LedgerWriterImpl.
func NewLedgerWriter(
	walletRepo ports.WalletRepository,
	ledgerRepo ports.LedgerRepository,
	paymentRepo ports.PaymentRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *LedgerWriterImpl {
	return &LedgerWriterImpl{
		walletRepo:  walletRepo,
		ledgerRepo:  ledgerRepo,
		paymentRepo: paymentRepo,
		transactor:  transactor,
		now:         func() time.Time { return time.Now().UTC() },
		log:         log,
	}
}

// PostTransfer moves funds exactly once per idempotency key. A replay returns
// the entry written by the first call without moving funds again.
func (w *LedgerWriterImpl) PostTransfer(ctx context.Context, p domain.Posting) (*domain.LedgerEntry, error) {
	if err := validatePosting(p); err != nil {
		return nil, err
	}

	dbTx, err := w.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	entry, err := w.post(ctx, dbTx, p)
	if err != nil {
		if apperror.HasCode(err, "PAY_003") {
			// Lost the insert race to a concurrent posting with the same key.
			_ = dbTx.Rollback(ctx)
			return w.existingEntry(ctx, p.IdempotencyKey)
		}
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return entry, nil
}

// OpenPayment inserts the payment record and, when given, the funds hold in
// one transaction. A record with the same request id wins over this one.
func (w *LedgerWriterImpl) OpenPayment(ctx context.Context, record *domain.PaymentRecord, hold *domain.Posting) (*domain.PaymentRecord, bool, error) {
	if hold != nil {
		if err := validatePosting(*hold); err != nil {
			return nil, false, err
		}
	}

	dbTx, err := w.transactor.Begin(ctx)
	if err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	inserted, err := w.paymentRepo.Insert(ctx, dbTx, record)
	if err != nil {
		if !apperror.HasCode(err, "PAY_003") {
			return nil, false, apperror.InternalError(fmt.Errorf("insert payment: %w", err))
		}
		// A concurrent insert of the same request id can trip the end-to-end
		// or message id index before the request_id arbiter.
		_ = dbTx.Rollback(ctx)
		existing, lookupErr := w.existingPayment(ctx, record.RequestID)
		if lookupErr != nil {
			return nil, false, lookupErr
		}
		if existing == nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if !inserted {
		_ = dbTx.Rollback(ctx)
		existing, err := w.existingPayment(ctx, record.RequestID)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, apperror.InternalError(fmt.Errorf("payment %s conflicted but is not visible", record.RequestID))
		}
		return existing, false, nil
	}

	if hold != nil {
		entry, err := w.post(ctx, dbTx, *hold)
		if err != nil {
			return nil, false, err
		}
		if err := w.paymentRepo.SetHoldEntry(ctx, dbTx, record.PaymentID, entry.ID); err != nil {
			return nil, false, apperror.InternalError(fmt.Errorf("link hold entry: %w", err))
		}
		record.HoldEntryID = &entry.ID
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	w.log.Info().
		Str("payment_id", record.PaymentID.String()).
		Str("request_id", record.RequestID).
		Bool("hold", hold != nil).
		Msg("payment record opened")

	return record, true, nil
}

func (w *LedgerWriterImpl) existingPayment(ctx context.Context, requestID string) (*domain.PaymentRecord, error) {
	existing, err := w.paymentRepo.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("fetch payment by request id: %w", err))
	}
	return existing, nil
}

// ApplyPaymentStatus moves a PENDING payment to a terminal status. A REJECTED
// payment with a hold gets the hold released in the same transaction.
func (w *LedgerWriterImpl) ApplyPaymentStatus(ctx context.Context, paymentID uuid.UUID, update domain.StatusUpdate) (*domain.PaymentRecord, bool, error) {
	dbTx, err := w.transactor.Begin(ctx)
	if err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	rec, err := w.paymentRepo.GetByIDForUpdate(ctx, dbTx, paymentID)
	if err != nil {
		return nil, false, lockFailure("lock payment", err)
	}
	if rec == nil {
		return nil, false, apperror.ErrNotFound("payment")
	}
	if rec.IsTerminal() || !update.Status.IsTerminal() {
		return rec, false, nil
	}

	if update.At.IsZero() {
		update.At = w.now()
	}

	ok, err := w.paymentRepo.UpdateStatus(ctx, dbTx, paymentID, update)
	if err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("update payment status: %w", err))
	}
	if !ok {
		return rec, false, nil
	}

	if update.Status == domain.PaymentStatusRejected && rec.HoldEntryID != nil {
		if err := w.releaseHold(ctx, dbTx, rec); err != nil {
			return nil, false, err
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	rec.Status = update.Status
	rec.StatusReason = update.Reason
	rec.StatusReasonCode = update.ReasonCode
	rec.UpdatedAt = update.At
	completedAt := update.At
	rec.CompletedAt = &completedAt

	w.log.Info().
		Str("payment_id", rec.PaymentID.String()).
		Str("status", string(rec.Status)).
		Msg("payment status applied")

	return rec, true, nil
}

func (w *LedgerWriterImpl) releaseHold(ctx context.Context, dbTx pgx.Tx, rec *domain.PaymentRecord) error {
	hold, err := w.ledgerRepo.GetByID(ctx, dbTx, *rec.HoldEntryID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("load hold entry: %w", err))
	}
	if hold == nil {
		return apperror.InternalError(fmt.Errorf("hold entry %s missing for payment %s", rec.HoldEntryID, rec.PaymentID))
	}

	_, err = w.post(ctx, dbTx, domain.Posting{
		IdempotencyKey: domain.HoldReleaseKey(rec.PaymentID),
		Kind:           domain.EntryKindHoldRelease,
		DebitWalletID:  hold.CreditWalletID,
		CreditWalletID: hold.DebitWalletID,
		Amount:         hold.Amount,
		Currency:       hold.Currency,
		Reference:      hold.Reference,
	})
	return err
}

func (w *LedgerWriterImpl) lockWallet(ctx context.Context, dbTx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	wallet, err := w.walletRepo.GetByIDForUpdate(ctx, dbTx, id)
	if err != nil {
		return nil, lockFailure("lock wallet", err)
	}
	return wallet, nil
}

func lockFailure(op string, err error) error {
	if errors.Is(err, domain.ErrRowLockTimeout) {
		metrics.LedgerPostingsTotal.WithLabelValues("lock", "timeout").Inc()
		return apperror.ErrLockTimeout(err)
	}
	return apperror.InternalError(fmt.Errorf("%s: %w", op, err))
}

// post runs inside dbTx. Wallet rows are locked in id order so two postings
// touching the same pair of wallets cannot deadlock.
func (w *LedgerWriterImpl) post(ctx context.Context, dbTx pgx.Tx, p domain.Posting) (*domain.LedgerEntry, error) {
	firstID, secondID := p.DebitWalletID, p.CreditWalletID
	if bytes.Compare(firstID[:], secondID[:]) > 0 {
		firstID, secondID = secondID, firstID
	}

	first, err := w.lockWallet(ctx, dbTx, firstID)
	if err != nil {
		return nil, err
	}
	second, err := w.lockWallet(ctx, dbTx, secondID)
	if err != nil {
		return nil, err
	}

	// Checked after the locks so a replay waiting on a concurrent posting
	// observes the committed entry.
	existing, err := w.ledgerRepo.GetByIdempotencyKey(ctx, dbTx, p.IdempotencyKey)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("ledger idempotency check: %w", err))
	}
	if existing != nil {
		metrics.LedgerPostingsTotal.WithLabelValues(string(p.Kind), "duplicate").Inc()
		return existing, nil
	}

	if first == nil || second == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	debit, credit := first, second
	if debit.ID != p.DebitWalletID {
		debit, credit = second, first
	}

	if !debit.IsActive() || !credit.IsActive() {
		return nil, apperror.ErrWalletUnavailable()
	}
	if debit.Currency != p.Currency || credit.Currency != p.Currency {
		return nil, apperror.ErrCurrencyMismatch()
	}
	if debit.Balance < p.Amount {
		return nil, apperror.ErrInsufficientFunds()
	}

	if err := w.walletRepo.UpdateBalance(ctx, dbTx, debit.ID, debit.Balance-p.Amount); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("debit wallet: %w", err))
	}
	if err := w.walletRepo.UpdateBalance(ctx, dbTx, credit.ID, credit.Balance+p.Amount); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("credit wallet: %w", err))
	}

	entry := &domain.LedgerEntry{
		ID:             uuid.New(),
		IdempotencyKey: p.IdempotencyKey,
		Kind:           p.Kind,
		DebitWalletID:  p.DebitWalletID,
		CreditWalletID: p.CreditWalletID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		Reference:      p.Reference,
		CreatedAt:      w.now(),
	}
	if err := w.ledgerRepo.Create(ctx, dbTx, entry); err != nil {
		if apperror.HasCode(err, "PAY_003") {
			return nil, err
		}
		return nil, apperror.InternalError(fmt.Errorf("insert ledger entry: %w", err))
	}

	metrics.LedgerPostingsTotal.WithLabelValues(string(p.Kind), "posted").Inc()
	w.log.Info().
		Str("entry_id", entry.ID.String()).
		Str("kind", string(entry.Kind)).
		Str("idempotency_key", entry.IdempotencyKey).
		Int64("amount", entry.Amount).
		Msg("ledger entry posted")

	return entry, nil
}

func (w *LedgerWriterImpl) existingEntry(ctx context.Context, key string) (*domain.LedgerEntry, error) {
	dbTx, err := w.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	entry, err := w.ledgerRepo.GetByIdempotencyKey(ctx, dbTx, key)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("ledger idempotency check: %w", err))
	}
	if entry == nil {
		return nil, apperror.InternalError(fmt.Errorf("ledger entry %s conflicted but is not visible", key))
	}
	return entry, nil
}

func validatePosting(p domain.Posting) error {
	if p.Amount <= 0 {
		return apperror.ErrInvalidAmount()
	}
	if p.IdempotencyKey == "" {
		return apperror.Validation("idempotency key is required")
	}
	if p.DebitWalletID == p.CreditWalletID {
		return apperror.Validation("debit and credit wallet must differ")
	}
	return nil
}
