package service

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"wallet-settlement/internal/core/domain"
	"wallet-settlement/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// memStore backs the in-memory repositories. Values are stored as copies so
// callers cannot mutate state behind the repository's back.
type memStore struct {
	mu        sync.Mutex
	wallets   map[uuid.UUID]domain.Wallet
	merchants map[uuid.UUID]domain.Merchant
	qrCodes   map[uuid.UUID]domain.QRCode
	devices   map[string]domain.Device
	entries   map[uuid.UUID]domain.LedgerEntry
	payments  map[uuid.UUID]domain.PaymentRecord

	claimWrites int // successful conditional claims
}

func newMemStore() *memStore {
	return &memStore{
		wallets:   make(map[uuid.UUID]domain.Wallet),
		merchants: make(map[uuid.UUID]domain.Merchant),
		qrCodes:   make(map[uuid.UUID]domain.QRCode),
		devices:   make(map[string]domain.Device),
		entries:   make(map[uuid.UUID]domain.LedgerEntry),
		payments:  make(map[uuid.UUID]domain.PaymentRecord),
	}
}

func (s *memStore) balance(id uuid.UUID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wallets[id].Balance
}

func (s *memStore) entryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *memStore) qr(id uuid.UUID) domain.QRCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.qrCodes[id]
}

// --- Transactions ---

// lockingTransactor serializes transactions like row locks on a single hot
// row would. The lock is held from Begin until Commit or Rollback.
type lockingTransactor struct {
	mu sync.Mutex
}

func (t *lockingTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	return &memTx{release: t.mu.Unlock}, nil
}

// memTx is a pgx.Tx with an undo log applied on rollback.
type memTx struct {
	release func()
	undo    []func()
	done    bool
}

func (t *memTx) onRollback(fn func()) {
	t.undo = append(t.undo, fn)
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.release()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.release()
	return nil
}

func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *memTx) Conn() *pgx.Conn                                               { return nil }

func undoLog(tx pgx.Tx) *memTx {
	if m, ok := tx.(*memTx); ok {
		return m
	}
	return &memTx{release: func() {}}
}

// --- Wallets ---

type memWalletRepo struct{ s *memStore }

func (r memWalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.wallets[w.ID] = *w
	return nil
}

func (r memWalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (r memWalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	return r.GetByID(ctx, id)
}

func (r memWalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	prev := w.Balance
	w.Balance = balance
	r.s.wallets[id] = w
	undoLog(tx).onRollback(func() {
		r.s.mu.Lock()
		defer r.s.mu.Unlock()
		w := r.s.wallets[id]
		w.Balance = prev
		r.s.wallets[id] = w
	})
	return nil
}

// --- Merchants ---

type memMerchantRepo struct{ s *memStore }

func (r memMerchantRepo) Create(ctx context.Context, m *domain.Merchant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.merchants[m.ID] = *m
	return nil
}

func (r memMerchantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.merchants[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// --- Devices ---

type memDeviceRepo struct{ s *memStore }

func (r memDeviceRepo) GetByID(ctx context.Context, id string) (*domain.Device, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.devices[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (r memDeviceRepo) UpdateStatus(ctx context.Context, id string, status domain.DeviceStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.devices[id]
	if !ok {
		return pgx.ErrNoRows
	}
	d.Status = status
	r.s.devices[id] = d
	return nil
}

// --- QR codes ---

type memQRRepo struct{ s *memStore }

func (r memQRRepo) Create(ctx context.Context, qr *domain.QRCode) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.qrCodes[qr.ID] = *qr
	return nil
}

func (r memQRRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.QRCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	qr, ok := r.s.qrCodes[id]
	if !ok {
		return nil, nil
	}
	return &qr, nil
}

func (r memQRRepo) Claim(ctx context.Context, c domain.QRRedemptionClaim) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	qr, ok := r.s.qrCodes[c.QRID]
	if !ok || qr.RedeemedAt != nil || !qr.ExpiresAt.After(c.RedeemedAt) {
		return false, nil
	}
	at := c.RedeemedAt
	payer := c.RedeemedByPayerID
	channel := c.Channel
	pending := domain.SettlementStatusPending
	qr.RedeemedAt = &at
	qr.RedeemedByPayerID = &payer
	qr.RedeemChannel = &channel
	qr.DeviceID = c.DeviceID
	qr.SettlementStatus = &pending
	r.s.qrCodes[c.QRID] = qr
	r.s.claimWrites++
	return true, nil
}

func (r memQRRepo) RecordSettlement(ctx context.Context, id uuid.UUID, status domain.SettlementStatus, txID *uuid.UUID, reason *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	qr, ok := r.s.qrCodes[id]
	if !ok {
		return pgx.ErrNoRows
	}
	qr.SettlementStatus = &status
	qr.TransactionID = txID
	qr.SettlementReason = reason
	r.s.qrCodes[id] = qr
	return nil
}

// --- Ledger ---

type memLedgerRepo struct{ s *memStore }

func (r memLedgerRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.entries {
		if existing.IdempotencyKey == e.IdempotencyKey {
			return apperror.ErrDuplicateTransaction()
		}
	}
	r.s.entries[e.ID] = *e
	id := e.ID
	undoLog(tx).onRollback(func() {
		r.s.mu.Lock()
		defer r.s.mu.Unlock()
		delete(r.s.entries, id)
	})
	return nil
}

func (r memLedgerRepo) GetByIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) (*domain.LedgerEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.entries {
		if e.IdempotencyKey == key {
			return &e, nil
		}
	}
	return nil, nil
}

func (r memLedgerRepo) GetByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.LedgerEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.entries[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// --- Payments ---

type memPaymentRepo struct{ s *memStore }

func (r memPaymentRepo) Insert(ctx context.Context, tx pgx.Tx, p *domain.PaymentRecord) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.payments {
		if existing.RequestID == p.RequestID {
			return false, nil
		}
	}
	for _, existing := range r.s.payments {
		if existing.EndToEndID == p.EndToEndID || existing.MessageID == p.MessageID {
			return false, apperror.ErrDuplicateTransaction()
		}
	}
	r.s.payments[p.PaymentID] = *p
	id := p.PaymentID
	undoLog(tx).onRollback(func() {
		r.s.mu.Lock()
		defer r.s.mu.Unlock()
		delete(r.s.payments, id)
	})
	return true, nil
}

func (r memPaymentRepo) find(match func(p domain.PaymentRecord) bool) (*domain.PaymentRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payments {
		if match(p) {
			return &p, nil
		}
	}
	return nil, nil
}

func (r memPaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error) {
	return r.find(func(p domain.PaymentRecord) bool { return p.PaymentID == id })
}

func (r memPaymentRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.PaymentRecord, error) {
	return r.GetByID(ctx, id)
}

func (r memPaymentRepo) GetByRequestID(ctx context.Context, requestID string) (*domain.PaymentRecord, error) {
	return r.find(func(p domain.PaymentRecord) bool { return p.RequestID == requestID })
}

func (r memPaymentRepo) GetByEndToEndID(ctx context.Context, endToEndID string) (*domain.PaymentRecord, error) {
	return r.find(func(p domain.PaymentRecord) bool { return p.EndToEndID == endToEndID })
}

func (r memPaymentRepo) GetByMessageID(ctx context.Context, messageID string) (*domain.PaymentRecord, error) {
	return r.find(func(p domain.PaymentRecord) bool { return p.MessageID == messageID })
}

func (r memPaymentRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, u domain.StatusUpdate) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok || p.Status != domain.PaymentStatusPending {
		return false, nil
	}
	prev := p
	at := u.At
	p.Status = u.Status
	p.StatusReason = u.Reason
	p.StatusReasonCode = u.ReasonCode
	p.UpdatedAt = u.At
	p.CompletedAt = &at
	r.s.payments[id] = p
	undoLog(tx).onRollback(func() {
		r.s.mu.Lock()
		defer r.s.mu.Unlock()
		r.s.payments[id] = prev
	})
	return true, nil
}

func (r memPaymentRepo) SetHoldEntry(ctx context.Context, tx pgx.Tx, id uuid.UUID, entryID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return pgx.ErrNoRows
	}
	p.HoldEntryID = &entryID
	r.s.payments[id] = p
	return nil
}

func (r memPaymentRepo) ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]domain.PaymentRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.PaymentRecord
	for _, p := range r.s.payments {
		if p.Status == domain.PaymentStatusPending && p.CreatedAt.Before(createdBefore) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Ambient fakes ---

type recordingAudit struct {
	mu      sync.Mutex
	entries []domain.AuditLog
}

func (a *recordingAudit) Log(ctx context.Context, entry *domain.AuditLog) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, *entry)
}

func (a *recordingAudit) actions() []domain.AuditAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.AuditAction, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key], nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

// fixedClock returns a settable clock.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
