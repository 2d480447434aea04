package service

import (
	"context"
	"fmt"
	"time"

	"wallet-settlement/internal/core/domain"
	"wallet-settlement/internal/core/ports"
	"wallet-settlement/internal/metrics"
	"wallet-settlement/pkg/apperror"

	"github.com/rs/zerolog"
)

// ReconcilerConfig bounds one reconciliation pass.
type ReconcilerConfig struct {
	After time.Duration // only payments pending for longer than this
	Batch int
}

// PaymentReconciler implements ports.Reconciler. It resolves payments whose
// final status never arrived by asking the counterparty.
type PaymentReconciler struct {
	paymentRepo ports.PaymentRepository
	ledger      ports.LedgerWriter
	transport   ports.PaymentTransport
	router      *Router
	cfg         ReconcilerConfig
	now         func() time.Time
	log         zerolog.Logger
}

// NewPaymentReconciler creates a new PaymentReconciler.
func NewPaymentReconciler(
	paymentRepo ports.PaymentRepository,
	ledger ports.LedgerWriter,
	transport ports.PaymentTransport,
	router *Router,
	cfg ReconcilerConfig,
	log zerolog.Logger,
) *PaymentReconciler {
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	return &PaymentReconciler{
		paymentRepo: paymentRepo,
		ledger:      ledger,
		transport:   transport,
		router:      router,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
		log:         log,
	}
}

// ReconcileOnce queries every stale pending payment once and returns how many
// reached a terminal status.
func (r *PaymentReconciler) ReconcileOnce(ctx context.Context) (int, error) {
	pending, err := r.paymentRepo.ListPending(ctx, r.now().Add(-r.cfg.After), r.cfg.Batch)
	if err != nil {
		return 0, apperror.ErrDatabaseError(fmt.Errorf("list pending payments: %w", err))
	}

	resolved := 0
	for i := range pending {
		rec := &pending[i]
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		applied, err := r.reconcile(ctx, rec)
		if err != nil {
			r.log.Warn().Err(err).
				Str("payment_id", rec.PaymentID.String()).
				Str("route", string(rec.Route)).
				Msg("payment reconciliation failed")
			continue
		}
		if applied {
			resolved++
		}
	}

	if len(pending) > 0 {
		r.log.Info().Int("pending", len(pending)).Int("resolved", resolved).Msg("reconciliation pass finished")
	}
	return resolved, nil
}

func (r *PaymentReconciler) reconcile(ctx context.Context, rec *domain.PaymentRecord) (bool, error) {
	target, ok, err := r.router.TargetFor(ctx, rec)
	if err != nil {
		return false, err
	}
	if !ok {
		r.log.Debug().Str("payment_id", rec.PaymentID.String()).Msg("no status endpoint for pending payment")
		return false, nil
	}

	msg, err := r.transport.QueryStatus(ctx, target, rec.EndToEndID)
	if err != nil {
		return false, err
	}
	status, ok := domain.ParsePaymentStatus(msg.Status)
	if !ok || !status.IsTerminal() {
		return false, nil
	}

	_, applied, err := r.ledger.ApplyPaymentStatus(ctx, rec.PaymentID, domain.StatusUpdate{
		Status:     status,
		Reason:     msg.Reason,
		ReasonCode: msg.ReasonCode,
		At:         r.now(),
	})
	if err != nil {
		return false, err
	}
	metrics.PaymentCallbacksTotal.WithLabelValues("reconciler", fmt.Sprint(applied)).Inc()
	return applied, nil
}

// Run reconciles on every tick until ctx is cancelled.
func (r *PaymentReconciler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.ReconcileOnce(ctx); err != nil && ctx.Err() == nil {
				r.log.Error().Err(err).Msg("reconciliation pass failed")
			}
		}
	}
}
