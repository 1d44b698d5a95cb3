package application

import (
	"context"
	"errors"
	"time"

	"github.com/wanderlog/service-payment/internal/adapter"
	"github.com/wanderlog/service-payment/internal/domain/payment"
	"github.com/wanderlog/service-payment/internal/repository"
	"github.com/wanderlog/service-payment/internal/saga"
	"go.uber.org/zap"
)

// ReasonNeverSubmitted closes attempts the provider has no trace of.
const ReasonNeverSubmitted = "submission never reached the gateway"

// ReconcileReport summarises one sweep.
type ReconcileReport struct {
	Checked      int `json:"checked"`
	Resolved     int `json:"resolved"`
	Abandoned    int `json:"abandoned"`
	StillPending int `json:"still_pending"`
	Errors       int `json:"errors"`
}

// Reconciler resolves attempts that stayed pending past a grace period,
// e.g. because the process died between saving and submitting, or nobody
// polled for the outcome.
type Reconciler struct {
	store     repository.Store
	workflow  *saga.PaymentWorkflow
	grace     time.Duration
	batchSize int
	logger    *zap.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(store repository.Store, workflow *saga.PaymentWorkflow, grace time.Duration, batchSize int, logger *zap.Logger) *Reconciler {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Reconciler{
		store:     store,
		workflow:  workflow,
		grace:     grace,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Sweep resolves one batch of stale pending attempts.
func (r *Reconciler) Sweep(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	cutoff := time.Now().UTC().Add(-r.grace)
	stale, err := r.store.Payments().ListPendingCreatedBefore(ctx, cutoff, r.batchSize)
	if err != nil {
		return report, err
	}

	for _, p := range stale {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Checked++

		resolved, err := r.workflow.Resolve(ctx, p.Reference())
		switch {
		case errors.Is(err, adapter.ErrReferenceUnknown):
			if _, err := r.workflow.Abandon(ctx, p.Reference(), ReasonNeverSubmitted); err != nil {
				report.Errors++
				r.logger.Error("failed to abandon payment", zap.String("reference", p.Reference()), zap.Error(err))
				continue
			}
			report.Abandoned++
		case err != nil:
			report.Errors++
			r.logger.Warn("reconcile resolve failed", zap.String("reference", p.Reference()), zap.Error(err))
		case resolved.Status() == payment.StatusPending:
			report.StillPending++
		default:
			report.Resolved++
		}
	}

	if report.Checked > 0 {
		r.logger.Info("reconcile sweep finished",
			zap.Int("checked", report.Checked),
			zap.Int("resolved", report.Resolved),
			zap.Int("abandoned", report.Abandoned),
			zap.Int("still_pending", report.StillPending),
			zap.Int("errors", report.Errors),
		)
	}
	return report, nil
}

// Run sweeps every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started", zap.Duration("interval", interval), zap.Duration("grace", r.grace))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("reconcile sweep failed", zap.Error(err))
			}
		}
	}
}
