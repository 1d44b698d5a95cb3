package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wanderlog/service-payment/internal/common/domain"
	"github.com/wanderlog/service-payment/internal/domain/payment"
	"github.com/wanderlog/service-payment/internal/domain/receipt"
	"github.com/wanderlog/service-payment/internal/repository"
	"go.uber.org/zap"
)

// ReceiptIssuer produces the single receipt of a successful payment.
type ReceiptIssuer struct {
	now    func() time.Time
	logger *zap.Logger
}

// NewReceiptIssuer creates a ReceiptIssuer.
func NewReceiptIssuer(logger *zap.Logger) *ReceiptIssuer {
	return &ReceiptIssuer{now: time.Now, logger: logger}
}

// Issue returns the receipt of p, creating it on first call. store should be
// the transaction that settled p so the receipt commits with the transition.
// created is false when the receipt already existed.
func (i *ReceiptIssuer) Issue(ctx context.Context, store repository.Store, p *payment.Payment) (rec *receipt.Receipt, created bool, err error) {
	if p.Status() != payment.StatusSuccessful {
		return nil, false, domain.NewPreconditionError(
			fmt.Sprintf("payment %s is %s, receipts are issued for successful payments only", p.Reference(), p.Status()))
	}

	existing, err := store.Receipts().FindByPaymentID(ctx, p.ID())
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	b, err := store.Bookings().FindByID(ctx, p.BookingID())
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, false, err
		}
		i.logger.Warn("booking snapshot missing, receipt carries payment facts only",
			zap.String("reference", p.Reference()),
			zap.String("booking_id", p.BookingID().String()),
		)
		b = nil
	}

	now := i.now().UTC()
	seq, err := store.Receipts().NextSequence(ctx, now.Year())
	if err != nil {
		return nil, false, fmt.Errorf("failed to reserve receipt number: %w", err)
	}

	rec, err = receipt.New(p, b, seq, now)
	if err != nil {
		return nil, false, err
	}
	if err := store.Receipts().Save(ctx, rec); err != nil {
		return nil, false, err
	}

	i.logger.Info("receipt issued",
		zap.String("receipt_number", rec.Number()),
		zap.String("reference", p.Reference()),
	)
	return rec, true, nil
}
