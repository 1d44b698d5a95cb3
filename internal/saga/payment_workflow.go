package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wanderlog/service-payment/internal/adapter"
	"github.com/wanderlog/service-payment/internal/common/events"
	"github.com/wanderlog/service-payment/internal/common/kafka"
	"github.com/wanderlog/service-payment/internal/domain/payment"
	"github.com/wanderlog/service-payment/internal/domain/receipt"
	"github.com/wanderlog/service-payment/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	eventSource = "service-payment"

	stepSavePayment   = "save_payment"
	stepSubmitRequest = "submit_request_to_pay"

	defaultResolveTimeout = 30 * time.Second
)

// WorkflowOptions tunes the PaymentWorkflow.
type WorkflowOptions struct {
	// ResolveTimeout bounds one resolve, independent of the caller's context.
	ResolveTimeout time.Duration
	PayerMessage   string
	PayeeNote      string
}

// InitiateCommand is a validated request to collect money for a booking.
type InitiateCommand struct {
	BookingID        uuid.UUID
	BookingReference string
	InitiatedBy      uuid.UUID
	Amount           decimal.Decimal
	Currency         string
	Method           payment.Method
	PayerIdentifier  string
}

// PaymentWorkflow drives payment attempts through pending, successful and
// failed. It is the only writer of payment records.
type PaymentWorkflow struct {
	store     repository.Store
	gateways  *adapter.Registry
	issuer    *ReceiptIssuer
	publisher kafka.Publisher
	opts      WorkflowOptions
	inflight  singleflight.Group
	logger    *zap.Logger
}

// NewPaymentWorkflow creates a PaymentWorkflow.
func NewPaymentWorkflow(
	store repository.Store,
	gateways *adapter.Registry,
	issuer *ReceiptIssuer,
	publisher kafka.Publisher,
	opts WorkflowOptions,
	logger *zap.Logger,
) *PaymentWorkflow {
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = defaultResolveTimeout
	}
	return &PaymentWorkflow{
		store:     store,
		gateways:  gateways,
		issuer:    issuer,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
	}
}

// Initiate persists a pending attempt and submits it to the gateway. If the
// submission fails the attempt is closed as failed and returned without an
// error; the caller sees the outcome on the record.
func (w *PaymentWorkflow) Initiate(ctx context.Context, cmd InitiateCommand) (*payment.Payment, error) {
	p, err := payment.NewPayment(cmd.BookingID, cmd.InitiatedBy, cmd.Amount, cmd.Currency, cmd.Method, cmd.PayerIdentifier)
	if err != nil {
		return nil, err
	}
	gw, err := w.gateways.For(cmd.Method)
	if err != nil {
		return nil, err
	}

	externalID := cmd.BookingReference
	if externalID == "" {
		externalID = cmd.BookingID.String()
	}

	var submitErr error
	s := NewSaga("initiate_payment", w.logger)

	s.AddStep(SagaStep{
		Name: stepSavePayment,
		Execute: func(ctx context.Context) error {
			return w.store.Payments().Save(ctx, p)
		},
		Compensate: func(ctx context.Context) error {
			reason := "gateway submission failed"
			if submitErr != nil {
				reason = fmt.Sprintf("%s: %v", reason, submitErr)
			}
			if err := p.MarkFailed(payment.GatewayOutcome{Reason: reason}); err != nil {
				return err
			}
			p.IncrementVersion()
			return w.store.Payments().Update(ctx, p)
		},
	})

	s.AddStep(SagaStep{
		Name: stepSubmitRequest,
		Execute: func(ctx context.Context) error {
			submitErr = gw.SubmitPayment(ctx, adapter.SubmitRequest{
				Reference:       p.Reference(),
				ExternalID:      externalID,
				PayerIdentifier: p.PayerIdentifier(),
				Amount:          p.Amount(),
				Currency:        p.Currency(),
				PayerMessage:    w.opts.PayerMessage,
				PayeeNote:       w.opts.PayeeNote,
			})
			return submitErr
		},
	})

	if err := s.Execute(ctx); err != nil {
		var stepErr *StepError
		if errors.As(err, &stepErr) && stepErr.Step == stepSubmitRequest && stepErr.Compensated() {
			w.logger.Warn("request-to-pay rejected, attempt closed",
				zap.String("reference", p.Reference()),
				zap.Error(submitErr),
			)
			w.publishFailed(ctx, p)
			return p, nil
		}
		return nil, err
	}

	w.logger.Info("payment initiated",
		zap.String("reference", p.Reference()),
		zap.String("booking_id", p.BookingID().String()),
	)
	w.publish(ctx, events.PaymentInitiated, p.BookingID().String(), events.PaymentInitiatedEvent{
		PaymentID:  p.ID(),
		Reference:  p.Reference(),
		BookingID:  p.BookingID(),
		Amount:     p.Amount().StringFixed(2),
		Currency:   p.Currency(),
		Method:     string(p.Method()),
		OccurredAt: time.Now().UTC(),
	})
	return p, nil
}

// Resolve asks the gateway for the outcome of a pending attempt and records
// it. Terminal records are returned unchanged without a gateway call.
// Concurrent calls for the same reference share one resolution, which keeps
// running if the first caller goes away.
func (w *PaymentWorkflow) Resolve(ctx context.Context, reference string) (*payment.Payment, error) {
	ch := w.inflight.DoChan(reference, func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.opts.ResolveTimeout)
		defer cancel()
		return w.resolve(rctx, reference)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*payment.Payment), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *PaymentWorkflow) resolve(ctx context.Context, reference string) (*payment.Payment, error) {
	p, err := w.store.Payments().FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if p.IsTerminal() {
		return p, nil
	}

	gw, err := w.gateways.For(p.Method())
	if err != nil {
		return nil, err
	}
	result, err := gw.QueryStatus(ctx, reference)
	if err != nil {
		w.logger.Warn("status query failed, record unchanged",
			zap.String("reference", reference),
			zap.Error(err),
		)
		return nil, err
	}

	if result.Status == payment.StatusPending {
		return p, nil
	}

	outcome := payment.GatewayOutcome{
		TransactionID: result.TransactionID,
		Response:      result.ProviderStatus,
		Data:          result.Raw,
		Reason:        result.Reason,
	}
	if result.Status == payment.StatusFailed && outcome.Reason == "" {
		outcome.Reason = "provider reported " + result.ProviderStatus
	}
	return w.transition(ctx, reference, result.Status, outcome)
}

// Abandon closes a pending attempt as failed without consulting the gateway.
// Terminal records are returned unchanged.
func (w *PaymentWorkflow) Abandon(ctx context.Context, reference, reason string) (*payment.Payment, error) {
	return w.transition(ctx, reference, payment.StatusFailed, payment.GatewayOutcome{Reason: reason})
}

// transition applies a resolution under a row lock. A record another
// resolver already closed is returned as it is.
func (w *PaymentWorkflow) transition(ctx context.Context, reference string, to payment.Status, outcome payment.GatewayOutcome) (*payment.Payment, error) {
	var (
		updated      *payment.Payment
		issued       *receipt.Receipt
		transitioned bool
	)

	err := w.store.Transaction(ctx, func(tx repository.Store) error {
		current, err := tx.Payments().FindByReferenceForUpdate(ctx, reference)
		if err != nil {
			return err
		}
		updated = current
		if current.IsTerminal() {
			return nil
		}

		switch to {
		case payment.StatusSuccessful:
			err = current.MarkSuccessful(outcome)
		case payment.StatusFailed:
			err = current.MarkFailed(outcome)
		default:
			return fmt.Errorf("unsupported resolution %q", to)
		}
		if err != nil {
			return err
		}
		current.IncrementVersion()
		if err := tx.Payments().Update(ctx, current); err != nil {
			return err
		}

		if to == payment.StatusSuccessful {
			rec, created, err := w.issuer.Issue(ctx, tx, current)
			if err != nil {
				return err
			}
			if created {
				issued = rec
			}
		}
		transitioned = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if transitioned {
		w.logger.Info("payment resolved",
			zap.String("reference", reference),
			zap.String("status", string(updated.Status())),
		)
		w.publishResolution(ctx, updated, issued)
	}
	return updated, nil
}

// Refund moves a successful attempt to refunded. The money movement itself
// happens outside this service.
func (w *PaymentWorkflow) Refund(ctx context.Context, reference, reason string) (*payment.Payment, error) {
	var updated *payment.Payment
	err := w.store.Transaction(ctx, func(tx repository.Store) error {
		p, err := tx.Payments().FindByReferenceForUpdate(ctx, reference)
		if err != nil {
			return err
		}
		if err := p.Refund(reason); err != nil {
			return err
		}
		p.IncrementVersion()
		if err := tx.Payments().Update(ctx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("payment refunded", zap.String("reference", reference))
	w.publish(ctx, events.PaymentRefunded, updated.BookingID().String(), events.PaymentRefundedEvent{
		PaymentID:    updated.ID(),
		Reference:    updated.Reference(),
		BookingID:    updated.BookingID(),
		Amount:       updated.Amount().StringFixed(2),
		Currency:     updated.Currency(),
		RefundReason: updated.RefundReason(),
		OccurredAt:   time.Now().UTC(),
	})
	return updated, nil
}

func (w *PaymentWorkflow) publishResolution(ctx context.Context, p *payment.Payment, rec *receipt.Receipt) {
	if p.Status() == payment.StatusFailed {
		w.publishFailed(ctx, p)
		return
	}

	evt := events.PaymentSuccessfulEvent{
		PaymentID:     p.ID(),
		Reference:     p.Reference(),
		BookingID:     p.BookingID(),
		Amount:        p.Amount().StringFixed(2),
		Currency:      p.Currency(),
		TransactionID: p.GatewayTransactionID(),
		OccurredAt:    time.Now().UTC(),
	}
	if p.PaidAt() != nil {
		evt.PaidAt = *p.PaidAt()
	}
	w.publish(ctx, events.PaymentSuccessful, p.BookingID().String(), evt)

	if rec != nil {
		w.publish(ctx, events.ReceiptIssued, p.BookingID().String(), events.ReceiptIssuedEvent{
			ReceiptID:     rec.ID(),
			ReceiptNumber: rec.Number(),
			PaymentID:     p.ID(),
			BookingID:     p.BookingID(),
			OccurredAt:    time.Now().UTC(),
		})
	}
}

func (w *PaymentWorkflow) publishFailed(ctx context.Context, p *payment.Payment) {
	w.publish(ctx, events.PaymentFailed, p.BookingID().String(), events.PaymentFailedEvent{
		PaymentID:  p.ID(),
		Reference:  p.Reference(),
		BookingID:  p.BookingID(),
		Reason:     p.FailureReason(),
		OccurredAt: time.Now().UTC(),
	})
}

// publish is best-effort: the record is already committed, so a broker
// failure is logged and not returned.
func (w *PaymentWorkflow) publish(ctx context.Context, eventType, subject string, data interface{}) {
	ce, err := kafka.NewCloudEvent(eventSource, eventType, data)
	if err != nil {
		w.logger.Error("failed to create cloud event", zap.String("type", eventType), zap.Error(err))
		return
	}
	ce.Subject = subject
	if err := w.publisher.PublishEvent(context.WithoutCancel(ctx), events.TopicPaymentEvents, ce); err != nil {
		w.logger.Error("failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}
