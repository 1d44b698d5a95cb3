package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wanderlog/service-payment/internal/adapter"
	"github.com/wanderlog/service-payment/internal/common/auth"
	"github.com/wanderlog/service-payment/internal/common/domain"
	"github.com/wanderlog/service-payment/internal/common/events"
	"github.com/wanderlog/service-payment/internal/domain/booking"
	"github.com/wanderlog/service-payment/internal/domain/payment"
	"github.com/wanderlog/service-payment/internal/domain/receipt"
	"github.com/wanderlog/service-payment/internal/repository"
	"github.com/wanderlog/service-payment/internal/saga"
	"go.uber.org/zap"
)

// InitiatePaymentRequest is the DTO for starting a payment attempt.
// Amount and currency default to the booking's total when omitted.
type InitiatePaymentRequest struct {
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Method          string `json:"method" binding:"required"`
	PayerIdentifier string `json:"payer_identifier"`
}

// UnmarshalJSON also accepts the provider-style payerIdentifier key.
func (r *InitiatePaymentRequest) UnmarshalJSON(data []byte) error {
	type plain InitiatePaymentRequest
	var aux struct {
		plain
		PayerIdentifierCamel string `json:"payerIdentifier"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = InitiatePaymentRequest(aux.plain)
	if r.PayerIdentifier == "" {
		r.PayerIdentifier = aux.PayerIdentifierCamel
	}
	return nil
}

// RefundRequest is the DTO for an administrative refund.
type RefundRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// PaymentDTO is the API response DTO for payment data.
type PaymentDTO struct {
	ID                   uuid.UUID  `json:"id"`
	Reference            string     `json:"reference"`
	BookingID            uuid.UUID  `json:"booking_id"`
	InitiatedBy          uuid.UUID  `json:"initiated_by"`
	Amount               string     `json:"amount"`
	Currency             string     `json:"currency"`
	Method               string     `json:"method"`
	PayerIdentifier      string     `json:"payer_identifier,omitempty"`
	Status               string     `json:"status"`
	GatewayTransactionID string     `json:"gateway_transaction_id,omitempty"`
	GatewayStatus        string     `json:"gateway_status,omitempty"`
	FailureReason        string     `json:"failure_reason,omitempty"`
	PaidAt               *time.Time `json:"paid_at,omitempty"`
	RefundedAt           *time.Time `json:"refunded_at,omitempty"`
	RefundReason         string     `json:"refund_reason,omitempty"`
	Version              int64      `json:"version"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// ReceiptDTO is the API response DTO for a receipt.
type ReceiptDTO struct {
	ID               uuid.UUID       `json:"id"`
	ReceiptNumber    string          `json:"receipt_number"`
	PaymentID        uuid.UUID       `json:"payment_id"`
	PaymentReference string          `json:"payment_reference"`
	BookingID        uuid.UUID       `json:"booking_id"`
	Data             json.RawMessage `json:"data"`
	VerificationURL  string          `json:"verification_url,omitempty"`
	GeneratedAt      time.Time       `json:"generated_at"`
}

// BookingPaymentsDTO lists the attempts of one booking.
type BookingPaymentsDTO struct {
	BookingID     uuid.UUID    `json:"booking_id"`
	LatestPayment *PaymentDTO  `json:"latest_payment"`
	Payments      []PaymentDTO `json:"payments"`
}

// PaymentService is the application service that orchestrates payment use cases.
type PaymentService struct {
	store    repository.Store
	workflow *saga.PaymentWorkflow
	qr       *adapter.ReceiptQRGenerator
	logger   *zap.Logger
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	store repository.Store,
	workflow *saga.PaymentWorkflow,
	qr *adapter.ReceiptQRGenerator,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		store:    store,
		workflow: workflow,
		qr:       qr,
		logger:   logger,
	}
}

// InitiatePayment starts a payment attempt for a booking the actor may pay for.
func (s *PaymentService) InitiatePayment(ctx context.Context, actor auth.Actor, bookingID uuid.UUID, req InitiatePaymentRequest) (*PaymentDTO, error) {
	b, err := s.store.Bookings().FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(b.UserID) {
		return nil, domain.NewForbiddenError("you cannot pay for this booking")
	}
	if !b.Payable() {
		return nil, domain.NewConflictError(fmt.Sprintf("booking %s is %s", b.Reference, b.Status))
	}

	amount := b.TotalAmount
	if req.Amount != "" {
		amount, err = decimal.NewFromString(strings.TrimSpace(req.Amount))
		if err != nil {
			return nil, domain.NewValidationError("amount must be a decimal number")
		}
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = b.Currency
	}
	if currency != b.Currency {
		return nil, domain.NewValidationError(fmt.Sprintf("currency must match the booking currency %s", b.Currency))
	}

	pending, err := s.store.Payments().FindPendingByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, domain.NewConflictError(fmt.Sprintf("booking already has a pending payment %s", pending.Reference()))
	}

	s.logger.Info("initiating payment",
		zap.String("booking_id", bookingID.String()),
		zap.String("actor", actor.UserID.String()),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("currency", currency),
	)

	p, err := s.workflow.Initiate(ctx, saga.InitiateCommand{
		BookingID:        bookingID,
		BookingReference: b.Reference,
		InitiatedBy:      actor.UserID,
		Amount:           amount,
		Currency:         currency,
		Method:           payment.Method(req.Method),
		PayerIdentifier:  strings.TrimSpace(req.PayerIdentifier),
	})
	if err != nil {
		s.logger.Error("failed to initiate payment", zap.Error(err))
		return nil, err
	}

	dto := toPaymentDTO(p)
	return &dto, nil
}

// GetPaymentStatus polls the gateway for a pending attempt and returns the
// resulting record.
func (s *PaymentService) GetPaymentStatus(ctx context.Context, actor auth.Actor, reference string) (*PaymentDTO, error) {
	if _, err := s.loadAuthorized(ctx, actor, reference); err != nil {
		return nil, err
	}

	p, err := s.workflow.Resolve(ctx, reference)
	if err != nil {
		return nil, err
	}

	dto := toPaymentDTO(p)
	return &dto, nil
}

// GetPayment returns the stored record without contacting the gateway.
func (s *PaymentService) GetPayment(ctx context.Context, actor auth.Actor, reference string) (*PaymentDTO, error) {
	p, err := s.loadAuthorized(ctx, actor, reference)
	if err != nil {
		return nil, err
	}

	dto := toPaymentDTO(p)
	return &dto, nil
}

// GetReceipt returns the receipt of a payment.
func (s *PaymentService) GetReceipt(ctx context.Context, actor auth.Actor, reference string) (*ReceiptDTO, error) {
	p, err := s.loadAuthorized(ctx, actor, reference)
	if err != nil {
		return nil, err
	}

	rec, err := s.store.Receipts().FindByPaymentID(ctx, p.ID())
	if err != nil {
		return nil, err
	}

	dto := s.toReceiptDTO(rec)
	return &dto, nil
}

// ReceiptQR renders the verification QR code of a receipt as PNG.
func (s *PaymentService) ReceiptQR(ctx context.Context, actor auth.Actor, number string) ([]byte, error) {
	if !receipt.NumberPattern.MatchString(number) {
		return nil, domain.NewValidationError("invalid receipt number")
	}
	rec, err := s.store.Receipts().FindByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	p, err := s.store.Payments().FindByID(ctx, rec.PaymentID())
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, p); err != nil {
		return nil, err
	}
	return s.qr.Generate(rec.Number())
}

// ListBookingPayments returns every attempt for a booking, newest first.
func (s *PaymentService) ListBookingPayments(ctx context.Context, actor auth.Actor, bookingID uuid.UUID) (*BookingPaymentsDTO, error) {
	b, err := s.store.Bookings().FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(b.UserID) {
		return nil, domain.NewForbiddenError("you cannot view payments of this booking")
	}

	payments, err := s.store.Payments().ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	out := &BookingPaymentsDTO{BookingID: bookingID, Payments: make([]PaymentDTO, len(payments))}
	for i, p := range payments {
		out.Payments[i] = toPaymentDTO(p)
	}
	if len(out.Payments) > 0 {
		latest := out.Payments[0]
		out.LatestPayment = &latest
	}
	return out, nil
}

// RefundPayment records a manual refund of a successful payment (admin).
func (s *PaymentService) RefundPayment(ctx context.Context, actor auth.Actor, reference, reason string) (*PaymentDTO, error) {
	if !actor.Admin {
		return nil, domain.NewForbiddenError("admin access required")
	}

	s.logger.Info("refunding payment",
		zap.String("reference", reference),
		zap.String("reason", reason),
		zap.String("actor", actor.UserID.String()),
	)

	p, err := s.workflow.Refund(ctx, reference, strings.TrimSpace(reason))
	if err != nil {
		s.logger.Error("failed to refund payment", zap.Error(err))
		return nil, err
	}

	dto := toPaymentDTO(p)
	return &dto, nil
}

// HandleBookingChanged keeps the local booking snapshot current.
func (s *PaymentService) HandleBookingChanged(ctx context.Context, event events.BookingEvent) error {
	b, err := bookingFromEvent(event)
	if err != nil {
		return err
	}

	s.logger.Info("handling booking event",
		zap.String("booking_id", b.ID.String()),
		zap.String("status", b.Status),
	)
	return s.store.Bookings().Upsert(ctx, b)
}

// HandlePaymentRequested starts a payment on behalf of the booking owner.
// A redelivered request for a booking that already has a pending attempt is
// skipped.
func (s *PaymentService) HandlePaymentRequested(ctx context.Context, event events.BookingPaymentRequestedEvent) error {
	s.logger.Info("handling payment requested event",
		zap.String("booking_id", event.BookingID.String()),
	)

	_, err := s.InitiatePayment(ctx, auth.Actor{UserID: event.UserID}, event.BookingID, InitiatePaymentRequest{
		Amount:          event.Amount,
		Currency:        event.Currency,
		Method:          event.Method,
		PayerIdentifier: event.PayerIdentifier,
	})
	if errors.Is(err, domain.ErrConflict) {
		s.logger.Warn("payment request skipped",
			zap.String("booking_id", event.BookingID.String()),
			zap.Error(err),
		)
		return nil
	}
	return err
}

// loadAuthorized loads a payment the actor may see.
func (s *PaymentService) loadAuthorized(ctx context.Context, actor auth.Actor, reference string) (*payment.Payment, error) {
	p, err := s.store.Payments().FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, p); err != nil {
		return nil, err
	}
	return p, nil
}

// authorize admits admins, the initiator and the booking owner.
func (s *PaymentService) authorize(ctx context.Context, actor auth.Actor, p *payment.Payment) error {
	if actor.CanAccess(p.InitiatedBy()) {
		return nil
	}
	b, err := s.store.Bookings().FindByID(ctx, p.BookingID())
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if b != nil && actor.CanAccess(b.UserID) {
		return nil
	}
	return domain.NewForbiddenError("you cannot access this payment")
}

// --- Admin methods ---

// PaymentStatsDTO holds payment statistics for the admin dashboard.
type PaymentStatsDTO struct {
	RevenueByCurrency map[string]string `json:"revenue_by_currency"`
	TotalPayments     int64             `json:"total_payments"`
	ByStatus          map[string]int64  `json:"by_status"`
}

// ListAllPayments returns a paginated list of all payments (admin).
func (s *PaymentService) ListAllPayments(ctx context.Context, page, limit int) ([]PaymentDTO, int64, error) {
	payments, total, err := s.store.Payments().ListAll(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}

	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	return dtos, total, nil
}

// GetPaymentStats returns aggregate payment statistics (admin).
func (s *PaymentService) GetPaymentStats(ctx context.Context) (*PaymentStatsDTO, error) {
	revenue, counts, err := s.store.Payments().GetRevenueStats(ctx)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, c := range counts {
		total += c
	}
	byCurrency := make(map[string]string, len(revenue))
	for cur, amount := range revenue {
		byCurrency[cur] = amount.StringFixed(2)
	}

	return &PaymentStatsDTO{
		RevenueByCurrency: byCurrency,
		TotalPayments:     total,
		ByStatus:          counts,
	}, nil
}

func bookingFromEvent(e events.BookingEvent) (*booking.Booking, error) {
	if e.BookingID == uuid.Nil {
		return nil, domain.NewValidationError("booking event without booking id")
	}
	b := &booking.Booking{
		ID:                e.BookingID,
		Reference:         e.BookingReference,
		UserID:            e.UserID,
		Destination:       e.Destination,
		NumberOfTravelers: e.NumberOfTravelers,
		Currency:          strings.ToUpper(e.Currency),
		TravelDate:        e.TravelDate,
		Status:            e.Status,
		UpdatedAt:         e.OccurredAt,
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = time.Now().UTC()
	}
	for _, f := range []struct {
		raw string
		dst *decimal.Decimal
	}{
		{e.TotalAmount, &b.TotalAmount},
		{e.TaxAmount, &b.TaxAmount},
		{e.DiscountAmount, &b.DiscountAmount},
	} {
		if f.raw == "" {
			continue
		}
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return nil, domain.NewValidationError(fmt.Sprintf("invalid amount %q in booking event", f.raw))
		}
		*f.dst = v
	}
	return b, nil
}

// toPaymentDTO maps a domain Payment to a PaymentDTO.
func toPaymentDTO(p *payment.Payment) PaymentDTO {
	return PaymentDTO{
		ID:                   p.ID(),
		Reference:            p.Reference(),
		BookingID:            p.BookingID(),
		InitiatedBy:          p.InitiatedBy(),
		Amount:               p.Amount().StringFixed(2),
		Currency:             p.Currency(),
		Method:               string(p.Method()),
		PayerIdentifier:      p.PayerIdentifier(),
		Status:               string(p.Status()),
		GatewayTransactionID: p.GatewayTransactionID(),
		GatewayStatus:        p.GatewayResponse(),
		FailureReason:        p.FailureReason(),
		PaidAt:               p.PaidAt(),
		RefundedAt:           p.RefundedAt(),
		RefundReason:         p.RefundReason(),
		Version:              p.Version(),
		CreatedAt:            p.CreatedAt(),
		UpdatedAt:            p.UpdatedAt(),
	}
}

func (s *PaymentService) toReceiptDTO(r *receipt.Receipt) ReceiptDTO {
	dto := ReceiptDTO{
		ID:               r.ID(),
		ReceiptNumber:    r.Number(),
		PaymentID:        r.PaymentID(),
		PaymentReference: r.PaymentReference(),
		BookingID:        r.BookingID(),
		Data:             json.RawMessage(r.Data()),
		GeneratedAt:      r.GeneratedAt(),
	}
	if s.qr != nil {
		dto.VerificationURL = s.qr.VerificationURL(r.Number())
	}
	return dto
}
