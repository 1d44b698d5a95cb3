package payment

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wanderlog/service-payment/internal/common/domain"
)

// Status is the lifecycle state of a payment attempt.
type Status string

const (
	StatusPending    Status = "pending"
	StatusSuccessful Status = "successful"
	StatusFailed     Status = "failed"
	StatusRefunded   Status = "refunded"
)

// IsTerminal reports whether no automatic transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusSuccessful || s == StatusFailed || s == StatusRefunded
}

// Method is the payment channel.
type Method string

const (
	MethodCreditCard   Method = "credit_card"
	MethodDebitCard    Method = "debit_card"
	MethodPayPal       Method = "paypal"
	MethodBankTransfer Method = "bank_transfer"
	MethodMobileMoney  Method = "mobile_money"
)

// Valid reports whether m is a known channel.
func (m Method) Valid() bool {
	switch m {
	case MethodCreditCard, MethodDebitCard, MethodPayPal, MethodBankTransfer, MethodMobileMoney:
		return true
	}
	return false
}

var (
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
	msisdnPattern   = regexp.MustCompile(`^[0-9]{8,15}$`)

	// maxAmount is the first value numeric(12,2) cannot hold.
	maxAmount = decimal.New(1, 10)
)

// Payment is one attempt to collect money for a booking. Amount, currency,
// method and payer are fixed at creation; only the resolution fields change.
type Payment struct {
	id                   uuid.UUID
	reference            string
	bookingID            uuid.UUID
	initiatedBy          uuid.UUID
	amount               decimal.Decimal
	currency             string
	method               Method
	payerIdentifier      string
	status               Status
	gatewayTransactionID string
	gatewayResponse      string
	gatewayData          []byte
	failureReason        string
	paidAt               *time.Time
	refundedAt           *time.Time
	refundReason         string
	version              int64
	createdAt            time.Time
	updatedAt            time.Time
}

// NewPayment validates the request and creates a pending attempt with a
// fresh idempotency reference.
func NewPayment(
	bookingID, initiatedBy uuid.UUID,
	amount decimal.Decimal,
	currency string,
	method Method,
	payerIdentifier string,
) (*Payment, error) {
	if bookingID == uuid.Nil {
		return nil, domain.NewValidationError("booking id is required")
	}
	if !amount.IsPositive() {
		return nil, domain.NewValidationError("amount must be greater than zero")
	}
	if amount.GreaterThanOrEqual(maxAmount) {
		return nil, domain.NewValidationError("amount must have at most 10 integer digits")
	}
	if !amount.Equal(amount.Round(2)) {
		return nil, domain.NewValidationError("amount must have at most two decimal places")
	}
	if !currencyPattern.MatchString(currency) {
		return nil, domain.NewValidationError("currency must be a three-letter ISO 4217 code")
	}
	if !method.Valid() {
		return nil, domain.NewValidationError("unsupported payment method '" + string(method) + "'")
	}
	if method == MethodMobileMoney && !msisdnPattern.MatchString(payerIdentifier) {
		return nil, domain.NewValidationError("payer identifier must be an MSISDN of 8 to 15 digits")
	}

	now := time.Now().UTC()
	return &Payment{
		id:              uuid.New(),
		reference:       uuid.NewString(),
		bookingID:       bookingID,
		initiatedBy:     initiatedBy,
		amount:          amount.Round(2),
		currency:        currency,
		method:          method,
		payerIdentifier: payerIdentifier,
		status:          StatusPending,
		version:         1,
		createdAt:       now,
		updatedAt:       now,
	}, nil
}

// --- Getters ---

func (p *Payment) ID() uuid.UUID                { return p.id }
func (p *Payment) Reference() string            { return p.reference }
func (p *Payment) BookingID() uuid.UUID         { return p.bookingID }
func (p *Payment) InitiatedBy() uuid.UUID       { return p.initiatedBy }
func (p *Payment) Amount() decimal.Decimal      { return p.amount }
func (p *Payment) Currency() string             { return p.currency }
func (p *Payment) Method() Method               { return p.method }
func (p *Payment) PayerIdentifier() string      { return p.payerIdentifier }
func (p *Payment) Status() Status               { return p.status }
func (p *Payment) GatewayTransactionID() string { return p.gatewayTransactionID }
func (p *Payment) GatewayResponse() string      { return p.gatewayResponse }
func (p *Payment) GatewayData() []byte          { return p.gatewayData }
func (p *Payment) FailureReason() string        { return p.failureReason }
func (p *Payment) PaidAt() *time.Time           { return p.paidAt }
func (p *Payment) RefundedAt() *time.Time       { return p.refundedAt }
func (p *Payment) RefundReason() string         { return p.refundReason }
func (p *Payment) Version() int64               { return p.version }
func (p *Payment) CreatedAt() time.Time         { return p.createdAt }
func (p *Payment) UpdatedAt() time.Time         { return p.updatedAt }

// IsTerminal reports whether the attempt has settled.
func (p *Payment) IsTerminal() bool { return p.status.IsTerminal() }

// GatewayOutcome is what the provider reported for this attempt.
type GatewayOutcome struct {
	TransactionID string
	Response      string
	Data          []byte
	Reason        string
}

// --- Behavior / State Transitions ---

// MarkSuccessful settles a pending attempt. paidAt is set here and nowhere else.
func (p *Payment) MarkSuccessful(outcome GatewayOutcome) error {
	if p.status != StatusPending {
		return domain.NewInvalidStateError(string(p.status), string(StatusSuccessful))
	}
	now := time.Now().UTC()
	p.status = StatusSuccessful
	p.applyOutcome(outcome)
	p.paidAt = &now
	p.updatedAt = now
	return nil
}

// MarkFailed closes a pending attempt. The reason is kept for audit.
func (p *Payment) MarkFailed(outcome GatewayOutcome) error {
	if p.status != StatusPending {
		return domain.NewInvalidStateError(string(p.status), string(StatusFailed))
	}
	p.status = StatusFailed
	p.applyOutcome(outcome)
	p.failureReason = outcome.Reason
	p.updatedAt = time.Now().UTC()
	return nil
}

// Refund records an administrative refund of a settled attempt.
func (p *Payment) Refund(reason string) error {
	if p.status != StatusSuccessful {
		return domain.NewInvalidStateError(string(p.status), string(StatusRefunded))
	}
	if reason == "" {
		return domain.NewValidationError("refund reason is required")
	}
	now := time.Now().UTC()
	p.status = StatusRefunded
	p.refundedAt = &now
	p.refundReason = reason
	p.updatedAt = now
	return nil
}

func (p *Payment) applyOutcome(o GatewayOutcome) {
	if o.TransactionID != "" {
		p.gatewayTransactionID = o.TransactionID
	}
	if o.Response != "" {
		p.gatewayResponse = o.Response
	}
	if len(o.Data) > 0 {
		p.gatewayData = o.Data
	}
}

// IncrementVersion bumps the version for optimistic locking.
func (p *Payment) IncrementVersion() {
	p.version++
	p.updatedAt = time.Now().UTC()
}

// --- Reconstitution (used by repository to rebuild from persistence) ---

// Reconstitute rebuilds a Payment from persisted data.
func Reconstitute(
	id uuid.UUID,
	reference string,
	bookingID, initiatedBy uuid.UUID,
	amount decimal.Decimal,
	currency string,
	method Method,
	payerIdentifier string,
	status Status,
	gatewayTransactionID, gatewayResponse string,
	gatewayData []byte,
	failureReason string,
	paidAt, refundedAt *time.Time,
	refundReason string,
	version int64,
	createdAt, updatedAt time.Time,
) *Payment {
	return &Payment{
		id:                   id,
		reference:            reference,
		bookingID:            bookingID,
		initiatedBy:          initiatedBy,
		amount:               amount,
		currency:             currency,
		method:               method,
		payerIdentifier:      payerIdentifier,
		status:               status,
		gatewayTransactionID: gatewayTransactionID,
		gatewayResponse:      gatewayResponse,
		gatewayData:          gatewayData,
		failureReason:        failureReason,
		paidAt:               paidAt,
		refundedAt:           refundedAt,
		refundReason:         refundReason,
		version:              version,
		createdAt:            createdAt,
		updatedAt:            updatedAt,
	}
}
