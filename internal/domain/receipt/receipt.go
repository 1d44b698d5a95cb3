package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/wanderlog/service-payment/internal/common/domain"
	"github.com/wanderlog/service-payment/internal/domain/booking"
	"github.com/wanderlog/service-payment/internal/domain/payment"
)

// NumberPattern matches every receipt number this service issues.
var NumberPattern = regexp.MustCompile(`^REC-\d{4}-\d{5}$`)

// MaxSequence is the last per-year sequence that fits REC-<year>-NNNNN.
const MaxSequence = 99999

// ErrSequenceExhausted is returned once a year has issued MaxSequence receipts.
var ErrSequenceExhausted = errors.New("receipt sequence exhausted for the year")

// FormatNumber renders the per-year sequence as REC-<year>-NNNNN.
func FormatNumber(year, seq int) string {
	return fmt.Sprintf("REC-%d-%05d", year, seq)
}

// Snapshot freezes the booking and payment facts at issuance.
type Snapshot struct {
	ReceiptNumber     string     `json:"receipt_number"`
	PaymentReference  string     `json:"payment_reference"`
	TransactionID     string     `json:"transaction_id,omitempty"`
	Amount            string     `json:"amount"`
	Currency          string     `json:"currency"`
	Method            string     `json:"method"`
	Payer             string     `json:"payer,omitempty"`
	PaidAt            time.Time  `json:"paid_at"`
	BookingID         string     `json:"booking_id"`
	BookingReference  string     `json:"booking_reference,omitempty"`
	Destination       string     `json:"destination,omitempty"`
	NumberOfTravelers int        `json:"number_of_travelers,omitempty"`
	TravelDate        *time.Time `json:"travel_date,omitempty"`
	BookingTotal      string     `json:"booking_total,omitempty"`
	TaxAmount         string     `json:"tax_amount,omitempty"`
	DiscountAmount    string     `json:"discount_amount,omitempty"`
}

// Receipt is the customer-facing proof of a successful payment.
type Receipt struct {
	id               uuid.UUID
	number           string
	paymentID        uuid.UUID
	paymentReference string
	bookingID        uuid.UUID
	data             []byte
	generatedAt      time.Time
}

// New builds a receipt for a successful payment. b may be nil when the
// booking read model has not caught up yet.
func New(p *payment.Payment, b *booking.Booking, seq int, now time.Time) (*Receipt, error) {
	if p.Status() != payment.StatusSuccessful {
		return nil, domain.NewPreconditionError(
			fmt.Sprintf("receipt requires a successful payment, payment %s is %s", p.Reference(), p.Status()))
	}

	if seq < 1 || seq > MaxSequence {
		return nil, fmt.Errorf("%w: sequence %d", ErrSequenceExhausted, seq)
	}

	number := FormatNumber(now.Year(), seq)
	snap := Snapshot{
		ReceiptNumber:    number,
		PaymentReference: p.Reference(),
		TransactionID:    p.GatewayTransactionID(),
		Amount:           p.Amount().StringFixed(2),
		Currency:         p.Currency(),
		Method:           string(p.Method()),
		Payer:            maskIdentifier(p.PayerIdentifier()),
		BookingID:        p.BookingID().String(),
	}
	if p.PaidAt() != nil {
		snap.PaidAt = *p.PaidAt()
	}
	if b != nil {
		travel := b.TravelDate
		snap.BookingReference = b.Reference
		snap.Destination = b.Destination
		snap.NumberOfTravelers = b.NumberOfTravelers
		snap.BookingTotal = b.TotalAmount.StringFixed(2)
		snap.TaxAmount = b.TaxAmount.StringFixed(2)
		snap.DiscountAmount = b.DiscountAmount.StringFixed(2)
		if !travel.IsZero() {
			snap.TravelDate = &travel
		}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode receipt snapshot: %w", err)
	}

	return &Receipt{
		id:               uuid.New(),
		number:           number,
		paymentID:        p.ID(),
		paymentReference: p.Reference(),
		bookingID:        p.BookingID(),
		data:             data,
		generatedAt:      now.UTC(),
	}, nil
}

// maskIdentifier keeps the last four digits of a phone number.
func maskIdentifier(id string) string {
	if len(id) <= 4 {
		return id
	}
	masked := make([]byte, len(id))
	for i := range masked {
		if i < len(id)-4 {
			masked[i] = '*'
		} else {
			masked[i] = id[i]
		}
	}
	return string(masked)
}

func (r *Receipt) ID() uuid.UUID            { return r.id }
func (r *Receipt) Number() string           { return r.number }
func (r *Receipt) PaymentID() uuid.UUID     { return r.paymentID }
func (r *Receipt) PaymentReference() string { return r.paymentReference }
func (r *Receipt) BookingID() uuid.UUID     { return r.bookingID }
func (r *Receipt) GeneratedAt() time.Time   { return r.generatedAt }

// Data returns a copy of the frozen snapshot.
func (r *Receipt) Data() []byte {
	out := make([]byte, len(r.data))
	copy(out, r.data)
	return out
}

// Snapshot decodes the frozen snapshot.
func (r *Receipt) Snapshot() (Snapshot, error) {
	var s Snapshot
	err := json.Unmarshal(r.data, &s)
	return s, err
}

// Reconstitute rebuilds a Receipt from persisted data.
func Reconstitute(id uuid.UUID, number string, paymentID uuid.UUID, paymentReference string, bookingID uuid.UUID, data []byte, generatedAt time.Time) *Receipt {
	return &Receipt{
		id:               id,
		number:           number,
		paymentID:        paymentID,
		paymentReference: paymentReference,
		bookingID:        bookingID,
		data:             data,
		generatedAt:      generatedAt,
	}
}

// Repository defines the persistence contract for receipts.
type Repository interface {
	FindByPaymentID(ctx context.Context, paymentID uuid.UUID) (*Receipt, error)
	FindByNumber(ctx context.Context, number string) (*Receipt, error)

	// NextSequence atomically reserves the next receipt sequence for year, starting at 1.
	NextSequence(ctx context.Context, year int) (int, error)

	// Save persists a new receipt. A second receipt for the same payment is a conflict.
	Save(ctx context.Context, r *Receipt) error
}
