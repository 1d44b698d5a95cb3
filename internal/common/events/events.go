// Package events defines the topics, event types and payloads exchanged with
// the booking service and downstream consumers of payment outcomes.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Topics.
const (
	TopicBookingEvents = "booking.events"
	TopicPaymentEvents = "payment.events"
)

// Event types consumed from the booking service.
const (
	BookingCreated          = "booking.created"
	BookingUpdated          = "booking.updated"
	BookingPaymentRequested = "booking.payment_requested"
)

// Event types produced by this service.
const (
	PaymentInitiated  = "payment.initiated"
	PaymentSuccessful = "payment.successful"
	PaymentFailed     = "payment.failed"
	PaymentRefunded   = "payment.refunded"
	ReceiptIssued     = "receipt.issued"
)

// BookingEvent carries the booking fields the payment service keeps locally.
// It is the payload of both booking.created and booking.updated.
type BookingEvent struct {
	BookingID         uuid.UUID `json:"booking_id"`
	BookingReference  string    `json:"booking_reference"`
	UserID            uuid.UUID `json:"user_id"`
	Destination       string    `json:"destination"`
	NumberOfTravelers int       `json:"number_of_travelers"`
	TotalAmount       string    `json:"total_amount"`
	TaxAmount         string    `json:"tax_amount"`
	DiscountAmount    string    `json:"discount_amount"`
	Currency          string    `json:"currency"`
	TravelDate        time.Time `json:"travel_date"`
	Status            string    `json:"status"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// BookingPaymentRequestedEvent asks for a payment attempt on behalf of the booking owner.
type BookingPaymentRequestedEvent struct {
	BookingID       uuid.UUID `json:"booking_id"`
	UserID          uuid.UUID `json:"user_id"`
	Amount          string    `json:"amount"`
	Currency        string    `json:"currency"`
	Method          string    `json:"method"`
	PayerIdentifier string    `json:"payer_identifier"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// PaymentInitiatedEvent is published once the provider accepted a request-to-pay.
type PaymentInitiatedEvent struct {
	PaymentID  uuid.UUID `json:"payment_id"`
	Reference  string    `json:"reference"`
	BookingID  uuid.UUID `json:"booking_id"`
	Amount     string    `json:"amount"`
	Currency   string    `json:"currency"`
	Method     string    `json:"method"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PaymentSuccessfulEvent is published when funds are confirmed.
type PaymentSuccessfulEvent struct {
	PaymentID     uuid.UUID `json:"payment_id"`
	Reference     string    `json:"reference"`
	BookingID     uuid.UUID `json:"booking_id"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	TransactionID string    `json:"transaction_id,omitempty"`
	PaidAt        time.Time `json:"paid_at"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// PaymentFailedEvent is published when an attempt reaches failed.
type PaymentFailedEvent struct {
	PaymentID  uuid.UUID `json:"payment_id"`
	Reference  string    `json:"reference"`
	BookingID  uuid.UUID `json:"booking_id"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PaymentRefundedEvent is published after an administrative refund.
type PaymentRefundedEvent struct {
	PaymentID    uuid.UUID `json:"payment_id"`
	Reference    string    `json:"reference"`
	BookingID    uuid.UUID `json:"booking_id"`
	Amount       string    `json:"amount"`
	Currency     string    `json:"currency"`
	RefundReason string    `json:"refund_reason"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// ReceiptIssuedEvent is published with the receipt number of a settled payment.
type ReceiptIssuedEvent struct {
	ReceiptID     uuid.UUID `json:"receipt_id"`
	ReceiptNumber string    `json:"receipt_number"`
	PaymentID     uuid.UUID `json:"payment_id"`
	BookingID     uuid.UUID `json:"booking_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}
