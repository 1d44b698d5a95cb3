// Package booking holds the local read model of bookings owned by the
// booking service. Payments reference bookings but never modify them.
package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StatusCancelled marks a booking that must not be paid for.
const StatusCancelled = "cancelled"

// Booking is a snapshot of the fields needed to authorize and receipt payments.
type Booking struct {
	ID                uuid.UUID
	Reference         string
	UserID            uuid.UUID
	Destination       string
	NumberOfTravelers int
	TotalAmount       decimal.Decimal
	TaxAmount         decimal.Decimal
	DiscountAmount    decimal.Decimal
	Currency          string
	TravelDate        time.Time
	Status            string
	UpdatedAt         time.Time
}

// Payable reports whether new payment attempts may be started.
func (b *Booking) Payable() bool {
	return b.Status != StatusCancelled
}

// Repository stores the booking read model.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Booking, error)

	// Upsert stores b unless a newer snapshot (by UpdatedAt) is already present.
	Upsert(ctx context.Context, b *Booking) error
}
