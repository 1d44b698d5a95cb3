package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentRepository defines the persistence contract for Payment aggregates.
type PaymentRepository interface {
	// FindByID retrieves a payment by its unique ID.
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// FindByReference retrieves a payment by its idempotency reference.
	FindByReference(ctx context.Context, reference string) (*Payment, error)

	// FindByReferenceForUpdate is FindByReference holding a row lock until the
	// surrounding transaction ends.
	FindByReferenceForUpdate(ctx context.Context, reference string) (*Payment, error)

	// ListByBooking returns every attempt for a booking, newest first.
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*Payment, error)

	// FindPendingByBooking returns the booking's non-terminal attempt, or nil.
	FindPendingByBooking(ctx context.Context, bookingID uuid.UUID) (*Payment, error)

	// ListPendingCreatedBefore returns pending attempts older than cutoff, oldest first.
	ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Payment, error)

	// ListAll retrieves all payments with pagination (admin).
	ListAll(ctx context.Context, page, limit int) ([]*Payment, int64, error)

	// GetRevenueStats returns settled revenue per currency and counts per status (admin).
	GetRevenueStats(ctx context.Context) (revenue map[string]decimal.Decimal, countByStatus map[string]int64, err error)

	// Save persists a new payment aggregate. A second pending attempt for the
	// same booking is rejected with a conflict.
	Save(ctx context.Context, payment *Payment) error

	// Update persists changes to an existing payment aggregate with optimistic locking.
	Update(ctx context.Context, payment *Payment) error
}
