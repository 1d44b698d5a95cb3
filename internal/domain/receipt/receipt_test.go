package receipt

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wanderlog/service-payment/internal/common/domain"
	"github.com/wanderlog/service-payment/internal/domain/booking"
	"github.com/wanderlog/service-payment/internal/domain/payment"
)

func settledPayment(t *testing.T, bookingID uuid.UUID) *payment.Payment {
	t.Helper()
	p, err := payment.NewPayment(bookingID, uuid.New(), decimal.NewFromInt(5000), "UGX", payment.MethodMobileMoney, "256769010507")
	require.NoError(t, err)
	require.NoError(t, p.MarkSuccessful(payment.GatewayOutcome{TransactionID: "987654321"}))
	return p
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "REC-2026-00001", FormatNumber(2026, 1))
	assert.Equal(t, "REC-2026-12345", FormatNumber(2026, 12345))
	assert.Regexp(t, NumberPattern, FormatNumber(2026, 7))
	assert.NotRegexp(t, NumberPattern, "REC-2026-100000")
}

func TestNew_RejectsSequenceBeyondFiveDigits(t *testing.T) {
	p := settledPayment(t, uuid.New())
	now := time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC)

	r, err := New(p, nil, MaxSequence, now)
	require.NoError(t, err)
	assert.Equal(t, "REC-2026-99999", r.Number())

	_, err = New(p, nil, MaxSequence+1, now)
	assert.ErrorIs(t, err, ErrSequenceExhausted)
}

func TestNew_RequiresSuccessfulPayment(t *testing.T) {
	p, err := payment.NewPayment(uuid.New(), uuid.New(), decimal.NewFromInt(10), "UGX", payment.MethodMobileMoney, "256700000000")
	require.NoError(t, err)

	_, err = New(p, nil, 1, time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPrecondition))
}

func TestNew_SnapshotIsFrozen(t *testing.T) {
	b := &booking.Booking{
		ID:                uuid.New(),
		Reference:         "TRV-8F2K1A",
		Destination:       "Bwindi",
		NumberOfTravelers: 2,
		TotalAmount:       decimal.NewFromInt(5000),
		Currency:          "UGX",
		TravelDate:        time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
	}
	p := settledPayment(t, b.ID)
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	r, err := New(p, b, 42, now)
	require.NoError(t, err)
	assert.Equal(t, "REC-2026-00042", r.Number())
	assert.Equal(t, p.ID(), r.PaymentID())

	b.Destination = "Zanzibar"
	b.NumberOfTravelers = 5

	snap, err := r.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "Bwindi", snap.Destination)
	assert.Equal(t, 2, snap.NumberOfTravelers)
	assert.Equal(t, "5000.00", snap.Amount)
	assert.Equal(t, "********0507", snap.Payer)
	assert.Equal(t, "987654321", snap.TransactionID)

	data := r.Data()
	data[0] = 'X'
	assert.NotEqual(t, data[0], r.Data()[0])
}

func TestNew_WithoutBookingSnapshot(t *testing.T) {
	p := settledPayment(t, uuid.New())

	r, err := New(p, nil, 3, time.Now())
	require.NoError(t, err)

	snap, err := r.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, snap.BookingReference)
	assert.Equal(t, p.BookingID().String(), snap.BookingID)
}
