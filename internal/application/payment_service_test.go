package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wanderlog/service-payment/internal/adapter"
	"github.com/wanderlog/service-payment/internal/common/auth"
	"github.com/wanderlog/service-payment/internal/common/domain"
	"github.com/wanderlog/service-payment/internal/common/events"
	"github.com/wanderlog/service-payment/internal/domain/payment"
	"go.uber.org/mock/gomock"
)

func TestInitiatePayment_DefaultsToBookingTotal(t *testing.T) {
	f := newServiceFixture(t)
	owner := auth.Actor{UserID: f.booking.UserID}
	f.gateway.EXPECT().SubmitPayment(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req adapter.SubmitRequest) error {
			assert.Equal(t, f.booking.Reference, req.ExternalID)
			return nil
		})

	dto, err := f.service.InitiatePayment(context.Background(), owner, f.booking.ID, mobileMoneyRequest())
	require.NoError(t, err)

	assert.Equal(t, "pending", dto.Status)
	assert.Equal(t, "75000.00", dto.Amount)
	assert.Equal(t, "UGX", dto.Currency)
	assert.Equal(t, owner.UserID, dto.InitiatedBy)
}

func TestInitiatePayment_Rejections(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	owner := auth.Actor{UserID: f.booking.UserID}

	_, err := f.service.InitiatePayment(ctx, owner, uuid.New(), mobileMoneyRequest())
	assert.True(t, errors.Is(err, domain.ErrNotFound), "unknown booking")

	_, err = f.service.InitiatePayment(ctx, auth.Actor{UserID: uuid.New()}, f.booking.ID, mobileMoneyRequest())
	assert.True(t, errors.Is(err, domain.ErrForbidden), "stranger")

	req := mobileMoneyRequest()
	req.Currency = "KES"
	_, err = f.service.InitiatePayment(ctx, owner, f.booking.ID, req)
	assert.True(t, errors.Is(err, domain.ErrValidation), "currency mismatch")

	req = mobileMoneyRequest()
	req.Amount = "lots"
	_, err = f.service.InitiatePayment(ctx, owner, f.booking.ID, req)
	assert.True(t, errors.Is(err, domain.ErrValidation), "bad amount")

	cancelled := f.addBooking(t, owner.UserID, "cancelled")
	_, err = f.service.InitiatePayment(ctx, owner, cancelled.ID, mobileMoneyRequest())
	assert.True(t, errors.Is(err, domain.ErrConflict), "cancelled booking")
}

func TestInitiatePayment_AdminMayPayForAnyBooking(t *testing.T) {
	f := newServiceFixture(t)
	f.gateway.EXPECT().SubmitPayment(gomock.Any(), gomock.Any()).Return(nil)

	admin := auth.Actor{UserID: uuid.New(), Admin: true}
	dto, err := f.service.InitiatePayment(context.Background(), admin, f.booking.ID, mobileMoneyRequest())
	require.NoError(t, err)
	assert.Equal(t, "pending", dto.Status)
}

func TestInitiatePayment_ConflictWhilePending(t *testing.T) {
	f := newServiceFixture(t)
	owner := auth.Actor{UserID: f.booking.UserID}
	f.gateway.EXPECT().SubmitPayment(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	first, err := f.service.InitiatePayment(context.Background(), owner, f.booking.ID, mobileMoneyRequest())
	require.NoError(t, err)

	_, err = f.service.InitiatePayment(context.Background(), owner, f.booking.ID, mobileMoneyRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.Contains(t, err.Error(), first.Reference)
}

func TestGetPaymentStatus_ResolvesAndIssuesReceipt(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	owner := auth.Actor{UserID: f.booking.UserID}
	f.gateway.EXPECT().SubmitPayment(gomock.Any(), gomock.Any()).Return(nil)

	created, err := f.service.InitiatePayment(ctx, owner, f.booking.ID, mobileMoneyRequest())
	require.NoError(t, err)

	_, err = f.service.GetPaymentStatus(ctx, auth.Actor{UserID: uuid.New()}, created.Reference)
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	f.gateway.EXPECT().QueryStatus(gomock.Any(), created.Reference).
		Return(&adapter.StatusResult{Status: payment.StatusSuccessful, ProviderStatus: "SUCCESSFUL", TransactionID: "42"}, nil)

	dto, err := f.service.GetPaymentStatus(ctx, owner, created.Reference)
	require.NoError(t, err)
	assert.Equal(t, "successful", dto.Status)
	assert.NotNil(t, dto.PaidAt)

	rec, err := f.service.GetReceipt(ctx, owner, created.Reference)
	require.NoError(t, err)
	assert.Regexp(t, `^REC-\d{4}-\d{5}$`, rec.ReceiptNumber)
	assert.Equal(t, "https://wanderlog.test/receipts/"+rec.ReceiptNumber, rec.VerificationURL)
	assert.Contains(t, string(rec.Data), f.booking.Reference)

	png, err := f.service.ReceiptQR(ctx, owner, rec.ReceiptNumber)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = f.service.ReceiptQR(ctx, owner, "not-a-receipt")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestGetReceipt_NotFoundBeforeSuccess(t *testing.T) {
	f := newServiceFixture(t)
	owner := auth.Actor{UserID: f.booking.UserID}
	f.gateway.EXPECT().SubmitPayment(gomock.Any(), gomock.Any()).Return(nil)

	created, err := f.service.InitiatePayment(context.Background(), owner, f.booking.ID, mobileMoneyRequest())
	require.NoError(t, err)

	_, err = f.service.GetReceipt(context.Background(), owner, created.Reference)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestListBookingPayments_LatestFirst(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	owner := auth.Actor{UserID: f.booking.UserID}

	f.gateway.EXPECT().SubmitPayment(gomock.Any(), gomock.Any()).Return(&adapter.GatewayError{Op: "submit_payment", Kind: adapter.KindRejected, StatusCode: 400})
	failed, err := f.service.InitiatePayment(ctx, owner, f.booking.ID, mobileMoneyRequest())
	require.NoError(t, err)
	assert.Equal(t, "failed", failed.Status)

	time.Sleep(2 * time.Millisecond)
	f.gateway.EXPECT().SubmitPayment(gomock.Any(), gomock.Any()).Return(nil)
	second, err := f.service.InitiatePayment(ctx, owner, f.booking.ID, mobileMoneyRequest())
	require.NoError(t, err)

	list, err := f.service.ListBookingPayments(ctx, owner, f.booking.ID)
	require.NoError(t, err)
	require.Len(t, list.Payments, 2)
	require.NotNil(t, list.LatestPayment)
	assert.Equal(t, second.Reference, list.LatestPayment.Reference)

	_, err = f.service.ListBookingPayments(ctx, auth.Actor{UserID: uuid.New()}, f.booking.ID)
	assert.True(t, errors.Is(err, domain.ErrForbidden))
}

func TestRefundPayment_AdminOnly(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	owner := auth.Actor{UserID: f.booking.UserID}
	f.gateway.EXPECT().SubmitPayment(gomock.Any(), gomock.Any()).Return(nil)
	f.gateway.EXPECT().QueryStatus(gomock.Any(), gomock.Any()).
		Return(&adapter.StatusResult{Status: payment.StatusSuccessful, ProviderStatus: "SUCCESSFUL"}, nil)

	created, err := f.service.InitiatePayment(ctx, owner, f.booking.ID, mobileMoneyRequest())
	require.NoError(t, err)
	_, err = f.service.GetPaymentStatus(ctx, owner, created.Reference)
	require.NoError(t, err)

	_, err = f.service.RefundPayment(ctx, owner, created.Reference, "changed plans")
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	dto, err := f.service.RefundPayment(ctx, auth.Actor{UserID: uuid.New(), Admin: true}, created.Reference, "changed plans")
	require.NoError(t, err)
	assert.Equal(t, "refunded", dto.Status)
	assert.Equal(t, "changed plans", dto.RefundReason)

	stats, err := f.service.GetPaymentStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalPayments)
	assert.Equal(t, int64(1), stats.ByStatus["refunded"])
	assert.Empty(t, stats.RevenueByCurrency)
}

func TestHandleBookingChanged_UpsertsSnapshot(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	id := uuid.New()

	err := f.service.HandleBookingChanged(ctx, events.BookingEvent{
		BookingID:        id,
		BookingReference: "TRV-ABC123",
		UserID:           uuid.New(),
		TotalAmount:      "1200.50",
		Currency:         "ugx",
		Status:           "pending",
		OccurredAt:       time.Now().UTC(),
	})
	require.NoError(t, err)

	b, err := f.store.Bookings().FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "UGX", b.Currency)
	assert.Equal(t, "1200.5", b.TotalAmount.String())

	err = f.service.HandleBookingChanged(ctx, events.BookingEvent{BookingID: id, TotalAmount: "abc"})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestHandlePaymentRequested_SkipsDuplicates(t *testing.T) {
	f := newServiceFixture(t)
	f.gateway.EXPECT().SubmitPayment(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	evt := events.BookingPaymentRequestedEvent{
		BookingID:       f.booking.ID,
		UserID:          f.booking.UserID,
		Method:          "mobile_money",
		PayerIdentifier: "256769010507",
	}
	require.NoError(t, f.service.HandlePaymentRequested(context.Background(), evt))
	require.NoError(t, f.service.HandlePaymentRequested(context.Background(), evt))

	pending, err := f.store.Payments().FindPendingByBooking(context.Background(), f.booking.ID)
	require.NoError(t, err)
	require.NotNil(t, pending)
}

func TestInitiatePaymentRequest_AcceptsBothPayerKeys(t *testing.T) {
	var snake InitiatePaymentRequest
	require.NoError(t, json.Unmarshal([]byte(`{"method":"mobile_money","payer_identifier":"256769010507"}`), &snake))
	assert.Equal(t, "256769010507", snake.PayerIdentifier)

	var camel InitiatePaymentRequest
	require.NoError(t, json.Unmarshal([]byte(`{"amount":"20.00","method":"mobile_money","payerIdentifier":"256769010507"}`), &camel))
	assert.Equal(t, "256769010507", camel.PayerIdentifier)
	assert.Equal(t, "20.00", camel.Amount)
	assert.Equal(t, "mobile_money", camel.Method)
}
