package application

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/wanderlog/service-payment/internal/adapter"
	"github.com/wanderlog/service-payment/internal/adapter/mocks"
	"github.com/wanderlog/service-payment/internal/common/kafka"
	"github.com/wanderlog/service-payment/internal/domain/booking"
	"github.com/wanderlog/service-payment/internal/domain/payment"
	"github.com/wanderlog/service-payment/internal/repository"
	"github.com/wanderlog/service-payment/internal/saga"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

type serviceFixture struct {
	store    *repository.BoltStore
	gateway  *mocks.MockGateway
	workflow *saga.PaymentWorkflow
	service  *PaymentService
	booking  *booking.Booking
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	store, err := repository.NewBoltStore(filepath.Join(t.TempDir(), "service.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	gw := mocks.NewMockGateway(ctrl)
	logger := zap.NewNop()
	registry := adapter.NewRegistry().Register(payment.MethodMobileMoney, gw)
	wf := saga.NewPaymentWorkflow(store, registry, saga.NewReceiptIssuer(logger), kafka.NewNoopPublisher(logger), saga.WorkflowOptions{}, logger)
	svc := NewPaymentService(store, wf, adapter.NewReceiptQRGenerator("https://wanderlog.test", 128), logger)

	f := &serviceFixture{store: store, gateway: gw, workflow: wf, service: svc}
	f.booking = f.addBooking(t, uuid.New(), "confirmed")
	return f
}

func (f *serviceFixture) addBooking(t *testing.T, owner uuid.UUID, status string) *booking.Booking {
	t.Helper()
	b := &booking.Booking{
		ID:                uuid.New(),
		Reference:         "TRV-" + uuid.NewString()[:6],
		UserID:            owner,
		Destination:       "Zanzibar",
		NumberOfTravelers: 1,
		TotalAmount:       decimal.NewFromInt(75000),
		Currency:          "UGX",
		Status:            status,
		UpdatedAt:         time.Now().UTC(),
	}
	require.NoError(t, f.store.Bookings().Upsert(context.Background(), b))
	return b
}

func mobileMoneyRequest() InitiatePaymentRequest {
	return InitiatePaymentRequest{
		Method:          string(payment.MethodMobileMoney),
		PayerIdentifier: "256769010507",
	}
}
