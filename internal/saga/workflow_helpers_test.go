package saga

import (
	"context"
	"path/filepath"
	"sync"
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
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

// recordingPublisher keeps every published event in memory.
type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.CloudEvent
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, _ string, ce kafka.CloudEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ce)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type workflowFixture struct {
	store     *repository.BoltStore
	gateway   *mocks.MockGateway
	publisher *recordingPublisher
	workflow  *PaymentWorkflow
	booking   *booking.Booking
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	store, err := repository.NewBoltStore(filepath.Join(t.TempDir(), "workflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	b := &booking.Booking{
		ID:                uuid.New(),
		Reference:         "TRV-7F3K2Q",
		UserID:            uuid.New(),
		Destination:       "Kampala",
		NumberOfTravelers: 2,
		TotalAmount:       decimal.NewFromInt(5000),
		Currency:          "UGX",
		Status:            "confirmed",
		UpdatedAt:         time.Now().UTC(),
	}
	require.NoError(t, store.Bookings().Upsert(context.Background(), b))

	gw := mocks.NewMockGateway(ctrl)
	pub := &recordingPublisher{}
	registry := adapter.NewRegistry().Register(payment.MethodMobileMoney, gw)
	wf := NewPaymentWorkflow(store, registry, NewReceiptIssuer(zap.NewNop()), pub, WorkflowOptions{
		ResolveTimeout: 5 * time.Second,
		PayerMessage:   "Travel booking payment",
		PayeeNote:      "Booking",
	}, zap.NewNop())

	return &workflowFixture{store: store, gateway: gw, publisher: pub, workflow: wf, booking: b}
}

func (f *workflowFixture) command() InitiateCommand {
	return InitiateCommand{
		BookingID:        f.booking.ID,
		BookingReference: f.booking.Reference,
		InitiatedBy:      f.booking.UserID,
		Amount:           decimal.NewFromInt(5000),
		Currency:         "UGX",
		Method:           payment.MethodMobileMoney,
		PayerIdentifier:  "256769010507",
	}
}

// initiatePending runs a successful submission and returns the pending record.
func (f *workflowFixture) initiatePending(t *testing.T) *payment.Payment {
	t.Helper()
	f.gateway.EXPECT().SubmitPayment(gomock.Any(), gomock.Any()).Return(nil)
	p, err := f.workflow.Initiate(context.Background(), f.command())
	require.NoError(t, err)
	require.Equal(t, payment.StatusPending, p.Status())
	return p
}

func statusResult(status payment.Status, provider string) *adapter.StatusResult {
	r := &adapter.StatusResult{
		Status:         status,
		ProviderStatus: provider,
		Raw:            []byte(`{"status":"` + provider + `"}`),
	}
	if status == payment.StatusSuccessful {
		r.TransactionID = "1502933512"
	}
	if status == payment.StatusFailed {
		r.Reason = "APPROVAL_REJECTED"
	}
	return r
}
