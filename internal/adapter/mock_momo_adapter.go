package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/wanderlog/service-payment/internal/domain/payment"
	"go.uber.org/zap"
)

// MockMomoAdapter is a development implementation of Gateway.
// It accepts every submission and settles it with a configurable provider status.
type MockMomoAdapter struct {
	logger  *zap.Logger
	outcome string

	mu          sync.Mutex
	submissions map[string]SubmitRequest
}

// NewMockMomoAdapter creates a mock gateway. outcome is the provider status
// reported for every accepted reference (SUCCESSFUL when empty).
func NewMockMomoAdapter(outcome string, logger *zap.Logger) *MockMomoAdapter {
	if outcome == "" {
		outcome = "SUCCESSFUL"
	}
	return &MockMomoAdapter{
		logger:      logger,
		outcome:     outcome,
		submissions: make(map[string]SubmitRequest),
	}
}

// Authenticate returns a throwaway token.
func (m *MockMomoAdapter) Authenticate(ctx context.Context) (string, error) {
	return "mock-token-" + uuid.NewString()[:8], nil
}

// SubmitPayment records the submission. Reusing a reference is rejected the
// way the real provider rejects it.
func (m *MockMomoAdapter) SubmitPayment(ctx context.Context, req SubmitRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.submissions[req.Reference]; dup {
		return &GatewayError{Op: "request_to_pay", Kind: KindRejected, StatusCode: 409,
			Err: fmt.Errorf("duplicated reference id %s", req.Reference)}
	}
	m.submissions[req.Reference] = req

	m.logger.Info("[MOCK MOMO] request-to-pay accepted",
		zap.String("reference", req.Reference),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("currency", req.Currency),
	)
	return nil
}

// QueryStatus reports the configured outcome for known references.
func (m *MockMomoAdapter) QueryStatus(ctx context.Context, reference string) (*StatusResult, error) {
	m.mu.Lock()
	req, ok := m.submissions[reference]
	m.mu.Unlock()
	if !ok {
		return nil, &GatewayError{Op: "request_to_pay_status", Kind: KindNotFound, StatusCode: 404}
	}

	status, _ := MapProviderStatus(m.outcome)
	txID := ""
	if status == payment.StatusSuccessful {
		txID = fmt.Sprintf("%d", uuid.New().ID())
	}
	raw, _ := json.Marshal(map[string]interface{}{
		"amount":                 req.Amount.StringFixed(2),
		"currency":               req.Currency,
		"externalId":             req.ExternalID,
		"financialTransactionId": txID,
		"status":                 m.outcome,
	})

	m.logger.Info("[MOCK MOMO] status queried",
		zap.String("reference", reference),
		zap.String("status", m.outcome),
	)
	return &StatusResult{
		Status:         status,
		ProviderStatus: m.outcome,
		TransactionID:  txID,
		Raw:            raw,
	}, nil
}
