package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/wanderlog/service-payment/internal/common/domain"
	"github.com/wanderlog/service-payment/internal/domain/payment"
)

//go:generate mockgen -destination=mocks/mock_gateway.go -package=mocks . Gateway

// Gateway is the Anti-Corruption Layer for request-to-pay payment providers.
type Gateway interface {
	// Authenticate obtains a bearer token for subsequent calls.
	Authenticate(ctx context.Context) (string, error)

	// SubmitPayment asks the provider to collect funds. Acceptance means the
	// request is queued at the provider, not that money moved.
	SubmitPayment(ctx context.Context, req SubmitRequest) error

	// QueryStatus reads the provider's current view of a submission. It has
	// no side effects and may be called any number of times.
	QueryStatus(ctx context.Context, reference string) (*StatusResult, error)
}

// SubmitRequest is a request-to-pay.
type SubmitRequest struct {
	Reference       string
	ExternalID      string
	PayerIdentifier string
	Amount          decimal.Decimal
	Currency        string
	PayerMessage    string
	PayeeNote       string
}

// StatusResult is the provider's answer mapped onto local statuses.
type StatusResult struct {
	Status         payment.Status
	ProviderStatus string
	TransactionID  string
	Reason         string
	Raw            []byte
}

// ErrorKind classifies gateway failures so callers can decide whether to retry.
type ErrorKind string

const (
	KindConnectivity ErrorKind = "connectivity"
	KindProvider     ErrorKind = "provider"
	KindRejected     ErrorKind = "rejected"
	KindMalformed    ErrorKind = "malformed"
	KindNotFound     ErrorKind = "not_found"
)

// ErrReferenceUnknown is matched by a GatewayError when the provider has no
// record of the queried reference.
var ErrReferenceUnknown = errors.New("reference unknown to gateway")

// GatewayError is a failed provider call other than an authentication failure.
type GatewayError struct {
	Op         string
	Kind       ErrorKind
	StatusCode int
	Body       string
	Err        error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("gateway %s failed (%s", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(", http %d", e.StatusCode)
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Is lets errors.Is match the domain sentinel and ErrReferenceUnknown.
func (e *GatewayError) Is(target error) bool {
	switch target {
	case domain.ErrGateway:
		return true
	case ErrReferenceUnknown:
		return e.Kind == KindNotFound
	}
	return false
}

// Retryable reports whether repeating the call may succeed.
func (e *GatewayError) Retryable() bool {
	return e.Kind == KindConnectivity || e.Kind == KindProvider
}

// AuthError means the provider rejected our credentials or could not issue a token.
type AuthError struct {
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway authentication failed (http %d)", e.StatusCode)
	}
	return fmt.Sprintf("gateway authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is lets errors.Is match domain.ErrAuth.
func (e *AuthError) Is(target error) bool { return target == domain.ErrAuth }

// Retryable is false: credentials do not fix themselves.
func (e *AuthError) Retryable() bool { return false }

// Registry maps payment methods to the gateway serving them.
type Registry struct {
	gateways map[payment.Method]Gateway
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{gateways: make(map[payment.Method]Gateway)}
}

// Register binds a method to a gateway.
func (r *Registry) Register(method payment.Method, gw Gateway) *Registry {
	r.gateways[method] = gw
	return r
}

// For returns the gateway for method or a validation error when none serves it.
func (r *Registry) For(method payment.Method) (Gateway, error) {
	gw, ok := r.gateways[method]
	if !ok {
		return nil, domain.NewValidationError(fmt.Sprintf("payment method '%s' is not available", method))
	}
	return gw, nil
}
