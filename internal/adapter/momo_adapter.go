package adapter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/wanderlog/service-payment/internal/domain/payment"
	"go.uber.org/zap"
)

const (
	headerSubscriptionKey = "Ocp-Apim-Subscription-Key"
	headerReferenceID     = "X-Reference-Id"
	headerTargetEnv       = "X-Target-Environment"

	maxResponseBody = 1 << 20
	tokenSafety     = 30 * time.Second
)

// MomoOptions configures the MTN MoMo Collections client.
type MomoOptions struct {
	BaseURL           string
	SubscriptionKey   string
	APIUser           string
	APIKey            string
	TargetEnvironment string
	Timeout           time.Duration
	// StatusRetries is how many times a failed status query is repeated.
	StatusRetries        uint64
	RetryInitialInterval time.Duration
}

// MomoAdapter talks to the MoMo Collections API (request-to-pay).
type MomoAdapter struct {
	opts   MomoOptions
	client *http.Client
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewMomoAdapter creates a MoMo client. Every call is bounded by opts.Timeout.
func NewMomoAdapter(opts MomoOptions, logger *zap.Logger) *MomoAdapter {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RetryInitialInterval <= 0 {
		opts.RetryInitialInterval = 200 * time.Millisecond
	}
	if opts.TargetEnvironment == "" {
		opts.TargetEnvironment = "sandbox"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	return &MomoAdapter{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger.Named("momo"),
		now:    time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Authenticate requests a fresh access token and caches it until shortly
// before the advertised expiry.
func (a *MomoAdapter) Authenticate(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.authenticateLocked(ctx)
}

func (a *MomoAdapter) authenticateLocked(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.opts.BaseURL+"/collection/token/", nil)
	if err != nil {
		return "", &AuthError{Err: err}
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(a.opts.APIUser + ":" + a.opts.APIKey))
	req.Header.Set("Authorization", "Basic "+credentials)
	req.Header.Set(headerSubscriptionKey, a.opts.SubscriptionKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", &AuthError{Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode != http.StatusOK {
		a.logger.Warn("token request rejected", zap.Int("status", resp.StatusCode))
		return "", &AuthError{StatusCode: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(body)))}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil || tr.AccessToken == "" {
		return "", &AuthError{Err: errors.New("token response has no access_token")}
	}

	lifetime := time.Duration(tr.ExpiresIn) * time.Second
	if lifetime > tokenSafety {
		lifetime -= tokenSafety
	}
	a.token = tr.AccessToken
	a.expiresAt = a.now().Add(lifetime)
	return tr.AccessToken, nil
}

// accessToken returns the cached token, authenticating when it is missing or stale.
func (a *MomoAdapter) accessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token != "" && a.now().Before(a.expiresAt) {
		return a.token, nil
	}
	return a.authenticateLocked(ctx)
}

// invalidate drops token if it is still the cached one.
func (a *MomoAdapter) invalidate(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token == token {
		a.token = ""
	}
}

type requestBuilder func(ctx context.Context, token string) (*http.Request, error)

// doAuthorized sends an authenticated request. A 401 invalidates the token,
// re-authenticates once and repeats the request once.
func (a *MomoAdapter) doAuthorized(ctx context.Context, op string, build requestBuilder) (int, []byte, error) {
	token, err := a.accessToken(ctx)
	if err != nil {
		return 0, nil, err
	}

	status, body, err := a.send(ctx, op, build, token)
	if err != nil || status != http.StatusUnauthorized {
		return status, body, err
	}

	a.logger.Info("access token rejected, re-authenticating", zap.String("op", op))
	a.invalidate(token)
	if token, err = a.Authenticate(ctx); err != nil {
		return 0, nil, err
	}

	status, body, err = a.send(ctx, op, build, token)
	if err == nil && status == http.StatusUnauthorized {
		return status, body, &AuthError{StatusCode: status}
	}
	return status, body, err
}

func (a *MomoAdapter) send(ctx context.Context, op string, build requestBuilder, token string) (int, []byte, error) {
	req, err := build(ctx, token)
	if err != nil {
		return 0, nil, &GatewayError{Op: op, Kind: KindMalformed, Err: err}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, nil, &GatewayError{Op: op, Kind: KindConnectivity, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, &GatewayError{Op: op, Kind: KindConnectivity, StatusCode: resp.StatusCode, Err: err}
	}
	return resp.StatusCode, body, nil
}

type requestToPayBody struct {
	Amount       string      `json:"amount"`
	Currency     string      `json:"currency"`
	ExternalID   string      `json:"externalId"`
	Payer        partyObject `json:"payer"`
	PayerMessage string      `json:"payerMessage"`
	PayeeNote    string      `json:"payeeNote"`
}

type partyObject struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

// SubmitPayment sends a request-to-pay keyed by req.Reference.
func (a *MomoAdapter) SubmitPayment(ctx context.Context, req SubmitRequest) error {
	payload, err := json.Marshal(requestToPayBody{
		Amount:     req.Amount.StringFixed(2),
		Currency:   req.Currency,
		ExternalID: req.ExternalID,
		Payer: partyObject{
			PartyIDType: "MSISDN",
			PartyID:     req.PayerIdentifier,
		},
		PayerMessage: req.PayerMessage,
		PayeeNote:    req.PayeeNote,
	})
	if err != nil {
		return &GatewayError{Op: "request_to_pay", Kind: KindMalformed, Err: err}
	}

	status, body, err := a.doAuthorized(ctx, "request_to_pay", func(ctx context.Context, token string) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost,
			a.opts.BaseURL+"/collection/v1_0/requesttopay", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Authorization", "Bearer "+token)
		r.Header.Set(headerReferenceID, req.Reference)
		r.Header.Set(headerTargetEnv, a.opts.TargetEnvironment)
		r.Header.Set(headerSubscriptionKey, a.opts.SubscriptionKey)
		r.Header.Set("Content-Type", "application/json")
		return r, nil
	})
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return classifyStatus("request_to_pay", status, body)
	}

	a.logger.Info("request-to-pay accepted",
		zap.String("reference", req.Reference),
		zap.Int("status", status),
	)
	return nil
}

type requestToPayStatus struct {
	Status                 string          `json:"status"`
	FinancialTransactionID string          `json:"financialTransactionId"`
	Reason                 json.RawMessage `json:"reason"`
}

// QueryStatus reads the state of a request-to-pay. Connectivity failures and
// provider 5xx responses are retried with exponential backoff.
func (a *MomoAdapter) QueryStatus(ctx context.Context, reference string) (*StatusResult, error) {
	var result *StatusResult

	operation := func() error {
		res, err := a.queryStatusOnce(ctx, reference)
		if err != nil {
			var gwErr *GatewayError
			if errors.As(err, &gwErr) && gwErr.Retryable() {
				a.logger.Warn("status query failed, will retry",
					zap.String("reference", reference),
					zap.Error(err),
				)
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = a.opts.RetryInitialInterval
	policy.MaxElapsedTime = a.opts.Timeout
	retries := backoff.WithMaxRetries(policy, a.opts.StatusRetries)

	if err := backoff.Retry(operation, backoff.WithContext(retries, ctx)); err != nil {
		return nil, err
	}
	return result, nil
}

func (a *MomoAdapter) queryStatusOnce(ctx context.Context, reference string) (*StatusResult, error) {
	status, body, err := a.doAuthorized(ctx, "request_to_pay_status", func(ctx context.Context, token string) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodGet,
			a.opts.BaseURL+"/collection/v1_0/requesttopay/"+reference, nil)
		if err != nil {
			return nil, err
		}
		r.Header.Set("Authorization", "Bearer "+token)
		r.Header.Set(headerTargetEnv, a.opts.TargetEnvironment)
		r.Header.Set(headerSubscriptionKey, a.opts.SubscriptionKey)
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, classifyStatus("request_to_pay_status", status, body)
	}

	var parsed requestToPayStatus
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &GatewayError{Op: "request_to_pay_status", Kind: KindMalformed, StatusCode: status, Err: err}
	}

	local, ok := MapProviderStatus(parsed.Status)
	if !ok {
		return nil, &GatewayError{
			Op:         "request_to_pay_status",
			Kind:       KindMalformed,
			StatusCode: status,
			Err:        fmt.Errorf("unknown provider status %q", parsed.Status),
		}
	}

	return &StatusResult{
		Status:         local,
		ProviderStatus: parsed.Status,
		TransactionID:  parsed.FinancialTransactionID,
		Reason:         reasonText(parsed.Reason),
		Raw:            body,
	}, nil
}

// MapProviderStatus translates MoMo status vocabulary to local statuses.
func MapProviderStatus(s string) (payment.Status, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SUCCESSFUL":
		return payment.StatusSuccessful, true
	case "FAILED", "REJECTED", "TIMEOUT", "EXPIRED":
		return payment.StatusFailed, true
	case "PENDING", "CREATED", "ONGOING":
		return payment.StatusPending, true
	}
	return "", false
}

// reasonText flattens the provider's reason, which is either a string or
// an object with code and message.
func reasonText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		switch {
		case obj.Message != "" && obj.Code != "":
			return obj.Code + ": " + obj.Message
		case obj.Message != "":
			return obj.Message
		case obj.Code != "":
			return obj.Code
		}
	}
	return string(raw)
}

func classifyStatus(op string, status int, body []byte) error {
	e := &GatewayError{Op: op, StatusCode: status, Body: strings.TrimSpace(string(body))}
	switch {
	case status == http.StatusNotFound:
		e.Kind = KindNotFound
	case status == http.StatusTooManyRequests || status >= 500:
		e.Kind = KindProvider
	default:
		e.Kind = KindRejected
	}
	if e.Body != "" {
		e.Err = errors.New(e.Body)
	}
	return e
}

// ProvisionAPIUser creates a sandbox API user identified by userRef.
func (a *MomoAdapter) ProvisionAPIUser(ctx context.Context, userRef, callbackHost string) error {
	payload, _ := json.Marshal(map[string]string{"providerCallbackHost": callbackHost})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.opts.BaseURL+"/v1_0/apiuser", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set(headerReferenceID, userRef)
	req.Header.Set(headerSubscriptionKey, a.opts.SubscriptionKey)
	req.Header.Set("Content-Type", "application/json")

	status, body, err := a.sendPlain(req, "provision_api_user")
	if err != nil {
		return err
	}
	if status != http.StatusCreated && status != http.StatusConflict {
		return classifyStatus("provision_api_user", status, body)
	}
	return nil
}

// CreateAPIKey issues a new API key for a provisioned sandbox user.
func (a *MomoAdapter) CreateAPIKey(ctx context.Context, userRef string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.opts.BaseURL+"/v1_0/apiuser/"+userRef+"/apikey", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set(headerSubscriptionKey, a.opts.SubscriptionKey)

	status, body, err := a.sendPlain(req, "create_api_key")
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return "", classifyStatus("create_api_key", status, body)
	}

	var parsed struct {
		APIKey string `json:"apiKey"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.APIKey == "" {
		return "", &GatewayError{Op: "create_api_key", Kind: KindMalformed, StatusCode: status, Err: errors.New("response has no apiKey")}
	}
	return parsed.APIKey, nil
}

func (a *MomoAdapter) sendPlain(req *http.Request, op string) (int, []byte, error) {
	resp, err := a.client.Do(req)
	if err != nil {
		return 0, nil, &GatewayError{Op: op, Kind: KindConnectivity, Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	return resp.StatusCode, body, nil
}
