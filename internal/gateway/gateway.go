// Package gateway is the HTTP client for the external payment gateway.
//
// The gateway executes the actual money movement out-of-band; this client
// covers the three synchronous calls the reconciliation engine needs:
// order creation, settlement-detail fetch, and refund issuance.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrUnavailable indicates a transport failure or gateway 5xx.
	// Retryable by the caller; never implies anything about payment state.
	ErrUnavailable = errors.New("gateway: unavailable")

	// ErrRejected indicates a definitive gateway rejection (4xx).
	ErrRejected = errors.New("gateway: request rejected")
)

// DefaultTimeout bounds each gateway call.
const DefaultTimeout = 15 * time.Second

// Order is a gateway payment order awaiting checkout.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"` // minor units
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Payment holds settlement details fetched after capture.
type Payment struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	Method    string `json:"method"` // upi, card, netbanking, wallet
	CreatedAt int64  `json:"created_at"`
}

// Refund is the gateway's record of an issued refund.
type Refund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

// Client abstracts the gateway for testability.
type Client interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*Payment, error)
	CreateRefund(ctx context.Context, paymentID string, amount int64) (*Refund, error)
}

// HTTPClient talks to the real gateway REST API with key-id/key-secret
// basic auth.
type HTTPClient struct {
	baseURL   string
	keyID     string
	keySecret string
	client    *http.Client
}

// NewHTTPClient creates a gateway client with a bounded timeout.
func NewHTTPClient(baseURL, keyID, keySecret string) *HTTPClient {
	return &HTTPClient{
		baseURL:   baseURL,
		keyID:     keyID,
		keySecret: keySecret,
		client: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// Compile-time interface check
var _ Client = (*HTTPClient)(nil)

// CreateOrder registers a new payment order with the gateway.
func (c *HTTPClient) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*Order, error) {
	body := map[string]interface{}{
		"amount":          amount,
		"currency":        currency,
		"receipt":         receipt,
		"payment_capture": 1,
	}
	var order Order
	if err := c.do(ctx, http.MethodPost, "/orders", body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// FetchPayment retrieves settlement details for a captured payment.
func (c *HTTPClient) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var payment Payment
	if err := c.do(ctx, http.MethodGet, "/payments/"+paymentID, nil, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// CreateRefund issues a refund against a captured payment.
func (c *HTTPClient) CreateRefund(ctx context.Context, paymentID string, amount int64) (*Refund, error) {
	body := map[string]interface{}{
		"amount": amount,
	}
	var refund Refund
	if err := c.do(ctx, http.MethodPost, "/payments/"+paymentID+"/refund", body, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gateway: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("gateway: build request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// Timeouts and connection failures are retryable, not definitive.
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return json.NewDecoder(resp.Body).Decode(out)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, msg)
	}
}
