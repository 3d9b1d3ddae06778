package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/rentrail/internal/anchor"
	"github.com/mbd888/rentrail/internal/config"
	"github.com/mbd888/rentrail/internal/gateway"
)

const (
	testKeySecret     = "server-key-secret"
	testWebhookSecret = "server-webhook-secret"
)

type fakeGateway struct {
	orders int
}

func (g *fakeGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*gateway.Order, error) {
	g.orders++
	return &gateway.Order{ID: fmt.Sprintf("order_%d", g.orders), Amount: amount, Currency: currency}, nil
}

func (g *fakeGateway) FetchPayment(ctx context.Context, paymentID string) (*gateway.Payment, error) {
	return &gateway.Payment{ID: paymentID, Method: "upi", CreatedAt: time.Now().Unix()}, nil
}

func (g *fakeGateway) CreateRefund(ctx context.Context, paymentID string, amount int64) (*gateway.Refund, error) {
	return &gateway.Refund{ID: "rfnd_1", PaymentID: paymentID, Amount: amount}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Port:                 "0",
		Env:                  "development",
		LogLevel:             "error",
		Currency:             "INR",
		GatewayKeySecret:     testKeySecret,
		GatewayWebhookSecret: testWebhookSecret,
	}
	srv, err := New(cfg, WithGateway(&fakeGateway{}), WithAnchorer(anchor.NewSimClient()))
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Not ready until Run has started.
	w = doJSON(t, srv, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestIdentityRequired(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/v1/payments", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func createAgreement(t *testing.T, srv *Server) string {
	t.Helper()
	start := time.Now().UTC()
	w := doJSON(t, srv, http.MethodPost, "/v1/agreements", "landlord_1", map[string]interface{}{
		"propertyId":      "prop_1",
		"landlordId":      "landlord_1",
		"tenantId":        "tenant_1",
		"monthlyRent":     2_500_000,
		"securityDeposit": 5_000_000,
		"startDate":       start.Format(time.RFC3339),
		"endDate":         start.AddDate(1, 0, 0).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Agreement struct {
			ID string `json:"id"`
		} `json:"agreement"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Agreement.ID
}

func TestPaymentLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	createAgreement(t, srv)

	// Tenant creates a rent order.
	w := doJSON(t, srv, http.MethodPost, "/v1/payments/orders", "tenant_1", map[string]interface{}{
		"propertyId": "prop_1",
		"kind":       "rent",
		"amount":     map[string]int64{"total": 2_500_000, "rent": 2_500_000},
		"period":     map[string]int{"month": 8, "year": 2026},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Order struct {
			OrderID       string `json:"orderId"`
			LocalRecordID string `json:"localRecordId"`
		} `json:"order"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	// Gateway webhook settles the payment.
	body, err := json.Marshal(map[string]interface{}{
		"event": "payment.captured",
		"payload": map[string]interface{}{
			"payment": map[string]interface{}{
				"entity": map[string]interface{}{
					"id":         "pay_http",
					"order_id":   created.Order.OrderID,
					"method":     "card",
					"amount":     2_500_000,
					"created_at": time.Now().Unix(),
				},
			},
		},
	})
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)

	req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", bytes.NewReader(body))
	req.Header.Set("X-Razorpay-Signature", hex.EncodeToString(mac.Sum(nil)))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Tenant sees the completed record.
	w = doJSON(t, srv, http.MethodGet, "/v1/payments/"+created.Order.LocalRecordID, "tenant_1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"completed"`)

	// A stranger does not.
	w = doJSON(t, srv, http.MethodGet, "/v1/payments/"+created.Order.LocalRecordID, "stranger", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", bytes.NewReader([]byte(`{"event":"payment.captured"}`)))
	req.Header.Set("X-Razorpay-Signature", "deadbeef")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEscrowReleaseGatedOnTermination(t *testing.T) {
	srv := newTestServer(t)
	agreementID := createAgreement(t, srv)

	w := doJSON(t, srv, http.MethodPost, "/v1/escrow/holds", "landlord_1", map[string]interface{}{
		"agreementId":    agreementID,
		"landlordWallet": "0x8ba1f109551bD432803012645Ac136ddd64DBA72",
		"tenantWallet":   "0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045",
		"releaseDate":    time.Now().AddDate(1, 0, 0).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Hold struct {
			ID string `json:"id"`
		} `json:"hold"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	// Release while the agreement is active is rejected.
	w = doJSON(t, srv, http.MethodPost, "/v1/escrow/holds/"+created.Hold.ID+"/release", "landlord_1", map[string]interface{}{
		"target": "tenant",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, srv, http.MethodPost, "/v1/agreements/"+agreementID+"/terminate", "landlord_1", map[string]interface{}{
		"note": "lease ended",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, srv, http.MethodPost, "/v1/escrow/holds/"+created.Hold.ID+"/release", "landlord_1", map[string]interface{}{
		"target": "tenant",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "released_to_tenant")
}
