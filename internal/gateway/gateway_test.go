package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key_id" || pass != "key_secret" {
			t.Error("missing or wrong basic auth")
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["amount"].(float64) != 150000 {
			t.Errorf("amount = %v, want 150000", body["amount"])
		}
		_ = json.NewEncoder(w).Encode(Order{
			ID:       "order_abc",
			Amount:   150000,
			Currency: "INR",
			Status:   "created",
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "key_id", "key_secret")
	order, err := c.CreateOrder(context.Background(), 150000, "INR", "rcpt_1")
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if order.ID != "order_abc" {
		t.Errorf("order ID = %q, want order_abc", order.ID)
	}
}

func TestServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "k", "s")
	_, err := c.FetchPayment(context.Background(), "pay_1")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestClientErrorIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "k", "s")
	_, err := c.CreateRefund(context.Background(), "pay_1", 100)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
	if errors.Is(err, ErrUnavailable) {
		t.Fatal("definitive rejection must not be retryable")
	}
}

func TestConnectionFailureIsUnavailable(t *testing.T) {
	// Point at a closed server.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewHTTPClient(srv.URL, "k", "s")
	_, err := c.FetchPayment(context.Background(), "pay_1")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}
