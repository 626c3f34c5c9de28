package processor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, CallTimeout: time.Second}
}

func TestRetryPolicyRetriesOnUnavailable(t *testing.T) {
	var calls int
	err := fastRetry().Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return ErrUnavailable
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryPolicyStopsOnTerminalError(t *testing.T) {
	var calls int
	err := fastRetry().Do(context.Background(), func(context.Context) error {
		calls++
		return ErrDeclined
	})
	if !errors.Is(err, ErrDeclined) {
		t.Fatalf("expected ErrDeclined, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("declines must not be retried, got %d attempts", calls)
	}
}

func TestRetryPolicyExhaustsBudget(t *testing.T) {
	var calls int
	err := fastRetry().Do(context.Background(), func(context.Context) error {
		calls++
		return ErrUnavailable
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected attempt budget of 3, got %d", calls)
	}
}

func TestRegistryFallsBackToManual(t *testing.T) {
	registry := NewRegistry()
	p := registry.ForMethod("bank_transfer")
	if p.Name() != "manual" {
		t.Fatalf("expected manual fallback, got %s", p.Name())
	}
	stripe := NewStripeClient("http://localhost", "sk_test", RetryPolicy{})
	registry.Register(stripe, "stripe", "credit_card")
	if got := registry.ForMethod("Credit_Card").Name(); got != "stripe" {
		t.Fatalf("expected stripe for credit_card, got %s", got)
	}
	if got := registry.ForMethod("stripe").Name(); got != "stripe" {
		t.Fatalf("expected stripe, got %s", got)
	}
}

func TestManualAuthorizeProducesStableRef(t *testing.T) {
	manual := NewManual()
	auth, err := manual.Authorize(context.Background(), AuthorizeRequest{TransactionID: "tx-1"})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if auth.Ref != "manual-tx-1" {
		t.Fatalf("unexpected ref %q", auth.Ref)
	}
	if auth.Status != "authorized" {
		t.Fatalf("unexpected status %q", auth.Status)
	}
}

func TestStripeAuthorizeRetriesServerErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if key := r.Header.Get("Idempotency-Key"); key != "tx-1" {
			t.Errorf("missing idempotency key, got %q", key)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":            "pi_123",
			"client_secret": "pi_123_secret",
			"status":        "requires_capture",
		})
	}))
	defer server.Close()

	client := NewStripeClient(server.URL, "sk_test", fastRetry())
	auth, err := client.Authorize(context.Background(), AuthorizeRequest{
		TransactionID: "tx-1",
		AmountCents:   10_000,
		Currency:      "usd",
	})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if auth.Ref != "pi_123" || auth.Status != "authorized" {
		t.Fatalf("unexpected authorization %+v", auth)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("expected retry after 502, got %d hits", hits)
	}
}

func TestStripeAuthorizeDeclined(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"card declined"}}`))
	}))
	defer server.Close()

	client := NewStripeClient(server.URL, "sk_test", fastRetry())
	_, err := client.Authorize(context.Background(), AuthorizeRequest{TransactionID: "tx-1", AmountCents: 500, Currency: "usd"})
	if !errors.Is(err, ErrDeclined) {
		t.Fatalf("expected ErrDeclined, got %v", err)
	}
}

func TestPayPalAuthorizeFormatsAmount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req paypalOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode order: %v", err)
		}
		if len(req.PurchaseUnits) != 1 || req.PurchaseUnits[0].Amount.Value != "12.05" {
			t.Errorf("unexpected amount %+v", req.PurchaseUnits)
		}
		if !strings.EqualFold(req.Intent, "authorize") {
			t.Errorf("unexpected intent %q", req.Intent)
		}
		_ = json.NewEncoder(w).Encode(paypalOrder{ID: "ord_1", Status: "CREATED"})
	}))
	defer server.Close()

	client := NewPayPalClient(server.URL, "client", "secret", fastRetry())
	auth, err := client.Authorize(context.Background(), AuthorizeRequest{
		TransactionID: "tx-1",
		AmountCents:   1_205,
		Currency:      "usd",
	})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if auth.Ref != "ord_1" {
		t.Fatalf("unexpected ref %q", auth.Ref)
	}
}

func TestPayPalRefundUsesTransactionCurrency(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Amount paypalAmount `json:"amount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode refund: %v", err)
		}
		if req.Amount.CurrencyCode != "EUR" {
			t.Errorf("expected EUR refund, got %q", req.Amount.CurrencyCode)
		}
		if req.Amount.Value != "10.00" {
			t.Errorf("unexpected amount %q", req.Amount.Value)
		}
		_ = json.NewEncoder(w).Encode(paypalOrder{ID: "rf_1", Status: "COMPLETED"})
	}))
	defer server.Close()

	client := NewPayPalClient(server.URL, "client", "secret", fastRetry())
	refund, err := client.Refund(context.Background(), "cap_1", 1_000, "eur")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refund.RefundID != "rf_1" {
		t.Fatalf("unexpected refund id %q", refund.RefundID)
	}
}
