package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"payward/notify"
)

func TestSenderSignsPayload(t *testing.T) {
	var receivedSignature, receivedEvent string
	var receivedBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedBody, _ = io.ReadAll(r.Body)
		_ = r.Body.Close()
		receivedSignature = r.Header.Get("X-Payward-Signature")
		receivedEvent = r.Header.Get("X-Payward-Event")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender, err := NewSender(server.URL, []byte("secret"))
	if err != nil {
		t.Fatalf("sender: %v", err)
	}
	n := notify.NewNotification("merchant@example.com", "payment_confirmation", map[string]string{"transaction": "tx-1"})
	if err := sender.Deliver(context.Background(), n); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if receivedEvent != "payment_confirmation" {
		t.Fatalf("unexpected event header %q", receivedEvent)
	}
	if len(receivedSignature) < 8 || receivedSignature[:7] != "sha256=" {
		t.Fatalf("unexpected signature %q", receivedSignature)
	}
	var decoded map[string]any
	if err := json.Unmarshal(receivedBody, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded["recipient"] != "merchant@example.com" {
		t.Fatalf("unexpected recipient %v", decoded["recipient"])
	}
}

func TestSenderRejectsMissingConfig(t *testing.T) {
	if _, err := NewSender("", []byte("secret")); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
	if _, err := NewSender("https://example.com/hook", nil); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestSenderReportsFailureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sender, err := NewSender(server.URL, []byte("secret"))
	if err != nil {
		t.Fatalf("sender: %v", err)
	}
	if err := sender.Deliver(context.Background(), notify.NewNotification("a@b.c", "refund_confirmation", nil)); err == nil {
		t.Fatalf("expected delivery error")
	}
}
