// Package webhooks delivers notifications to an external endpoint as signed
// JSON webhooks. Retries are owned by the notification dispatcher; a sender
// attempts each delivery exactly once.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"payward/notify"
)

const defaultTimeout = 15 * time.Second

// Sender posts notifications to a single endpoint. It implements
// notify.Sender.
type Sender struct {
	endpoint string
	secret   []byte
	client   *http.Client
}

// Option mutates sender configuration.
type Option func(*Sender)

// WithHTTPClient overrides the HTTP client used for deliveries.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Sender) {
		if client != nil {
			s.client = client
		}
	}
}

// NewSender constructs a webhook sender. The secret signs every payload so
// receivers can authenticate deliveries.
func NewSender(endpoint string, secret []byte, opts ...Option) (*Sender, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("webhook: endpoint required")
	}
	if len(secret) == 0 {
		return nil, errors.New("webhook: secret required")
	}
	sender := &Sender{
		endpoint: endpoint,
		secret:   append([]byte(nil), secret...),
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(sender)
	}
	return sender, nil
}

type payload struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	Recipient string            `json:"recipient"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Deliver implements notify.Sender.
func (s *Sender) Deliver(ctx context.Context, n notify.Notification) error {
	body, err := json.Marshal(payload{
		ID:        n.ID,
		Kind:      n.Kind,
		Recipient: n.Recipient,
		Data:      n.Data,
		CreatedAt: n.CreatedAt,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Payward-Event", n.Kind)
	req.Header.Set("X-Payward-Signature", s.sign(body))
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook: delivery failed with status %d", resp.StatusCode)
}

func (s *Sender) sign(body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
