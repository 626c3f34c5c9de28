package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// StripeClient implements Processor against the Stripe payment-intents API.
// Intents are created in manual-capture mode so the orchestrator controls the
// authorize/capture split.
type StripeClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	retry   RetryPolicy
}

type stripeIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

type stripeRefund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewStripeClient constructs a client with sane defaults.
func NewStripeClient(baseURL, apiKey string, retry RetryPolicy) *StripeClient {
	if baseURL == "" {
		baseURL = "https://api.stripe.com/v1"
	}
	return &StripeClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		retry:   retry.normalized(),
	}
}

// Name implements Processor.
func (*StripeClient) Name() string { return "stripe" }

// Authorize implements Processor by creating a manual-capture payment intent.
func (c *StripeClient) Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
	form := url.Values{}
	form.Set("amount", fmt.Sprintf("%d", req.AmountCents))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("capture_method", "manual")
	if req.Description != "" {
		form.Set("description", req.Description)
	}
	for k, v := range req.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}
	var intent stripeIntent
	err := c.retry.Do(ctx, func(callCtx context.Context) error {
		return c.doForm(callCtx, "/payment_intents", req.TransactionID, form, &intent)
	})
	if err != nil {
		return nil, err
	}
	status := "authorized"
	if intent.Status == "succeeded" {
		status = "captured"
	}
	return &Authorization{Ref: intent.ID, ClientSecret: intent.ClientSecret, Status: status}, nil
}

// Capture implements Processor.
func (c *StripeClient) Capture(ctx context.Context, ref string) (*CaptureResult, error) {
	var intent stripeIntent
	err := c.retry.Do(ctx, func(callCtx context.Context) error {
		return c.doForm(callCtx, fmt.Sprintf("/payment_intents/%s/capture", ref), ref+"-capture", url.Values{}, &intent)
	})
	if err != nil {
		return nil, err
	}
	return &CaptureResult{Ref: intent.ID, Status: "captured"}, nil
}

// Refund implements Processor. Stripe refunds settle in the intent's
// original currency, so the currency hint is not sent.
func (c *StripeClient) Refund(ctx context.Context, ref string, amountCents int64, _ string) (*RefundResult, error) {
	form := url.Values{}
	form.Set("payment_intent", ref)
	if amountCents > 0 {
		form.Set("amount", fmt.Sprintf("%d", amountCents))
	}
	var refund stripeRefund
	err := c.retry.Do(ctx, func(callCtx context.Context) error {
		return c.doForm(callCtx, "/refunds", fmt.Sprintf("%s-refund-%d", ref, amountCents), form, &refund)
	})
	if err != nil {
		return nil, err
	}
	return &RefundResult{RefundID: refund.ID, Status: refund.Status}, nil
}

func (c *StripeClient) doForm(ctx context.Context, path, idempotencyKey string, form url.Values, out interface{}) error {
	if c == nil {
		return fmt.Errorf("stripe client not configured: %w", ErrUnavailable)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("stripe %s: %v: %w", path, err, ErrUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("stripe %s: status=%d: %w", path, resp.StatusCode, ErrUnavailable)
	}
	if resp.StatusCode >= 400 {
		var apiErr stripeError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error.Code == "card_declined" || apiErr.Error.Type == "card_error" {
			return fmt.Errorf("stripe %s: %s: %w", path, apiErr.Error.Message, ErrDeclined)
		}
		return fmt.Errorf("stripe %s: status=%d %s: %w", path, resp.StatusCode, apiErr.Error.Message, ErrUnavailable)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
