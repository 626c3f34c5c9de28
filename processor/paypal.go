package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// PayPalClient implements Processor against the PayPal orders API.
type PayPalClient struct {
	clientID string
	secret   string
	baseURL  string
	http     *http.Client
	retry    RetryPolicy
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalOrderRequest struct {
	Intent        string `json:"intent"`
	PurchaseUnits []struct {
		ReferenceID string       `json:"reference_id,omitempty"`
		Description string       `json:"description,omitempty"`
		Amount      paypalAmount `json:"amount"`
	} `json:"purchase_units"`
}

type paypalOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// NewPayPalClient constructs a client with sane defaults.
func NewPayPalClient(baseURL, clientID, secret string, retry RetryPolicy) *PayPalClient {
	if baseURL == "" {
		baseURL = "https://api-m.paypal.com"
	}
	return &PayPalClient{
		clientID: clientID,
		secret:   secret,
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 15 * time.Second},
		retry:    retry.normalized(),
	}
}

// Name implements Processor.
func (*PayPalClient) Name() string { return "paypal" }

// Authorize implements Processor by creating an order with AUTHORIZE intent.
func (c *PayPalClient) Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
	payload := paypalOrderRequest{Intent: "AUTHORIZE"}
	payload.PurchaseUnits = append(payload.PurchaseUnits, struct {
		ReferenceID string       `json:"reference_id,omitempty"`
		Description string       `json:"description,omitempty"`
		Amount      paypalAmount `json:"amount"`
	}{
		ReferenceID: req.TransactionID,
		Description: req.Description,
		Amount: paypalAmount{
			CurrencyCode: strings.ToUpper(req.Currency),
			Value:        fmt.Sprintf("%d.%02d", req.AmountCents/100, req.AmountCents%100),
		},
	})
	var order paypalOrder
	err := c.retry.Do(ctx, func(callCtx context.Context) error {
		return c.doJSON(callCtx, http.MethodPost, "/v2/checkout/orders", req.TransactionID, payload, &order)
	})
	if err != nil {
		return nil, err
	}
	return &Authorization{Ref: order.ID, Status: "authorized"}, nil
}

// Capture implements Processor.
func (c *PayPalClient) Capture(ctx context.Context, ref string) (*CaptureResult, error) {
	var order paypalOrder
	err := c.retry.Do(ctx, func(callCtx context.Context) error {
		return c.doJSON(callCtx, http.MethodPost, fmt.Sprintf("/v2/checkout/orders/%s/capture", ref), ref+"-capture", nil, &order)
	})
	if err != nil {
		return nil, err
	}
	return &CaptureResult{Ref: order.ID, Status: "captured"}, nil
}

// Refund implements Processor.
func (c *PayPalClient) Refund(ctx context.Context, ref string, amountCents int64, currency string) (*RefundResult, error) {
	var payload interface{}
	if amountCents > 0 {
		code := strings.ToUpper(strings.TrimSpace(currency))
		if code == "" {
			code = "USD"
		}
		payload = map[string]interface{}{
			"amount": paypalAmount{CurrencyCode: code, Value: fmt.Sprintf("%d.%02d", amountCents/100, amountCents%100)},
		}
	}
	var refund paypalOrder
	err := c.retry.Do(ctx, func(callCtx context.Context) error {
		return c.doJSON(callCtx, http.MethodPost, fmt.Sprintf("/v2/payments/captures/%s/refund", ref), fmt.Sprintf("%s-refund-%d", ref, amountCents), payload, &refund)
	})
	if err != nil {
		return nil, err
	}
	return &RefundResult{RefundID: refund.ID, Status: refund.Status}, nil
}

func (c *PayPalClient) doJSON(ctx context.Context, method, path, requestID string, payload, out interface{}) error {
	if c == nil {
		return fmt.Errorf("paypal client not configured: %w", ErrUnavailable)
	}
	var body *bytes.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.clientID, c.secret)
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("paypal %s: %v: %w", path, err, ErrUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("paypal %s: status=%d: %w", path, resp.StatusCode, ErrUnavailable)
	}
	if resp.StatusCode == http.StatusUnprocessableEntity {
		return fmt.Errorf("paypal %s: order rejected: %w", path, ErrDeclined)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("paypal %s: status=%d: %w", path, resp.StatusCode, ErrUnavailable)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
