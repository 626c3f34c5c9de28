// Package processor abstracts the external payment rails the orchestration
// core settles against. Adapters normalize SDK and network failures into
// ErrUnavailable so callers never see provider-specific errors.
package processor

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable indicates a downstream provider or network failure.
	ErrUnavailable = errors.New("processor: unavailable")
	// ErrDeclined indicates the provider rejected the payment itself.
	ErrDeclined = errors.New("processor: declined")
)

// AuthorizeRequest carries the details needed to open a payment with a
// provider. The transaction id doubles as the idempotency key so retried
// authorizations de-duplicate provider-side.
type AuthorizeRequest struct {
	TransactionID string
	AmountCents   int64
	Currency      string
	Description   string
	Metadata      map[string]string
}

// Authorization is the uniform result of opening a payment, regardless of
// provider.
type Authorization struct {
	Ref          string
	ClientSecret string
	Status       string
}

// CaptureResult reports a two-phase capture.
type CaptureResult struct {
	Ref    string
	Status string
}

// RefundResult reports a provider refund.
type RefundResult struct {
	RefundID string
	Status   string
}

// Processor is the capability the orchestrator needs from a payment rail.
type Processor interface {
	Name() string
	Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error)
	Capture(ctx context.Context, ref string) (*CaptureResult, error)
	Refund(ctx context.Context, ref string, amountCents int64, currency string) (*RefundResult, error)
}
