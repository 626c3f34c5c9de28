package processor

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Manual is the synthetic processor for out-of-band settlement. Payments are
// authorized immediately without touching an external rail; captures and
// refunds succeed unconditionally.
type Manual struct{}

// NewManual returns the manual processor.
func NewManual() *Manual { return &Manual{} }

// Name implements Processor.
func (*Manual) Name() string { return "manual" }

// Authorize implements Processor.
func (*Manual) Authorize(_ context.Context, req AuthorizeRequest) (*Authorization, error) {
	ref := req.TransactionID
	if ref == "" {
		ref = uuid.NewString()
	}
	return &Authorization{
		Ref:    fmt.Sprintf("manual-%s", ref),
		Status: "authorized",
	}, nil
}

// Capture implements Processor.
func (*Manual) Capture(_ context.Context, ref string) (*CaptureResult, error) {
	return &CaptureResult{Ref: ref, Status: "captured"}, nil
}

// Refund implements Processor.
func (*Manual) Refund(_ context.Context, ref string, _ int64, _ string) (*RefundResult, error) {
	return &RefundResult{RefundID: fmt.Sprintf("refund-%s", ref), Status: "refunded"}, nil
}
