package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"payward/core/events"
)

// DisputeInput describes a payer-initiated dispute.
type DisputeInput struct {
	RequesterID string
	Reason      string
	Evidence    string
}

// CreateDispute opens a dispute on a post-authorization transaction. Only the
// payer may dispute, and only within the dispute window measured from the
// transaction's creation. The window boundary is inclusive.
func (e *Engine) CreateDispute(ctx context.Context, id string, input DisputeInput) (*Dispute, error) {
	if e == nil || e.store == nil {
		return nil, ErrNilStore
	}
	tx, err := e.loadTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.RequesterID) != tx.PayerID {
		return nil, ErrNotTransactionPayer
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason required", ErrInvalidState)
	}
	if tx.Dispute != nil {
		return nil, ErrDisputeAlreadyOpen
	}
	now := e.nowFn().UTC()
	if now.Sub(tx.CreatedAt) > e.disputeWindow {
		return nil, ErrDisputeWindowExpired
	}

	ok, err := e.store.TransitionStatus(ctx, tx.ID, disputableStates, StatusDisputed)
	if err != nil {
		return nil, fmt.Errorf("payments: dispute transition: %w", err)
	}
	if !ok {
		return nil, ErrInvalidState
	}

	dispute := &Dispute{
		ID:        uuid.NewString(),
		Reason:    reason,
		Evidence:  strings.TrimSpace(input.Evidence),
		Status:    DisputePending,
		CreatedAt: now,
	}
	tx.Status = StatusDisputed
	tx.Dispute = dispute
	tx.UpdatedAt = now
	if err := e.store.UpdateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("payments: record dispute: %w", err)
	}

	e.emit(events.PaymentDisputed{
		TransactionID: tx.ID,
		DisputeID:     dispute.ID,
		Reason:        reason,
	})
	e.notify(ctx, tx.PayerEmail, "dispute_opened", map[string]string{
		"transaction": tx.ID,
		"dispute":     dispute.ID,
	})
	return dispute, nil
}

// DisputeOutcome reports a dispute resolution and, for customer resolutions,
// the refund it triggered.
type DisputeOutcome struct {
	TransactionID string         `json:"transactionId"`
	DisputeID     string         `json:"disputeId"`
	Resolution    Resolution     `json:"resolution"`
	Refund        *RefundOutcome `json:"refund,omitempty"`
}

// ResolveDispute decides a pending dispute. A customer resolution refunds the
// full gross through the processor and reverses any awarded points; a
// merchant resolution restores the transaction to completed. Each dispute
// resolves at most once.
func (e *Engine) ResolveDispute(ctx context.Context, id string, resolution Resolution) (*DisputeOutcome, error) {
	if e == nil || e.store == nil {
		return nil, ErrNilStore
	}
	tx, err := e.loadTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Dispute == nil {
		return nil, ErrDisputeNotFound
	}
	if tx.Dispute.Status == DisputeResolved {
		return nil, ErrDisputeAlreadyResolved
	}
	switch resolution {
	case ResolutionCustomer, ResolutionMerchant:
	default:
		return nil, ErrInvalidResolution
	}

	target := StatusCompleted
	if resolution == ResolutionCustomer {
		target = StatusRefunded
	}
	// Serializes concurrent resolutions: only one caller wins the transition
	// out of disputed.
	ok, err := e.store.TransitionStatus(ctx, tx.ID, []Status{StatusDisputed}, target)
	if err != nil {
		return nil, fmt.Errorf("payments: resolve transition: %w", err)
	}
	if !ok {
		return nil, ErrDisputeAlreadyResolved
	}

	now := e.nowFn().UTC()
	tx.Dispute.Status = DisputeResolved
	tx.Dispute.Resolution = resolution
	tx.Dispute.ResolvedAt = &now
	tx.UpdatedAt = now

	outcome := &DisputeOutcome{
		TransactionID: tx.ID,
		DisputeID:     tx.Dispute.ID,
		Resolution:    resolution,
	}
	if resolution == ResolutionCustomer {
		refund, err := e.executeRefund(ctx, tx, StatusDisputed, tx.GrossCents, "dispute resolved for customer")
		if err != nil {
			return nil, err
		}
		outcome.Refund = refund
	} else {
		tx.Status = StatusCompleted
		if err := e.store.UpdateTransaction(ctx, tx); err != nil {
			return nil, fmt.Errorf("payments: record resolution: %w", err)
		}
	}

	e.emit(events.PaymentDisputeResolved{
		TransactionID: tx.ID,
		DisputeID:     tx.Dispute.ID,
		Resolution:    string(resolution),
	})
	e.notify(ctx, tx.PayerEmail, "dispute_resolved", map[string]string{
		"transaction": tx.ID,
		"dispute":     tx.Dispute.ID,
		"resolution":  string(resolution),
	})
	return outcome, nil
}
