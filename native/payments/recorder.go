package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"payward/native/commission"
	"payward/native/loyalty"
)

// ExternalPaymentInput describes a payment settled outside the orchestrator,
// such as a subscription invoice already collected by the billing provider.
type ExternalPaymentInput struct {
	PayerID     string
	PayerEmail  string
	AmountCents int64
	Currency    string
	PaymentType string
	Reference   string
	Description string
}

// RecordExternalPayment records an already-settled payment as a completed
// transaction and runs loyalty settlement for it. No processor is invoked.
func (e *Engine) RecordExternalPayment(ctx context.Context, input ExternalPaymentInput) (*Transaction, error) {
	if e == nil || e.store == nil {
		return nil, ErrNilStore
	}
	if input.AmountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	payerID := strings.TrimSpace(input.PayerID)
	if payerID == "" {
		return nil, ErrInvalidPayer
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "USD"
	}
	paymentType := strings.ToLower(strings.TrimSpace(input.PaymentType))
	if paymentType == "" {
		paymentType = "subscription"
	}

	rateBps := e.commission.Rate(paymentType, "", false)
	fee, net := commission.Breakdown(input.AmountCents, rateBps)

	var expectedPoints int64
	if e.ledger != nil {
		tier := loyalty.TierBronze
		if account, err := e.ledger.GetOrCreateAccount(ctx, payerID); err == nil {
			tier = account.Tier
		}
		expectedPoints = e.ledger.PurchasePoints(input.AmountCents, paymentType, tier)
	}

	now := e.nowFn().UTC()
	tx := &Transaction{
		ID:             uuid.NewString(),
		PayerID:        payerID,
		PayerEmail:     strings.TrimSpace(input.PayerEmail),
		GrossCents:     input.AmountCents,
		Currency:       currency,
		PaymentType:    paymentType,
		Method:         "external",
		CommissionBps:  rateBps,
		FeeCents:       fee,
		NetCents:       net,
		Status:         StatusCompleted,
		ProcessorRef:   strings.TrimSpace(input.Reference),
		ExpectedPoints: expectedPoints,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.store.InsertTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("payments: insert external transaction: %w", err)
	}
	if _, err := e.ProcessLoyaltyAfterPayment(ctx, tx.ID); err != nil {
		e.logger.Warn("loyalty settlement failed for external payment",
			"transaction", tx.ID, "error", err)
	}
	return e.loadTransaction(ctx, tx.ID)
}
