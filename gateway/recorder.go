package gateway

import (
	"context"

	"payward/native/payments"
	"payward/native/subscription"
)

// ChargeRecorder adapts the payment engine into the recorder the subscription
// engine bills through, keeping the two packages decoupled.
type ChargeRecorder struct {
	Engine *payments.Engine
}

// RecordCharge records a settled subscription charge as an external payment so
// it flows through commission and loyalty settlement.
func (r ChargeRecorder) RecordCharge(ctx context.Context, charge subscription.Charge) (string, error) {
	tx, err := r.Engine.RecordExternalPayment(ctx, payments.ExternalPaymentInput{
		PayerID:     charge.OwnerID,
		PayerEmail:  charge.OwnerEmail,
		AmountCents: charge.AmountCents,
		Currency:    charge.Currency,
		Reference:   charge.InvoiceID,
		Description: charge.Description,
	})
	if err != nil {
		return "", err
	}
	return tx.ID, nil
}
