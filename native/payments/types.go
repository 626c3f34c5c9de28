package payments

import "time"

// Status tracks a transaction through its lifecycle: pending -> authorized ->
// captured -> completed, with side exits to refunded and disputed.
// Fulfilment states (processing, shipped, delivered) sit between capture and
// completion for physical goods flows.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAuthorized Status = "authorized"
	StatusCaptured   Status = "captured"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCompleted  Status = "completed"
	StatusRefunded   Status = "refunded"
	StatusDisputed   Status = "disputed"
)

// refundableStates enumerates the post-authorization states a refund may be
// issued from.
var refundableStates = []Status{
	StatusCompleted,
	StatusCaptured,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
}

// completableStates enumerates the states a completion may be driven from.
var completableStates = []Status{
	StatusAuthorized,
	StatusCaptured,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
}

// disputableStates enumerates the states a dispute may be opened from.
var disputableStates = []Status{
	StatusAuthorized,
	StatusCaptured,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
	StatusCompleted,
}

// Refundable reports whether a refund may be issued from the status.
func (s Status) Refundable() bool {
	for _, candidate := range refundableStates {
		if s == candidate {
			return true
		}
	}
	return false
}

// DisputeStatus tracks a dispute from open to resolution.
type DisputeStatus string

const (
	DisputePending  DisputeStatus = "pending"
	DisputeResolved DisputeStatus = "resolved"
)

// Resolution names who a dispute was decided for.
type Resolution string

const (
	ResolutionCustomer Resolution = "customer"
	ResolutionMerchant Resolution = "merchant"
)

// Dispute is embedded in its transaction and resolved exactly once.
type Dispute struct {
	ID         string        `json:"id"`
	Reason     string        `json:"reason"`
	Evidence   string        `json:"evidence,omitempty"`
	Status     DisputeStatus `json:"status"`
	Resolution Resolution    `json:"resolution,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	ResolvedAt *time.Time    `json:"resolvedAt,omitempty"`
}

// Transaction is the orchestrator-owned payment record. Amounts are cents and
// the commission rate is recorded in basis points at authorization time for
// auditability. Once completed, only status transitions to refunded or
// disputed mutate the record.
type Transaction struct {
	ID               string    `json:"id"`
	PayerID          string    `json:"payerId"`
	PayerEmail       string    `json:"payerEmail,omitempty"`
	RecipientID      string    `json:"recipientId,omitempty"`
	GrossCents       int64     `json:"grossCents"`
	Currency         string    `json:"currency"`
	PaymentType      string    `json:"paymentType"`
	Method           string    `json:"method"`
	CommissionBps    uint32    `json:"commissionBps"`
	FeeCents         int64     `json:"feeCents"`
	NetCents         int64     `json:"netCents"`
	Status           Status    `json:"status"`
	ProcessorName    string    `json:"processorName,omitempty"`
	ProcessorRef     string    `json:"processorRef,omitempty"`
	ExpectedPoints   int64     `json:"expectedPoints"`
	AwardedPoints    int64     `json:"awardedPoints"`
	LoyaltyProcessed bool      `json:"loyaltyProcessed"`
	RefundedCents    int64     `json:"refundedCents,omitempty"`
	RefundReason     string    `json:"refundReason,omitempty"`
	Dispute          *Dispute  `json:"dispute,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Clone returns a deep copy of the transaction.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	clone := *t
	if t.Dispute != nil {
		dispute := *t.Dispute
		if t.Dispute.ResolvedAt != nil {
			resolvedAt := *t.Dispute.ResolvedAt
			dispute.ResolvedAt = &resolvedAt
		}
		clone.Dispute = &dispute
	}
	return &clone
}
