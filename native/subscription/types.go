package subscription

import "time"

// Status tracks the subscription lifecycle. Canceled is terminal; past_due
// subscriptions recover to active on the next successful invoice.
type Status string

const (
	StatusTrialing Status = "trialing"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// Billing intervals. Anything unrecognized is treated as a month.
const (
	IntervalDay   = "day"
	IntervalWeek  = "week"
	IntervalMonth = "month"
	IntervalYear  = "year"
)

// Subscription is the lifecycle record for a recurring plan. The next billing
// date trails the current period end by exactly one interval.
type Subscription struct {
	ID                 string     `json:"id"`
	OwnerID            string     `json:"ownerId"`
	OwnerEmail         string     `json:"ownerEmail,omitempty"`
	PlanID             string     `json:"planId"`
	PlanName           string     `json:"planName"`
	AmountCents        int64      `json:"amountCents"`
	Currency           string     `json:"currency"`
	Interval           string     `json:"interval"`
	Status             Status     `json:"status"`
	ProcessorName      string     `json:"processorName"`
	PaymentMethodID    string     `json:"paymentMethodId"`
	TrialEndsAt        *time.Time `json:"trialEndsAt,omitempty"`
	CurrentPeriodStart time.Time  `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time  `json:"currentPeriodEnd"`
	NextBillingDate    time.Time  `json:"nextBillingDate"`
	CancelAtPeriodEnd  bool       `json:"cancelAtPeriodEnd"`
	CanceledAt         *time.Time `json:"canceledAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy of the subscription.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	clone := *s
	if s.TrialEndsAt != nil {
		trial := *s.TrialEndsAt
		clone.TrialEndsAt = &trial
	}
	if s.CanceledAt != nil {
		canceled := *s.CanceledAt
		clone.CanceledAt = &canceled
	}
	return &clone
}

// InvoiceStatus marks a billing attempt outcome.
type InvoiceStatus string

const (
	InvoicePaid   InvoiceStatus = "paid"
	InvoiceFailed InvoiceStatus = "failed"
)

// Invoice records one billing attempt. ExternalID is the processor's invoice
// identifier and is unique per subscription.
type Invoice struct {
	ID             string        `json:"id"`
	SubscriptionID string        `json:"subscriptionId"`
	ExternalID     string        `json:"externalId"`
	AmountCents    int64         `json:"amountCents"`
	Status         InvoiceStatus `json:"status"`
	FailureReason  string        `json:"failureReason,omitempty"`
	TransactionID  string        `json:"transactionId,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
}
