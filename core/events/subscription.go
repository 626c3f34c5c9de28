package events

import "strconv"

const (
	TypeSubscriptionCreated      = "subscription.created"
	TypeSubscriptionInvoicePaid  = "subscription.invoice.paid"
	TypeSubscriptionPastDue      = "subscription.past_due"
	TypeSubscriptionCanceled     = "subscription.canceled"
	TypeSubscriptionPlanChanged  = "subscription.plan.changed"
	TypeSubscriptionTrialStarted = "subscription.trial.started"
)

type SubscriptionCreated struct {
	SubscriptionID string
	OwnerID        string
	PlanID         string
	AmountCents    int64
	Interval       string
	Trialing       bool
}

func (SubscriptionCreated) EventType() string { return TypeSubscriptionCreated }

func (e SubscriptionCreated) Record() *Record {
	return &Record{
		Type: TypeSubscriptionCreated,
		Attributes: map[string]string{
			"subscription": e.SubscriptionID,
			"owner":        e.OwnerID,
			"plan":         e.PlanID,
			"amount":       strconv.FormatInt(e.AmountCents, 10),
			"interval":     e.Interval,
			"trialing":     strconv.FormatBool(e.Trialing),
		},
	}
}

type SubscriptionInvoicePaid struct {
	SubscriptionID string
	InvoiceID      string
	AmountCents    int64
}

func (SubscriptionInvoicePaid) EventType() string { return TypeSubscriptionInvoicePaid }

func (e SubscriptionInvoicePaid) Record() *Record {
	return &Record{
		Type: TypeSubscriptionInvoicePaid,
		Attributes: map[string]string{
			"subscription": e.SubscriptionID,
			"invoice":      e.InvoiceID,
			"amount":       strconv.FormatInt(e.AmountCents, 10),
		},
	}
}

type SubscriptionPastDue struct {
	SubscriptionID string
	InvoiceID      string
	FailureReason  string
}

func (SubscriptionPastDue) EventType() string { return TypeSubscriptionPastDue }

func (e SubscriptionPastDue) Record() *Record {
	return &Record{
		Type: TypeSubscriptionPastDue,
		Attributes: map[string]string{
			"subscription": e.SubscriptionID,
			"invoice":      e.InvoiceID,
			"reason":       e.FailureReason,
		},
	}
}

type SubscriptionCanceled struct {
	SubscriptionID string
	Immediate      bool
	Reason         string
}

func (SubscriptionCanceled) EventType() string { return TypeSubscriptionCanceled }

func (e SubscriptionCanceled) Record() *Record {
	return &Record{
		Type: TypeSubscriptionCanceled,
		Attributes: map[string]string{
			"subscription": e.SubscriptionID,
			"immediate":    strconv.FormatBool(e.Immediate),
			"reason":       e.Reason,
		},
	}
}

type SubscriptionPlanChanged struct {
	SubscriptionID string
	PlanID         string
	AmountCents    int64
	Interval       string
}

func (SubscriptionPlanChanged) EventType() string { return TypeSubscriptionPlanChanged }

func (e SubscriptionPlanChanged) Record() *Record {
	return &Record{
		Type: TypeSubscriptionPlanChanged,
		Attributes: map[string]string{
			"subscription": e.SubscriptionID,
			"plan":         e.PlanID,
			"amount":       strconv.FormatInt(e.AmountCents, 10),
			"interval":     e.Interval,
		},
	}
}
