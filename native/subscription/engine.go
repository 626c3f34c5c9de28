// Package subscription manages recurring plan lifecycles: trials, invoice
// processing, cancellation, and plan changes. Invoice events are idempotent
// per subscription and external invoice id.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"payward/core/events"
)

// Store is the persistence the engine depends on. InsertInvoice must be a
// first-writer-wins insert keyed on (subscription, external invoice id) so
// replayed processor events never mutate state twice.
type Store interface {
	InsertSubscription(ctx context.Context, sub *Subscription) error
	// Subscription returns nil, nil when the id is unknown.
	Subscription(ctx context.Context, id string) (*Subscription, error)
	UpdateSubscription(ctx context.Context, sub *Subscription) error
	// InsertInvoice reports false when the invoice was already recorded.
	InsertInvoice(ctx context.Context, invoice *Invoice) (bool, error)
	// AttachInvoiceTransaction backfills the payment transaction recorded for
	// a settled invoice.
	AttachInvoiceTransaction(ctx context.Context, invoiceID, transactionID string) error
	Invoices(ctx context.Context, subscriptionID string) ([]Invoice, error)
	// PendingCancellations lists subscriptions flagged for period-end
	// cancellation whose period has ended.
	PendingCancellations(ctx context.Context, cutoff time.Time) ([]*Subscription, error)
}

// TransactionRecorder records a settled subscription charge as a payment
// transaction so commission and loyalty accounting see recurring revenue.
type TransactionRecorder interface {
	RecordCharge(ctx context.Context, charge Charge) (transactionID string, err error)
}

// Charge describes a settled invoice handed to the payments side.
type Charge struct {
	OwnerID     string
	OwnerEmail  string
	AmountCents int64
	Currency    string
	InvoiceID   string
	Description string
}

// Notifier delivers fire-and-forget customer notifications.
type Notifier interface {
	Send(ctx context.Context, recipient, kind string, data map[string]string)
}

// Engine drives the subscription lifecycle against a Store.
type Engine struct {
	store    Store
	recorder TransactionRecorder
	notifier Notifier
	emitter  events.Emitter
	logger   *slog.Logger
	nowFn    func() time.Time
}

// NewEngine constructs an engine. Collaborators are attached via setters.
func NewEngine(store Store) *Engine {
	return &Engine{
		store:   store,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		nowFn:   time.Now,
	}
}

// SetRecorder attaches the payments-side recorder for settled invoices.
func (e *Engine) SetRecorder(recorder TransactionRecorder) { e.recorder = recorder }

// SetNotifier attaches the customer notification sink.
func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

// SetEmitter attaches an event emitter used for audit events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetLogger overrides the engine logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// SetNowFunc overrides the clock, primarily for tests.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now != nil {
		e.nowFn = now
	}
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) notify(ctx context.Context, recipient, kind string, data map[string]string) {
	if e.notifier == nil || strings.TrimSpace(recipient) == "" {
		return
	}
	e.notifier.Send(ctx, recipient, kind, data)
}

// CreateInput describes a new subscription.
type CreateInput struct {
	OwnerID         string
	OwnerEmail      string
	PlanID          string
	PlanName        string
	AmountCents     int64
	Currency        string
	Interval        string
	Processor       string
	PaymentMethodID string
	TrialDays       int
}

// CreateSubscription validates the input and opens the first period. With a
// trial the subscription starts trialing and the first period covers the
// trial; otherwise it starts active. The next billing date always trails the
// period end by one interval.
func (e *Engine) CreateSubscription(ctx context.Context, input CreateInput) (*Subscription, error) {
	if e == nil || e.store == nil {
		return nil, ErrNilStore
	}
	ownerID := strings.TrimSpace(input.OwnerID)
	planID := strings.TrimSpace(input.PlanID)
	planName := strings.TrimSpace(input.PlanName)
	processorName := strings.TrimSpace(input.Processor)
	paymentMethodID := strings.TrimSpace(input.PaymentMethodID)
	if ownerID == "" || planID == "" || planName == "" || processorName == "" ||
		paymentMethodID == "" || input.AmountCents <= 0 {
		return nil, ErrMissingParameters
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "USD"
	}
	interval := normalizeInterval(input.Interval)

	now := e.nowFn().UTC()
	sub := &Subscription{
		ID:                 uuid.NewString(),
		OwnerID:            ownerID,
		OwnerEmail:         strings.TrimSpace(input.OwnerEmail),
		PlanID:             planID,
		PlanName:           planName,
		AmountCents:        input.AmountCents,
		Currency:           currency,
		Interval:           interval,
		Status:             StatusActive,
		ProcessorName:      processorName,
		PaymentMethodID:    paymentMethodID,
		CurrentPeriodStart: now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if input.TrialDays > 0 {
		trialEnd := now.AddDate(0, 0, input.TrialDays)
		sub.Status = StatusTrialing
		sub.TrialEndsAt = &trialEnd
		sub.CurrentPeriodEnd = trialEnd
	} else {
		sub.CurrentPeriodEnd = NextBillingDate(now, interval)
	}
	sub.NextBillingDate = NextBillingDate(sub.CurrentPeriodEnd, interval)

	if err := e.store.InsertSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("subscription: insert: %w", err)
	}

	e.emit(events.SubscriptionCreated{
		SubscriptionID: sub.ID,
		OwnerID:        ownerID,
		PlanID:         planID,
		AmountCents:    sub.AmountCents,
		Interval:       interval,
		Trialing:       sub.Status == StatusTrialing,
	})
	e.notify(ctx, sub.OwnerEmail, "subscription_welcome", map[string]string{
		"subscription": sub.ID,
		"plan":         planName,
	})
	return sub.Clone(), nil
}

// InvoiceInput carries a processor invoice event.
type InvoiceInput struct {
	InvoiceID     string
	AmountCents   int64
	Paid          bool
	FailureReason string
}

// InvoiceResult reports how an invoice event was applied.
type InvoiceResult struct {
	SubscriptionID   string `json:"subscriptionId"`
	InvoiceID        string `json:"invoiceId"`
	Status           Status `json:"status"`
	TransactionID    string `json:"transactionId,omitempty"`
	AlreadyProcessed bool   `json:"alreadyProcessed"`
}

// ProcessPayment applies a billing outcome for one invoice. Replays of an
// already-recorded invoice return AlreadyProcessed with no state change and
// no notification. A paid invoice activates the subscription and advances the
// period; a failed one marks it past_due and leaves the period alone.
func (e *Engine) ProcessPayment(ctx context.Context, subscriptionID string, input InvoiceInput) (*InvoiceResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrNilStore
	}
	sub, err := e.loadSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status == StatusCanceled {
		return nil, ErrSubscriptionCanceled
	}
	externalID := strings.TrimSpace(input.InvoiceID)
	if externalID == "" {
		return nil, ErrInvalidInvoice
	}
	amount := input.AmountCents
	if amount <= 0 {
		amount = sub.AmountCents
	}

	now := e.nowFn().UTC()
	invoice := &Invoice{
		ID:             uuid.NewString(),
		SubscriptionID: sub.ID,
		ExternalID:     externalID,
		AmountCents:    amount,
		Status:         InvoicePaid,
		CreatedAt:      now,
	}
	if !input.Paid {
		invoice.Status = InvoiceFailed
		invoice.FailureReason = strings.TrimSpace(input.FailureReason)
	}

	// The insert claims the (subscription, invoice) pair; everything below
	// runs at most once per invoice.
	first, err := e.store.InsertInvoice(ctx, invoice)
	if err != nil {
		return nil, fmt.Errorf("subscription: insert invoice: %w", err)
	}
	if !first {
		return &InvoiceResult{
			SubscriptionID:   sub.ID,
			InvoiceID:        externalID,
			Status:           sub.Status,
			AlreadyProcessed: true,
		}, nil
	}

	var transactionID string
	if input.Paid && e.recorder != nil {
		txID, err := e.recorder.RecordCharge(ctx, Charge{
			OwnerID:     sub.OwnerID,
			OwnerEmail:  sub.OwnerEmail,
			AmountCents: amount,
			Currency:    sub.Currency,
			InvoiceID:   externalID,
			Description: sub.PlanName,
		})
		if err != nil {
			e.logger.Warn("failed to record subscription charge",
				"subscription", sub.ID, "invoice", externalID, "error", err)
		} else {
			transactionID = txID
			if err := e.store.AttachInvoiceTransaction(ctx, invoice.ID, txID); err != nil {
				e.logger.Warn("failed to attach transaction to invoice",
					"invoice", invoice.ID, "error", err)
			}
		}
	}

	if input.Paid {
		sub.Status = StatusActive
		sub.CurrentPeriodStart = sub.CurrentPeriodEnd
		sub.CurrentPeriodEnd = NextBillingDate(sub.CurrentPeriodEnd, sub.Interval)
		sub.NextBillingDate = NextBillingDate(sub.CurrentPeriodEnd, sub.Interval)
	} else {
		sub.Status = StatusPastDue
	}
	sub.UpdatedAt = now
	if err := e.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("subscription: update after invoice: %w", err)
	}

	if input.Paid {
		e.emit(events.SubscriptionInvoicePaid{
			SubscriptionID: sub.ID,
			InvoiceID:      externalID,
			AmountCents:    amount,
		})
		e.notify(ctx, sub.OwnerEmail, "subscription_receipt", map[string]string{
			"subscription": sub.ID,
			"invoice":      externalID,
			"amount":       strconv.FormatInt(amount, 10),
		})
	} else {
		e.emit(events.SubscriptionPastDue{
			SubscriptionID: sub.ID,
			InvoiceID:      externalID,
			FailureReason:  invoice.FailureReason,
		})
		e.notify(ctx, sub.OwnerEmail, "subscription_payment_failed", map[string]string{
			"subscription": sub.ID,
			"invoice":      externalID,
			"reason":       invoice.FailureReason,
		})
	}
	return &InvoiceResult{
		SubscriptionID: sub.ID,
		InvoiceID:      externalID,
		Status:         sub.Status,
		TransactionID:  transactionID,
	}, nil
}

// CancelSubscription cancels immediately or flags the subscription for
// cancellation at period end. The billing tick realizes deferred cancels.
func (e *Engine) CancelSubscription(ctx context.Context, id string, immediate bool, reason string) (*Subscription, error) {
	if e == nil || e.store == nil {
		return nil, ErrNilStore
	}
	sub, err := e.loadSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == StatusCanceled {
		return nil, ErrSubscriptionCanceled
	}
	now := e.nowFn().UTC()
	if immediate {
		sub.Status = StatusCanceled
		sub.CanceledAt = &now
		sub.CancelAtPeriodEnd = false
	} else {
		sub.CancelAtPeriodEnd = true
	}
	sub.UpdatedAt = now
	if err := e.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("subscription: cancel: %w", err)
	}
	e.emit(events.SubscriptionCanceled{
		SubscriptionID: sub.ID,
		Immediate:      immediate,
		Reason:         strings.TrimSpace(reason),
	})
	e.notify(ctx, sub.OwnerEmail, "subscription_canceled", map[string]string{
		"subscription": sub.ID,
		"immediate":    strconv.FormatBool(immediate),
	})
	return sub.Clone(), nil
}

// UpdateInput carries a plan change. Zero values leave the field unchanged.
type UpdateInput struct {
	PlanID      string
	PlanName    string
	AmountCents int64
	Interval    string
}

// UpdateSubscription applies a plan change. The next billing date is
// recomputed only when the interval actually changes; price and plan edits
// take effect at the next invoice without moving the schedule.
func (e *Engine) UpdateSubscription(ctx context.Context, id string, input UpdateInput) (*Subscription, error) {
	if e == nil || e.store == nil {
		return nil, ErrNilStore
	}
	sub, err := e.loadSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == StatusCanceled {
		return nil, ErrSubscriptionCanceled
	}
	if planID := strings.TrimSpace(input.PlanID); planID != "" {
		sub.PlanID = planID
	}
	if planName := strings.TrimSpace(input.PlanName); planName != "" {
		sub.PlanName = planName
	}
	if input.AmountCents > 0 {
		sub.AmountCents = input.AmountCents
	}
	if raw := strings.TrimSpace(input.Interval); raw != "" {
		interval := normalizeInterval(raw)
		if interval != sub.Interval {
			sub.Interval = interval
			sub.NextBillingDate = NextBillingDate(sub.CurrentPeriodEnd, interval)
		}
	}
	sub.UpdatedAt = e.nowFn().UTC()
	if err := e.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("subscription: update: %w", err)
	}
	e.emit(events.SubscriptionPlanChanged{
		SubscriptionID: sub.ID,
		PlanID:         sub.PlanID,
		AmountCents:    sub.AmountCents,
		Interval:       sub.Interval,
	})
	return sub.Clone(), nil
}

// RunBillingTick realizes deferred cancellations whose period has ended and
// returns how many subscriptions it canceled. Intended to run on a timer.
func (e *Engine) RunBillingTick(ctx context.Context, now time.Time) (int, error) {
	if e == nil || e.store == nil {
		return 0, ErrNilStore
	}
	if now.IsZero() {
		now = e.nowFn()
	}
	now = now.UTC()
	due, err := e.store.PendingCancellations(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("subscription: list pending cancellations: %w", err)
	}
	canceled := 0
	for _, sub := range due {
		sub.Status = StatusCanceled
		sub.CancelAtPeriodEnd = false
		canceledAt := now
		sub.CanceledAt = &canceledAt
		sub.UpdatedAt = now
		if err := e.store.UpdateSubscription(ctx, sub); err != nil {
			e.logger.Error("failed to realize deferred cancellation",
				"subscription", sub.ID, "error", err)
			continue
		}
		canceled++
		e.emit(events.SubscriptionCanceled{SubscriptionID: sub.ID, Reason: "period ended"})
		e.notify(ctx, sub.OwnerEmail, "subscription_canceled", map[string]string{
			"subscription": sub.ID,
			"immediate":    "false",
		})
	}
	return canceled, nil
}

// Subscription returns the stored subscription.
func (e *Engine) Subscription(ctx context.Context, id string) (*Subscription, error) {
	if e == nil || e.store == nil {
		return nil, ErrNilStore
	}
	return e.loadSubscription(ctx, id)
}

// Invoices returns the billing history for a subscription.
func (e *Engine) Invoices(ctx context.Context, id string) ([]Invoice, error) {
	if e == nil || e.store == nil {
		return nil, ErrNilStore
	}
	sub, err := e.loadSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.store.Invoices(ctx, sub.ID)
}

func (e *Engine) loadSubscription(ctx context.Context, id string) (*Subscription, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, ErrSubscriptionNotFound
	}
	sub, err := e.store.Subscription(ctx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("subscription: load: %w", err)
	}
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}

func normalizeInterval(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case IntervalDay:
		return IntervalDay
	case IntervalWeek:
		return IntervalWeek
	case IntervalYear:
		return IntervalYear
	default:
		return IntervalMonth
	}
}
