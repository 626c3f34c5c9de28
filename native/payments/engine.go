// Package payments orchestrates the payment lifecycle: authorization through
// a pluggable processor, commission withholding, fulfilment transitions,
// loyalty settlement on completion, and refund and dispute handling.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"payward/core/events"
	"payward/native/commission"
	"payward/native/loyalty"
	"payward/processor"
)

// defaultDisputeWindow bounds how long after creation a payer may open a
// dispute. Day 30 is inclusive.
const defaultDisputeWindow = 30 * 24 * time.Hour

// Store is the persistence the engine depends on. Implementations must make
// TransitionStatus a compare-and-set so concurrent refunds, completions, and
// disputes serialize on the status column, and MarkLoyaltyProcessed a
// first-writer-wins flip so points are awarded at most once per transaction.
type Store interface {
	InsertTransaction(ctx context.Context, tx *Transaction) error
	// Transaction returns nil, nil when the id is unknown.
	Transaction(ctx context.Context, id string) (*Transaction, error)
	UpdateTransaction(ctx context.Context, tx *Transaction) error
	// TransitionStatus moves the transaction from any of the listed states to
	// the target state, reporting false when the current status matched none.
	TransitionStatus(ctx context.Context, id string, from []Status, to Status) (bool, error)
	// MarkLoyaltyProcessed records the awarded points and flips the processed
	// flag, reporting false when a previous caller already won.
	MarkLoyaltyProcessed(ctx context.Context, id string, points int64) (bool, error)
}

// LoyaltyService is the slice of the loyalty ledger the orchestrator uses.
// *loyalty.Ledger satisfies it.
type LoyaltyService interface {
	GetOrCreateAccount(ctx context.Context, ownerID string) (*loyalty.Account, error)
	PurchasePoints(amountCents int64, paymentType string, tier loyalty.Tier) int64
	AddPoints(ctx context.Context, ownerID string, delta int64, reason, reference string) (*loyalty.MutationResult, error)
	ReversePoints(ctx context.Context, ownerID string, points int64, reference string) (*loyalty.ReversalResult, error)
}

// Notifier delivers fire-and-forget customer notifications.
type Notifier interface {
	Send(ctx context.Context, recipient, kind string, data map[string]string)
}

// Engine drives payment orchestration against a Store, a processor registry,
// and the loyalty ledger.
type Engine struct {
	store         Store
	ledger        LoyaltyService
	commission    commission.Policy
	processors    *processor.Registry
	retry         processor.RetryPolicy
	notifier      Notifier
	emitter       events.Emitter
	logger        *slog.Logger
	nowFn         func() time.Time
	disputeWindow time.Duration
}

// NewEngine constructs an engine with the default commission policy and a
// manual-only processor registry. Collaborators are attached via setters.
func NewEngine(store Store) *Engine {
	return &Engine{
		store:         store,
		commission:    commission.DefaultPolicy(),
		processors:    processor.NewRegistry(),
		retry:         processor.DefaultRetryPolicy(),
		emitter:       events.NoopEmitter{},
		logger:        slog.Default(),
		nowFn:         time.Now,
		disputeWindow: defaultDisputeWindow,
	}
}

// SetLoyalty attaches the loyalty ledger used for tier lookups and point
// settlement. Without one, payments settle with no points and default-tier
// commission.
func (e *Engine) SetLoyalty(ledger LoyaltyService) { e.ledger = ledger }

// SetCommissionPolicy replaces the commission schedule.
func (e *Engine) SetCommissionPolicy(policy commission.Policy) {
	e.commission = policy.Normalize()
}

// SetProcessors replaces the processor registry.
func (e *Engine) SetProcessors(registry *processor.Registry) {
	if registry != nil {
		e.processors = registry
	}
}

// SetRetryPolicy overrides the provider retry schedule.
func (e *Engine) SetRetryPolicy(policy processor.RetryPolicy) { e.retry = policy }

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

// SetDisputeWindow overrides the dispute deadline.
func (e *Engine) SetDisputeWindow(window time.Duration) {
	if window > 0 {
		e.disputeWindow = window
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

// PaymentInput describes a payment to orchestrate.
type PaymentInput struct {
	PayerID             string
	PayerEmail          string
	RecipientID         string
	AmountCents         int64
	Currency            string
	PaymentType         string
	Method              string
	Description         string
	RecipientSubscriber bool
}

// PaymentResult is returned for both successful and declined payments.
// Provider declines and outages are reported in-band with Success false so
// callers can surface the message without unwrapping errors.
type PaymentResult struct {
	Success        bool   `json:"success"`
	TransactionID  string `json:"transactionId"`
	Status         Status `json:"status"`
	AmountCents    int64  `json:"amountCents"`
	FeeCents       int64  `json:"feeCents"`
	RecipientCents int64  `json:"recipientCents"`
	ExpectedPoints int64  `json:"expectedPoints"`
	ClientSecret   string `json:"clientSecret,omitempty"`
	Message        string `json:"message,omitempty"`
}

// ProcessPayment validates the input, snapshots the commission rate from the
// recipient's current tier, records the transaction, and authorizes it with
// the processor registered for the method. The expected loyalty points are
// quoted from the payer's tier at authorization time; the actual award happens
// at completion against the tier held then.
func (e *Engine) ProcessPayment(ctx context.Context, input PaymentInput) (*PaymentResult, error) {
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
		paymentType = "product"
	}
	method := strings.ToLower(strings.TrimSpace(input.Method))

	recipientTier := ""
	recipientID := strings.TrimSpace(input.RecipientID)
	if recipientID != "" && e.ledger != nil {
		account, err := e.ledger.GetOrCreateAccount(ctx, recipientID)
		if err != nil {
			e.logger.Warn("recipient tier lookup failed, using default rate",
				"recipient", recipientID, "error", err)
		} else {
			recipientTier = string(account.Tier)
		}
	}
	rateBps := e.commission.Rate(paymentType, recipientTier, input.RecipientSubscriber)
	fee, net := commission.Breakdown(input.AmountCents, rateBps)

	var expectedPoints int64
	if e.ledger != nil {
		payerTier := loyalty.TierBronze
		if account, err := e.ledger.GetOrCreateAccount(ctx, payerID); err != nil {
			e.logger.Warn("payer account lookup failed", "payer", payerID, "error", err)
		} else {
			payerTier = account.Tier
		}
		expectedPoints = e.ledger.PurchasePoints(input.AmountCents, paymentType, payerTier)
	}

	now := e.nowFn().UTC()
	tx := &Transaction{
		ID:             uuid.NewString(),
		PayerID:        payerID,
		PayerEmail:     strings.TrimSpace(input.PayerEmail),
		RecipientID:    recipientID,
		GrossCents:     input.AmountCents,
		Currency:       currency,
		PaymentType:    paymentType,
		Method:         method,
		CommissionBps:  rateBps,
		FeeCents:       fee,
		NetCents:       net,
		Status:         StatusPending,
		ExpectedPoints: expectedPoints,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.store.InsertTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("payments: insert transaction: %w", err)
	}

	proc := e.processors.ForMethod(method)
	var auth *processor.Authorization
	err := e.retry.Do(ctx, func(ctx context.Context) error {
		var callErr error
		auth, callErr = proc.Authorize(ctx, processor.AuthorizeRequest{
			TransactionID: tx.ID,
			AmountCents:   tx.GrossCents,
			Currency:      currency,
			Description:   strings.TrimSpace(input.Description),
			Metadata: map[string]string{
				"payer":     payerID,
				"recipient": recipientID,
				"type":      paymentType,
			},
		})
		return callErr
	})
	if err != nil {
		message := "payment processor unavailable"
		if errors.Is(err, processor.ErrDeclined) {
			message = "payment declined"
		}
		e.logger.Error("payment authorization failed",
			"transaction", tx.ID, "processor", proc.Name(), "error", err)
		return &PaymentResult{
			TransactionID:  tx.ID,
			Status:         StatusPending,
			AmountCents:    tx.GrossCents,
			FeeCents:       fee,
			RecipientCents: net,
			Message:        message,
		}, nil
	}

	tx.ProcessorName = proc.Name()
	tx.ProcessorRef = auth.Ref
	tx.Status = StatusAuthorized
	if auth.Status == "captured" {
		tx.Status = StatusCaptured
	}
	tx.UpdatedAt = e.nowFn().UTC()
	if err := e.store.UpdateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("payments: record authorization: %w", err)
	}

	e.emit(events.PaymentAuthorized{
		TransactionID: tx.ID,
		PayerID:       payerID,
		RecipientID:   recipientID,
		GrossCents:    tx.GrossCents,
		FeeCents:      fee,
		Currency:      currency,
		Method:        method,
	})
	e.notify(ctx, tx.PayerEmail, "payment_confirmation", map[string]string{
		"transaction": tx.ID,
		"amount":      strconv.FormatInt(tx.GrossCents, 10),
		"currency":    currency,
	})

	return &PaymentResult{
		Success:        true,
		TransactionID:  tx.ID,
		Status:         tx.Status,
		AmountCents:    tx.GrossCents,
		FeeCents:       fee,
		RecipientCents: net,
		ExpectedPoints: expectedPoints,
		ClientSecret:   auth.ClientSecret,
	}, nil
}

// Capture settles a previously authorized payment with its processor.
func (e *Engine) Capture(ctx context.Context, id string) (*Transaction, error) {
	if e == nil || e.store == nil {
		return nil, ErrNilStore
	}
	tx, err := e.loadTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != StatusAuthorized {
		return nil, ErrInvalidState
	}
	if tx.ProcessorRef != "" {
		proc := e.processors.ForMethod(tx.Method)
		err := e.retry.Do(ctx, func(ctx context.Context) error {
			_, callErr := proc.Capture(ctx, tx.ProcessorRef)
			return callErr
		})
		if err != nil {
			return nil, fmt.Errorf("%w: capture %s: %v", ErrProcessorUnavailable, tx.ID, err)
		}
	}
	ok, err := e.store.TransitionStatus(ctx, tx.ID, []Status{StatusAuthorized}, StatusCaptured)
	if err != nil {
		return nil, fmt.Errorf("payments: capture transition: %w", err)
	}
	if !ok {
		return nil, ErrInvalidState
	}
	e.emit(events.PaymentCaptured{TransactionID: tx.ID})
	return e.loadTransaction(ctx, tx.ID)
}

// UpdateFulfilment moves a captured transaction through processing, shipped,
// and delivered. Transitions are forward-only.
func (e *Engine) UpdateFulfilment(ctx context.Context, id string, status Status) (*Transaction, error) {
	if e == nil || e.store == nil {
		return nil, ErrNilStore
	}
	var from []Status
	switch status {
	case StatusProcessing:
		from = []Status{StatusCaptured}
	case StatusShipped:
		from = []Status{StatusCaptured, StatusProcessing}
	case StatusDelivered:
		from = []Status{StatusCaptured, StatusProcessing, StatusShipped}
	default:
		return nil, ErrInvalidState
	}
	tx, err := e.loadTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := e.store.TransitionStatus(ctx, tx.ID, from, status)
	if err != nil {
		return nil, fmt.Errorf("payments: fulfilment transition: %w", err)
	}
	if !ok {
		return nil, ErrInvalidState
	}
	return e.loadTransaction(ctx, tx.ID)
}

// Complete finalizes a payment and settles loyalty points for the payer.
// Loyalty failures are logged and do not undo the completion.
func (e *Engine) Complete(ctx context.Context, id string) (*Transaction, error) {
	if e == nil || e.store == nil {
		return nil, ErrNilStore
	}
	tx, err := e.loadTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := e.store.TransitionStatus(ctx, tx.ID, completableStates, StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("payments: complete transition: %w", err)
	}
	if !ok {
		return nil, ErrInvalidState
	}
	if _, err := e.ProcessLoyaltyAfterPayment(ctx, tx.ID); err != nil {
		e.logger.Warn("loyalty settlement failed after completion",
			"transaction", tx.ID, "error", err)
	}
	return e.loadTransaction(ctx, tx.ID)
}

// LoyaltyOutcome reports the loyalty settlement for a completed payment.
type LoyaltyOutcome struct {
	TransactionID    string `json:"transactionId"`
	PointsAwarded    int64  `json:"pointsAwarded"`
	AlreadyProcessed bool   `json:"alreadyProcessed"`
}

// ProcessLoyaltyAfterPayment awards purchase points to the payer exactly once
// per transaction. The award uses the payer's tier at settlement time, which
// may differ from the tier the quote in ProcessPayment was computed against.
func (e *Engine) ProcessLoyaltyAfterPayment(ctx context.Context, id string) (*LoyaltyOutcome, error) {
	if e == nil || e.store == nil {
		return nil, ErrNilStore
	}
	tx, err := e.loadTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != StatusCompleted {
		return nil, ErrInvalidState
	}
	if tx.LoyaltyProcessed {
		return &LoyaltyOutcome{TransactionID: tx.ID, PointsAwarded: tx.AwardedPoints, AlreadyProcessed: true}, nil
	}
	if e.ledger == nil {
		return &LoyaltyOutcome{TransactionID: tx.ID}, nil
	}

	tier := loyalty.TierBronze
	if account, err := e.ledger.GetOrCreateAccount(ctx, tx.PayerID); err != nil {
		e.logger.Warn("payer account lookup failed at settlement",
			"transaction", tx.ID, "error", err)
	} else {
		tier = account.Tier
	}
	points := e.ledger.PurchasePoints(tx.GrossCents, tx.PaymentType, tier)

	first, err := e.store.MarkLoyaltyProcessed(ctx, tx.ID, points)
	if err != nil {
		return nil, fmt.Errorf("payments: mark loyalty processed: %w", err)
	}
	if !first {
		return &LoyaltyOutcome{TransactionID: tx.ID, AlreadyProcessed: true}, nil
	}
	if points > 0 {
		if _, err := e.ledger.AddPoints(ctx, tx.PayerID, points, "purchase", tx.ID); err != nil {
			// The processed flag stays set: better to drop points than to
			// double-award on retry.
			e.logger.Error("loyalty award failed after marking processed",
				"transaction", tx.ID, "points", points, "error", err)
			return &LoyaltyOutcome{TransactionID: tx.ID}, nil
		}
	}
	e.emit(events.PaymentCompleted{TransactionID: tx.ID, PointsAwarded: points})
	return &LoyaltyOutcome{TransactionID: tx.ID, PointsAwarded: points}, nil
}

// RefundInput describes a refund request. A zero amount refunds the full
// gross.
type RefundInput struct {
	AmountCents int64
	Reason      string
}

// RefundOutcome reports an issued refund.
type RefundOutcome struct {
	TransactionID  string `json:"transactionId"`
	RefundedCents  int64  `json:"refundedCents"`
	PointsReversed int64  `json:"pointsReversed"`
	Status         Status `json:"status"`
}

// ProcessRefund refunds a transaction in any refundable state. Partial
// refunds reverse points proportionally, floored, and still move the status
// to refunded. Point reversal is best effort: a loyalty failure never undoes
// the money movement.
func (e *Engine) ProcessRefund(ctx context.Context, id string, input RefundInput) (*RefundOutcome, error) {
	if e == nil || e.store == nil {
		return nil, ErrNilStore
	}
	tx, err := e.loadTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tx.Status.Refundable() {
		return nil, ErrInvalidStateForRefund
	}
	amount := input.AmountCents
	if amount <= 0 {
		amount = tx.GrossCents
	}
	if amount > tx.GrossCents {
		return nil, ErrRefundExceedsGross
	}

	// Claim the refund before moving money so concurrent requests serialize
	// on the status transition.
	previous := tx.Status
	ok, err := e.store.TransitionStatus(ctx, tx.ID, refundableStates, StatusRefunded)
	if err != nil {
		return nil, fmt.Errorf("payments: refund transition: %w", err)
	}
	if !ok {
		return nil, ErrInvalidStateForRefund
	}
	return e.executeRefund(ctx, tx, previous, amount, input.Reason)
}

// executeRefund moves money with the processor, reverses points, and records
// the refund. The caller has already transitioned the status to refunded; on
// processor failure the previous status is restored.
func (e *Engine) executeRefund(ctx context.Context, tx *Transaction, previous Status, amount int64, reason string) (*RefundOutcome, error) {
	if tx.ProcessorRef != "" {
		proc := e.processors.ForMethod(tx.Method)
		err := e.retry.Do(ctx, func(ctx context.Context) error {
			_, callErr := proc.Refund(ctx, tx.ProcessorRef, amount, tx.Currency)
			return callErr
		})
		if err != nil {
			if _, revertErr := e.store.TransitionStatus(ctx, tx.ID, []Status{StatusRefunded}, previous); revertErr != nil {
				e.logger.Error("failed to restore status after refund failure",
					"transaction", tx.ID, "status", previous, "error", revertErr)
			}
			return nil, fmt.Errorf("%w: refund %s: %v", ErrProcessorUnavailable, tx.ID, err)
		}
	}

	var reversed int64
	if e.ledger != nil && tx.LoyaltyProcessed && tx.AwardedPoints > 0 {
		reversed = proportionalPoints(tx.AwardedPoints, amount, tx.GrossCents)
		if reversed > 0 {
			result, err := e.ledger.ReversePoints(ctx, tx.PayerID, reversed, tx.ID)
			if err != nil {
				e.logger.Warn("loyalty reversal failed during refund",
					"transaction", tx.ID, "points", reversed, "error", err)
				reversed = 0
			} else {
				reversed = result.Applied
			}
		}
	}

	tx.Status = StatusRefunded
	tx.RefundedCents = amount
	tx.RefundReason = strings.TrimSpace(reason)
	tx.UpdatedAt = e.nowFn().UTC()
	if err := e.store.UpdateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("payments: record refund: %w", err)
	}

	e.emit(events.PaymentRefunded{
		TransactionID:  tx.ID,
		RefundCents:    amount,
		PointsReversed: reversed,
		Reason:         tx.RefundReason,
	})
	e.notify(ctx, tx.PayerEmail, "refund_confirmation", map[string]string{
		"transaction": tx.ID,
		"amount":      strconv.FormatInt(amount, 10),
		"currency":    tx.Currency,
	})
	return &RefundOutcome{
		TransactionID:  tx.ID,
		RefundedCents:  amount,
		PointsReversed: reversed,
		Status:         StatusRefunded,
	}, nil
}

// proportionalPoints returns floor(awarded * refund / gross).
func proportionalPoints(awarded, refundCents, grossCents int64) int64 {
	if awarded <= 0 || refundCents <= 0 || grossCents <= 0 {
		return 0
	}
	product := new(big.Int).Mul(big.NewInt(awarded), big.NewInt(refundCents))
	product.Quo(product, big.NewInt(grossCents))
	return product.Int64()
}

// Transaction returns the stored transaction.
func (e *Engine) Transaction(ctx context.Context, id string) (*Transaction, error) {
	if e == nil || e.store == nil {
		return nil, ErrNilStore
	}
	return e.loadTransaction(ctx, id)
}

func (e *Engine) loadTransaction(ctx context.Context, id string) (*Transaction, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, ErrTransactionNotFound
	}
	tx, err := e.store.Transaction(ctx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("payments: load transaction: %w", err)
	}
	if tx == nil {
		return nil, ErrTransactionNotFound
	}
	return tx, nil
}
