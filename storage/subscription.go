package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"payward/native/subscription"
)

var _ subscription.Store = (*Store)(nil)

// InsertSubscription stores a new subscription.
func (s *Store) InsertSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (
            id, owner_id, owner_email, plan_id, plan_name, amount_cents,
            currency, interval, status, processor_name, payment_method_id,
            trial_ends_at, current_period_start, current_period_end,
            next_billing_date, cancel_at_period_end, canceled_at,
            created_at, updated_at
         ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.OwnerID, sub.OwnerEmail, sub.PlanID, sub.PlanName, sub.AmountCents,
		sub.Currency, sub.Interval, string(sub.Status), sub.ProcessorName, sub.PaymentMethodID,
		nullableTime(sub.TrialEndsAt), sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.NextBillingDate, boolToInt(sub.CancelAtPeriodEnd), nullableTime(sub.CanceledAt),
		sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("storage: insert subscription: %w", err)
	}
	return nil
}

// Subscription returns the subscription by id, or nil when absent.
func (s *Store) Subscription(ctx context.Context, id string) (*subscription.Subscription, error) {
	row := s.db.QueryRowContext(ctx, subscriptionSelect+` WHERE id = ?`, id)
	return scanSubscription(row)
}

// UpdateSubscription rewrites the mutable columns of a subscription.
func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET
            plan_id = ?, plan_name = ?, amount_cents = ?, interval = ?,
            status = ?, trial_ends_at = ?, current_period_start = ?,
            current_period_end = ?, next_billing_date = ?,
            cancel_at_period_end = ?, canceled_at = ?, updated_at = ?
         WHERE id = ?`,
		sub.PlanID, sub.PlanName, sub.AmountCents, sub.Interval,
		string(sub.Status), nullableTime(sub.TrialEndsAt), sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd, sub.NextBillingDate,
		boolToInt(sub.CancelAtPeriodEnd), nullableTime(sub.CanceledAt), sub.UpdatedAt,
		sub.ID)
	if err != nil {
		return fmt.Errorf("storage: update subscription: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return subscription.ErrSubscriptionNotFound
	}
	return nil
}

// InsertInvoice records a billing attempt, reporting false when the
// (subscription, external invoice) pair was already recorded. The UNIQUE
// constraint carries the idempotence.
func (s *Store) InsertInvoice(ctx context.Context, invoice *subscription.Invoice) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO subscription_invoices (
            id, subscription_id, external_id, amount_cents, status,
            failure_reason, transaction_id, created_at
         ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(subscription_id, external_id) DO NOTHING`,
		invoice.ID, invoice.SubscriptionID, invoice.ExternalID, invoice.AmountCents,
		string(invoice.Status), invoice.FailureReason, invoice.TransactionID, invoice.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("storage: insert invoice: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// AttachInvoiceTransaction backfills the transaction recorded for an invoice.
func (s *Store) AttachInvoiceTransaction(ctx context.Context, invoiceID, transactionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscription_invoices SET transaction_id = ? WHERE id = ?`,
		transactionID, invoiceID)
	return err
}

// Invoices returns the billing history, newest first.
func (s *Store) Invoices(ctx context.Context, subscriptionID string) ([]subscription.Invoice, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subscription_id, external_id, amount_cents, status,
                COALESCE(failure_reason, ''), COALESCE(transaction_id, ''), created_at
         FROM subscription_invoices WHERE subscription_id = ?
         ORDER BY created_at DESC, id DESC`, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var invoices []subscription.Invoice
	for rows.Next() {
		var inv subscription.Invoice
		var status string
		var createdAt time.Time
		if err := rows.Scan(&inv.ID, &inv.SubscriptionID, &inv.ExternalID, &inv.AmountCents,
			&status, &inv.FailureReason, &inv.TransactionID, &createdAt); err != nil {
			return nil, err
		}
		inv.Status = subscription.InvoiceStatus(status)
		inv.CreatedAt = createdAt.UTC()
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// PendingCancellations lists subscriptions flagged for period-end
// cancellation whose period ended at or before the cutoff.
func (s *Store) PendingCancellations(ctx context.Context, cutoff time.Time) ([]*subscription.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		subscriptionSelect+` WHERE cancel_at_period_end = 1 AND status != ? AND current_period_end <= ?`,
		string(subscription.StatusCanceled), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []*subscription.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

const subscriptionSelect = `SELECT
    id, owner_id, COALESCE(owner_email, ''), plan_id, plan_name, amount_cents,
    currency, interval, status, processor_name, payment_method_id,
    trial_ends_at, current_period_start, current_period_end, next_billing_date,
    cancel_at_period_end, canceled_at, created_at, updated_at
 FROM subscriptions`

func scanSubscription(row rowScanner) (*subscription.Subscription, error) {
	var sub subscription.Subscription
	var status string
	var cancelFlag int
	var trialEndsAt, canceledAt sql.NullTime
	var periodStart, periodEnd, nextBilling, createdAt, updatedAt time.Time
	err := row.Scan(&sub.ID, &sub.OwnerID, &sub.OwnerEmail, &sub.PlanID, &sub.PlanName,
		&sub.AmountCents, &sub.Currency, &sub.Interval, &status, &sub.ProcessorName,
		&sub.PaymentMethodID, &trialEndsAt, &periodStart, &periodEnd, &nextBilling,
		&cancelFlag, &canceledAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sub.Status = subscription.Status(status)
	sub.CancelAtPeriodEnd = cancelFlag != 0
	sub.CurrentPeriodStart = periodStart.UTC()
	sub.CurrentPeriodEnd = periodEnd.UTC()
	sub.NextBillingDate = nextBilling.UTC()
	sub.CreatedAt = createdAt.UTC()
	sub.UpdatedAt = updatedAt.UTC()
	if trialEndsAt.Valid {
		t := trialEndsAt.Time.UTC()
		sub.TrialEndsAt = &t
	}
	if canceledAt.Valid {
		t := canceledAt.Time.UTC()
		sub.CanceledAt = &t
	}
	return &sub, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
