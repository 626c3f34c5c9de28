package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"payward/native/payments"
)

var _ payments.Store = (*Store)(nil)

// InsertTransaction stores a new payment transaction.
func (s *Store) InsertTransaction(ctx context.Context, tx *payments.Transaction) error {
	dispute, err := marshalDispute(tx.Dispute)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transactions (
            id, payer_id, payer_email, recipient_id, gross_cents, currency,
            payment_type, method, commission_bps, fee_cents, net_cents, status,
            processor_name, processor_ref, expected_points, awarded_points,
            loyalty_processed, refunded_cents, refund_reason, dispute,
            created_at, updated_at
         ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.PayerID, tx.PayerEmail, tx.RecipientID, tx.GrossCents, tx.Currency,
		tx.PaymentType, tx.Method, tx.CommissionBps, tx.FeeCents, tx.NetCents, string(tx.Status),
		tx.ProcessorName, tx.ProcessorRef, tx.ExpectedPoints, tx.AwardedPoints,
		boolToInt(tx.LoyaltyProcessed), tx.RefundedCents, tx.RefundReason, dispute,
		tx.CreatedAt, tx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("storage: insert transaction: %w", err)
	}
	return nil
}

// Transaction returns the transaction by id, or nil when absent.
func (s *Store) Transaction(ctx context.Context, id string) (*payments.Transaction, error) {
	row := s.db.QueryRowContext(ctx, transactionSelect+` WHERE id = ?`, id)
	return scanTransaction(row)
}

// UpdateTransaction rewrites the mutable columns of a transaction. The
// loyalty columns are deliberately excluded; they only move through
// MarkLoyaltyProcessed.
func (s *Store) UpdateTransaction(ctx context.Context, tx *payments.Transaction) error {
	dispute, err := marshalDispute(tx.Dispute)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET
            status = ?, processor_name = ?, processor_ref = ?,
            refunded_cents = ?, refund_reason = ?, dispute = ?, updated_at = ?
         WHERE id = ?`,
		string(tx.Status), tx.ProcessorName, tx.ProcessorRef,
		tx.RefundedCents, tx.RefundReason, dispute, tx.UpdatedAt, tx.ID)
	if err != nil {
		return fmt.Errorf("storage: update transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return payments.ErrTransactionNotFound
	}
	return nil
}

// TransitionStatus moves the transaction between states with a conditional
// update, reporting false when the current status matched none of the
// accepted source states.
func (s *Store) TransitionStatus(ctx context.Context, id string, from []payments.Status, to payments.Status) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	placeholders := make([]string, len(from))
	args := make([]any, 0, len(from)+2)
	args = append(args, string(to))
	for i, status := range from {
		placeholders[i] = "?"
		args = append(args, string(status))
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET status = ?, updated_at = CURRENT_TIMESTAMP
         WHERE status IN (`+strings.Join(placeholders, ", ")+`) AND id = ?`,
		args...)
	if err != nil {
		return false, fmt.Errorf("storage: transition status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// MarkLoyaltyProcessed flips the loyalty flag and records the awarded points
// exactly once. The conditional update carries the first-writer-wins
// semantics.
func (s *Store) MarkLoyaltyProcessed(ctx context.Context, id string, points int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions
         SET loyalty_processed = 1, awarded_points = ?, updated_at = CURRENT_TIMESTAMP
         WHERE id = ? AND loyalty_processed = 0`,
		points, id)
	if err != nil {
		return false, fmt.Errorf("storage: mark loyalty processed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// TransactionsByPayer returns the payer's most recent transactions.
func (s *Store) TransactionsByPayer(ctx context.Context, payerID string, limit int) ([]*payments.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		transactionSelect+` WHERE payer_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		payerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txs []*payments.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

const transactionSelect = `SELECT
    id, payer_id, COALESCE(payer_email, ''), COALESCE(recipient_id, ''),
    gross_cents, currency, payment_type, COALESCE(method, ''), commission_bps,
    fee_cents, net_cents, status, COALESCE(processor_name, ''),
    COALESCE(processor_ref, ''), expected_points, awarded_points,
    loyalty_processed, refunded_cents, COALESCE(refund_reason, ''), dispute,
    created_at, updated_at
 FROM transactions`

func scanTransaction(row rowScanner) (*payments.Transaction, error) {
	var tx payments.Transaction
	var status string
	var processed int
	var dispute []byte
	var createdAt, updatedAt time.Time
	err := row.Scan(&tx.ID, &tx.PayerID, &tx.PayerEmail, &tx.RecipientID,
		&tx.GrossCents, &tx.Currency, &tx.PaymentType, &tx.Method, &tx.CommissionBps,
		&tx.FeeCents, &tx.NetCents, &status, &tx.ProcessorName,
		&tx.ProcessorRef, &tx.ExpectedPoints, &tx.AwardedPoints,
		&processed, &tx.RefundedCents, &tx.RefundReason, &dispute,
		&createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tx.Status = payments.Status(status)
	tx.LoyaltyProcessed = processed != 0
	tx.CreatedAt = createdAt.UTC()
	tx.UpdatedAt = updatedAt.UTC()
	if len(dispute) > 0 {
		var d payments.Dispute
		if err := json.Unmarshal(dispute, &d); err != nil {
			return nil, fmt.Errorf("storage: decode dispute: %w", err)
		}
		tx.Dispute = &d
	}
	return &tx, nil
}

func marshalDispute(d *payments.Dispute) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("storage: encode dispute: %w", err)
	}
	return raw, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
