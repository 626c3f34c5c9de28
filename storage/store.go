// Package storage persists loyalty, payment, and subscription state in
// SQLite. The store is the only layer aware of SQL; engines depend on the
// narrow interfaces defined in their own packages, all of which *Store
// satisfies. Balance and status invariants are enforced here with conditional
// updates so they hold under concurrent writers.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrIdempotencyConflict indicates an idempotency key reused with a different
// request payload.
var ErrIdempotencyConflict = errors.New("storage: idempotency key conflict")

// Store wraps a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	// Serialize writers through a single connection; SQLite locks the whole
	// database on write anyway and this avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	store := &Store{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS loyalty_accounts (
            owner_id TEXT PRIMARY KEY,
            points_balance INTEGER NOT NULL DEFAULT 0,
            lifetime_points INTEGER NOT NULL DEFAULT 0,
            tier TEXT NOT NULL,
            referral_code TEXT NOT NULL UNIQUE,
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS loyalty_entries (
            id TEXT PRIMARY KEY,
            owner_id TEXT NOT NULL,
            delta INTEGER NOT NULL,
            balance INTEGER NOT NULL,
            reason TEXT NOT NULL,
            reference TEXT,
            created_at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_loyalty_entries_owner
            ON loyalty_entries(owner_id, created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS loyalty_redemptions (
            id TEXT PRIMARY KEY,
            owner_id TEXT NOT NULL,
            reward_id TEXT NOT NULL,
            coupon_code TEXT NOT NULL,
            points_cost INTEGER NOT NULL,
            created_at TIMESTAMP NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS loyalty_referrals (
            referrer_id TEXT NOT NULL,
            referee_id TEXT NOT NULL,
            reference TEXT,
            created_at TIMESTAMP NOT NULL,
            UNIQUE(referrer_id, referee_id)
        );`,
		`CREATE TABLE IF NOT EXISTS transactions (
            id TEXT PRIMARY KEY,
            payer_id TEXT NOT NULL,
            payer_email TEXT,
            recipient_id TEXT,
            gross_cents INTEGER NOT NULL,
            currency TEXT NOT NULL,
            payment_type TEXT NOT NULL,
            method TEXT,
            commission_bps INTEGER NOT NULL,
            fee_cents INTEGER NOT NULL,
            net_cents INTEGER NOT NULL,
            status TEXT NOT NULL,
            processor_name TEXT,
            processor_ref TEXT,
            expected_points INTEGER NOT NULL DEFAULT 0,
            awarded_points INTEGER NOT NULL DEFAULT 0,
            loyalty_processed INTEGER NOT NULL DEFAULT 0,
            refunded_cents INTEGER NOT NULL DEFAULT 0,
            refund_reason TEXT,
            dispute BLOB,
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_payer
            ON transactions(payer_id, created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
            id TEXT PRIMARY KEY,
            owner_id TEXT NOT NULL,
            owner_email TEXT,
            plan_id TEXT NOT NULL,
            plan_name TEXT NOT NULL,
            amount_cents INTEGER NOT NULL,
            currency TEXT NOT NULL,
            interval TEXT NOT NULL,
            status TEXT NOT NULL,
            processor_name TEXT NOT NULL,
            payment_method_id TEXT NOT NULL,
            trial_ends_at TIMESTAMP,
            current_period_start TIMESTAMP NOT NULL,
            current_period_end TIMESTAMP NOT NULL,
            next_billing_date TIMESTAMP NOT NULL,
            cancel_at_period_end INTEGER NOT NULL DEFAULT 0,
            canceled_at TIMESTAMP,
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS subscription_invoices (
            id TEXT PRIMARY KEY,
            subscription_id TEXT NOT NULL,
            external_id TEXT NOT NULL,
            amount_cents INTEGER NOT NULL,
            status TEXT NOT NULL,
            failure_reason TEXT,
            transaction_id TEXT,
            created_at TIMESTAMP NOT NULL,
            UNIQUE(subscription_id, external_id)
        );`,
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
            key TEXT PRIMARY KEY,
            request_hash TEXT NOT NULL,
            response_status INTEGER NOT NULL,
            response_body BLOB NOT NULL,
            created_at TIMESTAMP NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS audit_log (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            occurred_at TIMESTAMP NOT NULL,
            actor TEXT,
            method TEXT NOT NULL,
            path TEXT NOT NULL,
            response_status INTEGER
        );`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("storage: apply schema: %w", err)
		}
	}
	return nil
}

// SaveIdempotentResponse stores a response under an idempotency key. A key
// reused with a different request hash fails with ErrIdempotencyConflict.
func (s *Store) SaveIdempotentResponse(ctx context.Context, key, requestHash string, status int, body []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO idempotency_keys (key, request_hash, response_status, response_body, created_at)
         VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
         ON CONFLICT(key) DO NOTHING`,
		key, requestHash, status, body)
	return err
}

// IdempotentResponse returns the stored response for a key, or found=false.
func (s *Store) IdempotentResponse(ctx context.Context, key, requestHash string) (status int, body []byte, found bool, err error) {
	var storedHash string
	row := s.db.QueryRowContext(ctx,
		`SELECT request_hash, response_status, response_body FROM idempotency_keys WHERE key = ?`, key)
	switch err := row.Scan(&storedHash, &status, &body); {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil, false, nil
	case err != nil:
		return 0, nil, false, err
	}
	if storedHash != requestHash {
		return 0, nil, false, ErrIdempotencyConflict
	}
	return status, body, true, nil
}

// AppendAudit records a gateway request in the audit trail.
func (s *Store) AppendAudit(ctx context.Context, actor, method, path string, status int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (occurred_at, actor, method, path, response_status)
         VALUES (CURRENT_TIMESTAMP, ?, ?, ?, ?)`,
		actor, method, path, status)
	return err
}
