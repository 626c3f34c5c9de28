package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"payward/native/loyalty"
)

var _ loyalty.Store = (*Store)(nil)

// LoyaltyAccount returns the account for the owner, or nil when absent.
func (s *Store) LoyaltyAccount(ctx context.Context, ownerID string) (*loyalty.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT owner_id, points_balance, lifetime_points, tier, referral_code, created_at, updated_at
         FROM loyalty_accounts WHERE owner_id = ?`, ownerID)
	return scanLoyaltyAccount(row)
}

// AccountByReferralCode resolves a referral code to its account, or nil.
func (s *Store) AccountByReferralCode(ctx context.Context, code string) (*loyalty.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT owner_id, points_balance, lifetime_points, tier, referral_code, created_at, updated_at
         FROM loyalty_accounts WHERE referral_code = ?`, code)
	return scanLoyaltyAccount(row)
}

// InsertLoyaltyAccount creates the account. When a concurrent insert for the
// same owner wins the race, the stored row is returned instead of an error.
func (s *Store) InsertLoyaltyAccount(ctx context.Context, account *loyalty.Account) (*loyalty.Account, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO loyalty_accounts (owner_id, points_balance, lifetime_points, tier, referral_code, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(owner_id) DO NOTHING`,
		account.OwnerID, account.PointsBalance, account.LifetimePoints,
		string(account.Tier), account.ReferralCode, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("storage: insert loyalty account: %w", err)
	}
	stored, err := s.LoyaltyAccount(ctx, account.OwnerID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("storage: loyalty account %s missing after insert", account.OwnerID)
	}
	return stored, nil
}

// ApplyPointsDelta applies a signed delta and appends the history entry in
// one transaction. Without clamp, a delta that would drive the balance
// negative fails with loyalty.ErrInsufficientPoints; with clamp the deduction
// is truncated at zero. Lifetime points only ever grow.
func (s *Store) ApplyPointsDelta(ctx context.Context, ownerID string, delta int64, clamp bool, entry *loyalty.PointsEntry) (*loyalty.Account, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	applied := delta
	if clamp && delta < 0 {
		var balance int64
		row := tx.QueryRowContext(ctx,
			`SELECT points_balance FROM loyalty_accounts WHERE owner_id = ?`, ownerID)
		if err := row.Scan(&balance); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, 0, loyalty.ErrAccountNotFound
			}
			return nil, 0, err
		}
		if -applied > balance {
			applied = -balance
		}
	}

	lifetime := int64(0)
	if applied > 0 {
		lifetime = applied
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE loyalty_accounts
         SET points_balance = points_balance + ?,
             lifetime_points = lifetime_points + ?,
             updated_at = ?
         WHERE owner_id = ? AND points_balance + ? >= 0`,
		applied, lifetime, entry.CreatedAt, ownerID, applied)
	if err != nil {
		return nil, 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, 0, err
	}
	if affected == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM loyalty_accounts WHERE owner_id = ?`, ownerID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, 0, loyalty.ErrAccountNotFound
			}
			return nil, 0, err
		}
		return nil, 0, loyalty.ErrInsufficientPoints
	}

	account, err := scanLoyaltyAccount(tx.QueryRowContext(ctx,
		`SELECT owner_id, points_balance, lifetime_points, tier, referral_code, created_at, updated_at
         FROM loyalty_accounts WHERE owner_id = ?`, ownerID))
	if err != nil {
		return nil, 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO loyalty_entries (id, owner_id, delta, balance, reason, reference, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, ownerID, applied, account.PointsBalance, entry.Reason, entry.Reference, entry.CreatedAt); err != nil {
		return nil, 0, err
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, err
	}
	return account, applied, nil
}

// InsertRedemption deducts the points cost and records the redemption
// atomically. A short balance fails with loyalty.ErrInsufficientPoints and
// writes nothing.
func (s *Store) InsertRedemption(ctx context.Context, rec *loyalty.Redemption) (*loyalty.Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE loyalty_accounts
         SET points_balance = points_balance - ?, updated_at = ?
         WHERE owner_id = ? AND points_balance >= ?`,
		rec.PointsCost, rec.CreatedAt, rec.OwnerID, rec.PointsCost)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, loyalty.ErrInsufficientPoints
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO loyalty_redemptions (id, owner_id, reward_id, coupon_code, points_cost, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OwnerID, rec.RewardID, rec.CouponCode, rec.PointsCost, rec.CreatedAt); err != nil {
		return nil, err
	}
	account, err := scanLoyaltyAccount(tx.QueryRowContext(ctx,
		`SELECT owner_id, points_balance, lifetime_points, tier, referral_code, created_at, updated_at
         FROM loyalty_accounts WHERE owner_id = ?`, rec.OwnerID))
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO loyalty_entries (id, owner_id, delta, balance, reason, reference, created_at)
         VALUES (?, ?, ?, ?, 'redemption', ?, ?)`,
		rec.ID+"-entry", rec.OwnerID, -rec.PointsCost, account.PointsBalance, rec.RewardID, rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return account, nil
}

// InsertReferral records a referral pair, reporting false when the pair was
// already processed. The UNIQUE(referrer, referee) constraint carries the
// idempotence.
func (s *Store) InsertReferral(ctx context.Context, ref *loyalty.Referral) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO loyalty_referrals (referrer_id, referee_id, reference, created_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(referrer_id, referee_id) DO NOTHING`,
		ref.ReferrerID, ref.RefereeID, ref.Reference, ref.CreatedAt)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// PointsHistory returns the most recent history entries, newest first.
func (s *Store) PointsHistory(ctx context.Context, ownerID string, limit int) ([]loyalty.PointsEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, delta, balance, reason, COALESCE(reference, ''), created_at
         FROM loyalty_entries WHERE owner_id = ?
         ORDER BY created_at DESC, id DESC LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []loyalty.PointsEntry
	for rows.Next() {
		var e loyalty.PointsEntry
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Delta, &e.Balance, &e.Reason, &e.Reference, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Redemptions returns the most recent redemptions, newest first.
func (s *Store) Redemptions(ctx context.Context, ownerID string, limit int) ([]loyalty.Redemption, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, reward_id, coupon_code, points_cost, created_at
         FROM loyalty_redemptions WHERE owner_id = ?
         ORDER BY created_at DESC, id DESC LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []loyalty.Redemption
	for rows.Next() {
		var r loyalty.Redemption
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.RewardID, &r.CouponCode, &r.PointsCost, &r.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Referrals returns referrals paid out to the referrer.
func (s *Store) Referrals(ctx context.Context, referrerID string) ([]loyalty.Referral, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT referrer_id, referee_id, COALESCE(reference, ''), created_at
         FROM loyalty_referrals WHERE referrer_id = ? ORDER BY created_at DESC`, referrerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []loyalty.Referral
	for rows.Next() {
		var r loyalty.Referral
		if err := rows.Scan(&r.ReferrerID, &r.RefereeID, &r.Reference, &r.CreatedAt); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoyaltyAccount(row rowScanner) (*loyalty.Account, error) {
	var account loyalty.Account
	var tier string
	var createdAt, updatedAt time.Time
	err := row.Scan(&account.OwnerID, &account.PointsBalance, &account.LifetimePoints,
		&tier, &account.ReferralCode, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	account.Tier = loyalty.Tier(tier)
	account.CreatedAt = createdAt.UTC()
	account.UpdatedAt = updatedAt.UTC()
	return &account, nil
}
