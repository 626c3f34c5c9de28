package loyalty

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type memStore struct {
	accounts    map[string]*Account
	history     map[string][]PointsEntry
	redemptions map[string][]Redemption
	referrals   map[string]Referral
}

func newMemStore() *memStore {
	return &memStore{
		accounts:    make(map[string]*Account),
		history:     make(map[string][]PointsEntry),
		redemptions: make(map[string][]Redemption),
		referrals:   make(map[string]Referral),
	}
}

func (m *memStore) LoyaltyAccount(_ context.Context, ownerID string) (*Account, error) {
	acct, ok := m.accounts[ownerID]
	if !ok {
		return nil, nil
	}
	return acct.Clone(), nil
}

func (m *memStore) InsertLoyaltyAccount(_ context.Context, account *Account) (*Account, error) {
	if existing, ok := m.accounts[account.OwnerID]; ok {
		return existing.Clone(), nil
	}
	m.accounts[account.OwnerID] = account.Clone()
	return account.Clone(), nil
}

func (m *memStore) AccountByReferralCode(_ context.Context, code string) (*Account, error) {
	for _, acct := range m.accounts {
		if acct.ReferralCode == code {
			return acct.Clone(), nil
		}
	}
	return nil, nil
}

func (m *memStore) ApplyPointsDelta(_ context.Context, ownerID string, delta int64, clamp bool, entry *PointsEntry) (*Account, int64, error) {
	acct, ok := m.accounts[ownerID]
	if !ok {
		return nil, 0, ErrAccountNotFound
	}
	applied := delta
	next := acct.PointsBalance + delta
	if next < 0 {
		if !clamp {
			return nil, 0, ErrInsufficientPoints
		}
		applied = -acct.PointsBalance
		next = 0
	}
	acct.PointsBalance = next
	if applied > 0 {
		acct.LifetimePoints += applied
	}
	acct.UpdatedAt = entry.CreatedAt
	stored := *entry
	stored.Delta = applied
	stored.Balance = next
	m.history[ownerID] = append(m.history[ownerID], stored)
	return acct.Clone(), applied, nil
}

func (m *memStore) InsertRedemption(_ context.Context, rec *Redemption) (*Account, error) {
	acct, ok := m.accounts[rec.OwnerID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	if acct.PointsBalance < rec.PointsCost {
		return nil, ErrInsufficientPoints
	}
	acct.PointsBalance -= rec.PointsCost
	m.redemptions[rec.OwnerID] = append(m.redemptions[rec.OwnerID], *rec)
	m.history[rec.OwnerID] = append(m.history[rec.OwnerID], PointsEntry{
		OwnerID:   rec.OwnerID,
		Delta:     -rec.PointsCost,
		Balance:   acct.PointsBalance,
		Reason:    "reward_redemption",
		Reference: rec.RewardID,
		CreatedAt: rec.CreatedAt,
	})
	return acct.Clone(), nil
}

func (m *memStore) InsertReferral(_ context.Context, ref *Referral) (bool, error) {
	key := ref.ReferrerID + "|" + ref.RefereeID
	if _, ok := m.referrals[key]; ok {
		return false, nil
	}
	m.referrals[key] = *ref
	return true, nil
}

func (m *memStore) PointsHistory(_ context.Context, ownerID string, _ int) ([]PointsEntry, error) {
	return m.history[ownerID], nil
}

func (m *memStore) Redemptions(_ context.Context, ownerID string, _ int) ([]Redemption, error) {
	return m.redemptions[ownerID], nil
}

func (m *memStore) Referrals(_ context.Context, referrerID string) ([]Referral, error) {
	var out []Referral
	for _, ref := range m.referrals {
		if ref.ReferrerID == referrerID {
			out = append(out, ref)
		}
	}
	return out, nil
}

func newTestLedger(t *testing.T) (*Ledger, *memStore) {
	t.Helper()
	store := newMemStore()
	ledger := NewLedger(store)
	ledger.SetNowFunc(func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) })
	return ledger, store
}

func TestTierThresholdBoundaries(t *testing.T) {
	policy := DefaultPolicy()
	cases := []struct {
		balance int64
		want    Tier
	}{
		{0, TierBronze},
		{999, TierBronze},
		{1_000, TierSilver},
		{4_999, TierSilver},
		{5_000, TierGold},
		{14_999, TierGold},
		{15_000, TierPlatinum},
		{1_000_000, TierPlatinum},
	}
	for _, tc := range cases {
		if got := policy.TierFor(tc.balance); got != tc.want {
			t.Fatalf("TierFor(%d) = %s, want %s", tc.balance, got, tc.want)
		}
	}
}

func TestTierMonotonicInPoints(t *testing.T) {
	policy := DefaultPolicy()
	prev := 0
	for balance := int64(0); balance <= 20_000; balance += 250 {
		rank := tierRank(policy.TierFor(balance))
		if rank < prev {
			t.Fatalf("tier rank decreased at balance %d", balance)
		}
		prev = rank
	}
}

func TestPurchasePointsFormula(t *testing.T) {
	policy := DefaultPolicy()
	cases := []struct {
		amountCents int64
		paymentType string
		tier        Tier
		want        int64
	}{
		{10_000, "product", TierBronze, 100},
		{10_000, "service", TierBronze, 120},
		{10_000, "bundle", TierBronze, 150},
		{10_000, "subscription", TierBronze, 200},
		{10_000, "product", TierSilver, 125},
		{10_000, "service", TierGold, 180},
		{10_000, "bundle", TierPlatinum, 300},
		{999, "product", TierBronze, 9},
		{0, "product", TierBronze, 0},
		{-500, "product", TierBronze, 0},
		{10_000, "unknown", TierBronze, 100},
	}
	for _, tc := range cases {
		if got := policy.PurchasePoints(tc.amountCents, tc.paymentType, tc.tier); got != tc.want {
			t.Fatalf("PurchasePoints(%d, %s, %s) = %d, want %d", tc.amountCents, tc.paymentType, tc.tier, got, tc.want)
		}
	}
}

func TestGetOrCreateAccountIdempotent(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	first, err := ledger.GetOrCreateAccount(ctx, "owner-1")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if first.ReferralCode == "" {
		t.Fatalf("expected referral code to be generated")
	}
	if !strings.HasPrefix(first.ReferralCode, "OWNE-") {
		t.Fatalf("unexpected referral code shape %q", first.ReferralCode)
	}
	second, err := ledger.GetOrCreateAccount(ctx, "owner-1")
	if err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if second.ReferralCode != first.ReferralCode {
		t.Fatalf("expected stable referral code, got %q then %q", first.ReferralCode, second.ReferralCode)
	}
}

func TestAddPointsNeverNegative(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	if _, err := ledger.AddPoints(ctx, "owner-1", 100, "purchase", "tx-1"); err != nil {
		t.Fatalf("add points: %v", err)
	}
	_, err := ledger.AddPoints(ctx, "owner-1", -150, "manual_adjustment", "adj-1")
	if !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("expected ErrInsufficientPoints, got %v", err)
	}
	acct := store.accounts["owner-1"]
	if acct.PointsBalance != 100 {
		t.Fatalf("balance mutated on failed deduction: %d", acct.PointsBalance)
	}
	if len(store.history["owner-1"]) != 1 {
		t.Fatalf("expected no history entry for failed deduction, got %d", len(store.history["owner-1"]))
	}
}

func TestAddPointsTierUpgrade(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	result, err := ledger.AddPoints(ctx, "owner-1", 1_200, "purchase", "tx-1")
	if err != nil {
		t.Fatalf("add points: %v", err)
	}
	if !result.TierUpgraded {
		t.Fatalf("expected tier upgrade")
	}
	if result.PreviousTier != TierBronze || result.NewTier != TierSilver {
		t.Fatalf("unexpected transition %s -> %s", result.PreviousTier, result.NewTier)
	}
}

func TestReversePointsClampsAtZero(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	if _, err := ledger.AddPoints(ctx, "owner-1", 30, "purchase", "tx-1"); err != nil {
		t.Fatalf("add points: %v", err)
	}
	result, err := ledger.ReversePoints(ctx, "owner-1", 50, "tx-1")
	if err != nil {
		t.Fatalf("reverse points: %v", err)
	}
	if result.Requested != 50 || result.Applied != 30 {
		t.Fatalf("unexpected reversal requested=%d applied=%d", result.Requested, result.Applied)
	}
	if store.accounts["owner-1"].PointsBalance != 0 {
		t.Fatalf("expected clamped zero balance, got %d", store.accounts["owner-1"].PointsBalance)
	}
	// The clamp path still appends history.
	entries := store.history["owner-1"]
	if len(entries) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(entries))
	}
	if entries[1].Delta != -30 {
		t.Fatalf("expected applied delta -30 on history, got %d", entries[1].Delta)
	}
}

func TestRedeemRewardNotFound(t *testing.T) {
	ledger, _ := newTestLedger(t)
	_, err := ledger.RedeemReward(context.Background(), "owner-1", "no-such-reward")
	if !errors.Is(err, ErrRewardNotFound) {
		t.Fatalf("expected ErrRewardNotFound, got %v", err)
	}
}

func TestRedeemRewardInsufficientLeavesAccountUntouched(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	if _, err := ledger.AddPoints(ctx, "owner-1", 100, "purchase", "tx-1"); err != nil {
		t.Fatalf("add points: %v", err)
	}
	_, err := ledger.RedeemReward(ctx, "owner-1", "discount-5")
	if !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("expected ErrInsufficientPoints, got %v", err)
	}
	if store.accounts["owner-1"].PointsBalance != 100 {
		t.Fatalf("balance mutated: %d", store.accounts["owner-1"].PointsBalance)
	}
	if len(store.redemptions["owner-1"]) != 0 {
		t.Fatalf("expected no redemption record")
	}
	if len(store.history["owner-1"]) != 1 {
		t.Fatalf("expected no extra history entry")
	}
}

func TestRedeemRewardSuccess(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	if _, err := ledger.AddPoints(ctx, "owner-1", 1_000, "purchase", "tx-1"); err != nil {
		t.Fatalf("add points: %v", err)
	}
	result, err := ledger.RedeemReward(ctx, "owner-1", "discount-5")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if result.PointsRemaining != 500 {
		t.Fatalf("expected 500 remaining, got %d", result.PointsRemaining)
	}
	if !strings.HasPrefix(result.CouponCode, "DISCOUNT-5-") {
		t.Fatalf("unexpected coupon code %q", result.CouponCode)
	}
	if len(store.redemptions["owner-1"]) != 1 {
		t.Fatalf("expected redemption record")
	}
}

func TestProcessReferral(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	referrer, err := ledger.GetOrCreateAccount(ctx, "referrer")
	if err != nil {
		t.Fatalf("create referrer: %v", err)
	}

	t.Run("invalid code", func(t *testing.T) {
		_, err := ledger.ProcessReferral(ctx, "NOPE-000000", "friend", "signup")
		if !errors.Is(err, ErrInvalidReferralCode) {
			t.Fatalf("expected ErrInvalidReferralCode, got %v", err)
		}
	})

	t.Run("self referral", func(t *testing.T) {
		_, err := ledger.ProcessReferral(ctx, referrer.ReferralCode, "referrer", "signup")
		if !errors.Is(err, ErrSelfReferral) {
			t.Fatalf("expected ErrSelfReferral, got %v", err)
		}
	})

	t.Run("awards both sides once", func(t *testing.T) {
		result, err := ledger.ProcessReferral(ctx, referrer.ReferralCode, "friend", "signup")
		if err != nil {
			t.Fatalf("process referral: %v", err)
		}
		if result.AlreadyProcessed {
			t.Fatalf("first referral reported as already processed")
		}
		if result.ReferrerPoints != 500 || result.RefereePoints != 250 {
			t.Fatalf("unexpected awards %d/%d", result.ReferrerPoints, result.RefereePoints)
		}

		repeat, err := ledger.ProcessReferral(ctx, referrer.ReferralCode, "friend", "signup")
		if err != nil {
			t.Fatalf("repeat referral: %v", err)
		}
		if !repeat.AlreadyProcessed {
			t.Fatalf("expected AlreadyProcessed on repeat")
		}

		acct, err := ledger.GetOrCreateAccount(ctx, "referrer")
		if err != nil {
			t.Fatalf("reload referrer: %v", err)
		}
		if acct.PointsBalance != 500 {
			t.Fatalf("referrer double-awarded: %d", acct.PointsBalance)
		}
	})
}

func TestSnapshotMissingAccount(t *testing.T) {
	ledger, _ := newTestLedger(t)
	_, err := ledger.Snapshot(context.Background(), "ghost", 10)
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
