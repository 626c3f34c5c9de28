package loyalty

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"payward/core/events"
)

// Store describes the persistence the ledger needs. Implementations must make
// ApplyPointsDelta, InsertRedemption, and InsertReferral atomic so the
// non-negative balance and single-award invariants hold under concurrent
// writers.
type Store interface {
	// LoyaltyAccount returns nil without error when no account exists.
	LoyaltyAccount(ctx context.Context, ownerID string) (*Account, error)
	// InsertLoyaltyAccount creates the account, returning the stored row. A
	// concurrent insert for the same owner must yield the winner's row rather
	// than an error.
	InsertLoyaltyAccount(ctx context.Context, account *Account) (*Account, error)
	AccountByReferralCode(ctx context.Context, code string) (*Account, error)
	// ApplyPointsDelta atomically applies a signed delta and appends the
	// history entry. When clamp is false a delta that would drive the balance
	// negative fails with ErrInsufficientPoints; when clamp is true the delta
	// is truncated at zero. The applied (possibly truncated) delta is
	// returned alongside the updated account.
	ApplyPointsDelta(ctx context.Context, ownerID string, delta int64, clamp bool, entry *PointsEntry) (*Account, int64, error)
	// InsertRedemption deducts the points cost and appends the redemption in
	// one atomic step, failing with ErrInsufficientPoints without any partial
	// write when the balance is short.
	InsertRedemption(ctx context.Context, rec *Redemption) (*Account, error)
	// InsertReferral records the pair, reporting false when the
	// (referrer, referee) combination was already processed.
	InsertReferral(ctx context.Context, ref *Referral) (bool, error)
	PointsHistory(ctx context.Context, ownerID string, limit int) ([]PointsEntry, error)
	Redemptions(ctx context.Context, ownerID string, limit int) ([]Redemption, error)
	Referrals(ctx context.Context, referrerID string) ([]Referral, error)
}

// Ledger owns point balances, tier computation, the reward catalog,
// redemption, and referral bonus issuance.
type Ledger struct {
	store   Store
	policy  Policy
	catalog *Catalog
	emitter events.Emitter
	logger  *slog.Logger
	nowFn   func() time.Time
}

// NewLedger creates a ledger with the default policy and catalog and a no-op
// emitter. Callers can override the collaborators via the Set helpers.
func NewLedger(store Store) *Ledger {
	return &Ledger{
		store:   store,
		policy:  DefaultPolicy(),
		catalog: DefaultCatalog(),
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		nowFn:   time.Now,
	}
}

// SetPolicy replaces the earning policy. The policy is normalized on use.
func (l *Ledger) SetPolicy(policy Policy) { l.policy = policy.Normalize() }

// Policy returns the active (normalized) policy.
func (l *Ledger) Policy() Policy { return l.policy.Normalize() }

// SetCatalog replaces the reward catalog. Passing nil restores the default.
func (l *Ledger) SetCatalog(catalog *Catalog) {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	l.catalog = catalog
}

// Catalog returns the active reward catalog.
func (l *Ledger) Catalog() *Catalog { return l.catalog }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

// SetLogger overrides the structured logger.
func (l *Ledger) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	l.logger = logger
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (l *Ledger) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	l.nowFn = now
}

func (l *Ledger) emit(evt events.Event) {
	if l == nil || l.emitter == nil || evt == nil {
		return
	}
	l.emitter.Emit(evt)
}

// MutationResult reports the outcome of a point mutation.
type MutationResult struct {
	Account      *Account `json:"account"`
	TierUpgraded bool     `json:"tierUpgraded"`
	PreviousTier Tier     `json:"previousTier"`
	NewTier      Tier     `json:"newTier"`
}

// ReversalResult reports a best-effort refund-driven reversal.
type ReversalResult struct {
	Account   *Account `json:"account"`
	Requested int64    `json:"requested"`
	Applied   int64    `json:"applied"`
}

// RedeemResult reports a successful catalog redemption.
type RedeemResult struct {
	Reward          Reward `json:"reward"`
	CouponCode      string `json:"couponCode"`
	PointsRemaining int64  `json:"pointsRemaining"`
}

// ReferralResult reports referral processing. AlreadyProcessed is set when the
// (referrer, referee) pair was previously awarded; no points move in that
// case.
type ReferralResult struct {
	ReferrerID       string `json:"referrerId"`
	ReferrerPoints   int64  `json:"referrerPoints"`
	RefereePoints    int64  `json:"refereePoints"`
	AlreadyProcessed bool   `json:"alreadyProcessed"`
}

// GetOrCreateAccount loads the account for the owner, creating it on first
// touch. Creation is idempotent under races: the stored row wins.
func (l *Ledger) GetOrCreateAccount(ctx context.Context, ownerID string) (*Account, error) {
	if l == nil || l.store == nil {
		return nil, ErrNilStore
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, ErrInvalidOwner
	}
	existing, err := l.store.LoyaltyAccount(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		existing.Tier = l.policy.TierFor(existing.PointsBalance)
		return existing, nil
	}
	now := l.nowFn().UTC()
	account := &Account{
		OwnerID:      ownerID,
		Tier:         TierBronze,
		ReferralCode: generateReferralCode(ownerID),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	stored, err := l.store.InsertLoyaltyAccount(ctx, account)
	if err != nil {
		return nil, err
	}
	stored.Tier = l.policy.TierFor(stored.PointsBalance)
	if stored.CreatedAt.Equal(now) {
		l.emit(events.LoyaltyAccountCreated{OwnerID: ownerID, ReferralCode: stored.ReferralCode})
	}
	return stored, nil
}

// AddPoints applies a signed point delta. Negative deltas that would drive the
// balance below zero fail with ErrInsufficientPoints; refund-driven reversals
// should use ReversePoints instead, which clamps. The history entry is
// appended atomically with the balance change and the tier is recomputed.
func (l *Ledger) AddPoints(ctx context.Context, ownerID string, delta int64, reason, reference string) (*MutationResult, error) {
	if l == nil || l.store == nil {
		return nil, ErrNilStore
	}
	account, err := l.GetOrCreateAccount(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	previousTier := account.Tier
	entry := &PointsEntry{
		ID:        uuid.NewString(),
		OwnerID:   account.OwnerID,
		Delta:     delta,
		Reason:    reason,
		Reference: reference,
		CreatedAt: l.nowFn().UTC(),
	}
	updated, applied, err := l.store.ApplyPointsDelta(ctx, account.OwnerID, delta, false, entry)
	if err != nil {
		return nil, err
	}
	updated.Tier = l.policy.TierFor(updated.PointsBalance)
	l.emit(events.LoyaltyPointsEarned{
		OwnerID:   updated.OwnerID,
		Delta:     applied,
		Balance:   updated.PointsBalance,
		Reason:    reason,
		Reference: reference,
	})
	result := &MutationResult{
		Account:      updated,
		PreviousTier: previousTier,
		NewTier:      updated.Tier,
		TierUpgraded: tierRank(updated.Tier) > tierRank(previousTier),
	}
	if result.TierUpgraded {
		l.emit(events.LoyaltyTierChanged{
			OwnerID:      updated.OwnerID,
			PreviousTier: string(previousTier),
			NewTier:      string(updated.Tier),
			Balance:      updated.PointsBalance,
		})
	}
	return result, nil
}

// ReversePoints deducts points as part of a refund. Reversal is best-effort:
// rather than failing, the deduction clamps at a zero balance and the applied
// amount is reported back.
func (l *Ledger) ReversePoints(ctx context.Context, ownerID string, points int64, reference string) (*ReversalResult, error) {
	if l == nil || l.store == nil {
		return nil, ErrNilStore
	}
	if points <= 0 {
		return nil, fmt.Errorf("loyalty: reversal points must be positive")
	}
	account, err := l.GetOrCreateAccount(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	entry := &PointsEntry{
		ID:        uuid.NewString(),
		OwnerID:   account.OwnerID,
		Delta:     -points,
		Reason:    "refund_reversal",
		Reference: reference,
		CreatedAt: l.nowFn().UTC(),
	}
	updated, applied, err := l.store.ApplyPointsDelta(ctx, account.OwnerID, -points, true, entry)
	if err != nil {
		return nil, err
	}
	updated.Tier = l.policy.TierFor(updated.PointsBalance)
	l.emit(events.LoyaltyPointsReversed{
		OwnerID:   updated.OwnerID,
		Requested: points,
		Applied:   -applied,
		Reference: reference,
	})
	return &ReversalResult{Account: updated, Requested: points, Applied: -applied}, nil
}

// RedeemReward exchanges points for a catalog reward. Failures leave the
// account untouched: no deduction, no history entry.
func (l *Ledger) RedeemReward(ctx context.Context, ownerID, rewardID string) (*RedeemResult, error) {
	if l == nil || l.store == nil {
		return nil, ErrNilStore
	}
	reward, ok := l.catalog.Find(rewardID)
	if !ok {
		return nil, ErrRewardNotFound
	}
	account, err := l.GetOrCreateAccount(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if account.PointsBalance < reward.PointsCost {
		return nil, ErrInsufficientPoints
	}
	now := l.nowFn().UTC()
	rec := &Redemption{
		ID:         uuid.NewString(),
		OwnerID:    account.OwnerID,
		RewardID:   reward.ID,
		CouponCode: generateCouponCode(reward.ID, account.OwnerID, now),
		PointsCost: reward.PointsCost,
		CreatedAt:  now,
	}
	updated, err := l.store.InsertRedemption(ctx, rec)
	if err != nil {
		return nil, err
	}
	l.emit(events.LoyaltyRewardRedeemed{
		OwnerID:    account.OwnerID,
		RewardID:   reward.ID,
		PointsCost: reward.PointsCost,
		CouponCode: rec.CouponCode,
	})
	return &RedeemResult{Reward: reward, CouponCode: rec.CouponCode, PointsRemaining: updated.PointsBalance}, nil
}

// ProcessReferral pays the configured bonus to both sides of a referral. The
// operation is idempotent per (referrer, referee) pair.
func (l *Ledger) ProcessReferral(ctx context.Context, referralCode, newOwnerID, reference string) (*ReferralResult, error) {
	if l == nil || l.store == nil {
		return nil, ErrNilStore
	}
	referralCode = strings.TrimSpace(referralCode)
	if referralCode == "" {
		return nil, ErrInvalidReferralCode
	}
	referrer, err := l.store.AccountByReferralCode(ctx, referralCode)
	if err != nil {
		return nil, err
	}
	if referrer == nil {
		return nil, ErrInvalidReferralCode
	}
	newOwnerID = strings.TrimSpace(newOwnerID)
	if newOwnerID == "" {
		return nil, ErrInvalidOwner
	}
	if referrer.OwnerID == newOwnerID {
		return nil, ErrSelfReferral
	}
	if _, err := l.GetOrCreateAccount(ctx, newOwnerID); err != nil {
		return nil, err
	}
	inserted, err := l.store.InsertReferral(ctx, &Referral{
		ReferrerID: referrer.OwnerID,
		RefereeID:  newOwnerID,
		Reference:  reference,
		CreatedAt:  l.nowFn().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if !inserted {
		return &ReferralResult{ReferrerID: referrer.OwnerID, AlreadyProcessed: true}, nil
	}
	policy := l.policy.Normalize()
	if _, err := l.AddPoints(ctx, referrer.OwnerID, policy.ReferrerPoints, "referral_bonus", reference); err != nil {
		return nil, err
	}
	if _, err := l.AddPoints(ctx, newOwnerID, policy.RefereePoints, "referral_signup", reference); err != nil {
		return nil, err
	}
	l.emit(events.LoyaltyReferralPaid{
		ReferrerID:     referrer.OwnerID,
		RefereeID:      newOwnerID,
		ReferrerPoints: policy.ReferrerPoints,
		RefereePoints:  policy.RefereePoints,
	})
	return &ReferralResult{
		ReferrerID:     referrer.OwnerID,
		ReferrerPoints: policy.ReferrerPoints,
		RefereePoints:  policy.RefereePoints,
	}, nil
}

// PurchasePoints exposes the pure earning formula for a transaction.
func (l *Ledger) PurchasePoints(amountCents int64, paymentType string, tier Tier) int64 {
	return l.policy.PurchasePoints(amountCents, paymentType, tier)
}

// Snapshot returns the account with its recent history for read surfaces.
func (l *Ledger) Snapshot(ctx context.Context, ownerID string, limit int) (*Snapshot, error) {
	if l == nil || l.store == nil {
		return nil, ErrNilStore
	}
	account, err := l.store.LoyaltyAccount(ctx, strings.TrimSpace(ownerID))
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	account.Tier = l.policy.TierFor(account.PointsBalance)
	history, err := l.store.PointsHistory(ctx, account.OwnerID, limit)
	if err != nil {
		return nil, err
	}
	redemptions, err := l.store.Redemptions(ctx, account.OwnerID, limit)
	if err != nil {
		return nil, err
	}
	referrals, err := l.store.Referrals(ctx, account.OwnerID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Account: account, History: history, Redemptions: redemptions, Referrals: referrals}, nil
}

func tierRank(tier Tier) int {
	switch tier {
	case TierPlatinum:
		return 3
	case TierGold:
		return 2
	case TierSilver:
		return 1
	default:
		return 0
	}
}

// generateReferralCode derives a best-effort unique code from the owner id
// plus a random suffix. Uniqueness is probabilistic; callers handle the rare
// collision at insert time.
func generateReferralCode(ownerID string) string {
	fragment := ownerFragment(ownerID, 4)
	suffix := make([]byte, 3)
	if _, err := rand.Read(suffix); err != nil {
		// Fall back to the uuid source rather than failing account creation.
		return strings.ToUpper(fragment + "-" + uuid.NewString()[:6])
	}
	return strings.ToUpper(fragment + "-" + hex.EncodeToString(suffix))
}

// generateCouponCode composes reward id, timestamp, and an owner fragment.
// Codes are not globally unique by construction.
func generateCouponCode(rewardID, ownerID string, now time.Time) string {
	return strings.ToUpper(fmt.Sprintf("%s-%d-%s", rewardID, now.Unix(), ownerFragment(ownerID, 4)))
}

func ownerFragment(ownerID string, size int) string {
	var b strings.Builder
	for _, r := range ownerID {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() >= size {
				break
			}
		}
	}
	if b.Len() == 0 {
		return "ACCT"
	}
	return b.String()
}
