package loyalty

import "time"

// Tier is the loyalty rank derived from an account's current point balance.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// Account captures the loyalty state for a single owner. Accounts are created
// lazily on first touch and are never deleted; all mutation happens through
// signed point deltas.
type Account struct {
	OwnerID        string    `json:"ownerId"`
	PointsBalance  int64     `json:"pointsBalance"`
	LifetimePoints int64     `json:"lifetimePoints"`
	Tier           Tier      `json:"tier"`
	ReferralCode   string    `json:"referralCode"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// PointsEntry is one element of the append-only points history log.
type PointsEntry struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Delta     int64     `json:"delta"`
	Balance   int64     `json:"balance"`
	Reason    string    `json:"reason"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Redemption records a reward redeemed against an account.
type Redemption struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"ownerId"`
	RewardID   string    `json:"rewardId"`
	CouponCode string    `json:"couponCode"`
	PointsCost int64     `json:"pointsCost"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Referral records a processed referral pair. At most one referral is paid per
// (referrer, referee) combination.
type Referral struct {
	ReferrerID string    `json:"referrerId"`
	RefereeID  string    `json:"refereeId"`
	Reference  string    `json:"reference,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Snapshot bundles an account with its history for read surfaces.
type Snapshot struct {
	Account     *Account      `json:"account"`
	History     []PointsEntry `json:"pointsHistory"`
	Redemptions []Redemption  `json:"redeemHistory"`
	Referrals   []Referral    `json:"referrals"`
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}
