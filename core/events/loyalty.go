package events

import "strconv"

const (
	TypeLoyaltyAccountCreated = "loyalty.account.created"
	TypeLoyaltyPointsEarned   = "loyalty.points.earned"
	TypeLoyaltyPointsReversed = "loyalty.points.reversed"
	TypeLoyaltyTierChanged    = "loyalty.tier.changed"
	TypeLoyaltyRewardRedeemed = "loyalty.reward.redeemed"
	TypeLoyaltyReferralPaid   = "loyalty.referral.paid"
)

type LoyaltyAccountCreated struct {
	OwnerID      string
	ReferralCode string
}

func (LoyaltyAccountCreated) EventType() string { return TypeLoyaltyAccountCreated }

func (e LoyaltyAccountCreated) Record() *Record {
	return &Record{
		Type: TypeLoyaltyAccountCreated,
		Attributes: map[string]string{
			"owner":        e.OwnerID,
			"referralCode": e.ReferralCode,
		},
	}
}

type LoyaltyPointsEarned struct {
	OwnerID   string
	Delta     int64
	Balance   int64
	Reason    string
	Reference string
}

func (LoyaltyPointsEarned) EventType() string { return TypeLoyaltyPointsEarned }

func (e LoyaltyPointsEarned) Record() *Record {
	attrs := map[string]string{
		"owner":   e.OwnerID,
		"delta":   strconv.FormatInt(e.Delta, 10),
		"balance": strconv.FormatInt(e.Balance, 10),
		"reason":  e.Reason,
	}
	if e.Reference != "" {
		attrs["reference"] = e.Reference
	}
	return &Record{Type: TypeLoyaltyPointsEarned, Attributes: attrs}
}

type LoyaltyPointsReversed struct {
	OwnerID   string
	Requested int64
	Applied   int64
	Reference string
}

func (LoyaltyPointsReversed) EventType() string { return TypeLoyaltyPointsReversed }

func (e LoyaltyPointsReversed) Record() *Record {
	return &Record{
		Type: TypeLoyaltyPointsReversed,
		Attributes: map[string]string{
			"owner":     e.OwnerID,
			"requested": strconv.FormatInt(e.Requested, 10),
			"applied":   strconv.FormatInt(e.Applied, 10),
			"reference": e.Reference,
		},
	}
}

type LoyaltyTierChanged struct {
	OwnerID      string
	PreviousTier string
	NewTier      string
	Balance      int64
}

func (LoyaltyTierChanged) EventType() string { return TypeLoyaltyTierChanged }

func (e LoyaltyTierChanged) Record() *Record {
	return &Record{
		Type: TypeLoyaltyTierChanged,
		Attributes: map[string]string{
			"owner":        e.OwnerID,
			"previousTier": e.PreviousTier,
			"newTier":      e.NewTier,
			"balance":      strconv.FormatInt(e.Balance, 10),
		},
	}
}

type LoyaltyRewardRedeemed struct {
	OwnerID    string
	RewardID   string
	PointsCost int64
	CouponCode string
}

func (LoyaltyRewardRedeemed) EventType() string { return TypeLoyaltyRewardRedeemed }

func (e LoyaltyRewardRedeemed) Record() *Record {
	return &Record{
		Type: TypeLoyaltyRewardRedeemed,
		Attributes: map[string]string{
			"owner":      e.OwnerID,
			"reward":     e.RewardID,
			"pointsCost": strconv.FormatInt(e.PointsCost, 10),
			"couponCode": e.CouponCode,
		},
	}
}

type LoyaltyReferralPaid struct {
	ReferrerID     string
	RefereeID      string
	ReferrerPoints int64
	RefereePoints  int64
}

func (LoyaltyReferralPaid) EventType() string { return TypeLoyaltyReferralPaid }

func (e LoyaltyReferralPaid) Record() *Record {
	return &Record{
		Type: TypeLoyaltyReferralPaid,
		Attributes: map[string]string{
			"referrer":       e.ReferrerID,
			"referee":        e.RefereeID,
			"referrerPoints": strconv.FormatInt(e.ReferrerPoints, 10),
			"refereePoints":  strconv.FormatInt(e.RefereePoints, 10),
		},
	}
}
