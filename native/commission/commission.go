package commission

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// BpsDenominator defines the scaling factor used for basis point math when
// computing platform commission.
const BpsDenominator = 10_000

// Default commission schedule, expressed in basis points.
const (
	DefaultRateBps         = 2_000
	BundleRateBps          = 1_500
	SilverRateBps          = 1_750
	GoldRateBps            = 1_500
	PlatinumRateBps        = 1_000
	SubscriberDiscountBps  = 250
	maxConfigurableRateBps = BpsDenominator - 1
)

// Policy captures the configured commission schedule. Rates are expressed in
// basis points of the gross amount.
type Policy struct {
	DefaultBps         uint32            `toml:"defaultBps"`
	TypeBps            map[string]uint32 `toml:"typeBps"`
	TierBps            map[string]uint32 `toml:"tierBps"`
	SubscriberDiscount uint32            `toml:"subscriberDiscountBps"`
}

// DefaultPolicy returns the built-in commission schedule.
func DefaultPolicy() Policy {
	return Policy{
		DefaultBps: DefaultRateBps,
		TypeBps: map[string]uint32{
			"bundle": BundleRateBps,
		},
		TierBps: map[string]uint32{
			"silver":   SilverRateBps,
			"gold":     GoldRateBps,
			"platinum": PlatinumRateBps,
		},
		SubscriberDiscount: SubscriberDiscountBps,
	}
}

// LoadPolicy reads a commission schedule from a TOML file. Missing fields
// fall back to defaults during normalization.
func LoadPolicy(path string) (Policy, error) {
	var policy Policy
	if _, err := toml.DecodeFile(path, &policy); err != nil {
		return Policy{}, fmt.Errorf("commission: load policy: %w", err)
	}
	return policy.Normalize(), nil
}

// Clone returns a deep copy of the policy to avoid accidental aliasing of the
// rate maps between callers.
func (p Policy) Clone() Policy {
	clone := Policy{
		DefaultBps:         p.DefaultBps,
		SubscriberDiscount: p.SubscriberDiscount,
		TypeBps:            make(map[string]uint32, len(p.TypeBps)),
		TierBps:            make(map[string]uint32, len(p.TierBps)),
	}
	for k, v := range p.TypeBps {
		clone.TypeBps[normalize(k)] = v
	}
	for k, v := range p.TierBps {
		clone.TierBps[normalize(k)] = v
	}
	return clone
}

// Normalize applies defaults for unset fields and clamps configured rates into
// the valid range.
func (p Policy) Normalize() Policy {
	normalized := p.Clone()
	if normalized.DefaultBps == 0 || normalized.DefaultBps > maxConfigurableRateBps {
		normalized.DefaultBps = DefaultRateBps
	}
	for k, v := range normalized.TypeBps {
		if v > maxConfigurableRateBps {
			normalized.TypeBps[k] = normalized.DefaultBps
		}
	}
	for k, v := range normalized.TierBps {
		if v > maxConfigurableRateBps {
			normalized.TierBps[k] = normalized.DefaultBps
		}
	}
	return normalized
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// Rate resolves the commission rate in basis points for a payment. The tier of
// the funds RECIPIENT takes precedence over the payment-type base rate; the
// subscriber discount is a flat subtraction applied last. The result is always
// within [0, DefaultBps].
func (p Policy) Rate(paymentType, recipientTier string, subscriber bool) uint32 {
	policy := p.Normalize()
	rate := policy.DefaultBps
	if typed, ok := policy.TypeBps[normalize(paymentType)]; ok {
		rate = typed
	}
	if tiered, ok := policy.TierBps[normalize(recipientTier)]; ok {
		rate = tiered
	}
	if subscriber {
		if policy.SubscriberDiscount >= rate {
			rate = 0
		} else {
			rate -= policy.SubscriberDiscount
		}
	}
	if rate > policy.DefaultBps {
		rate = policy.DefaultBps
	}
	return rate
}

// Breakdown splits a gross amount into platform fee and recipient net using
// the supplied rate. Amounts are cents; integer division floors the fee in the
// recipient's favour.
func Breakdown(grossCents int64, rateBps uint32) (feeCents, netCents int64) {
	if grossCents <= 0 {
		return 0, 0
	}
	fee := grossCents * int64(rateBps) / BpsDenominator
	if fee < 0 {
		fee = 0
	}
	if fee >= grossCents {
		return grossCents, 0
	}
	return fee, grossCents - fee
}
