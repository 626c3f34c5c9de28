package loyalty

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/BurntSushi/toml"
)

// MultiplierDenominator is the basis-point scaling factor for earning
// multipliers (10_000 == 1.0x).
const MultiplierDenominator = 10_000

// Default tier thresholds, compared against the current point balance. Tier is
// always the highest threshold less than or equal to the balance.
const (
	DefaultSilverThreshold   = 1_000
	DefaultGoldThreshold     = 5_000
	DefaultPlatinumThreshold = 15_000
)

// DefaultPointsPerDollar configures how many base points a whole dollar of
// spend earns before multipliers.
const DefaultPointsPerDollar = 1

// Policy captures the configurable earning and tiering rules of the ledger.
type Policy struct {
	PointsPerDollar   int64             `toml:"pointsPerDollar"`
	TypeMultiplierBps map[string]uint32 `toml:"typeMultiplierBps"`
	TierMultiplierBps map[string]uint32 `toml:"tierMultiplierBps"`
	SilverThreshold   int64             `toml:"silverThreshold"`
	GoldThreshold     int64             `toml:"goldThreshold"`
	PlatinumThreshold int64             `toml:"platinumThreshold"`
	ReferrerPoints    int64             `toml:"referrerPoints"`
	RefereePoints     int64             `toml:"refereePoints"`
}

// DefaultPolicy returns the built-in earning schedule.
func DefaultPolicy() Policy {
	return Policy{
		PointsPerDollar: DefaultPointsPerDollar,
		TypeMultiplierBps: map[string]uint32{
			"product":      10_000,
			"service":      12_000,
			"bundle":       15_000,
			"subscription": 20_000,
		},
		TierMultiplierBps: map[string]uint32{
			string(TierBronze):   10_000,
			string(TierSilver):   12_500,
			string(TierGold):     15_000,
			string(TierPlatinum): 20_000,
		},
		SilverThreshold:   DefaultSilverThreshold,
		GoldThreshold:     DefaultGoldThreshold,
		PlatinumThreshold: DefaultPlatinumThreshold,
		ReferrerPoints:    500,
		RefereePoints:     250,
	}
}

// LoadPolicy reads an earning schedule from a TOML file. Missing fields fall
// back to defaults during normalization.
func LoadPolicy(path string) (Policy, error) {
	var policy Policy
	if _, err := toml.DecodeFile(path, &policy); err != nil {
		return Policy{}, fmt.Errorf("loyalty: load policy: %w", err)
	}
	return policy.Normalize(), nil
}

// Clone returns a deep copy of the policy.
func (p Policy) Clone() Policy {
	clone := p
	clone.TypeMultiplierBps = make(map[string]uint32, len(p.TypeMultiplierBps))
	for k, v := range p.TypeMultiplierBps {
		clone.TypeMultiplierBps[normalizeKey(k)] = v
	}
	clone.TierMultiplierBps = make(map[string]uint32, len(p.TierMultiplierBps))
	for k, v := range p.TierMultiplierBps {
		clone.TierMultiplierBps[normalizeKey(k)] = v
	}
	return clone
}

// Normalize fills unset fields with defaults and repairs threshold tables that
// are not strictly ascending.
func (p Policy) Normalize() Policy {
	normalized := p.Clone()
	defaults := DefaultPolicy()
	if normalized.PointsPerDollar <= 0 {
		normalized.PointsPerDollar = defaults.PointsPerDollar
	}
	if len(normalized.TypeMultiplierBps) == 0 {
		normalized.TypeMultiplierBps = defaults.TypeMultiplierBps
	}
	if len(normalized.TierMultiplierBps) == 0 {
		normalized.TierMultiplierBps = defaults.TierMultiplierBps
	}
	if normalized.SilverThreshold <= 0 ||
		normalized.GoldThreshold <= normalized.SilverThreshold ||
		normalized.PlatinumThreshold <= normalized.GoldThreshold {
		normalized.SilverThreshold = defaults.SilverThreshold
		normalized.GoldThreshold = defaults.GoldThreshold
		normalized.PlatinumThreshold = defaults.PlatinumThreshold
	}
	if normalized.ReferrerPoints < 0 {
		normalized.ReferrerPoints = defaults.ReferrerPoints
	}
	if normalized.RefereePoints < 0 {
		normalized.RefereePoints = defaults.RefereePoints
	}
	return normalized
}

func normalizeKey(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// TierFor resolves the tier for a point balance against the configured
// ascending thresholds.
func (p Policy) TierFor(balance int64) Tier {
	normalized := p.Normalize()
	switch {
	case balance >= normalized.PlatinumThreshold:
		return TierPlatinum
	case balance >= normalized.GoldThreshold:
		return TierGold
	case balance >= normalized.SilverThreshold:
		return TierSilver
	default:
		return TierBronze
	}
}

// PurchasePoints computes the points earned for a purchase. The computation is
// pure: floor(dollars x pointsPerDollar x typeMultiplier x tierMultiplier),
// reproducible from amount, payment type, and tier alone. Amounts are cents.
func (p Policy) PurchasePoints(amountCents int64, paymentType string, tier Tier) int64 {
	if amountCents <= 0 {
		return 0
	}
	normalized := p.Normalize()
	typeBps, ok := normalized.TypeMultiplierBps[normalizeKey(paymentType)]
	if !ok {
		typeBps = MultiplierDenominator
	}
	tierBps, ok := normalized.TierMultiplierBps[normalizeKey(string(tier))]
	if !ok {
		tierBps = MultiplierDenominator
	}
	points := new(big.Int).SetInt64(amountCents)
	points.Mul(points, big.NewInt(normalized.PointsPerDollar))
	points.Mul(points, new(big.Int).SetUint64(uint64(typeBps)))
	points.Mul(points, new(big.Int).SetUint64(uint64(tierBps)))
	// 100 cents per dollar, squared multiplier denominator.
	points.Quo(points, big.NewInt(100*MultiplierDenominator*MultiplierDenominator))
	return points.Int64()
}
