package commission

import "testing"

func TestRateTierOverridesType(t *testing.T) {
	policy := DefaultPolicy()
	if got := policy.Rate("product", "", false); got != DefaultRateBps {
		t.Fatalf("expected default rate %d, got %d", DefaultRateBps, got)
	}
	if got := policy.Rate("bundle", "", false); got != BundleRateBps {
		t.Fatalf("expected bundle rate %d, got %d", BundleRateBps, got)
	}
	if got := policy.Rate("bundle", "platinum", false); got != PlatinumRateBps {
		t.Fatalf("expected platinum override %d, got %d", PlatinumRateBps, got)
	}
	if got := policy.Rate("product", "Gold", false); got != GoldRateBps {
		t.Fatalf("expected tier lookup to be case insensitive, got %d", got)
	}
}

func TestRateSubscriberDiscountAppliedLast(t *testing.T) {
	policy := DefaultPolicy()
	want := uint32(PlatinumRateBps - SubscriberDiscountBps)
	if got := policy.Rate("bundle", "platinum", true); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestRateNeverNegative(t *testing.T) {
	policy := DefaultPolicy()
	policy.TierBps["platinum"] = 100
	policy.SubscriberDiscount = 500
	if got := policy.Rate("product", "platinum", true); got != 0 {
		t.Fatalf("expected rate floored at 0, got %d", got)
	}
}

func TestRateCappedAtDefault(t *testing.T) {
	policy := DefaultPolicy()
	policy.TierBps["gold"] = 9_000
	if got := policy.Rate("product", "gold", false); got != policy.DefaultBps {
		t.Fatalf("expected rate capped at default %d, got %d", policy.DefaultBps, got)
	}
}

func TestRateUnknownTierFallsBackToType(t *testing.T) {
	policy := DefaultPolicy()
	if got := policy.Rate("bundle", "new", false); got != BundleRateBps {
		t.Fatalf("expected unknown tier to fall back to type rate, got %d", got)
	}
}

func TestNormalizeRejectsOutOfRangeRates(t *testing.T) {
	policy := Policy{
		DefaultBps: 20_000,
		TypeBps:    map[string]uint32{"bundle": 30_000},
	}
	normalized := policy.Normalize()
	if normalized.DefaultBps != DefaultRateBps {
		t.Fatalf("expected default fallback, got %d", normalized.DefaultBps)
	}
	if normalized.TypeBps["bundle"] != DefaultRateBps {
		t.Fatalf("expected out-of-range type rate to reset, got %d", normalized.TypeBps["bundle"])
	}
}

func TestBreakdown(t *testing.T) {
	fee, net := Breakdown(10_000, 2_000)
	if fee != 2_000 || net != 8_000 {
		t.Fatalf("unexpected breakdown fee=%d net=%d", fee, net)
	}
	fee, net = Breakdown(3, 2_000)
	if fee != 0 || net != 3 {
		t.Fatalf("expected fee floored to zero on tiny amounts, fee=%d net=%d", fee, net)
	}
	fee, net = Breakdown(0, 2_000)
	if fee != 0 || net != 0 {
		t.Fatalf("expected zero breakdown for non-positive gross, fee=%d net=%d", fee, net)
	}
}

func TestCloneDoesNotAliasMaps(t *testing.T) {
	policy := DefaultPolicy()
	clone := policy.Clone()
	clone.TierBps["platinum"] = 1
	if policy.TierBps["platinum"] != PlatinumRateBps {
		t.Fatalf("clone mutated the source policy")
	}
}
