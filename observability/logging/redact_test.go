package logging

import "testing"

func TestMaskFieldRedactsIdentifiers(t *testing.T) {
	attr := MaskField("payer", "cust-819")
	if attr.Value.String() != RedactedValue {
		t.Fatalf("expected redacted payer, got %q", attr.Value.String())
	}
	attr = MaskField("transaction", "tx-42")
	if attr.Value.String() != "tx-42" {
		t.Fatalf("allowlisted key should pass through, got %q", attr.Value.String())
	}
	attr = MaskField("email", "")
	if attr.Value.String() != "" {
		t.Fatalf("empty values should pass through, got %q", attr.Value.String())
	}
}

func TestMaskValue(t *testing.T) {
	if got := MaskValue("secret"); got != RedactedValue {
		t.Fatalf("expected placeholder, got %q", got)
	}
	if got := MaskValue("  "); got != "  " {
		t.Fatalf("whitespace should pass through, got %q", got)
	}
}

func TestRedactionAllowlistIsSorted(t *testing.T) {
	keys := RedactionAllowlist()
	if len(keys) == 0 {
		t.Fatal("expected allowlist entries")
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("allowlist not sorted at %d: %q >= %q", i, keys[i-1], keys[i])
		}
	}
}
