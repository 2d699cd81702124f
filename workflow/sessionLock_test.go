package workflow

import "testing"

func TestPropertyPeriodLockName(t *testing.T) {
	got := propertyPeriodLockName(7, "2026-03")
	if got != "recon:7:2026-03" {
		t.Errorf("lock name = %q, want recon:7:2026-03", got)
	}
	// MySQL caps user lock names at 64 characters; property ids and YYYY-MM
	// periods stay far under it.
	if len(got) > 64 {
		t.Errorf("lock name %q exceeds MySQL's 64-char limit", got)
	}
}
