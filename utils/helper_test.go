package utils

import "testing"

func TestIsValidPeriodId(t *testing.T) {
	valid := []string{"2026-01", "2026-12", "1999-07"}
	for _, p := range valid {
		if !IsValidPeriodId(p) {
			t.Errorf("IsValidPeriodId(%q) = false, want true", p)
		}
	}
	invalid := []string{"", "2026-13", "2026-00", "2026-1", "26-01", "2026/01", "2026-01-15"}
	for _, p := range invalid {
		if IsValidPeriodId(p) {
			t.Errorf("IsValidPeriodId(%q) = true, want false", p)
		}
	}
}

func TestPreviousPeriodId(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2026-07", "2026-06"},
		{"2026-01", "2025-12"},
	}
	for _, tc := range cases {
		got, ok := PreviousPeriodId(tc.in)
		if !ok || got != tc.want {
			t.Errorf("PreviousPeriodId(%q) = (%q, %v), want (%q, true)", tc.in, got, ok, tc.want)
		}
	}
	if _, ok := PreviousPeriodId("garbage"); ok {
		t.Error("malformed period must not resolve")
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]int{3, 1, 3, 2, 1})
	want := []int{3, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v (first occurrence order preserved)", got, want)
		}
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("period_id", "must be YYYY-MM")
	if !IsValidationError(err) {
		t.Error("IsValidationError must recognize its own type")
	}
	if IsValidationError(ErrorBusy) {
		t.Error("sentinel errors are not validation errors")
	}
}
