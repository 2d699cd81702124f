package models

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestComputeDSCR(t *testing.T) {
	income := []LineItem{
		{AccountCode: "NET_OPERATING_INCOME", Value: decimal.RequireFromString("54500")},
	}
	mortgage := []LineItem{
		{AccountCode: "TOTAL_DEBT_SERVICE", Value: decimal.RequireFromString("40000")},
	}
	got, err := computeDSCR(income, mortgage)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(decimal.RequireFromString("1.3625")) {
		t.Errorf("DSCR = %s, want 1.3625", got)
	}
}

func TestComputeDSCR_DerivesFromComponents(t *testing.T) {
	// No stated NOI or debt-service totals: fall back to components.
	income := []LineItem{
		{AccountCode: "TOTAL_REVENUE", Value: decimal.RequireFromString("95500")},
		{AccountCode: "OPERATING_EXPENSES", Value: decimal.RequireFromString("41000")},
	}
	mortgage := []LineItem{
		{AccountCode: "PRINCIPAL_PAID", Value: decimal.RequireFromString("12000")},
		{AccountCode: "INTEREST_PAID", Value: decimal.RequireFromString("28000")},
	}
	got, err := computeDSCR(income, mortgage)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(decimal.RequireFromString("1.3625")) {
		t.Errorf("DSCR = %s, want 1.3625", got)
	}
}

func TestComputeDSCR_UnavailableInputs(t *testing.T) {
	if _, err := computeDSCR(nil, []LineItem{{AccountCode: "TOTAL_DEBT_SERVICE", Value: decimal.NewFromInt(1)}}); err == nil {
		t.Error("missing income inputs must error")
	}
	if _, err := computeDSCR([]LineItem{{AccountCode: "NET_OPERATING_INCOME", Value: decimal.NewFromInt(1)}}, nil); err == nil {
		t.Error("missing mortgage inputs must error")
	}
	income := []LineItem{{AccountCode: "NET_OPERATING_INCOME", Value: decimal.NewFromInt(100)}}
	mortgage := []LineItem{{AccountCode: "TOTAL_DEBT_SERVICE", Value: decimal.Zero}}
	if _, err := computeDSCR(income, mortgage); err == nil {
		t.Error("zero debt service must error, not divide")
	}
}

func TestDSCRSeverity(t *testing.T) {
	warning := decimal.RequireFromString("1.25")
	critical := decimal.RequireFromString("1.0")

	cases := []struct {
		value string
		want  AlertSeverity
	}{
		{"1.20", AlertSeverityMedium},   // upper half of the warning band
		{"1.05", AlertSeverityHigh},     // lower half of the warning band
		{"0.99", AlertSeverityCritical}, // under the critical floor
		{"0.35", AlertSeverityCritical}, // deep breach
	}
	for _, tc := range cases {
		got := dscrSeverity(decimal.RequireFromString(tc.value), warning, critical)
		if got != tc.want {
			t.Errorf("dscrSeverity(%s) = %s, want %s", tc.value, got, tc.want)
		}
	}
}

// swapPresenceChecks installs fake gate arms and restores the real ones.
func swapPresenceChecks(t *testing.T, income, mortgage, upload bool) {
	t.Helper()
	origItems, origUpload := hasLineItemsFn, hasCompletedUploadFn
	hasLineItemsFn = func(_ context.Context, _ int, _ string, docType DocumentType) (bool, error) {
		switch docType {
		case DocumentTypeIncomeStatement:
			return income, nil
		case DocumentTypeMortgageStatement:
			return mortgage, nil
		}
		return false, nil
	}
	hasCompletedUploadFn = func(context.Context, int, string) (bool, error) {
		return upload, nil
	}
	t.Cleanup(func() {
		hasLineItemsFn = origItems
		hasCompletedUploadFn = origUpload
	})
}

func TestDataPresenceGate_NoSourceData(t *testing.T) {
	swapPresenceChecks(t, false, false, false)
	ok, reason, err := DataPresenceGate(context.Background(), 1, "2026-01")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("gate must not hold without any source data")
	}
	want := "no income statement, mortgage statement, or completed upload for this property/period"
	if reason != want {
		t.Errorf("skip reason = %q, want %q", reason, want)
	}
}

func TestDataPresenceGate_AnyArmHolds(t *testing.T) {
	cases := []struct {
		name                     string
		income, mortgage, upload bool
	}{
		{"income statement only", true, false, false},
		{"mortgage statement only", false, true, false},
		{"completed upload only", false, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			swapPresenceChecks(t, tc.income, tc.mortgage, tc.upload)
			ok, reason, err := DataPresenceGate(context.Background(), 1, "2026-01")
			if err != nil {
				t.Fatal(err)
			}
			if !ok {
				t.Error("gate should hold")
			}
			if reason != "" {
				t.Errorf("unexpected reason %q", reason)
			}
		})
	}
}

func TestDataPresenceGate_PropagatesErrors(t *testing.T) {
	swapPresenceChecks(t, false, false, false)
	hasLineItemsFn = func(context.Context, int, string, DocumentType) (bool, error) {
		return false, errors.New("db down")
	}
	if _, _, err := DataPresenceGate(context.Background(), 1, "2026-01"); err == nil {
		t.Error("presence-check failure must surface, not read as a closed gate")
	}
}
