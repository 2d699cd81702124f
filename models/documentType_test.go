package models

import (
	"testing"
)

func TestParseDocumentScope(t *testing.T) {
	cases := []struct {
		name      string
		scope     string
		wantTypes int
		wantScope string
		wantErr   bool
	}{
		{"empty means all", "", 5, "ALL", false},
		{"explicit all", "all", 5, "ALL", false},
		{"subset normalized to canonical order", "cash_flow, balance_sheet", 2, "BALANCE_SHEET,CASH_FLOW", false},
		{"duplicates collapse", "BALANCE_SHEET,BALANCE_SHEET,CASH_FLOW", 2, "BALANCE_SHEET,CASH_FLOW", false},
		{"single type rejected", "BALANCE_SHEET", 0, "", true},
		{"unknown type rejected", "BALANCE_SHEET,LEDGER", 0, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			types, normalized, err := ParseDocumentScope(tc.scope)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("want error, got scope %q", normalized)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(types) != tc.wantTypes {
				t.Errorf("got %d types, want %d", len(types), tc.wantTypes)
			}
			if normalized != tc.wantScope {
				t.Errorf("normalized scope = %q, want %q", normalized, tc.wantScope)
			}
		})
	}
}

func TestScopeNormalizationIsOrderInsensitive(t *testing.T) {
	_, a, err := ParseDocumentScope("RENT_ROLL,INCOME_STATEMENT")
	if err != nil {
		t.Fatal(err)
	}
	_, b, err := ParseDocumentScope("INCOME_STATEMENT,RENT_ROLL")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("same scope normalized differently: %q vs %q", a, b)
	}
}

func TestAllDocumentTypesOrderIsStable(t *testing.T) {
	for i, dt := range AllDocumentTypes {
		if docTypeOrder(dt) != i {
			t.Errorf("docTypeOrder(%s) = %d, want %d", dt, docTypeOrder(dt), i)
		}
	}
	if docTypeOrder(DocumentType("LEDGER")) != len(AllDocumentTypes) {
		t.Error("unknown types must sort last")
	}
}
