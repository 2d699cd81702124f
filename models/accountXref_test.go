package models

import "testing"

func TestAccountXrefIsBidirectional(t *testing.T) {
	xref := LoadAccountXrefTable()

	code, ok := xref.Equivalent(DocumentTypeBalanceSheet, "CASH_AND_EQUIVALENTS", DocumentTypeCashFlow)
	if !ok || code != "CASH_ENDING_BALANCE" {
		t.Errorf("BS->CF = (%q, %v), want CASH_ENDING_BALANCE", code, ok)
	}
	code, ok = xref.Equivalent(DocumentTypeCashFlow, "CASH_ENDING_BALANCE", DocumentTypeBalanceSheet)
	if !ok || code != "CASH_AND_EQUIVALENTS" {
		t.Errorf("CF->BS = (%q, %v), want CASH_AND_EQUIVALENTS", code, ok)
	}
}

func TestAccountXrefMisses(t *testing.T) {
	xref := LoadAccountXrefTable()

	if _, ok := xref.Equivalent(DocumentTypeBalanceSheet, "NONEXISTENT", DocumentTypeCashFlow); ok {
		t.Error("unknown code must not resolve")
	}
	// Known code, but asked against a document it has no link to.
	if _, ok := xref.Equivalent(DocumentTypeBalanceSheet, "CASH_AND_EQUIVALENTS", DocumentTypeRentRoll); ok {
		t.Error("code must only resolve toward documents it is linked to")
	}
}
