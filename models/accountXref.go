package models

// Account cross-reference for the inferred match stage: semantically
// equivalent account codes across document types that exact, fuzzy and
// calculated matching would not catch. Loaded once at startup into an
// immutable lookup and passed explicitly, never read as ambient state.

type xrefEntry struct {
	DocA  DocumentType
	CodeA string
	DocB  DocumentType
	CodeB string
}

var defaultXrefEntries = []xrefEntry{
	{DocumentTypeBalanceSheet, "CASH_AND_EQUIVALENTS", DocumentTypeCashFlow, "CASH_ENDING_BALANCE"},
	{DocumentTypeBalanceSheet, "MORTGAGE_PAYABLE", DocumentTypeMortgageStatement, "OUTSTANDING_PRINCIPAL"},
	{DocumentTypeBalanceSheet, "ACCUMULATED_DEPRECIATION", DocumentTypeIncomeStatement, "DEPRECIATION_EXPENSE"},
	{DocumentTypeIncomeStatement, "NET_INCOME", DocumentTypeCashFlow, "NET_INCOME"},
	{DocumentTypeIncomeStatement, "RENTAL_INCOME", DocumentTypeRentRoll, "SCHEDULED_RENT_TOTAL"},
	{DocumentTypeIncomeStatement, "INTEREST_EXPENSE", DocumentTypeMortgageStatement, "INTEREST_PAID_YTD"},
	{DocumentTypeCashFlow, "MORTGAGE_PRINCIPAL", DocumentTypeMortgageStatement, "PRINCIPAL_PAID_YTD"},
	{DocumentTypeRentRoll, "OCCUPIED_UNITS_RENT", DocumentTypeCashFlow, "RENT_COLLECTED"},
}

// AccountXrefTable is an immutable pairwise lookup. Keys are oriented by the
// canonical document-type order so both (A,B) and (B,A) queries resolve.
type AccountXrefTable struct {
	byPair map[DocumentType]map[DocumentType]map[string]string
}

// LoadAccountXrefTable builds the lookup from the built-in entries.
func LoadAccountXrefTable() *AccountXrefTable {
	return newAccountXrefTable(defaultXrefEntries)
}

func newAccountXrefTable(entries []xrefEntry) *AccountXrefTable {
	t := &AccountXrefTable{byPair: make(map[DocumentType]map[DocumentType]map[string]string)}
	for _, e := range entries {
		t.add(e.DocA, e.CodeA, e.DocB, e.CodeB)
		t.add(e.DocB, e.CodeB, e.DocA, e.CodeA)
	}
	return t
}

func (t *AccountXrefTable) add(fromDoc DocumentType, fromCode string, toDoc DocumentType, toCode string) {
	if t.byPair[fromDoc] == nil {
		t.byPair[fromDoc] = make(map[DocumentType]map[string]string)
	}
	if t.byPair[fromDoc][toDoc] == nil {
		t.byPair[fromDoc][toDoc] = make(map[string]string)
	}
	t.byPair[fromDoc][toDoc][fromCode] = toCode
}

// Equivalent returns the account code on toDoc considered equivalent to
// fromCode on fromDoc.
func (t *AccountXrefTable) Equivalent(fromDoc DocumentType, fromCode string, toDoc DocumentType) (string, bool) {
	if t == nil {
		return "", false
	}
	m, ok := t.byPair[fromDoc][toDoc]
	if !ok {
		return "", false
	}
	code, ok := m[fromCode]
	return code, ok
}
