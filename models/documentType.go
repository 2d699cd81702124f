package models

import (
	"sort"
	"strings"

	"github.com/proplens/recon_backend/utils"
)

type DocumentType string

const (
	DocumentTypeBalanceSheet      DocumentType = "BALANCE_SHEET"
	DocumentTypeIncomeStatement   DocumentType = "INCOME_STATEMENT"
	DocumentTypeCashFlow          DocumentType = "CASH_FLOW"
	DocumentTypeRentRoll          DocumentType = "RENT_ROLL"
	DocumentTypeMortgageStatement DocumentType = "MORTGAGE_STATEMENT"
)

// AllDocumentTypes is ordered; match results and reports iterate in this order
// so re-runs produce rows in a stable sequence.
var AllDocumentTypes = []DocumentType{
	DocumentTypeBalanceSheet,
	DocumentTypeIncomeStatement,
	DocumentTypeCashFlow,
	DocumentTypeRentRoll,
	DocumentTypeMortgageStatement,
}

func IsValidDocumentType(dt DocumentType) bool {
	for _, t := range AllDocumentTypes {
		if t == dt {
			return true
		}
	}
	return false
}

// DocumentScopeAll compares every document type against every other.
const DocumentScopeAll = "ALL"

// ParseDocumentScope resolves a session scope string into the document types
// it covers. Scope is either "ALL" or a comma-separated subset, e.g.
// "BALANCE_SHEET,INCOME_STATEMENT". The result is normalized (deduplicated,
// canonical order) so scope strings compare equal across requests.
func ParseDocumentScope(scope string) ([]DocumentType, string, error) {
	scope = strings.ToUpper(strings.TrimSpace(scope))
	if scope == "" || scope == DocumentScopeAll {
		return AllDocumentTypes, DocumentScopeAll, nil
	}

	parts := strings.Split(scope, ",")
	types := make([]DocumentType, 0, len(parts))
	for _, p := range parts {
		dt := DocumentType(strings.TrimSpace(p))
		if !IsValidDocumentType(dt) {
			return nil, "", utils.NewValidationError("document_scope", "unknown document type "+string(dt))
		}
		types = append(types, dt)
	}
	types = utils.UniqueSlice(types)
	if len(types) < 2 {
		return nil, "", utils.NewValidationError("document_scope", "scope needs at least two document types")
	}

	sort.Slice(types, func(i, j int) bool { return docTypeOrder(types[i]) < docTypeOrder(types[j]) })
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return types, strings.Join(names, ","), nil
}

func docTypeOrder(dt DocumentType) int {
	for i, t := range AllDocumentTypes {
		if t == dt {
			return i
		}
	}
	return len(AllDocumentTypes)
}
