package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type CompareSemantic string

const (
	// CompareTolerance: actual must equal expected within the tolerance band.
	CompareTolerance CompareSemantic = "TOLERANCE"
	// CompareMin: actual must be at least expected.
	CompareMin CompareSemantic = "MIN"
	// CompareMax: actual must not exceed expected.
	CompareMax CompareSemantic = "MAX"
	// CompareTrend: actual is compared against the prior period's value.
	CompareTrend CompareSemantic = "TREND"
)

var errLineItemMissing = errors.New("line item missing")

// RuleContext carries everything a rule may read: the period's line items,
// the prior period's (for trend rules), and the session's match results.
// Rules never read another rule's verdict, which keeps evaluation safe to
// parallelize.
type RuleContext struct {
	PropertyId int
	PeriodId   string
	Items      map[DocumentType][]LineItem
	PriorItems map[DocumentType][]LineItem
	Matches    []MatchResult
}

// Value finds one account's value in a present document. A missing account in
// a present document is a computation error, not a skip.
func (rc *RuleContext) Value(doc DocumentType, accountCode string) (decimal.Decimal, error) {
	v, ok := lineItemValue(rc.Items[doc], accountCode)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s/%s", errLineItemMissing, doc, accountCode)
	}
	return v, nil
}

func (rc *RuleContext) PriorValue(doc DocumentType, accountCode string) (decimal.Decimal, error) {
	v, ok := lineItemValue(rc.PriorItems[doc], accountCode)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: prior %s/%s", errLineItemMissing, doc, accountCode)
	}
	return v, nil
}

func (rc *RuleContext) SectionSum(doc DocumentType, section string) decimal.Decimal {
	return sumBySection(rc.Items[doc], section)
}

func (rc *RuleContext) safeDiv(numerator, denominator decimal.Decimal) (decimal.Decimal, error) {
	if denominator.IsZero() {
		return decimal.Zero, errors.New("division by zero")
	}
	return numerator.Div(denominator), nil
}

// RuleDescriptor is one entry of the flat rule registry. Categories are data,
// not behavior: iteration and testing treat every rule uniformly.
type RuleDescriptor struct {
	Code              string
	Category          RuleCategory
	Description       string
	RequiredDocuments []DocumentType
	RequiresPrior     bool
	RequiresMatches   bool
	Compare           CompareSemantic
	// Tolerance band. Pass when |variance| <= ToleranceAbs or the percent
	// variance <= TolerancePercent; WARNING up to SeverePercent; FAIL beyond.
	ToleranceAbs     decimal.Decimal
	TolerancePercent decimal.Decimal
	SeverePercent    decimal.Decimal
	// Materiality is judged independently of pass/fail.
	MaterialityAbs     decimal.Decimal
	MaterialityPercent decimal.Decimal
	SourceDocument     DocumentType
	TargetDocument     DocumentType
	// Evaluate returns (expected, actual). Failures here become status=ERROR
	// for this rule only; the rest of the batch is unaffected.
	Evaluate func(rc *RuleContext) (expected decimal.Decimal, actual decimal.Decimal, err error)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// RuleCatalog returns the full registry. Built once at startup; the engine
// iterates it uniformly regardless of category.
func RuleCatalog() []RuleDescriptor {
	return []RuleDescriptor{
		// ----- balance sheet -----
		{
			Code:               "accounting-equation",
			Category:           RuleCategoryBalanceSheet,
			Description:        "total assets equal total liabilities plus equity",
			RequiredDocuments:  []DocumentType{DocumentTypeBalanceSheet},
			Compare:            CompareTolerance,
			TolerancePercent:   dec("0.1"),
			SeverePercent:      dec("1.0"),
			MaterialityPercent: dec("2.0"),
			SourceDocument:     DocumentTypeBalanceSheet,
			TargetDocument:     DocumentTypeBalanceSheet,
			Evaluate: func(rc *RuleContext) (decimal.Decimal, decimal.Decimal, error) {
				assets, err := rc.Value(DocumentTypeBalanceSheet, "TOTAL_ASSETS")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				liabilities, err := rc.Value(DocumentTypeBalanceSheet, "TOTAL_LIABILITIES")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				equity, err := rc.Value(DocumentTypeBalanceSheet, "TOTAL_EQUITY")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				return assets, liabilities.Add(equity), nil
			},
		},
		{
			Code:               "current-assets-total",
			Category:           RuleCategoryBalanceSheet,
			Description:        "current assets section sums to its stated total",
			RequiredDocuments:  []DocumentType{DocumentTypeBalanceSheet},
			Compare:            CompareTolerance,
			TolerancePercent:   dec("0.1"),
			SeverePercent:      dec("1.0"),
			MaterialityPercent: dec("2.0"),
			SourceDocument:     DocumentTypeBalanceSheet,
			TargetDocument:     DocumentTypeBalanceSheet,
			Evaluate: func(rc *RuleContext) (decimal.Decimal, decimal.Decimal, error) {
				stated, err := rc.Value(DocumentTypeBalanceSheet, "TOTAL_CURRENT_ASSETS")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				return stated, rc.SectionSum(DocumentTypeBalanceSheet, "CURRENT_ASSETS"), nil
			},
		},
		// ----- income statement -----
		{
			Code:               "revenue-section-total",
			Category:           RuleCategoryIncomeStatement,
			Description:        "revenue section sums to total revenue",
			RequiredDocuments:  []DocumentType{DocumentTypeIncomeStatement},
			Compare:            CompareTolerance,
			TolerancePercent:   dec("0.1"),
			SeverePercent:      dec("1.0"),
			MaterialityPercent: dec("2.0"),
			SourceDocument:     DocumentTypeIncomeStatement,
			TargetDocument:     DocumentTypeIncomeStatement,
			Evaluate: func(rc *RuleContext) (decimal.Decimal, decimal.Decimal, error) {
				stated, err := rc.Value(DocumentTypeIncomeStatement, "TOTAL_REVENUE")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				return stated, rc.SectionSum(DocumentTypeIncomeStatement, "REVENUE"), nil
			},
		},
		{
			Code:               "net-income-derivation",
			Category:           RuleCategoryIncomeStatement,
			Description:        "net income equals total revenue minus total expenses",
			RequiredDocuments:  []DocumentType{DocumentTypeIncomeStatement},
			Compare:            CompareTolerance,
			TolerancePercent:   dec("0.1"),
			SeverePercent:      dec("1.0"),
			MaterialityPercent: dec("2.0"),
			SourceDocument:     DocumentTypeIncomeStatement,
			TargetDocument:     DocumentTypeIncomeStatement,
			Evaluate: func(rc *RuleContext) (decimal.Decimal, decimal.Decimal, error) {
				net, err := rc.Value(DocumentTypeIncomeStatement, "NET_INCOME")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				revenue, err := rc.Value(DocumentTypeIncomeStatement, "TOTAL_REVENUE")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				expenses, err := rc.Value(DocumentTypeIncomeStatement, "TOTAL_EXPENSES")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				return net, revenue.Sub(expenses), nil
			},
		},
		{
			Code:               "noi-derivation",
			Category:           RuleCategoryIncomeStatement,
			Description:        "net operating income equals total revenue minus operating expenses",
			RequiredDocuments:  []DocumentType{DocumentTypeIncomeStatement},
			Compare:            CompareTolerance,
			TolerancePercent:   dec("0.1"),
			SeverePercent:      dec("1.0"),
			MaterialityPercent: dec("2.0"),
			SourceDocument:     DocumentTypeIncomeStatement,
			TargetDocument:     DocumentTypeIncomeStatement,
			Evaluate: func(rc *RuleContext) (decimal.Decimal, decimal.Decimal, error) {
				noi, err := rc.Value(DocumentTypeIncomeStatement, "NET_OPERATING_INCOME")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				revenue, err := rc.Value(DocumentTypeIncomeStatement, "TOTAL_REVENUE")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				opex, err := rc.Value(DocumentTypeIncomeStatement, "OPERATING_EXPENSES")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				return noi, revenue.Sub(opex), nil
			},
		},
		// ----- cash flow -----
		{
			Code:               "cash-flow-continuity",
			Category:           RuleCategoryCashFlow,
			Description:        "ending cash equals beginning cash plus net change",
			RequiredDocuments:  []DocumentType{DocumentTypeCashFlow},
			Compare:            CompareTolerance,
			TolerancePercent:   dec("0.1"),
			SeverePercent:      dec("1.0"),
			MaterialityPercent: dec("2.0"),
			SourceDocument:     DocumentTypeCashFlow,
			TargetDocument:     DocumentTypeCashFlow,
			Evaluate: func(rc *RuleContext) (decimal.Decimal, decimal.Decimal, error) {
				ending, err := rc.Value(DocumentTypeCashFlow, "CASH_ENDING_BALANCE")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				beginning, err := rc.Value(DocumentTypeCashFlow, "CASH_BEGINNING_BALANCE")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				change, err := rc.Value(DocumentTypeCashFlow, "NET_CASH_CHANGE")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				return ending, beginning.Add(change), nil
			},
		},
		{
			Code:               "cash-flow-activity-total",
			Category:           RuleCategoryCashFlow,
			Description:        "net cash change equals the sum of the three activity sections",
			RequiredDocuments:  []DocumentType{DocumentTypeCashFlow},
			Compare:            CompareTolerance,
			TolerancePercent:   dec("0.1"),
			SeverePercent:      dec("1.0"),
			MaterialityPercent: dec("2.0"),
			SourceDocument:     DocumentTypeCashFlow,
			TargetDocument:     DocumentTypeCashFlow,
			Evaluate: func(rc *RuleContext) (decimal.Decimal, decimal.Decimal, error) {
				change, err := rc.Value(DocumentTypeCashFlow, "NET_CASH_CHANGE")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				total := rc.SectionSum(DocumentTypeCashFlow, "OPERATING").
					Add(rc.SectionSum(DocumentTypeCashFlow, "INVESTING")).
					Add(rc.SectionSum(DocumentTypeCashFlow, "FINANCING"))
				return change, total, nil
			},
		},
		// ----- mortgage -----
		{
			Code:               "debt-service-components",
			Category:           RuleCategoryMortgage,
			Description:        "total debt service equals principal plus interest paid",
			RequiredDocuments:  []DocumentType{DocumentTypeMortgageStatement},
			Compare:            CompareTolerance,
			TolerancePercent:   dec("0.1"),
			SeverePercent:      dec("1.0"),
			MaterialityPercent: dec("2.0"),
			SourceDocument:     DocumentTypeMortgageStatement,
			TargetDocument:     DocumentTypeMortgageStatement,
			Evaluate: func(rc *RuleContext) (decimal.Decimal, decimal.Decimal, error) {
				total, err := rc.Value(DocumentTypeMortgageStatement, "TOTAL_DEBT_SERVICE")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				principal, err := rc.Value(DocumentTypeMortgageStatement, "PRINCIPAL_PAID")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				interest, err := rc.Value(DocumentTypeMortgageStatement, "INTEREST_PAID")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				return total, principal.Add(interest), nil
			},
		},
		{
			Code:               "mortgage-balance-rollforward",
			Category:           RuleCategoryMortgage,
			Description:        "outstanding principal equals beginning principal minus principal paid",
			RequiredDocuments:  []DocumentType{DocumentTypeMortgageStatement},
			Compare:            CompareTolerance,
			TolerancePercent:   dec("0.1"),
			SeverePercent:      dec("1.0"),
			MaterialityPercent: dec("2.0"),
			SourceDocument:     DocumentTypeMortgageStatement,
			TargetDocument:     DocumentTypeMortgageStatement,
			Evaluate: func(rc *RuleContext) (decimal.Decimal, decimal.Decimal, error) {
				outstanding, err := rc.Value(DocumentTypeMortgageStatement, "OUTSTANDING_PRINCIPAL")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				beginning, err := rc.Value(DocumentTypeMortgageStatement, "BEGINNING_PRINCIPAL")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				paid, err := rc.Value(DocumentTypeMortgageStatement, "PRINCIPAL_PAID")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				return outstanding, beginning.Sub(paid), nil
			},
		},
		// ----- rent roll -----
		{
			Code:               "rent-roll-unit-total",
			Category:           RuleCategoryRentRoll,
			Description:        "scheduled rent total equals the sum of unit rents",
			RequiredDocuments:  []DocumentType{DocumentTypeRentRoll},
			Compare:            CompareTolerance,
			TolerancePercent:   dec("0.1"),
			SeverePercent:      dec("1.0"),
			MaterialityPercent: dec("2.0"),
			SourceDocument:     DocumentTypeRentRoll,
			TargetDocument:     DocumentTypeRentRoll,
			Evaluate: func(rc *RuleContext) (decimal.Decimal, decimal.Decimal, error) {
				stated, err := rc.Value(DocumentTypeRentRoll, "SCHEDULED_RENT_TOTAL")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				return stated, rc.SectionSum(DocumentTypeRentRoll, "UNITS"), nil
			},
		},
		{
			Code:               "occupancy-bounds",
			Category:           RuleCategoryRentRoll,
			Description:        "occupied units cannot exceed total units",
			RequiredDocuments:  []DocumentType{DocumentTypeRentRoll},
			Compare:            CompareMax,
			SeverePercent:      dec("5.0"),
			MaterialityPercent: dec("5.0"),
			SourceDocument:     DocumentTypeRentRoll,
			TargetDocument:     DocumentTypeRentRoll,
			Evaluate: func(rc *RuleContext) (decimal.Decimal, decimal.Decimal, error) {
				total, err := rc.Value(DocumentTypeRentRoll, "TOTAL_UNITS")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				occupied, err := rc.Value(DocumentTypeRentRoll, "OCCUPIED_UNITS")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				return total, occupied, nil
			},
		},
		// ----- cross-statement -----
		{
			Code:               "cross-net-income",
			Category:           RuleCategoryCrossStatement,
			Description:        "net income reconciles between income statement and cash flow",
			RequiredDocuments:  []DocumentType{DocumentTypeIncomeStatement, DocumentTypeCashFlow},
			Compare:            CompareTolerance,
			TolerancePercent:   dec("0.5"),
			SeverePercent:      dec("2.0"),
			MaterialityPercent: dec("2.0"),
			SourceDocument:     DocumentTypeIncomeStatement,
			TargetDocument:     DocumentTypeCashFlow,
			Evaluate: func(rc *RuleContext) (decimal.Decimal, decimal.Decimal, error) {
				is, err := rc.Value(DocumentTypeIncomeStatement, "NET_INCOME")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				cf, err := rc.Value(DocumentTypeCashFlow, "NET_INCOME")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				return is, cf, nil
			},
		},
		{
			Code:               "cross-cash-balance",
			Category:           RuleCategoryCrossStatement,
			Description:        "balance sheet cash ties to cash flow ending balance",
			RequiredDocuments:  []DocumentType{DocumentTypeBalanceSheet, DocumentTypeCashFlow},
			Compare:            CompareTolerance,
			TolerancePercent:   dec("0.01"),
			SeverePercent:      dec("0.03"),
			MaterialityPercent: dec("2.0"),
			SourceDocument:     DocumentTypeBalanceSheet,
			TargetDocument:     DocumentTypeCashFlow,
			Evaluate: func(rc *RuleContext) (decimal.Decimal, decimal.Decimal, error) {
				bs, err := rc.Value(DocumentTypeBalanceSheet, "CASH_AND_EQUIVALENTS")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				cf, err := rc.Value(DocumentTypeCashFlow, "CASH_ENDING_BALANCE")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				return bs, cf, nil
			},
		},
		{
			Code:               "cross-rental-income",
			Category:           RuleCategoryCrossStatement,
			Description:        "rental income ties to the rent roll scheduled total",
			RequiredDocuments:  []DocumentType{DocumentTypeIncomeStatement, DocumentTypeRentRoll},
			Compare:            CompareTolerance,
			TolerancePercent:   dec("1.0"),
			SeverePercent:      dec("5.0"),
			MaterialityPercent: dec("2.0"),
			SourceDocument:     DocumentTypeIncomeStatement,
			TargetDocument:     DocumentTypeRentRoll,
			Evaluate: func(rc *RuleContext) (decimal.Decimal, decimal.Decimal, error) {
				is, err := rc.Value(DocumentTypeIncomeStatement, "RENTAL_INCOME")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				rr, err := rc.Value(DocumentTypeRentRoll, "SCHEDULED_RENT_TOTAL")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				return rr, is, nil
			},
		},
		{
			Code:               "cross-mortgage-balance",
			Category:           RuleCategoryCrossStatement,
			Description:        "mortgage payable ties to the statement's outstanding principal",
			RequiredDocuments:  []DocumentType{DocumentTypeBalanceSheet, DocumentTypeMortgageStatement},
			Compare:            CompareTolerance,
			TolerancePercent:   dec("0.5"),
			SeverePercent:      dec("2.0"),
			MaterialityPercent: dec("2.0"),
			SourceDocument:     DocumentTypeBalanceSheet,
			TargetDocument:     DocumentTypeMortgageStatement,
			Evaluate: func(rc *RuleContext) (decimal.Decimal, decimal.Decimal, error) {
				bs, err := rc.Value(DocumentTypeBalanceSheet, "MORTGAGE_PAYABLE")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				ms, err := rc.Value(DocumentTypeMortgageStatement, "OUTSTANDING_PRINCIPAL")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				return ms, bs, nil
			},
		},
		{
			Code:               "cross-match-agreement",
			Category:           RuleCategoryCrossStatement,
			Description:        "share of matched pairs agreeing within tolerance",
			RequiredDocuments:  nil,
			RequiresMatches:    true,
			Compare:            CompareMin,
			SeverePercent:      dec("20.0"),
			MaterialityPercent: dec("20.0"),
			Evaluate: func(rc *RuleContext) (decimal.Decimal, decimal.Decimal, error) {
				matched, agreeing := 0, 0
				for i := range rc.Matches {
					m := &rc.Matches[i]
					if !m.IsMatched() {
						continue
					}
					matched++
					if m.Classification != ClassificationMismatch {
						agreeing++
					}
				}
				if matched == 0 {
					return decimal.Zero, decimal.Zero, errors.New("no matched pairs to grade")
				}
				share := decimal.NewFromInt(int64(agreeing)).
					Div(decimal.NewFromInt(int64(matched))).
					Mul(decimal.NewFromInt(100)).Round(4)
				return dec("90.0"), share, nil
			},
		},
		// ----- analytics (trend) -----
		{
			Code:               "revenue-trend",
			Category:           RuleCategoryAnalytics,
			Description:        "total revenue versus prior period",
			RequiredDocuments:  []DocumentType{DocumentTypeIncomeStatement},
			RequiresPrior:      true,
			Compare:            CompareTrend,
			TolerancePercent:   dec("25.0"),
			SeverePercent:      dec("50.0"),
			MaterialityPercent: dec("25.0"),
			SourceDocument:     DocumentTypeIncomeStatement,
			TargetDocument:     DocumentTypeIncomeStatement,
			Evaluate: func(rc *RuleContext) (decimal.Decimal, decimal.Decimal, error) {
				prior, err := rc.PriorValue(DocumentTypeIncomeStatement, "TOTAL_REVENUE")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				current, err := rc.Value(DocumentTypeIncomeStatement, "TOTAL_REVENUE")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				return prior, current, nil
			},
		},
		{
			Code:               "expense-trend",
			Category:           RuleCategoryAnalytics,
			Description:        "total expenses versus prior period",
			RequiredDocuments:  []DocumentType{DocumentTypeIncomeStatement},
			RequiresPrior:      true,
			Compare:            CompareTrend,
			TolerancePercent:   dec("25.0"),
			SeverePercent:      dec("50.0"),
			MaterialityPercent: dec("25.0"),
			SourceDocument:     DocumentTypeIncomeStatement,
			TargetDocument:     DocumentTypeIncomeStatement,
			Evaluate: func(rc *RuleContext) (decimal.Decimal, decimal.Decimal, error) {
				prior, err := rc.PriorValue(DocumentTypeIncomeStatement, "TOTAL_EXPENSES")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				current, err := rc.Value(DocumentTypeIncomeStatement, "TOTAL_EXPENSES")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				return prior, current, nil
			},
		},
		// ----- audit -----
		{
			Code:              "dscr-minimum",
			Category:          RuleCategoryAudit,
			Description:       "debt service coverage at or above the warning threshold",
			RequiredDocuments: []DocumentType{DocumentTypeIncomeStatement, DocumentTypeMortgageStatement},
			Compare:           CompareMin,
			SeverePercent:     dec("20.0"),
			MaterialityAbs:    dec("0.25"),
			SourceDocument:    DocumentTypeIncomeStatement,
			TargetDocument:    DocumentTypeMortgageStatement,
			Evaluate: func(rc *RuleContext) (decimal.Decimal, decimal.Decimal, error) {
				noi, err := rc.Value(DocumentTypeIncomeStatement, "NET_OPERATING_INCOME")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				debtService, err := rc.Value(DocumentTypeMortgageStatement, "TOTAL_DEBT_SERVICE")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				ratio, err := rc.safeDiv(noi, debtService)
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				return dec("1.25"), ratio.Round(4), nil
			},
		},
		{
			Code:              "non-negative-cash",
			Category:          RuleCategoryAudit,
			Description:       "ending cash is not negative",
			RequiredDocuments: []DocumentType{DocumentTypeCashFlow},
			Compare:           CompareMin,
			SeverePercent:     dec("100.0"),
			MaterialityAbs:    dec("1000"),
			SourceDocument:    DocumentTypeCashFlow,
			TargetDocument:    DocumentTypeCashFlow,
			Evaluate: func(rc *RuleContext) (decimal.Decimal, decimal.Decimal, error) {
				ending, err := rc.Value(DocumentTypeCashFlow, "CASH_ENDING_BALANCE")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				return decimal.Zero, ending, nil
			},
		},
		{
			Code:               "rent-collection-rate",
			Category:           RuleCategoryAudit,
			Description:        "collected rent is at least 85% of scheduled rent",
			RequiredDocuments:  []DocumentType{DocumentTypeCashFlow, DocumentTypeRentRoll},
			Compare:            CompareMin,
			SeverePercent:      dec("15.0"),
			MaterialityPercent: dec("10.0"),
			SourceDocument:     DocumentTypeCashFlow,
			TargetDocument:     DocumentTypeRentRoll,
			Evaluate: func(rc *RuleContext) (decimal.Decimal, decimal.Decimal, error) {
				collected, err := rc.Value(DocumentTypeCashFlow, "RENT_COLLECTED")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				scheduled, err := rc.Value(DocumentTypeRentRoll, "SCHEDULED_RENT_TOTAL")
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				rate, err := rc.safeDiv(collected, scheduled)
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				return dec("0.85"), rate.Round(4), nil
			},
		},
	}
}
