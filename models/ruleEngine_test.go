package models

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

// DB-free: evaluateRule takes a fully built RuleContext, so rule semantics
// are testable without MySQL. EvaluateAllRules only adds the fetch and the
// worker pool on top.

func ruleByCode(t *testing.T, code string) *RuleDescriptor {
	t.Helper()
	catalog := RuleCatalog()
	for i := range catalog {
		if catalog[i].Code == code {
			return &catalog[i]
		}
	}
	t.Fatalf("rule %q not in catalog", code)
	return nil
}

func contextWithItems(items ...LineItem) *RuleContext {
	rc := &RuleContext{
		PropertyId: 1,
		PeriodId:   "2026-07",
		Items:      map[DocumentType][]LineItem{},
	}
	for _, item := range items {
		rc.Items[item.DocumentType] = append(rc.Items[item.DocumentType], item)
	}
	return rc
}

func bsItem(code, value string) LineItem {
	return LineItem{DocumentType: DocumentTypeBalanceSheet, AccountCode: code, AccountName: code, Value: decimal.RequireFromString(value)}
}

func cfItem(code, value string) LineItem {
	return LineItem{DocumentType: DocumentTypeCashFlow, AccountCode: code, AccountName: code, Value: decimal.RequireFromString(value)}
}

func isItem(code, value string) LineItem {
	return LineItem{DocumentType: DocumentTypeIncomeStatement, AccountCode: code, AccountName: code, Value: decimal.RequireFromString(value)}
}

func msItem(code, value string) LineItem {
	return LineItem{DocumentType: DocumentTypeMortgageStatement, AccountCode: code, AccountName: code, Value: decimal.RequireFromString(value)}
}

func TestAccountingEquation_PassWithinTolerance(t *testing.T) {
	// 0.05% off: inside the 0.1% tolerance, and under the 2% materiality bar.
	rc := contextWithItems(
		bsItem("TOTAL_ASSETS", "2000000"),
		bsItem("TOTAL_LIABILITIES", "1500000"),
		bsItem("TOTAL_EQUITY", "499000"),
	)
	r := evaluateRule(ruleByCode(t, "accounting-equation"), rc)
	if r.Status != RuleStatusPass {
		t.Fatalf("status = %s, want PASS (variance %v)", r.Status, r.Variance)
	}
	if r.IsMaterial {
		t.Error("a 0.05% variance should not be material")
	}
}

func TestAccountingEquation_WarningThenFail(t *testing.T) {
	// 0.5% off: past tolerance (0.1%) but inside the severe band (1%).
	rc := contextWithItems(
		bsItem("TOTAL_ASSETS", "2000000"),
		bsItem("TOTAL_LIABILITIES", "1500000"),
		bsItem("TOTAL_EQUITY", "490000"),
	)
	r := evaluateRule(ruleByCode(t, "accounting-equation"), rc)
	if r.Status != RuleStatusWarning {
		t.Errorf("0.5%% variance: status = %s, want WARNING", r.Status)
	}

	// 5% off: past the severe band, and past the 2% materiality bar.
	rc = contextWithItems(
		bsItem("TOTAL_ASSETS", "2000000"),
		bsItem("TOTAL_LIABILITIES", "1500000"),
		bsItem("TOTAL_EQUITY", "400000"),
	)
	r = evaluateRule(ruleByCode(t, "accounting-equation"), rc)
	if r.Status != RuleStatusFail {
		t.Errorf("5%% variance: status = %s, want FAIL", r.Status)
	}
	if !r.IsMaterial {
		t.Error("a 5% variance should be material")
	}
}

func TestMaterialityIsIndependentOfStatus(t *testing.T) {
	// cross-cash-balance has a strict 0.01% tolerance but a 2% materiality
	// bar: a 0.1% variance FAILS the tie-out yet stays immaterial.
	rc := contextWithItems(
		bsItem("CASH_AND_EQUIVALENTS", "1000000"),
		cfItem("CASH_ENDING_BALANCE", "1001000"),
	)
	r := evaluateRule(ruleByCode(t, "cross-cash-balance"), rc)
	if r.Status != RuleStatusFail {
		t.Fatalf("status = %s, want FAIL (variance %v, pct %v)", r.Status, r.Variance, r.VariancePercent)
	}
	if r.IsMaterial {
		t.Error("0.1% variance is under the 2% materiality bar; IsMaterial must be false")
	}
}

func TestRuleSkipsWhenRequiredDocumentMissing(t *testing.T) {
	// Balance sheet present, cash flow absent.
	rc := contextWithItems(bsItem("CASH_AND_EQUIVALENTS", "1000000"))
	r := evaluateRule(ruleByCode(t, "cross-cash-balance"), rc)
	if r.Status != RuleStatusSkip {
		t.Fatalf("status = %s, want SKIP", r.Status)
	}
	if r.SkipReason == "" {
		t.Error("skip must carry a reason")
	}
}

func TestRuleErrorWhenAccountMissingInPresentDocument(t *testing.T) {
	// Document is present, but the account the formula needs is not: this is
	// a computation error, not a skip.
	rc := contextWithItems(
		bsItem("CASH_AND_EQUIVALENTS", "1000000"),
		cfItem("RENT_COLLECTED", "90500"),
	)
	r := evaluateRule(ruleByCode(t, "cross-cash-balance"), rc)
	if r.Status != RuleStatusError {
		t.Fatalf("status = %s, want ERROR", r.Status)
	}
	if r.ErrorMessage == "" {
		t.Error("error status must carry a message")
	}
}

func TestTrendRuleSkipsWithoutPriorPeriod(t *testing.T) {
	rc := contextWithItems(isItem("TOTAL_REVENUE", "95500"))
	r := evaluateRule(ruleByCode(t, "revenue-trend"), rc)
	if r.Status != RuleStatusSkip {
		t.Fatalf("status = %s, want SKIP", r.Status)
	}
	if r.SkipReason != "missing prior period data" {
		t.Errorf("skip reason = %q", r.SkipReason)
	}
}

func TestMatchAgreementRuleSkipsWithoutMatches(t *testing.T) {
	rc := contextWithItems(bsItem("TOTAL_ASSETS", "2000000"))
	rc.Items[DocumentTypeIncomeStatement] = []LineItem{isItem("NET_INCOME", "18500")}
	r := evaluateRule(ruleByCode(t, "cross-match-agreement"), rc)
	if r.Status != RuleStatusSkip {
		t.Fatalf("status = %s, want SKIP", r.Status)
	}
	if r.SkipReason != "no match results available" {
		t.Errorf("skip reason = %q", r.SkipReason)
	}
}

func TestDSCRMinimumRule(t *testing.T) {
	// 54500 / 40000 = 1.3625 >= 1.25: pass.
	rc := contextWithItems(
		isItem("NET_OPERATING_INCOME", "54500"),
		msItem("TOTAL_DEBT_SERVICE", "40000"),
	)
	r := evaluateRule(ruleByCode(t, "dscr-minimum"), rc)
	if r.Status != RuleStatusPass {
		t.Fatalf("healthy ratio: status = %s, want PASS (actual %v)", r.Status, r.Actual)
	}

	// 14000 / 40000 = 0.35: deep breach, and |variance| 0.9 >= 0.25 abs
	// materiality.
	rc = contextWithItems(
		isItem("NET_OPERATING_INCOME", "14000"),
		msItem("TOTAL_DEBT_SERVICE", "40000"),
	)
	r = evaluateRule(ruleByCode(t, "dscr-minimum"), rc)
	if r.Status != RuleStatusFail {
		t.Fatalf("deep breach: status = %s, want FAIL (actual %v)", r.Status, r.Actual)
	}
	if !r.IsMaterial {
		t.Error("a 0.35 ratio against a 1.25 floor should be material")
	}
}

func TestRulePanicBecomesError(t *testing.T) {
	rule := &RuleDescriptor{
		Code:    "panicky",
		Compare: CompareTolerance,
		Evaluate: func(rc *RuleContext) (decimal.Decimal, decimal.Decimal, error) {
			panic("boom")
		},
	}
	r := evaluateRule(rule, contextWithItems())
	if r.Status != RuleStatusError {
		t.Fatalf("status = %s, want ERROR", r.Status)
	}
	if r.ErrorMessage == "" {
		t.Error("panic must surface in the error message")
	}
}

func TestRuleEvaluateErrorIsContained(t *testing.T) {
	sentinel := errors.New("formula exploded")
	rule := &RuleDescriptor{
		Code:    "erroring",
		Compare: CompareTolerance,
		Evaluate: func(rc *RuleContext) (decimal.Decimal, decimal.Decimal, error) {
			return decimal.Zero, decimal.Zero, sentinel
		},
	}
	r := evaluateRule(rule, contextWithItems())
	if r.Status != RuleStatusError {
		t.Fatalf("status = %s, want ERROR", r.Status)
	}
	if r.ErrorMessage != sentinel.Error() {
		t.Errorf("error message = %q, want %q", r.ErrorMessage, sentinel.Error())
	}
}

func TestClassifySemantics(t *testing.T) {
	minRule := &RuleDescriptor{Compare: CompareMin, SeverePercent: dec("20")}
	if got := classify(minRule, dec("0.05"), nil); got != RuleStatusPass {
		t.Errorf("MIN with positive variance = %s, want PASS", got)
	}
	maxRule := &RuleDescriptor{Compare: CompareMax, SeverePercent: dec("20")}
	if got := classify(maxRule, dec("-3"), nil); got != RuleStatusPass {
		t.Errorf("MAX with negative variance = %s, want PASS", got)
	}
	tolRule := &RuleDescriptor{Compare: CompareTolerance, ToleranceAbs: dec("0.5"), SeverePercent: dec("10")}
	if got := classify(tolRule, dec("0.4"), nil); got != RuleStatusPass {
		t.Errorf("within absolute tolerance = %s, want PASS", got)
	}
	pct := dec("50")
	if got := classify(tolRule, dec("5"), &pct); got != RuleStatusFail {
		t.Errorf("far past severe band = %s, want FAIL", got)
	}
}

func TestRuleCatalogCodesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, rule := range RuleCatalog() {
		if rule.Code == "" {
			t.Fatal("rule with empty code")
		}
		if seen[rule.Code] {
			t.Fatalf("duplicate rule code %q", rule.Code)
		}
		seen[rule.Code] = true
		if rule.Evaluate == nil {
			t.Fatalf("rule %q has no formula", rule.Code)
		}
	}
}

func TestRuleEvaluationIsIdempotent(t *testing.T) {
	rc := contextWithItems(
		bsItem("TOTAL_ASSETS", "2000000"),
		bsItem("TOTAL_LIABILITIES", "1500000"),
		bsItem("TOTAL_EQUITY", "500000"),
		bsItem("CASH", "125000"),
		isItem("TOTAL_REVENUE", "95500"),
		isItem("OPERATING_EXPENSES", "41000"),
		isItem("NET_OPERATING_INCOME", "54500"),
		cfItem("ENDING_CASH_BALANCE", "125000"),
		msItem("TOTAL_DEBT_SERVICE", "40000"),
	)
	rc.Matches = []MatchResult{
		{Classification: ClassificationExactMatch},
		{Classification: ClassificationMismatch},
	}

	first, err := evaluateCatalog(context.Background(), rc, RuleCatalog())
	if err != nil {
		t.Fatal(err)
	}
	for run := 0; run < 5; run++ {
		again, err := evaluateCatalog(context.Background(), rc, RuleCatalog())
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d produced a different batch on unchanged inputs", run+1)
		}
	}
}
