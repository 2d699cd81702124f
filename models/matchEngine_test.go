package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. matchPair and the stage
// functions operate on in-memory line items; FindMatches only adds the
// database fetch on top.

var (
	testFuzzyThreshold = decimal.RequireFromString("0.85")
	testTolerance      = decimal.RequireFromString("1.0")
)

func li(id int, code, name, section, value string) LineItem {
	return LineItem{
		ID:          id,
		AccountCode: code,
		AccountName: name,
		Section:     section,
		Value:       decimal.RequireFromString(value),
	}
}

func runPair(t *testing.T, sourceDoc, targetDoc DocumentType, source, target []LineItem) []MatchResult {
	t.Helper()
	return matchPair(sourceDoc, targetDoc, source, target, LoadAccountXrefTable(), testFuzzyThreshold, testTolerance)
}

func findByStrategy(results []MatchResult, strategy MatchStrategy) []MatchResult {
	var out []MatchResult
	for _, r := range results {
		if r.Strategy == strategy {
			out = append(out, r)
		}
	}
	return out
}

func TestMatchPair_ExactCodeWins(t *testing.T) {
	source := []LineItem{li(1, "NET_INCOME", "Net Income", "SUMMARY", "18500")}
	target := []LineItem{
		li(11, "NET_INCOME", "Net Income", "OPERATING", "18500"),
		li(12, "NET_INCOME_ADJ", "Net Income Adjusted", "OPERATING", "18000"),
	}

	results := runPair(t, DocumentTypeIncomeStatement, DocumentTypeCashFlow, source, target)

	exact := findByStrategy(results, MatchStrategyExact)
	if len(exact) != 1 {
		t.Fatalf("want 1 exact match, got %d (%+v)", len(exact), results)
	}
	m := exact[0]
	if m.TargetAccountCode != "NET_INCOME" {
		t.Errorf("exact stage matched %q, want NET_INCOME", m.TargetAccountCode)
	}
	if m.Classification != ClassificationExactMatch {
		t.Errorf("classification = %s, want EXACT_MATCH", m.Classification)
	}
	if m.Confidence == nil || !m.Confidence.Equal(decimal.NewFromInt(1)) {
		t.Errorf("exact confidence = %v, want 1", m.Confidence)
	}
}

func TestMatchPair_ExactNameFallback(t *testing.T) {
	// Codes differ; normalized names collide (case and whitespace folded).
	source := []LineItem{li(1, "IS_NOI", "Net  Operating Income", "SUMMARY", "54500")}
	target := []LineItem{li(11, "CF_NOI", "net operating income", "OPERATING", "54500")}

	results := runPair(t, DocumentTypeIncomeStatement, DocumentTypeCashFlow, source, target)

	exact := findByStrategy(results, MatchStrategyExact)
	if len(exact) != 1 {
		t.Fatalf("want 1 exact match via name, got %d", len(exact))
	}
	if exact[0].TargetAccountCode != "CF_NOI" {
		t.Errorf("matched %q, want CF_NOI", exact[0].TargetAccountCode)
	}
}

func TestMatchPair_ClaimedItemNeverRematches(t *testing.T) {
	// The source item matches exactly by code; the xref table also links
	// BS CASH_AND_EQUIVALENTS to CF CASH_ENDING_BALANCE, but the exact claim
	// must not be stolen or duplicated by a later stage.
	source := []LineItem{li(1, "CASH_AND_EQUIVALENTS", "Cash and Equivalents", "ASSETS", "125000")}
	target := []LineItem{
		li(11, "CASH_AND_EQUIVALENTS", "Cash and Equivalents", "SUMMARY", "125000"),
		li(12, "CASH_ENDING_BALANCE", "Period Closing Funds", "SUMMARY", "125000"),
	}

	results := runPair(t, DocumentTypeBalanceSheet, DocumentTypeCashFlow, source, target)

	var matchedRows int
	for _, r := range results {
		if r.IsMatched() || r.Classification == ClassificationMismatch {
			if r.SourceAccountCode == "CASH_AND_EQUIVALENTS" && r.SourceValue != nil && r.TargetValue != nil {
				matchedRows++
				if r.Strategy != MatchStrategyExact {
					t.Errorf("source matched via %s, want EXACT", r.Strategy)
				}
			}
		}
	}
	if matchedRows != 1 {
		t.Fatalf("source item produced %d paired rows, want exactly 1", matchedRows)
	}
}

func TestMatchPair_FuzzyTieBreakIsDeterministic(t *testing.T) {
	// Two targets with identical names score identically against the source;
	// the smaller target code must win every run.
	source := []LineItem{li(1, "MGMT_FEE", "Management Fees", "EXPENSES", "4000")}
	target := []LineItem{
		li(12, "FEE_B", "Management Fee", "OPERATING", "4000"),
		li(11, "FEE_A", "Management Fee", "OPERATING", "4100"),
	}

	for run := 0; run < 20; run++ {
		results := runPair(t, DocumentTypeIncomeStatement, DocumentTypeCashFlow, source, target)
		fuzzy := findByStrategy(results, MatchStrategyFuzzy)
		if len(fuzzy) != 1 {
			t.Fatalf("want 1 fuzzy match, got %d", len(fuzzy))
		}
		if fuzzy[0].TargetAccountCode != "FEE_A" {
			t.Fatalf("run %d: tie broke to %q, want FEE_A", run, fuzzy[0].TargetAccountCode)
		}
	}
}

func TestMatchPair_FuzzyBelowThresholdDoesNotMatch(t *testing.T) {
	source := []LineItem{li(1, "INSURANCE", "Insurance Premium", "EXPENSES", "900")}
	target := []LineItem{li(11, "LANDSCAPING", "Landscaping Contract", "OPERATING", "900")}

	results := runPair(t, DocumentTypeIncomeStatement, DocumentTypeCashFlow, source, target)

	if fuzzy := findByStrategy(results, MatchStrategyFuzzy); len(fuzzy) != 0 {
		t.Fatalf("dissimilar names fuzzily matched: %+v", fuzzy)
	}
	var missingTarget, missingSource int
	for _, r := range results {
		switch r.Classification {
		case ClassificationMissingInTarget:
			missingTarget++
		case ClassificationMissingInSource:
			missingSource++
		}
	}
	if missingTarget != 1 || missingSource != 1 {
		t.Errorf("residuals = (%d missing-in-target, %d missing-in-source), want (1, 1)", missingTarget, missingSource)
	}
}

func TestMatchPair_CalculatedNetIncome(t *testing.T) {
	// No code or name overlap; CF NET_INCOME must reconcile against the
	// income statement's REVENUE minus EXPENSES sections.
	source := []LineItem{
		li(1, "RENTAL_INCOME", "Rental Income", "REVENUE", "92000"),
		li(2, "OPERATING_EXPENSES", "Operating Expenses", "EXPENSES", "73500"),
	}
	target := []LineItem{li(11, "NET_INCOME", "Bottom Line Result", "OPERATING", "18500")}

	results := runPair(t, DocumentTypeIncomeStatement, DocumentTypeCashFlow, source, target)

	calculated := findByStrategy(results, MatchStrategyCalculated)
	if len(calculated) != 1 {
		t.Fatalf("want 1 calculated match, got %d (%+v)", len(calculated), results)
	}
	m := calculated[0]
	if m.SourceValue == nil || !m.SourceValue.Equal(decimal.RequireFromString("18500")) {
		t.Errorf("aggregate value = %v, want 18500", m.SourceValue)
	}
	if m.Classification != ClassificationExactMatch {
		t.Errorf("classification = %s, want EXACT_MATCH", m.Classification)
	}

	// Contributing items are claimed; nothing should be reported missing.
	for _, r := range results {
		if r.Classification == ClassificationMissingInSource || r.Classification == ClassificationMissingInTarget {
			t.Errorf("unexpected residual row: %+v", r)
		}
	}
}

func TestMatchPair_CalculatedMismatchWeakensConfidence(t *testing.T) {
	source := []LineItem{
		li(1, "RENTAL_INCOME", "Rental Income", "REVENUE", "92000"),
		li(2, "OPERATING_EXPENSES", "Operating Expenses", "EXPENSES", "73500"),
	}
	// Far outside tolerance.
	target := []LineItem{li(11, "NET_INCOME", "Bottom Line Result", "OPERATING", "40000")}

	results := runPair(t, DocumentTypeIncomeStatement, DocumentTypeCashFlow, source, target)

	calculated := findByStrategy(results, MatchStrategyCalculated)
	if len(calculated) != 1 {
		t.Fatalf("want 1 calculated match, got %d", len(calculated))
	}
	m := calculated[0]
	if m.Classification != ClassificationMismatch {
		t.Fatalf("classification = %s, want MISMATCH", m.Classification)
	}
	if m.Confidence == nil || !m.Confidence.Equal(decimal.RequireFromString("0.60")) {
		t.Errorf("mismatch confidence = %v, want 0.60", m.Confidence)
	}
}

func TestMatchPair_InferredViaXref(t *testing.T) {
	source := []LineItem{li(1, "CASH_AND_EQUIVALENTS", "Cash and Equivalents", "ASSETS", "125000")}
	target := []LineItem{li(11, "CASH_ENDING_BALANCE", "Period Closing Funds", "SUMMARY", "125000")}

	results := runPair(t, DocumentTypeBalanceSheet, DocumentTypeCashFlow, source, target)

	inferred := findByStrategy(results, MatchStrategyInferred)
	if len(inferred) != 1 {
		t.Fatalf("want 1 inferred match, got %d (%+v)", len(inferred), results)
	}
	m := inferred[0]
	if m.Classification != ClassificationExactMatch {
		t.Errorf("classification = %s, want EXACT_MATCH", m.Classification)
	}
	if m.Confidence == nil || !m.Confidence.Equal(decimal.RequireFromString("0.85")) {
		t.Errorf("inferred confidence = %v, want 0.85", m.Confidence)
	}
}

func TestPairedResult_Classifications(t *testing.T) {
	cases := []struct {
		name   string
		source string
		target string
		want   MatchClassification
	}{
		{"identical", "100", "100", ClassificationExactMatch},
		{"within tolerance", "100", "100.5", ClassificationWithinTolerance},
		{"outside tolerance", "100", "110", ClassificationMismatch},
		{"zero source defeats percent basis", "0", "5", ClassificationMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := li(1, "A", "A", "", tc.source)
			tg := li(2, "A", "A", "", tc.target)
			r := pairedResult(DocumentTypeBalanceSheet, DocumentTypeCashFlow, s, tg, MatchStrategyExact, confidenceExact, testTolerance)
			if r.Classification != tc.want {
				t.Errorf("classification = %s, want %s", r.Classification, tc.want)
			}
			if tc.source == "0" && r.DifferencePercent != nil {
				t.Errorf("difference percent should be nil when source is zero, got %v", r.DifferencePercent)
			}
		})
	}
}

func TestPairedResult_DifferenceIsTargetMinusSource(t *testing.T) {
	s := li(1, "A", "A", "", "100")
	tg := li(2, "A", "A", "", "90")
	r := pairedResult(DocumentTypeBalanceSheet, DocumentTypeCashFlow, s, tg, MatchStrategyExact, confidenceExact, testTolerance)
	if r.Difference == nil || !r.Difference.Equal(decimal.RequireFromString("-10")) {
		t.Errorf("difference = %v, want -10", r.Difference)
	}
	if r.DifferencePercent == nil || !r.DifferencePercent.Equal(decimal.RequireFromString("10")) {
		t.Errorf("difference percent = %v, want 10", r.DifferencePercent)
	}
}

func TestNameSimilarity(t *testing.T) {
	one := decimal.NewFromInt(1)
	if got := nameSimilarity("Net Income", "net  income"); !got.Equal(one) {
		t.Errorf("normalized identical names scored %s, want 1", got)
	}
	if got := nameSimilarity("", "anything"); !got.IsZero() {
		t.Errorf("empty name scored %s, want 0", got)
	}
	sim := nameSimilarity("Management Fee", "Management Fees")
	if sim.LessThan(testFuzzyThreshold) {
		t.Errorf("near-identical names scored %s, want >= %s", sim, testFuzzyThreshold)
	}
	far := nameSimilarity("Insurance Premium", "Landscaping Contract")
	if far.GreaterThanOrEqual(testFuzzyThreshold) {
		t.Errorf("unrelated names scored %s, want < %s", far, testFuzzyThreshold)
	}
}
