package models

import (
	"context"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/proplens/recon_backend/config"
	"github.com/proplens/recon_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xrash/smetrics"
)

var (
	confidenceExact          = decimal.NewFromInt(1)
	confidenceCalculated     = decimal.RequireFromString("0.90")
	confidenceInferred       = decimal.RequireFromString("0.85")
	confidenceCalculatedWeak = decimal.RequireFromString("0.60")
	confidenceInferredWeak   = decimal.RequireFromString("0.55")
)

// FindMatches runs the four-stage match pipeline for one property/period over
// the given document types. Line items must already exist for at least one of
// the types; the engine never fetches documents or extracts anything.
func FindMatches(ctx context.Context, propertyId int, periodId string, documentTypes []DocumentType, xref *AccountXrefTable) ([]MatchResult, error) {
	if propertyId <= 0 {
		return nil, utils.NewValidationError("property_id", "must be positive")
	}
	if !utils.IsValidPeriodId(periodId) {
		return nil, utils.NewValidationError("period_id", "must be YYYY-MM")
	}

	items, err := GetLineItems(ctx, propertyId, periodId, documentTypes)
	if err != nil {
		return nil, err
	}
	grouped := GroupLineItemsByDocumentType(items)

	fuzzyThreshold := config.FuzzyMatchThreshold()
	tolerance := config.MatchValueTolerancePercent()

	var results []MatchResult
	for i := 0; i < len(documentTypes); i++ {
		for j := i + 1; j < len(documentTypes); j++ {
			source, target := documentTypes[i], documentTypes[j]
			sourceItems, targetItems := grouped[source], grouped[target]
			if len(sourceItems) == 0 && len(targetItems) == 0 {
				continue
			}
			results = append(results, matchPair(source, target, sourceItems, targetItems, xref, fuzzyThreshold, tolerance)...)
		}
	}
	return results, nil
}

// matchPair applies the stages in fixed precedence order. Each stage sees only
// items no earlier stage has claimed; a claimed item never re-matches.
func matchPair(sourceDoc, targetDoc DocumentType, sourceItems, targetItems []LineItem, xref *AccountXrefTable, fuzzyThreshold, tolerance decimal.Decimal) []MatchResult {
	claimed := newClaimSet()

	var results []MatchResult
	results = append(results, exactStage(sourceDoc, targetDoc, sourceItems, targetItems, claimed, tolerance)...)
	results = append(results, fuzzyStage(sourceDoc, targetDoc, sourceItems, targetItems, claimed, fuzzyThreshold, tolerance)...)
	results = append(results, calculatedStage(sourceDoc, targetDoc, sourceItems, targetItems, claimed, tolerance)...)
	results = append(results, inferredStage(sourceDoc, targetDoc, sourceItems, targetItems, claimed, xref, tolerance)...)

	// Residual items are recorded, not treated as errors: many document-type
	// pairs legitimately have no 1:1 correspondence.
	for _, item := range sourceItems {
		if claimed.hasSource(item.ID) {
			continue
		}
		v := item.Value
		results = append(results, MatchResult{
			SourceDocumentType: sourceDoc,
			SourceAccountCode:  item.AccountCode,
			SourceAccountName:  item.AccountName,
			SourceValue:        &v,
			TargetDocumentType: targetDoc,
			Classification:     ClassificationMissingInTarget,
		})
	}
	for _, item := range targetItems {
		if claimed.hasTarget(item.ID) {
			continue
		}
		v := item.Value
		results = append(results, MatchResult{
			SourceDocumentType: sourceDoc,
			TargetDocumentType: targetDoc,
			TargetAccountCode:  item.AccountCode,
			TargetAccountName:  item.AccountName,
			TargetValue:        &v,
			Classification:     ClassificationMissingInSource,
		})
	}
	return results
}

type claimSet struct {
	source map[int]struct{}
	target map[int]struct{}
}

func newClaimSet() *claimSet {
	return &claimSet{source: make(map[int]struct{}), target: make(map[int]struct{})}
}

func (c *claimSet) claim(sourceId, targetId int) {
	c.source[sourceId] = struct{}{}
	c.target[targetId] = struct{}{}
}

func (c *claimSet) hasSource(id int) bool { _, ok := c.source[id]; return ok }
func (c *claimSet) hasTarget(id int) bool { _, ok := c.target[id]; return ok }

// pairedResult builds the MatchResult for a matched pair, computing difference
// and classification. Difference fields stay nil only for unmatched rows.
func pairedResult(sourceDoc, targetDoc DocumentType, source, target LineItem, strategy MatchStrategy, confidence decimal.Decimal, tolerance decimal.Decimal) MatchResult {
	sv, tv := source.Value, target.Value
	diff := tv.Sub(sv)
	var pct *decimal.Decimal
	if !sv.IsZero() {
		p := diff.Abs().Div(sv.Abs()).Mul(decimal.NewFromInt(100)).Round(6)
		pct = &p
	}

	classification := ClassificationMismatch
	switch {
	case diff.IsZero():
		classification = ClassificationExactMatch
	case pct != nil && pct.LessThanOrEqual(tolerance):
		classification = ClassificationWithinTolerance
	}

	conf := confidence
	return MatchResult{
		SourceDocumentType: sourceDoc,
		SourceAccountCode:  source.AccountCode,
		SourceAccountName:  source.AccountName,
		SourceValue:        &sv,
		TargetDocumentType: targetDoc,
		TargetAccountCode:  target.AccountCode,
		TargetAccountName:  target.AccountName,
		TargetValue:        &tv,
		Difference:         &diff,
		DifferencePercent:  pct,
		Strategy:           strategy,
		Confidence:         &conf,
		Classification:     classification,
	}
}

// exactStage matches identical normalized account codes, then identical
// normalized account names, across the two documents.
func exactStage(sourceDoc, targetDoc DocumentType, sourceItems, targetItems []LineItem, claimed *claimSet, tolerance decimal.Decimal) []MatchResult {
	byCode := make(map[string]*LineItem)
	byName := make(map[string]*LineItem)
	for i := range targetItems {
		t := &targetItems[i]
		key := NormalizeAccountKey(t.AccountCode)
		if _, exists := byCode[key]; !exists {
			byCode[key] = t
		}
		nameKey := NormalizeAccountKey(t.AccountName)
		if _, exists := byName[nameKey]; !exists {
			byName[nameKey] = t
		}
	}

	var results []MatchResult
	for i := range sourceItems {
		s := &sourceItems[i]
		t := byCode[NormalizeAccountKey(s.AccountCode)]
		if t == nil || claimed.hasTarget(t.ID) {
			t = byName[NormalizeAccountKey(s.AccountName)]
		}
		if t == nil || claimed.hasTarget(t.ID) {
			continue
		}
		claimed.claim(s.ID, t.ID)
		results = append(results, pairedResult(sourceDoc, targetDoc, *s, *t, MatchStrategyExact, confidenceExact, tolerance))
	}
	return results
}

type fuzzyCandidate struct {
	sourceIdx  int
	targetIdx  int
	similarity decimal.Decimal
}

// fuzzyStage scores remaining account-name pairs with the better of
// Jaro-Winkler and normalized Levenshtein similarity, then assigns greedily
// from the highest score down. Ties break on the lexicographically smallest
// target code, then source code, so runs are deterministic.
func fuzzyStage(sourceDoc, targetDoc DocumentType, sourceItems, targetItems []LineItem, claimed *claimSet, threshold, tolerance decimal.Decimal) []MatchResult {
	var candidates []fuzzyCandidate
	for i := range sourceItems {
		if claimed.hasSource(sourceItems[i].ID) {
			continue
		}
		for j := range targetItems {
			if claimed.hasTarget(targetItems[j].ID) {
				continue
			}
			sim := nameSimilarity(sourceItems[i].AccountName, targetItems[j].AccountName)
			if sim.GreaterThanOrEqual(threshold) {
				candidates = append(candidates, fuzzyCandidate{sourceIdx: i, targetIdx: j, similarity: sim})
			}
		}
	}

	sort.Slice(candidates, func(a, b int) bool {
		ca, cb := candidates[a], candidates[b]
		if !ca.similarity.Equal(cb.similarity) {
			return ca.similarity.GreaterThan(cb.similarity)
		}
		ta, tb := targetItems[ca.targetIdx].AccountCode, targetItems[cb.targetIdx].AccountCode
		if ta != tb {
			return ta < tb
		}
		return sourceItems[ca.sourceIdx].AccountCode < sourceItems[cb.sourceIdx].AccountCode
	})

	var results []MatchResult
	for _, c := range candidates {
		s, t := sourceItems[c.sourceIdx], targetItems[c.targetIdx]
		if claimed.hasSource(s.ID) || claimed.hasTarget(t.ID) {
			continue
		}
		claimed.claim(s.ID, t.ID)
		results = append(results, pairedResult(sourceDoc, targetDoc, s, t, MatchStrategyFuzzy, c.similarity, tolerance))
	}
	return results
}

func nameSimilarity(a, b string) decimal.Decimal {
	an, bn := NormalizeAccountKey(a), NormalizeAccountKey(b)
	if an == "" || bn == "" {
		return decimal.Zero
	}
	jw := smetrics.JaroWinkler(an, bn, 0.7, 4)

	dist := levenshtein.ComputeDistance(an, bn)
	maxLen := len([]rune(an))
	if l := len([]rune(bn)); l > maxLen {
		maxLen = l
	}
	lev := 1.0 - float64(dist)/float64(maxLen)

	best := jw
	if lev > best {
		best = lev
	}
	return decimal.NewFromFloat(best).Round(4)
}

// calculatedRelation expresses a known derived relationship: a single account
// on one document equals a computed aggregate on the other.
type calculatedRelation struct {
	singleDoc  DocumentType
	singleCode string
	aggDoc     DocumentType
	agg        aggregateSpec
}

type aggregateSpec struct {
	label        string
	codes        []string
	section      string
	minusSection string
}

var calculatedRelations = []calculatedRelation{
	// Income-statement net income reconciles to the cash-flow starting line.
	{singleDoc: DocumentTypeCashFlow, singleCode: "NET_INCOME",
		aggDoc: DocumentTypeIncomeStatement,
		agg:    aggregateSpec{label: "REVENUE - EXPENSES", section: "REVENUE", minusSection: "EXPENSES"}},
	// Rental income on the income statement equals the rent roll unit total.
	{singleDoc: DocumentTypeIncomeStatement, singleCode: "RENTAL_INCOME",
		aggDoc: DocumentTypeRentRoll,
		agg:    aggregateSpec{label: "SUM(UNIT RENT)", section: "UNITS"}},
	// Debt service on the mortgage statement equals principal + interest
	// outflows on the cash flow.
	{singleDoc: DocumentTypeMortgageStatement, singleCode: "TOTAL_DEBT_SERVICE",
		aggDoc: DocumentTypeCashFlow,
		agg:    aggregateSpec{label: "MORTGAGE_PRINCIPAL + MORTGAGE_INTEREST", codes: []string{"MORTGAGE_PRINCIPAL", "MORTGAGE_INTEREST"}}},
}

// resolveAggregate computes the aggregate side of a relation over unclaimed
// items and reports which items contributed.
func (spec aggregateSpec) resolve(items []LineItem, skip func(LineItem) bool) (decimal.Decimal, []int, bool) {
	total := decimal.Zero
	var contributing []int
	found := false

	for _, item := range items {
		if skip(item) {
			continue
		}
		include := false
		negate := false
		switch {
		case len(spec.codes) > 0:
			for _, code := range spec.codes {
				if item.AccountCode == code {
					include = true
					break
				}
			}
		case spec.minusSection != "":
			if strings.EqualFold(item.Section, spec.section) {
				include = true
			} else if strings.EqualFold(item.Section, spec.minusSection) {
				include = true
				negate = true
			}
		default:
			include = strings.EqualFold(item.Section, spec.section)
		}
		if !include {
			continue
		}
		if negate {
			total = total.Sub(item.Value)
		} else {
			total = total.Add(item.Value)
		}
		contributing = append(contributing, item.ID)
		found = true
	}
	return total, contributing, found
}

// calculatedStage matches via known derived relationships. The aggregate's
// contributing items are claimed along with the single account so no later
// stage re-matches them.
func calculatedStage(sourceDoc, targetDoc DocumentType, sourceItems, targetItems []LineItem, claimed *claimSet, tolerance decimal.Decimal) []MatchResult {
	var results []MatchResult
	for _, rel := range calculatedRelations {
		var singleItems, aggItems []LineItem
		var singleIsSource bool
		switch {
		case rel.singleDoc == sourceDoc && rel.aggDoc == targetDoc:
			singleItems, aggItems, singleIsSource = sourceItems, targetItems, true
		case rel.singleDoc == targetDoc && rel.aggDoc == sourceDoc:
			singleItems, aggItems, singleIsSource = targetItems, sourceItems, false
		default:
			continue
		}

		var single *LineItem
		for i := range singleItems {
			item := &singleItems[i]
			if item.AccountCode != rel.singleCode {
				continue
			}
			if singleIsSource && claimed.hasSource(item.ID) {
				continue
			}
			if !singleIsSource && claimed.hasTarget(item.ID) {
				continue
			}
			single = item
			break
		}
		if single == nil {
			continue
		}

		skip := func(item LineItem) bool {
			if singleIsSource {
				return claimed.hasTarget(item.ID)
			}
			return claimed.hasSource(item.ID)
		}
		total, contributing, ok := rel.agg.resolve(aggItems, skip)
		if !ok {
			continue
		}

		synthetic := LineItem{
			AccountCode: rel.agg.label,
			AccountName: rel.agg.label,
			Value:       total,
		}
		var result MatchResult
		if singleIsSource {
			result = pairedResult(sourceDoc, targetDoc, *single, synthetic, MatchStrategyCalculated, confidenceCalculated, tolerance)
			claimed.source[single.ID] = struct{}{}
			for _, id := range contributing {
				claimed.target[id] = struct{}{}
			}
		} else {
			result = pairedResult(sourceDoc, targetDoc, synthetic, *single, MatchStrategyCalculated, confidenceCalculated, tolerance)
			claimed.target[single.ID] = struct{}{}
			for _, id := range contributing {
				claimed.source[id] = struct{}{}
			}
		}
		if result.Classification == ClassificationMismatch {
			weak := confidenceCalculatedWeak
			result.Confidence = &weak
		}
		results = append(results, result)
	}
	return results
}

// inferredStage consults the static cross-reference table for semantically
// equivalent codes the earlier stages could not see.
func inferredStage(sourceDoc, targetDoc DocumentType, sourceItems, targetItems []LineItem, claimed *claimSet, xref *AccountXrefTable, tolerance decimal.Decimal) []MatchResult {
	if xref == nil {
		return nil
	}
	targetByCode := make(map[string]*LineItem)
	for i := range targetItems {
		t := &targetItems[i]
		if _, exists := targetByCode[t.AccountCode]; !exists {
			targetByCode[t.AccountCode] = t
		}
	}

	var results []MatchResult
	for i := range sourceItems {
		s := &sourceItems[i]
		if claimed.hasSource(s.ID) {
			continue
		}
		equivalent, ok := xref.Equivalent(sourceDoc, s.AccountCode, targetDoc)
		if !ok {
			continue
		}
		t := targetByCode[equivalent]
		if t == nil || claimed.hasTarget(t.ID) {
			continue
		}
		claimed.claim(s.ID, t.ID)
		result := pairedResult(sourceDoc, targetDoc, *s, *t, MatchStrategyInferred, confidenceInferred, tolerance)
		if result.Classification == ClassificationMismatch {
			weak := confidenceInferredWeak
			result.Confidence = &weak
		}
		results = append(results, result)
	}
	return results
}
