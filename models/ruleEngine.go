package models

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/proplens/recon_backend/config"
	"github.com/proplens/recon_backend/utils"
	"github.com/shopspring/decimal"
)

// EvaluateAllRules runs every catalog rule for one property/period. Rules are
// mutually independent, so they run concurrently across a bounded worker
// pool; the returned slice is sorted by rule code so re-runs on unchanged
// inputs produce identical batches.
//
// matches may be nil when no session has run; only rules that declare
// RequiresMatches consult it.
func EvaluateAllRules(ctx context.Context, propertyId int, periodId string, matches []MatchResult) ([]RuleResult, error) {
	if propertyId <= 0 {
		return nil, utils.NewValidationError("property_id", "must be positive")
	}
	if !utils.IsValidPeriodId(periodId) {
		return nil, utils.NewValidationError("period_id", "must be YYYY-MM")
	}

	items, err := GetLineItems(ctx, propertyId, periodId, nil)
	if err != nil {
		return nil, err
	}
	rc := &RuleContext{
		PropertyId: propertyId,
		PeriodId:   periodId,
		Items:      GroupLineItemsByDocumentType(items),
		Matches:    matches,
	}

	if prior, ok := utils.PreviousPeriodId(periodId); ok {
		priorItems, err := GetLineItems(ctx, propertyId, prior, nil)
		if err != nil {
			return nil, err
		}
		rc.PriorItems = GroupLineItemsByDocumentType(priorItems)
	}

	return evaluateCatalog(ctx, rc, RuleCatalog())
}

// evaluateCatalog fans the catalog across the worker pool and returns the
// batch sorted by rule code.
func evaluateCatalog(ctx context.Context, rc *RuleContext, catalog []RuleDescriptor) ([]RuleResult, error) {
	results := make([]RuleResult, len(catalog))

	workerCount := config.RuleWorkerCount()
	if workerCount < 1 {
		workerCount = 1
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = evaluateRule(&catalog[idx], rc)
			}
		}()
	}
	for idx := range catalog {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, ctx.Err()
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].RuleCode < results[j].RuleCode })
	return results, nil
}

// evaluateRule never lets one rule take down the batch: a panicking or
// erroring formula becomes status=ERROR for that rule alone.
func evaluateRule(rule *RuleDescriptor, rc *RuleContext) (result RuleResult) {
	result = RuleResult{
		RuleCode:           rule.Code,
		Category:           rule.Category,
		SourceDocumentType: rule.SourceDocument,
		TargetDocumentType: rule.TargetDocument,
	}
	defer func() {
		if r := recover(); r != nil {
			result.Status = RuleStatusError
			result.ErrorMessage = fmt.Sprintf("rule panicked: %v", r)
		}
	}()

	// Missing required data is an expected outcome, never a failure.
	for _, doc := range rule.RequiredDocuments {
		if len(rc.Items[doc]) == 0 {
			result.Status = RuleStatusSkip
			result.SkipReason = "missing required document: " + string(doc)
			return result
		}
	}
	if rule.RequiresPrior {
		hasPrior := false
		for _, doc := range rule.RequiredDocuments {
			if len(rc.PriorItems[doc]) > 0 {
				hasPrior = true
				break
			}
		}
		if !hasPrior {
			result.Status = RuleStatusSkip
			result.SkipReason = "missing prior period data"
			return result
		}
	}
	if rule.RequiresMatches && len(rc.Matches) == 0 {
		result.Status = RuleStatusSkip
		result.SkipReason = "no match results available"
		return result
	}

	expected, actual, err := rule.Evaluate(rc)
	if err != nil {
		result.Status = RuleStatusError
		result.ErrorMessage = err.Error()
		return result
	}

	variance := actual.Sub(expected)
	var variancePct *decimal.Decimal
	if !expected.IsZero() {
		p := variance.Abs().Div(expected.Abs()).Mul(decimal.NewFromInt(100)).Round(6)
		variancePct = &p
	}

	result.Expected = &expected
	result.Actual = &actual
	result.Variance = &variance
	result.VariancePercent = variancePct
	result.Status = classify(rule, variance, variancePct)
	result.IsMaterial = isMaterial(rule, variance, variancePct)
	return result
}

// classify grades the variance against the rule's comparison semantic and
// tolerance band.
func classify(rule *RuleDescriptor, variance decimal.Decimal, variancePct *decimal.Decimal) RuleStatus {
	switch rule.Compare {
	case CompareMin:
		// variance = actual - expected; non-negative means the floor holds.
		if !variance.IsNegative() {
			return RuleStatusPass
		}
	case CompareMax:
		// non-positive means the ceiling holds.
		if !variance.IsPositive() {
			return RuleStatusPass
		}
	default: // CompareTolerance, CompareTrend
		if !rule.ToleranceAbs.IsZero() && variance.Abs().LessThanOrEqual(rule.ToleranceAbs) {
			return RuleStatusPass
		}
		if variancePct != nil && variancePct.LessThanOrEqual(rule.TolerancePercent) {
			return RuleStatusPass
		}
		if variance.IsZero() {
			return RuleStatusPass
		}
	}

	if variancePct != nil && variancePct.LessThanOrEqual(rule.SeverePercent) {
		return RuleStatusWarning
	}
	if variancePct == nil {
		// Expected was zero; any variance past tolerance without a percent
		// basis is graded on the severe band's absolute meaning.
		return RuleStatusWarning
	}
	return RuleStatusFail
}

// isMaterial flags variances worth human attention regardless of pass/fail:
// a strict-tolerance FAIL can be immaterial, and a wide-tolerance PASS can
// still be material.
func isMaterial(rule *RuleDescriptor, variance decimal.Decimal, variancePct *decimal.Decimal) bool {
	if !rule.MaterialityAbs.IsZero() && variance.Abs().GreaterThanOrEqual(rule.MaterialityAbs) {
		return true
	}
	if !rule.MaterialityPercent.IsZero() && variancePct != nil && variancePct.GreaterThanOrEqual(rule.MaterialityPercent) {
		return true
	}
	return false
}
