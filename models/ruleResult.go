package models

import (
	"context"
	"time"

	"github.com/proplens/recon_backend/config"
	"github.com/proplens/recon_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RuleStatus string

const (
	RuleStatusPass    RuleStatus = "PASS"
	RuleStatusWarning RuleStatus = "WARNING"
	RuleStatusFail    RuleStatus = "FAIL"
	RuleStatusSkip    RuleStatus = "SKIP"
	RuleStatusError   RuleStatus = "ERROR"
)

type RuleCategory string

const (
	RuleCategoryBalanceSheet    RuleCategory = "balance-sheet"
	RuleCategoryIncomeStatement RuleCategory = "income-statement"
	RuleCategoryCashFlow        RuleCategory = "cash-flow"
	RuleCategoryMortgage        RuleCategory = "mortgage"
	RuleCategoryRentRoll        RuleCategory = "rent-roll"
	RuleCategoryCrossStatement  RuleCategory = "cross-statement"
	RuleCategoryAnalytics       RuleCategory = "analytics"
	RuleCategoryAudit           RuleCategory = "audit"
)

// RuleResult is the idempotent snapshot of one rule evaluation for a
// property/period. Re-evaluation overwrites the row for the same key; these
// rows are never an append log. "Rules active" figures must count these rows,
// never the static catalog size.
type RuleResult struct {
	ID                 int              `gorm:"primary_key" json:"id"`
	PropertyId         int              `gorm:"uniqueIndex:uq_rule_result;not null" json:"property_id"`
	PeriodId           string           `gorm:"uniqueIndex:uq_rule_result;size:7;not null" json:"period_id"`
	RuleCode           string           `gorm:"uniqueIndex:uq_rule_result;size:64;not null" json:"rule_code"`
	Category           RuleCategory     `gorm:"size:32;not null;index" json:"category"`
	Status             RuleStatus       `gorm:"size:16;not null;index" json:"status"`
	Expected           *decimal.Decimal `gorm:"type:decimal(20,4)" json:"expected,omitempty"`
	Actual             *decimal.Decimal `gorm:"type:decimal(20,4)" json:"actual,omitempty"`
	Variance           *decimal.Decimal `gorm:"type:decimal(20,4)" json:"variance,omitempty"`
	VariancePercent    *decimal.Decimal `gorm:"type:decimal(12,6)" json:"variance_percent,omitempty"`
	IsMaterial         bool             `gorm:"not null;default:false" json:"is_material"`
	SourceDocumentType DocumentType     `gorm:"size:32" json:"source_document_type,omitempty"`
	TargetDocumentType DocumentType     `gorm:"size:32" json:"target_document_type,omitempty"`
	SkipReason         string           `gorm:"size:255" json:"skip_reason,omitempty"`
	ErrorMessage       string           `gorm:"size:255" json:"error_message,omitempty"`
	EvaluatedAt        time.Time        `gorm:"not null" json:"evaluated_at"`
}

// ReplaceRuleResults writes one evaluation batch inside a single transaction,
// replacing prior rows for the same (property, period, rule code) keys.
// All-or-nothing: a failed write leaves the previous batch intact.
func ReplaceRuleResults(tx *gorm.DB, propertyId int, periodId string, results []RuleResult) error {
	if len(results) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range results {
		results[i].PropertyId = propertyId
		results[i].PeriodId = periodId
		if results[i].EvaluatedAt.IsZero() {
			results[i].EvaluatedAt = now
		}
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "property_id"}, {Name: "period_id"}, {Name: "rule_code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"category", "status", "expected", "actual", "variance", "variance_percent",
			"is_material", "source_document_type", "target_document_type",
			"skip_reason", "error_message", "evaluated_at",
		}),
	}).CreateInBatches(results, 200).Error
}

// GetRuleResults returns the persisted snapshots for a property/period in
// rule-code order.
func GetRuleResults(ctx context.Context, propertyId int, periodId string) ([]RuleResult, error) {
	db := config.GetDB()
	var results []RuleResult
	err := db.WithContext(ctx).
		Where("property_id = ? AND period_id = ?", propertyId, periodId).
		Order("rule_code").
		Find(&results).Error
	return results, err
}

// CountRuleResults reports how many rules actually produced rows for the
// property/period.
func CountRuleResults(ctx context.Context, propertyId int, periodId string) (int64, error) {
	return utils.ResourceCountWhere[RuleResult](ctx,
		"property_id = ? AND period_id = ?", propertyId, periodId)
}
