package models

import (
	"context"
	"fmt"
	"time"

	"github.com/proplens/recon_backend/config"
	"github.com/proplens/recon_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type MatchStrategy string

const (
	MatchStrategyExact      MatchStrategy = "EXACT"
	MatchStrategyFuzzy      MatchStrategy = "FUZZY"
	MatchStrategyCalculated MatchStrategy = "CALCULATED"
	MatchStrategyInferred   MatchStrategy = "INFERRED"
)

type MatchClassification string

const (
	ClassificationExactMatch      MatchClassification = "EXACT_MATCH"
	ClassificationWithinTolerance MatchClassification = "WITHIN_TOLERANCE"
	ClassificationMismatch        MatchClassification = "MISMATCH"
	ClassificationMissingInSource MatchClassification = "MISSING_IN_SOURCE"
	ClassificationMissingInTarget MatchClassification = "MISSING_IN_TARGET"
)

type ResolutionAction string

const (
	ResolutionAcceptSource ResolutionAction = "ACCEPT_SOURCE"
	ResolutionAcceptTarget ResolutionAction = "ACCEPT_TARGET"
	ResolutionManualValue  ResolutionAction = "MANUAL_VALUE"
	ResolutionIgnore       ResolutionAction = "IGNORE"
)

func IsValidResolutionAction(a ResolutionAction) bool {
	switch a {
	case ResolutionAcceptSource, ResolutionAcceptTarget, ResolutionManualValue, ResolutionIgnore:
		return true
	}
	return false
}

// MatchResult is one cross-document pairing (or a recorded absence of one)
// produced by a session. Rows are immutable once written except for the
// resolution fields; a re-run supersedes the prior session's rows.
//
// Difference fields are nil for unmatched rows: absence of correspondence is
// an expected outcome for some document-type pairs, not an error.
type MatchResult struct {
	ID                 int                 `gorm:"primary_key" json:"id"`
	SessionId          int                 `gorm:"index;not null" json:"session_id"`
	PropertyId         int                 `gorm:"index:idx_match_scope;not null" json:"property_id"`
	PeriodId           string              `gorm:"index:idx_match_scope;size:7;not null" json:"period_id"`
	SourceDocumentType DocumentType        `gorm:"size:32;not null" json:"source_document_type"`
	SourceAccountCode  string              `gorm:"size:64" json:"source_account_code"`
	SourceAccountName  string              `gorm:"size:255" json:"source_account_name"`
	SourceValue        *decimal.Decimal    `gorm:"type:decimal(20,4)" json:"source_value,omitempty"`
	TargetDocumentType DocumentType        `gorm:"size:32;not null" json:"target_document_type"`
	TargetAccountCode  string              `gorm:"size:64" json:"target_account_code"`
	TargetAccountName  string              `gorm:"size:255" json:"target_account_name"`
	TargetValue        *decimal.Decimal    `gorm:"type:decimal(20,4)" json:"target_value,omitempty"`
	Difference         *decimal.Decimal    `gorm:"type:decimal(20,4)" json:"difference,omitempty"`
	DifferencePercent  *decimal.Decimal    `gorm:"type:decimal(12,6)" json:"difference_percent,omitempty"`
	Strategy           MatchStrategy       `gorm:"size:16" json:"strategy,omitempty"`
	Confidence         *decimal.Decimal    `gorm:"type:decimal(5,4)" json:"confidence,omitempty"`
	Classification     MatchClassification `gorm:"size:24;not null;index" json:"classification"`
	ResolutionAction   ResolutionAction    `gorm:"size:16" json:"resolution_action,omitempty"`
	ResolutionValue    *decimal.Decimal    `gorm:"type:decimal(20,4)" json:"resolution_value,omitempty"`
	ResolutionReason   string              `gorm:"size:255" json:"resolution_reason,omitempty"`
	ResolvedBy         string              `gorm:"size:64" json:"resolved_by,omitempty"`
	ResolvedAt         *time.Time          `json:"resolved_at,omitempty"`
	CreatedAt          time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

func (m *MatchResult) IsMatched() bool {
	switch m.Classification {
	case ClassificationExactMatch, ClassificationWithinTolerance, ClassificationMismatch:
		return true
	}
	return false
}

// ComparisonCacheKey is the redis key for a cached comparison read.
func ComparisonCacheKey(propertyId int, periodId string, documentScope string) string {
	return fmt.Sprintf("comparison:%d:%s:%s", propertyId, periodId, documentScope)
}

// SplitMatches partitions results into paired rows and residuals, preserving
// order within each group.
func SplitMatches(results []MatchResult) (matched []MatchResult, unmatched []MatchResult) {
	matched = make([]MatchResult, 0, len(results))
	unmatched = make([]MatchResult, 0)
	for i := range results {
		if results[i].IsMatched() {
			matched = append(matched, results[i])
		} else {
			unmatched = append(unmatched, results[i])
		}
	}
	return matched, unmatched
}

// ReplaceMatchResults persists a session's match results inside tx, removing
// rows of earlier sessions for the same property/period/scope so exactly one
// result set stays current.
func ReplaceMatchResults(tx *gorm.DB, session *ReconciliationSession, results []MatchResult) error {
	err := tx.
		Where("property_id = ? AND period_id = ? AND session_id <> ?",
			session.PropertyId, session.PeriodId, session.ID).
		Where("session_id IN (?)",
			tx.Session(&gorm.Session{NewDB: true}).
				Model(&ReconciliationSession{}).
				Select("id").
				Where("property_id = ? AND period_id = ? AND document_scope = ?",
					session.PropertyId, session.PeriodId, session.DocumentScope)).
		Delete(&MatchResult{}).Error
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return nil
	}
	for i := range results {
		results[i].SessionId = session.ID
		results[i].PropertyId = session.PropertyId
		results[i].PeriodId = session.PeriodId
	}
	return tx.CreateInBatches(results, 200).Error
}

// GetMatchResultsBySession returns a session's rows in insertion order.
func GetMatchResultsBySession(ctx context.Context, sessionId int) ([]MatchResult, error) {
	db := config.GetDB()
	var results []MatchResult
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionId).
		Order("id").
		Find(&results).Error
	return results, err
}

// ResolveDifference applies a manual resolution to one match result.
// Re-resolving overwrites the previous resolution.
func ResolveDifference(ctx context.Context, matchResultId int, action ResolutionAction, value *decimal.Decimal, reason string) error {
	if !IsValidResolutionAction(action) {
		return utils.NewValidationError("action", "unknown resolution action "+string(action))
	}
	if action == ResolutionManualValue && value == nil {
		return utils.NewValidationError("value", "manual resolution needs a value")
	}

	if err := utils.ValidateResourceId[MatchResult](ctx, matchResultId); err != nil {
		return err
	}

	db := config.GetDB()
	actor, _ := utils.GetActorIdFromContext(ctx)
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"resolution_action": action,
		"resolution_reason": reason,
		"resolved_by":       actor,
		"resolved_at":       &now,
	}
	if action == ResolutionManualValue {
		updates["resolution_value"] = value
	} else {
		updates["resolution_value"] = nil
	}
	if err := db.WithContext(ctx).Model(&MatchResult{}).
		Where("id = ?", matchResultId).
		Updates(updates).Error; err != nil {
		return err
	}

	// A resolution changes the cached comparison of the owning session.
	var owner struct {
		PropertyId    int
		PeriodId      string
		DocumentScope string
	}
	err := db.WithContext(ctx).Model(&MatchResult{}).
		Select("match_results.property_id", "match_results.period_id", "reconciliation_sessions.document_scope").
		Joins("JOIN reconciliation_sessions ON reconciliation_sessions.id = match_results.session_id").
		Where("match_results.id = ?", matchResultId).
		Scan(&owner).Error
	if err == nil && owner.PeriodId != "" {
		_ = config.RemoveRedisKey(ComparisonCacheKey(owner.PropertyId, owner.PeriodId, owner.DocumentScope))
	}
	return nil
}

type BulkResolveSummary struct {
	Succeeded int   `json:"succeeded"`
	Failed    int   `json:"failed"`
	Total     int   `json:"total"`
	FailedIds []int `json:"failed_ids,omitempty"`
}

// BulkResolve applies one action to many match results. Partial success is
// normal and reported per item, never collapsed into one failure.
func BulkResolve(ctx context.Context, matchResultIds []int, action ResolutionAction, reason string) (*BulkResolveSummary, error) {
	if !IsValidResolutionAction(action) {
		return nil, utils.NewValidationError("action", "unknown resolution action "+string(action))
	}
	if action == ResolutionManualValue {
		return nil, utils.NewValidationError("action", "manual values cannot be applied in bulk")
	}

	ids := utils.UniqueSlice(matchResultIds)
	summary := BulkResolveSummary{Total: len(ids)}
	for _, id := range ids {
		if err := ResolveDifference(ctx, id, action, nil, reason); err != nil {
			summary.Failed++
			summary.FailedIds = append(summary.FailedIds, id)
			continue
		}
		summary.Succeeded++
	}
	return &summary, nil
}
