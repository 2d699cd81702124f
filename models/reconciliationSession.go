package models

import (
	"context"
	"errors"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/proplens/recon_backend/config"
	"github.com/proplens/recon_backend/utils"
	"gorm.io/gorm"
)

type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "PENDING"
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
	SessionStatusFailed     SessionStatus = "FAILED"
)

// ReconciliationSession is one match+evaluate run for a property/period and
// document scope. Summary counters are derived from the persisted MatchResult
// and RuleResult rows on completion, never recomputed independently.
type ReconciliationSession struct {
	ID              int           `gorm:"primary_key" json:"id"`
	PropertyId      int           `gorm:"index:idx_session_scope;not null" json:"property_id"`
	PeriodId        string        `gorm:"index:idx_session_scope;size:7;not null" json:"period_id"`
	DocumentScope   string        `gorm:"index:idx_session_scope;size:191;not null" json:"document_scope"`
	Status          SessionStatus `gorm:"size:16;not null;default:'PENDING';index" json:"status"`
	FailureReason   string        `gorm:"size:255" json:"failure_reason,omitempty"`
	TotalCompared   int           `json:"total_compared"`
	MatchedCount    int           `json:"matched_count"`
	DifferenceCount int           `json:"difference_count"`
	MissingInSource int           `json:"missing_in_source"`
	MissingInTarget int           `json:"missing_in_target"`
	RulesExecuted   int           `json:"rules_executed"`
	CorrelationId   string        `gorm:"size:64" json:"correlation_id"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	CreatedAt       time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// SessionClaim is the single mutual-exclusion point of the core: at most one
// row per (property, period, scope) exists while a session is pending or in
// progress. The unique index turns a concurrent second start into a duplicate
// key error, which callers surface as Busy.
type SessionClaim struct {
	ID            int       `gorm:"primary_key" json:"id"`
	PropertyId    int       `gorm:"uniqueIndex:uq_session_claim;not null" json:"property_id"`
	PeriodId      string    `gorm:"uniqueIndex:uq_session_claim;size:7;not null" json:"period_id"`
	DocumentScope string    `gorm:"uniqueIndex:uq_session_claim;size:191;not null" json:"document_scope"`
	SessionId     int       `gorm:"index;not null" json:"session_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// CreateClaimedSession inserts the session row and its claim in one
// transaction. A conflicting active session makes the claim insert fail with
// a duplicate key, returned as ErrorBusy; nothing is persisted in that case.
func CreateClaimedSession(ctx context.Context, propertyId int, periodId string, documentScope string, correlationId string) (*ReconciliationSession, error) {
	db := config.GetDB()

	session := ReconciliationSession{
		PropertyId:    propertyId,
		PeriodId:      periodId,
		DocumentScope: documentScope,
		Status:        SessionStatusPending,
		CorrelationId: correlationId,
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&session).Error; err != nil {
			return err
		}
		claim := SessionClaim{
			PropertyId:    propertyId,
			PeriodId:      periodId,
			DocumentScope: documentScope,
			SessionId:     session.ID,
		}
		if err := tx.Create(&claim).Error; err != nil {
			if isDuplicateKeyErr(err) {
				return utils.ErrorBusy
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ReleaseSessionClaim removes the claim for a session. Safe to call twice.
func ReleaseSessionClaim(ctx context.Context, tx *gorm.DB, sessionId int) error {
	if tx == nil {
		tx = config.GetDB().WithContext(ctx)
	}
	return tx.Where("session_id = ?", sessionId).Delete(&SessionClaim{}).Error
}

func GetSession(ctx context.Context, sessionId int) (*ReconciliationSession, error) {
	db := config.GetDB()
	var session ReconciliationSession
	err := db.WithContext(ctx).First(&session, sessionId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessions returns sessions newest first, optionally for one property.
func ListSessions(ctx context.Context, propertyId int, limit int) ([]ReconciliationSession, error) {
	db := config.GetDB()
	if limit <= 0 || limit > 100 {
		limit = config.SearchLimit
	}
	q := db.WithContext(ctx).Model(&ReconciliationSession{})
	if propertyId > 0 {
		q = q.Where("property_id = ?", propertyId)
	}
	var sessions []ReconciliationSession
	if err := q.Order("id DESC").Limit(limit).Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// MarkSessionInProgress transitions PENDING -> IN_PROGRESS.
func MarkSessionInProgress(ctx context.Context, sessionId int) error {
	db := config.GetDB()
	now := time.Now().UTC()
	return db.WithContext(ctx).Model(&ReconciliationSession{}).
		Where("id = ? AND status = ?", sessionId, SessionStatusPending).
		Updates(map[string]interface{}{"status": SessionStatusInProgress, "started_at": &now}).Error
}

// LatestCompletedSession returns the most recent completed session covering
// a property/period/scope, or ErrorRecordNotFound.
func LatestCompletedSession(ctx context.Context, propertyId int, periodId string, documentScope string) (*ReconciliationSession, error) {
	db := config.GetDB()
	var session ReconciliationSession
	err := db.WithContext(ctx).
		Where("property_id = ? AND period_id = ? AND document_scope = ? AND status = ?",
			propertyId, periodId, documentScope, SessionStatusCompleted).
		Order("id DESC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}
