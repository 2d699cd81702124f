package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/proplens/recon_backend/config"
	"github.com/proplens/recon_backend/models"
	"github.com/proplens/recon_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("recon-backend")

// ErrSessionNotCancellable is returned when the session already reached a
// terminal state or is not running on this instance.
var ErrSessionNotCancellable = errors.New("session is not cancellable")

// StartReconciliationSession validates the request, claims the
// property/period/scope, and launches the run in the background. A concurrent
// active session for the same triple surfaces as utils.ErrorBusy.
func StartReconciliationSession(ctx context.Context, propertyId int, periodId string, documentScope string) (*models.ReconciliationSession, error) {
	if propertyId <= 0 {
		return nil, utils.NewValidationError("property_id", "must be positive")
	}
	if !utils.IsValidPeriodId(periodId) {
		return nil, utils.NewValidationError("period_id", "must be YYYY-MM")
	}
	_, normalizedScope, err := models.ParseDocumentScope(documentScope)
	if err != nil {
		return nil, err
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	session, err := models.CreateClaimedSession(ctx, propertyId, periodId, normalizedScope, correlationId)
	if err != nil {
		return nil, err
	}

	// The run outlives the HTTP request; carry only identity and correlation
	// into a fresh cancellable context.
	runCtx, cancel := context.WithCancel(context.Background())
	if actorId, ok := utils.GetActorIdFromContext(ctx); ok {
		runCtx = utils.SetActorIdInContext(runCtx, actorId)
	}
	runCtx = utils.SetCorrelationIdInContext(runCtx, correlationId)
	registry.register(session.ID, cancel)

	go func() {
		defer registry.unregister(session.ID)
		defer cancel()
		ProcessReconciliationSession(runCtx, session.ID)
	}()

	return session, nil
}

// ProcessReconciliationSession runs the match engine and rule engine for a
// claimed session and persists both result sets in one transaction. Any
// failure, including cancellation, lands the session in FAILED with a reason
// and releases the claim.
func ProcessReconciliationSession(ctx context.Context, sessionId int) {
	logger := config.GetLogger()
	db := config.GetDB()

	ctx, span := tracer.Start(ctx, "reconciliation.session", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	session, err := models.GetSession(ctx, sessionId)
	if err != nil {
		config.LogError(logger, "reconciliationWorkflow.go", "ProcessReconciliationSession", "Loading session", sessionId, err)
		return
	}

	// Best-effort cross-instance lock. MySQL GET_LOCK below still serializes
	// when Redis is unavailable.
	var lock *redislock.Lock
	if locker := config.GetRedisLock(); locker != nil {
		lockKey := propertyPeriodLockName(session.PropertyId, session.PeriodId)
		lock, err = locker.Obtain(ctx, lockKey, 30*time.Second, nil)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"field":       "ProcessReconciliationSession",
				"session_id":  sessionId,
				"property_id": session.PropertyId,
				"period_id":   session.PeriodId,
			}).Warn("could not obtain redis lock; proceeding with database lock only: " + err.Error())
			lock = nil
		}
	}
	defer func() {
		if lock != nil {
			_ = lock.Release(context.Background())
		}
	}()

	// GET_LOCK is connection-scoped, so the whole run happens inside
	// db.Connection: acquire and release land on the same pinned connection.
	var matches []models.MatchResult
	var ruleResults []models.RuleResult
	err = db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := AcquirePropertyPeriodLock(conn, session.PropertyId, session.PeriodId); err != nil {
			return err
		}
		// Release on a fresh context: a cancelled run must still give the
		// lock back before the connection returns to the pool.
		defer ReleasePropertyPeriodLock(conn.WithContext(context.Background()), session.PropertyId, session.PeriodId)

		if err := models.MarkSessionInProgress(ctx, session.ID); err != nil {
			return err
		}

		documentTypes, _, err := models.ParseDocumentScope(session.DocumentScope)
		if err != nil {
			return err
		}

		matches, err = models.FindMatches(ctx, session.PropertyId, session.PeriodId, documentTypes, models.LoadAccountXrefTable())
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		ruleResults, err = models.EvaluateAllRules(ctx, session.PropertyId, session.PeriodId, matches)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := models.ReplaceMatchResults(tx, session, matches); err != nil {
				return err
			}
			if err := models.ReplaceRuleResults(tx, session.PropertyId, session.PeriodId, ruleResults); err != nil {
				return err
			}
			now := time.Now().UTC()
			summary := summarizeMatches(matches)
			if err := tx.Model(&models.ReconciliationSession{}).
				Where("id = ?", session.ID).
				Updates(map[string]interface{}{
					"status":            models.SessionStatusCompleted,
					"completed_at":      &now,
					"total_compared":    summary.totalCompared,
					"matched_count":     summary.matched,
					"difference_count":  summary.differences,
					"missing_in_source": summary.missingInSource,
					"missing_in_target": summary.missingInTarget,
					"rules_executed":    len(ruleResults),
				}).Error; err != nil {
				return err
			}
			return models.ReleaseSessionClaim(ctx, tx, session.ID)
		})
	})
	if err != nil {
		failSession(ctx, session, err)
		return
	}

	logger.WithFields(logrus.Fields{
		"field":       "ProcessReconciliationSession",
		"session_id":  session.ID,
		"property_id": session.PropertyId,
		"period_id":   session.PeriodId,
		"matches":     len(matches),
		"rules":       len(ruleResults),
	}).Info("reconciliation session completed")

	// New results supersede whatever comparison is cached for this scope.
	_ = config.RemoveRedisKey(models.ComparisonCacheKey(session.PropertyId, session.PeriodId, session.DocumentScope))

	// Refresh the coverage metric now that fresh data has been reconciled.
	// Failure here never affects the completed session.
	if _, err := models.EvaluateDSCR(ctx, session.PropertyId, session.PeriodId); err != nil {
		config.LogError(logger, "reconciliationWorkflow.go", "ProcessReconciliationSession",
			"Refreshing coverage metric", session.ID, err)
	}
}

type matchSummary struct {
	totalCompared   int
	matched         int
	differences     int
	missingInSource int
	missingInTarget int
}

func summarizeMatches(matches []models.MatchResult) matchSummary {
	var s matchSummary
	s.totalCompared = len(matches)
	for i := range matches {
		switch matches[i].Classification {
		case models.ClassificationMissingInSource:
			s.missingInSource++
		case models.ClassificationMissingInTarget:
			s.missingInTarget++
		case models.ClassificationMismatch:
			s.differences++
		default:
			s.matched++
		}
	}
	return s
}

// failSession marks the session FAILED and releases the claim. The fail write
// deliberately uses a fresh context: a cancelled run must still record why it
// stopped.
func failSession(ctx context.Context, session *models.ReconciliationSession, cause error) {
	logger := config.GetLogger()
	db := config.GetDB()
	trace.SpanFromContext(ctx).RecordError(cause)

	reason := cause.Error()
	if errors.Is(cause, context.Canceled) {
		reason = "cancelled by user"
	}

	writeCtx := context.Background()
	if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		writeCtx = utils.SetCorrelationIdInContext(writeCtx, cid)
	}

	now := time.Now().UTC()
	err := db.WithContext(writeCtx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ReconciliationSession{}).
			Where("id = ? AND status IN ?", session.ID,
				[]models.SessionStatus{models.SessionStatusPending, models.SessionStatusInProgress}).
			Updates(map[string]interface{}{
				"status":         models.SessionStatusFailed,
				"failure_reason": reason,
				"completed_at":   &now,
			}).Error; err != nil {
			return err
		}
		return models.ReleaseSessionClaim(writeCtx, tx, session.ID)
	})
	if err != nil {
		config.LogError(logger, "reconciliationWorkflow.go", "failSession", "Marking session failed", session.ID, err)
		return
	}
	config.LogError(logger, "reconciliationWorkflow.go", "ProcessReconciliationSession", "Session failed", session.ID, cause)
}

// CancelSession stops a pending or in-progress session. A run on this
// instance is cancelled through its context; a pending session that never
// started is failed directly.
func CancelSession(ctx context.Context, sessionId int) error {
	session, err := models.GetSession(ctx, sessionId)
	if err != nil {
		return err
	}
	switch session.Status {
	case models.SessionStatusCompleted, models.SessionStatusFailed:
		return ErrSessionNotCancellable
	}

	if registry.cancel(sessionId) {
		return nil
	}

	// Not running here (crashed instance or never started): fail it directly
	// so the claim is released.
	failSession(ctx, session, context.Canceled)
	return nil
}
