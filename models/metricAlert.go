package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/proplens/recon_backend/config"
	"github.com/proplens/recon_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AlertSeverity string

const (
	AlertSeverityMedium   AlertSeverity = "MEDIUM"
	AlertSeverityHigh     AlertSeverity = "HIGH"
	AlertSeverityCritical AlertSeverity = "CRITICAL"
)

type AlertStatus string

const (
	AlertStatusOpen         AlertStatus = "OPEN"
	AlertStatusAcknowledged AlertStatus = "ACKNOWLEDGED"
)

const MetricDSCR = "DSCR"

// MetricAlert is owned by the (property, period, metric) triple. Acknowledged
// alerts reopen when the metric breaches again on a later recompute.
type MetricAlert struct {
	ID             int             `gorm:"primary_key" json:"id"`
	PropertyId     int             `gorm:"uniqueIndex:uq_metric_alert;not null" json:"property_id"`
	PeriodId       string          `gorm:"uniqueIndex:uq_metric_alert;size:7;not null" json:"period_id"`
	Metric         string          `gorm:"uniqueIndex:uq_metric_alert;size:32;not null" json:"metric"`
	Severity       AlertSeverity   `gorm:"size:16;not null;index" json:"severity"`
	CurrentValue   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"current_value"`
	Threshold      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"threshold"`
	Status         AlertStatus     `gorm:"size:16;not null;default:'OPEN';index" json:"status"`
	Context        string          `gorm:"type:text" json:"context"`
	AcknowledgedBy string          `gorm:"size:64" json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time      `json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type MetricOutcome string

const (
	MetricOutcomeOK           MetricOutcome = "OK"
	MetricOutcomeAlertCreated MetricOutcome = "ALERT_CREATED"
	MetricOutcomeAlertUpdated MetricOutcome = "ALERT_UPDATED"
	MetricOutcomeSkipped      MetricOutcome = "SKIPPED"
	MetricOutcomeError        MetricOutcome = "ERROR"
)

// MetricEvaluationLog records every evaluateMetric attempt, including gated
// skips. An attempt is never silently dropped; this table is the audit trail
// proving it.
type MetricEvaluationLog struct {
	ID             int              `gorm:"primary_key" json:"id"`
	PropertyId     int              `gorm:"index:idx_metric_log;not null" json:"property_id"`
	PeriodId       string           `gorm:"index:idx_metric_log;size:7;not null" json:"period_id"`
	Metric         string           `gorm:"size:32;not null" json:"metric"`
	Value          *decimal.Decimal `gorm:"type:decimal(20,4)" json:"value,omitempty"`
	BelowThreshold bool             `json:"below_threshold"`
	GatePassed     bool             `json:"gate_passed"`
	Outcome        MetricOutcome    `gorm:"size:16;not null" json:"outcome"`
	SkipReason     string           `gorm:"size:255" json:"skip_reason,omitempty"`
	CorrelationId  string           `gorm:"size:64" json:"correlation_id"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

// Presence checks behind the gate; tests swap these for fakes.
var (
	hasLineItemsFn       = HasLineItems
	hasCompletedUploadFn = HasCompletedUpload
)

// DataPresenceGate holds only when at least one corroborating source exists
// for the property/period: income-statement data, mortgage-statement data, or
// a completed document upload. It exists to stop alerts being attributed to
// property/periods with no uploaded source data.
func DataPresenceGate(ctx context.Context, propertyId int, periodId string) (bool, string, error) {
	hasIncome, err := hasLineItemsFn(ctx, propertyId, periodId, DocumentTypeIncomeStatement)
	if err != nil {
		return false, "", err
	}
	if hasIncome {
		return true, "", nil
	}
	hasMortgage, err := hasLineItemsFn(ctx, propertyId, periodId, DocumentTypeMortgageStatement)
	if err != nil {
		return false, "", err
	}
	if hasMortgage {
		return true, "", nil
	}
	hasUpload, err := hasCompletedUploadFn(ctx, propertyId, periodId)
	if err != nil {
		return false, "", err
	}
	if hasUpload {
		return true, "", nil
	}
	return false, "no income statement, mortgage statement, or completed upload for this property/period", nil
}

// MetricEvaluation is the caller-visible outcome of one monitor run.
type MetricEvaluation struct {
	PropertyId     int              `json:"property_id"`
	PeriodId       string           `json:"period_id"`
	Metric         string           `json:"metric"`
	Value          *decimal.Decimal `json:"value,omitempty"`
	BelowThreshold bool             `json:"below_threshold"`
	AlertCreated   bool             `json:"alert_created"`
	AlertUpdated   bool             `json:"alert_updated"`
	SkippedReason  string           `json:"skipped_reason,omitempty"`
}

// computeDSCR derives the coverage ratio from current line items. Prefers the
// stated NET_OPERATING_INCOME / TOTAL_DEBT_SERVICE accounts, deriving them
// from components when absent.
func computeDSCR(income, mortgage []LineItem) (decimal.Decimal, error) {
	noi, ok := lineItemValue(income, "NET_OPERATING_INCOME")
	if !ok {
		revenue, okRev := lineItemValue(income, "TOTAL_REVENUE")
		opex, okOpex := lineItemValue(income, "OPERATING_EXPENSES")
		if !okRev || !okOpex {
			return decimal.Zero, errors.New("operating income unavailable")
		}
		noi = revenue.Sub(opex)
	}

	debtService, ok := lineItemValue(mortgage, "TOTAL_DEBT_SERVICE")
	if !ok {
		principal, okP := lineItemValue(mortgage, "PRINCIPAL_PAID")
		interest, okI := lineItemValue(mortgage, "INTEREST_PAID")
		if !okP || !okI {
			return decimal.Zero, errors.New("debt service unavailable")
		}
		debtService = principal.Add(interest)
	}
	if debtService.IsZero() {
		return decimal.Zero, errors.New("debt service is zero")
	}
	return noi.Div(debtService).Round(4), nil
}

func dscrSeverity(value, warning, critical decimal.Decimal) AlertSeverity {
	if value.LessThan(critical) {
		return AlertSeverityCritical
	}
	// Lower half of the warning-to-critical band is HIGH, upper half MEDIUM.
	midpoint := warning.Add(critical).Div(decimal.NewFromInt(2))
	if value.LessThan(midpoint) {
		return AlertSeverityHigh
	}
	return AlertSeverityMedium
}

// EvaluateDSCR computes the coverage ratio and, on a breach, applies the
// data-presence gate before creating or updating an alert. Skips are recorded
// with an explicit reason.
func EvaluateDSCR(ctx context.Context, propertyId int, periodId string) (*MetricEvaluation, error) {
	if propertyId <= 0 {
		return nil, utils.NewValidationError("property_id", "must be positive")
	}
	if !utils.IsValidPeriodId(periodId) {
		return nil, utils.NewValidationError("period_id", "must be YYYY-MM")
	}

	db := config.GetDB()
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	warning := config.DSCRWarningThreshold()
	critical := config.DSCRCriticalThreshold()

	eval := &MetricEvaluation{PropertyId: propertyId, PeriodId: periodId, Metric: MetricDSCR}
	logRow := MetricEvaluationLog{
		PropertyId:    propertyId,
		PeriodId:      periodId,
		Metric:        MetricDSCR,
		CorrelationId: cid,
	}

	items, err := GetLineItems(ctx, propertyId, periodId,
		[]DocumentType{DocumentTypeIncomeStatement, DocumentTypeMortgageStatement})
	if err != nil {
		return nil, err
	}
	grouped := GroupLineItemsByDocumentType(items)

	value, computeErr := computeDSCR(grouped[DocumentTypeIncomeStatement], grouped[DocumentTypeMortgageStatement])
	if computeErr != nil {
		eval.SkippedReason = computeErr.Error()
		logRow.Outcome = MetricOutcomeSkipped
		logRow.SkipReason = computeErr.Error()
		if err := db.WithContext(ctx).Create(&logRow).Error; err != nil {
			return nil, err
		}
		return eval, nil
	}

	v := value
	eval.Value = &v
	logRow.Value = &v
	eval.BelowThreshold = value.LessThan(warning)
	logRow.BelowThreshold = eval.BelowThreshold

	if !eval.BelowThreshold {
		logRow.Outcome = MetricOutcomeOK
		logRow.GatePassed = true
		if err := db.WithContext(ctx).Create(&logRow).Error; err != nil {
			return nil, err
		}
		return eval, nil
	}

	gateOK, gateReason, err := DataPresenceGate(ctx, propertyId, periodId)
	if err != nil {
		return nil, err
	}
	logRow.GatePassed = gateOK
	if !gateOK {
		eval.SkippedReason = gateReason
		logRow.Outcome = MetricOutcomeSkipped
		logRow.SkipReason = gateReason
		if err := db.WithContext(ctx).Create(&logRow).Error; err != nil {
			return nil, err
		}
		return eval, nil
	}

	severity := dscrSeverity(value, warning, critical)
	created, err := upsertAlert(ctx, propertyId, periodId, MetricDSCR, severity, value, warning)
	if err != nil {
		return nil, err
	}
	eval.AlertCreated = created
	eval.AlertUpdated = !created
	if created {
		logRow.Outcome = MetricOutcomeAlertCreated
	} else {
		logRow.Outcome = MetricOutcomeAlertUpdated
	}
	if err := db.WithContext(ctx).Create(&logRow).Error; err != nil {
		return nil, err
	}
	return eval, nil
}

// upsertAlert creates the alert for the triple or refreshes the existing one.
// An acknowledged alert reopens on a fresh breach for the same period.
func upsertAlert(ctx context.Context, propertyId int, periodId string, metric string, severity AlertSeverity, value, threshold decimal.Decimal) (created bool, err error) {
	db := config.GetDB()
	contextText := fmt.Sprintf(
		"%s is %s against a threshold of %s. Debt service coverage at this level jeopardizes loan covenants; review operating income and debt service line items for %s.",
		metric, value.String(), threshold.String(), periodId)

	var existing MetricAlert
	err = db.WithContext(ctx).
		Where("property_id = ? AND period_id = ? AND metric = ?", propertyId, periodId, metric).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		alert := MetricAlert{
			PropertyId:   propertyId,
			PeriodId:     periodId,
			Metric:       metric,
			Severity:     severity,
			CurrentValue: value,
			Threshold:    threshold,
			Status:       AlertStatusOpen,
			Context:      contextText,
		}
		if err := db.WithContext(ctx).Create(&alert).Error; err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}

	updates := map[string]interface{}{
		"severity":      severity,
		"current_value": value,
		"threshold":     threshold,
		"context":       contextText,
	}
	if existing.Status == AlertStatusAcknowledged {
		// Breach after acknowledgment: reopen.
		updates["status"] = AlertStatusOpen
		updates["acknowledged_by"] = ""
		updates["acknowledged_at"] = nil
	}
	err = db.WithContext(ctx).Model(&MetricAlert{}).
		Where("id = ?", existing.ID).
		Updates(updates).Error
	return false, err
}

// ListAlerts returns alerts that still satisfy the data-presence gate,
// filtered at read time so legacy rows that predate the gate disappear from
// listings without being deleted.
func ListAlerts(ctx context.Context, severity AlertSeverity) ([]MetricAlert, error) {
	db := config.GetDB()
	q := db.WithContext(ctx).Model(&MetricAlert{}).
		Where(`(
			EXISTS (SELECT 1 FROM line_items li
				WHERE li.property_id = metric_alerts.property_id
				  AND li.period_id = metric_alerts.period_id
				  AND li.document_type IN (?, ?))
			OR EXISTS (SELECT 1 FROM document_uploads du
				WHERE du.property_id = metric_alerts.property_id
				  AND du.period_id = metric_alerts.period_id
				  AND du.status = ?)
		)`, DocumentTypeIncomeStatement, DocumentTypeMortgageStatement, UploadStatusCompleted)
	if severity != "" {
		q = q.Where("severity = ?", severity)
	}
	var alerts []MetricAlert
	if err := q.Order("created_at DESC").Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

// AcknowledgeAlert transitions OPEN -> ACKNOWLEDGED recording the actor.
// Acknowledging an already-acknowledged alert succeeds as a no-op.
func AcknowledgeAlert(ctx context.Context, alertId int, actorId string) error {
	if actorId == "" {
		return utils.NewValidationError("actor_id", "is required")
	}
	db := config.GetDB()
	var alert MetricAlert
	err := db.WithContext(ctx).First(&alert, alertId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorRecordNotFound
	}
	if err != nil {
		return err
	}
	if alert.Status == AlertStatusAcknowledged {
		return nil
	}
	now := time.Now().UTC()
	return db.WithContext(ctx).Model(&MetricAlert{}).
		Where("id = ? AND status = ?", alertId, AlertStatusOpen).
		Updates(map[string]interface{}{
			"status":          AlertStatusAcknowledged,
			"acknowledged_by": actorId,
			"acknowledged_at": &now,
		}).Error
}
