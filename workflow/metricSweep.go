package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/proplens/recon_backend/config"
	"github.com/proplens/recon_backend/models"
	"github.com/proplens/recon_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MetricSweeper periodically re-evaluates monitored metrics for every
// property/period that has line items, so alerts reflect data loaded outside
// a reconciliation run.
type MetricSweeper struct {
	DB        *gorm.DB
	Logger    *logrus.Logger
	SweeperID string

	Interval time.Duration
}

func NewMetricSweeper(db *gorm.DB, logger *logrus.Logger) *MetricSweeper {
	return &MetricSweeper{
		DB:        db,
		Logger:    logger,
		SweeperID: uuid.NewString(),
		Interval:  config.MetricSweepInterval(),
	}
}

func (s *MetricSweeper) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.sweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.Interval):
		}
	}
}

type sweepTarget struct {
	PropertyId int
	PeriodId   string
}

func (s *MetricSweeper) sweepOnce(ctx context.Context) {
	db := s.DB
	if db == nil {
		return
	}

	sweepCtx := utils.SetCorrelationIdInContext(ctx, "sweep-"+s.SweeperID)

	var targets []sweepTarget
	err := db.WithContext(sweepCtx).Model(&models.LineItem{}).
		Distinct("property_id", "period_id").
		Order("property_id, period_id").
		Find(&targets).Error
	if err != nil {
		config.LogError(s.Logger, "metricSweep.go", "sweepOnce", "Listing sweep targets", s.SweeperID, err)
		return
	}

	for _, t := range targets {
		if ctx.Err() != nil {
			return
		}
		if _, err := models.EvaluateDSCR(sweepCtx, t.PropertyId, t.PeriodId); err != nil {
			config.LogError(s.Logger, "metricSweep.go", "sweepOnce", "Evaluating DSCR", t, err)
		}
	}
}
