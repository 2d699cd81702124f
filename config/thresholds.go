package config

import (
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Tunable thresholds for matching and metric monitoring.
//
// Set via env:
// - MATCH_FUZZY_THRESHOLD (default 0.85)
// - MATCH_VALUE_TOLERANCE_PERCENT (default 1.0)
// - DSCR_WARNING_THRESHOLD (default 1.25)
// - DSCR_CRITICAL_THRESHOLD (default 1.0)

func decimalFromEnv(key string, def string) decimal.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	d, _ := decimal.NewFromString(def)
	return d
}

// FuzzyMatchThreshold is the minimum string similarity (0..1) for the
// fuzzy match stage to claim a pair.
func FuzzyMatchThreshold() decimal.Decimal {
	return decimalFromEnv("MATCH_FUZZY_THRESHOLD", "0.85")
}

// MatchValueTolerancePercent is the value difference (in percent) within
// which a matched pair is classified WITHIN_TOLERANCE instead of MISMATCH.
func MatchValueTolerancePercent() decimal.Decimal {
	return decimalFromEnv("MATCH_VALUE_TOLERANCE_PERCENT", "1.0")
}

func DSCRWarningThreshold() decimal.Decimal {
	return decimalFromEnv("DSCR_WARNING_THRESHOLD", "1.25")
}

func DSCRCriticalThreshold() decimal.Decimal {
	return decimalFromEnv("DSCR_CRITICAL_THRESHOLD", "1.0")
}

// RuleWorkerCount bounds concurrent rule evaluation inside one session.
//
// Set via env:
// - RULE_WORKER_COUNT (default 8)
func RuleWorkerCount() int {
	return intFromEnv("RULE_WORKER_COUNT", 8)
}

// MetricSweepInterval is how often the background sweeper re-evaluates
// monitored metrics.
//
// Set via env:
// - METRIC_SWEEP_INTERVAL_SECONDS (default 300)
func MetricSweepInterval() time.Duration {
	return time.Duration(intFromEnv("METRIC_SWEEP_INTERVAL_SECONDS", 300)) * time.Second
}
