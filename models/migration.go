package models

import (
	"log"

	"github.com/proplens/recon_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&LineItem{}, &DocumentUpload{},
		&ReconciliationSession{}, &SessionClaim{},
		&MatchResult{},
		&RuleResult{},
		&MetricAlert{}, &MetricEvaluationLog{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
