// alert-gate-audit reports metric alerts whose property/period no longer
// passes the data-presence gate. Those rows are hidden from API listings but
// stay in the table; this tool makes them visible for cleanup decisions.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/proplens/recon_backend/config"
	"github.com/proplens/recon_backend/models"
)

func main() {
	propertyId := flag.Int("property-id", 0, "Optional: restrict to one property")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	q := db.WithContext(ctx).Model(&models.MetricAlert{}).Order("property_id, period_id")
	if *propertyId > 0 {
		q = q.Where("property_id = ?", *propertyId)
	}
	var alerts []models.MetricAlert
	if err := q.Find(&alerts).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to list alerts: %v\n", err)
		os.Exit(1)
	}

	var hidden int
	for _, a := range alerts {
		ok, reason, err := models.DataPresenceGate(ctx, a.PropertyId, a.PeriodId)
		if err != nil {
			fmt.Fprintf(os.Stderr, "gate check failed for alert %d: %v\n", a.ID, err)
			os.Exit(1)
		}
		if ok {
			continue
		}
		hidden++
		fmt.Printf("alert %d (property %d, period %s, metric %s, status %s): %s\n",
			a.ID, a.PropertyId, a.PeriodId, a.Metric, a.Status, reason)
	}
	fmt.Printf("%d of %d alerts are hidden by the data-presence gate\n", hidden, len(alerts))
}
