// seed-demo loads a small, internally-consistent set of financial line items
// for one property/period across all five document types, plus a completed
// upload record, so a reconciliation run has real data to chew on.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-demo -property-id 1 -period 2026-07
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/proplens/recon_backend/config"
	"github.com/proplens/recon_backend/models"
	"github.com/proplens/recon_backend/utils"
	"github.com/shopspring/decimal"
)

type seedItem struct {
	doc     models.DocumentType
	code    string
	name    string
	section string
	value   string
}

func seedItems() []seedItem {
	return []seedItem{
		{models.DocumentTypeBalanceSheet, "CASH_AND_EQUIVALENTS", "Cash and Equivalents", "ASSETS", "125000.00"},
		{models.DocumentTypeBalanceSheet, "ACCOUNTS_RECEIVABLE", "Accounts Receivable", "ASSETS", "18000.00"},
		{models.DocumentTypeBalanceSheet, "ACCUMULATED_DEPRECIATION", "Accumulated Depreciation", "ASSETS", "-64000.00"},
		{models.DocumentTypeBalanceSheet, "MORTGAGE_PAYABLE", "Mortgage Payable", "LIABILITIES", "1480000.00"},

		{models.DocumentTypeIncomeStatement, "RENTAL_INCOME", "Rental Income", "REVENUE", "92000.00"},
		{models.DocumentTypeIncomeStatement, "OTHER_INCOME", "Other Income", "REVENUE", "3500.00"},
		{models.DocumentTypeIncomeStatement, "OPERATING_EXPENSES", "Operating Expenses", "EXPENSES", "41000.00"},
		{models.DocumentTypeIncomeStatement, "INTEREST_EXPENSE", "Interest Expense", "EXPENSES", "28000.00"},
		{models.DocumentTypeIncomeStatement, "DEPRECIATION_EXPENSE", "Depreciation Expense", "EXPENSES", "8000.00"},
		{models.DocumentTypeIncomeStatement, "NET_INCOME", "Net Income", "SUMMARY", "18500.00"},
		{models.DocumentTypeIncomeStatement, "NET_OPERATING_INCOME", "Net Operating Income", "SUMMARY", "54500.00"},
		{models.DocumentTypeIncomeStatement, "TOTAL_REVENUE", "Total Revenue", "SUMMARY", "95500.00"},

		{models.DocumentTypeCashFlow, "NET_INCOME", "Net Income", "OPERATING", "18500.00"},
		{models.DocumentTypeCashFlow, "RENT_COLLECTED", "Rent Collected", "OPERATING", "90500.00"},
		{models.DocumentTypeCashFlow, "MORTGAGE_PRINCIPAL", "Mortgage Principal", "FINANCING", "12000.00"},
		{models.DocumentTypeCashFlow, "MORTGAGE_INTEREST", "Mortgage Interest", "FINANCING", "28000.00"},
		{models.DocumentTypeCashFlow, "CASH_ENDING_BALANCE", "Cash Ending Balance", "SUMMARY", "125000.00"},

		{models.DocumentTypeRentRoll, "UNIT_101", "Unit 101 Rent", "UNITS", "2300.00"},
		{models.DocumentTypeRentRoll, "UNIT_102", "Unit 102 Rent", "UNITS", "2300.00"},
		{models.DocumentTypeRentRoll, "UNIT_201", "Unit 201 Rent", "UNITS", "2450.00"},
		{models.DocumentTypeRentRoll, "SCHEDULED_RENT_TOTAL", "Scheduled Rent Total", "SUMMARY", "92000.00"},
		{models.DocumentTypeRentRoll, "OCCUPIED_UNITS_RENT", "Occupied Units Rent", "SUMMARY", "90500.00"},

		{models.DocumentTypeMortgageStatement, "OUTSTANDING_PRINCIPAL", "Outstanding Principal", "BALANCE", "1480000.00"},
		{models.DocumentTypeMortgageStatement, "PRINCIPAL_PAID", "Principal Paid", "PAYMENT", "12000.00"},
		{models.DocumentTypeMortgageStatement, "INTEREST_PAID", "Interest Paid", "PAYMENT", "28000.00"},
		{models.DocumentTypeMortgageStatement, "TOTAL_DEBT_SERVICE", "Total Debt Service", "PAYMENT", "40000.00"},
	}
}

func main() {
	propertyId := flag.Int("property-id", 1, "property to seed")
	period := flag.String("period", "", "Required: period (YYYY-MM)")
	clean := flag.Bool("clean", false, "delete existing line items for the property/period first")
	flag.Parse()

	if !utils.IsValidPeriodId(*period) {
		fmt.Fprintln(os.Stderr, "--period is required and must be YYYY-MM")
		os.Exit(1)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	if *clean {
		if err := db.WithContext(ctx).
			Where("property_id = ? AND period_id = ?", *propertyId, *period).
			Delete(&models.LineItem{}).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to clean existing line items: %v\n", err)
			os.Exit(1)
		}
	}

	for _, s := range seedItems() {
		value, err := decimal.NewFromString(s.value)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad seed value %q: %v\n", s.value, err)
			os.Exit(1)
		}
		item := models.LineItem{
			PropertyId:   *propertyId,
			PeriodId:     *period,
			DocumentType: s.doc,
			AccountCode:  s.code,
			AccountName:  s.name,
			Section:      s.section,
			Value:        value,
		}
		if err := db.WithContext(ctx).Create(&item).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to insert %s/%s: %v\n", s.doc, s.code, err)
			os.Exit(1)
		}
	}

	upload := models.DocumentUpload{
		PropertyId:   *propertyId,
		PeriodId:     *period,
		DocumentType: models.DocumentTypeIncomeStatement,
		FileName:     fmt.Sprintf("income_statement_%s.pdf", *period),
		Status:       models.UploadStatusCompleted,
	}
	if err := db.WithContext(ctx).Create(&upload).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to insert upload record: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("seeded %d line items for property %d period %s\n", len(seedItems()), *propertyId, *period)
}
