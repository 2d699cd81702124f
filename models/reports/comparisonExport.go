package reports

import (
	"context"
	"fmt"
	"io"

	"github.com/proplens/recon_backend/models"
	"github.com/xuri/excelize/v2"
)

// ComparisonRow is one line of the exported comparison sheet.
type ComparisonRow struct {
	SourceDocument string
	TargetDocument string
	SourceAccount  string
	TargetAccount  string
	SourceValue    string
	TargetValue    string
	Difference     string
	DifferencePct  string
	Strategy       string
	Classification string
	Confidence     string
	Resolution     string
}

func comparisonRow(m models.MatchResult) ComparisonRow {
	row := ComparisonRow{
		SourceDocument: string(m.SourceDocumentType),
		TargetDocument: string(m.TargetDocumentType),
		SourceAccount:  m.SourceAccountCode,
		TargetAccount:  m.TargetAccountCode,
		Strategy:       string(m.Strategy),
		Classification: string(m.Classification),
		Resolution:     string(m.ResolutionAction),
	}
	if m.Confidence != nil {
		row.Confidence = m.Confidence.StringFixed(2)
	}
	if m.SourceValue != nil {
		row.SourceValue = m.SourceValue.StringFixed(2)
	}
	if m.TargetValue != nil {
		row.TargetValue = m.TargetValue.StringFixed(2)
	}
	if m.Difference != nil {
		row.Difference = m.Difference.StringFixed(2)
	}
	if m.DifferencePercent != nil {
		row.DifferencePct = m.DifferencePercent.StringFixed(2) + "%"
	}
	return row
}

var comparisonHeadings = []string{
	"SourceDocument", "TargetDocument", "SourceAccount", "TargetAccount",
	"SourceValue", "TargetValue", "Difference", "Difference%",
	"Strategy", "Classification", "Confidence", "Resolution",
}

func (r ComparisonRow) cellValues() []interface{} {
	return []interface{}{
		r.SourceDocument, r.TargetDocument, r.SourceAccount, r.TargetAccount,
		r.SourceValue, r.TargetValue, r.Difference, r.DifferencePct,
		r.Strategy, r.Classification, r.Confidence, r.Resolution,
	}
}

// ExportComparisonExcel writes the latest completed comparison for the
// property/period/scope as an xlsx workbook. Returns the suggested filename.
func ExportComparisonExcel(ctx context.Context, w io.Writer, propertyId int, periodId string, documentScope string) (string, error) {
	session, err := models.LatestCompletedSession(ctx, propertyId, periodId, documentScope)
	if err != nil {
		return "", err
	}
	matches, err := models.GetMatchResultsBySession(ctx, session.ID)
	if err != nil {
		return "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Comparison"
	f.SetSheetName("Sheet1", sheetName)

	col := 'A'
	for _, h := range comparisonHeadings {
		f.SetCellValue(sheetName, string(col)+"1", h)
		col++
	}

	rowNo := 2
	for _, m := range matches {
		col := 'A'
		for _, value := range comparisonRow(m).cellValues() {
			f.SetCellValue(sheetName, string(col)+fmt.Sprint(rowNo), value)
			col++
		}
		rowNo++
	}

	summarySheet := "Summary"
	if _, err := f.NewSheet(summarySheet); err != nil {
		return "", err
	}
	summary := [][2]interface{}{
		{"PropertyId", session.PropertyId},
		{"PeriodId", session.PeriodId},
		{"DocumentScope", session.DocumentScope},
		{"TotalCompared", session.TotalCompared},
		{"MatchedCount", session.MatchedCount},
		{"DifferenceCount", session.DifferenceCount},
		{"MissingInSource", session.MissingInSource},
		{"MissingInTarget", session.MissingInTarget},
		{"RulesExecuted", session.RulesExecuted},
	}
	for i, kv := range summary {
		f.SetCellValue(summarySheet, "A"+fmt.Sprint(i+1), kv[0])
		f.SetCellValue(summarySheet, "B"+fmt.Sprint(i+1), kv[1])
	}

	if err := f.Write(w); err != nil {
		return "", err
	}
	filename := fmt.Sprintf("comparison_%d_%s.xlsx", propertyId, periodId)
	return filename, nil
}
