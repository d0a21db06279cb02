package reports

import (
	"fmt"
	"net/http"

	"bitbucket.org/mmdatafocus/betledger_backend/models"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet       = "Summary"
	discrepanciesSheet = "Discrepancies"
)

// BuildReconciliationWorkbook renders one reconciliation report as a two-sheet
// workbook: run totals on Summary, one row per discrepancy on Discrepancies.
func BuildReconciliationWorkbook(report *models.ReconciliationReport) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(discrepanciesSheet); err != nil {
		return nil, err
	}

	summaryRows := [][2]interface{}{
		{"ReportId", report.ID},
		{"Status", string(report.Status)},
		{"Kind", string(report.Kind)},
		{"StartedAt", report.StartedAt.Format("2006-01-02 15:04:05")},
		{"ToleranceThreshold", report.ToleranceThreshold.String()},
		{"TotalUsersChecked", report.TotalUsersChecked},
		{"UsersWithDiscrepancies", report.UsersWithDiscrepancies},
		{"UsersWithinTolerance", report.UsersWithinTolerance},
		{"TotalInconsistencies", report.TotalInconsistencies},
		{"TotalDiscrepancyAmount", report.TotalDiscrepancyAmount.String()},
		{"AverageDiscrepancy", report.AverageDiscrepancy.String()},
		{"MaxDiscrepancy", report.MaxDiscrepancy.String()},
		{"MinDiscrepancy", report.MinDiscrepancy.String()},
	}
	for i, row := range summaryRows {
		f.SetCellValue(summarySheet, "A"+fmt.Sprint(i+1), row[0])
		f.SetCellValue(summarySheet, "B"+fmt.Sprint(i+1), row[1])
	}

	// Add headers
	headers := []string{"UserId", "UserEmail", "OffchainBalance", "OnchainBalance",
		"Difference", "Kind", "Severity", "Status", "DetectedAt", "ResolutionNotes"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		f.SetCellValue(discrepanciesSheet, cell, h)
	}

	// Add data
	for i, d := range report.BalanceDiscrepancies {
		row := i + 2
		f.SetCellValue(discrepanciesSheet, "A"+fmt.Sprint(row), d.UserId)
		f.SetCellValue(discrepanciesSheet, "B"+fmt.Sprint(row), d.UserEmail)
		f.SetCellValue(discrepanciesSheet, "C"+fmt.Sprint(row), d.OffchainBalance.String())
		f.SetCellValue(discrepanciesSheet, "D"+fmt.Sprint(row), d.OnchainBalance.String())
		f.SetCellValue(discrepanciesSheet, "E"+fmt.Sprint(row), d.Difference.String())
		f.SetCellValue(discrepanciesSheet, "F"+fmt.Sprint(row), string(d.Kind))
		f.SetCellValue(discrepanciesSheet, "G"+fmt.Sprint(row), string(d.Severity))
		f.SetCellValue(discrepanciesSheet, "H"+fmt.Sprint(row), string(d.Status))
		f.SetCellValue(discrepanciesSheet, "I"+fmt.Sprint(row), d.DetectedAt.Format("2006-01-02 15:04:05"))
		f.SetCellValue(discrepanciesSheet, "J"+fmt.Sprint(row), d.ResolutionNotes)
	}

	return f, nil
}

// WriteReconciliationExcel streams the workbook as an xlsx download.
func WriteReconciliationExcel(w http.ResponseWriter, report *models.ReconciliationReport) error {
	f, err := BuildReconciliationWorkbook(report)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=reconciliation-%s.xlsx", report.ID))
	return f.Write(w)
}
