package models

import (
	"strings"
	"testing"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newDryRunDB opens a gorm session that only builds SQL. The DSN is parsed
// but never dialed.
func newDryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "test:test@tcp(127.0.0.1:3306)/betledger?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("opening dry-run session: %v", err)
	}
	return db
}

func TestReportFilter_ValidationReportsFilterOnTransactionKind(t *testing.T) {
	db := newDryRunDB(t)
	filter := ReportFilter{Kind: "bet_settlement", Status: "failed"}

	var reports []TransactionValidationReport
	stmt := applyReportFilter(db.Model(&TransactionValidationReport{}), filter, "transaction_kind").
		Find(&reports).Statement
	sql := stmt.SQL.String()

	if !strings.Contains(sql, "transaction_kind = ?") {
		t.Fatalf("kind filter missing transaction_kind column: %s", sql)
	}
	if strings.Contains(sql, " kind = ?") {
		t.Fatalf("validation reports have no kind column: %s", sql)
	}
	if !strings.Contains(sql, "status = ?") {
		t.Fatalf("status filter missing: %s", sql)
	}
}

func TestReportFilter_ReconciliationReportsFilterOnKind(t *testing.T) {
	db := newDryRunDB(t)
	filter := ReportFilter{Kind: "scheduled"}

	var reports []ReconciliationReport
	stmt := applyReportFilter(db.Model(&ReconciliationReport{}), filter, "kind").
		Find(&reports).Statement
	sql := stmt.SQL.String()

	if !strings.Contains(sql, " kind = ?") {
		t.Fatalf("kind filter missing: %s", sql)
	}
	if strings.Contains(sql, "transaction_kind") {
		t.Fatalf("reconciliation reports have no transaction_kind column: %s", sql)
	}
}

func TestReportFilter_ZeroValuesAddNoClauses(t *testing.T) {
	db := newDryRunDB(t)

	var reports []ReconciliationReport
	stmt := applyReportFilter(db.Model(&ReconciliationReport{}), ReportFilter{}, "kind").
		Find(&reports).Statement
	sql := stmt.SQL.String()

	if strings.Contains(sql, "WHERE") {
		t.Fatalf("empty filter must not add clauses: %s", sql)
	}
}

func TestReportFilter_Normalized(t *testing.T) {
	f := ReportFilter{Page: 0, Limit: 0}.normalized()
	if f.Page != 1 || f.Limit != 20 {
		t.Fatalf("wrong defaults: page=%d limit=%d", f.Page, f.Limit)
	}

	f = ReportFilter{Page: 3, Limit: 500}.normalized()
	if f.Page != 3 || f.Limit != 20 {
		t.Fatalf("oversized limit not clamped: page=%d limit=%d", f.Page, f.Limit)
	}
}
