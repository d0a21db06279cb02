package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/betledger_backend/utils"
	"gorm.io/gorm"
)

// ReportFilter narrows report listings. Zero values mean "no filter".
type ReportFilter struct {
	Status string
	Kind   string
	Since  *time.Time
	Until  *time.Time
	Page   int
	Limit  int
}

func (f ReportFilter) normalized() ReportFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 200 {
		f.Limit = 20
	}
	return f
}

// PaginatedReconciliationReports is a page of reconciliation reports plus totals.
type PaginatedReconciliationReports struct {
	Data       []ReconciliationReport `json:"data"`
	Total      int64                  `json:"total"`
	Page       int                    `json:"page"`
	Limit      int                    `json:"limit"`
	TotalPages int                    `json:"total_pages"`
}

type PaginatedValidationReports struct {
	Data       []TransactionValidationReport `json:"data"`
	Total      int64                         `json:"total"`
	Page       int                           `json:"page"`
	Limit      int                           `json:"limit"`
	TotalPages int                           `json:"total_pages"`
}

// ReconciliationSummary is the operator dashboard view of recent runs.
type ReconciliationSummary struct {
	LatestReport              *ReconciliationReport `json:"latest_report"`
	TotalReportsToday         int64                 `json:"total_reports_today"`
	TotalInconsistenciesToday int64                 `json:"total_inconsistencies_today"`
	CriticalIssuesCount       int64                 `json:"critical_issues_count"`
	LastRunAt                 *time.Time            `json:"last_run_at"`
}

// applyReportFilter translates a ReportFilter into WHERE clauses. The kind
// column differs per table: reconciliation reports store it as kind,
// validation reports as transaction_kind.
func applyReportFilter(q *gorm.DB, f ReportFilter, kindColumn string) *gorm.DB {
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Kind != "" {
		q = q.Where(kindColumn+" = ?", f.Kind)
	}
	if f.Since != nil {
		q = q.Where("created_at >= ?", *f.Since)
	}
	if f.Until != nil {
		q = q.Where("created_at < ?", *f.Until)
	}
	return q
}

func GetReconciliationReport(ctx context.Context, db *gorm.DB, id string) (*ReconciliationReport, error) {
	var report ReconciliationReport
	if err := db.WithContext(ctx).Where("id = ?", id).First(&report).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &report, nil
}

func ListReconciliationReports(ctx context.Context, db *gorm.DB, filter ReportFilter) (*PaginatedReconciliationReports, error) {
	filter = filter.normalized()

	var total int64
	base := applyReportFilter(db.WithContext(ctx).Model(&ReconciliationReport{}), filter, "kind")
	if err := base.Count(&total).Error; err != nil {
		return nil, err
	}

	var reports []ReconciliationReport
	if err := applyReportFilter(db.WithContext(ctx), filter, "kind").
		Order("created_at DESC").
		Offset((filter.Page - 1) * filter.Limit).
		Limit(filter.Limit).
		Find(&reports).Error; err != nil {
		return nil, err
	}

	totalPages := int((total + int64(filter.Limit) - 1) / int64(filter.Limit))
	return &PaginatedReconciliationReports{
		Data:       reports,
		Total:      total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: totalPages,
	}, nil
}

func GetValidationReport(ctx context.Context, db *gorm.DB, id string) (*TransactionValidationReport, error) {
	var report TransactionValidationReport
	if err := db.WithContext(ctx).Where("id = ?", id).First(&report).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &report, nil
}

func ListValidationReports(ctx context.Context, db *gorm.DB, filter ReportFilter) (*PaginatedValidationReports, error) {
	filter = filter.normalized()

	var total int64
	base := applyReportFilter(db.WithContext(ctx).Model(&TransactionValidationReport{}), filter, "transaction_kind")
	if err := base.Count(&total).Error; err != nil {
		return nil, err
	}

	var reports []TransactionValidationReport
	if err := applyReportFilter(db.WithContext(ctx), filter, "transaction_kind").
		Order("created_at DESC").
		Offset((filter.Page - 1) * filter.Limit).
		Limit(filter.Limit).
		Find(&reports).Error; err != nil {
		return nil, err
	}

	totalPages := int((total + int64(filter.Limit) - 1) / int64(filter.Limit))
	return &PaginatedValidationReports{
		Data:       reports,
		Total:      total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: totalPages,
	}, nil
}

// ListStuckReconciliationReports finds runs that never reached a terminal
// status: still running and started more than olderThan ago. A crashed engine
// leaves exactly this trace; an operator (not this code) decides what to do.
func ListStuckReconciliationReports(ctx context.Context, db *gorm.DB, olderThan time.Duration) ([]ReconciliationReport, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	var reports []ReconciliationReport
	if err := db.WithContext(ctx).
		Where("status = ? AND started_at < ?", ReportStatusRunning, cutoff).
		Order("started_at ASC").
		Find(&reports).Error; err != nil {
		return nil, err
	}
	return reports, nil
}

func ListStuckValidationReports(ctx context.Context, db *gorm.DB, olderThan time.Duration) ([]TransactionValidationReport, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	var reports []TransactionValidationReport
	if err := db.WithContext(ctx).
		Where("status = ? AND started_at < ?", ValidationStatusPending, cutoff).
		Order("started_at ASC").
		Find(&reports).Error; err != nil {
		return nil, err
	}
	return reports, nil
}

func GetReconciliationSummary(ctx context.Context, db *gorm.DB) (*ReconciliationSummary, error) {
	summary := &ReconciliationSummary{}

	var latest ReconciliationReport
	err := db.WithContext(ctx).Order("created_at DESC").First(&latest).Error
	if err == nil {
		summary.LatestReport = &latest
		summary.LastRunAt = &latest.StartedAt
	} else if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	startOfDay := time.Now().UTC().Truncate(24 * time.Hour)
	if err := db.WithContext(ctx).Model(&ReconciliationReport{}).
		Where("created_at >= ?", startOfDay).
		Count(&summary.TotalReportsToday).Error; err != nil {
		return nil, err
	}

	type sums struct {
		Inconsistencies int64
		Critical        int64
	}
	var s sums
	if err := db.WithContext(ctx).Model(&ReconciliationReport{}).
		Select("COALESCE(SUM(total_inconsistencies),0) AS inconsistencies, COALESCE(SUM(onchain_discrepancy_count),0) AS critical").
		Where("created_at >= ?", startOfDay).
		Scan(&s).Error; err != nil {
		return nil, err
	}
	summary.TotalInconsistenciesToday = s.Inconsistencies
	summary.CriticalIssuesCount = s.Critical

	return summary, nil
}
