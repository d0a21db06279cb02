package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/betledger_backend/config"
	"bitbucket.org/mmdatafocus/betledger_backend/models"
	"bitbucket.org/mmdatafocus/betledger_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const autoCorrectionNote = "Auto-corrected rounding difference"

// onchainSeverityCutoff: a divergence above one whole unit points at the
// on-chain side having missed or double-applied a settlement, not at scale
// drift.
var onchainSeverityCutoff = decimal.NewFromInt(1)

// ReconciliationEngine compares the relational ledger against the on-chain
// balance authority for the whole user base. Stateless between runs; every
// dependency arrives through the struct, nothing is read from globals.
//
// Runs for the same report kind must not overlap (auto-correction of the same
// discrepancy could be double-applied); exclusion is the caller's job, see
// WithReconciliationLock.
type ReconciliationEngine struct {
	Store    ReconciliationReportStore
	Source   BalanceSource
	Notifier Notifier
	Logger   *logrus.Logger
	// Ledger is optional; when set and enabled in config, the run also sweeps
	// the relational ledger for internal corruption.
	Ledger LedgerConsistencyChecker
}

// Run executes one reconciliation pass and returns the persisted report. The
// returned report's Status field is authoritative: a non-nil error always
// pairs with a failed report (or no report, if even creating it failed).
func (e *ReconciliationEngine) Run(ctx context.Context, kind models.ReportKind, cfg config.ReconciliationConfig) (*models.ReconciliationReport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cid, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok || cid == "" {
		cid = uuid.NewString()
	}

	report := &models.ReconciliationReport{
		ID:                 uuid.NewString(),
		Status:             models.ReportStatusRunning,
		Kind:               kind,
		CorrelationId:      cid,
		StartedAt:          time.Now().UTC(),
		ToleranceThreshold: cfg.ToleranceThreshold,
	}
	if err := e.Store.Create(ctx, report); err != nil {
		return nil, err
	}

	discrepancies, err := e.compareBalances(ctx, report, cfg)
	if err != nil {
		return e.fail(ctx, report, err)
	}

	if cfg.AutoCorrectRoundingDifferences {
		e.autoCorrectRoundingDifferences(discrepancies, cfg)
	}

	if cfg.EnableLedgerConsistencyCheck && e.Ledger != nil {
		snapshot, err := e.Ledger.CheckLedgerConsistency(ctx)
		if err != nil {
			return e.fail(ctx, report, err)
		}
		report.NegativeBalanceCount = len(snapshot.NegativeBalances)
		report.OrphanedBetCount = snapshot.OrphanedBetCount
		report.MismatchedSettlementCount = snapshot.MismatchedSettlementCount
		report.StuckPendingSettlementCount = snapshot.StuckPendingSettlementCount
		report.OffchainDiscrepancyCount = snapshot.OffchainDiscrepancyCount
		report.TotalInconsistencies += snapshot.TotalFindings()
		for i := range snapshot.NegativeBalances {
			snapshot.NegativeBalances[i].ToleranceThreshold = cfg.ToleranceThreshold
		}
		// Negative-balance findings ride along in the discrepancy list but do
		// not touch the per-user counters; those belong to the balance
		// comparison alone.
		discrepancies = append(discrepancies, snapshot.NegativeBalances...)
	}
	report.BalanceDiscrepancies = discrepancies

	now := time.Now().UTC()
	report.Status = models.ReportStatusCompleted
	report.CompletedAt = &now
	if err := e.Store.Save(ctx, report); err != nil {
		return e.fail(ctx, report, err)
	}

	e.Logger.WithFields(logrus.Fields{
		"module":                   "reconciliationWorkflow.go",
		"report_id":                report.ID,
		"correlation_id":           cid,
		"total_users_checked":      report.TotalUsersChecked,
		"users_with_discrepancies": report.UsersWithDiscrepancies,
		"users_within_tolerance":   report.UsersWithinTolerance,
		"total_discrepancy_amount": report.TotalDiscrepancyAmount.String(),
	}).Info("reconciliation completed")

	e.notifyCriticals(ctx, report, discrepancies, cfg)

	return report, nil
}

// fail marks the report failed with the error captured verbatim. Partial
// progress is discarded: a failed run carries no discrepancy list.
func (e *ReconciliationEngine) fail(ctx context.Context, report *models.ReconciliationReport, cause error) (*models.ReconciliationReport, error) {
	now := time.Now().UTC()
	msg := cause.Error()
	report.Status = models.ReportStatusFailed
	report.CompletedAt = &now
	report.ErrorMessage = &msg
	report.BalanceDiscrepancies = nil
	if saveErr := e.Store.Save(ctx, report); saveErr != nil {
		config.LogError(e.Logger, "reconciliationWorkflow.go", "fail", "Persisting failed report", report.ID, saveErr)
	}
	config.LogError(e.Logger, "reconciliationWorkflow.go", "Run", "Reconciliation run failed", report.ID, cause)
	return report, cause
}

func (e *ReconciliationEngine) compareBalances(ctx context.Context, report *models.ReconciliationReport, cfg config.ReconciliationConfig) ([]models.BalanceDiscrepancy, error) {
	paired, err := e.Source.FetchPairedBalances(ctx)
	if err != nil {
		return nil, err
	}

	var (
		discrepancies []models.BalanceDiscrepancy
		total         = decimal.Zero
		maxDiff       = decimal.Zero
		minDiff       = decimal.Zero
	)
	now := time.Now().UTC()

	for _, pb := range paired {
		difference := pb.OffchainBalance.Sub(pb.OnchainBalance).Abs()

		if difference.LessThanOrEqual(cfg.ToleranceThreshold) {
			report.UsersWithinTolerance++
			continue
		}

		kind, severity := classifyDiscrepancy(difference, cfg)
		switch kind {
		case models.InconsistencyRoundingDifference:
			report.RoundingDifferenceCount++
		case models.InconsistencyOnchainDiscrepancy:
			report.OnchainDiscrepancyCount++
		default:
			report.LedgerMismatchCount++
		}

		report.UsersWithDiscrepancies++
		total = total.Add(difference)
		if len(discrepancies) == 0 || difference.GreaterThan(maxDiff) {
			maxDiff = difference
		}
		if len(discrepancies) == 0 || difference.LessThan(minDiff) {
			minDiff = difference
		}

		discrepancies = append(discrepancies, models.BalanceDiscrepancy{
			UserId:             pb.UserId,
			UserEmail:          pb.UserEmail,
			OffchainBalance:    pb.OffchainBalance,
			OnchainBalance:     pb.OnchainBalance,
			Difference:         difference,
			ToleranceThreshold: cfg.ToleranceThreshold,
			IsWithinTolerance:  false,
			Kind:               kind,
			Severity:           severity,
			Status:             models.DiscrepancyDetected,
			DetectedAt:         now,
		})
	}

	report.TotalUsersChecked = len(paired)
	report.TotalInconsistencies = len(discrepancies)
	report.TotalDiscrepancyAmount = total
	report.MaxDiscrepancy = maxDiff
	report.MinDiscrepancy = minDiff
	if len(discrepancies) > 0 {
		report.AverageDiscrepancy = total.Div(decimal.NewFromInt(int64(len(discrepancies))))
	}

	return discrepancies, nil
}

func classifyDiscrepancy(difference decimal.Decimal, cfg config.ReconciliationConfig) (models.InconsistencyKind, models.Severity) {
	if cfg.AutoCorrectRoundingDifferences && difference.LessThanOrEqual(cfg.AutoCorrectionThreshold) {
		return models.InconsistencyRoundingDifference, models.SeverityLow
	}
	if difference.GreaterThan(onchainSeverityCutoff) {
		return models.InconsistencyOnchainDiscrepancy, models.SeverityHigh
	}
	return models.InconsistencyLedgerMismatch, models.SeverityMedium
}

// autoCorrectRoundingDifferences advances discrepancies in
// (tolerance, autoCorrectionThreshold] to resolved. This is the only state the
// engine ever auto-advances; no balance is rewritten here. Remediation of the
// underlying store is an external, audited action. Idempotent: an
// already-resolved discrepancy is left alone.
func (e *ReconciliationEngine) autoCorrectRoundingDifferences(discrepancies []models.BalanceDiscrepancy, cfg config.ReconciliationConfig) {
	corrected := 0
	now := time.Now().UTC()
	for i := range discrepancies {
		d := &discrepancies[i]
		if d.Status != models.DiscrepancyDetected {
			continue
		}
		if d.Difference.GreaterThan(cfg.ToleranceThreshold) && d.Difference.LessThanOrEqual(cfg.AutoCorrectionThreshold) {
			d.Status = models.DiscrepancyResolved
			resolvedAt := now
			d.ResolvedAt = &resolvedAt
			d.ResolutionNotes = autoCorrectionNote
			corrected++
		}
	}
	if corrected > 0 {
		e.Logger.WithFields(logrus.Fields{
			"module":    "reconciliationWorkflow.go",
			"corrected": corrected,
		}).Info("auto-corrected rounding discrepancies")
	}
}

func (e *ReconciliationEngine) notifyCriticals(ctx context.Context, report *models.ReconciliationReport, discrepancies []models.BalanceDiscrepancy, cfg config.ReconciliationConfig) {
	if !cfg.NotifyOnCriticalDiscrepancies || e.Notifier == nil {
		return
	}
	var criticals []models.BalanceDiscrepancy
	for _, d := range discrepancies {
		if d.Difference.GreaterThan(cfg.AutoCorrectionThreshold) {
			criticals = append(criticals, d)
		}
	}
	if len(criticals) == 0 {
		return
	}
	e.Logger.WithFields(logrus.Fields{
		"module":    "reconciliationWorkflow.go",
		"report_id": report.ID,
		"count":     len(criticals),
	}).Error("balance discrepancies exceed auto-correction threshold")
	e.Notifier.NotifyDiscrepancies(ctx, report, criticals)
}
