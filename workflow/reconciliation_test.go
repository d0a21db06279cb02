package workflow

import (
	"context"
	"errors"
	"io"
	"testing"

	"bitbucket.org/mmdatafocus/betledger_backend/config"
	"bitbucket.org/mmdatafocus/betledger_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// NOTE: These tests are intentionally DB-free. The engines take their stores
// and balance sources as interfaces, so the full lifecycle can be exercised
// in-memory. Full DB integration tests need an environment with MySQL + Redis.

type fakeReconStore struct {
	created []models.ReconciliationReport
	saved   []models.ReconciliationReport
	saveErr error
}

func (s *fakeReconStore) Create(ctx context.Context, report *models.ReconciliationReport) error {
	s.created = append(s.created, *report)
	return nil
}

func (s *fakeReconStore) Save(ctx context.Context, report *models.ReconciliationReport) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, *report)
	return nil
}

type fakeSource struct {
	balances []PairedBalance
	err      error
}

func (s *fakeSource) FetchPairedBalances(ctx context.Context) ([]PairedBalance, error) {
	return s.balances, s.err
}

type fakeNotifier struct {
	discrepancyCalls [][]models.BalanceDiscrepancy
	violationCalls   [][]models.IntegrityViolation
}

func (n *fakeNotifier) NotifyDiscrepancies(ctx context.Context, report *models.ReconciliationReport, discrepancies []models.BalanceDiscrepancy) {
	n.discrepancyCalls = append(n.discrepancyCalls, discrepancies)
}

func (n *fakeNotifier) NotifyViolations(ctx context.Context, report *models.TransactionValidationReport, violations []models.IntegrityViolation) {
	n.violationCalls = append(n.violationCalls, violations)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func pair(userId string, offchain, onchain string) PairedBalance {
	return PairedBalance{
		UserId:          userId,
		UserEmail:       userId + "@example.com",
		OffchainBalance: decimal.RequireFromString(offchain),
		OnchainBalance:  decimal.RequireFromString(onchain),
	}
}

func newTestReconEngine(store *fakeReconStore, source *fakeSource, notifier *fakeNotifier) *ReconciliationEngine {
	return &ReconciliationEngine{
		Store:    store,
		Source:   source,
		Notifier: notifier,
		Logger:   quietLogger(),
	}
}

func TestReconciliation_DifferenceAtTolerance_IsClean(t *testing.T) {
	store := &fakeReconStore{}
	source := &fakeSource{balances: []PairedBalance{
		pair("u1", "100", "99.99999999"),
	}}
	engine := newTestReconEngine(store, source, &fakeNotifier{})

	report, err := engine.Run(context.Background(), models.ReportKindManual, config.DefaultReconciliationConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != models.ReportStatusCompleted {
		t.Fatalf("expected completed, got %s", report.Status)
	}
	if len(report.BalanceDiscrepancies) != 0 {
		t.Fatalf("expected no discrepancies, got %d", len(report.BalanceDiscrepancies))
	}
	if report.UsersWithinTolerance != 1 || report.UsersWithDiscrepancies != 0 {
		t.Fatalf("wrong counters: within=%d with=%d", report.UsersWithinTolerance, report.UsersWithDiscrepancies)
	}
	if !report.CountsBalance() {
		t.Fatal("counters do not balance")
	}
	if len(store.created) != 1 || store.created[0].Status != models.ReportStatusRunning {
		t.Fatal("report was not persisted in running state before comparison")
	}
}

func TestReconciliation_RoundingDifference_IsAutoCorrected(t *testing.T) {
	store := &fakeReconStore{}
	source := &fakeSource{balances: []PairedBalance{
		pair("u1", "100", "99.999999"),
	}}
	engine := newTestReconEngine(store, source, &fakeNotifier{})

	report, err := engine.Run(context.Background(), models.ReportKindManual, config.DefaultReconciliationConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.BalanceDiscrepancies) != 1 {
		t.Fatalf("expected 1 discrepancy, got %d", len(report.BalanceDiscrepancies))
	}
	d := report.BalanceDiscrepancies[0]
	if d.Kind != models.InconsistencyRoundingDifference {
		t.Fatalf("expected rounding_difference, got %s", d.Kind)
	}
	if d.Severity != models.SeverityLow {
		t.Fatalf("expected low severity, got %s", d.Severity)
	}
	if d.Status != models.DiscrepancyResolved {
		t.Fatalf("expected resolved, got %s", d.Status)
	}
	if d.ResolvedAt == nil || d.ResolutionNotes == "" {
		t.Fatal("auto-correction did not stamp resolution")
	}
	if report.RoundingDifferenceCount != 1 {
		t.Fatalf("expected rounding counter 1, got %d", report.RoundingDifferenceCount)
	}
}

func TestReconciliation_AutoCorrectDisabled_StaysDetected(t *testing.T) {
	store := &fakeReconStore{}
	source := &fakeSource{balances: []PairedBalance{
		pair("u1", "100", "99.999999"),
	}}
	engine := newTestReconEngine(store, source, &fakeNotifier{})

	cfg := config.DefaultReconciliationConfig()
	cfg.AutoCorrectRoundingDifferences = false

	report, err := engine.Run(context.Background(), models.ReportKindManual, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := report.BalanceDiscrepancies[0]
	if d.Status != models.DiscrepancyDetected {
		t.Fatalf("expected detected, got %s", d.Status)
	}
	if d.ResolvedAt != nil {
		t.Fatal("disabled auto-correction must not stamp resolution")
	}
}

func TestReconciliation_LargeDifference_IsOnchainHigh(t *testing.T) {
	store := &fakeReconStore{}
	source := &fakeSource{balances: []PairedBalance{
		pair("u1", "100.5", "50"),
	}}
	notifier := &fakeNotifier{}
	engine := newTestReconEngine(store, source, notifier)

	report, err := engine.Run(context.Background(), models.ReportKindManual, config.DefaultReconciliationConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := report.BalanceDiscrepancies[0]
	if d.Kind != models.InconsistencyOnchainDiscrepancy {
		t.Fatalf("expected onchain_balance_discrepancy, got %s", d.Kind)
	}
	if d.Severity != models.SeverityHigh {
		t.Fatalf("expected high severity, got %s", d.Severity)
	}
	if !d.Difference.Equal(decimal.RequireFromString("50.5")) {
		t.Fatalf("expected difference 50.5, got %s", d.Difference)
	}
	if len(notifier.discrepancyCalls) != 1 || len(notifier.discrepancyCalls[0]) != 1 {
		t.Fatalf("expected one critical notification, got %v", notifier.discrepancyCalls)
	}
}

func TestReconciliation_MidBand_IsLedgerMismatchMedium(t *testing.T) {
	store := &fakeReconStore{}
	source := &fakeSource{balances: []PairedBalance{
		pair("u1", "100", "99.5"),
	}}
	engine := newTestReconEngine(store, source, &fakeNotifier{})

	report, err := engine.Run(context.Background(), models.ReportKindManual, config.DefaultReconciliationConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := report.BalanceDiscrepancies[0]
	if d.Kind != models.InconsistencyLedgerMismatch {
		t.Fatalf("expected ledger_mismatch, got %s", d.Kind)
	}
	if d.Severity != models.SeverityMedium {
		t.Fatalf("expected medium severity, got %s", d.Severity)
	}
}

func TestReconciliation_MixedUsers_CountersBalance(t *testing.T) {
	store := &fakeReconStore{}
	source := &fakeSource{balances: []PairedBalance{
		pair("clean", "10", "10"),
		pair("rounding", "10", "9.999999"),
		pair("mismatch", "10", "9.5"),
		pair("onchain", "10", "5"),
	}}
	engine := newTestReconEngine(store, source, &fakeNotifier{})

	report, err := engine.Run(context.Background(), models.ReportKindScheduled, config.DefaultReconciliationConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TotalUsersChecked != 4 {
		t.Fatalf("expected 4 users checked, got %d", report.TotalUsersChecked)
	}
	if report.UsersWithinTolerance != 1 || report.UsersWithDiscrepancies != 3 {
		t.Fatalf("wrong counters: within=%d with=%d", report.UsersWithinTolerance, report.UsersWithDiscrepancies)
	}
	if !report.CountsBalance() {
		t.Fatal("counters do not balance")
	}
	if report.TotalInconsistencies != 3 {
		t.Fatalf("expected 3 inconsistencies, got %d", report.TotalInconsistencies)
	}
	if report.RoundingDifferenceCount != 1 || report.LedgerMismatchCount != 1 || report.OnchainDiscrepancyCount != 1 {
		t.Fatalf("wrong category counters: %d/%d/%d",
			report.RoundingDifferenceCount, report.LedgerMismatchCount, report.OnchainDiscrepancyCount)
	}
	if !report.MaxDiscrepancy.Equal(decimal.RequireFromString("5")) {
		t.Fatalf("expected max 5, got %s", report.MaxDiscrepancy)
	}
	if !report.MinDiscrepancy.Equal(decimal.RequireFromString("0.000001")) {
		t.Fatalf("expected min 0.000001, got %s", report.MinDiscrepancy)
	}
}

func TestReconciliation_SourceFailure_FailsReportVerbatim(t *testing.T) {
	store := &fakeReconStore{}
	boom := errors.New("chain API unreachable")
	source := &fakeSource{err: boom}
	engine := newTestReconEngine(store, source, &fakeNotifier{})

	report, err := engine.Run(context.Background(), models.ReportKindManual, config.DefaultReconciliationConfig())
	if !errors.Is(err, boom) {
		t.Fatalf("expected cause to propagate, got %v", err)
	}
	if report.Status != models.ReportStatusFailed {
		t.Fatalf("expected failed, got %s", report.Status)
	}
	if report.ErrorMessage == nil || *report.ErrorMessage != boom.Error() {
		t.Fatalf("error message not captured verbatim: %v", report.ErrorMessage)
	}
	if report.BalanceDiscrepancies != nil {
		t.Fatal("failed run must not keep partial discrepancies")
	}
	if len(store.saved) != 1 || store.saved[0].Status != models.ReportStatusFailed {
		t.Fatal("failed report was not persisted")
	}
}

func TestReconciliation_InvalidConfig_RejectedBeforeReport(t *testing.T) {
	store := &fakeReconStore{}
	engine := newTestReconEngine(store, &fakeSource{}, &fakeNotifier{})

	cfg := config.DefaultReconciliationConfig()
	cfg.AutoCorrectionThreshold = decimal.New(1, -10) // below tolerance

	if _, err := engine.Run(context.Background(), models.ReportKindManual, cfg); err == nil {
		t.Fatal("expected config validation error")
	}
	if len(store.created) != 0 {
		t.Fatal("invalid config must not create a report")
	}
}

type fakeLedgerChecker struct {
	snapshot *LedgerConsistencySnapshot
	err      error
}

func (c *fakeLedgerChecker) CheckLedgerConsistency(ctx context.Context) (*LedgerConsistencySnapshot, error) {
	return c.snapshot, c.err
}

func TestReconciliation_LedgerSweep_MergesFindings(t *testing.T) {
	store := &fakeReconStore{}
	source := &fakeSource{balances: []PairedBalance{pair("u1", "10", "10")}}
	engine := newTestReconEngine(store, source, &fakeNotifier{})
	engine.Ledger = &fakeLedgerChecker{snapshot: &LedgerConsistencySnapshot{
		NegativeBalances: []models.BalanceDiscrepancy{{
			UserId:     "broke",
			Kind:       models.InconsistencyNegativeBalance,
			Severity:   models.SeverityCritical,
			Status:     models.DiscrepancyDetected,
			Difference: decimal.RequireFromString("3"),
		}},
		OrphanedBetCount:            2,
		StuckPendingSettlementCount: 1,
	}}

	report, err := engine.Run(context.Background(), models.ReportKindLedgerConsistency, config.DefaultReconciliationConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.NegativeBalanceCount != 1 || report.OrphanedBetCount != 2 || report.StuckPendingSettlementCount != 1 {
		t.Fatalf("ledger counters not merged: %d/%d/%d",
			report.NegativeBalanceCount, report.OrphanedBetCount, report.StuckPendingSettlementCount)
	}
	if report.TotalInconsistencies != 4 {
		t.Fatalf("expected 4 inconsistencies, got %d", report.TotalInconsistencies)
	}
	if len(report.BalanceDiscrepancies) != 1 || report.BalanceDiscrepancies[0].Kind != models.InconsistencyNegativeBalance {
		t.Fatal("negative balance finding missing from discrepancy list")
	}
	// Ledger findings must not disturb the per-user balance counters.
	if !report.CountsBalance() {
		t.Fatal("counters do not balance after ledger sweep")
	}
}

func TestReconciliation_LedgerSweepDisabled_IsSkipped(t *testing.T) {
	store := &fakeReconStore{}
	source := &fakeSource{balances: []PairedBalance{pair("u1", "10", "10")}}
	engine := newTestReconEngine(store, source, &fakeNotifier{})
	engine.Ledger = &fakeLedgerChecker{err: errors.New("must not be called")}

	cfg := config.DefaultReconciliationConfig()
	cfg.EnableLedgerConsistencyCheck = false

	report, err := engine.Run(context.Background(), models.ReportKindManual, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != models.ReportStatusCompleted {
		t.Fatalf("expected completed, got %s", report.Status)
	}
}
