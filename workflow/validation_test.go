package workflow

import (
	"context"
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/betledger_backend/config"
	"bitbucket.org/mmdatafocus/betledger_backend/models"
	"bitbucket.org/mmdatafocus/betledger_backend/utils"
)

type fakeValidationStore struct {
	created []models.TransactionValidationReport
	saved   []models.TransactionValidationReport
	saveErr error
}

func (s *fakeValidationStore) Create(ctx context.Context, report *models.TransactionValidationReport) error {
	s.created = append(s.created, *report)
	return nil
}

func (s *fakeValidationStore) Save(ctx context.Context, report *models.TransactionValidationReport) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, *report)
	return nil
}

type fakeRollback struct {
	err   error
	calls []string
}

func (r *fakeRollback) Rollback(ctx context.Context, kind models.TransactionKind, transactionId string) error {
	r.calls = append(r.calls, string(kind)+":"+transactionId)
	return r.err
}

func passingRule(name string) RegisteredRule {
	return RegisteredRule{
		ValidationRule: models.ValidationRule{Name: name, Critical: true},
		Check: func(ctx context.Context, env *CheckEnv, tc CheckContext) (models.ValidationResult, error) {
			return models.ValidationResult{RuleName: name, Passed: true}, nil
		},
	}
}

func failingRule(name string, critical bool) RegisteredRule {
	return RegisteredRule{
		ValidationRule: models.ValidationRule{Name: name, Critical: critical},
		Check: func(ctx context.Context, env *CheckEnv, tc CheckContext) (models.ValidationResult, error) {
			return models.ValidationResult{RuleName: name, Passed: false, Message: name + " violated"}, nil
		},
	}
}

func erroringRule(name string, critical bool) RegisteredRule {
	return RegisteredRule{
		ValidationRule: models.ValidationRule{Name: name, Critical: critical},
		Check: func(ctx context.Context, env *CheckEnv, tc CheckContext) (models.ValidationResult, error) {
			return models.ValidationResult{}, errors.New("query timed out")
		},
	}
}

func newTestValidationEngine(store *fakeValidationStore, rb *fakeRollback, notifier *fakeNotifier, rules []RegisteredRule) *ValidationEngine {
	return &ValidationEngine{
		Store:    store,
		Rollback: rb,
		Notifier: notifier,
		Logger:   quietLogger(),
		Rules: func(models.TransactionKind) []RegisteredRule {
			return rules
		},
	}
}

func betSettlementRequest() ValidationRequest {
	return ValidationRequest{
		TransactionId:   "tx-1",
		TransactionKind: models.TransactionBetSettlement,
		ValidationKind:  models.ValidationBalanceIntegrity,
	}
}

func TestValidation_AllRulesPass(t *testing.T) {
	store := &fakeValidationStore{}
	rb := &fakeRollback{}
	engine := newTestValidationEngine(store, rb, &fakeNotifier{}, []RegisteredRule{
		passingRule("a"), passingRule("b"), passingRule("c"),
	})

	report, err := engine.ValidateTransaction(context.Background(), betSettlementRequest(), config.DefaultValidationConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != models.ValidationStatusPassed {
		t.Fatalf("expected passed, got %s", report.Status)
	}
	if report.TotalChecks != 3 || report.PassedChecks != 3 || report.FailedChecks != 0 {
		t.Fatalf("wrong counters: total=%d passed=%d failed=%d",
			report.TotalChecks, report.PassedChecks, report.FailedChecks)
	}
	if !report.CountsBalance() {
		t.Fatal("counters do not balance")
	}
	if len(rb.calls) != 0 {
		t.Fatal("rollback must not run on a passing transaction")
	}
	if len(store.created) != 1 || store.created[0].Status != models.ValidationStatusPending {
		t.Fatal("report was not persisted pending before the rule loop")
	}
}

func TestValidation_CriticalFailure_RollsBack(t *testing.T) {
	store := &fakeValidationStore{}
	rb := &fakeRollback{}
	notifier := &fakeNotifier{}
	engine := newTestValidationEngine(store, rb, notifier, []RegisteredRule{
		passingRule("a"), failingRule("b", true),
	})

	report, err := engine.ValidateTransaction(context.Background(), betSettlementRequest(), config.DefaultValidationConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != models.ValidationStatusRolledBack {
		t.Fatalf("expected rolled_back, got %s", report.Status)
	}
	if !report.RollbackTriggered {
		t.Fatal("RollbackTriggered not set after successful rollback")
	}
	if report.RollbackReason == nil || report.RollbackCompletedAt == nil {
		t.Fatal("rollback metadata missing")
	}
	if len(rb.calls) != 1 || rb.calls[0] != "bet_settlement:tx-1" {
		t.Fatalf("unexpected rollback calls: %v", rb.calls)
	}
	if report.CriticalViolations != 1 {
		t.Fatalf("expected 1 critical violation, got %d", report.CriticalViolations)
	}
	if len(notifier.violationCalls) != 1 {
		t.Fatal("violations were not notified")
	}
}

func TestValidation_RollbackFailure_NeverReportsRolledBack(t *testing.T) {
	store := &fakeValidationStore{}
	rb := &fakeRollback{err: errors.New("deadlock detected")}
	engine := newTestValidationEngine(store, rb, &fakeNotifier{}, []RegisteredRule{
		failingRule("a", true),
	})

	report, err := engine.ValidateTransaction(context.Background(), betSettlementRequest(), config.DefaultValidationConfig())
	if err == nil {
		t.Fatal("expected rollback failure to surface")
	}
	if report.Status != models.ValidationStatusFailed {
		t.Fatalf("expected failed, got %s", report.Status)
	}
	if report.RollbackTriggered {
		t.Fatal("failed rollback must not be reported as triggered")
	}
	if report.ErrorMessage == nil {
		t.Fatal("rollback error not recorded on the report")
	}
}

func TestValidation_SaveFailureAfterRollback_KeepsRolledBack(t *testing.T) {
	saveErr := errors.New("connection reset")
	store := &fakeValidationStore{saveErr: saveErr}
	rb := &fakeRollback{}
	engine := newTestValidationEngine(store, rb, &fakeNotifier{}, []RegisteredRule{
		failingRule("a", true),
	})

	report, err := engine.ValidateTransaction(context.Background(), betSettlementRequest(), config.DefaultValidationConfig())
	if !errors.Is(err, saveErr) {
		t.Fatalf("expected the save error, got %v", err)
	}
	if len(rb.calls) != 1 {
		t.Fatalf("expected one rollback call, got %v", rb.calls)
	}
	if report.Status != models.ValidationStatusRolledBack {
		t.Fatalf("save failure must not overwrite rolled_back, got %s", report.Status)
	}
	if !report.RollbackTriggered {
		t.Fatal("RollbackTriggered lost after save failure")
	}
	if report.ErrorMessage == nil || *report.ErrorMessage != saveErr.Error() {
		t.Fatalf("save error not recorded on the report: %v", report.ErrorMessage)
	}
}

func TestValidation_CheckError_IsCriticalAndLoopContinues(t *testing.T) {
	store := &fakeValidationStore{}
	rb := &fakeRollback{}
	engine := newTestValidationEngine(store, rb, &fakeNotifier{}, []RegisteredRule{
		erroringRule("broken", false), // non-critical flag must not matter
		passingRule("after"),
	})

	report, err := engine.ValidateTransaction(context.Background(), betSettlementRequest(), config.DefaultValidationConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.ValidationResults) != 2 {
		t.Fatalf("loop stopped early: %d results", len(report.ValidationResults))
	}
	if report.CriticalViolations != 1 {
		t.Fatalf("check execution error must count as critical, got %d", report.CriticalViolations)
	}
	if report.PassedChecks != 1 || report.FailedChecks != 1 {
		t.Fatalf("wrong counters: passed=%d failed=%d", report.PassedChecks, report.FailedChecks)
	}
	if report.Status != models.ValidationStatusRolledBack {
		t.Fatalf("expected rolled_back at default threshold, got %s", report.Status)
	}
	if report.Violations[0].Severity != models.SeverityCritical {
		t.Fatalf("expected critical severity, got %s", report.Violations[0].Severity)
	}
}

func TestValidation_NonCriticalFailure_NoRollback(t *testing.T) {
	store := &fakeValidationStore{}
	rb := &fakeRollback{}
	engine := newTestValidationEngine(store, rb, &fakeNotifier{}, []RegisteredRule{
		failingRule("soft", false),
	})

	report, err := engine.ValidateTransaction(context.Background(), betSettlementRequest(), config.DefaultValidationConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != models.ValidationStatusFailed {
		t.Fatalf("expected failed, got %s", report.Status)
	}
	if report.CriticalViolations != 0 {
		t.Fatalf("non-critical failure counted as critical: %d", report.CriticalViolations)
	}
	if len(rb.calls) != 0 {
		t.Fatal("rollback must not run without critical violations")
	}
	if report.Violations[0].Severity != models.SeverityHigh {
		t.Fatalf("expected high severity, got %s", report.Violations[0].Severity)
	}
}

func TestValidation_ThresholdNotReached_NoRollback(t *testing.T) {
	store := &fakeValidationStore{}
	rb := &fakeRollback{}
	engine := newTestValidationEngine(store, rb, &fakeNotifier{}, []RegisteredRule{
		failingRule("a", true),
	})

	cfg := config.DefaultValidationConfig()
	cfg.CriticalViolationThreshold = 2

	report, err := engine.ValidateTransaction(context.Background(), betSettlementRequest(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != models.ValidationStatusFailed {
		t.Fatalf("expected failed, got %s", report.Status)
	}
	if len(rb.calls) != 0 {
		t.Fatal("rollback must not run below the threshold")
	}
}

func TestValidation_AutoRollbackDisabled_StaysFailed(t *testing.T) {
	store := &fakeValidationStore{}
	rb := &fakeRollback{}
	engine := newTestValidationEngine(store, rb, &fakeNotifier{}, []RegisteredRule{
		failingRule("a", true),
	})

	cfg := config.DefaultValidationConfig()
	cfg.AutoRollbackOnCritical = false

	report, err := engine.ValidateTransaction(context.Background(), betSettlementRequest(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != models.ValidationStatusFailed {
		t.Fatalf("expected failed, got %s", report.Status)
	}
	if len(rb.calls) != 0 || report.RollbackTriggered {
		t.Fatal("rollback must not run when auto-rollback is disabled")
	}
}

func TestValidation_NoRules_PassesVacuously(t *testing.T) {
	store := &fakeValidationStore{}
	engine := newTestValidationEngine(store, &fakeRollback{}, &fakeNotifier{}, nil)

	report, err := engine.ValidateTransaction(context.Background(), betSettlementRequest(), config.DefaultValidationConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != models.ValidationStatusPassed {
		t.Fatalf("expected passed, got %s", report.Status)
	}
	if report.TotalChecks != 0 || !report.CountsBalance() {
		t.Fatalf("wrong counters for empty rule set: total=%d", report.TotalChecks)
	}
}

func TestValidation_Disabled_CreatesNoReport(t *testing.T) {
	store := &fakeValidationStore{}
	engine := newTestValidationEngine(store, &fakeRollback{}, &fakeNotifier{}, []RegisteredRule{passingRule("a")})

	cfg := config.DefaultValidationConfig()
	cfg.Enabled = false

	report, err := engine.ValidateTransaction(context.Background(), betSettlementRequest(), cfg)
	if !errors.Is(err, utils.ErrValidationDisabled) {
		t.Fatalf("expected ErrValidationDisabled, got %v", err)
	}
	if report != nil {
		t.Fatal("disabled validation must not produce a report")
	}
	if len(store.created) != 0 {
		t.Fatal("disabled validation must not persist anything")
	}
}

func TestValidation_CorrelationIdPropagates(t *testing.T) {
	store := &fakeValidationStore{}
	engine := newTestValidationEngine(store, &fakeRollback{}, &fakeNotifier{}, []RegisteredRule{passingRule("a")})

	ctx := utils.SetCorrelationIdInContext(context.Background(), "cid-42")
	report, err := engine.ValidateTransaction(ctx, betSettlementRequest(), config.DefaultValidationConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.CorrelationId != "cid-42" {
		t.Fatalf("correlation id not propagated: %s", report.CorrelationId)
	}
}
