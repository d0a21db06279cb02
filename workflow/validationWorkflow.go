package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/betledger_backend/config"
	"bitbucket.org/mmdatafocus/betledger_backend/models"
	"bitbucket.org/mmdatafocus/betledger_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ValidationRequest identifies one transaction to validate.
type ValidationRequest struct {
	TransactionId   string
	TransactionKind models.TransactionKind
	ValidationKind  models.ValidationKind
	ReferenceId     *string
	UserId          *string
	Metadata        map[string]string
}

// ValidationEngine runs the per-transaction integrity checks. Like the
// reconciliation engine it is stateless between runs; the rule registry it
// consults is immutable.
type ValidationEngine struct {
	Store    ValidationReportStore
	Rollback RollbackCoordinator
	Notifier Notifier
	Logger   *logrus.Logger
	// Rules defaults to RulesFor; tests substitute their own tables.
	Rules func(models.TransactionKind) []RegisteredRule
	Env   *CheckEnv
	// Lister feeds ValidateRecentTransactions; defaults to a
	// GormTransactionLister over Env.DB.
	Lister TransactionLister
}

func (e *ValidationEngine) rulesFor(kind models.TransactionKind) []RegisteredRule {
	if e.Rules != nil {
		return e.Rules(kind)
	}
	return RulesFor(kind)
}

// ValidateTransaction runs every registered rule for the transaction's kind,
// persists a report, and rolls the transaction back when critical violations
// reach the configured threshold. A non-nil error pairs with a failed report,
// except when validation is disabled, in which case no report exists at all.
func (e *ValidationEngine) ValidateTransaction(ctx context.Context, req ValidationRequest, cfg config.ValidationConfig) (*models.TransactionValidationReport, error) {
	if !cfg.Enabled {
		return nil, utils.ErrValidationDisabled
	}

	cid, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok || cid == "" {
		cid = uuid.NewString()
	}

	validationKind := req.ValidationKind
	if validationKind == "" {
		validationKind = models.ValidationBalanceIntegrity
	}

	rules := e.rulesFor(req.TransactionKind)
	ruleMeta := make([]models.ValidationRule, 0, len(rules))
	for _, r := range rules {
		ruleMeta = append(ruleMeta, r.ValidationRule)
	}

	report := &models.TransactionValidationReport{
		ID:              uuid.NewString(),
		Status:          models.ValidationStatusPending,
		TransactionKind: req.TransactionKind,
		ValidationKind:  validationKind,
		TransactionId:   req.TransactionId,
		ReferenceId:     req.ReferenceId,
		UserId:          req.UserId,
		CorrelationId:   cid,
		StartedAt:       time.Now().UTC(),
		ValidationRules: ruleMeta,
		TotalChecks:     len(rules),
		Metadata:        req.Metadata,
	}
	if err := e.Store.Create(ctx, report); err != nil {
		return nil, err
	}

	if len(rules) == 0 {
		e.Logger.WithFields(logrus.Fields{
			"module":           "validationWorkflow.go",
			"report_id":        report.ID,
			"transaction_kind": req.TransactionKind,
		}).Warn("no validation rules registered for transaction kind, passing vacuously")
	}

	tc := CheckContext{
		TransactionId:   req.TransactionId,
		TransactionKind: req.TransactionKind,
		ReferenceId:     req.ReferenceId,
		UserId:          req.UserId,
	}
	e.runRules(ctx, report, rules, tc)

	// Status is decided only after the full rule set ran; an early critical
	// failure must not mask later ones.
	if report.FailedChecks == 0 {
		report.Status = models.ValidationStatusPassed
	} else {
		report.Status = models.ValidationStatusFailed
	}

	var rollbackErr error
	if report.CriticalViolations >= cfg.CriticalViolationThreshold && report.CriticalViolations > 0 {
		if cfg.AutoRollbackOnCritical {
			rollbackErr = e.rollback(ctx, report)
		} else {
			e.Logger.WithFields(logrus.Fields{
				"module":              "validationWorkflow.go",
				"report_id":           report.ID,
				"critical_violations": report.CriticalViolations,
			}).Warn("critical violation threshold reached but auto-rollback is disabled")
		}
	}

	now := time.Now().UTC()
	report.CompletedAt = &now
	if err := e.Store.Save(ctx, report); err != nil {
		if report.Status == models.ValidationStatusRolledBack {
			// The funds were recovered; only the bookkeeping failed. Keep the
			// rolled_back status and record the save error alongside it.
			config.LogError(e.Logger, "validationWorkflow.go", "ValidateTransaction", "Persisting rolled-back report", report.ID, err)
			msg := err.Error()
			report.ErrorMessage = &msg
			return report, err
		}
		return e.fail(ctx, report, err)
	}

	e.Logger.WithFields(logrus.Fields{
		"module":              "validationWorkflow.go",
		"report_id":           report.ID,
		"correlation_id":      cid,
		"transaction_id":      req.TransactionId,
		"transaction_kind":    req.TransactionKind,
		"status":              report.Status,
		"passed_checks":       report.PassedChecks,
		"failed_checks":       report.FailedChecks,
		"critical_violations": report.CriticalViolations,
		"rollback_triggered":  report.RollbackTriggered,
	}).Info("transaction validation completed")

	if len(report.Violations) > 0 && cfg.NotifyOnViolations && e.Notifier != nil {
		e.Notifier.NotifyViolations(ctx, report, report.Violations)
	}

	if rollbackErr != nil {
		return report, rollbackErr
	}
	return report, nil
}

// runRules executes each rule exactly once. A check that errors out is
// contained: it becomes a failed result plus a critical violation no matter
// what the rule's critical flag says, and the loop continues.
func (e *ValidationEngine) runRules(ctx context.Context, report *models.TransactionValidationReport, rules []RegisteredRule, tc CheckContext) {
	entity := AffectedEntityForKind(tc.TransactionKind)
	for _, rule := range rules {
		res, err := rule.Check(ctx, e.Env, tc)
		if err != nil {
			config.LogError(e.Logger, "validationWorkflow.go", "runRules", "Executing rule "+rule.Name, tc.TransactionId, err)
			res = models.ValidationResult{
				RuleName: rule.Name,
				Passed:   false,
				Message:  fmt.Sprintf("check execution failed: %v", err),
			}
			res.Timestamp = time.Now().UTC()
			report.ValidationResults = append(report.ValidationResults, res)
			report.FailedChecks++
			report.CriticalViolations++
			report.Violations = append(report.Violations, models.IntegrityViolation{
				Kind:           ViolationKindForRule(rule.Name),
				Severity:       models.SeverityCritical,
				Description:    res.Message,
				AffectedEntity: entity,
				AffectedId:     tc.TransactionId,
				DetectedAt:     res.Timestamp,
			})
			continue
		}

		res.RuleName = rule.Name
		res.Timestamp = time.Now().UTC()
		report.ValidationResults = append(report.ValidationResults, res)

		if res.Passed {
			report.PassedChecks++
			continue
		}

		report.FailedChecks++
		severity := models.SeverityHigh
		if rule.Critical {
			severity = models.SeverityCritical
			report.CriticalViolations++
		}
		report.Violations = append(report.Violations, models.IntegrityViolation{
			Kind:           ViolationKindForRule(rule.Name),
			Severity:       severity,
			Description:    res.Message,
			AffectedEntity: entity,
			AffectedId:     tc.TransactionId,
			CurrentValue:   res.ActualValue,
			ExpectedValue:  res.ExpectedValue,
			DetectedAt:     res.Timestamp,
		})
	}
}

// rollback attempts the compensating transaction. Only a successful rollback
// is allowed to stamp the report rolled_back; a failed one leaves the report
// failed with RollbackTriggered unset so nobody mistakes the funds for
// recovered.
func (e *ValidationEngine) rollback(ctx context.Context, report *models.TransactionValidationReport) error {
	reason := fmt.Sprintf("%d critical violations detected", report.CriticalViolations)
	if err := e.Rollback.Rollback(ctx, report.TransactionKind, report.TransactionId); err != nil {
		config.LogError(e.Logger, "validationWorkflow.go", "rollback", "Rolling back transaction", report.TransactionId, err)
		report.Status = models.ValidationStatusFailed
		report.RollbackTriggered = false
		msg := fmt.Sprintf("rollback failed: %v", err)
		report.ErrorMessage = &msg
		return fmt.Errorf("rollback of %s %s: %w", report.TransactionKind, report.TransactionId, err)
	}
	now := time.Now().UTC()
	report.Status = models.ValidationStatusRolledBack
	report.RollbackTriggered = true
	report.RollbackReason = &reason
	report.RollbackCompletedAt = &now
	return nil
}

// fail marks the report failed with the causing error verbatim and persists
// it on a best-effort basis.
func (e *ValidationEngine) fail(ctx context.Context, report *models.TransactionValidationReport, cause error) (*models.TransactionValidationReport, error) {
	msg := cause.Error()
	now := time.Now().UTC()
	report.Status = models.ValidationStatusFailed
	report.ErrorMessage = &msg
	report.CompletedAt = &now
	if err := e.Store.Save(ctx, report); err != nil {
		config.LogError(e.Logger, "validationWorkflow.go", "fail", "Persisting failed report", report.ID, err)
	}
	return report, cause
}
