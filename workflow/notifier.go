package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/betledger_backend/config"
	"bitbucket.org/mmdatafocus/betledger_backend/models"
	"github.com/sirupsen/logrus"
)

// Notifier hands violation/discrepancy summaries to the alerting pipeline.
// Fire-and-forget: implementations must never let a delivery failure bleed
// into report status.
type Notifier interface {
	NotifyDiscrepancies(ctx context.Context, report *models.ReconciliationReport, discrepancies []models.BalanceDiscrepancy)
	NotifyViolations(ctx context.Context, report *models.TransactionValidationReport, violations []models.IntegrityViolation)
}

// PubSubNotifier publishes integrity alerts to the configured Pub/Sub topic.
type PubSubNotifier struct {
	Logger *logrus.Logger
}

func (n *PubSubNotifier) NotifyDiscrepancies(ctx context.Context, report *models.ReconciliationReport, discrepancies []models.BalanceDiscrepancy) {
	details, err := json.Marshal(discrepancies)
	if err != nil {
		config.LogError(n.Logger, "notifier.go", "NotifyDiscrepancies", "Marshaling discrepancies", report.ID, err)
		return
	}
	alert := config.IntegrityAlert{
		ReportId:      report.ID,
		ReportKind:    "reconciliation",
		Severity:      string(models.SeverityHigh),
		Summary:       fmt.Sprintf("%d balance discrepancies exceed the auto-correction threshold", len(discrepancies)),
		Details:       details,
		CorrelationId: report.CorrelationId,
		DetectedAt:    time.Now().UTC(),
	}
	if _, err := config.PublishIntegrityAlert(ctx, alert); err != nil {
		config.LogError(n.Logger, "notifier.go", "NotifyDiscrepancies", "Publishing integrity alert", report.ID, err)
	}
}

func (n *PubSubNotifier) NotifyViolations(ctx context.Context, report *models.TransactionValidationReport, violations []models.IntegrityViolation) {
	severity := models.SeverityHigh
	critical := 0
	for _, v := range violations {
		if v.Severity == models.SeverityCritical {
			critical++
		}
	}
	if critical > 0 {
		severity = models.SeverityCritical
	}

	details, err := json.Marshal(violations)
	if err != nil {
		config.LogError(n.Logger, "notifier.go", "NotifyViolations", "Marshaling violations", report.ID, err)
		return
	}
	alert := config.IntegrityAlert{
		ReportId:      report.ID,
		ReportKind:    "transaction_validation",
		Severity:      string(severity),
		Summary:       fmt.Sprintf("transaction %s: %d violations (%d critical)", report.TransactionId, len(violations), critical),
		Details:       details,
		CorrelationId: report.CorrelationId,
		DetectedAt:    time.Now().UTC(),
	}
	if _, err := config.PublishIntegrityAlert(ctx, alert); err != nil {
		config.LogError(n.Logger, "notifier.go", "NotifyViolations", "Publishing integrity alert", report.ID, err)
	}
}
