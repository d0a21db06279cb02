package models

import (
	"time"
)

// ValidationRule is a registry entry. Rules are immutable; the registry is the
// only shared state in the validation pipeline. The check implementation is a
// typed function held by the registry, not persisted — only the rule metadata
// is embedded in reports.
type ValidationRule struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// Critical failures count toward the rollback threshold.
	Critical bool `json:"critical"`
}

// ValidationResult is produced exactly once per rule per run, including when
// the check itself blew up (recorded as a failed result carrying the error).
type ValidationResult struct {
	RuleName      string    `json:"rule_name"`
	Passed        bool      `json:"passed"`
	ActualValue   string    `json:"actual_value,omitempty"`
	ExpectedValue string    `json:"expected_value,omitempty"`
	Message       string    `json:"message,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// IntegrityViolation is derived from a failed result (or, on the
// reconciliation side, a non-tolerant discrepancy). Owned by its parent report.
type IntegrityViolation struct {
	Kind            ViolationKind `json:"kind"`
	Severity        Severity      `json:"severity"`
	Description     string        `json:"description"`
	AffectedEntity  string        `json:"affected_entity"`
	AffectedId      string        `json:"affected_id"`
	CurrentValue    string        `json:"current_value,omitempty"`
	ExpectedValue   string        `json:"expected_value,omitempty"`
	DetectedAt      time.Time     `json:"detected_at"`
	ResolvedAt      *time.Time    `json:"resolved_at,omitempty"`
	ResolutionNotes string        `json:"resolution_notes,omitempty"`
}

// TransactionValidationReport is one validation run for one transaction (or
// batch item). pending -> passed|failed|rolled_back; terminal rows are
// immutable and retained for audit.
type TransactionValidationReport struct {
	ID              string           `gorm:"primary_key;size:36" json:"id"`
	Status          ValidationStatus `gorm:"type:enum('pending','passed','failed','rolled_back');index;index:idx_txval_status_created,priority:1;not null;default:'pending'" json:"status"`
	TransactionKind TransactionKind  `gorm:"type:enum('bet_settlement','spin_payout','staking_reward','staking_penalty','wallet_transfer');index;not null" json:"transaction_kind"`
	ValidationKind  ValidationKind   `gorm:"type:enum('balance_integrity','state_consistency','atomicity_check','onchain_reconciliation');index;not null" json:"validation_kind"`
	TransactionId   string           `gorm:"size:64;index;not null" json:"transaction_id"`
	ReferenceId     *string          `gorm:"size:64;index" json:"reference_id"`
	UserId          *string          `gorm:"size:36;index" json:"user_id"`
	CorrelationId   string           `gorm:"size:64;index" json:"correlation_id"`

	StartedAt   time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`

	ValidationRules   []ValidationRule     `gorm:"type:json;serializer:json" json:"validation_rules"`
	ValidationResults []ValidationResult   `gorm:"type:json;serializer:json" json:"validation_results"`
	Violations        []IntegrityViolation `gorm:"type:json;serializer:json" json:"violations"`

	TotalChecks        int `gorm:"not null;default:0" json:"total_checks"`
	PassedChecks       int `gorm:"not null;default:0" json:"passed_checks"`
	FailedChecks       int `gorm:"not null;default:0" json:"failed_checks"`
	CriticalViolations int `gorm:"not null;default:0" json:"critical_violations"`

	RollbackTriggered   bool       `gorm:"not null;default:false" json:"rollback_triggered"`
	RollbackReason      *string    `gorm:"type:text" json:"rollback_reason"`
	RollbackCompletedAt *time.Time `json:"rollback_completed_at"`

	Metadata map[string]string `gorm:"type:json;serializer:json" json:"metadata"`

	ErrorMessage *string   `gorm:"type:text" json:"error_message"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index:idx_txval_status_created,priority:2" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CountsBalance holds for every report whose rule loop ran to completion:
// every rule yields exactly one result, passed or failed.
func (r *TransactionValidationReport) CountsBalance() bool {
	return r.PassedChecks+r.FailedChecks == r.TotalChecks
}

func (r *TransactionValidationReport) IsTerminal() bool {
	switch r.Status {
	case ValidationStatusPassed, ValidationStatusFailed, ValidationStatusRolledBack:
		return true
	}
	return false
}
