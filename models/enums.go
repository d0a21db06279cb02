package models

import "fmt"

type ReportStatus string

const (
	ReportStatusRunning   ReportStatus = "running"
	ReportStatusCompleted ReportStatus = "completed"
	ReportStatusFailed    ReportStatus = "failed"
)

type ReportKind string

const (
	ReportKindScheduled         ReportKind = "scheduled"
	ReportKindManual            ReportKind = "manual"
	ReportKindLedgerConsistency ReportKind = "ledger_consistency"
)

// InconsistencyKind categorizes what a reconciliation run found.
type InconsistencyKind string

const (
	InconsistencyNegativeBalance        InconsistencyKind = "negative_balance"
	InconsistencyOrphanedBet            InconsistencyKind = "orphaned_bet"
	InconsistencyMismatchedSettlement   InconsistencyKind = "mismatched_settlement"
	InconsistencyStuckPendingSettlement InconsistencyKind = "stuck_pending_settlement"
	InconsistencyLedgerMismatch         InconsistencyKind = "ledger_mismatch"
	InconsistencyOnchainDiscrepancy     InconsistencyKind = "onchain_balance_discrepancy"
	InconsistencyOffchainDiscrepancy    InconsistencyKind = "offchain_balance_discrepancy"
	InconsistencyRoundingDifference     InconsistencyKind = "rounding_difference"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// DiscrepancyStatus transitions forward only: detected -> flagged|resolved|ignored.
type DiscrepancyStatus string

const (
	DiscrepancyDetected DiscrepancyStatus = "detected"
	DiscrepancyFlagged  DiscrepancyStatus = "flagged"
	DiscrepancyResolved DiscrepancyStatus = "resolved"
	DiscrepancyIgnored  DiscrepancyStatus = "ignored"
)

type ValidationStatus string

const (
	ValidationStatusPending    ValidationStatus = "pending"
	ValidationStatusPassed     ValidationStatus = "passed"
	ValidationStatusFailed     ValidationStatus = "failed"
	ValidationStatusRolledBack ValidationStatus = "rolled_back"
)

type TransactionKind string

const (
	TransactionBetSettlement  TransactionKind = "bet_settlement"
	TransactionSpinPayout     TransactionKind = "spin_payout"
	TransactionStakingReward  TransactionKind = "staking_reward"
	TransactionStakingPenalty TransactionKind = "staking_penalty"
	TransactionWalletTransfer TransactionKind = "wallet_transfer"
)

func ParseTransactionKind(s string) (TransactionKind, error) {
	switch TransactionKind(s) {
	case TransactionBetSettlement, TransactionSpinPayout, TransactionStakingReward,
		TransactionStakingPenalty, TransactionWalletTransfer:
		return TransactionKind(s), nil
	}
	return "", fmt.Errorf("invalid transaction kind %q", s)
}

type ValidationKind string

const (
	ValidationBalanceIntegrity      ValidationKind = "balance_integrity"
	ValidationStateConsistency      ValidationKind = "state_consistency"
	ValidationAtomicityCheck        ValidationKind = "atomicity_check"
	ValidationOnchainReconciliation ValidationKind = "onchain_reconciliation"
)

type ViolationKind string

const (
	ViolationPartialUpdate       ViolationKind = "partial_update"
	ViolationBalanceMismatch     ViolationKind = "balance_mismatch"
	ViolationStateInconsistency  ViolationKind = "state_inconsistency"
	ViolationOnchainDiscrepancy  ViolationKind = "onchain_discrepancy"
	ViolationTransactionRollback ViolationKind = "transaction_rollback"
)
