package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceDiscrepancy is one user's divergence inside a single report. It is
// owned by its parent report and never referenced outside it.
type BalanceDiscrepancy struct {
	UserId             string            `json:"user_id"`
	UserEmail          string            `json:"user_email"`
	OffchainBalance    decimal.Decimal   `json:"offchain_balance"`
	OnchainBalance     decimal.Decimal   `json:"onchain_balance"`
	Difference         decimal.Decimal   `json:"difference"`
	ToleranceThreshold decimal.Decimal   `json:"tolerance_threshold"`
	IsWithinTolerance  bool              `json:"is_within_tolerance"`
	Kind               InconsistencyKind `json:"kind"`
	Severity           Severity          `json:"severity"`
	Status             DiscrepancyStatus `json:"status"`
	DetectedAt         time.Time         `json:"detected_at"`
	ResolvedAt         *time.Time        `json:"resolved_at,omitempty"`
	ResolutionNotes    string            `json:"resolution_notes,omitempty"`
}

// ReconciliationReport is one reconciliation run. Created in running state and
// persisted immediately so a crash leaves a visible stuck-running row rather
// than a silently lost run. Once terminal the row is immutable; historical
// reports are never deleted here (archival is an external concern).
type ReconciliationReport struct {
	ID            string       `gorm:"primary_key;size:36" json:"id"`
	Status        ReportStatus `gorm:"type:enum('running','completed','failed');index;index:idx_recon_status_created,priority:1;not null;default:'running'" json:"status"`
	Kind          ReportKind   `gorm:"type:enum('scheduled','manual','ledger_consistency');index;not null" json:"kind"`
	CorrelationId string       `gorm:"size:64;index" json:"correlation_id"`
	StartedAt     time.Time    `gorm:"not null" json:"started_at"`
	CompletedAt   *time.Time   `json:"completed_at"`

	ToleranceThreshold decimal.Decimal `gorm:"type:decimal(20,10)" json:"tolerance_threshold"`

	TotalUsersChecked      int `gorm:"not null;default:0" json:"total_users_checked"`
	UsersWithDiscrepancies int `gorm:"not null;default:0" json:"users_with_discrepancies"`
	UsersWithinTolerance   int `gorm:"not null;default:0" json:"users_within_tolerance"`

	TotalDiscrepancyAmount decimal.Decimal `gorm:"type:decimal(30,10);not null;default:0" json:"total_discrepancy_amount"`
	AverageDiscrepancy     decimal.Decimal `gorm:"type:decimal(30,10);not null;default:0" json:"average_discrepancy"`
	MaxDiscrepancy         decimal.Decimal `gorm:"type:decimal(30,10);not null;default:0" json:"max_discrepancy"`
	MinDiscrepancy         decimal.Decimal `gorm:"type:decimal(30,10);not null;default:0" json:"min_discrepancy"`

	NegativeBalanceCount        int `gorm:"not null;default:0" json:"negative_balance_count"`
	OrphanedBetCount            int `gorm:"not null;default:0" json:"orphaned_bet_count"`
	MismatchedSettlementCount   int `gorm:"not null;default:0" json:"mismatched_settlement_count"`
	StuckPendingSettlementCount int `gorm:"not null;default:0" json:"stuck_pending_settlement_count"`
	LedgerMismatchCount         int `gorm:"not null;default:0" json:"ledger_mismatch_count"`
	OnchainDiscrepancyCount     int `gorm:"not null;default:0" json:"onchain_discrepancy_count"`
	OffchainDiscrepancyCount    int `gorm:"not null;default:0" json:"offchain_discrepancy_count"`
	RoundingDifferenceCount     int `gorm:"not null;default:0" json:"rounding_difference_count"`
	TotalInconsistencies        int `gorm:"not null;default:0" json:"total_inconsistencies"`

	BalanceDiscrepancies []BalanceDiscrepancy `gorm:"type:json;serializer:json" json:"balance_discrepancies"`

	ErrorMessage *string   `gorm:"type:text" json:"error_message"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index:idx_recon_status_created,priority:2" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CountsBalance reports whether the within-tolerance and discrepancy counters
// cover every user checked. Holds for every completed report.
func (r *ReconciliationReport) CountsBalance() bool {
	return r.UsersWithDiscrepancies+r.UsersWithinTolerance == r.TotalUsersChecked
}

func (r *ReconciliationReport) IsTerminal() bool {
	return r.Status == ReportStatusCompleted || r.Status == ReportStatusFailed
}
