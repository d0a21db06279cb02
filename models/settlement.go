package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type SettlementStatus string

const (
	SettlementStatusPending   SettlementStatus = "pending"
	SettlementStatusConfirmed SettlementStatus = "confirmed"
	SettlementStatusFailed    SettlementStatus = "failed"
	SettlementStatusReversed  SettlementStatus = "reversed"
)

// Settlement records the on-chain leg of a bet settlement. The off-chain bet
// and on-chain settlement are written by separate code paths, which is exactly
// the divergence the atomicity and reconciliation checks look for.
type Settlement struct {
	ID          string           `gorm:"primary_key;size:36" json:"id"`
	BetId       string           `gorm:"size:36;index;not null" json:"bet_id"`
	UserId      string           `gorm:"size:36;index;not null" json:"user_id"`
	Amount      decimal.Decimal  `gorm:"type:decimal(30,10);not null" json:"amount"`
	TxHash      string           `gorm:"size:128;index" json:"tx_hash"`
	Status      SettlementStatus `gorm:"type:enum('pending','confirmed','failed','reversed');index;not null" json:"status"`
	ConfirmedAt *time.Time       `json:"confirmed_at"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}
