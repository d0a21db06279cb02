package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type StakingEventKind string

const (
	StakingEventReward  StakingEventKind = "reward"
	StakingEventPenalty StakingEventKind = "penalty"
)

type StakingRecord struct {
	ID            string           `gorm:"primary_key;size:36" json:"id"`
	UserId        string           `gorm:"size:36;index;not null" json:"user_id"`
	EventKind     StakingEventKind `gorm:"type:enum('reward','penalty');index;not null" json:"event_kind"`
	StakedAmount  decimal.Decimal  `gorm:"type:decimal(30,10);not null" json:"staked_amount"`
	Amount        decimal.Decimal  `gorm:"type:decimal(30,10);not null" json:"amount"`
	RatePerEpoch  decimal.Decimal  `gorm:"type:decimal(12,8);not null;default:0" json:"rate_per_epoch"`
	Epochs        int              `gorm:"not null;default:1" json:"epochs"`
	BalanceBefore decimal.Decimal  `gorm:"type:decimal(30,10);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal  `gorm:"type:decimal(30,10);not null" json:"balance_after"`
	AppliedAt     time.Time        `gorm:"index;not null" json:"applied_at"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}
