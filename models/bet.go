package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BetStatus string

const (
	BetStatusPending BetStatus = "pending"
	BetStatusWon     BetStatus = "won"
	BetStatusLost    BetStatus = "lost"
	BetStatusVoided  BetStatus = "voided"
)

type Bet struct {
	ID        string          `gorm:"primary_key;size:36" json:"id"`
	UserId    string          `gorm:"size:36;index;not null" json:"user_id"`
	MatchId   string          `gorm:"size:36;index" json:"match_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(30,10);not null" json:"amount"`
	Odds      decimal.Decimal `gorm:"type:decimal(12,4);not null" json:"odds"`
	Payout    decimal.Decimal `gorm:"type:decimal(30,10);not null;default:0" json:"payout"`
	Status    BetStatus       `gorm:"type:enum('pending','won','lost','voided');index;not null" json:"status"`
	SettledAt *time.Time      `json:"settled_at"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
