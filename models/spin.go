package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type SpinStatus string

const (
	SpinStatusPending SpinStatus = "pending"
	SpinStatusPaid    SpinStatus = "paid"
	SpinStatusVoided  SpinStatus = "voided"
)

type Spin struct {
	ID           string          `gorm:"primary_key;size:36" json:"id"`
	UserId       string          `gorm:"size:36;index;not null" json:"user_id"`
	Wager        decimal.Decimal `gorm:"type:decimal(30,10);not null" json:"wager"`
	PayoutAmount decimal.Decimal `gorm:"type:decimal(30,10);not null;default:0" json:"payout_amount"`
	Status       SpinStatus      `gorm:"type:enum('pending','paid','voided');index;not null" json:"status"`
	PaidAt       *time.Time      `json:"paid_at"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
