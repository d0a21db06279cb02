package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusCompleted TransferStatus = "completed"
	TransferStatusReversed  TransferStatus = "reversed"
)

type WalletTransfer struct {
	ID                string          `gorm:"primary_key;size:36" json:"id"`
	SenderId          string          `gorm:"size:36;index;not null" json:"sender_id"`
	RecipientId       string          `gorm:"size:36;index;not null" json:"recipient_id"`
	Amount            decimal.Decimal `gorm:"type:decimal(30,10);not null" json:"amount"`
	SenderBalance     decimal.Decimal `gorm:"type:decimal(30,10);not null" json:"sender_balance"`
	RecipientBalance  decimal.Decimal `gorm:"type:decimal(30,10);not null" json:"recipient_balance"`
	Status            TransferStatus  `gorm:"type:enum('pending','completed','reversed');index;not null" json:"status"`
	ReversalReference *string         `gorm:"size:36" json:"reversal_reference"`
	CompletedAt       *time.Time      `json:"completed_at"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
