package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID            string          `gorm:"primary_key;size:36" json:"id"`
	Email         string          `gorm:"size:255;uniqueIndex;not null" json:"email"`
	WalletAddress string          `gorm:"size:64;uniqueIndex;not null" json:"wallet_address"`
	WalletBalance decimal.Decimal `gorm:"type:decimal(30,10);not null;default:0" json:"wallet_balance"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
