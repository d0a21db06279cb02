package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/betledger_backend/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RollbackCoordinator reverses the financial effect of a transaction. Either
// every compensating write lands or none of them do.
type RollbackCoordinator interface {
	Rollback(ctx context.Context, kind models.TransactionKind, transactionId string) error
}

type GormRollbackCoordinator struct {
	DB *gorm.DB
}

func (c *GormRollbackCoordinator) Rollback(ctx context.Context, kind models.TransactionKind, transactionId string) error {
	return c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch kind {
		case models.TransactionBetSettlement:
			return rollbackBetSettlement(tx, transactionId)
		case models.TransactionSpinPayout:
			return rollbackSpinPayout(tx, transactionId)
		case models.TransactionStakingReward, models.TransactionStakingPenalty:
			return rollbackStakingEvent(tx, transactionId)
		case models.TransactionWalletTransfer:
			return rollbackWalletTransfer(tx, transactionId)
		}
		return fmt.Errorf("no rollback handler for transaction kind %s", kind)
	})
}

func lockUser(tx *gorm.DB, userId string) (*models.User, error) {
	var u models.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", userId).First(&u).Error; err != nil {
		return nil, fmt.Errorf("lock user %s: %w", userId, err)
	}
	return &u, nil
}

func rollbackBetSettlement(tx *gorm.DB, settlementId string) error {
	var s models.Settlement
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", settlementId).First(&s).Error; err != nil {
		return fmt.Errorf("lock settlement %s: %w", settlementId, err)
	}
	if s.Status == models.SettlementStatusReversed {
		return nil
	}
	var bet models.Bet
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", s.BetId).First(&bet).Error; err != nil {
		return fmt.Errorf("lock bet %s: %w", s.BetId, err)
	}
	u, err := lockUser(tx, s.UserId)
	if err != nil {
		return err
	}
	// Un-credit the payout and return the bet to its unsettled state so the
	// settlement pipeline can take another pass at it.
	if bet.Status == models.BetStatusWon {
		u.WalletBalance = u.WalletBalance.Sub(bet.Payout)
		if err := tx.Model(&models.User{}).Where("id = ?", u.ID).
			Update("wallet_balance", u.WalletBalance).Error; err != nil {
			return err
		}
	}
	if err := tx.Model(&models.Bet{}).Where("id = ?", bet.ID).Updates(map[string]interface{}{
		"status":     models.BetStatusPending,
		"payout":     "0",
		"settled_at": nil,
	}).Error; err != nil {
		return err
	}
	return tx.Model(&models.Settlement{}).Where("id = ?", s.ID).
		Update("status", models.SettlementStatusReversed).Error
}

func rollbackSpinPayout(tx *gorm.DB, spinId string) error {
	var sp models.Spin
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", spinId).First(&sp).Error; err != nil {
		return fmt.Errorf("lock spin %s: %w", spinId, err)
	}
	if sp.Status == models.SpinStatusVoided {
		return nil
	}
	u, err := lockUser(tx, sp.UserId)
	if err != nil {
		return err
	}
	if sp.Status == models.SpinStatusPaid {
		if err := tx.Model(&models.User{}).Where("id = ?", u.ID).
			Update("wallet_balance", u.WalletBalance.Sub(sp.PayoutAmount)).Error; err != nil {
			return err
		}
	}
	return tx.Model(&models.Spin{}).Where("id = ?", sp.ID).Updates(map[string]interface{}{
		"status":  models.SpinStatusVoided,
		"paid_at": nil,
	}).Error
}

func rollbackStakingEvent(tx *gorm.DB, recordId string) error {
	var r models.StakingRecord
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", recordId).First(&r).Error; err != nil {
		return fmt.Errorf("lock staking record %s: %w", recordId, err)
	}
	u, err := lockUser(tx, r.UserId)
	if err != nil {
		return err
	}
	// Rewards credit and penalties debit; rollback restores the pre-event
	// balance either way.
	delta := r.BalanceAfter.Sub(r.BalanceBefore)
	return tx.Model(&models.User{}).Where("id = ?", u.ID).
		Update("wallet_balance", u.WalletBalance.Sub(delta)).Error
}

func rollbackWalletTransfer(tx *gorm.DB, transferId string) error {
	var t models.WalletTransfer
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", transferId).First(&t).Error; err != nil {
		return fmt.Errorf("lock wallet transfer %s: %w", transferId, err)
	}
	if t.Status == models.TransferStatusReversed {
		return nil
	}
	sender, err := lockUser(tx, t.SenderId)
	if err != nil {
		return err
	}
	recipient, err := lockUser(tx, t.RecipientId)
	if err != nil {
		return err
	}
	if err := tx.Model(&models.User{}).Where("id = ?", sender.ID).
		Update("wallet_balance", sender.WalletBalance.Add(t.Amount)).Error; err != nil {
		return err
	}
	if err := tx.Model(&models.User{}).Where("id = ?", recipient.ID).
		Update("wallet_balance", recipient.WalletBalance.Sub(t.Amount)).Error; err != nil {
		return err
	}
	reversalRef := uuid.New().String()
	now := time.Now()
	return tx.Model(&models.WalletTransfer{}).Where("id = ?", t.ID).Updates(map[string]interface{}{
		"status":             models.TransferStatusReversed,
		"reversal_reference": reversalRef,
		"completed_at":       now,
	}).Error
}
