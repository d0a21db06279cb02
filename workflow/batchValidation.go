package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/betledger_backend/config"
	"bitbucket.org/mmdatafocus/betledger_backend/models"
	"bitbucket.org/mmdatafocus/betledger_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// BatchValidationSummary aggregates one sweep over recent transactions.
type BatchValidationSummary struct {
	Since      time.Time `json:"since"`
	Validated  int       `json:"validated"`
	Passed     int       `json:"passed"`
	Failed     int       `json:"failed"`
	RolledBack int       `json:"rolled_back"`
	Errors     int       `json:"errors"`
}

// TransactionLister lists the ids of transactions created since a cutoff,
// per kind. The engine only needs ids; loading the rows is the rules' job.
type TransactionLister interface {
	RecentTransactionIds(ctx context.Context, kind models.TransactionKind, since time.Time) ([]string, error)
}

// GormTransactionLister reads recent transaction ids from the ledger tables.
type GormTransactionLister struct {
	DB *gorm.DB
}

func (l *GormTransactionLister) RecentTransactionIds(ctx context.Context, kind models.TransactionKind, since time.Time) ([]string, error) {
	q := l.DB.WithContext(ctx)
	switch kind {
	case models.TransactionBetSettlement:
		q = q.Model(&models.Settlement{}).Where("created_at >= ?", since)
	case models.TransactionSpinPayout:
		q = q.Model(&models.Spin{}).Where("created_at >= ?", since)
	case models.TransactionStakingReward:
		q = q.Model(&models.StakingRecord{}).Where("created_at >= ? AND event_kind = ?", since, models.StakingEventReward)
	case models.TransactionStakingPenalty:
		q = q.Model(&models.StakingRecord{}).Where("created_at >= ? AND event_kind = ?", since, models.StakingEventPenalty)
	case models.TransactionWalletTransfer:
		q = q.Model(&models.WalletTransfer{}).Where("created_at >= ?", since)
	default:
		return nil, fmt.Errorf("no transaction table for kind %s", kind)
	}

	var ids []string
	err := q.Order("created_at ASC").Pluck("id", &ids).Error
	return ids, err
}

// ValidateRecentTransactions sweeps every transaction created since the given
// cutoff through the validation engine, one kind at a time. Individual
// failures never stop the sweep; they are counted and logged.
func (e *ValidationEngine) ValidateRecentTransactions(ctx context.Context, since time.Time, cfg config.ValidationConfig) (*BatchValidationSummary, error) {
	if !cfg.Enabled {
		return nil, utils.ErrValidationDisabled
	}
	lister := e.Lister
	if lister == nil {
		if e.Env == nil || e.Env.DB == nil {
			return nil, errors.New("batch validation requires a transaction lister or a database-backed check environment")
		}
		lister = &GormTransactionLister{DB: e.Env.DB}
	}

	summary := &BatchValidationSummary{Since: since}

	targets := []struct {
		kind           models.TransactionKind
		validationKind models.ValidationKind
	}{
		{models.TransactionBetSettlement, models.ValidationAtomicityCheck},
		{models.TransactionSpinPayout, models.ValidationBalanceIntegrity},
		{models.TransactionStakingReward, models.ValidationStateConsistency},
		{models.TransactionStakingPenalty, models.ValidationStateConsistency},
		{models.TransactionWalletTransfer, models.ValidationBalanceIntegrity},
	}

	for _, target := range targets {
		ids, err := lister.RecentTransactionIds(ctx, target.kind, since)
		if err != nil {
			return summary, err
		}
		for _, id := range ids {
			report, err := e.ValidateTransaction(ctx, ValidationRequest{
				TransactionId:   id,
				TransactionKind: target.kind,
				ValidationKind:  target.validationKind,
			}, cfg)
			summary.Validated++
			if err != nil {
				summary.Errors++
			}
			if report == nil {
				continue
			}
			switch report.Status {
			case models.ValidationStatusPassed:
				summary.Passed++
			case models.ValidationStatusRolledBack:
				summary.RolledBack++
			case models.ValidationStatusFailed:
				summary.Failed++
			}
		}
	}

	e.Logger.WithFields(logrus.Fields{
		"module":      "batchValidation.go",
		"since":       since,
		"validated":   summary.Validated,
		"passed":      summary.Passed,
		"failed":      summary.Failed,
		"rolled_back": summary.RolledBack,
		"errors":      summary.Errors,
	}).Info("batch validation sweep completed")

	return summary, nil
}
