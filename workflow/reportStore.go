package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/betledger_backend/models"
	"bitbucket.org/mmdatafocus/betledger_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReconciliationReportStore persists reconciliation reports. Create is called
// before any balance is fetched so a crashed run stays visible as a
// stuck-running row.
type ReconciliationReportStore interface {
	Create(ctx context.Context, report *models.ReconciliationReport) error
	Save(ctx context.Context, report *models.ReconciliationReport) error
}

type ValidationReportStore interface {
	Create(ctx context.Context, report *models.TransactionValidationReport) error
	Save(ctx context.Context, report *models.TransactionValidationReport) error
}

type GormReconciliationStore struct {
	DB *gorm.DB
}

func (s *GormReconciliationStore) Create(ctx context.Context, report *models.ReconciliationReport) error {
	err := s.DB.WithContext(ctx).Create(report).Error
	// Duplicate id: regenerate and retry once.
	if utils.IsDuplicateKeyError(err) {
		report.ID = uuid.NewString()
		err = s.DB.WithContext(ctx).Create(report).Error
	}
	return err
}

func (s *GormReconciliationStore) Save(ctx context.Context, report *models.ReconciliationReport) error {
	return s.DB.WithContext(ctx).Save(report).Error
}

type GormValidationStore struct {
	DB *gorm.DB
}

func (s *GormValidationStore) Create(ctx context.Context, report *models.TransactionValidationReport) error {
	err := s.DB.WithContext(ctx).Create(report).Error
	if utils.IsDuplicateKeyError(err) {
		report.ID = uuid.NewString()
		err = s.DB.WithContext(ctx).Create(report).Error
	}
	return err
}

func (s *GormValidationStore) Save(ctx context.Context, report *models.TransactionValidationReport) error {
	return s.DB.WithContext(ctx).Save(report).Error
}
