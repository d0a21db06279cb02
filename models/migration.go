package models

import (
	"bitbucket.org/mmdatafocus/betledger_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{},
		&Bet{}, &Settlement{},
		&Spin{},
		&StakingRecord{},
		&WalletTransfer{},
		&ReconciliationReport{},
		&TransactionValidationReport{},
	)
	if err != nil {
		logger := config.GetLogger()
		config.LogError(logger, "migration.go", "MigrateTable", "AutoMigrate", nil, err)
	}
}
