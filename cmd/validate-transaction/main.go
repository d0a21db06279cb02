package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/betledger_backend/chain"
	"bitbucket.org/mmdatafocus/betledger_backend/config"
	"bitbucket.org/mmdatafocus/betledger_backend/models"
	"bitbucket.org/mmdatafocus/betledger_backend/utils"
	"bitbucket.org/mmdatafocus/betledger_backend/workflow"
	"github.com/joho/godotenv"
)

func main() {
	txID := flag.String("transaction-id", "", "Required: transaction id to validate")
	kindFlag := flag.String("kind", "", "Required: bet_settlement, spin_payout, staking_reward, staking_penalty or wallet_transfer")
	sweepHours := flag.Int("sweep-hours", 0, "Sweep every transaction of the last N hours instead of a single one")
	noRollback := flag.Bool("no-rollback", false, "Report only; never roll back even on critical violations")
	flag.Parse()

	_ = godotenv.Load()

	sweep := *sweepHours > 0
	if !sweep && strings.TrimSpace(*txID) == "" {
		fmt.Fprintln(os.Stderr, "--transaction-id is required (or use --sweep-hours)")
		os.Exit(1)
	}

	cfg, err := config.ValidationConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *noRollback {
		cfg.AutoRollbackOnCritical = false
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()

	client, err := chain.NewClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chain client: %v\n", err)
		os.Exit(1)
	}
	reconCfg, err := config.ReconciliationConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	engine := &workflow.ValidationEngine{
		Store:    &workflow.GormValidationStore{DB: db},
		Rollback: &workflow.GormRollbackCoordinator{DB: db},
		Notifier: &workflow.PubSubNotifier{Logger: logger},
		Logger:   logger,
		Env: &workflow.CheckEnv{
			DB:        db,
			Chain:     client,
			Tolerance: reconCfg.ToleranceThreshold,
		},
	}

	ctx := context.Background()

	if sweep {
		since := time.Now().UTC().Add(-time.Duration(*sweepHours) * time.Hour)
		summary, err := engine.ValidateRecentTransactions(ctx, since, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sweep failed: %v\n", err)
			os.Exit(1)
		}
		out, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Println(string(out))
		return
	}

	kind, err := models.ParseTransactionKind(strings.TrimSpace(*kindFlag))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	report, err := engine.ValidateTransaction(ctx, workflow.ValidationRequest{
		TransactionId:   strings.TrimSpace(*txID),
		TransactionKind: kind,
	}, cfg)
	if errors.Is(err, utils.ErrValidationDisabled) {
		fmt.Fprintln(os.Stderr, "transaction validation is disabled (TXVALIDATION_ENABLED=false)")
		os.Exit(1)
	}
	if err != nil && report == nil {
		fmt.Fprintf(os.Stderr, "validation failed: %v\n", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))
	if err != nil {
		fmt.Fprintf(os.Stderr, "validation error: %v\n", err)
		os.Exit(1)
	}
	if report.Status == models.ValidationStatusFailed || report.Status == models.ValidationStatusRolledBack {
		os.Exit(2)
	}
}
