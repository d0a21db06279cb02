package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/betledger_backend/chain"
	"bitbucket.org/mmdatafocus/betledger_backend/config"
	"bitbucket.org/mmdatafocus/betledger_backend/models"
	"bitbucket.org/mmdatafocus/betledger_backend/models/reports"
	"bitbucket.org/mmdatafocus/betledger_backend/workflow"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

func main() {
	kindFlag := flag.String("kind", "manual", "Report kind: manual, scheduled or ledger_consistency")
	tolerance := flag.String("tolerance", "", "Optional: tolerance threshold override (decimal)")
	noAutoCorrect := flag.Bool("no-auto-correct", false, "Disable auto-correction of rounding differences")
	noLock := flag.Bool("no-lock", false, "Skip the Redis run lock (single-operator use only)")
	excelOut := flag.String("excel", "", "Optional: write the report as an xlsx file to this path")
	flag.Parse()

	_ = godotenv.Load()

	kind := models.ReportKind(strings.TrimSpace(*kindFlag))
	switch kind {
	case models.ReportKindManual, models.ReportKindScheduled, models.ReportKindLedgerConsistency:
	default:
		fmt.Fprintf(os.Stderr, "unknown report kind %q\n", *kindFlag)
		os.Exit(1)
	}

	cfg, err := config.ReconciliationConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if strings.TrimSpace(*tolerance) != "" {
		d, err := decimal.NewFromString(strings.TrimSpace(*tolerance))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid tolerance: %v\n", err)
			os.Exit(1)
		}
		cfg.ToleranceThreshold = d
	}
	if *noAutoCorrect {
		cfg.AutoCorrectRoundingDifferences = false
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

	engine := &workflow.ReconciliationEngine{
		Store:    &workflow.GormReconciliationStore{DB: db},
		Source:   &workflow.LedgerChainSource{DB: db, Chain: client},
		Notifier: &workflow.PubSubNotifier{Logger: logger},
		Logger:   logger,
		Ledger:   &workflow.GormLedgerChecker{DB: db},
	}

	ctx := context.Background()
	var report *models.ReconciliationReport
	run := func(ctx context.Context) error {
		var runErr error
		report, runErr = engine.Run(ctx, kind, cfg)
		return runErr
	}

	if *noLock {
		err = run(ctx)
	} else {
		config.ConnectRedisWithRetry()
		err = workflow.WithReconciliationLock(ctx, config.GetRedisLock(), kind, run)
	}
	if errors.Is(err, workflow.ErrRunInProgress) {
		fmt.Fprintln(os.Stderr, "a reconciliation run of this kind is already in progress")
		os.Exit(1)
	}
	if err != nil {
		if report != nil {
			fmt.Fprintf(os.Stderr, "run failed (report %s): %v\n", report.ID, err)
		} else {
			fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		}
		os.Exit(1)
	}

	if *excelOut != "" {
		f, err := reports.BuildReconciliationWorkbook(report)
		if err == nil {
			err = f.SaveAs(*excelOut)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "writing %s: %v\n", *excelOut, err)
			os.Exit(1)
		}
	}

	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))
}
