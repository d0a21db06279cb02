package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ReconciliationConfig controls one reconciliation run. Engines take this by
// value; there is no engine-internal global state (the only shared state in the
// whole pipeline is the immutable validation rule registry).
type ReconciliationConfig struct {
	// Max |offchain - onchain| considered negligible. No discrepancy is recorded
	// at or below this.
	ToleranceThreshold decimal.Decimal `json:"tolerance_threshold"`
	// When enabled, discrepancies in (ToleranceThreshold, AutoCorrectionThreshold]
	// are marked resolved as rounding drift. Only the discrepancy status is
	// advanced; balances are never rewritten here.
	AutoCorrectRoundingDifferences bool            `json:"auto_correct_rounding_differences"`
	AutoCorrectionThreshold        decimal.Decimal `json:"auto_correction_threshold"`
	EnableLedgerConsistencyCheck   bool            `json:"enable_ledger_consistency_check"`
	NotifyOnCriticalDiscrepancies  bool            `json:"notify_on_critical_discrepancies"`
}

// ValidationConfig controls transaction validation runs.
type ValidationConfig struct {
	Enabled                    bool `json:"enabled"`
	AutoRollbackOnCritical     bool `json:"auto_rollback_on_critical"`
	CriticalViolationThreshold int  `json:"critical_violation_threshold" validate:"gte=0"`
	NotifyOnViolations         bool `json:"notify_on_violations"`
}

var configValidate = validator.New()

// DefaultReconciliationConfig returns the documented defaults:
// tolerance 1e-8, auto-correction threshold 1e-6, all flags on.
func DefaultReconciliationConfig() ReconciliationConfig {
	return ReconciliationConfig{
		ToleranceThreshold:             decimal.New(1, -8),
		AutoCorrectRoundingDifferences: true,
		AutoCorrectionThreshold:        decimal.New(1, -6),
		EnableLedgerConsistencyCheck:   true,
		NotifyOnCriticalDiscrepancies:  true,
	}
}

func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		Enabled:                    true,
		AutoRollbackOnCritical:     true,
		CriticalViolationThreshold: 1,
		NotifyOnViolations:         true,
	}
}

// ReconciliationConfigFromEnv loads overrides on top of the defaults.
//
// Env:
// - RECON_TOLERANCE_THRESHOLD (decimal, default 0.00000001)
// - RECON_AUTO_CORRECT (bool, default true)
// - RECON_AUTO_CORRECTION_THRESHOLD (decimal, default 0.000001)
// - RECON_ENABLE_LEDGER_CONSISTENCY (bool, default true)
// - RECON_NOTIFY_ON_CRITICAL (bool, default true)
func ReconciliationConfigFromEnv() (ReconciliationConfig, error) {
	cfg := DefaultReconciliationConfig()
	if v := strings.TrimSpace(os.Getenv("RECON_TOLERANCE_THRESHOLD")); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return cfg, fmt.Errorf("RECON_TOLERANCE_THRESHOLD: %w", err)
		}
		cfg.ToleranceThreshold = d
	}
	if v := strings.TrimSpace(os.Getenv("RECON_AUTO_CORRECTION_THRESHOLD")); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return cfg, fmt.Errorf("RECON_AUTO_CORRECTION_THRESHOLD: %w", err)
		}
		cfg.AutoCorrectionThreshold = d
	}
	cfg.AutoCorrectRoundingDifferences = boolFromEnv("RECON_AUTO_CORRECT", cfg.AutoCorrectRoundingDifferences)
	cfg.EnableLedgerConsistencyCheck = boolFromEnv("RECON_ENABLE_LEDGER_CONSISTENCY", cfg.EnableLedgerConsistencyCheck)
	cfg.NotifyOnCriticalDiscrepancies = boolFromEnv("RECON_NOTIFY_ON_CRITICAL", cfg.NotifyOnCriticalDiscrepancies)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate enforces AutoCorrectionThreshold >= ToleranceThreshold; anything
// else makes the classification bands overlap.
func (c ReconciliationConfig) Validate() error {
	if c.ToleranceThreshold.IsNegative() {
		return fmt.Errorf("tolerance threshold must not be negative, got %s", c.ToleranceThreshold)
	}
	if c.AutoCorrectionThreshold.LessThan(c.ToleranceThreshold) {
		return fmt.Errorf("auto-correction threshold %s is below tolerance threshold %s",
			c.AutoCorrectionThreshold, c.ToleranceThreshold)
	}
	return nil
}

// ValidationConfigFromEnv loads overrides on top of the defaults.
//
// Env:
// - TXVALIDATION_ENABLED (bool, default true)
// - TXVALIDATION_AUTO_ROLLBACK (bool, default true)
// - TXVALIDATION_CRITICAL_THRESHOLD (int, default 1)
// - TXVALIDATION_NOTIFY_ON_VIOLATIONS (bool, default true)
func ValidationConfigFromEnv() (ValidationConfig, error) {
	cfg := DefaultValidationConfig()
	cfg.Enabled = boolFromEnv("TXVALIDATION_ENABLED", cfg.Enabled)
	cfg.AutoRollbackOnCritical = boolFromEnv("TXVALIDATION_AUTO_ROLLBACK", cfg.AutoRollbackOnCritical)
	cfg.CriticalViolationThreshold = intFromEnv("TXVALIDATION_CRITICAL_THRESHOLD", cfg.CriticalViolationThreshold)
	cfg.NotifyOnViolations = boolFromEnv("TXVALIDATION_NOTIFY_ON_VIOLATIONS", cfg.NotifyOnViolations)

	if err := configValidate.Struct(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func boolFromEnv(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
