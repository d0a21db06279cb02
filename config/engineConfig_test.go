package config

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestDefaultReconciliationConfig(t *testing.T) {
	cfg := DefaultReconciliationConfig()
	if !cfg.ToleranceThreshold.Equal(decimal.New(1, -8)) {
		t.Fatalf("expected tolerance 1e-8, got %s", cfg.ToleranceThreshold)
	}
	if !cfg.AutoCorrectionThreshold.Equal(decimal.New(1, -6)) {
		t.Fatalf("expected auto-correction threshold 1e-6, got %s", cfg.AutoCorrectionThreshold)
	}
	if !cfg.AutoCorrectRoundingDifferences {
		t.Fatal("auto-correction should default on")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestReconciliationConfig_Validate(t *testing.T) {
	cfg := DefaultReconciliationConfig()
	cfg.AutoCorrectionThreshold = decimal.New(1, -10)
	if err := cfg.Validate(); err == nil {
		t.Fatal("auto-correction threshold below tolerance must be rejected")
	}

	cfg = DefaultReconciliationConfig()
	cfg.ToleranceThreshold = decimal.New(-1, -8)
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative tolerance must be rejected")
	}
}

func TestReconciliationConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("RECON_TOLERANCE_THRESHOLD", "0.0001")
	t.Setenv("RECON_AUTO_CORRECTION_THRESHOLD", "0.001")
	t.Setenv("RECON_AUTO_CORRECT", "false")

	cfg, err := ReconciliationConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.ToleranceThreshold.Equal(decimal.RequireFromString("0.0001")) {
		t.Fatalf("tolerance override not applied: %s", cfg.ToleranceThreshold)
	}
	if cfg.AutoCorrectRoundingDifferences {
		t.Fatal("RECON_AUTO_CORRECT=false not applied")
	}
}

func TestReconciliationConfigFromEnv_RejectsInvertedThresholds(t *testing.T) {
	t.Setenv("RECON_TOLERANCE_THRESHOLD", "0.01")
	t.Setenv("RECON_AUTO_CORRECTION_THRESHOLD", "0.0001")

	if _, err := ReconciliationConfigFromEnv(); err == nil {
		t.Fatal("expected validation error for tolerance > auto-correction threshold")
	}
}

func TestReconciliationConfigFromEnv_BadDecimal(t *testing.T) {
	t.Setenv("RECON_TOLERANCE_THRESHOLD", "not-a-number")
	if _, err := ReconciliationConfigFromEnv(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidationConfigFromEnv(t *testing.T) {
	t.Setenv("TXVALIDATION_AUTO_ROLLBACK", "false")
	t.Setenv("TXVALIDATION_CRITICAL_THRESHOLD", "3")

	cfg, err := ValidationConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AutoRollbackOnCritical {
		t.Fatal("TXVALIDATION_AUTO_ROLLBACK=false not applied")
	}
	if cfg.CriticalViolationThreshold != 3 {
		t.Fatalf("expected threshold 3, got %d", cfg.CriticalViolationThreshold)
	}
	if !cfg.Enabled {
		t.Fatal("validation should default on")
	}
}
