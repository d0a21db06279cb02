package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/betledger_backend/config"
	"bitbucket.org/mmdatafocus/betledger_backend/models"
	"bitbucket.org/mmdatafocus/betledger_backend/utils"
)

type fakeTransactionLister struct {
	ids  map[models.TransactionKind][]string
	errs map[models.TransactionKind]error
}

func (l *fakeTransactionLister) RecentTransactionIds(ctx context.Context, kind models.TransactionKind, since time.Time) ([]string, error) {
	if err := l.errs[kind]; err != nil {
		return nil, err
	}
	return l.ids[kind], nil
}

// kindFailRollback succeeds except for one transaction kind.
type kindFailRollback struct {
	failKind models.TransactionKind
	calls    []string
}

func (r *kindFailRollback) Rollback(ctx context.Context, kind models.TransactionKind, transactionId string) error {
	r.calls = append(r.calls, string(kind)+":"+transactionId)
	if kind == r.failKind {
		return errors.New("deadlock detected")
	}
	return nil
}

func newSweepEngine(lister TransactionLister, rb RollbackCoordinator, rules func(models.TransactionKind) []RegisteredRule) *ValidationEngine {
	return &ValidationEngine{
		Store:    &fakeValidationStore{},
		Rollback: rb,
		Notifier: &fakeNotifier{},
		Logger:   quietLogger(),
		Rules:    rules,
		Lister:   lister,
	}
}

func TestBatchValidation_CountsOutcomes(t *testing.T) {
	lister := &fakeTransactionLister{ids: map[models.TransactionKind][]string{
		models.TransactionBetSettlement:  {"s1"},
		models.TransactionSpinPayout:     {"p1", "p2"},
		models.TransactionStakingReward:  {"r1"},
		models.TransactionWalletTransfer: {"w1"},
	}}
	rb := &kindFailRollback{failKind: models.TransactionWalletTransfer}
	engine := newSweepEngine(lister, rb, func(kind models.TransactionKind) []RegisteredRule {
		switch kind {
		case models.TransactionBetSettlement:
			return []RegisteredRule{failingRule("atomicity", true)}
		case models.TransactionSpinPayout:
			return []RegisteredRule{passingRule("balance")}
		case models.TransactionStakingReward:
			return []RegisteredRule{failingRule("reward", false)}
		case models.TransactionWalletTransfer:
			return []RegisteredRule{failingRule("sender_balance", true)}
		}
		return nil
	})

	since := time.Now().UTC().Add(-time.Hour)
	summary, err := engine.ValidateRecentTransactions(context.Background(), since, config.DefaultValidationConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Validated != 5 {
		t.Fatalf("expected 5 validated, got %d", summary.Validated)
	}
	if summary.Passed != 2 {
		t.Fatalf("expected 2 passed, got %d", summary.Passed)
	}
	if summary.RolledBack != 1 {
		t.Fatalf("expected 1 rolled back, got %d", summary.RolledBack)
	}
	if summary.Failed != 2 {
		t.Fatalf("expected 2 failed, got %d", summary.Failed)
	}
	if summary.Errors != 1 {
		t.Fatalf("expected 1 error, got %d", summary.Errors)
	}
	if len(rb.calls) != 2 {
		t.Fatalf("expected 2 rollback attempts, got %v", rb.calls)
	}
	if !summary.Since.Equal(since) {
		t.Fatalf("cutoff not recorded: %v", summary.Since)
	}
}

func TestBatchValidation_ListerError_ReturnsPartialCounts(t *testing.T) {
	listErr := errors.New("table lock timeout")
	lister := &fakeTransactionLister{
		ids:  map[models.TransactionKind][]string{models.TransactionBetSettlement: {"s1"}},
		errs: map[models.TransactionKind]error{models.TransactionSpinPayout: listErr},
	}
	engine := newSweepEngine(lister, &fakeRollback{}, func(models.TransactionKind) []RegisteredRule {
		return []RegisteredRule{passingRule("balance")}
	})

	summary, err := engine.ValidateRecentTransactions(context.Background(), time.Now().UTC().Add(-time.Hour), config.DefaultValidationConfig())
	if !errors.Is(err, listErr) {
		t.Fatalf("expected the listing error, got %v", err)
	}
	if summary == nil || summary.Validated != 1 || summary.Passed != 1 {
		t.Fatalf("partial counts lost: %+v", summary)
	}
}

func TestBatchValidation_Disabled(t *testing.T) {
	engine := newSweepEngine(&fakeTransactionLister{}, &fakeRollback{}, nil)

	cfg := config.DefaultValidationConfig()
	cfg.Enabled = false

	summary, err := engine.ValidateRecentTransactions(context.Background(), time.Now().UTC(), cfg)
	if !errors.Is(err, utils.ErrValidationDisabled) {
		t.Fatalf("expected ErrValidationDisabled, got %v", err)
	}
	if summary != nil {
		t.Fatal("disabled sweep must not produce a summary")
	}
}
