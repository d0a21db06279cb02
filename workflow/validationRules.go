package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/betledger_backend/chain"
	"bitbucket.org/mmdatafocus/betledger_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CheckEnv carries the read-only capabilities rule checks run against. Checks
// never write; compensating writes belong to the rollback coordinator alone.
type CheckEnv struct {
	DB        *gorm.DB
	Chain     chain.Fetcher
	Tolerance decimal.Decimal
}

// CheckContext identifies the transaction under validation.
type CheckContext struct {
	TransactionId   string
	TransactionKind models.TransactionKind
	ReferenceId     *string
	UserId          *string
}

// CheckFunc is a single invariant check. A returned error means the check
// could not be executed at all; the engine treats that as a critical failure,
// never as a pass.
type CheckFunc func(ctx context.Context, env *CheckEnv, tc CheckContext) (models.ValidationResult, error)

// RegisteredRule pairs persisted rule metadata with its concrete check. The
// check reference is typed and bound at compile time, so there is no "unknown
// validation function" failure mode.
type RegisteredRule struct {
	models.ValidationRule
	Check CheckFunc
}

// RulesFor returns the ordered rule set for a transaction kind. The tables are
// fixed and immutable; unknown kinds yield nil and the engine records a
// vacuous pass (see ValidationEngine).
func RulesFor(kind models.TransactionKind) []RegisteredRule {
	switch kind {
	case models.TransactionBetSettlement:
		return []RegisteredRule{
			{models.ValidationRule{Name: "balance_integrity_check", Description: "Verify user balance integrity after settlement", Critical: true}, checkBalanceIntegrity},
			{models.ValidationRule{Name: "bet_state_consistency", Description: "Verify bet status matches settlement outcome", Critical: true}, checkBetStateConsistency},
			{models.ValidationRule{Name: "atomicity_verification", Description: "Verify all related records updated consistently", Critical: true}, checkAtomicity},
			{models.ValidationRule{Name: "onchain_reconciliation", Description: "Verify on-chain state matches off-chain records", Critical: false}, checkOnchainReconciliation},
		}
	case models.TransactionSpinPayout:
		return []RegisteredRule{
			{models.ValidationRule{Name: "wallet_balance_check", Description: "Verify user wallet balance after spin payout", Critical: true}, checkWalletBalance},
			{models.ValidationRule{Name: "spin_record_integrity", Description: "Verify spin record matches payout amount", Critical: true}, checkSpinRecordIntegrity},
			{models.ValidationRule{Name: "transaction_chain_validation", Description: "Verify spin belongs to a known user", Critical: true}, checkTransactionChain},
		}
	case models.TransactionStakingReward:
		return []RegisteredRule{
			{models.ValidationRule{Name: "reward_amount_validation", Description: "Verify staking reward amount calculation", Critical: true}, checkRewardAmount},
			{models.ValidationRule{Name: "wallet_balance_integrity", Description: "Verify wallet balance after reward distribution", Critical: true}, checkWalletBalanceIntegrity},
			{models.ValidationRule{Name: "staking_record_consistency", Description: "Verify staking records are properly updated", Critical: true}, checkStakingRecordConsistency},
		}
	case models.TransactionStakingPenalty:
		return []RegisteredRule{
			{models.ValidationRule{Name: "penalty_calculation_check", Description: "Verify penalty amount calculation", Critical: true}, checkPenaltyCalculation},
			{models.ValidationRule{Name: "balance_deduction_validation", Description: "Verify balance deduction matches penalty", Critical: true}, checkBalanceDeduction},
		}
	case models.TransactionWalletTransfer:
		return []RegisteredRule{
			{models.ValidationRule{Name: "sender_balance_check", Description: "Verify sender balance after transfer", Critical: true}, checkSenderBalance},
			{models.ValidationRule{Name: "recipient_balance_check", Description: "Verify recipient balance updated correctly", Critical: true}, checkRecipientBalance},
			{models.ValidationRule{Name: "transaction_amount_integrity", Description: "Verify transfer amount consistency", Critical: true}, checkTransferAmountIntegrity},
		}
	}
	return nil
}

// ViolationKindForRule maps a failed rule onto the violation taxonomy.
func ViolationKindForRule(ruleName string) models.ViolationKind {
	switch ruleName {
	case "balance_integrity_check", "wallet_balance_check", "wallet_balance_integrity",
		"sender_balance_check", "recipient_balance_check", "balance_deduction_validation":
		return models.ViolationBalanceMismatch
	case "bet_state_consistency", "spin_record_integrity", "staking_record_consistency",
		"penalty_calculation_check", "reward_amount_validation":
		return models.ViolationStateInconsistency
	case "atomicity_verification", "transaction_chain_validation", "transaction_amount_integrity":
		return models.ViolationPartialUpdate
	case "onchain_reconciliation":
		return models.ViolationOnchainDiscrepancy
	}
	return models.ViolationTransactionRollback
}

// AffectedEntityForKind names the entity a violation points at.
func AffectedEntityForKind(kind models.TransactionKind) string {
	switch kind {
	case models.TransactionBetSettlement:
		return "Bet"
	case models.TransactionSpinPayout:
		return "Spin"
	case models.TransactionStakingReward, models.TransactionStakingPenalty:
		return "StakingRecord"
	case models.TransactionWalletTransfer:
		return "WalletTransfer"
	}
	return "Transaction"
}

func pass(rule string, msg string) models.ValidationResult {
	return models.ValidationResult{RuleName: rule, Passed: true, Message: msg}
}

func failResult(rule string, msg string, actual string, expected string) models.ValidationResult {
	return models.ValidationResult{RuleName: rule, Passed: false, Message: msg, ActualValue: actual, ExpectedValue: expected}
}

func loadSettlement(ctx context.Context, env *CheckEnv, id string) (*models.Settlement, error) {
	var s models.Settlement
	if err := env.DB.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, fmt.Errorf("settlement %s: %w", id, err)
	}
	return &s, nil
}

func loadUser(ctx context.Context, env *CheckEnv, id string) (*models.User, error) {
	var u models.User
	if err := env.DB.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, fmt.Errorf("user %s: %w", id, err)
	}
	return &u, nil
}

func checkBalanceIntegrity(ctx context.Context, env *CheckEnv, tc CheckContext) (models.ValidationResult, error) {
	s, err := loadSettlement(ctx, env, tc.TransactionId)
	if err != nil {
		return models.ValidationResult{}, err
	}
	u, err := loadUser(ctx, env, s.UserId)
	if err != nil {
		return models.ValidationResult{}, err
	}
	if u.WalletBalance.IsNegative() {
		return failResult("balance_integrity_check",
			"user balance is negative after settlement",
			u.WalletBalance.String(), ">= 0"), nil
	}
	return pass("balance_integrity_check", "balance integrity verified"), nil
}

func checkBetStateConsistency(ctx context.Context, env *CheckEnv, tc CheckContext) (models.ValidationResult, error) {
	s, err := loadSettlement(ctx, env, tc.TransactionId)
	if err != nil {
		return models.ValidationResult{}, err
	}
	var bet models.Bet
	if err := env.DB.WithContext(ctx).Where("id = ?", s.BetId).First(&bet).Error; err != nil {
		return models.ValidationResult{}, fmt.Errorf("bet %s: %w", s.BetId, err)
	}
	if bet.Status == models.BetStatusPending {
		return failResult("bet_state_consistency",
			"bet is still pending after a settlement was recorded",
			string(bet.Status), "won|lost|voided"), nil
	}
	if bet.Status == models.BetStatusWon && !bet.Payout.Equal(s.Amount) {
		return failResult("bet_state_consistency",
			"won bet payout does not match settlement amount",
			bet.Payout.String(), s.Amount.String()), nil
	}
	if bet.Status == models.BetStatusLost && !bet.Payout.IsZero() {
		return failResult("bet_state_consistency",
			"lost bet carries a non-zero payout",
			bet.Payout.String(), "0"), nil
	}
	return pass("bet_state_consistency", "bet state matches settlement outcome"), nil
}

func checkAtomicity(ctx context.Context, env *CheckEnv, tc CheckContext) (models.ValidationResult, error) {
	s, err := loadSettlement(ctx, env, tc.TransactionId)
	if err != nil {
		return models.ValidationResult{}, err
	}
	var bet models.Bet
	if err := env.DB.WithContext(ctx).Where("id = ?", s.BetId).First(&bet).Error; err != nil {
		return models.ValidationResult{}, fmt.Errorf("bet %s: %w", s.BetId, err)
	}
	if s.Status == models.SettlementStatusConfirmed && bet.SettledAt == nil {
		return failResult("atomicity_verification",
			"settlement confirmed but bet was never stamped settled",
			"settled_at=nil", "settled_at set"), nil
	}
	var confirmed int64
	if err := env.DB.WithContext(ctx).Model(&models.Settlement{}).
		Where("bet_id = ? AND status = ?", s.BetId, models.SettlementStatusConfirmed).
		Count(&confirmed).Error; err != nil {
		return models.ValidationResult{}, err
	}
	if confirmed > 1 {
		return failResult("atomicity_verification",
			"bet has multiple confirmed settlements",
			fmt.Sprintf("%d", confirmed), "1"), nil
	}
	return pass("atomicity_verification", "related records updated consistently"), nil
}

func checkOnchainReconciliation(ctx context.Context, env *CheckEnv, tc CheckContext) (models.ValidationResult, error) {
	s, err := loadSettlement(ctx, env, tc.TransactionId)
	if err != nil {
		return models.ValidationResult{}, err
	}
	u, err := loadUser(ctx, env, s.UserId)
	if err != nil {
		return models.ValidationResult{}, err
	}
	balances, err := env.Chain.GetBalances(ctx, []string{u.WalletAddress})
	if err != nil {
		return models.ValidationResult{}, fmt.Errorf("on-chain lookup for %s: %w", u.WalletAddress, err)
	}
	onchain := balances[u.WalletAddress] // missing entry is zero
	diff := u.WalletBalance.Sub(onchain).Abs()
	if diff.GreaterThan(env.Tolerance) {
		return failResult("onchain_reconciliation",
			"on-chain balance diverges from ledger beyond tolerance",
			onchain.String(), u.WalletBalance.String()), nil
	}
	return pass("onchain_reconciliation", "on-chain state matches off-chain records"), nil
}

func loadSpin(ctx context.Context, env *CheckEnv, id string) (*models.Spin, error) {
	var sp models.Spin
	if err := env.DB.WithContext(ctx).Where("id = ?", id).First(&sp).Error; err != nil {
		return nil, fmt.Errorf("spin %s: %w", id, err)
	}
	return &sp, nil
}

func checkWalletBalance(ctx context.Context, env *CheckEnv, tc CheckContext) (models.ValidationResult, error) {
	sp, err := loadSpin(ctx, env, tc.TransactionId)
	if err != nil {
		return models.ValidationResult{}, err
	}
	u, err := loadUser(ctx, env, sp.UserId)
	if err != nil {
		return models.ValidationResult{}, err
	}
	if u.WalletBalance.IsNegative() {
		return failResult("wallet_balance_check",
			"user balance is negative after spin payout",
			u.WalletBalance.String(), ">= 0"), nil
	}
	return pass("wallet_balance_check", "wallet balance verified"), nil
}

func checkSpinRecordIntegrity(ctx context.Context, env *CheckEnv, tc CheckContext) (models.ValidationResult, error) {
	sp, err := loadSpin(ctx, env, tc.TransactionId)
	if err != nil {
		return models.ValidationResult{}, err
	}
	if sp.Status == models.SpinStatusPaid && sp.PaidAt == nil {
		return failResult("spin_record_integrity",
			"spin marked paid without a payout timestamp",
			"paid_at=nil", "paid_at set"), nil
	}
	if sp.PayoutAmount.IsNegative() {
		return failResult("spin_record_integrity",
			"spin payout amount is negative",
			sp.PayoutAmount.String(), ">= 0"), nil
	}
	return pass("spin_record_integrity", "spin record matches payout"), nil
}

func checkTransactionChain(ctx context.Context, env *CheckEnv, tc CheckContext) (models.ValidationResult, error) {
	sp, err := loadSpin(ctx, env, tc.TransactionId)
	if err != nil {
		return models.ValidationResult{}, err
	}
	var count int64
	if err := env.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", sp.UserId).Count(&count).Error; err != nil {
		return models.ValidationResult{}, err
	}
	if count == 0 {
		return failResult("transaction_chain_validation",
			"spin references a user that does not exist",
			"0 users", "1 user"), nil
	}
	return pass("transaction_chain_validation", "transaction chain is consistent"), nil
}

func loadStakingRecord(ctx context.Context, env *CheckEnv, id string) (*models.StakingRecord, error) {
	var r models.StakingRecord
	if err := env.DB.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, fmt.Errorf("staking record %s: %w", id, err)
	}
	return &r, nil
}

func checkRewardAmount(ctx context.Context, env *CheckEnv, tc CheckContext) (models.ValidationResult, error) {
	r, err := loadStakingRecord(ctx, env, tc.TransactionId)
	if err != nil {
		return models.ValidationResult{}, err
	}
	expected := r.StakedAmount.Mul(r.RatePerEpoch).Mul(decimal.NewFromInt(int64(r.Epochs)))
	if r.Amount.Sub(expected).Abs().GreaterThan(env.Tolerance) {
		return failResult("reward_amount_validation",
			"reward amount does not match staked amount * rate * epochs",
			r.Amount.String(), expected.String()), nil
	}
	return pass("reward_amount_validation", "reward amount verified"), nil
}

func checkWalletBalanceIntegrity(ctx context.Context, env *CheckEnv, tc CheckContext) (models.ValidationResult, error) {
	r, err := loadStakingRecord(ctx, env, tc.TransactionId)
	if err != nil {
		return models.ValidationResult{}, err
	}
	delta := r.BalanceAfter.Sub(r.BalanceBefore)
	if !delta.Equal(r.Amount) {
		return failResult("wallet_balance_integrity",
			"balance delta does not match reward amount",
			delta.String(), r.Amount.String()), nil
	}
	return pass("wallet_balance_integrity", "wallet balance integrity verified"), nil
}

func checkStakingRecordConsistency(ctx context.Context, env *CheckEnv, tc CheckContext) (models.ValidationResult, error) {
	r, err := loadStakingRecord(ctx, env, tc.TransactionId)
	if err != nil {
		return models.ValidationResult{}, err
	}
	if r.EventKind != models.StakingEventReward {
		return failResult("staking_record_consistency",
			"record is not a reward event",
			string(r.EventKind), string(models.StakingEventReward)), nil
	}
	if !r.StakedAmount.IsPositive() {
		return failResult("staking_record_consistency",
			"reward applied against a non-positive stake",
			r.StakedAmount.String(), "> 0"), nil
	}
	return pass("staking_record_consistency", "staking record is consistent"), nil
}

func checkPenaltyCalculation(ctx context.Context, env *CheckEnv, tc CheckContext) (models.ValidationResult, error) {
	r, err := loadStakingRecord(ctx, env, tc.TransactionId)
	if err != nil {
		return models.ValidationResult{}, err
	}
	if r.EventKind != models.StakingEventPenalty {
		return failResult("penalty_calculation_check",
			"record is not a penalty event",
			string(r.EventKind), string(models.StakingEventPenalty)), nil
	}
	if r.Amount.GreaterThan(r.StakedAmount) {
		return failResult("penalty_calculation_check",
			"penalty exceeds the staked amount",
			r.Amount.String(), "<= "+r.StakedAmount.String()), nil
	}
	return pass("penalty_calculation_check", "penalty amount verified"), nil
}

func checkBalanceDeduction(ctx context.Context, env *CheckEnv, tc CheckContext) (models.ValidationResult, error) {
	r, err := loadStakingRecord(ctx, env, tc.TransactionId)
	if err != nil {
		return models.ValidationResult{}, err
	}
	deducted := r.BalanceBefore.Sub(r.BalanceAfter)
	if !deducted.Equal(r.Amount) {
		return failResult("balance_deduction_validation",
			"balance deduction does not match penalty amount",
			deducted.String(), r.Amount.String()), nil
	}
	return pass("balance_deduction_validation", "balance deduction verified"), nil
}

func loadTransfer(ctx context.Context, env *CheckEnv, id string) (*models.WalletTransfer, error) {
	var t models.WalletTransfer
	if err := env.DB.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, fmt.Errorf("wallet transfer %s: %w", id, err)
	}
	return &t, nil
}

func checkSenderBalance(ctx context.Context, env *CheckEnv, tc CheckContext) (models.ValidationResult, error) {
	t, err := loadTransfer(ctx, env, tc.TransactionId)
	if err != nil {
		return models.ValidationResult{}, err
	}
	if t.SenderBalance.IsNegative() {
		return failResult("sender_balance_check",
			"sender balance went negative",
			t.SenderBalance.String(), ">= 0"), nil
	}
	return pass("sender_balance_check", "sender balance verified"), nil
}

func checkRecipientBalance(ctx context.Context, env *CheckEnv, tc CheckContext) (models.ValidationResult, error) {
	t, err := loadTransfer(ctx, env, tc.TransactionId)
	if err != nil {
		return models.ValidationResult{}, err
	}
	if _, err := loadUser(ctx, env, t.RecipientId); err != nil {
		return models.ValidationResult{}, err
	}
	if t.RecipientBalance.LessThan(t.Amount) {
		return failResult("recipient_balance_check",
			"recipient balance after credit is below the transferred amount",
			t.RecipientBalance.String(), ">= "+t.Amount.String()), nil
	}
	return pass("recipient_balance_check", "recipient balance verified"), nil
}

func checkTransferAmountIntegrity(ctx context.Context, env *CheckEnv, tc CheckContext) (models.ValidationResult, error) {
	t, err := loadTransfer(ctx, env, tc.TransactionId)
	if err != nil {
		return models.ValidationResult{}, err
	}
	if !t.Amount.IsPositive() {
		return failResult("transaction_amount_integrity",
			"transfer amount is not positive",
			t.Amount.String(), "> 0"), nil
	}
	if t.Status == models.TransferStatusCompleted && t.CompletedAt == nil {
		return failResult("transaction_amount_integrity",
			"completed transfer has no completion timestamp",
			"completed_at=nil", "completed_at set"), nil
	}
	return pass("transaction_amount_integrity", "transfer amount consistent"), nil
}
