package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/betledger_backend/chain"
	"bitbucket.org/mmdatafocus/betledger_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PairedBalance is one user's off-chain and on-chain view at snapshot time.
type PairedBalance struct {
	UserId          string
	UserEmail       string
	OffchainBalance decimal.Decimal
	OnchainBalance  decimal.Decimal
}

// BalanceSource produces the paired snapshot the reconciliation engine runs
// over. Owned by an external collaborator; the engine only consumes it.
type BalanceSource interface {
	FetchPairedBalances(ctx context.Context) ([]PairedBalance, error)
}

// LedgerChainSource pairs the relational ledger (users table) with the
// blockchain balance authority. A user the authority has no entry for gets an
// on-chain balance of zero; users are never skipped.
type LedgerChainSource struct {
	DB    *gorm.DB
	Chain chain.Fetcher
}

func (s *LedgerChainSource) FetchPairedBalances(ctx context.Context) ([]PairedBalance, error) {
	var users []models.User
	if err := s.DB.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}

	addresses := make([]string, 0, len(users))
	for _, u := range users {
		addresses = append(addresses, u.WalletAddress)
	}

	onchain := map[string]decimal.Decimal{}
	if len(addresses) > 0 {
		var err error
		onchain, err = s.Chain.GetBalances(ctx, addresses)
		if err != nil {
			return nil, fmt.Errorf("fetch on-chain balances: %w", err)
		}
	}

	paired := make([]PairedBalance, 0, len(users))
	for _, u := range users {
		bal, ok := onchain[u.WalletAddress]
		if !ok {
			bal = decimal.Zero
		}
		paired = append(paired, PairedBalance{
			UserId:          u.ID,
			UserEmail:       u.Email,
			OffchainBalance: u.WalletBalance,
			OnchainBalance:  bal,
		})
	}
	return paired, nil
}
