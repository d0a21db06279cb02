package chain

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/betledger_backend/config"
	"github.com/shopspring/decimal"
)

// Fetcher is the balance-lookup capability the engines consume.
type Fetcher interface {
	GetBalances(ctx context.Context, addresses []string) (map[string]decimal.Decimal, error)
}

// CachedFetcher puts a short-lived Redis snapshot in front of the balance
// authority. Reconciliation sweeps every user; re-running a failed sweep within
// the TTL should not hammer the authority a second time. Degrades to a direct
// call when Redis is unavailable.
type CachedFetcher struct {
	Inner Fetcher
	TTL   time.Duration
}

func NewCachedFetcher(inner Fetcher) *CachedFetcher {
	return &CachedFetcher{Inner: inner, TTL: 2 * time.Minute}
}

func (c *CachedFetcher) GetBalances(ctx context.Context, addresses []string) (map[string]decimal.Decimal, error) {
	key := snapshotKey(addresses)

	cached := map[string]string{}
	if ok, err := config.GetRedisObject(key, &cached); err == nil && ok {
		out := make(map[string]decimal.Decimal, len(cached))
		valid := true
		for addr, val := range cached {
			d, derr := decimal.NewFromString(val)
			if derr != nil {
				valid = false
				break
			}
			out[addr] = d
		}
		if valid {
			return out, nil
		}
		_ = config.RemoveRedisKey(key)
	}

	fresh, err := c.Inner.GetBalances(ctx, addresses)
	if err != nil {
		return nil, err
	}

	toCache := make(map[string]string, len(fresh))
	for addr, bal := range fresh {
		toCache[addr] = bal.String()
	}
	_ = config.SetRedisObject(key, toCache, c.TTL)

	return fresh, nil
}

func snapshotKey(addresses []string) string {
	sorted := append([]string(nil), addresses...)
	sort.Strings(sorted)
	h := fnv.New64a()
	h.Write([]byte(strings.Join(sorted, ",")))
	return fmt.Sprintf("chain:balances:%016x", h.Sum64())
}
