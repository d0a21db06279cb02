// Package chain talks to the blockchain balance authority. The core treats it
// as an opaque balance-lookup capability; how balances are computed on-chain is
// not this package's problem.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Client struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
	limiter   <-chan time.Time
}

// NewClient builds a balance authority client from env:
// - CHAIN_API_BASE_URL (default https://horizon.betledger.internal)
// - CHAIN_API_KEY (optional)
// - CHAIN_API_KEY_HEADER (default X-API-Key)
// - CHAIN_RATE_LIMIT_PER_MIN (default 60)
func NewClient() (*Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("CHAIN_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://horizon.betledger.internal"
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("CHAIN_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	rateLimitPerMin := int64(60)
	if v := strings.TrimSpace(os.Getenv("CHAIN_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    strings.TrimSpace(os.Getenv("CHAIN_API_KEY")),
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   time.Tick(interval),
	}, nil
}

type balancesRequest struct {
	Addresses []string `json:"addresses"`
}

type balancesResponse struct {
	Balances map[string]string `json:"balances"`
}

const batchSize = 200

// GetBalances fetches on-chain balances keyed by wallet address. Addresses the
// authority has never seen are simply absent from the result; callers must
// treat a missing entry as zero, never as "skip".
func (c *Client) GetBalances(ctx context.Context, addresses []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(addresses))
	for start := 0; start < len(addresses); start += batchSize {
		end := start + batchSize
		if end > len(addresses) {
			end = len(addresses)
		}
		part, err := c.getBalancesBatch(ctx, addresses[start:end])
		if err != nil {
			return nil, err
		}
		for addr, bal := range part {
			out[addr] = bal
		}
	}
	return out, nil
}

func (c *Client) getBalancesBatch(ctx context.Context, addresses []string) (map[string]decimal.Decimal, error) {
	select {
	case <-c.limiter:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	body, err := json.Marshal(balancesRequest{Addresses: addresses})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/balances", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHdr, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("balance authority returned %d: %s", resp.StatusCode, truncate(string(raw), 512))
	}

	var parsed balancesResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode balance authority response: %w", err)
	}
	if parsed.Balances == nil {
		return nil, errors.New("balance authority response has no balances field")
	}

	out := make(map[string]decimal.Decimal, len(parsed.Balances))
	for addr, val := range parsed.Balances {
		d, err := decimal.NewFromString(val)
		if err != nil {
			return nil, fmt.Errorf("balance authority returned non-decimal balance %q for %s: %w", val, addr, err)
		}
		out[addr] = d
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
