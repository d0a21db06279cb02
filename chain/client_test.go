package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	t.Setenv("CHAIN_API_BASE_URL", srv.URL)
	t.Setenv("CHAIN_API_KEY", "test-key")
	t.Setenv("CHAIN_RATE_LIMIT_PER_MIN", "60000")

	client, err := NewClient()
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestGetBalances_ParsesDecimals(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/balances" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-API-Key"); got != "test-key" {
			t.Errorf("api key header not sent, got %q", got)
		}
		var req struct {
			Addresses []string `json:"addresses"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Addresses) != 2 {
			t.Errorf("expected 2 addresses, got %d", len(req.Addresses))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"balances": map[string]string{
				"addr-1": "100.0000000001",
				// addr-2 unknown to the authority: absent on purpose
			},
		})
	})

	balances, err := client.GetBalances(context.Background(), []string{"addr-1", "addr-2"})
	if err != nil {
		t.Fatalf("GetBalances: %v", err)
	}
	want := decimal.RequireFromString("100.0000000001")
	if !balances["addr-1"].Equal(want) {
		t.Fatalf("addr-1: expected %s, got %s", want, balances["addr-1"])
	}
	if _, ok := balances["addr-2"]; ok {
		t.Fatal("unknown address must be absent, not zero-filled by the client")
	}
}

func TestGetBalances_NonOKStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream node syncing", http.StatusBadGateway)
	})

	if _, err := client.GetBalances(context.Background(), []string{"addr-1"}); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}

func TestGetBalances_RejectsNonDecimalBalance(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"balances": map[string]string{"addr-1": "NaN-ish"},
		})
	})

	if _, err := client.GetBalances(context.Background(), []string{"addr-1"}); err == nil {
		t.Fatal("expected error on unparseable balance")
	}
}

func TestGetBalances_BatchesLargeAddressSets(t *testing.T) {
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req struct {
			Addresses []string `json:"addresses"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Addresses) > batchSize {
			t.Errorf("batch of %d exceeds limit %d", len(req.Addresses), batchSize)
		}
		balances := map[string]string{}
		for _, a := range req.Addresses {
			balances[a] = "1"
		}
		json.NewEncoder(w).Encode(map[string]any{"balances": balances})
	})

	addresses := make([]string, batchSize+50)
	for i := range addresses {
		addresses[i] = "addr-" + strconv.Itoa(i)
	}
	balances, err := client.GetBalances(context.Background(), addresses)
	if err != nil {
		t.Fatalf("GetBalances: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 batch calls, got %d", calls)
	}
	if len(balances) != len(addresses) {
		t.Fatalf("expected %d balances, got %d", len(addresses), len(balances))
	}
}
