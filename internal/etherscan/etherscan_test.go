package etherscan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/chaincrawl/internal/label"
	"github.com/nao1215/chaincrawl/internal/model"
)

func addr(n int) model.Address {
	return model.MustParseAddress(fmt.Sprintf("0x%040x", n))
}

func hash(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

// newTestClient starts a server running handler and returns a client for it.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient("test-key",
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithRateLimit(0),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return c
}

func fastRetry() label.RetryConfig {
	return label.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		BackoffFactor:  2,
	}
}

// TestNewClient tests constructor validation and defaults.
func TestNewClient(t *testing.T) {
	t.Parallel()

	if _, err := NewClient("  "); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}

	c, err := NewClient("key", WithChainID(8453))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ChainID() != 8453 {
		t.Errorf("expected chain id 8453, got %d", c.ChainID())
	}
	if c.baseURL != DefaultBaseURL {
		t.Errorf("expected default base URL, got %q", c.baseURL)
	}
}

// TestGraphProviderEdges tests txlist aggregation.
func TestGraphProviderEdges(t *testing.T) {
	t.Parallel()

	root := addr(1)
	body := fmt.Sprintf(`{"status":"1","message":"OK","result":[
		{"hash":%q,"from":%q,"to":%q,"contractAddress":""},
		{"hash":%q,"from":%q,"to":%q,"contractAddress":""},
		{"hash":%q,"from":%q,"to":%q,"contractAddress":""},
		{"hash":%q,"from":%q,"to":"","contractAddress":%q},
		{"hash":%q,"from":%q,"to":"","contractAddress":""}
	]}`,
		hash(1), root, addr(2),
		hash(2), addr(3), root,
		hash(3), root, addr(2),
		hash(4), root, addr(4),
		hash(5), root,
	)

	var query atomic.Value
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query.Store(r.URL.Query())
		_, _ = io.WriteString(w, body)
	})

	edges, err := NewGraphProvider(c).Edges(context.Background(), root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []struct {
		from, to model.Address
		txs      int
	}{
		{from: root, to: addr(2), txs: 2},
		{from: addr(3), to: root, txs: 1},
		{from: root, to: addr(4), txs: 1},
		{from: root, to: model.ZeroAddress, txs: 1},
	}
	if len(edges) != len(want) {
		t.Fatalf("expected %d edges, got %d: %+v", len(want), len(edges), edges)
	}
	for i, w := range want {
		if edges[i].From != w.from || edges[i].To != w.to || len(edges[i].Txs) != w.txs {
			t.Errorf("edge %d: expected %s->%s with %d txs, got %+v", i, w.from, w.to, w.txs, edges[i])
		}
	}
	if got := edges[0].Txs[1].Hex(); got != hash(3) {
		t.Errorf("expected second tx %s, got %s", hash(3), got)
	}

	q, _ := query.Load().(url.Values)
	for key, val := range map[string]string{
		"module": "account", "action": "txlist", "address": root.String(),
		"chainid": "1", "apikey": "test-key",
	} {
		if len(q[key]) != 1 || q[key][0] != val {
			t.Errorf("query %s: expected %q, got %v", key, val, q[key])
		}
	}
}

// TestGraphProviderErrors tests error classification on txlist.
func TestGraphProviderErrors(t *testing.T) {
	t.Parallel()

	t.Run("no transactions is empty", func(t *testing.T) {
		t.Parallel()

		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"status":"0","message":"No transactions found","result":[]}`)
		})
		edges, err := NewGraphProvider(c).Edges(context.Background(), addr(1))
		if err != nil || len(edges) != 0 {
			t.Errorf("expected no edges and no error, got %v, %v", edges, err)
		}
	})

	t.Run("rate limit is retried", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) == 1 {
				_, _ = io.WriteString(w, `{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`)
				return
			}
			_, _ = io.WriteString(w, `{"status":"1","message":"OK","result":[]}`)
		})
		_, err := NewGraphProvider(c, WithGraphRetry(fastRetry())).Edges(context.Background(), addr(1))
		if err != nil {
			t.Errorf("expected success after retry, got %v", err)
		}
		if calls.Load() != 2 {
			t.Errorf("expected 2 calls, got %d", calls.Load())
		}
	})

	t.Run("server error is transient", func(t *testing.T) {
		t.Parallel()

		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := NewGraphProvider(c, WithGraphRetry(fastRetry())).Edges(context.Background(), addr(1))
		if label.KindOf(err) != label.KindTransient || !errors.Is(err, ErrAPI) {
			t.Errorf("expected transient API error, got %v", err)
		}
	})
}

// TestClassify tests envelope classification.
func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		message string
		result  string
		want    label.ErrorKind
	}{
		{name: "rate limit", message: "NOTOK", result: `"Max rate limit reached, please use API Key for higher rate limit"`, want: label.KindRateLimited},
		{name: "invalid key", message: "NOTOK", result: `"Invalid API Key (#err2)|x"`, want: label.KindFatal},
		{name: "unsupported chain", message: "NOTOK", result: `"Missing or unsupported chainid parameter"`, want: label.KindFatal},
		{name: "other", message: "NOTOK", result: `"Query Timeout occured"`, want: label.KindTransient},
		{name: "non string result", message: "NOTOK", result: `[]`, want: label.KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := classify(envelope{Status: "0", Message: tt.message, Result: []byte(tt.result)})
			if got := label.KindOf(err); got != tt.want {
				t.Errorf("expected %s, got %s (%v)", tt.want, got, err)
			}
			if !errors.Is(err, ErrAPI) {
				t.Errorf("expected ErrAPI in chain, got %v", err)
			}
		})
	}

	err := classify(envelope{Status: "0", Message: "No records found", Result: []byte(`[]`)})
	if !errors.Is(err, ErrNoResults) {
		t.Errorf("expected ErrNoResults, got %v", err)
	}
}

// TestContractLabeler tests contract name labelling.
func TestContractLabeler(t *testing.T) {
	t.Parallel()

	names := map[string]string{
		addr(1).String(): `[{"ContractName":"TetherToken"}]`,
		addr(2).String(): `[{"ContractName":""}]`,
		addr(3).String(): `[{"ContractName":"Proxy"},{"ContractName":"Impl"}]`,
	}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("action") != "getsourcecode" {
			http.Error(w, "unexpected action", http.StatusBadRequest)
			return
		}
		result, ok := names[q.Get("address")]
		if !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"status":"1","message":"OK","result":`+result+`}`)
	})

	l := NewContractLabeler(c)
	if l.Name() != ProviderName || l.MaxBatch() != ContractLabelerBatch {
		t.Errorf("unexpected provider identity %q/%d", l.Name(), l.MaxBatch())
	}

	got, err := l.Labels(context.Background(), []model.Address{addr(1), addr(2), addr(3), addr(4)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[model.Address]string{
		addr(1): "TetherToken",
		addr(3): "ProxyImpl",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d labels, got %v", len(want), got)
	}
	for a, l := range want {
		if got[a] != l {
			t.Errorf("label of %s: expected %q, got %q", a, l, got[a])
		}
	}
}

// TestContractLabelerAbort tests that rate limits abort the batch.
func TestContractLabelerAbort(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := NewContractLabeler(c).Labels(context.Background(), []model.Address{addr(1)})
	if !label.IsRateLimited(err) {
		t.Errorf("expected rate-limit error, got %v", err)
	}
}

// TestContractLabelerPartialResults tests that names resolved before a
// rate limit survive it, and that the cache only retries the rest.
func TestContractLabelerPartialResults(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Query().Get("address") {
		case addr(1).String():
			_, _ = io.WriteString(w, `{"status":"1","message":"OK","result":[{"ContractName":"Token"}]}`)
		default:
			_, _ = io.WriteString(w, `{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`)
		}
	})
	l := NewContractLabeler(c)

	got, err := l.Labels(context.Background(), []model.Address{addr(1), addr(2)})
	if !label.IsRateLimited(err) {
		t.Errorf("expected rate-limit error, got %v", err)
	}
	if got[addr(1)] != "Token" {
		t.Errorf("expected resolved name to be returned with the error, got %v", got)
	}

	calls.Store(0)
	cache := label.NewCache(label.NewMemoryStore(), []label.Provider{l},
		label.WithRetry(fastRetry()),
		label.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	labels := cache.Resolve(context.Background(), []model.Address{addr(1), addr(2)})
	if labels[addr(1)] != "Token" || len(labels) != 1 {
		t.Errorf("expected only %s to be labelled, got %v", addr(1), labels)
	}
	// One request for the resolved address, one per attempt for the throttled one.
	if n := calls.Load(); n != int64(1+fastRetry().MaxAttempts) {
		t.Errorf("expected %d requests, got %d", 1+fastRetry().MaxAttempts, n)
	}
}

// TestAPIKeyNotInErrors tests that transport errors do not leak the key.
func TestAPIKeyNotInErrors(t *testing.T) {
	t.Parallel()

	c, err := NewClient("secret-key-123",
		WithBaseURL("http://127.0.0.1:1"),
		WithRateLimit(0),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	_, err = NewGraphProvider(c, WithGraphRetry(fastRetry())).Edges(context.Background(), addr(1))
	if err == nil {
		t.Fatal("expected connection error")
	}
	if strings.Contains(err.Error(), "secret-key-123") {
		t.Errorf("error leaks API key: %v", err)
	}
}
