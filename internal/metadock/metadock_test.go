package metadock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nao1215/chaincrawl/internal/label"
	"github.com/nao1215/chaincrawl/internal/model"
)

func addr(n int) model.Address {
	return model.MustParseAddress(fmt.Sprintf("0x%040x", n))
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(
		WithURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithRateLimit(0),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

// TestLabels tests a successful batch lookup.
func TestLabels(t *testing.T) {
	t.Parallel()

	requests := make(chan request, 1)
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		requests <- req

		fmt.Fprintf(w, `[
			{"address":%q,"label":"Binance 14","logo":"","risk":0},
			{"address":%q,"label":"","logo":"","risk":0},
			{"address":"not-an-address","label":"junk","logo":"","risk":1}
		]`, addr(1), addr(2))
	})

	got, err := p.Labels(context.Background(), []model.Address{addr(1), addr(2), addr(3)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[addr(1)] != "Binance 14" {
		t.Errorf("unexpected labels: %v", got)
	}

	req := <-requests
	if req.Chain != DefaultChain {
		t.Errorf("expected chain %q, got %q", DefaultChain, req.Chain)
	}
	if len(req.Addresses) != 3 || req.Addresses[0] != addr(1) {
		t.Errorf("unexpected request addresses: %v", req.Addresses)
	}
}

// TestLabelsErrors tests error classification.
func TestLabelsErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   label.ErrorKind
	}{
		{name: "rate limit code", status: http.StatusOK, body: `{"code":40000000,"message":"too many requests"}`, want: label.KindRateLimited},
		{name: "http 429", status: http.StatusTooManyRequests, body: ``, want: label.KindRateLimited},
		{name: "server error", status: http.StatusInternalServerError, body: ``, want: label.KindTransient},
		{name: "other code", status: http.StatusOK, body: `{"code":50000000,"message":"internal"}`, want: label.KindTransient},
		{name: "forbidden", status: http.StatusForbidden, body: `{"code":40300000,"message":"forbidden"}`, want: label.KindFatal},
		{name: "garbage", status: http.StatusOK, body: `<html>`, want: label.KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := p.Labels(context.Background(), []model.Address{addr(1)})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := label.KindOf(err); got != tt.want {
				t.Errorf("expected %s, got %s (%v)", tt.want, got, err)
			}
			if !errors.Is(err, ErrAPI) {
				t.Errorf("expected ErrAPI in chain, got %v", err)
			}
		})
	}
}

// TestLabelsEmpty tests that an empty batch makes no request.
func TestLabelsEmpty(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("unexpected request")
		w.WriteHeader(http.StatusInternalServerError)
	})

	got, err := p.Labels(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Errorf("expected empty result, got %v, %v", got, err)
	}
}

// TestIdentity tests provider name and batch size.
func TestIdentity(t *testing.T) {
	t.Parallel()

	p := New()
	if p.Name() != ProviderName {
		t.Errorf("expected name %q, got %q", ProviderName, p.Name())
	}
	if p.MaxBatch() != MaxBatch {
		t.Errorf("expected batch %d, got %d", MaxBatch, p.MaxBatch())
	}
}
