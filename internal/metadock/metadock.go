// Package metadock is a label.Provider backed by the BlockSec MetaDock
// address-label API.
package metadock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/nao1215/chaincrawl/internal/label"
	"github.com/nao1215/chaincrawl/internal/model"
)

const (
	// ProviderName identifies MetaDock in logs and cache records.
	ProviderName = "metadock"

	// DefaultURL is the address-label endpoint.
	DefaultURL = "https://extension.blocksec.com/api/v1/address-label"

	// DefaultChain is the chain name sent with each request.
	DefaultChain = "eth"

	// MaxBatch is the largest batch sent in one request.
	MaxBatch = 50

	// DefaultRequestsPerSecond is the client-side request rate.
	DefaultRequestsPerSecond = 2.0

	// rateLimitCode is the error code MetaDock answers with when throttling.
	rateLimitCode = 40000000

	maxResponseBytes = 8 << 20
)

// ErrAPI is wrapped by errors reported in a MetaDock error response.
var ErrAPI = errors.New("metadock API error")

// Provider resolves labels through MetaDock.
type Provider struct {
	httpClient *http.Client
	url        string
	chain      string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

var _ label.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = hc
	}
}

// WithURL overrides the endpoint.
func WithURL(u string) Option {
	return func(p *Provider) {
		p.url = u
	}
}

// WithChain sets the chain name sent with requests.
func WithChain(chain string) Option {
	return func(p *Provider) {
		p.chain = chain
	}
}

// WithRateLimit sets the client-side request rate. A value <= 0 disables
// client-side limiting.
func WithRateLimit(perSecond float64) Option {
	return func(p *Provider) {
		if perSecond <= 0 {
			p.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// New creates a MetaDock provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		httpClient: http.DefaultClient,
		url:        DefaultURL,
		chain:      DefaultChain,
		limiter:    rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Name implements label.Provider.
func (p *Provider) Name() string {
	return ProviderName
}

// MaxBatch implements label.Provider.
func (p *Provider) MaxBatch() int {
	return MaxBatch
}

// request is the POST body.
type request struct {
	Addresses []model.Address `json:"addresses"`
	Chain     string          `json:"chain"`
}

// entry is one element of a successful response.
type entry struct {
	Address string          `json:"address"`
	Label   string          `json:"label"`
	Logo    string          `json:"logo"`
	Risk    json.RawMessage `json:"risk"`
}

// apiError is the body of an error response.
type apiError struct {
	Code    json.Number `json:"code"`
	Message string      `json:"message"`
}

// Labels implements label.Provider.
func (p *Provider) Labels(ctx context.Context, addrs []model.Address) (map[model.Address]string, error) {
	if len(addrs) == 0 {
		return map[model.Address]string{}, nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, label.Transient(ProviderName, err)
	}

	body, err := json.Marshal(request{Addresses: addrs, Chain: p.chain})
	if err != nil {
		return nil, label.Fatal(ProviderName, fmt.Errorf("failed to encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, label.Fatal(ProviderName, fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	p.logger.Debug("metadock request", "addresses", len(addrs), "chain", p.chain)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, label.Transient(ProviderName, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, label.Transient(ProviderName, fmt.Errorf("failed to read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, label.RateLimited(ProviderName, fmt.Errorf("%w: HTTP %d", ErrAPI, resp.StatusCode))
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, label.Transient(ProviderName, fmt.Errorf("%w: HTTP %d", ErrAPI, resp.StatusCode))
	}

	// A success body is an array; anything else is an error object.
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' && resp.StatusCode == http.StatusOK {
		return decodeEntries(trimmed)
	}
	return nil, decodeError(trimmed, resp.StatusCode)
}

func decodeEntries(raw []byte) (map[model.Address]string, error) {
	var entries []entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, label.Transient(ProviderName, fmt.Errorf("failed to decode response: %w", err))
	}

	out := make(map[model.Address]string, len(entries))
	for _, e := range entries {
		addr, err := model.ParseAddress(e.Address)
		if err != nil {
			// MetaDock echoes the request; a bad address here is a server bug.
			continue
		}
		if e.Label != "" {
			out[addr] = e.Label
		}
	}
	return out, nil
}

func decodeError(raw []byte, status int) error {
	var apiErr apiError
	if err := json.Unmarshal(raw, &apiErr); err != nil || apiErr.Code == "" {
		return label.Transient(ProviderName, fmt.Errorf("%w: unexpected response (HTTP %d)", ErrAPI, status))
	}

	err := fmt.Errorf("%w: code %s: %s", ErrAPI, apiErr.Code, apiErr.Message)
	if code, convErr := apiErr.Code.Int64(); convErr == nil && code == rateLimitCode {
		return label.RateLimited(ProviderName, err)
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return label.Fatal(ProviderName, err)
	}
	return label.Transient(ProviderName, err)
}
