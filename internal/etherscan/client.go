package etherscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/nao1215/chaincrawl/internal/label"
)

const (
	// ProviderName identifies Etherscan in logs and cache records.
	ProviderName = "etherscan"

	// DefaultBaseURL is the multichain v2 API endpoint.
	DefaultBaseURL = "https://api.etherscan.io/v2/api"

	// DefaultChainID is Ethereum mainnet.
	DefaultChainID int64 = 1

	// DefaultRequestsPerSecond matches the free API tier.
	DefaultRequestsPerSecond = 5.0

	// maxResponseBytes bounds how much of a response body is decoded.
	maxResponseBytes = 64 << 20
)

var (
	// ErrNoAPIKey is returned by NewClient when no API key is configured.
	ErrNoAPIKey = errors.New("etherscan API key is required")

	// ErrAPI is wrapped by errors reported in the API response envelope.
	ErrAPI = errors.New("etherscan API error")

	// ErrNoResults is returned when the API reports an empty result set
	// through its error envelope.
	ErrNoResults = errors.New("etherscan returned no results")
)

// Client calls the Etherscan HTTP API.
// All requests share one client-side rate limiter.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	chainID    int64
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithChainID selects the chain queried through the v2 API.
func WithChainID(id int64) Option {
	return func(c *Client) {
		c.chainID = id
	}
}

// WithRateLimit sets the client-side request rate. A value <= 0 disables
// client-side limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client for the given API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNoAPIKey
	}

	c := &Client{
		httpClient: http.DefaultClient,
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		chainID:    DefaultChainID,
		limiter:    rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c, nil
}

// ChainID returns the configured chain id.
func (c *Client) ChainID() int64 {
	return c.chainID
}

// envelope is the wrapper every API response uses.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// call performs a GET request with params and decodes the result field
// into out. Failures are returned as label.ProviderError values.
func (c *Client) call(ctx context.Context, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return label.Transient(ProviderName, err)
	}

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("chainid", strconv.FormatInt(c.chainID, 10))
	q.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return label.Fatal(ProviderName, fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("etherscan request",
		"module", params.Get("module"),
		"action", params.Get("action"),
		"address", params.Get("address"),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The request URL carries the API key; drop it from the error.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			uerr.URL = c.baseURL
		}
		return label.Transient(ProviderName, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return label.RateLimited(ProviderName, fmt.Errorf("%w: HTTP %d", ErrAPI, resp.StatusCode))
	case resp.StatusCode >= http.StatusInternalServerError:
		return label.Transient(ProviderName, fmt.Errorf("%w: HTTP %d", ErrAPI, resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return label.Fatal(ProviderName, fmt.Errorf("%w: HTTP %d", ErrAPI, resp.StatusCode))
	}

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&env); err != nil {
		return label.Transient(ProviderName, fmt.Errorf("failed to decode response: %w", err))
	}

	if env.Status != "1" {
		return classify(env)
	}

	if err := json.Unmarshal(env.Result, out); err != nil {
		return label.Transient(ProviderName, fmt.Errorf("failed to decode result: %w", err))
	}
	return nil
}

// classify maps an error envelope to a typed error.
func classify(env envelope) error {
	// The result field holds a human-readable reason on errors.
	var detail string
	_ = json.Unmarshal(env.Result, &detail) //nolint:errcheck // non-string results leave detail empty

	msg := strings.ToLower(env.Message + " " + detail)
	err := fmt.Errorf("%w: %s", ErrAPI, strings.TrimSpace(env.Message+" "+detail))

	switch {
	case strings.Contains(msg, "no transactions found"), strings.Contains(msg, "no records found"):
		return ErrNoResults
	case strings.Contains(msg, "rate limit"):
		return label.RateLimited(ProviderName, err)
	case strings.Contains(msg, "invalid api key"), strings.Contains(msg, "chainid"):
		return label.Fatal(ProviderName, err)
	default:
		return label.Transient(ProviderName, err)
	}
}
