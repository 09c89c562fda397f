package label

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nao1215/chaincrawl/internal/model"
)

// DefaultBatchSize is the per-call cap applied to providers that do not
// declare their own.
const DefaultBatchSize = 50

// Cache resolves labels through a persistent Store and an ordered list of
// Providers. It is the crawler's only source of "is this address already
// explained" answers.
//
// Providers are consulted in the order given: the first provider to label
// an address wins, and later providers are only asked about addresses that
// are still unresolved.
type Cache struct {
	store     Store
	providers []Provider
	logger    *slog.Logger

	// batchSize caps provider calls for providers with MaxBatch() <= 0.
	batchSize int

	// retry is applied to rate-limited provider calls.
	retry RetryConfig

	// negativeTTL enables per-provider miss records when positive.
	negativeTTL time.Duration

	// now is the clock used for record timestamps.
	now func() time.Time

	hits          atomic.Int64
	misses        atomic.Int64
	providerCalls atomic.Int64
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithLogger sets the logger used for cache diagnostics.
func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithBatchSize sets the default per-call cap for providers that do not
// declare one. Non-positive values are ignored.
func WithBatchSize(n int) CacheOption {
	return func(c *Cache) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithRetry sets the backoff policy for rate-limited provider calls.
func WithRetry(cfg RetryConfig) CacheOption {
	return func(c *Cache) {
		c.retry = cfg
	}
}

// WithNegativeTTL enables negative caching. A provider that found no label
// for an address is not asked about it again until ttl has passed.
// Miss records are keyed by provider and address, never by address alone,
// so one provider's miss never hides another provider's label.
func WithNegativeTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		c.negativeTTL = ttl
	}
}

// NewCache creates a Cache. A nil store selects an in-memory store, which
// memoises for the lifetime of the process only.
func NewCache(store Store, providers []Provider, opts ...CacheOption) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}

	c := &Cache{
		store:     store,
		providers: providers,
		batchSize: DefaultBatchSize,
		retry:     DefaultRetryConfig(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c
}

// CacheStats summarises cache activity since creation.
type CacheStats struct {
	Hits          int64
	Misses        int64
	ProviderCalls int64
}

// Stats returns counters of cache activity.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		ProviderCalls: c.providerCalls.Load(),
	}
}

// Resolve returns labels for the given addresses. Addresses no source can
// label are absent from the result; that is not an error. Resolve never
// fails: store and provider errors are logged and degrade to misses.
func (c *Cache) Resolve(ctx context.Context, addrs []model.Address) map[model.Address]string {
	result := make(map[model.Address]string, len(addrs))
	if len(addrs) == 0 {
		return result
	}

	missed := c.lookup(ctx, dedupe(addrs), result)
	if len(missed) == 0 {
		return result
	}

	c.logger.Debug("fetching labels from providers",
		"count", len(missed),
		"providers", len(c.providers),
	)

	for _, p := range c.providers {
		pending := c.pendingFor(ctx, p, missed, result)
		if len(pending) == 0 {
			continue
		}

		for _, batch := range chunk(pending, c.batchFor(p)) {
			if ctx.Err() != nil {
				return result
			}
			c.query(ctx, p, batch, result)
		}
	}

	return result
}

// lookup fills result with stored labels and returns the addresses that
// still need a provider.
func (c *Cache) lookup(ctx context.Context, addrs []model.Address, result map[model.Address]string) []model.Address {
	missed := make([]model.Address, 0, len(addrs))
	for _, addr := range addrs {
		rec, ok, err := c.store.GetLabel(ctx, addr)
		if err != nil {
			c.logger.Warn("label store read failed", "address", addr.String(), "error", err)
		}
		if err != nil || !ok || !usable(rec.Label) {
			missed = append(missed, addr)
			c.misses.Add(1)
			continue
		}

		c.logger.Debug("label cache hit", "address", addr.String(), "label", rec.Label)
		result[addr] = rec.Label
		c.hits.Add(1)
	}
	return missed
}

// pendingFor returns the addresses p should be asked about: those still
// unresolved and, with negative caching on, not recently missed by p.
func (c *Cache) pendingFor(ctx context.Context, p Provider, missed []model.Address, result map[model.Address]string) []model.Address {
	pending := make([]model.Address, 0, len(missed))
	for _, addr := range missed {
		if _, done := result[addr]; done {
			continue
		}
		if c.recentlyMissed(ctx, p, addr) {
			continue
		}
		pending = append(pending, addr)
	}
	return pending
}

// recentlyMissed reports whether p has a fresh miss record for addr.
func (c *Cache) recentlyMissed(ctx context.Context, p Provider, addr model.Address) bool {
	if c.negativeTTL <= 0 {
		return false
	}
	at, ok, err := c.store.GetMiss(ctx, p.Name(), addr)
	if err != nil {
		c.logger.Warn("label store miss read failed", "provider", p.Name(), "address", addr.String(), "error", err)
		return false
	}
	return ok && c.now().Sub(at) < c.negativeTTL
}

// query asks p about one batch and merges the answers into result.
// Labels a provider returns alongside an error are kept, and a retry only
// asks about the addresses still unresolved. A failed call means "this
// provider found nothing" for whatever it left unresolved.
func (c *Cache) query(ctx context.Context, p Provider, batch []model.Address, result map[model.Address]string) {
	found := make(map[model.Address]string, len(batch))
	pending := batch

	attempts, err := Retry(ctx, c.retry, func(ctx context.Context) error {
		c.providerCalls.Add(1)
		labels, callErr := p.Labels(ctx, pending)

		remaining := make([]model.Address, 0, len(pending))
		for _, addr := range pending {
			if label := Sanitize(labels[addr]); usable(label) {
				found[addr] = label
				continue
			}
			remaining = append(remaining, addr)
		}
		pending = remaining

		if len(pending) == 0 {
			return nil
		}
		return callErr
	})
	if err != nil {
		c.logger.Warn("label provider failed",
			"provider", p.Name(),
			"batch", len(batch),
			"resolved", len(found),
			"unresolved", len(pending),
			"attempts", attempts,
			"kind", KindOf(err).String(),
			"error", err,
		)
	}

	now := c.now()
	for _, addr := range batch {
		label, ok := found[addr]
		if !ok {
			// Only a completed call proves the provider has no label.
			if err == nil {
				c.recordMiss(ctx, p, addr, now)
			}
			continue
		}
		if _, done := result[addr]; done {
			continue
		}

		result[addr] = label
		rec := Record{Address: addr, Label: label, Provider: p.Name(), ResolvedAt: now}
		if err := c.store.PutLabel(ctx, rec); err != nil {
			c.logger.Warn("label store write failed", "address", addr.String(), "error", err)
		}
	}
}

// recordMiss stores a per-provider miss when negative caching is on.
func (c *Cache) recordMiss(ctx context.Context, p Provider, addr model.Address, at time.Time) {
	if c.negativeTTL <= 0 {
		return
	}
	if err := c.store.PutMiss(ctx, p.Name(), addr, at); err != nil {
		c.logger.Warn("label store miss write failed", "provider", p.Name(), "address", addr.String(), "error", err)
	}
}

// batchFor returns the per-call cap for p.
func (c *Cache) batchFor(p Provider) int {
	if n := p.MaxBatch(); n > 0 {
		return n
	}
	return c.batchSize
}

// usable reports whether label can be shown as a real label. The stream
// markers are reserved and never count as labels.
func usable(label string) bool {
	return label != "" && label != model.Unlabelled && label != model.Starter
}

// dedupe removes repeated addresses, keeping first occurrences in order.
func dedupe(addrs []model.Address) []model.Address {
	seen := make(map[model.Address]struct{}, len(addrs))
	out := make([]model.Address, 0, len(addrs))
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// chunk splits addrs into consecutive slices of at most size elements.
func chunk(addrs []model.Address, size int) [][]model.Address {
	if size <= 0 {
		size = len(addrs)
	}
	batches := make([][]model.Address, 0, (len(addrs)+size-1)/size)
	for start := 0; start < len(addrs); start += size {
		end := min(start+size, len(addrs))
		batches = append(batches, addrs[start:end])
	}
	return batches
}
