// Package label resolves human-readable labels for addresses.
//
// A Cache sits in front of an ordered list of Providers and a persistent
// Store. Resolution is batched, results are memoised, and provider
// failures degrade to "nothing found" rather than failing the caller.
package label

import (
	"context"
	"errors"
	"fmt"

	"github.com/nao1215/chaincrawl/internal/model"
)

// Provider resolves labels for a batch of addresses.
// Implementations return a partial mapping; an address missing from the
// result simply has no label at this provider.
type Provider interface {
	// Name identifies the provider in logs and negative cache keys.
	Name() string

	// MaxBatch is the largest batch a single Labels call accepts.
	// A value <= 0 defers to the cache default.
	MaxBatch() int

	// Labels resolves the given addresses. The batch never exceeds MaxBatch.
	// On error it may still return the labels resolved before the failure.
	Labels(ctx context.Context, addrs []model.Address) (map[model.Address]string, error)
}

// ErrorKind classifies a provider failure for the retry policy.
type ErrorKind int

const (
	// KindTransient is a failure that is not worth retrying immediately
	// (network error, malformed response, server error).
	KindTransient ErrorKind = iota
	// KindRateLimited means the provider asked us to slow down.
	// These are retried with exponential backoff.
	KindRateLimited
	// KindFatal means the request can never succeed as configured
	// (bad API key, unsupported chain).
	KindFatal
)

// String returns the string representation of the ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate-limited"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ProviderError is the typed error provider adapters return.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// RateLimited wraps err as a rate-limit failure of provider.
func RateLimited(provider string, err error) error {
	return &ProviderError{Provider: provider, Kind: KindRateLimited, Err: err}
}

// Transient wraps err as a transient failure of provider.
func Transient(provider string, err error) error {
	return &ProviderError{Provider: provider, Kind: KindTransient, Err: err}
}

// Fatal wraps err as a non-recoverable failure of provider.
func Fatal(provider string, err error) error {
	return &ProviderError{Provider: provider, Kind: KindFatal, Err: err}
}

// KindOf returns the kind of err. Errors that are not ProviderErrors are
// treated as transient.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}

// IsRateLimited reports whether err signals rate limiting.
func IsRateLimited(err error) bool {
	return err != nil && KindOf(err) == KindRateLimited
}
