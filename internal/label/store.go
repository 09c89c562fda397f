package label

import (
	"context"
	"time"

	"github.com/nao1215/chaincrawl/internal/model"
)

// Record is a memoised label resolution.
type Record struct {
	Address    model.Address
	Label      string
	Provider   string
	ResolvedAt time.Time
}

// Store is the durable memoisation layer behind a Cache.
// Implementations must be safe for concurrent use and serialise writes
// to the same key.
type Store interface {
	// GetLabel returns the stored record for addr. The bool is false when
	// nothing is stored.
	GetLabel(ctx context.Context, addr model.Address) (Record, bool, error)

	// PutLabel stores rec, replacing any previous record for the address.
	PutLabel(ctx context.Context, rec Record) error

	// GetMiss returns when provider last failed to label addr.
	GetMiss(ctx context.Context, provider string, addr model.Address) (time.Time, bool, error)

	// PutMiss records that provider had no label for addr at the given time.
	PutMiss(ctx context.Context, provider string, addr model.Address, at time.Time) error

	// Close releases the underlying resources.
	Close() error
}
