package crawler

import (
	"sync"

	"github.com/nao1215/chaincrawl/internal/model"
)

// VisitedSet records every address discovered during one crawl.
// It is the only state shared between concurrently running expansions.
type VisitedSet struct {
	mu   sync.Mutex
	seen map[model.Address]struct{}
}

// NewVisitedSet creates an empty VisitedSet.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{seen: make(map[model.Address]struct{})}
}

// TryAdd inserts addr and reports whether it was absent. The membership
// check and the insert happen under one lock, so exactly one caller wins
// for any address.
func (v *VisitedSet) TryAdd(addr model.Address) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.seen[addr]; ok {
		return false
	}
	v.seen[addr] = struct{}{}
	return true
}

// Contains reports whether addr has been discovered.
func (v *VisitedSet) Contains(addr model.Address) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.seen[addr]
	return ok
}

// Len returns the number of discovered addresses.
func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}
