package model

import (
	"errors"
	"fmt"
	"strings"
)

// Crawl settings errors.
var (
	// ErrInvalidDepth is returned when the maximum depth is negative.
	ErrInvalidDepth = errors.New("max depth must not be negative")
	// ErrInvalidFanOut is returned when the fan-out limit is not positive.
	ErrInvalidFanOut = errors.New("max fan-out must be positive")
	// ErrNoDirection is returned when both edge directions are disabled.
	ErrNoDirection = errors.New("at least one of forward or backward edges must be followed")
	// ErrInvalidConcurrency is returned when concurrency is not positive.
	ErrInvalidConcurrency = errors.New("concurrency must be positive")
	// ErrUnknownOrder is returned for an unrecognised traversal order.
	ErrUnknownOrder = errors.New("unknown traversal order")
)

// TraversalOrder selects how the crawl frontier is consumed.
type TraversalOrder int

const (
	// DepthFirst expands each newly discovered node to completion before
	// moving on to its next sibling.
	DepthFirst TraversalOrder = iota
	// BreadthFirst expands every node at depth d before any node at depth d+1.
	BreadthFirst
)

// String returns the canonical name of the order.
func (o TraversalOrder) String() string {
	switch o {
	case DepthFirst:
		return "depth-first"
	case BreadthFirst:
		return "breadth-first"
	default:
		return "unknown"
	}
}

// ParseTraversalOrder accepts "depth-first", "dfs", "breadth-first" and "bfs"
// in any case. An empty string selects DepthFirst.
func ParseTraversalOrder(s string) (TraversalOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "depth-first", "dfs":
		return DepthFirst, nil
	case "breadth-first", "bfs":
		return BreadthFirst, nil
	default:
		return DepthFirst, fmt.Errorf("%w: %q", ErrUnknownOrder, s)
	}
}

// Default crawl limits.
const (
	DefaultMaxDepth    = 5
	DefaultMaxFanOut   = 500
	DefaultConcurrency = 4
)

// CrawlSettings is the immutable configuration of one crawl run.
type CrawlSettings struct {
	// MaxDepth is the deepest hop count a node event may carry.
	// 0 emits only the seed record.
	MaxDepth int

	// MaxFanOut caps how many retained edges one expansion processes.
	// Edges past the cap are dropped in provider order.
	MaxFanOut int

	// Forward follows edges the expanded node sent.
	Forward bool

	// Backward follows edges the expanded node received.
	Backward bool

	// Order selects depth-first or breadth-first traversal.
	Order TraversalOrder

	// Concurrency is the number of expansions run in parallel within one
	// breadth-first level. Depth-first traversal is sequential.
	Concurrency int
}

// DefaultCrawlSettings returns the settings used when no flag overrides them.
func DefaultCrawlSettings() CrawlSettings {
	return CrawlSettings{
		MaxDepth:    DefaultMaxDepth,
		MaxFanOut:   DefaultMaxFanOut,
		Forward:     true,
		Backward:    true,
		Order:       DepthFirst,
		Concurrency: DefaultConcurrency,
	}
}

// Validate checks the settings and returns the first problem found.
func (s CrawlSettings) Validate() error {
	if s.MaxDepth < 0 {
		return ErrInvalidDepth
	}
	if s.MaxFanOut <= 0 {
		return ErrInvalidFanOut
	}
	if !s.Forward && !s.Backward {
		return ErrNoDirection
	}
	if s.Order != DepthFirst && s.Order != BreadthFirst {
		return ErrUnknownOrder
	}
	if s.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	return nil
}

// Follows reports whether edges of direction d are followed.
func (s CrawlSettings) Follows(d Direction) bool {
	switch d {
	case DirectionForward:
		return s.Forward
	case DirectionBackward:
		return s.Backward
	default:
		return false
	}
}
