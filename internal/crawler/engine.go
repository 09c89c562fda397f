package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nao1215/chaincrawl/internal/model"
	"golang.org/x/sync/errgroup"
)

// GraphProvider returns the transfer edges touching an address.
type GraphProvider interface {
	Edges(ctx context.Context, addr model.Address) ([]model.Edge, error)
}

// LabelResolver resolves labels for a batch of addresses. Addresses with
// no label are absent from the result. *label.Cache implements it.
type LabelResolver interface {
	Resolve(ctx context.Context, addrs []model.Address) map[model.Address]string
}

// Engine walks the transfer graph outward from a root address.
//
// Each expansion fetches the edges of one address, keeps those allowed by
// the direction policy and fan-out cap, claims unseen counterparties in the
// visited set, resolves their labels in one batch, and emits the results.
// Labelled counterparties are leaves; unlabelled ones are expanded next.
type Engine struct {
	graph  GraphProvider
	labels LabelResolver
	sink   Sink
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for crawl diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an Engine.
func New(graph GraphProvider, labels LabelResolver, sink Sink, opts ...Option) *Engine {
	e := &Engine{
		graph:  graph,
		labels: labels,
		sink:   sink,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = slog.Default()
	}

	return e
}

// Stats summarises one crawl.
type Stats struct {
	// Expanded is the number of addresses whose edges were fetched.
	Expanded int64
	// Nodes is the number of node events emitted, including the seed.
	Nodes int64
	// Edges is the number of edge events emitted.
	Edges int64
	// Labelled is the number of discovered nodes that carried a label.
	Labelled int64
	// Failures is the number of edge fetches that failed.
	Failures int64
	// Elapsed is the wall time of the crawl.
	Elapsed time.Duration
}

// workItem is one pending expansion. Depth travels with the item so the
// frontier can be consumed in either order without call recursion.
type workItem struct {
	addr  model.Address
	depth int
}

// run holds the state of a single Crawl call.
type run struct {
	*Engine
	settings model.CrawlSettings
	visited  *VisitedSet

	// emitMu keeps each expansion's events contiguous across sinks.
	emitMu sync.Mutex

	expanded atomic.Int64
	nodes    atomic.Int64
	edges    atomic.Int64
	labelled atomic.Int64
	failures atomic.Int64
}

// Crawl explores the graph from root and emits events to the sink until
// the depth- and fan-out-bounded frontier is exhausted.
//
// Invalid settings are the only error returned before anything is emitted.
// Provider failures never abort the crawl: a failed edge fetch counts as a
// node with no edges. A sink write error or a cancelled ctx stops the crawl
// and is returned together with the statistics gathered so far.
func (e *Engine) Crawl(ctx context.Context, root model.Address, settings model.CrawlSettings) (Stats, error) {
	if err := settings.Validate(); err != nil {
		return Stats{}, fmt.Errorf("invalid crawl settings: %w", err)
	}

	start := time.Now()
	r := &run{
		Engine:   e,
		settings: settings,
		visited:  NewVisitedSet(),
	}

	e.logger.Info("starting crawl",
		"root", root.String(),
		"maxDepth", settings.MaxDepth,
		"maxFanOut", settings.MaxFanOut,
		"forward", settings.Forward,
		"backward", settings.Backward,
		"order", settings.Order.String(),
	)

	r.visited.TryAdd(root)
	err := r.emit([]model.Event{model.NodeEvent{Address: root, Label: model.Starter, Depth: 0}})
	if err == nil {
		r.nodes.Add(1)
		seed := workItem{addr: root, depth: 0}
		if settings.Order == model.BreadthFirst {
			err = r.breadthFirst(ctx, seed)
		} else {
			err = r.depthFirst(ctx, seed)
		}
	}

	stats := r.stats(time.Since(start))
	e.logger.Info("crawl finished",
		"root", root.String(),
		"expanded", stats.Expanded,
		"nodes", stats.Nodes,
		"edges", stats.Edges,
		"labelled", stats.Labelled,
		"failures", stats.Failures,
		"elapsed", stats.Elapsed,
	)

	return stats, err
}

// depthFirst consumes the frontier as a LIFO stack. Children are pushed in
// reverse so the first discovered child is explored, with all of its
// descendants, before its next sibling.
func (r *run) depthFirst(ctx context.Context, seed workItem) error {
	stack := []workItem{seed}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := r.expand(ctx, item)
		if err != nil {
			return err
		}
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return nil
}

// breadthFirst consumes the frontier one depth level at a time. The nodes of
// a level are expanded concurrently, bounded by settings.Concurrency, and
// the next level keeps the parents' order.
func (r *run) breadthFirst(ctx context.Context, seed workItem) error {
	level := []workItem{seed}
	for len(level) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		next := make([][]workItem, len(level))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.settings.Concurrency)
		for i, item := range level {
			g.Go(func() error {
				children, err := r.expand(gctx, item)
				if err != nil {
					return err
				}
				next[i] = children
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		level = level[:0]
		for _, children := range next {
			level = append(level, children...)
		}
	}
	return nil
}

// expand processes one work item and returns the unlabelled children to
// expand next. Only sink and context errors are returned.
func (r *run) expand(ctx context.Context, item workItem) ([]workItem, error) {
	childDepth := item.depth + 1
	if childDepth > r.settings.MaxDepth {
		r.logger.Debug("reached max depth", "address", item.addr.String(), "depth", item.depth)
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.expanded.Add(1)
	edges, err := r.graph.Edges(ctx, item.addr)
	if err != nil {
		r.failures.Add(1)
		r.logger.Warn("failed to fetch edges, treating as leaf",
			"address", item.addr.String(),
			"error", err,
		)
		edges = nil
	}

	retained := r.retain(item.addr, edges)

	// Claim counterparties before any label call so a concurrent branch
	// that meets the same address sees it as taken.
	discovered := make([]model.Address, 0, len(retained))
	for _, edge := range retained {
		cp := edge.Counterparty(item.addr)
		if r.visited.TryAdd(cp) {
			discovered = append(discovered, cp)
		}
	}

	var labels map[model.Address]string
	if len(discovered) > 0 {
		labels = r.labels.Resolve(ctx, discovered)
	}

	events := make([]model.Event, 0, len(retained)+len(discovered))
	for _, edge := range retained {
		events = append(events, model.NewEdgeEvent(edge))
	}

	children := make([]workItem, 0, len(discovered))
	var labelledCount int64
	for _, addr := range discovered {
		label, ok := labels[addr]
		if ok && label != "" {
			labelledCount++
			events = append(events, model.NodeEvent{Address: addr, Label: label, Depth: childDepth})
			continue
		}
		events = append(events, model.NodeEvent{Address: addr, Label: model.Unlabelled, Depth: childDepth})
		children = append(children, workItem{addr: addr, depth: childDepth})
	}

	if err := r.emit(events); err != nil {
		return nil, err
	}

	r.edges.Add(int64(len(retained)))
	r.nodes.Add(int64(len(discovered)))
	r.labelled.Add(labelledCount)

	r.logger.Debug("expanded address",
		"address", item.addr.String(),
		"depth", item.depth,
		"edges", len(edges),
		"retained", len(retained),
		"discovered", len(discovered),
		"labelled", labelledCount,
	)

	return children, nil
}

// retain applies the direction policy and the fan-out cap. Order follows
// the provider, and the cap drops the tail.
func (r *run) retain(at model.Address, edges []model.Edge) []model.Edge {
	retained := make([]model.Edge, 0, min(len(edges), r.settings.MaxFanOut))
	for _, edge := range edges {
		if len(retained) == r.settings.MaxFanOut {
			r.logger.Debug("fan-out limit reached",
				"address", at.String(),
				"limit", r.settings.MaxFanOut,
				"edges", len(edges),
			)
			break
		}
		dir := edge.DirectionFrom(at)
		if dir == model.DirectionNone {
			r.logger.Debug("ignoring edge not touching expanded address",
				"address", at.String(),
				"from", edge.From.String(),
				"to", edge.To.String(),
			)
			continue
		}
		if !r.settings.Follows(dir) {
			continue
		}
		retained = append(retained, edge)
	}
	return retained
}

// emit hands events to the sink as one block.
func (r *run) emit(events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	if err := r.sink.EmitAll(events); err != nil {
		return fmt.Errorf("failed to write events: %w", err)
	}
	return nil
}

func (r *run) stats(elapsed time.Duration) Stats {
	return Stats{
		Expanded: r.expanded.Load(),
		Nodes:    r.nodes.Load(),
		Edges:    r.edges.Load(),
		Labelled: r.labelled.Load(),
		Failures: r.failures.Load(),
		Elapsed:  elapsed,
	}
}
