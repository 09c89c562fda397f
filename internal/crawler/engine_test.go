package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/nao1215/chaincrawl/internal/model"
)

func addr(n int) model.Address {
	return model.MustParseAddress(fmt.Sprintf("0x%040x", n))
}

func edge(from, to int) model.Edge {
	return model.Edge{From: addr(from), To: addr(to)}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGraph serves a fixed adjacency list and records every fetch.
type fakeGraph struct {
	mu     sync.Mutex
	edges  map[model.Address][]model.Edge
	errs   map[model.Address]error
	called map[model.Address]int
	order  []model.Address
}

func newFakeGraph(edges ...model.Edge) *fakeGraph {
	g := &fakeGraph{
		edges:  make(map[model.Address][]model.Edge),
		errs:   make(map[model.Address]error),
		called: make(map[model.Address]int),
	}
	for _, e := range edges {
		g.edges[e.From] = append(g.edges[e.From], e)
		if e.To != e.From {
			g.edges[e.To] = append(g.edges[e.To], e)
		}
	}
	return g
}

func (g *fakeGraph) Edges(_ context.Context, a model.Address) ([]model.Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.called[a]++
	g.order = append(g.order, a)
	if err := g.errs[a]; err != nil {
		return nil, err
	}
	return append([]model.Edge(nil), g.edges[a]...), nil
}

func (g *fakeGraph) calls(a model.Address) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.called[a]
}

// fakeLabels resolves from a fixed table and records each batch.
type fakeLabels struct {
	mu      sync.Mutex
	labels  map[model.Address]string
	batches [][]model.Address
}

func (f *fakeLabels) Resolve(_ context.Context, addrs []model.Address) map[model.Address]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]model.Address(nil), addrs...))
	out := make(map[model.Address]string)
	for _, a := range addrs {
		if l, ok := f.labels[a]; ok {
			out[a] = l
		}
	}
	return out
}

// recordingSink keeps every emitted block.
type recordingSink struct {
	mu     sync.Mutex
	blocks [][]model.Event
	err    error
}

func (s *recordingSink) EmitAll(events []model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.blocks = append(s.blocks, append([]model.Event(nil), events...))
	return nil
}

func (s *recordingSink) events() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Event
	for _, b := range s.blocks {
		out = append(out, b...)
	}
	return out
}

func (s *recordingSink) nodes() []model.NodeEvent {
	var out []model.NodeEvent
	for _, ev := range s.events() {
		if n, ok := ev.(model.NodeEvent); ok {
			out = append(out, n)
		}
	}
	return out
}

func (s *recordingSink) edgeCount() int {
	count := 0
	for _, ev := range s.events() {
		if _, ok := ev.(model.EdgeEvent); ok {
			count++
		}
	}
	return count
}

func settings(depth int) model.CrawlSettings {
	s := model.DefaultCrawlSettings()
	s.MaxDepth = depth
	return s
}

func crawl(t *testing.T, g GraphProvider, labels LabelResolver, s model.CrawlSettings) (*recordingSink, Stats) {
	t.Helper()
	sink := &recordingSink{}
	stats, err := New(g, labels, sink, WithLogger(quietLogger())).Crawl(context.Background(), addr(1), s)
	if err != nil {
		t.Fatalf("crawl failed: %v", err)
	}
	return sink, stats
}

// TestEngineScenario tests a root with one outgoing and one labelled
// incoming counterparty.
func TestEngineScenario(t *testing.T) {
	t.Parallel()

	// R=1 -> A=2, B=3 -> R, B labelled "exchange".
	g := newFakeGraph(edge(1, 2), edge(3, 1))
	labels := &fakeLabels{labels: map[model.Address]string{addr(3): "exchange"}}

	var buf bytes.Buffer
	stats, err := New(g, labels, NewLineSink(&buf), WithLogger(quietLogger())).
		Crawl(context.Background(), addr(1), settings(2))
	if err != nil {
		t.Fatalf("crawl failed: %v", err)
	}

	want := []string{
		"Node: id=[" + addr(1).String() + "] label=[STARTER] depth=[0]",
		`Edge:{"from":"` + addr(1).String() + `","to":"` + addr(2).String() + `","txs":[]}`,
		`Edge:{"from":"` + addr(3).String() + `","to":"` + addr(1).String() + `","txs":[]}`,
		"Node: id=[" + addr(2).String() + "] label=[UNLABELLED] depth=[1]",
		"Node: id=[" + addr(3).String() + "] label=[exchange] depth=[1]",
		// A is expanded and sees the edge back to the already visited root.
		`Edge:{"from":"` + addr(1).String() + `","to":"` + addr(2).String() + `","txs":[]}`,
	}
	got := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(got) != len(want) {
		t.Fatalf("expected %d lines, got %d:\n%s", len(want), len(got), buf.String())
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d:\nwant %s\ngot  %s", i, want[i], got[i])
		}
	}

	if g.calls(addr(3)) != 0 {
		t.Error("labelled node must not be expanded")
	}
	if stats.Expanded != 2 || stats.Nodes != 3 || stats.Labelled != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

// TestEngineZeroDepth tests that MaxDepth 0 emits only the seed.
func TestEngineZeroDepth(t *testing.T) {
	t.Parallel()

	g := newFakeGraph(edge(1, 2))
	sink, stats := crawl(t, g, &fakeLabels{}, settings(0))

	events := sink.events()
	if len(events) != 1 {
		t.Fatalf("expected only the seed, got %d events", len(events))
	}
	seed, ok := events[0].(model.NodeEvent)
	if !ok || seed.Label != model.Starter || seed.Depth != 0 || seed.Address != addr(1) {
		t.Errorf("unexpected seed event: %#v", events[0])
	}
	if g.calls(addr(1)) != 0 {
		t.Error("expected no graph fetch at depth 0")
	}
	if stats.Expanded != 0 || stats.Nodes != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

// TestEngineDepthBound tests that no node deeper than MaxDepth appears.
func TestEngineDepthBound(t *testing.T) {
	t.Parallel()

	for _, order := range []model.TraversalOrder{model.DepthFirst, model.BreadthFirst} {
		t.Run(order.String(), func(t *testing.T) {
			t.Parallel()

			s := settings(2)
			s.Order = order
			g := newFakeGraph(edge(1, 2), edge(2, 3), edge(3, 4), edge(4, 5))
			sink, stats := crawl(t, g, &fakeLabels{}, s)

			for _, n := range sink.nodes() {
				if n.Depth > 2 {
					t.Errorf("node %s at depth %d exceeds bound", n.Address, n.Depth)
				}
			}
			if len(sink.nodes()) != 3 {
				t.Errorf("expected 3 nodes, got %d", len(sink.nodes()))
			}
			if g.calls(addr(3)) != 0 {
				t.Error("node at max depth must not be expanded")
			}
			if stats.Expanded != 2 {
				t.Errorf("expected 2 expansions, got %d", stats.Expanded)
			}
		})
	}
}

// TestEngineDirection tests direction filtering.
func TestEngineDirection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		forward  bool
		backward bool
		want     []model.Address
	}{
		{name: "forward only", forward: true, want: []model.Address{addr(2)}},
		{name: "backward only", backward: true, want: []model.Address{addr(3)}},
		{name: "both", forward: true, backward: true, want: []model.Address{addr(2), addr(3)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g := newFakeGraph(edge(1, 2), edge(3, 1))
			s := settings(1)
			s.Forward = tt.forward
			s.Backward = tt.backward
			sink, _ := crawl(t, g, &fakeLabels{}, s)

			nodes := sink.nodes()[1:]
			if len(nodes) != len(tt.want) {
				t.Fatalf("expected %d discovered nodes, got %d", len(tt.want), len(nodes))
			}
			for i, n := range nodes {
				if n.Address != tt.want[i] {
					t.Errorf("node %d: expected %s, got %s", i, tt.want[i], n.Address)
				}
			}
			if sink.edgeCount() != len(tt.want) {
				t.Errorf("expected %d edges, got %d", len(tt.want), sink.edgeCount())
			}
		})
	}
}

// TestEngineUnrelatedEdges tests that edges not touching the expanded
// address are ignored.
func TestEngineUnrelatedEdges(t *testing.T) {
	t.Parallel()

	g := newFakeGraph()
	g.edges[addr(1)] = []model.Edge{edge(7, 8), edge(1, 2)}
	sink, _ := crawl(t, g, &fakeLabels{}, settings(1))

	if sink.edgeCount() != 1 {
		t.Errorf("expected 1 edge, got %d", sink.edgeCount())
	}
	if len(sink.nodes()) != 2 {
		t.Errorf("expected seed and one node, got %d", len(sink.nodes()))
	}
}

// TestEngineFanOut tests truncation of retained edges in provider order.
func TestEngineFanOut(t *testing.T) {
	t.Parallel()

	g := newFakeGraph(edge(1, 2), edge(1, 3), edge(4, 1), edge(1, 5), edge(1, 6))
	s := settings(1)
	s.MaxFanOut = 2
	sink, stats := crawl(t, g, &fakeLabels{}, s)

	nodes := sink.nodes()[1:]
	if len(nodes) != 2 || nodes[0].Address != addr(2) || nodes[1].Address != addr(3) {
		t.Errorf("expected first two counterparties, got %v", nodes)
	}
	if stats.Edges != 2 {
		t.Errorf("expected 2 edges, got %d", stats.Edges)
	}
}

// TestEngineLabelTerminality tests that labelled nodes are leaves and
// that each expansion resolves exactly its new nodes once.
func TestEngineLabelTerminality(t *testing.T) {
	t.Parallel()

	g := newFakeGraph(edge(1, 2), edge(1, 3), edge(2, 4), edge(3, 5), edge(2, 3))
	labels := &fakeLabels{labels: map[model.Address]string{addr(2): "bridge"}}
	_, _ = crawl(t, g, labels, settings(5))

	if g.calls(addr(2)) != 0 {
		t.Error("labelled node was expanded")
	}
	if g.calls(addr(4)) != 0 {
		t.Error("node reachable only through a labelled node was expanded")
	}
	if g.calls(addr(3)) != 1 || g.calls(addr(5)) != 1 {
		t.Error("expected unlabelled nodes to be expanded exactly once")
	}

	labels.mu.Lock()
	defer labels.mu.Unlock()
	if len(labels.batches) == 0 {
		t.Fatal("expected label resolution")
	}
	first := labels.batches[0]
	if len(first) != 2 || first[0] != addr(2) || first[1] != addr(3) {
		t.Errorf("unexpected first batch: %v", first)
	}
	seen := make(map[model.Address]bool)
	for _, batch := range labels.batches {
		if len(batch) == 0 {
			t.Error("resolver called with an empty batch")
		}
		for _, a := range batch {
			if seen[a] {
				t.Errorf("address %s resolved twice", a)
			}
			seen[a] = true
		}
	}
}

// TestEngineNoDuplicates tests cycle handling under concurrency.
func TestEngineNoDuplicates(t *testing.T) {
	t.Parallel()

	// A dense graph where every node talks to every other node.
	var edges []model.Edge
	for i := 1; i <= 12; i++ {
		for j := 1; j <= 12; j++ {
			if i != j {
				edges = append(edges, edge(i, j))
			}
		}
	}

	for _, order := range []model.TraversalOrder{model.DepthFirst, model.BreadthFirst} {
		t.Run(order.String(), func(t *testing.T) {
			t.Parallel()

			g := newFakeGraph(edges...)
			s := settings(5)
			s.Order = order
			s.Concurrency = 8
			sink, stats := crawl(t, g, &fakeLabels{}, s)

			seen := make(map[model.Address]bool)
			for _, n := range sink.nodes() {
				if seen[n.Address] {
					t.Errorf("duplicate node event for %s", n.Address)
				}
				seen[n.Address] = true
			}
			if len(seen) != 12 {
				t.Errorf("expected 12 nodes, got %d", len(seen))
			}
			for i := 1; i <= 12; i++ {
				if c := g.calls(addr(i)); c > 1 {
					t.Errorf("address %d expanded %d times", i, c)
				}
			}
			if stats.Nodes != 12 {
				t.Errorf("expected Nodes 12, got %d", stats.Nodes)
			}
		})
	}
}

// TestEngineOrder tests depth-first and breadth-first discovery order.
func TestEngineOrder(t *testing.T) {
	t.Parallel()

	// 1 -> 2, 3; 2 -> 4; 4 -> 5; 3 -> 6.
	build := func() *fakeGraph {
		return newFakeGraph(edge(1, 2), edge(1, 3), edge(2, 4), edge(4, 5), edge(3, 6))
	}
	s := settings(5)
	s.Backward = false

	tests := []struct {
		order model.TraversalOrder
		want  []int
	}{
		{order: model.DepthFirst, want: []int{1, 2, 3, 4, 5, 6}},
		{order: model.BreadthFirst, want: []int{1, 2, 3, 4, 6, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.order.String(), func(t *testing.T) {
			t.Parallel()

			s := s
			s.Order = tt.order
			s.Concurrency = 1
			sink, _ := crawl(t, build(), &fakeLabels{}, s)

			nodes := sink.nodes()
			if len(nodes) != len(tt.want) {
				t.Fatalf("expected %d nodes, got %d", len(tt.want), len(nodes))
			}
			for i, n := range nodes {
				if n.Address != addr(tt.want[i]) {
					t.Errorf("position %d: expected %s, got %s", i, addr(tt.want[i]), n.Address)
				}
			}
		})
	}
}

// TestEngineProviderFailure tests that a failed edge fetch is a leaf.
func TestEngineProviderFailure(t *testing.T) {
	t.Parallel()

	g := newFakeGraph(edge(1, 2), edge(1, 3), edge(2, 4), edge(3, 5))
	g.errs[addr(2)] = errors.New("upstream unavailable")
	sink, stats := crawl(t, g, &fakeLabels{}, settings(3))

	if stats.Failures != 1 {
		t.Errorf("expected 1 failure, got %d", stats.Failures)
	}
	for _, n := range sink.nodes() {
		if n.Address == addr(4) {
			t.Error("node behind failed fetch must not be discovered")
		}
	}
	if g.calls(addr(3)) != 1 {
		t.Error("crawl must continue after a provider failure")
	}
}

// TestEngineErrors tests fatal conditions.
func TestEngineErrors(t *testing.T) {
	t.Parallel()

	t.Run("invalid settings emit nothing", func(t *testing.T) {
		t.Parallel()

		sink := &recordingSink{}
		s := settings(1)
		s.Forward, s.Backward = false, false
		_, err := New(newFakeGraph(), &fakeLabels{}, sink, WithLogger(quietLogger())).
			Crawl(context.Background(), addr(1), s)
		if !errors.Is(err, model.ErrNoDirection) {
			t.Errorf("expected ErrNoDirection, got %v", err)
		}
		if len(sink.events()) != 0 {
			t.Error("expected no events")
		}
	})

	t.Run("sink error aborts", func(t *testing.T) {
		t.Parallel()

		want := errors.New("disk full")
		sink := &recordingSink{err: want}
		g := newFakeGraph(edge(1, 2))
		_, err := New(g, &fakeLabels{}, sink, WithLogger(quietLogger())).
			Crawl(context.Background(), addr(1), settings(2))
		if !errors.Is(err, want) {
			t.Errorf("expected sink error, got %v", err)
		}
		if g.calls(addr(1)) != 0 {
			t.Error("crawl continued after the seed write failed")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		sink := &recordingSink{}
		_, err := New(newFakeGraph(edge(1, 2)), &fakeLabels{}, sink, WithLogger(quietLogger())).
			Crawl(ctx, addr(1), settings(2))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
