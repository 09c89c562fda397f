package report

import (
	"bufio"
	"bytes"
	"cmp"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/nao1215/chaincrawl/internal/model"
)

// maxLineBytes bounds a single stream line. Edge records list every
// transaction hash between two addresses and can be long.
const maxLineBytes = 16 << 20

// Summary describes one crawl.
type Summary struct {
	// Root is the seed address, zero if the stream had no STARTER node.
	Root model.Address `json:"root"`
	// Nodes is the number of node records, the seed included.
	Nodes int `json:"nodes"`
	// Edges is the number of edge records.
	Edges int `json:"edges"`
	// Transactions is the number of transaction hashes over all edges.
	Transactions int `json:"transactions"`
	// MaxDepth is the deepest node depth seen.
	MaxDepth int `json:"maxDepth"`
	// ByDepth counts nodes per depth.
	ByDepth map[int]int `json:"byDepth"`
	// Labels counts labelled nodes per label.
	Labels map[string]int `json:"labels"`
	// Labelled lists labelled nodes in stream order.
	Labelled []model.NodeEvent `json:"labelled"`
	// Unlabelled is the number of nodes without a label, the seed excluded.
	Unlabelled int `json:"unlabelled"`
	// Skipped is the number of stream lines that could not be parsed.
	Skipped int `json:"skipped,omitempty"`
}

// LabelCount is the number of nodes carrying one label.
type LabelCount struct {
	Label string
	Count int
}

// HasRoot reports whether the seed node was seen.
func (s *Summary) HasRoot() bool {
	return !s.Root.IsZero()
}

// Depths returns the depths that have nodes, ascending.
func (s *Summary) Depths() []int {
	depths := make([]int, 0, len(s.ByDepth))
	for d := range s.ByDepth {
		depths = append(depths, d)
	}
	slices.Sort(depths)
	return depths
}

// TopLabels returns up to n labels by node count, most frequent first.
// Ties are ordered by label. n <= 0 returns all labels.
func (s *Summary) TopLabels(n int) []LabelCount {
	out := make([]LabelCount, 0, len(s.Labels))
	for l, c := range s.Labels {
		out = append(out, LabelCount{Label: l, Count: c})
	}
	slices.SortFunc(out, func(a, b LabelCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Collector accumulates a Summary from events.
// It is safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	summary Summary
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		summary: Summary{
			ByDepth: make(map[int]int),
			Labels:  make(map[string]int),
		},
	}
}

// EmitAll records events. It never fails, so it can sit next to the
// output stream in a multi-sink.
func (c *Collector) EmitAll(events []model.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ev := range events {
		c.add(ev)
	}
	return nil
}

func (c *Collector) add(ev model.Event) {
	s := &c.summary

	switch e := ev.(type) {
	case model.NodeEvent:
		s.Nodes++
		s.ByDepth[e.Depth]++
		s.MaxDepth = max(s.MaxDepth, e.Depth)
		switch {
		case e.Label == model.Starter:
			s.Root = e.Address
		case e.IsLabelled():
			s.Labels[e.Label]++
			s.Labelled = append(s.Labelled, e)
		default:
			s.Unlabelled++
		}
	case model.EdgeEvent:
		s.Edges++
		s.Transactions += len(e.Txs)
	}
}

// Summary returns a snapshot of what has been collected so far.
func (c *Collector) Summary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.summary
	out.ByDepth = make(map[int]int, len(c.summary.ByDepth))
	for d, n := range c.summary.ByDepth {
		out.ByDepth[d] = n
	}
	out.Labels = make(map[string]int, len(c.summary.Labels))
	for l, n := range c.summary.Labels {
		out.Labels[l] = n
	}
	out.Labelled = slices.Clone(c.summary.Labelled)
	return &out
}

// ReadStream feeds a saved event stream into the Collector. Blank lines are
// ignored; lines that are not event records are counted in Summary.Skipped
// so that a stream with interleaved noise still summarizes.
func (c *Collector) ReadStream(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		ev, err := model.ParseLine(string(line))
		if err != nil {
			c.skip()
			continue
		}
		if err := c.EmitAll([]model.Event{ev}); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read event stream: %w", err)
	}
	return nil
}

func (c *Collector) skip() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summary.Skipped++
}
