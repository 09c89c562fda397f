package crawler

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nao1215/chaincrawl/internal/model"
)

// TestVisitedSet tests the atomic check-and-insert.
func TestVisitedSet(t *testing.T) {
	t.Parallel()

	t.Run("first insert wins", func(t *testing.T) {
		t.Parallel()

		v := NewVisitedSet()
		if !v.TryAdd(addr(1)) {
			t.Error("expected first insert to succeed")
		}
		if v.TryAdd(addr(1)) {
			t.Error("expected second insert to fail")
		}
		if !v.Contains(addr(1)) || v.Contains(addr(2)) {
			t.Error("unexpected membership")
		}
		if v.Len() != 1 {
			t.Errorf("expected length 1, got %d", v.Len())
		}
	})

	t.Run("exactly one concurrent winner", func(t *testing.T) {
		t.Parallel()

		v := NewVisitedSet()
		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 64 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if v.TryAdd(addr(42)) {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		if wins.Load() != 1 {
			t.Errorf("expected exactly one winner, got %d", wins.Load())
		}
	})
}

// TestLineSink tests line rendering of event blocks.
func TestLineSink(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewLineSink(&buf)
	err := sink.EmitAll([]model.Event{
		model.NodeEvent{Address: addr(1), Label: model.Starter},
		model.NewEdgeEvent(edge(1, 2)),
	})
	if err != nil {
		t.Fatalf("emit failed: %v", err)
	}

	want := "Node: id=[" + addr(1).String() + "] label=[STARTER] depth=[0]\n" +
		`Edge:{"from":"` + addr(1).String() + `","to":"` + addr(2).String() + `","txs":[]}` + "\n"
	if buf.String() != want {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

type errWriter struct{}

func (errWriter) Write([]byte) (int, error) { return 0, errors.New("closed pipe") }

// TestMultiSink tests fan-out and error propagation.
func TestMultiSink(t *testing.T) {
	t.Parallel()

	a, b := &recordingSink{}, &recordingSink{}
	events := []model.Event{model.NodeEvent{Address: addr(1), Label: model.Starter}}
	if err := (MultiSink{a, b}).EmitAll(events); err != nil {
		t.Fatalf("emit failed: %v", err)
	}
	if len(a.events()) != 1 || len(b.events()) != 1 {
		t.Error("expected both sinks to receive the event")
	}

	if err := (MultiSink{NewLineSink(errWriter{}), a}).EmitAll(events); err == nil {
		t.Error("expected write error")
	}
	if len(a.events()) != 1 {
		t.Error("sink after a failing one must not receive events")
	}
}
