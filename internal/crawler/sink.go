package crawler

import (
	"bufio"
	"io"
	"sync"

	"github.com/nao1215/chaincrawl/internal/model"
)

// Sink receives the events of a crawl.
// The engine emits one expansion's events as a single EmitAll call so that
// a node's edges and discoveries stay contiguous in the stream.
type Sink interface {
	EmitAll(events []model.Event) error
}

// LineSink writes events to an io.Writer, one line per event.
// It is safe for concurrent use.
type LineSink struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewLineSink creates a LineSink writing to w.
func NewLineSink(w io.Writer) *LineSink {
	return &LineSink{w: bufio.NewWriter(w)}
}

// EmitAll writes events in order and flushes, so a consumer reading the
// stream sees each expansion as soon as it completes.
func (s *LineSink) EmitAll(events []model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range events {
		if _, err := s.w.WriteString(ev.Line()); err != nil {
			return err
		}
		if err := s.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return s.w.Flush()
}

// MultiSink forwards events to several sinks in order.
// It stops on the first error.
type MultiSink []Sink

// EmitAll implements Sink.
func (m MultiSink) EmitAll(events []model.Event) error {
	for _, s := range m {
		if err := s.EmitAll(events); err != nil {
			return err
		}
	}
	return nil
}
