package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
)

// Sink receives events from the dispatcher's worker. Emit is called from
// a single goroutine.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Emit(context.Context, Event) {}

// Queue hands events to a reader through a buffered channel.
type Queue struct {
	events chan Event
}

// NewQueue returns a Queue holding up to size events.
func NewQueue(size int) *Queue {
	return &Queue{events: make(chan Event, max(size, 1))}
}

// Emit blocks while the queue is full unless ctx ends first.
func (q *Queue) Emit(ctx context.Context, event Event) {
	select {
	case q.events <- event:
	case <-ctx.Done():
	}
}

func (q *Queue) Events() <-chan Event {
	return q.events
}

// LineWriter encodes each event as one JSON line on w.
type LineWriter struct {
	mu     sync.Mutex
	enc    *json.Encoder
	failed atomic.Uint64
}

// NewLineWriter returns a LineWriter on w. A nil w yields a writer that
// discards everything.
func NewLineWriter(w io.Writer) *LineWriter {
	if w == nil {
		w = io.Discard
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &LineWriter{enc: enc}
}

func (l *LineWriter) Emit(_ context.Context, event Event) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(event); err != nil {
		l.failed.Add(1)
	}
}

// Failed returns how many events could not be written.
func (l *LineWriter) Failed() uint64 {
	if l == nil {
		return 0
	}
	return l.failed.Load()
}
