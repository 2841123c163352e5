package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Overflow selects what Emit does when the buffer is full.
type Overflow int

const (
	// Block waits for room or for the caller's context to end.
	Block Overflow = iota
	// Drop discards the event and counts it.
	Drop
)

// Options sizes a Dispatcher.
type Options struct {
	Buffer   int
	Overflow Overflow
}

// Dispatcher moves events off the request path and into a Sink from one
// worker goroutine. A nil *Dispatcher discards everything, which is how
// the engine runs with auditing off.
type Dispatcher struct {
	sink     Sink
	overflow Overflow
	queue    chan Event
	finished chan struct{}
	dropped  atomic.Uint64

	// mu guards closed and the close of queue. Emit holds it shared for
	// the whole send.
	mu     sync.RWMutex
	closed bool
}

// Start launches a dispatcher delivering to sink.
func Start(opts Options, sink Sink) *Dispatcher {
	if sink == nil {
		sink = Discard{}
	}
	d := &Dispatcher{
		sink:     sink,
		overflow: opts.Overflow,
		queue:    make(chan Event, max(opts.Buffer, 1)),
		finished: make(chan struct{}),
	}
	go d.deliver()
	return d
}

func (d *Dispatcher) deliver() {
	defer close(d.finished)
	for ev := range d.queue {
		d.sink.Emit(context.Background(), ev)
	}
}

// Emit queues ev. After Close it is a no-op.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.overflow == Drop {
		select {
		case d.queue <- ev:
		default:
			d.dropped.Add(1)
		}
		return
	}
	select {
	case d.queue <- ev:
	case <-ctx.Done():
	}
}

// Close stops intake, lets the worker deliver everything already queued
// and returns once it has. Calling Close again only waits.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.finished
}

// Dropped returns how many events Drop mode discarded.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
