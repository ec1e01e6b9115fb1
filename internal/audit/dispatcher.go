package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull keeps Emit non-blocking when the buffer is saturated.
	// Dropped events are counted, never silently lost.
	DropIfFull bool
}

// Dispatcher asynchronously forwards audit events to a sink. A nil
// *Dispatcher is valid and drops everything, so callers never branch on
// whether auditing is enabled.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool

	// mu serializes channel sends against Close so the intake channel is
	// never closed mid-send.
	mu     sync.RWMutex
	closed bool
	ch     chan Event

	wg      sync.WaitGroup
	dropped atomic.Uint64
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		ch:         make(chan Event, cfg.BufferSize),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// run drains the intake channel until Close closes it, which also flushes
// everything buffered at that point.
func (d *Dispatcher) run() {
	defer d.wg.Done()
	for event := range d.ch {
		d.sink.Emit(context.Background(), event)
	}
}

func (d *Dispatcher) Emit(ctx context.Context, event Event) {
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

	if d.dropIfFull {
		select {
		case d.ch <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
	}
}

// Close stops intake, drains the buffer through the sink, and waits for
// the worker to exit. Safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()

	d.wg.Wait()
}

// Dropped reports how many events were discarded under DropIfFull pressure.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
