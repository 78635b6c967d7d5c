package finAuth

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// auditDispatcher delivers events to the sink from one worker goroutine.
// Callers only ever wait for buffer space, never for sink I/O.
type auditDispatcher struct {
	sink       AuditSink
	dropIfFull bool

	// mu guards queue against a send racing Close; senders hold it shared.
	mu      sync.RWMutex
	queue   chan AuditEvent
	stopped bool

	flushed chan struct{}
	dropped atomic.Uint64
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	d := &auditDispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan AuditEvent, max(cfg.BufferSize, 1)),
		flushed:    make(chan struct{}),
	}
	go d.deliver()
	return d
}

// deliver runs until the queue is closed and empty.
func (d *auditDispatcher) deliver() {
	defer close(d.flushed)
	for event := range d.queue {
		d.sink.Emit(context.Background(), event)
	}
}

// Emit queues event, stamping ID and Timestamp when unset. With DropIfFull a
// full queue drops the event; otherwise Emit waits for room or for ctx.
// Events emitted after Close are ignored.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	stamp(&event)

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	}
}

func stamp(event *AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
}

// Close stops intake and returns once every accepted event reached the
// sink. Safe to call more than once.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.flushed
}

// Dropped reports events lost to a full queue or an abandoned wait.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
