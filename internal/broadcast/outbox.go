package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Writer writes one frame to the underlying connection, giving up at deadline.
type Writer interface {
	WriteFrame(data []byte, deadline time.Time) error
}

// Outbox is a bounded per-connection queue drained by a single writer
// goroutine (Run). One writer per connection keeps frames in enqueue order.
type Outbox struct {
	id      string
	queue   chan []byte
	w       Writer
	timeout time.Duration
	logger  *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Int64
}

// NewOutbox creates an outbox with room for size pending frames.
func NewOutbox(id string, size int, w Writer, timeout time.Duration, logger *slog.Logger) *Outbox {
	if size < 1 {
		size = 1
	}
	return &Outbox{
		id:      id,
		queue:   make(chan []byte, size),
		w:       w,
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

func (o *Outbox) ID() string { return o.id }

// Deliver enqueues a broadcast frame.
func (o *Outbox) Deliver(_ Message, data []byte) error {
	return o.Send(data)
}

// Send enqueues a raw frame without blocking.
func (o *Outbox) Send(data []byte) error {
	select {
	case <-o.done:
		return ErrClosed
	default:
	}
	select {
	case o.queue <- data:
		return nil
	default:
		o.dropped.Add(1)
		return ErrOutboxFull
	}
}

// Dropped reports how many frames were discarded because the queue was full.
func (o *Outbox) Dropped() int64 { return o.dropped.Load() }

// Run writes queued frames until ctx ends, Close is called or a write fails.
// It closes the outbox on return.
func (o *Outbox) Run(ctx context.Context) error {
	defer o.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.done:
			return nil
		case data := <-o.queue:
			if err := o.w.WriteFrame(data, time.Now().Add(o.timeout)); err != nil {
				o.logger.Debug("Outbox write failed", "conn_id", o.id, "error", err)
				return err
			}
		}
	}
}

// Close stops the outbox; pending frames are discarded.
func (o *Outbox) Close() {
	o.closeOnce.Do(func() { close(o.done) })
}

// Done is closed once the outbox stops.
func (o *Outbox) Done() <-chan struct{} { return o.done }
