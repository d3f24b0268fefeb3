// Package relay fans final captions out to external sinks without ever
// blocking a session.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

const deliverTimeout = 10 * time.Second

type Caption struct {
	SessionID int64
	Seq       int64
	Text      string
	At        time.Time
}

type Sink interface {
	Name() string
	Deliver(ctx context.Context, c Caption) error
}

// Dispatcher queues captions and delivers them from a single worker.
type Dispatcher struct {
	sinks   []Sink
	queue   chan Caption
	dropped atomic.Int64
}

func NewDispatcher(sinks []Sink, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		sinks: sinks,
		queue: make(chan Caption, queueSize),
	}
}

func (d *Dispatcher) Enabled() bool {
	return len(d.sinks) > 0
}

// Publish enqueues c. It reports false only when c was dropped because the
// queue is full.
func (d *Dispatcher) Publish(c Caption) bool {
	if !d.Enabled() {
		return true
	}
	select {
	case d.queue <- c:
		return true
	default:
		d.dropped.Add(1)
		return false
	}
}

func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Run delivers queued captions until ctx is done, then drains what is left.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.Enabled() {
		<-ctx.Done()
		return nil
	}
	for {
		select {
		case c := <-d.queue:
			d.deliver(c)
		case <-ctx.Done():
			d.drain()
			return nil
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case c := <-d.queue:
			d.deliver(c)
		default:
			if n := d.dropped.Load(); n > 0 {
				slog.Warn("caption relay dropped captions", "dropped", n)
			}
			return
		}
	}
}

func (d *Dispatcher) deliver(c Caption) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
		err := sink.Deliver(ctx, c)
		cancel()
		if err != nil {
			slog.Error("failed to relay caption", "sink", sink.Name(), "session_id", c.SessionID, "seq", c.Seq, "error", err)
		}
	}
}

func formatCaption(c Caption) string {
	return fmt.Sprintf("[#%d] %s", c.SessionID, c.Text)
}
