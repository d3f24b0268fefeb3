package recognizer

import (
	"context"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
)

// Gate bounds how many recognitions run at once across all sessions. With a
// limit of one it serializes access to an engine that is not reentrant.
// Callers block only their own session while waiting.
type Gate struct {
	next Recognizer
	sem  *semaphore.Weighted
}

func NewGate(next Recognizer, limit int) *Gate {
	if limit <= 0 {
		limit = 1
	}
	return &Gate{next: next, sem: semaphore.NewWeighted(int64(limit))}
}

func (g *Gate) Recognize(ctx context.Context, req Request) (string, error) {
	if len(req.Samples) == 0 {
		return "", nil
	}
	waitStart := time.Now()
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer g.sem.Release(1)
	if waited := time.Since(waitStart); waited > time.Second {
		slog.Debug("recognizer gate wait", "waited_ms", waited.Milliseconds(), "samples", len(req.Samples))
	}
	return g.next.Recognize(ctx, req)
}

// Close releases the wrapped engine when it holds resources.
func (g *Gate) Close() error {
	if c, ok := g.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
