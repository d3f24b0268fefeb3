package repository

import (
	"context"
	"time"
)

type CreateSessionInput struct {
	RunID         string
	SessionNumber int64
	RemoteAddr    string
	SampleRate    int
	StartedAt     time.Time
}

type CompleteSessionInput struct {
	SessionID          string
	EndedAt            time.Time
	ReportedClientRate int
	BytesReceived      int64
	PartialCount       int
	FinalCount         int
	ErrorCount         int
	CloseReason        string
}

// Repository records session lifecycles. CreateSession may return a nil
// session when nothing is recorded.
type Repository interface {
	CreateSession(ctx context.Context, input CreateSessionInput) (*StreamSession, error)
	UpdateSessionCompleted(ctx context.Context, input CompleteSessionInput) error
	CloseStreamingSessions(ctx context.Context, runID string, endedAt time.Time) (int64, error)
}
