package repository

import (
	"context"
	"time"

	"github.com/foxseedlab/kikitori/internal/repository"
)

// NoopRepository is used when no database is configured.
type NoopRepository struct{}

func (NoopRepository) CreateSession(context.Context, repository.CreateSessionInput) (*repository.StreamSession, error) {
	return nil, nil
}

func (NoopRepository) UpdateSessionCompleted(context.Context, repository.CompleteSessionInput) error {
	return nil
}

func (NoopRepository) CloseStreamingSessions(context.Context, string, time.Time) (int64, error) {
	return 0, nil
}
