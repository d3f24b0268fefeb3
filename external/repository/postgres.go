package repository

import (
	"context"
	"errors"
	"time"

	"github.com/foxseedlab/kikitori/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrSessionNotFound = errors.New("stream session not found")

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreateSession(ctx context.Context, input repository.CreateSessionInput) (*repository.StreamSession, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO stream_sessions (run_id, session_number, remote_addr, sample_rate, started_at, status)
		 VALUES ($1, $2, $3, $4, $5, 'streaming')
		 RETURNING id, run_id, session_number, remote_addr, sample_rate, started_at, status`,
		input.RunID, input.SessionNumber, input.RemoteAddr, input.SampleRate, input.StartedAt)
	var s repository.StreamSession
	if err := row.Scan(&s.ID, &s.RunID, &s.SessionNumber, &s.RemoteAddr, &s.SampleRate, &s.StartedAt, &s.Status); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PostgresRepository) UpdateSessionCompleted(ctx context.Context, input repository.CompleteSessionInput) error {
	var reportedRate *int
	if input.ReportedClientRate > 0 {
		reportedRate = &input.ReportedClientRate
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE stream_sessions
		 SET status = 'closed', ended_at = $2, reported_client_rate = $3, bytes_received = $4,
		     partial_count = $5, final_count = $6, error_count = $7, close_reason = $8
		 WHERE id = $1`,
		input.SessionID, input.EndedAt, reportedRate, input.BytesReceived,
		input.PartialCount, input.FinalCount, input.ErrorCount, input.CloseReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// CloseStreamingSessions marks rows left open by earlier runs as closed.
func (r *PostgresRepository) CloseStreamingSessions(ctx context.Context, runID string, endedAt time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE stream_sessions SET status = 'closed', ended_at = $2, close_reason = 'orphaned'
		 WHERE status = 'streaming' AND run_id <> $1`,
		runID, endedAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
