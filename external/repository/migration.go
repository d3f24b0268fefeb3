package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`DO $$ BEGIN CREATE TYPE stream_session_status AS ENUM ('streaming', 'closed'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS stream_sessions (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		run_id UUID NOT NULL,
		session_number BIGINT NOT NULL,
		remote_addr TEXT NOT NULL DEFAULT '',
		sample_rate INTEGER NOT NULL,
		reported_client_rate INTEGER,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		status stream_session_status NOT NULL DEFAULT 'streaming',
		bytes_received BIGINT NOT NULL DEFAULT 0,
		partial_count INTEGER NOT NULL DEFAULT 0,
		final_count INTEGER NOT NULL DEFAULT 0,
		error_count INTEGER NOT NULL DEFAULT 0,
		close_reason TEXT NOT NULL DEFAULT '',
		UNIQUE(run_id, session_number)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stream_sessions_streaming ON stream_sessions (run_id) WHERE status = 'streaming'`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
