// Package postgres provides a PostgreSQL-backed [journal.Sink].
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Record(ctx, entry)
//	recent, _ := store.Recent(ctx, 20)
//	tagged, _ := store.ByKeyword(ctx, "kubernetes", 20)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlUtterances = `
CREATE TABLE IF NOT EXISTS utterances (
    id             UUID         PRIMARY KEY,
    started_at     TIMESTAMPTZ  NOT NULL,
    profile        TEXT         NOT NULL DEFAULT '',
    state          TEXT         NOT NULL,
    text           TEXT         NOT NULL DEFAULT '',
    raw_text       TEXT         NOT NULL DEFAULT '',
    keywords       TEXT[]       NOT NULL DEFAULT '{}',
    audio_ns       BIGINT       NOT NULL DEFAULT 0,
    latency_ns     BIGINT       NOT NULL DEFAULT 0,
    timed_out      BOOLEAN      NOT NULL DEFAULT false,
    error          TEXT         NOT NULL DEFAULT '',
    trace_id       TEXT         NOT NULL DEFAULT '',
    recorded_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_utterances_started_at
    ON utterances (started_at);

CREATE INDEX IF NOT EXISTS idx_utterances_keywords
    ON utterances USING GIN (keywords);

CREATE INDEX IF NOT EXISTS idx_utterances_fts
    ON utterances USING GIN (to_tsvector('simple', text));
`

// Migrate creates the journal table and its indexes. It is idempotent and
// safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlUtterances); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
