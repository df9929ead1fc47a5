package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/earshot/internal/journal"
)

var (
	_ journal.Sink   = (*Store)(nil)
	_ journal.Pinger = (*Store)(nil)
)

// Store is a PostgreSQL journal. It holds a single [pgxpool.Pool] and is safe
// for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, pings it and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Record implements [journal.Sink]. Recording the same ID twice is a no-op.
func (s *Store) Record(ctx context.Context, e journal.Entry) error {
	const q = `
		INSERT INTO utterances
		    (id, started_at, profile, state, text, raw_text, keywords, audio_ns, latency_ns, timed_out, error, trace_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Keywords == nil {
		e.Keywords = []string{}
	}
	_, err := s.pool.Exec(ctx, q,
		e.ID.String(),
		e.StartedAt,
		e.Profile,
		e.State,
		e.Text,
		e.Raw,
		e.Keywords,
		e.AudioDuration.Nanoseconds(),
		e.Latency.Nanoseconds(),
		e.TimedOut,
		e.Error,
		e.TraceID,
	)
	if err != nil {
		return fmt.Errorf("journal store: record: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. A non-positive limit
// returns every entry.
func (s *Store) Recent(ctx context.Context, limit int) ([]journal.Entry, error) {
	q := `
		SELECT id::text, started_at, profile, state, text, raw_text, keywords, audio_ns, latency_ns, timed_out, error, trace_id
		FROM   utterances
		ORDER  BY started_at DESC`
	var args []any
	if limit > 0 {
		q += "\nLIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal store: recent: %w", err)
	}
	return collectEntries(rows)
}

// Search returns entries whose text matches query, newest first.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]journal.Entry, error) {
	const q = `
		SELECT id::text, started_at, profile, state, text, raw_text, keywords, audio_ns, latency_ns, timed_out, error, trace_id
		FROM   utterances
		WHERE  to_tsvector('simple', text) @@ plainto_tsquery('simple', $1)
		ORDER  BY started_at DESC
		LIMIT  $2`

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, q, query, limit)
	if err != nil {
		return nil, fmt.Errorf("journal store: search: %w", err)
	}
	return collectEntries(rows)
}

// ByKeyword returns entries tagged with keyword, newest first. keyword is
// matched against the lower-cased keywords recorded with each entry.
func (s *Store) ByKeyword(ctx context.Context, keyword string, limit int) ([]journal.Entry, error) {
	const q = `
		SELECT id::text, started_at, profile, state, text, raw_text, keywords, audio_ns, latency_ns, timed_out, error, trace_id
		FROM   utterances
		WHERE  $1 = ANY(keywords)
		ORDER  BY started_at DESC
		LIMIT  $2`

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, q, strings.ToLower(keyword), limit)
	if err != nil {
		return nil, fmt.Errorf("journal store: by keyword: %w", err)
	}
	return collectEntries(rows)
}

// Ping implements [journal.Pinger].
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("journal store: ping: %w", err)
	}
	return nil
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// collectEntries scans pgx rows into journal entries.
func collectEntries(rows pgx.Rows) ([]journal.Entry, error) {
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (journal.Entry, error) {
		var (
			e                  journal.Entry
			id                 string
			audioNS, latencyNS int64
		)
		if err := row.Scan(
			&id,
			&e.StartedAt,
			&e.Profile,
			&e.State,
			&e.Text,
			&e.Raw,
			&e.Keywords,
			&audioNS,
			&latencyNS,
			&e.TimedOut,
			&e.Error,
			&e.TraceID,
		); err != nil {
			return journal.Entry{}, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return journal.Entry{}, err
		}
		e.ID = parsed
		e.AudioDuration = time.Duration(audioNS)
		e.Latency = time.Duration(latencyNS)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("journal store: scan rows: %w", err)
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	return entries, nil
}
