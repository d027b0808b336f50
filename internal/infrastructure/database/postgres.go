package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOption adjusts the pool configuration before the pool is created.
type PoolOption func(*pgxpool.Config)

// WithMaxConns caps the pool size; n <= 0 keeps the default.
func WithMaxConns(n int) PoolOption {
	return func(cfg *pgxpool.Config) {
		if n > 0 {
			cfg.MaxConns = int32(n)
		}
	}
}

// Connect opens a pgx pool for dsn and pings it. Driver suffixes such as
// "postgresql+asyncpg://" are accepted and stripped.
func Connect(ctx context.Context, dsn string, opts ...PoolOption) (*pgxpool.Pool, error) {
	normalized := normalizeDSN(dsn)
	if normalized == "" {
		return nil, fmt.Errorf("postgres: empty DSN")
	}

	cfg, err := pgxpool.ParseConfig(normalized)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = "chatline"
	}
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 8
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.MaxConnLifetime = time.Hour
	cfg.HealthCheckPeriod = time.Minute

	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return pool, nil
}

// schema is idempotent; Migrate runs it on every start when enabled.
const schema = `
CREATE SCHEMA IF NOT EXISTS chat;

CREATE TABLE IF NOT EXISTS chat.conversation (
	id              text PRIMARY KEY,
	kind            text NOT NULL CHECK (kind IN ('single', 'group')),
	name            text,
	members         text[] NOT NULL,
	admins          text[] NOT NULL DEFAULT '{}',
	pair_key        text,
	last_message_at timestamptz,
	created_at      timestamptz NOT NULL,
	updated_at      timestamptz NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS conversation_single_pair_uq
	ON chat.conversation (pair_key) WHERE kind = 'single';

CREATE INDEX IF NOT EXISTS conversation_members_gin
	ON chat.conversation USING gin (members);

CREATE TABLE IF NOT EXISTS chat.message (
	seq             bigserial,
	id              text PRIMARY KEY,
	conversation_id text NOT NULL REFERENCES chat.conversation (id) ON DELETE CASCADE,
	sender_id       text NOT NULL,
	content         text NOT NULL DEFAULT '',
	attachments     jsonb NOT NULL DEFAULT '[]',
	seen_by         text[] NOT NULL DEFAULT '{}',
	created_at      timestamptz NOT NULL
);

CREATE INDEX IF NOT EXISTS message_conversation_created_idx
	ON chat.message (conversation_id, created_at DESC, seq DESC);
`

// Migrate creates the chat schema if it does not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, schema); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
		return nil
	})
}

// normalizeDSN converts known non-pgx DSN variants to a pgx-compatible DSN.
func normalizeDSN(dsn string) string {
	s := strings.TrimSpace(dsn)
	if s == "" {
		return s
	}
	// Normalize SQLAlchemy-style driver suffixes often found in .env files
	// e.g., postgresql+asyncpg:// -> postgresql://
	s = strings.Replace(s, "postgresql+asyncpg://", "postgresql://", 1)
	s = strings.Replace(s, "postgres+asyncpg://", "postgres://", 1)
	s = strings.Replace(s, "postgresql+pgx://", "postgresql://", 1)
	s = strings.Replace(s, "postgres+pgx://", "postgres://", 1)

	return s
}
