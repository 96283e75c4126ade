package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Schema creates the link_events table.
const Schema = `
CREATE TABLE IF NOT EXISTS link_events (
	id        uuid PRIMARY KEY,
	instance  text        NOT NULL,
	endpoint  text        NOT NULL,
	session   uuid,
	kind      text        NOT NULL,
	reason    text,
	error     text,
	attempt   bigint      NOT NULL DEFAULT 0,
	at        timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS link_events_at_idx ON link_events (at);
CREATE INDEX IF NOT EXISTS link_events_session_idx ON link_events (session);
`

const insertSQL = `
	INSERT INTO link_events (id, instance, endpoint, session, kind, reason, error, attempt, at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO NOTHING
`

// Execer runs a statement. *pgxpool.Pool satisfies it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EnsureSchema creates the journal table and indexes if they are missing.
func EnsureSchema(ctx context.Context, db Execer) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create link_events: %w", err)
	}
	return nil
}
