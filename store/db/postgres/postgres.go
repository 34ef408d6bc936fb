// Package postgres implements the remote conversation backend on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// DB wraps a PostgreSQL connection implementing store.Driver.
type DB struct {
	db *sql.DB
}

// NewDB opens a connection with the given DSN and ensures the schema exists.
func NewDB(ctx context.Context, dsn string) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	d := &DB{db: db}
	if err := d.ensureTables(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ensure tables")
	}
	return d, nil
}

func (*DB) Name() string { return "postgres" }

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) ensureTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT   PRIMARY KEY,
			user_id    TEXT   NOT NULL,
			title      TEXT   NOT NULL DEFAULT 'New Chat',
			created_ts BIGINT NOT NULL,
			updated_ts BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id              SERIAL PRIMARY KEY,
			conversation_id TEXT   NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role            TEXT   NOT NULL,
			content         TEXT   NOT NULL,
			created_ts      BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id)`,
	}
	for _, s := range stmts {
		if _, err := d.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}
