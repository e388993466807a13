// Package convlog persists conversation messages to SQLite. Streamed
// responses are written chunk by chunk, so a broken connection leaves the
// partial text on disk with the non-final marker still set.
package convlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// seq orders read-back: created_at only has one-second resolution, so a
// user/assistant pair written back to back would tie on it.
const schema = `
CREATE TABLE IF NOT EXISTS messages (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	session_id TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL DEFAULT '',
	is_final   INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
`

// Entry is one persisted message.
type Entry struct {
	ID        string
	SessionID string
	Role      string
	Content   string
	Final     bool
	CreatedAt time.Time
}

// Log is the durable conversation log.
type Log struct {
	db *sql.DB
}

// Open opens (and if needed creates) the log database at path.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open conversation log: %w", err)
	}
	// SQLite serializes writers; a single connection avoids lock contention.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init conversation log schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error { return l.db.Close() }

// Append records a complete message and returns its identifier.
func (l *Log) Append(ctx context.Context, sessionID, role, content string) (string, error) {
	id := uuid.NewString()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, is_final) VALUES (?, ?, ?, ?, 1)`,
		id, sessionID, role, content,
	)
	if err != nil {
		return "", fmt.Errorf("append message: %w", err)
	}
	return id, nil
}

// AppendChunk appends a streamed delta to the message row identified by id,
// creating the row on the first chunk. The row stays non-final until
// Finalize runs, so an interrupted stream is distinguishable on disk.
func (l *Log) AppendChunk(ctx context.Context, id, sessionID, role, delta string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, is_final) VALUES (?, ?, ?, ?, 0)
		 ON CONFLICT(id) DO UPDATE SET content = content || excluded.content`,
		id, sessionID, role, delta,
	)
	if err != nil {
		return fmt.Errorf("append chunk: %w", err)
	}
	return nil
}

// Finalize replaces the accumulated content with the assembled text and
// marks the message final.
func (l *Log) Finalize(ctx context.Context, id, content string) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE messages SET content = ?, is_final = 1 WHERE id = ?`,
		content, id,
	)
	if err != nil {
		return fmt.Errorf("finalize message: %w", err)
	}
	return nil
}

// Messages returns a session's messages in insertion order.
func (l *Log) Messages(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, is_final, created_at
		 FROM messages WHERE session_id = ? ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Role, &e.Content, &e.Final, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
