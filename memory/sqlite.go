package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/petasbytes/toolstream/internal/chat"
)

const messagesSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL DEFAULT '',
	sequence        INTEGER NOT NULL,
	tool_name       TEXT NOT NULL DEFAULT '',
	tool_input      TEXT NOT NULL DEFAULT '',
	tool_output     TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL,
	UNIQUE (conversation_id, sequence)
);`

// SQLiteStore persists messages in a SQLite database.
//
// Sequence numbers are assigned inside the INSERT itself and guarded by a
// UNIQUE(conversation_id, sequence) constraint, so concurrent appends to the
// same conversation can never share or reorder a sequence.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("memory: open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("memory: set pragma: %w", err)
		}
	}
	if _, err := db.Exec(messagesSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: init schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Append(ctx context.Context, conversationID string, msg Message) (Message, error) {
	stored, err := prepare(conversationID, msg, 0, s.now())
	if err != nil {
		return Message{}, err
	}
	row := s.db.QueryRowContext(ctx, `
INSERT INTO messages (id, conversation_id, role, content, sequence, tool_name, tool_input, tool_output, created_at)
SELECT ?, ?, ?, ?, COALESCE(MAX(sequence), 0) + 1, ?, ?, ?, ?
FROM messages WHERE conversation_id = ?
RETURNING sequence`,
		stored.ID, conversationID, string(stored.Role), stored.Content,
		stored.ToolName, string(stored.ToolInput), stored.ToolOutput,
		stored.CreatedAt.Format(time.RFC3339Nano), conversationID,
	)
	if err := row.Scan(&stored.Sequence); err != nil {
		return Message{}, fmt.Errorf("memory: append message: %w", err)
	}
	return stored, nil
}

func (s *SQLiteStore) ListBySequence(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, conversation_id, role, content, sequence, tool_name, tool_input, tool_output, created_at
FROM messages WHERE conversation_id = ? ORDER BY sequence ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("memory: list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m         Message
			role      string
			toolInput string
			created   string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.Sequence,
			&m.ToolName, &toolInput, &m.ToolOutput, &created); err != nil {
			return nil, fmt.Errorf("memory: scan message: %w", err)
		}
		m.Role = chat.Role(role)
		if toolInput != "" {
			m.ToolInput = []byte(toolInput)
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			m.CreatedAt = ts
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
