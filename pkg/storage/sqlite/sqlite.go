// Package sqlite provides a HistoryStore backed by a single SQLite file,
// using the pure-Go modernc.org/sqlite driver. The schema is created when
// the store opens.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rhuss/toolloop/pkg/api"
	"github.com/rhuss/toolloop/pkg/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	conversation_id TEXT    NOT NULL REFERENCES conversations (id) ON DELETE CASCADE,
	seq             INTEGER NOT NULL,
	role            TEXT    NOT NULL,
	content         TEXT    NOT NULL DEFAULT '',
	tool_call_id    TEXT    NOT NULL DEFAULT '',
	name            TEXT    NOT NULL DEFAULT '',
	tool_calls      TEXT,
	created_at      TEXT    NOT NULL,
	PRIMARY KEY (conversation_id, seq)
);

CREATE TABLE IF NOT EXISTS runs (
	id                  TEXT PRIMARY KEY,
	conversation_id     TEXT    NOT NULL,
	tenant_id           TEXT    NOT NULL DEFAULT '',
	status              TEXT    NOT NULL,
	state               TEXT    NOT NULL,
	model               TEXT    NOT NULL DEFAULT '',
	content             TEXT    NOT NULL DEFAULT '',
	interactions        INTEGER NOT NULL DEFAULT 0,
	usage_input_tokens  INTEGER NOT NULL DEFAULT 0,
	usage_output_tokens INTEGER NOT NULL DEFAULT 0,
	usage_total_tokens  INTEGER NOT NULL DEFAULT 0,
	error               TEXT,
	started_at          TEXT    NOT NULL,
	completed_at        TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_conversation ON runs (conversation_id);
`

// Store is a SQLite-backed HistoryStore.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ storage.HistoryStore = (*Store)(nil)

// Open opens or creates the database at path, creating parent directories
// as needed. ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	logger := slog.Default().With("component", "sqlite")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps a
	// ":memory:" database alive for the store's lifetime.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite history store initialized", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// AppendMessages appends msgs in one transaction.
func (s *Store) AppendMessages(ctx context.Context, conversationID string, msgs ...api.Message) error {
	tenantID := storage.GetTenant(ctx)
	now := formatTime(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, tenant_id, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET updated_at = excluded.updated_at`,
		conversationID, tenantID, now, now,
	); err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}

	var owner string
	if err := tx.QueryRowContext(ctx, `SELECT tenant_id FROM conversations WHERE id = ?`, conversationID).Scan(&owner); err != nil {
		return fmt.Errorf("reading conversation: %w", err)
	}
	if !storage.TenantVisible(tenantID, owner) {
		return storage.ErrNotFound
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), -1) + 1 FROM messages WHERE conversation_id = ?`, conversationID,
	).Scan(&next); err != nil {
		return fmt.Errorf("reading sequence: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (conversation_id, seq, role, content, tool_call_id, name, tool_calls, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range msgs {
		var toolCalls sql.NullString
		if len(m.ToolCalls) > 0 {
			data, err := json.Marshal(m.ToolCalls)
			if err != nil {
				return fmt.Errorf("marshaling tool calls: %w", err)
			}
			toolCalls = sql.NullString{String: string(data), Valid: true}
		}
		created := m.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			conversationID, next+i, string(m.Role), m.Content, m.ToolCallID, m.Name, toolCalls, formatTime(created),
		); err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}
	}
	return tx.Commit()
}

// LoadConversation returns the transcript ordered by sequence.
func (s *Store) LoadConversation(ctx context.Context, id string) (*api.Conversation, error) {
	var owner string
	err := s.db.QueryRowContext(ctx, `SELECT tenant_id FROM conversations WHERE id = ?`, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !storage.TenantVisible(storage.GetTenant(ctx), owner)) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, tool_call_id, name, tool_calls, created_at
		FROM messages WHERE conversation_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	conv := &api.Conversation{ID: id}
	for rows.Next() {
		var m api.Message
		var role, created string
		var toolCalls sql.NullString
		if err := rows.Scan(&role, &m.Content, &m.ToolCallID, &m.Name, &toolCalls, &created); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Role = api.Role(role)
		if toolCalls.Valid {
			if err := json.Unmarshal([]byte(toolCalls.String), &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshaling tool calls: %w", err)
			}
		}
		if m.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		conv.Messages = append(conv.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return conv, nil
}

// SaveRun inserts a run record.
func (s *Store) SaveRun(ctx context.Context, rec *storage.RunRecord) error {
	var errJSON sql.NullString
	if rec.Error != nil {
		data, err := json.Marshal(rec.Error)
		if err != nil {
			return fmt.Errorf("marshaling error: %w", err)
		}
		errJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, conversation_id, tenant_id, status, state, model, content, interactions,
			usage_input_tokens, usage_output_tokens, usage_total_tokens,
			error, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ConversationID, storage.GetTenant(ctx), rec.Status, string(rec.State), rec.Model, rec.Content, rec.Interactions,
		rec.Usage.InputTokens, rec.Usage.OutputTokens, rec.Usage.TotalTokens,
		errJSON, formatTime(rec.StartedAt), formatTime(rec.CompletedAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return storage.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// GetRun returns a run record.
func (s *Store) GetRun(ctx context.Context, id string) (*storage.RunRecord, error) {
	var rec storage.RunRecord
	var owner, state, started, completed string
	var errJSON sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, tenant_id, status, state, model, content, interactions,
		       usage_input_tokens, usage_output_tokens, usage_total_tokens,
		       error, started_at, completed_at
		FROM runs WHERE id = ?`, id,
	).Scan(
		&rec.ID, &rec.ConversationID, &owner, &rec.Status, &state, &rec.Model, &rec.Content, &rec.Interactions,
		&rec.Usage.InputTokens, &rec.Usage.OutputTokens, &rec.Usage.TotalTokens,
		&errJSON, &started, &completed,
	)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !storage.TenantVisible(storage.GetTenant(ctx), owner)) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}

	rec.State = api.RunState(state)
	if rec.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if rec.CompletedAt, err = parseTime(completed); err != nil {
		return nil, err
	}
	if errJSON.Valid {
		var apiErr api.APIError
		if err := json.Unmarshal([]byte(errJSON.String), &apiErr); err != nil {
			return nil, fmt.Errorf("unmarshaling error: %w", err)
		}
		rec.Error = &apiErr
	}
	return &rec, nil
}

// DeleteConversation removes the conversation, its messages and its runs.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	tenantID := storage.GetTenant(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `DELETE FROM conversations WHERE id = ?`
	args := []any{id}
	if tenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, tenantID)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("deleting runs: %w", err)
	}
	return tx.Commit()
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}
