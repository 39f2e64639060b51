// Package postgres provides a PostgreSQL HistoryStore. It uses pgx/v5 for
// connection pooling and JSONB for tool calls and run errors.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/toolloop/pkg/api"
	"github.com/rhuss/toolloop/pkg/storage"
)

// Store is a PostgreSQL-backed HistoryStore.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.HistoryStore = (*Store)(nil)

// New opens a connection pool and, when MigrateOnStart is set, applies
// schema migrations.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}
	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return s, nil
}

// AppendMessages appends msgs in one transaction. The conversation row is
// locked so concurrent appends keep a gapless sequence.
func (s *Store) AppendMessages(ctx context.Context, conversationID string, msgs ...api.Message) error {
	tenantID := storage.GetTenant(ctx)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO conversations (id, tenant_id) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		conversationID, tenantID,
	); err != nil {
		return fmt.Errorf("creating conversation: %w", err)
	}

	var owner string
	if err := tx.QueryRow(ctx,
		`SELECT tenant_id FROM conversations WHERE id = $1 FOR UPDATE`, conversationID,
	).Scan(&owner); err != nil {
		return fmt.Errorf("locking conversation: %w", err)
	}
	if !storage.TenantVisible(tenantID, owner) {
		return storage.ErrNotFound
	}

	var next int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), -1) + 1 FROM messages WHERE conversation_id = $1`, conversationID,
	).Scan(&next); err != nil {
		return fmt.Errorf("reading sequence: %w", err)
	}

	batch := &pgx.Batch{}
	for i, m := range msgs {
		toolCalls, err := marshalToolCalls(m.ToolCalls)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO messages (conversation_id, seq, role, content, tool_call_id, name, tool_calls, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			conversationID, next+i, string(m.Role), m.Content, m.ToolCallID, m.Name, toolCalls, createdAt(m),
		)
	}
	batch.Queue(`UPDATE conversations SET updated_at = now() WHERE id = $1`, conversationID)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting messages: %w", err)
	}
	return tx.Commit(ctx)
}

// LoadConversation returns the transcript ordered by sequence.
func (s *Store) LoadConversation(ctx context.Context, id string) (*api.Conversation, error) {
	var owner string
	err := s.pool.QueryRow(ctx, `SELECT tenant_id FROM conversations WHERE id = $1`, id).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && !storage.TenantVisible(storage.GetTenant(ctx), owner)) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT role, content, tool_call_id, name, tool_calls, created_at
		FROM messages WHERE conversation_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	conv := &api.Conversation{ID: id}
	for rows.Next() {
		var m api.Message
		var role string
		var toolCalls []byte
		if err := rows.Scan(&role, &m.Content, &m.ToolCallID, &m.Name, &toolCalls, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Role = api.Role(role)
		if len(toolCalls) > 0 {
			if err := json.Unmarshal(toolCalls, &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshaling tool calls: %w", err)
			}
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
	var errJSON []byte
	if rec.Error != nil {
		var err error
		if errJSON, err = json.Marshal(rec.Error); err != nil {
			return fmt.Errorf("marshaling error: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO runs (
			id, conversation_id, tenant_id, status, state, model, content, interactions,
			usage_input_tokens, usage_output_tokens, usage_total_tokens,
			error, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rec.ID, rec.ConversationID, storage.GetTenant(ctx), rec.Status, string(rec.State), rec.Model, rec.Content, rec.Interactions,
		rec.Usage.InputTokens, rec.Usage.OutputTokens, rec.Usage.TotalTokens,
		errJSON, rec.StartedAt, rec.CompletedAt,
	)
	if isUniqueViolation(err) {
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
	var owner, state string
	var errJSON []byte

	err := s.pool.QueryRow(ctx, `
		SELECT id, conversation_id, tenant_id, status, state, model, content, interactions,
		       usage_input_tokens, usage_output_tokens, usage_total_tokens,
		       error, started_at, completed_at
		FROM runs WHERE id = $1`, id,
	).Scan(
		&rec.ID, &rec.ConversationID, &owner, &rec.Status, &state, &rec.Model, &rec.Content, &rec.Interactions,
		&rec.Usage.InputTokens, &rec.Usage.OutputTokens, &rec.Usage.TotalTokens,
		&errJSON, &rec.StartedAt, &rec.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && !storage.TenantVisible(storage.GetTenant(ctx), owner)) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}

	rec.State = api.RunState(state)
	if len(errJSON) > 0 {
		var apiErr api.APIError
		if err := json.Unmarshal(errJSON, &apiErr); err != nil {
			return nil, fmt.Errorf("unmarshaling error: %w", err)
		}
		rec.Error = &apiErr
	}
	return &rec, nil
}

// DeleteConversation removes the conversation; messages cascade and runs
// are deleted in the same transaction.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	tenantID := storage.GetTenant(ctx)

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		query := `DELETE FROM conversations WHERE id = $1`
		args := []any{id}
		if tenantID != "" {
			query += ` AND tenant_id = $2`
			args = append(args, tenantID)
		}
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("deleting conversation: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM runs WHERE conversation_id = $1`, id); err != nil {
			return fmt.Errorf("deleting runs: %w", err)
		}
		return nil
	})
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func marshalToolCalls(calls []api.ToolCall) ([]byte, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(calls)
	if err != nil {
		return nil, fmt.Errorf("marshaling tool calls: %w", err)
	}
	return data, nil
}

func createdAt(m api.Message) time.Time {
	if m.CreatedAt.IsZero() {
		return time.Now()
	}
	return m.CreatedAt
}

// isUniqueViolation reports a PostgreSQL unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
