package storage

import (
	"context"
	"time"

	"github.com/rhuss/toolloop/pkg/api"
)

// HistoryStore persists conversations and run outcomes. Implementations
// must be safe for concurrent use and scope every operation to the tenant
// carried by the context, if any.
type HistoryStore interface {
	// AppendMessages appends msgs to the conversation, creating it when it
	// does not exist. Order is preserved.
	AppendMessages(ctx context.Context, conversationID string, msgs ...api.Message) error

	// LoadConversation returns the full transcript in order, or ErrNotFound.
	LoadConversation(ctx context.Context, id string) (*api.Conversation, error)

	// SaveRun records the outcome of a run. Saving an existing run ID
	// returns ErrConflict.
	SaveRun(ctx context.Context, rec *RunRecord) error

	// GetRun returns a recorded run, or ErrNotFound.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// DeleteConversation removes a conversation with its messages and runs.
	DeleteConversation(ctx context.Context, id string) error

	HealthCheck(ctx context.Context) error
	Close() error
}

// RunRecord is the persisted outcome of one orchestration run.
type RunRecord struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	Status         string        `json:"status"`
	State          api.RunState  `json:"state"`
	Model          string        `json:"model"`
	Content        string        `json:"content,omitempty"`
	Interactions   int           `json:"interactions"`
	Usage          api.Usage     `json:"usage"`
	Error          *api.APIError `json:"error,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	CompletedAt    time.Time     `json:"completed_at"`
}
