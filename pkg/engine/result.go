package engine

import (
	"time"

	"github.com/rhuss/toolloop/pkg/api"
	"github.com/rhuss/toolloop/pkg/storage"
)

// Status is the caller-facing outcome of a run.
type Status string

const (
	// StatusSuccess means the model produced a final answer.
	StatusSuccess Status = "success"
	// StatusWarning means the interaction budget ran out first.
	StatusWarning Status = "warning"
	// StatusError means a fatal error ended the run.
	StatusError Status = "error"
)

// Result describes a finished run. Content is the final answer on success
// and the last assistant content seen (possibly empty) on warning.
type Result struct {
	RunID          string
	ConversationID string
	Status         Status
	State          api.RunState
	Content        string
	Interactions   int
	Usage          api.Usage
	Error          *api.APIError
	Messages       []api.Message
	StartedAt      time.Time
	CompletedAt    time.Time
}

func statusFor(state api.RunState) Status {
	switch state {
	case api.RunStateDone:
		return StatusSuccess
	case api.RunStateExhausted:
		return StatusWarning
	default:
		return StatusError
	}
}

func (r *Result) record(model string) *storage.RunRecord {
	return &storage.RunRecord{
		ID:             r.RunID,
		ConversationID: r.ConversationID,
		Status:         string(r.Status),
		State:          r.State,
		Model:          model,
		Content:        r.Content,
		Interactions:   r.Interactions,
		Usage:          r.Usage,
		Error:          r.Error,
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
	}
}
