package api

import "fmt"

// RunState is the orchestration loop state.
type RunState string

const (
	RunStateAwaitingModel RunState = "awaiting_model"
	RunStateAwaitingTool  RunState = "awaiting_tool"
	RunStateDone          RunState = "done"
	RunStateFailed        RunState = "failed"
	RunStateExhausted     RunState = "exhausted"
)

// Terminal reports whether no transition leaves s.
func (s RunState) Terminal() bool {
	return s == RunStateDone || s == RunStateFailed || s == RunStateExhausted
}

var runTransitions = map[RunState][]RunState{
	"":                    {RunStateAwaitingModel},
	RunStateAwaitingModel: {RunStateAwaitingTool, RunStateDone, RunStateFailed, RunStateExhausted},
	RunStateAwaitingTool:  {RunStateAwaitingModel, RunStateFailed},
	RunStateDone:          {},
	RunStateFailed:        {},
	RunStateExhausted:     {},
}

// ValidateRunTransition checks whether a run state transition is valid.
// An empty "from" state represents a run that has not started yet.
// Terminal states (done, failed, exhausted) do not allow outgoing transitions.
func ValidateRunTransition(from, to RunState) *APIError {
	allowed, exists := runTransitions[from]
	if !exists {
		return NewServerError(fmt.Sprintf("invalid run transition from %q to %q", from, to))
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return NewServerError(fmt.Sprintf("invalid run transition from %q to %q", from, to))
}
