package engine

import (
	"github.com/rhuss/toolloop/pkg/api"
	"github.com/rhuss/toolloop/pkg/tools"
)

// Observer receives run progress. Callbacks run synchronously on the
// goroutine driving the run and must not block for long.
type Observer interface {
	// OnTextDelta is called for every streamed text fragment.
	OnTextDelta(delta string)

	// OnRestart is called when a stream is replayed from the start. Text
	// delivered since the last turn began should be discarded.
	OnRestart()

	// OnToolCall is called before a directive is dispatched.
	OnToolCall(call api.ToolCall)

	// OnToolResult is called after a directive has produced its result.
	OnToolResult(result tools.ToolResult)

	// OnStateChange is called on every state transition.
	OnStateChange(from, to api.RunState)
}

// NopObserver ignores every callback.
type NopObserver struct{}

func (NopObserver) OnTextDelta(string)                  {}
func (NopObserver) OnRestart()                          {}
func (NopObserver) OnToolCall(api.ToolCall)             {}
func (NopObserver) OnToolResult(tools.ToolResult)       {}
func (NopObserver) OnStateChange(from, to api.RunState) {}

// ObserverFuncs adapts optional functions to Observer. Nil fields are
// skipped.
type ObserverFuncs struct {
	TextDelta   func(delta string)
	Restart     func()
	ToolCall    func(call api.ToolCall)
	ToolResult  func(result tools.ToolResult)
	StateChange func(from, to api.RunState)
}

func (f ObserverFuncs) OnTextDelta(delta string) {
	if f.TextDelta != nil {
		f.TextDelta(delta)
	}
}

func (f ObserverFuncs) OnRestart() {
	if f.Restart != nil {
		f.Restart()
	}
}

func (f ObserverFuncs) OnToolCall(call api.ToolCall) {
	if f.ToolCall != nil {
		f.ToolCall(call)
	}
}

func (f ObserverFuncs) OnToolResult(result tools.ToolResult) {
	if f.ToolResult != nil {
		f.ToolResult(result)
	}
}

func (f ObserverFuncs) OnStateChange(from, to api.RunState) {
	if f.StateChange != nil {
		f.StateChange(from, to)
	}
}
