package tools

import "github.com/rhuss/toolloop/pkg/api"

// AllowList restricts which tools may be executed. The zero value allows
// everything.
type AllowList map[string]bool

// NewAllowList builds an AllowList. An empty names slice allows all tools.
func NewAllowList(names []string) AllowList {
	if len(names) == 0 {
		return nil
	}
	allowed := make(AllowList, len(names))
	for _, name := range names {
		allowed[name] = true
	}
	return allowed
}

// Permits reports whether the named tool may run.
func (a AllowList) Permits(name string) bool {
	return len(a) == 0 || a[name]
}

// rejectResult is the diagnostic for a call outside the list.
func rejectResult(call api.ToolCall) ToolResult {
	return ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Output:  "tool " + call.Name + " is not in the allowed tools list",
		IsError: true,
	}
}
