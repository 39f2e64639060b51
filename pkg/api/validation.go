package api

import "fmt"

// ValidateMessage checks that a single message is well formed for its role.
// index is used only to build the param path of the returned error.
func ValidateMessage(index int, m Message) *APIError {
	param := fmt.Sprintf("messages[%d]", index)

	if !m.Role.Valid() {
		return NewValidationError(param+".role", fmt.Sprintf("unknown role %q", m.Role))
	}

	switch m.Role {
	case RoleTool:
		if m.ToolCallID == "" {
			return NewValidationError(param+".tool_call_id", "tool message requires tool_call_id")
		}
		if m.HasToolCalls() {
			return NewValidationError(param+".tool_calls", "tool_calls are only allowed on assistant messages")
		}
	case RoleAssistant:
		if m.ToolCallID != "" {
			return NewValidationError(param+".tool_call_id", "tool_call_id is only allowed on tool messages")
		}
		for j, tc := range m.ToolCalls {
			if tc.ID == "" {
				return NewValidationError(fmt.Sprintf("%s.tool_calls[%d].id", param, j), "tool call id is required")
			}
			if tc.Name == "" {
				return NewValidationError(fmt.Sprintf("%s.tool_calls[%d].name", param, j), "tool call name is required")
			}
		}
	default:
		if m.ToolCallID != "" {
			return NewValidationError(param+".tool_call_id", "tool_call_id is only allowed on tool messages")
		}
		if m.HasToolCalls() {
			return NewValidationError(param+".tool_calls", "tool_calls are only allowed on assistant messages")
		}
	}
	return nil
}

// ValidateTranscript checks every message and the pairing between tool
// messages and directives: each tool message must answer a directive of the
// nearest preceding assistant message, with only tool messages in between,
// and no directive may be answered twice.
func ValidateTranscript(msgs []Message) *APIError {
	var (
		open      map[string]bool // directive ids of the current assistant turn
		inToolRun bool
	)

	for i, m := range msgs {
		if err := ValidateMessage(i, m); err != nil {
			return err
		}

		switch m.Role {
		case RoleAssistant:
			open = nil
			inToolRun = m.HasToolCalls()
			if inToolRun {
				open = make(map[string]bool, len(m.ToolCalls))
				for j, tc := range m.ToolCalls {
					if open[tc.ID] {
						return NewValidationError(fmt.Sprintf("messages[%d].tool_calls[%d].id", i, j),
							fmt.Sprintf("duplicate tool call id %q", tc.ID))
					}
					open[tc.ID] = true
				}
			}
		case RoleTool:
			pending, ok := open[m.ToolCallID]
			if !inToolRun || !ok {
				return NewValidationError(fmt.Sprintf("messages[%d].tool_call_id", i),
					fmt.Sprintf("tool message answers unknown tool call %q", m.ToolCallID))
			}
			if !pending {
				return NewValidationError(fmt.Sprintf("messages[%d].tool_call_id", i),
					fmt.Sprintf("tool call %q already answered", m.ToolCallID))
			}
			open[m.ToolCallID] = false
		default:
			inToolRun = false
			open = nil
		}
	}
	return nil
}
