package openaicompat

import (
	"encoding/json"

	"github.com/rhuss/toolloop/pkg/provider"
)

// emptyObjectSchema is sent for tools that declare no parameters; several
// backends reject a function definition without one.
var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// TranslateToChat converts a CompletionRequest into a ChatCompletionRequest
// suitable for the /v1/chat/completions endpoint.
func TranslateToChat(req *provider.CompletionRequest) ChatCompletionRequest {
	cr := ChatCompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		N:           1,
		Stream:      req.Stream,
	}

	// When streaming, enable usage reporting in the stream.
	if req.Stream {
		cr.StreamOptions = &ChatStreamOptions{
			IncludeUsage: true,
		}
	}

	cr.Messages = make([]ChatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		cm := ChatMessage{
			Role:       string(m.Role),
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		if m.Content != "" || !m.HasToolCalls() {
			content := m.Content
			cm.Content = &content
		}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, ChatToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: ChatFunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		cr.Messages = append(cr.Messages, cm)
	}

	for _, t := range req.Tools {
		params := t.Parameters
		if len(params) == 0 {
			params = emptyObjectSchema
		}
		cr.Tools = append(cr.Tools, ChatTool{
			Type: "function",
			Function: ChatFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}

	// tool_choice is a bare string for the modes and an object for a
	// named function.
	switch req.ToolChoice {
	case "":
	case provider.ToolChoiceNone, provider.ToolChoiceAuto, provider.ToolChoiceRequired:
		cr.ToolChoice = req.ToolChoice
	default:
		cr.ToolChoice = ChatToolChoice{
			Type:     "function",
			Function: ChatToolChoiceName{Name: req.ToolChoice},
		}
	}

	return cr
}
