package openaicompat

import (
	"github.com/rhuss/toolloop/pkg/api"
	"github.com/rhuss/toolloop/pkg/provider"
)

// TranslateResponse converts a ChatCompletionResponse into a Completion.
// It uses only choices[0]. A response without choices cannot be interpreted
// and yields a serialization error.
func TranslateResponse(resp *ChatCompletionResponse) (*provider.Completion, error) {
	if len(resp.Choices) == 0 {
		return nil, api.NewSerializationError("backend response contains no choices", nil)
	}

	choice := resp.Choices[0]
	comp := &provider.Completion{
		Model:        resp.Model,
		FinishReason: choice.FinishReason,
		Usage:        translateUsage(resp.Usage),
	}
	if choice.Message.Content != nil {
		comp.Content = *choice.Message.Content
	}

	for _, tc := range choice.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = api.NewCallID()
		}
		comp.ToolCalls = append(comp.ToolCalls, api.ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return comp, nil
}

func translateUsage(u *ChatUsage) api.Usage {
	if u == nil {
		return api.Usage{}
	}
	return api.Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
}
