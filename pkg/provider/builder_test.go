package provider

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhuss/toolloop/pkg/api"
)

func weatherTool() Tool {
	return Tool{
		Name:        "getWeather",
		Description: "Current weather for a city",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}},"required":["city"]}`),
	}
}

func TestRequestBuilderHappyPath(t *testing.T) {
	req, err := NewRequestBuilder().
		Model("qwen2.5").
		Message(api.RoleSystem, "be brief").
		Message(api.RoleUser, "weather in Shanghai").
		Tools(weatherTool()).
		ToolChoice(ToolChoiceAuto).
		Temperature(0.7).
		MaxTokens(256).
		Stream(true).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "qwen2.5", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, api.RoleUser, req.Messages[1].Role)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "getWeather", req.Tools[0].Name)
	assert.Equal(t, ToolChoiceAuto, req.ToolChoice)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.7, *req.Temperature, 1e-9)
	require.NotNil(t, req.MaxTokens)
	assert.Equal(t, 256, *req.MaxTokens)
	assert.True(t, req.Stream)
}

func TestRequestBuilderValidation(t *testing.T) {
	tests := []struct {
		name      string
		build     func() *RequestBuilder
		wantParam string
	}{
		{
			name:      "missing model",
			build:     func() *RequestBuilder { return NewRequestBuilder().Message(api.RoleUser, "hi") },
			wantParam: "model",
		},
		{
			name:      "no messages",
			build:     func() *RequestBuilder { return NewRequestBuilder().Model("m") },
			wantParam: "messages",
		},
		{
			name: "unknown role",
			build: func() *RequestBuilder {
				return NewRequestBuilder().Model("m").Message("wizard", "hi")
			},
			wantParam: "messages[0].role",
		},
		{
			name: "temperature too high",
			build: func() *RequestBuilder {
				return NewRequestBuilder().Model("m").Message(api.RoleUser, "hi").Temperature(2.5)
			},
			wantParam: "temperature",
		},
		{
			name: "temperature negative",
			build: func() *RequestBuilder {
				return NewRequestBuilder().Model("m").Message(api.RoleUser, "hi").Temperature(-0.1)
			},
			wantParam: "temperature",
		},
		{
			name: "max tokens zero",
			build: func() *RequestBuilder {
				return NewRequestBuilder().Model("m").Message(api.RoleUser, "hi").MaxTokens(0)
			},
			wantParam: "max_tokens",
		},
		{
			name: "tool choice names unknown tool",
			build: func() *RequestBuilder {
				return NewRequestBuilder().Model("m").Message(api.RoleUser, "hi").
					Tools(weatherTool()).ToolChoice("getTime")
			},
			wantParam: "tool_choice",
		},
		{
			name: "required without tools",
			build: func() *RequestBuilder {
				return NewRequestBuilder().Model("m").Message(api.RoleUser, "hi").ToolChoice(ToolChoiceRequired)
			},
			wantParam: "tool_choice",
		},
		{
			name: "duplicate tools",
			build: func() *RequestBuilder {
				return NewRequestBuilder().Model("m").Message(api.RoleUser, "hi").
					Tools(weatherTool(), weatherTool())
			},
			wantParam: "tools[1].name",
		},
		{
			name: "orphan tool message",
			build: func() *RequestBuilder {
				return NewRequestBuilder().Model("m").Message(api.RoleUser, "hi").
					Messages(api.Message{Role: api.RoleTool, ToolCallID: "call_x", Content: "r"})
			},
			wantParam: "messages[1].tool_call_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := tt.build().Build()
			require.Error(t, err)
			assert.Nil(t, req)
			assert.True(t, api.IsErrorType(err, api.ErrorTypeValidation), "got %v", err)

			apiErr := api.AsAPIError(err)
			assert.Equal(t, tt.wantParam, apiErr.Param)
		})
	}
}

func TestRequestBuilderNamedToolChoice(t *testing.T) {
	req, err := NewRequestBuilder().Model("m").Message(api.RoleUser, "hi").
		Tools(weatherTool()).ToolChoice("getWeather").Build()
	require.NoError(t, err)
	assert.Equal(t, "getWeather", req.ToolChoice)
}

func TestBuildRequestOwnsSlices(t *testing.T) {
	msgs := []api.Message{
		{Role: api.RoleUser, Content: "weather in Shanghai"},
		{Role: api.RoleAssistant, ToolCalls: []api.ToolCall{{ID: "call_1", Name: "getWeather", Arguments: `{}`}}},
		{Role: api.RoleTool, ToolCallID: "call_1", Name: "getWeather", Content: "Sunny, 22C"},
	}
	tools := []Tool{weatherTool()}
	temp := 0.2

	req, err := BuildRequest(RequestSpec{Model: "m", Messages: msgs, Tools: tools, Temperature: &temp})
	require.NoError(t, err)

	msgs[0].Content = "changed"
	msgs[1].ToolCalls[0].Name = "changed"
	tools[0].Parameters[0] = 'X'
	temp = 1.9

	assert.Equal(t, "weather in Shanghai", req.Messages[0].Content)
	assert.Equal(t, "getWeather", req.Messages[1].ToolCalls[0].Name)
	assert.Equal(t, byte('{'), req.Tools[0].Parameters[0])
	assert.InDelta(t, 0.2, *req.Temperature, 1e-9)
}

func TestRequestBuilderReuse(t *testing.T) {
	b := NewRequestBuilder().Model("m").Message(api.RoleUser, "one")
	first, err := b.Build()
	require.NoError(t, err)

	second, err := b.Message(api.RoleAssistant, "two").Build()
	require.NoError(t, err)

	assert.Len(t, first.Messages, 1)
	assert.Len(t, second.Messages, 2)
}
