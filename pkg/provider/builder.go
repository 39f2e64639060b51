package provider

import (
	"fmt"
	"slices"

	"github.com/rhuss/toolloop/pkg/api"
)

// RequestSpec is the declarative form of a completion request.
type RequestSpec struct {
	Model       string
	Messages    []api.Message
	Tools       []Tool
	ToolChoice  string
	Temperature *float64
	MaxTokens   *int
	Stream      bool
}

// BuildRequest validates spec and returns a request that owns copies of
// every slice in it.
func BuildRequest(spec RequestSpec) (*CompletionRequest, error) {
	if err := validateSpec(&spec); err != nil {
		return nil, err
	}

	req := &CompletionRequest{
		Model:      spec.Model,
		Messages:   make([]api.Message, len(spec.Messages)),
		ToolChoice: spec.ToolChoice,
		Stream:     spec.Stream,
	}
	for i, m := range spec.Messages {
		req.Messages[i] = m.Clone()
	}
	if len(spec.Tools) > 0 {
		req.Tools = make([]Tool, len(spec.Tools))
		for i, t := range spec.Tools {
			t.Parameters = slices.Clone(t.Parameters)
			req.Tools[i] = t
		}
	}
	if spec.Temperature != nil {
		v := *spec.Temperature
		req.Temperature = &v
	}
	if spec.MaxTokens != nil {
		v := *spec.MaxTokens
		req.MaxTokens = &v
	}
	return req, nil
}

func validateSpec(spec *RequestSpec) error {
	if spec.Model == "" {
		return api.NewValidationError("model", "model is required")
	}

	if len(spec.Messages) == 0 {
		return api.NewValidationError("messages", "at least one message is required")
	}

	if err := api.ValidateTranscript(spec.Messages); err != nil {
		return err
	}

	if spec.Temperature != nil {
		if *spec.Temperature < 0.0 || *spec.Temperature > 2.0 {
			return api.NewValidationError("temperature", "temperature must be between 0.0 and 2.0")
		}
	}

	if spec.MaxTokens != nil && *spec.MaxTokens <= 0 {
		return api.NewValidationError("max_tokens", "max_tokens must be positive")
	}

	seen := make(map[string]bool, len(spec.Tools))
	for i, t := range spec.Tools {
		if t.Name == "" {
			return api.NewValidationError(fmt.Sprintf("tools[%d].name", i), "tool name is required")
		}
		if seen[t.Name] {
			return api.NewValidationError(fmt.Sprintf("tools[%d].name", i),
				fmt.Sprintf("duplicate tool %q", t.Name))
		}
		seen[t.Name] = true
	}

	switch spec.ToolChoice {
	case "", ToolChoiceNone, ToolChoiceAuto:
	case ToolChoiceRequired:
		if len(spec.Tools) == 0 {
			return api.NewValidationError("tool_choice", "tool_choice 'required' needs at least one tool")
		}
	default:
		if !seen[spec.ToolChoice] {
			return api.NewValidationError("tool_choice",
				fmt.Sprintf("tool_choice references unknown tool %q", spec.ToolChoice))
		}
	}

	return nil
}

// RequestBuilder assembles a CompletionRequest step by step. The zero value
// is not usable; call NewRequestBuilder.
//
//	req, err := provider.NewRequestBuilder().
//		Model("qwen2.5").
//		Message(api.RoleUser, "weather in Shanghai").
//		Tools(reg.ProviderTools()...).
//		Build()
type RequestBuilder struct {
	spec RequestSpec
}

// NewRequestBuilder returns an empty builder.
func NewRequestBuilder() *RequestBuilder {
	return &RequestBuilder{}
}

// Model sets the model identifier.
func (b *RequestBuilder) Model(model string) *RequestBuilder {
	b.spec.Model = model
	return b
}

// Message appends a plain message with the given role.
func (b *RequestBuilder) Message(role api.Role, content string) *RequestBuilder {
	b.spec.Messages = append(b.spec.Messages, api.Message{Role: role, Content: content})
	return b
}

// Messages appends complete messages, including tool calls and tool results.
func (b *RequestBuilder) Messages(msgs ...api.Message) *RequestBuilder {
	b.spec.Messages = append(b.spec.Messages, msgs...)
	return b
}

// Tools appends tool definitions.
func (b *RequestBuilder) Tools(tools ...Tool) *RequestBuilder {
	b.spec.Tools = append(b.spec.Tools, tools...)
	return b
}

// ToolChoice sets none, auto, required, or the name of a supplied tool.
func (b *RequestBuilder) ToolChoice(choice string) *RequestBuilder {
	b.spec.ToolChoice = choice
	return b
}

// Temperature sets the sampling temperature.
func (b *RequestBuilder) Temperature(t float64) *RequestBuilder {
	b.spec.Temperature = &t
	return b
}

// MaxTokens caps the completion length.
func (b *RequestBuilder) MaxTokens(n int) *RequestBuilder {
	b.spec.MaxTokens = &n
	return b
}

// Stream selects the streaming strategy.
func (b *RequestBuilder) Stream(stream bool) *RequestBuilder {
	b.spec.Stream = stream
	return b
}

// Build validates the accumulated state. The builder can be reused; the
// returned request shares nothing with it.
func (b *RequestBuilder) Build() (*CompletionRequest, error) {
	return BuildRequest(b.spec)
}
