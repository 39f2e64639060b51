package provider

import (
	"github.com/rhuss/toolloop/pkg/api"
)

// ValidateCapabilities checks whether the given request is compatible with
// the provider's declared capabilities. Returns an APIError identifying
// the specific unsupported feature, or nil if the request is compatible.
func ValidateCapabilities(caps Capabilities, req *CompletionRequest) *api.APIError {
	if req.Stream && !caps.Streaming {
		return api.NewValidationError("stream",
			"the configured provider does not support streaming responses")
	}

	if len(req.Tools) > 0 && !caps.ToolCalling {
		return api.NewValidationError("tools",
			"the configured provider does not support tool calling")
	}

	if len(caps.SupportedModels) > 0 {
		for _, m := range caps.SupportedModels {
			if m == req.Model {
				return nil
			}
		}
		return api.NewValidationError("model",
			"the configured provider does not serve model "+req.Model)
	}

	return nil
}
