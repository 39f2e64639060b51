package litellm

import (
	"fmt"
	"maps"

	"github.com/rhuss/toolloop/pkg/provider"
	"github.com/rhuss/toolloop/pkg/provider/openaicompat"
)

// ProviderName identifies this adapter in logs and metrics.
const ProviderName = "litellm"

// Provider implements provider.Provider for LiteLLM proxy servers. Every
// call is delegated to the embedded openaicompat.Client.
type Provider struct {
	*openaicompat.Client
}

// Ensure Provider implements provider.Provider at compile time.
var _ provider.Provider = (*Provider)(nil)

// New creates a Provider. Returns an error if the configuration is invalid.
func New(cfg Config) (*Provider, error) {
	oc := cfg.Config
	if len(cfg.ModelMapping) > 0 {
		mapping := maps.Clone(cfg.ModelMapping)
		oc.ModelMapper = func(model string) string {
			if mapped, ok := mapping[model]; ok {
				return mapped
			}
			return model
		}
	}

	client, err := openaicompat.New(oc)
	if err != nil {
		return nil, fmt.Errorf("litellm: %w", err)
	}
	return &Provider{Client: client}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return ProviderName
}
