package mcp

import (
	"errors"
	"fmt"
)

// Transport names accepted in ServerConfig.Transport.
const (
	TransportStreamableHTTP = "streamable-http"
	TransportSSE            = "sse"
)

// AuthTypeClientCredentials selects the OAuth 2.0 client_credentials grant.
const AuthTypeClientCredentials = "oauth_client_credentials"

// ServerConfig describes a single MCP server connection.
type ServerConfig struct {
	// Name identifies the server in logs and duplicate-capability errors.
	Name string `json:"name" yaml:"name"`

	// Transport is "streamable-http" (default) or "sse".
	Transport string `json:"transport,omitempty" yaml:"transport"`

	// URL is the MCP server endpoint.
	URL string `json:"url" yaml:"url"`

	// Headers are sent with every request, typically API keys.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers"`

	Auth AuthConfig `json:"auth,omitempty" yaml:"auth"`
}

// AuthConfig configures dynamic authentication for a server.
type AuthConfig struct {
	Type         string   `json:"type,omitempty" yaml:"type"`
	TokenURL     string   `json:"token_url,omitempty" yaml:"token_url"`
	ClientID     string   `json:"client_id,omitempty" yaml:"client_id"`
	ClientSecret string   `json:"client_secret,omitempty" yaml:"client_secret"`
	Scopes       []string `json:"scopes,omitempty" yaml:"scopes"`
}

// Validate checks a server configuration without connecting.
func (c ServerConfig) Validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if c.URL == "" {
		errs = append(errs, errors.New("url is required"))
	}
	switch c.Transport {
	case "", TransportStreamableHTTP, TransportSSE:
	default:
		errs = append(errs, fmt.Errorf("unsupported transport %q", c.Transport))
	}
	switch c.Auth.Type {
	case "":
	case AuthTypeClientCredentials:
		if c.Auth.TokenURL == "" || c.Auth.ClientID == "" {
			errs = append(errs, errors.New("auth.token_url and auth.client_id are required for client credentials"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported auth type %q", c.Auth.Type))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("mcp server %q: %w", c.Name, err)
	}
	return nil
}
