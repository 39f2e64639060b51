package config

import (
	"time"

	"github.com/rhuss/toolloop/pkg/engine"
	"github.com/rhuss/toolloop/pkg/provider/litellm"
	"github.com/rhuss/toolloop/pkg/provider/openaicompat"
	"github.com/rhuss/toolloop/pkg/storage/postgres"
	"github.com/rhuss/toolloop/pkg/tools/builtins/websearch"
	"github.com/rhuss/toolloop/pkg/tools/mcp"
)

// EngineConfig returns the orchestration settings.
func (c *Config) EngineConfig() engine.Config {
	temp := c.Engine.Temperature
	return engine.Config{
		MaxInteractions:   c.Engine.MaxInteractions,
		Model:             c.Engine.Model,
		Temperature:       &temp,
		SystemPrompt:      c.Engine.SystemPrompt,
		Stream:            c.Engine.Stream,
		ToolChoice:        c.Engine.ToolChoice,
		AllowedTools:      c.Tools.Allowed,
		ParallelToolCalls: c.Engine.ParallelToolCalls,
		MaxTokens:         c.Engine.MaxTokens,
		ToolTimeout:       c.Engine.ToolTimeout,
	}
}

// TransportConfig returns the chat-completions client settings.
func (c *Config) TransportConfig() openaicompat.Config {
	maxRetries := c.Provider.MaxRetries
	if maxRetries == 0 {
		// Zero means "use the default" downstream; keep an explicit zero disabled.
		maxRetries = -1
	}
	return openaicompat.Config{
		BaseURL:    c.Provider.URL,
		APIKey:     c.Provider.APIKey,
		Timeout:    time.Duration(c.Provider.TimeoutMillis) * time.Millisecond,
		MaxRetries: maxRetries,
	}
}

// LiteLLMConfig returns the LiteLLM adapter settings.
func (c *Config) LiteLLMConfig() litellm.Config {
	return litellm.Config{
		Config:       c.TransportConfig(),
		ModelMapping: c.Provider.ModelMapping,
	}
}

// PostgresConfig returns the postgres store settings.
func (c *Config) PostgresConfig() postgres.Config {
	pg := c.Storage.Postgres
	return postgres.Config{
		DSN:             pg.DSN,
		MaxConns:        pg.MaxConns,
		MinConns:        pg.MinConns,
		MaxConnLifetime: pg.MaxConnLifetime,
		MigrateOnStart:  pg.MigrateOnStart,
	}
}

// WebSearchConfig returns the web_search settings.
func (c *Config) WebSearchConfig() websearch.Config {
	ws := c.Tools.WebSearch
	return websearch.Config{
		Backend:    ws.Backend,
		URL:        ws.URL,
		MaxResults: ws.MaxResults,
		Timeout:    ws.Timeout,
	}
}

// MCPServers returns the MCP server connections to open.
func (c *Config) MCPServers() []mcp.ServerConfig {
	if len(c.MCP.Servers) == 0 {
		return nil
	}
	out := make([]mcp.ServerConfig, len(c.MCP.Servers))
	for i, s := range c.MCP.Servers {
		out[i] = mcp.ServerConfig{
			Name:      s.Name,
			Transport: s.Transport,
			URL:       s.URL,
			Headers:   s.Headers,
			Auth: mcp.AuthConfig{
				Type:         s.Auth.Type,
				TokenURL:     s.Auth.TokenURL,
				ClientID:     s.Auth.ClientID,
				ClientSecret: s.Auth.ClientSecret,
				Scopes:       s.Auth.Scopes,
			},
		}
	}
	return out
}
