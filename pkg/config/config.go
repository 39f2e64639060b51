// Package config provides unified configuration for toolloop.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (TOOLLOOP_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
//
// The engine and transport packages never read the environment or the file
// system themselves; they receive the values converted by this package.
package config

import "time"

// Provider adapters accepted in provider.kind.
const (
	ProviderOpenAICompat = "openai-compat"
	ProviderLiteLLM      = "litellm"
)

// Storage backends accepted in storage.type.
const (
	StorageNone     = "none"
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Config holds all configuration for toolloop.
type Config struct {
	Provider      ProviderConfig      `yaml:"provider"`
	Engine        EngineConfig        `yaml:"engine"`
	Storage       StorageConfig       `yaml:"storage"`
	Tools         ToolsConfig         `yaml:"tools"`
	MCP           MCPConfig           `yaml:"mcp"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ProviderConfig holds the chat-completions endpoint settings.
type ProviderConfig struct {
	Kind          string            `yaml:"kind"`           // openai-compat or litellm, default: openai-compat
	URL           string            `yaml:"url"`            // required
	APIKey        string            `yaml:"api_key"`        // optional
	APIKeyFile    string            `yaml:"api_key_file"`   // _file variant for api_key
	TimeoutMillis int               `yaml:"timeout_millis"` // default: 60000
	MaxRetries    int               `yaml:"max_retries"`    // default: 1, negative disables
	ModelMapping  map[string]string `yaml:"model_mapping"`  // litellm only
}

// EngineConfig holds orchestration loop settings.
type EngineConfig struct {
	Model             string        `yaml:"model"`            // required
	MaxInteractions   int           `yaml:"max_interactions"` // default: 10
	Temperature       float64       `yaml:"temperature"`      // default: 0.7
	SystemPrompt      string        `yaml:"system_prompt"`
	Stream            bool          `yaml:"stream"`
	ToolChoice        string        `yaml:"tool_choice"`
	ParallelToolCalls bool          `yaml:"parallel_tool_calls"`
	MaxTokens         int           `yaml:"max_tokens"`
	ToolTimeout       time.Duration `yaml:"tool_timeout"`
}

// StorageConfig holds history store settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // none, memory, sqlite, postgres; default: memory
	MaxSize  int            `yaml:"max_size"` // memory store, default: 10000
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"` // default: toolloop.db
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	DSNFile         string        `yaml:"dsn_file"` // _file variant for dsn
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MigrateOnStart  bool          `yaml:"migrate_on_start"` // default: true
}

// ToolsConfig selects the built-in capability sets.
type ToolsConfig struct {
	// Allowed restricts execution to the named tools. Empty allows all.
	Allowed   []string        `yaml:"allowed"`
	Clock     ClockConfig     `yaml:"clock"`
	WebSearch WebSearchConfig `yaml:"web_search"`
}

// ClockConfig enables the current_time capability.
type ClockConfig struct {
	Enabled bool `yaml:"enabled"` // default: true
}

// WebSearchConfig enables the web_search capability.
type WebSearchConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Backend    string        `yaml:"backend"` // default: searxng
	URL        string        `yaml:"url"`
	MaxResults int           `yaml:"max_results"`
	Timeout    time.Duration `yaml:"timeout"`
}

// MCPConfig holds MCP (Model Context Protocol) server settings.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes a single MCP server connection.
type MCPServerConfig struct {
	Name      string            `yaml:"name" json:"name"`
	Transport string            `yaml:"transport" json:"transport,omitempty"` // "sse" or "streamable-http"
	URL       string            `yaml:"url" json:"url"`
	Headers   map[string]string `yaml:"headers" json:"headers,omitempty"`
	Auth      MCPAuthConfig     `yaml:"auth" json:"auth,omitempty"`
}

// MCPAuthConfig holds OAuth client_credentials settings for an MCP server.
type MCPAuthConfig struct {
	Type             string   `yaml:"type" json:"type,omitempty"`
	TokenURL         string   `yaml:"token_url" json:"token_url,omitempty"`
	ClientID         string   `yaml:"client_id" json:"client_id,omitempty"`
	ClientIDFile     string   `yaml:"client_id_file" json:"client_id_file,omitempty"`
	ClientSecret     string   `yaml:"client_secret" json:"client_secret,omitempty"`
	ClientSecretFile string   `yaml:"client_secret_file" json:"client_secret_file,omitempty"`
	Scopes           []string `yaml:"scopes" json:"scopes,omitempty"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: false
	Addr    string `yaml:"addr"`    // default: ":9464"
	Path    string `yaml:"path"`    // default: "/metrics"
}

// LoggingConfig holds log output settings. TOOLLOOP_LOG_LEVEL and
// TOOLLOOP_DEBUG still override these when the logger is initialized.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // default: INFO
	Format string `yaml:"format"` // text or json, default: text
	Debug  string `yaml:"debug"`  // comma separated debug categories
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Provider: ProviderConfig{
			Kind:          ProviderOpenAICompat,
			TimeoutMillis: 60000,
			MaxRetries:    1,
		},
		Engine: EngineConfig{
			MaxInteractions: 10,
			Temperature:     0.7,
		},
		Storage: StorageConfig{
			Type:    StorageMemory,
			MaxSize: 10000,
			SQLite: SQLiteConfig{
				Path: "toolloop.db",
			},
			Postgres: PostgresConfig{
				MigrateOnStart: true,
			},
		},
		Tools: ToolsConfig{
			Clock: ClockConfig{Enabled: true},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Addr: ":9464",
				Path: "/metrics",
			},
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}
