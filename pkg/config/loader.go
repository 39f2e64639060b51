package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, TOOLLOOP_CONFIG env, ./config.yaml, /etc/toolloop/config.yaml)
//  3. TOOLLOOP_* environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. TOOLLOOP_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/toolloop/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("TOOLLOOP_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/toolloop/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// envParser collects parse failures so that every malformed variable is
// reported at once.
type envParser struct {
	errs []error
}

func (p *envParser) stringVar(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func (p *envParser) intVar(name string, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not an integer", name, v))
		return
	}
	*dst = n
}

func (p *envParser) floatVar(name string, dst *float64) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a number", name, v))
		return
	}
	*dst = f
}

func (p *envParser) boolVar(name string, dst *bool) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a boolean", name, v))
		return
	}
	*dst = b
}

// applyEnvOverrides maps TOOLLOOP_* environment variables to config fields.
func applyEnvOverrides(cfg *Config) error {
	var p envParser

	p.stringVar("TOOLLOOP_PROVIDER", &cfg.Provider.Kind)
	p.stringVar("TOOLLOOP_API_URL", &cfg.Provider.URL)
	p.stringVar("TOOLLOOP_API_KEY", &cfg.Provider.APIKey)
	p.intVar("TOOLLOOP_TIMEOUT_MILLIS", &cfg.Provider.TimeoutMillis)
	p.intVar("TOOLLOOP_MAX_RETRIES", &cfg.Provider.MaxRetries)

	p.stringVar("TOOLLOOP_MODEL", &cfg.Engine.Model)
	p.intVar("TOOLLOOP_MAX_INTERACTIONS", &cfg.Engine.MaxInteractions)
	p.floatVar("TOOLLOOP_TEMPERATURE", &cfg.Engine.Temperature)
	p.stringVar("TOOLLOOP_SYSTEM_PROMPT", &cfg.Engine.SystemPrompt)
	p.boolVar("TOOLLOOP_STREAM", &cfg.Engine.Stream)

	p.stringVar("TOOLLOOP_STORAGE", &cfg.Storage.Type)
	p.intVar("TOOLLOOP_STORAGE_SIZE", &cfg.Storage.MaxSize)
	p.stringVar("TOOLLOOP_SQLITE_PATH", &cfg.Storage.SQLite.Path)
	p.stringVar("TOOLLOOP_POSTGRES_DSN", &cfg.Storage.Postgres.DSN)

	if v := os.Getenv("TOOLLOOP_ALLOWED_TOOLS"); v != "" {
		cfg.Tools.Allowed = splitList(v)
	}
	if v := os.Getenv("TOOLLOOP_SEARXNG_URL"); v != "" {
		cfg.Tools.WebSearch.Enabled = true
		cfg.Tools.WebSearch.URL = v
	}

	// TOOLLOOP_MCP_SERVERS: JSON array of MCP server configs.
	if v := os.Getenv("TOOLLOOP_MCP_SERVERS"); v != "" {
		servers, err := parseMCPServersJSON(v)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("TOOLLOOP_MCP_SERVERS: %w", err))
		} else {
			cfg.MCP.Servers = servers
		}
	}

	p.boolVar("TOOLLOOP_METRICS", &cfg.Observability.Metrics.Enabled)
	p.stringVar("TOOLLOOP_METRICS_ADDR", &cfg.Observability.Metrics.Addr)

	return errors.Join(p.errs...)
}

// parseMCPServersJSON parses a JSON array of MCP server configurations.
func parseMCPServersJSON(jsonStr string) ([]MCPServerConfig, error) {
	var servers []MCPServerConfig
	if err := json.Unmarshal([]byte(jsonStr), &servers); err != nil {
		return nil, fmt.Errorf("parsing MCP servers JSON: %w", err)
	}
	return servers, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// provider.api_key_file -> provider.api_key
	if cfg.Provider.APIKeyFile != "" && cfg.Provider.APIKey == "" {
		val, err := readSecretFile(cfg.Provider.APIKeyFile)
		if err != nil {
			return fmt.Errorf("provider.api_key_file: %w", err)
		}
		cfg.Provider.APIKey = val
	}

	// storage.postgres.dsn_file -> storage.postgres.dsn
	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

	// mcp.servers[*].auth.client_id_file -> mcp.servers[*].auth.client_id
	// mcp.servers[*].auth.client_secret_file -> mcp.servers[*].auth.client_secret
	for i := range cfg.MCP.Servers {
		auth := &cfg.MCP.Servers[i].Auth
		if auth.ClientIDFile != "" && auth.ClientID == "" {
			val, err := readSecretFile(auth.ClientIDFile)
			if err != nil {
				return fmt.Errorf("mcp.servers[%d].auth.client_id_file: %w", i, err)
			}
			auth.ClientID = val
		}
		if auth.ClientSecretFile != "" && auth.ClientSecret == "" {
			val, err := readSecretFile(auth.ClientSecretFile)
			if err != nil {
				return fmt.Errorf("mcp.servers[%d].auth.client_secret_file: %w", i, err)
			}
			auth.ClientSecret = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
