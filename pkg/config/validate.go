package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	switch c.Provider.Kind {
	case ProviderOpenAICompat:
		if len(c.Provider.ModelMapping) > 0 {
			errs = append(errs, fmt.Errorf("provider.model_mapping requires provider.kind %q", ProviderLiteLLM))
		}
	case ProviderLiteLLM:
	default:
		errs = append(errs, fmt.Errorf("provider.kind must be %q or %q, got %q", ProviderOpenAICompat, ProviderLiteLLM, c.Provider.Kind))
	}
	if c.Provider.URL == "" {
		errs = append(errs, fmt.Errorf("provider.url is required"))
	}
	if c.Provider.TimeoutMillis <= 0 {
		errs = append(errs, fmt.Errorf("provider.timeout_millis must be > 0, got %d", c.Provider.TimeoutMillis))
	}

	if c.Engine.Model == "" {
		errs = append(errs, fmt.Errorf("engine.model is required"))
	}
	if c.Engine.MaxInteractions <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_interactions must be > 0, got %d", c.Engine.MaxInteractions))
	}
	if c.Engine.Temperature < 0 || c.Engine.Temperature > 2 {
		errs = append(errs, fmt.Errorf("engine.temperature must be between 0 and 2, got %v", c.Engine.Temperature))
	}
	if c.Engine.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("engine.max_tokens must not be negative, got %d", c.Engine.MaxTokens))
	}

	switch c.Storage.Type {
	case StorageNone, StorageMemory:
	case StorageSQLite:
		if c.Storage.SQLite.Path == "" {
			errs = append(errs, fmt.Errorf("storage.sqlite.path is required when storage.type is \"sqlite\""))
		}
	case StoragePostgres:
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be one of none, memory, sqlite, postgres, got %q", c.Storage.Type))
	}

	if c.Tools.WebSearch.Enabled && c.Tools.WebSearch.URL == "" {
		errs = append(errs, fmt.Errorf("tools.web_search.url is required when web search is enabled"))
	}

	for _, s := range c.MCPServers() {
		if err := s.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
