package engine

import (
	"errors"
	"fmt"
	"time"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultMaxInteractions = 10
	DefaultTemperature     = 0.7
	DefaultToolTimeout     = 60 * time.Second
)

// Config is the immutable per-engine run configuration.
type Config struct {
	// MaxInteractions bounds the number of model calls per run. Zero or
	// negative means DefaultMaxInteractions.
	MaxInteractions int

	// Model is sent with every completion request.
	Model string

	// Temperature defaults to DefaultTemperature when nil.
	Temperature *float64

	// SystemPrompt seeds new transcripts that carry no system message.
	SystemPrompt string

	// Stream selects the streaming transport path.
	Stream bool

	// ToolChoice is "none", "auto", "required", or a tool name. Empty lets
	// the provider decide.
	ToolChoice string

	// AllowedTools restricts execution to the named tools. Empty allows all.
	AllowedTools []string

	// ParallelToolCalls executes the directives of one turn concurrently.
	ParallelToolCalls bool

	// MaxTokens limits completion length when positive.
	MaxTokens int

	// ToolTimeout bounds each tool invocation. Cancelling a run does not
	// interrupt a tool that already started, so zero or negative means
	// DefaultToolTimeout.
	ToolTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxInteractions <= 0 {
		c.MaxInteractions = DefaultMaxInteractions
	}
	if c.Temperature == nil {
		t := DefaultTemperature
		c.Temperature = &t
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = DefaultToolTimeout
	}
	return c
}

// Validate reports configuration errors that would fail every run.
func (c Config) Validate() error {
	var errs []error
	if c.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		errs = append(errs, fmt.Errorf("temperature %v out of range [0, 2]", *c.Temperature))
	}
	if c.MaxTokens < 0 {
		errs = append(errs, errors.New("max tokens must not be negative"))
	}
	return errors.Join(errs...)
}
