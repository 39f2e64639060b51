package engine

import (
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	hot := 2.5
	tests := []struct {
		name    string
		cfg     Config
		wantErr []string
	}{
		{name: "minimal", cfg: Config{Model: "m"}},
		{name: "missing model", cfg: Config{}, wantErr: []string{"model is required"}},
		{name: "temperature", cfg: Config{Model: "m", Temperature: &hot}, wantErr: []string{"temperature 2.5 out of range"}},
		{
			name:    "joined",
			cfg:     Config{Temperature: &hot, MaxTokens: -1},
			wantErr: []string{"model is required", "out of range", "max tokens must not be negative"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not mention %q", err, want)
				}
			}
		})
	}
}

func TestConfigWithDefaultsKeepsExplicitValues(t *testing.T) {
	zero := 0.0
	cfg := Config{MaxInteractions: 4, Temperature: &zero}.withDefaults()
	if cfg.MaxInteractions != 4 {
		t.Errorf("MaxInteractions = %d, want 4", cfg.MaxInteractions)
	}
	if *cfg.Temperature != 0 {
		t.Errorf("Temperature = %v, want 0", *cfg.Temperature)
	}

	cfg = Config{MaxInteractions: -3}.withDefaults()
	if cfg.MaxInteractions != DefaultMaxInteractions {
		t.Errorf("MaxInteractions = %d, want %d", cfg.MaxInteractions, DefaultMaxInteractions)
	}
	if cfg.ToolTimeout != DefaultToolTimeout {
		t.Errorf("ToolTimeout = %v, want %v", cfg.ToolTimeout, DefaultToolTimeout)
	}
}
