package api

import (
	"strings"
	"testing"
)

func TestNewConversationID(t *testing.T) {
	id := NewConversationID()
	if !ValidateConversationID(id) {
		t.Errorf("NewConversationID() = %q, want valid conversation ID", id)
	}
}

func TestNewRunID(t *testing.T) {
	id := NewRunID()
	if !strings.HasPrefix(id, "run_") {
		t.Errorf("NewRunID() = %q, want run_ prefix", id)
	}
	if len(id) != len("run_")+36 {
		t.Errorf("NewRunID() length = %d, want %d", len(id), len("run_")+36)
	}
}

func TestNewCallID(t *testing.T) {
	id := NewCallID()
	if !ValidateCallID(id) {
		t.Errorf("NewCallID() = %q, want valid call ID", id)
	}
}

func TestValidateCallID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"valid", "call_abcdefghijklmnopqrstuvwx", true},
		{"valid digits", "call_123456789012345678901234", true},
		{"wrong prefix", "conv_abcdefghijklmnopqrstuvwx", false},
		{"too short", "call_abc", false},
		{"too long", "call_abcdefghijklmnopqrstuvwxy", false},
		{"special chars", "call_abcdefghijklmnopqrstuv!@", false},
		{"empty", "", false},
		{"prefix only", "call_", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateCallID(tt.id); got != tt.want {
				t.Errorf("ValidateCallID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestValidateConversationID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"valid", "conv_123e4567-e89b-12d3-a456-426614174000", true},
		{"uppercase uuid", "conv_123E4567-E89B-12D3-A456-426614174000", false},
		{"missing prefix", "123e4567-e89b-12d3-a456-426614174000", false},
		{"run prefix", "run_123e4567-e89b-12d3-a456-426614174000", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateConversationID(tt.id); got != tt.want {
				t.Errorf("ValidateConversationID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for range 1000 {
		id := NewCallID()
		if seen[id] {
			t.Fatalf("duplicate call ID generated: %q", id)
		}
		seen[id] = true
	}
}
