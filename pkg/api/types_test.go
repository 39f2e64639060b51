package api

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestMessageMarshalNullContent(t *testing.T) {
	m := Message{
		Role:      RoleAssistant,
		ToolCalls: []ToolCall{{ID: "call_1", Name: "getWeather", Arguments: `{"city":"Shanghai"}`}},
	}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"content":null`) {
		t.Errorf("expected null content, got %s", data)
	}

	var back Message
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Content != "" || len(back.ToolCalls) != 1 || back.ToolCalls[0].Name != "getWeather" {
		t.Errorf("round trip mismatch: %+v", back)
	}
}

func TestMessageMarshalEmptyContentWithoutCalls(t *testing.T) {
	data, err := json.Marshal(Message{Role: RoleAssistant})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"content":""`) {
		t.Errorf("expected empty string content, got %s", data)
	}
}

func TestMessageCreatedAtRoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m := Message{Role: RoleUser, Content: "hi", CreatedAt: ts}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back Message
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back.CreatedAt.Equal(ts) {
		t.Errorf("CreatedAt = %v, want %v", back.CreatedAt, ts)
	}
}

func TestMessageClone(t *testing.T) {
	orig := NewAssistantMessage("", []ToolCall{{ID: "a", Name: "f"}})
	c := orig.Clone()
	c.ToolCalls[0].Name = "changed"
	if orig.ToolCalls[0].Name != "f" {
		t.Error("Clone shares the ToolCalls backing array")
	}
}

func TestConversation(t *testing.T) {
	c := NewConversation()
	if !ValidateConversationID(c.ID) {
		t.Errorf("conversation ID %q invalid", c.ID)
	}
	if c.HasSystemMessage() {
		t.Error("empty conversation should have no system message")
	}

	c.Append(NewSystemMessage("sys"), NewUserMessage("hello"))
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	if !c.HasSystemMessage() {
		t.Error("HasSystemMessage() = false after append")
	}

	snap := c.Snapshot()
	snap[1].Content = "mutated"
	if c.Messages[1].Content != "hello" {
		t.Error("Snapshot should not alias the conversation")
	}
}

func TestUsageAdd(t *testing.T) {
	u := Usage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3}
	u.Add(Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30})
	if u != (Usage{InputTokens: 11, OutputTokens: 22, TotalTokens: 33}) {
		t.Errorf("Add = %+v", u)
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleUser, RoleSystem, RoleAssistant, RoleTool} {
		if !r.Valid() {
			t.Errorf("%q.Valid() = false", r)
		}
	}
	if Role("developer").Valid() {
		t.Error("unknown role reported valid")
	}
}
