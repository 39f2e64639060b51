package api

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleSystem, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// ToolCall is a directive emitted by the model asking for a capability
// invocation. Arguments holds the provider-supplied JSON text, which is
// parsed only when the call is dispatched.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is a single transcript entry.
//
// Content may be empty for an assistant message that only carries tool
// calls. ToolCallID and Name are set only on tool messages, ToolCalls only
// on assistant messages.
type Message struct {
	Role       Role       `json:"-"`
	Content    string     `json:"-"`
	ToolCallID string     `json:"-"`
	Name       string     `json:"-"`
	ToolCalls  []ToolCall `json:"-"`
	CreatedAt  time.Time  `json:"-"`
}

type messageWire struct {
	Role       Role       `json:"role"`
	Content    *string    `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
}

// MarshalJSON renders an empty assistant content as null when the message
// carries tool calls, so content-less tool call turns survive a round trip.
func (m Message) MarshalJSON() ([]byte, error) {
	w := messageWire{
		Role:       m.Role,
		ToolCallID: m.ToolCallID,
		Name:       m.Name,
		ToolCalls:  m.ToolCalls,
	}
	if m.Content != "" || !m.HasToolCalls() {
		content := m.Content
		w.Content = &content
	}
	if !m.CreatedAt.IsZero() {
		ts := m.CreatedAt.UTC()
		w.CreatedAt = &ts
	}
	return json.Marshal(w)
}

// UnmarshalJSON deserializes a Message, accepting null content.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.Role = w.Role
	m.Content = ""
	if w.Content != nil {
		m.Content = *w.Content
	}
	m.ToolCallID = w.ToolCallID
	m.Name = w.Name
	m.ToolCalls = w.ToolCalls
	m.CreatedAt = time.Time{}
	if w.CreatedAt != nil {
		m.CreatedAt = *w.CreatedAt
	}
	return nil
}

// HasToolCalls reports whether the message carries at least one directive.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// Clone returns a copy of m that shares no slices with the original.
func (m Message) Clone() Message {
	if m.ToolCalls != nil {
		calls := make([]ToolCall, len(m.ToolCalls))
		copy(calls, m.ToolCalls)
		m.ToolCalls = calls
	}
	return m
}

// NewUserMessage creates a user message stamped with the current time.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, CreatedAt: time.Now()}
}

// NewSystemMessage creates a system message stamped with the current time.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content, CreatedAt: time.Now()}
}

// NewAssistantMessage creates an assistant message. Pass nil calls for a
// plain answer.
func NewAssistantMessage(content string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls, CreatedAt: time.Now()}
}

// NewToolMessage creates a tool message answering the directive callID.
func NewToolMessage(callID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, Name: name, CreatedAt: time.Now()}
}

// Usage holds token counts reported by the provider.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// Conversation is an ordered transcript. Position is the only order:
// the message at index i happened before the message at index i+1.
type Conversation struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
}

// NewConversation creates an empty conversation with a fresh ID.
func NewConversation() *Conversation {
	return &Conversation{ID: NewConversationID()}
}

// Append adds messages at the end of the transcript.
func (c *Conversation) Append(msgs ...Message) {
	c.Messages = append(c.Messages, msgs...)
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.Messages)
}

// HasSystemMessage reports whether any message has the system role.
func (c *Conversation) HasSystemMessage() bool {
	for _, m := range c.Messages {
		if m.Role == RoleSystem {
			return true
		}
	}
	return false
}

// Snapshot returns a deep copy of the messages.
func (c *Conversation) Snapshot() []Message {
	out := make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		out[i] = m.Clone()
	}
	return out
}
