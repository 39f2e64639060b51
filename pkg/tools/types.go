package tools

import (
	"context"
	"encoding/json"
)

// Parameter types understood by argument coercion and schema rendering.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// Parameter is one declared argument of a capability.
type Parameter struct {
	Name        string
	Type        string
	Description string
	Required    bool

	// Items is the element type when Type is "array".
	Items string

	// Enum optionally restricts string values.
	Enum []string
}

// Descriptor describes a capability to the model. It is immutable once the
// capability is registered.
type Descriptor struct {
	Name        string
	Description string

	// Parameters are rendered into the JSON Schema in declaration order.
	Parameters []Parameter

	// RawSchema, when set, is advertised verbatim instead of a schema
	// rendered from Parameters. Sets that receive a ready schema (MCP
	// servers) use it.
	RawSchema json.RawMessage
}

// Param returns the declared parameter called name.
func (d Descriptor) Param(name string) (Parameter, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Handler executes a capability with coerced arguments and returns the text
// fed back to the model.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Capability is a registered, callable tool.
type Capability struct {
	Descriptor
	Handler Handler
}

// Set contributes capabilities to a registry. Capabilities is called once,
// when the registry is built.
type Set interface {
	Name() string
	Capabilities() []Capability
}

// StaticSet is a Set declared in code.
type StaticSet struct {
	SetName string
	Caps    []Capability
}

// Ensure StaticSet implements Set at compile time.
var _ Set = (*StaticSet)(nil)

// NewStaticSet groups caps under name.
func NewStaticSet(name string, caps ...Capability) *StaticSet {
	return &StaticSet{SetName: name, Caps: caps}
}

// Name returns the set name.
func (s *StaticSet) Name() string { return s.SetName }

// Capabilities returns the declared capabilities.
func (s *StaticSet) Capabilities() []Capability { return s.Caps }

// Resolver finds capabilities by name. The registry implements it.
type Resolver interface {
	Lookup(name string) (Capability, bool)
	Names() []string
}

// ToolResult represents the output of a tool execution.
type ToolResult struct {
	// CallID matches the originating api.ToolCall.ID.
	CallID string

	// Name is the tool function name.
	Name string

	// Output is the tool output content, or a diagnostic when IsError.
	Output string

	// IsError indicates that the output is an error message.
	IsError bool
}
