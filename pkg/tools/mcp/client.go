package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/toolloop/pkg/debug"
	"github.com/rhuss/toolloop/pkg/tools"
)

// Client is a connected session with one MCP server.
type Client struct {
	cfg     ServerConfig
	session *mcp.ClientSession
}

// Connect performs the MCP handshake with the configured server.
func Connect(ctx context.Context, cfg ServerConfig) (*Client, error) {
	transport, err := newTransport(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating transport for %q: %w", cfg.Name, err)
	}
	return ConnectTransport(ctx, cfg, transport)
}

// ConnectTransport connects over an explicit transport, such as the
// in-memory transports used in tests.
func ConnectTransport(ctx context.Context, cfg ServerConfig, transport mcp.Transport) (*Client, error) {
	client := mcp.NewClient(
		&mcp.Implementation{Name: "toolloop", Version: "1.0.0"},
		&mcp.ClientOptions{Capabilities: &mcp.ClientCapabilities{}},
	)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to MCP server %q: %w", cfg.Name, err)
	}
	debug.Log("mcp", "connected", "server", cfg.Name, "url", cfg.URL)
	return &Client{cfg: cfg, session: session}, nil
}

func newTransport(cfg ServerConfig) (mcp.Transport, error) {
	var httpClient *http.Client
	if sources := headerSources(cfg); len(sources) > 0 {
		httpClient = &http.Client{
			Transport: &headerTransport{base: http.DefaultTransport, sources: sources},
		}
	}

	switch cfg.Transport {
	case TransportSSE:
		return &mcp.SSEClientTransport{Endpoint: cfg.URL, HTTPClient: httpClient}, nil
	case TransportStreamableHTTP, "":
		return &mcp.StreamableClientTransport{Endpoint: cfg.URL, HTTPClient: httpClient}, nil
	default:
		return nil, fmt.Errorf("unsupported transport type %q", cfg.Transport)
	}
}

// ListTools lists the server's tools as descriptors. The input schema is
// kept verbatim in RawSchema; its top-level properties are also mapped to
// Parameters so arguments can be coerced.
func (c *Client) ListTools(ctx context.Context) ([]tools.Descriptor, error) {
	var out []tools.Descriptor
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("listing tools from %q: %w", c.cfg.Name, err)
		}
		d, err := descriptorFor(tool)
		if err != nil {
			return nil, fmt.Errorf("converting tool %q from %q: %w", tool.Name, c.cfg.Name, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// Call invokes a tool and returns its text content. A result flagged as an
// error by the server is returned as an error carrying that text.
func (c *Client) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("MCP tool call: %w", err)
	}

	text := resultText(result)
	if result.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return "", errors.New(text)
	}
	return text, nil
}

// Close ends the session.
func (c *Client) Close() error {
	return c.session.Close()
}

func resultText(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// inputSchema is the subset of JSON Schema mapped onto Parameters.
type inputSchema struct {
	Properties map[string]struct {
		Type        string   `json:"type"`
		Description string   `json:"description"`
		Enum        []string `json:"enum"`
		Items       struct {
			Type string `json:"type"`
		} `json:"items"`
	} `json:"properties"`
	Required []string `json:"required"`
}

func descriptorFor(t *mcp.Tool) (tools.Descriptor, error) {
	d := tools.Descriptor{Name: t.Name, Description: t.Description}
	if t.InputSchema == nil {
		return d, nil
	}

	raw, err := json.Marshal(t.InputSchema)
	if err != nil {
		return d, fmt.Errorf("marshaling input schema: %w", err)
	}
	d.RawSchema = raw

	var schema inputSchema
	if err := json.Unmarshal(raw, &schema); err != nil {
		// Schemas the subset cannot read are still advertised verbatim.
		return d, nil
	}
	required := make(map[string]bool, len(schema.Required))
	for _, r := range schema.Required {
		required[r] = true
	}
	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := schema.Properties[name]
		d.Parameters = append(d.Parameters, tools.Parameter{
			Name:        name,
			Type:        p.Type,
			Description: p.Description,
			Required:    required[name],
			Items:       p.Items.Type,
			Enum:        p.Enum,
		})
	}
	return d, nil
}
