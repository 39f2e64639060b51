package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rhuss/toolloop/pkg/tools"
)

// Set is the capability set of one MCP server. Tools are discovered once,
// when the set is created.
type Set struct {
	name   string
	client *Client
	caps   []tools.Capability
}

var _ tools.Set = (*Set)(nil)

// NewSet discovers the tools of a connected client.
func NewSet(ctx context.Context, client *Client) (*Set, error) {
	descriptors, err := client.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	s := &Set{name: "mcp:" + client.cfg.Name, client: client}
	for _, d := range descriptors {
		s.caps = append(s.caps, tools.Capability{
			Descriptor: d,
			Handler:    s.handler(d.Name),
		})
	}

	slog.Info("discovered MCP tools",
		"server", client.cfg.Name,
		"count", len(s.caps),
	)
	return s, nil
}

func (s *Set) handler(name string) tools.Handler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		return s.client.Call(ctx, name, args)
	}
}

// Name returns "mcp:" followed by the server name.
func (s *Set) Name() string { return s.name }

// Capabilities returns one capability per discovered tool.
func (s *Set) Capabilities() []tools.Capability { return s.caps }

// Close closes the MCP session.
func (s *Set) Close() error { return s.client.Close() }

// Open validates, connects and discovers every configured server. On any
// failure the sets opened so far are closed.
func Open(ctx context.Context, servers []ServerConfig) ([]*Set, error) {
	var sets []*Set
	fail := func(err error) ([]*Set, error) {
		var errs []error
		for _, s := range sets {
			errs = append(errs, s.Close())
		}
		return nil, errors.Join(append([]error{err}, errs...)...)
	}

	for _, cfg := range servers {
		if err := cfg.Validate(); err != nil {
			return fail(err)
		}
		client, err := Connect(ctx, cfg)
		if err != nil {
			return fail(err)
		}
		set, err := NewSet(ctx, client)
		if err != nil {
			_ = client.Close()
			return fail(fmt.Errorf("discovering tools: %w", err))
		}
		sets = append(sets, set)
	}
	return sets, nil
}
