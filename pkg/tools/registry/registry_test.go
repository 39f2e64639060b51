package registry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhuss/toolloop/pkg/api"
	"github.com/rhuss/toolloop/pkg/tools"
)

func handlerReturning(out string) tools.Handler {
	return func(context.Context, map[string]any) (string, error) { return out, nil }
}

func capability(name string, params ...tools.Parameter) tools.Capability {
	return tools.Capability{
		Descriptor: tools.Descriptor{Name: name, Description: name + " tool", Parameters: params},
		Handler:    handlerReturning(name),
	}
}

// closingSet records Close calls and exports a collector.
type closingSet struct {
	*tools.StaticSet
	closed    bool
	closeErr  error
	collector prometheus.Collector
}

func (s *closingSet) Close() error {
	s.closed = true
	return s.closeErr
}

func (s *closingSet) Collectors() []prometheus.Collector {
	if s.collector == nil {
		return nil
	}
	return []prometheus.Collector{s.collector}
}

func TestBuildKeepsRegistrationOrder(t *testing.T) {
	reg, err := Build(
		tools.NewStaticSet("weather", capability("getWeather", tools.Parameter{Name: "city", Type: tools.TypeString, Required: true})),
		tools.NewStaticSet("misc", capability("current_time"), capability("add")),
	)
	require.NoError(t, err)

	require.Equal(t, 3, reg.Len())
	var names []string
	for _, d := range reg.Schema() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"getWeather", "current_time", "add"}, names)
	assert.Equal(t, []string{"add", "current_time", "getWeather"}, reg.Names())
}

func TestLookupMatchesSchema(t *testing.T) {
	reg, err := Build(tools.NewStaticSet("weather", capability("getWeather", tools.Parameter{Name: "city", Type: tools.TypeString})))
	require.NoError(t, err)

	for _, d := range reg.Schema() {
		c, ok := reg.Lookup(d.Name)
		require.True(t, ok, d.Name)
		assert.Equal(t, d, c.Descriptor)
	}

	_, ok := reg.Lookup("getStockPrice")
	assert.False(t, ok)
}

func TestBuildRejectsDuplicates(t *testing.T) {
	_, err := Build(
		tools.NewStaticSet("first", capability("getWeather")),
		tools.NewStaticSet("second", capability("getWeather")),
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateCapability))

	var dup *DuplicateCapabilityError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "getWeather", dup.Name)
	assert.Equal(t, "first", dup.First)
	assert.Equal(t, "second", dup.Second)
	assert.Contains(t, err.Error(), `"first" and "second"`)
}

func TestBuildRejectsInvalidCapabilities(t *testing.T) {
	tests := []struct {
		name string
		cap  tools.Capability
		want string
	}{
		{"empty name", tools.Capability{Handler: handlerReturning("")}, "empty name"},
		{"nil handler", tools.Capability{Descriptor: tools.Descriptor{Name: "x"}}, "no handler"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tools.NewStaticSet("bad", tt.cap))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuildEmpty(t *testing.T) {
	reg, err := Build()
	require.NoError(t, err)
	assert.Zero(t, reg.Len())
	assert.Nil(t, reg.ProviderTools())
	assert.Empty(t, reg.Names())
}

func TestProviderTools(t *testing.T) {
	reg, err := Build(tools.NewStaticSet("weather", capability("getWeather",
		tools.Parameter{Name: "city", Type: tools.TypeString, Required: true},
		tools.Parameter{Name: "unit", Type: tools.TypeString, Enum: []string{"C", "F"}},
	)))
	require.NoError(t, err)

	pt := reg.ProviderTools()
	require.Len(t, pt, 1)
	assert.Equal(t, "getWeather", pt[0].Name)
	assert.Equal(t, "getWeather tool", pt[0].Description)

	var schema struct {
		Type       string                    `json:"type"`
		Properties map[string]map[string]any `json:"properties"`
		Required   []string                  `json:"required"`
	}
	require.NoError(t, json.Unmarshal(pt[0].Parameters, &schema))
	assert.Equal(t, "object", schema.Type)
	assert.Equal(t, []string{"city"}, schema.Required)
	assert.Contains(t, schema.Properties, "unit")
}

func TestRegistryResolvesForDispatcher(t *testing.T) {
	reg, err := Build(tools.NewStaticSet("misc", capability("ping")))
	require.NoError(t, err)

	d := tools.NewDispatcher(reg)
	res := d.DispatchAll(context.Background(), []api.ToolCall{
		{ID: "c1", Name: "ping"},
		{ID: "c2", Name: "pong"},
	})
	require.Len(t, res, 2)
	assert.Equal(t, "ping", res[0].Output)
	assert.True(t, res[1].IsError)
	assert.Contains(t, res[1].Output, "available functions: ping")
}

func TestCloseClosesSets(t *testing.T) {
	ok := &closingSet{StaticSet: tools.NewStaticSet("ok", capability("a"))}
	failing := &closingSet{StaticSet: tools.NewStaticSet("failing", capability("b")), closeErr: errors.New("boom")}

	reg, err := Build(ok, failing)
	require.NoError(t, err)

	err = reg.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing: boom")
	assert.True(t, ok.closed)
	assert.True(t, failing.closed)
}

func TestBuildRegistersCollectorsOnce(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "toolloop_registry_test_collector_total",
		Help: "test collector",
	})
	set := &closingSet{StaticSet: tools.NewStaticSet("metrics", capability("m")), collector: counter}

	_, err := Build(set)
	require.NoError(t, err)

	// A second build with the same collector must not fail.
	_, err = Build(set)
	require.NoError(t, err)

	err = prometheus.Register(counter)
	var are prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &are)
}
