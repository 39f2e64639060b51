package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rhuss/toolloop/pkg/api"
	"github.com/rhuss/toolloop/pkg/engine"
	"github.com/rhuss/toolloop/pkg/provider/openaicompat"
	"github.com/rhuss/toolloop/pkg/tools"
	"github.com/rhuss/toolloop/pkg/tools/registry"
)

func startBackend(t *testing.T, key, rpm string) string {
	t.Helper()
	guard, err := authMiddleware(key, rpm)
	if err != nil {
		t.Fatalf("authMiddleware: %v", err)
	}
	mux := http.NewServeMux()
	mux.Handle("POST /v1/chat/completions", guard(http.HandlerFunc(handleChatCompletions)))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

func newEngine(t *testing.T, url, apiKey string, stream bool) *engine.Engine {
	t.Helper()
	client, err := openaicompat.New(openaicompat.Config{BaseURL: url, APIKey: apiKey, MaxRetries: -1})
	if err != nil {
		t.Fatalf("openaicompat.New: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	reg, err := registry.Build(tools.NewStaticSet("weather", tools.Capability{
		Descriptor: tools.Descriptor{
			Name:       "getWeather",
			Parameters: []tools.Parameter{{Name: "city", Type: tools.TypeString, Required: true}},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			if args["city"] == "Shanghai" {
				return "Sunny, 22C", nil
			}
			return "error: unknown city", nil
		},
	}))
	if err != nil {
		t.Fatalf("registry.Build: %v", err)
	}

	eng, err := engine.New(client, reg, nil, engine.Config{Model: "mock-model", Stream: stream})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return eng
}

func TestWeatherFlow(t *testing.T) {
	for _, stream := range []bool{false, true} {
		name := "sync"
		if stream {
			name = "stream"
		}
		t.Run(name, func(t *testing.T) {
			eng := newEngine(t, startBackend(t, "", ""), "", stream)

			res, err := eng.Run(context.Background(), engine.RunRequest{Query: "What's the weather in Shanghai?"})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.Content != "It's sunny, 22°C in Shanghai." {
				t.Errorf("Content = %q", res.Content)
			}
			if res.Interactions != 2 || res.State != api.RunStateDone {
				t.Errorf("Interactions = %d, State = %s", res.Interactions, res.State)
			}

			var call *api.ToolCall
			for _, m := range res.Messages {
				if len(m.ToolCalls) > 0 {
					call = &m.ToolCalls[0]
				}
			}
			if call == nil || call.ID != "call_mock_weather" || call.Arguments != `{"city":"Shanghai"}` {
				t.Errorf("tool call = %+v", call)
			}
		})
	}
}

func TestPlainAnswer(t *testing.T) {
	eng := newEngine(t, startBackend(t, "", ""), "", true)

	res, err := eng.Run(context.Background(), engine.RunRequest{Query: "Please count from 1 to 5"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Content != "1, 2, 3, 4, 5" || res.Interactions != 1 {
		t.Errorf("Content = %q, Interactions = %d", res.Content, res.Interactions)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	url := startBackend(t, "sk-mock", "")

	_, err := newEngine(t, url, "", false).Run(context.Background(), engine.RunRequest{Query: "hi"})
	apiErr := api.AsAPIError(err)
	if apiErr == nil || apiErr.Type != api.ErrorTypeProvider || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("err = %v, want a 401 provider error", err)
	}

	res, err := newEngine(t, url, "sk-mock", false).Run(context.Background(), engine.RunRequest{Query: "hi"})
	if err != nil {
		t.Fatalf("Run with key: %v", err)
	}
	if res.Content != "Hello, nice day!" {
		t.Errorf("Content = %q", res.Content)
	}
}

func TestRateLimited(t *testing.T) {
	eng := newEngine(t, startBackend(t, "", "1"), "", false)

	// The tool round trip needs a second request, which the limit refuses.
	res, err := eng.Run(context.Background(), engine.RunRequest{Query: "weather in Shanghai"})
	if err == nil {
		t.Fatal("expected the second request to be rate limited")
	}
	if res.Error.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", res.Error.Status)
	}
	if res.State != api.RunStateFailed {
		t.Errorf("State = %s, want failed", res.State)
	}
}

func TestInvalidRateLimit(t *testing.T) {
	if _, err := authMiddleware("", "fast"); err == nil {
		t.Error("expected an error for a non-numeric MOCK_RPM")
	}
}

func TestScript(t *testing.T) {
	text := func(s string) *string { return &s }
	weatherTool := chatTool{Type: "function"}
	weatherTool.Function.Name = "getWeather"

	tests := []struct {
		name     string
		req      chatRequest
		wantText string
		wantArgs string
	}{
		{
			name:     "city from question",
			req:      chatRequest{Messages: []chatMessage{{Role: "user", Content: text("How is the weather in New York today?")}}, Tools: []chatTool{weatherTool}},
			wantArgs: `{"city":"New York"}`,
		},
		{
			name:     "default city",
			req:      chatRequest{Messages: []chatMessage{{Role: "user", Content: text("weather?")}}, Tools: []chatTool{weatherTool}},
			wantArgs: `{"city":"Shanghai"}`,
		},
		{
			name:     "weather without tool",
			req:      chatRequest{Messages: []chatMessage{{Role: "user", Content: text("weather?")}}},
			wantText: "Hello, nice day!",
		},
		{
			name:     "tool error",
			req:      chatRequest{Messages: []chatMessage{{Role: "tool", Content: text("error: no data")}}},
			wantText: "Sorry, I could not get that information.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := script(&tt.req)
			if tt.wantArgs != "" {
				if rep.call == nil || rep.call.Function.Arguments != tt.wantArgs {
					t.Errorf("call = %+v, want arguments %s", rep.call, tt.wantArgs)
				}
				return
			}
			if rep.call != nil || rep.text != tt.wantText {
				t.Errorf("reply = %+v, want text %q", rep, tt.wantText)
			}
		})
	}
}

func TestSplitHelpers(t *testing.T) {
	args := `{"city":"Shanghai"}`
	if got := splitArguments(args); len(got) != 3 || got[0]+got[1]+got[2] != args {
		t.Errorf("splitArguments = %q", got)
	}
	if got := tokenize("It is sunny"); len(got) != 3 || got[0] != "It " || got[2] != "sunny" {
		t.Errorf("tokenize = %q", got)
	}
}
