// Command mock-backend runs a deterministic Chat Completions server for
// exercising toolloop without a model. It plays a scripted weather flow:
// a question mentioning weather gets a getWeather call, a question about
// the time gets a current_time call, and a tool result gets a final answer
// built from it. Streaming responses interleave keepalive comments and
// split tool call arguments across frames, the way real servers do.
//
// Configuration:
//
//	MOCK_PORT    - Listen port (default: 9090)
//	MOCK_API_KEY - When set, chat requests need it as a bearer token
//	MOCK_RPM     - When > 0, requests per minute before answering 429
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/toolloop/pkg/auth"
	"github.com/rhuss/toolloop/pkg/auth/apikey"
	"github.com/rhuss/toolloop/pkg/observability"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	guard, err := authMiddleware(os.Getenv("MOCK_API_KEY"), os.Getenv("MOCK_RPM"))
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /v1/chat/completions", observability.MetricsMiddleware("chat_completions", guard(http.HandlerFunc(handleChatCompletions))))
	mux.Handle("GET /v1/models", observability.MetricsMiddleware("models", guard(http.HandlerFunc(handleModels))))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// authMiddleware guards the API routes. Without a key every caller is
// admitted as anonymous, so the rate limit still applies.
func authMiddleware(key, rpm string) (func(http.Handler) http.Handler, error) {
	limit := 0
	if rpm != "" {
		n, err := strconv.Atoi(rpm)
		if err != nil {
			return nil, fmt.Errorf("MOCK_RPM: %w", err)
		}
		limit = n
	}

	chain := &auth.Chain{Default: auth.Yes}
	if key != "" {
		chain = &auth.Chain{
			Authenticators: []auth.Authenticator{
				apikey.New("", []apikey.Key{{Key: key, Identity: auth.Identity{Subject: "client"}}}),
			},
			Default: auth.No,
		}
	}

	var limiter auth.RateLimiter
	if limit > 0 {
		limiter = auth.NewWindowLimiter(time.Minute, limit, nil)
	}
	return auth.Middleware(chain, limiter, auth.DefaultBypassEndpoints), nil
}

// --- Request types ---

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []chatTool    `json:"tools,omitempty"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role       string     `json:"role"`
	Content    *string    `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
}

type chatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

// --- Response types ---

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int     `json:"index"`
	Message      chatMsg `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type chatMsg struct {
	Role      string     `json:"role"`
	Content   *string    `json:"content"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
}

type toolCall struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Function funcCall `json:"function"`
}

type funcCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// reply is the scripted outcome of one request: either text or one tool
// call.
type reply struct {
	text string
	call *toolCall
}

// --- Handler ---

func handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`, http.StatusBadRequest)
		return
	}
	if len(req.Messages) == 0 {
		http.Error(w, `{"error":{"message":"messages must not be empty","type":"invalid_request_error"}}`, http.StatusBadRequest)
		return
	}

	model := req.Model
	if model == "" {
		model = "mock-model"
	}
	rep := script(&req)

	if req.Stream {
		handleStreaming(w, model, rep)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(completion(model, rep))
}

var cityPattern = regexp.MustCompile(`\b[Ii]n ([A-Z][a-zA-Z]+(?: [A-Z][a-zA-Z]+)*)`)

// script decides the reply from the transcript.
func script(req *chatRequest) reply {
	last := req.Messages[len(req.Messages)-1]

	if last.Role == "tool" {
		return reply{text: answerFromTool(content(last))}
	}

	query := strings.ToLower(lastUserMessage(req))
	switch {
	case strings.Contains(query, "weather") && hasTool(req, "getWeather"):
		city := "Shanghai"
		if m := cityPattern.FindStringSubmatch(lastUserMessage(req)); m != nil {
			city = m[1]
		}
		args, _ := json.Marshal(map[string]string{"city": city})
		return reply{call: &toolCall{
			ID:       "call_mock_weather",
			Type:     "function",
			Function: funcCall{Name: "getWeather", Arguments: string(args)},
		}}
	case strings.Contains(query, "time") && hasTool(req, "current_time"):
		return reply{call: &toolCall{
			ID:       "call_mock_time",
			Type:     "function",
			Function: funcCall{Name: "current_time", Arguments: `{}`},
		}}
	case strings.Contains(query, "count from 1 to 5"):
		return reply{text: "1, 2, 3, 4, 5"}
	}
	return reply{text: "Hello, nice day!"}
}

// answerFromTool turns a tool result into the final answer.
func answerFromTool(result string) string {
	if strings.HasPrefix(result, "Sunny, 22C") {
		return "It's sunny, 22°C in Shanghai."
	}
	if strings.HasPrefix(result, "error") {
		return "Sorry, I could not get that information."
	}
	return "The tool says: " + result
}

func completion(model string, rep reply) chatResponse {
	msg := chatMsg{Role: "assistant"}
	finish := "stop"
	if rep.call != nil {
		msg.ToolCalls = []toolCall{*rep.call}
		finish = "tool_calls"
	} else {
		text := rep.text
		msg.Content = &text
	}
	return chatResponse{
		ID:      "chatcmpl-mock",
		Object:  "chat.completion",
		Model:   model,
		Choices: []chatChoice{{Index: 0, Message: msg, FinishReason: finish}},
		Usage:   chatUsage{PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30},
	}
}

// --- Streaming ---

func handleStreaming(w http.ResponseWriter, model string, rep reply) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(delta map[string]any, finish any, usage *chatUsage) {
		chunk := map[string]any{
			"id":     "chatcmpl-mock-stream",
			"object": "chat.completion.chunk",
			"model":  model,
			"choices": []any{map[string]any{
				"index":         0,
				"delta":         delta,
				"finish_reason": finish,
			}},
		}
		if usage != nil {
			chunk["choices"] = []any{}
			chunk["usage"] = usage
		}
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	keepalive := func() {
		fmt.Fprint(w, ": keepalive\n\n")
		flusher.Flush()
	}

	keepalive()
	send(map[string]any{"role": "assistant"}, nil, nil)

	finish := "stop"
	pieces := 0
	if rep.call != nil {
		finish = "tool_calls"
		fragments := splitArguments(rep.call.Function.Arguments)
		for i, frag := range fragments {
			fn := map[string]any{"arguments": frag}
			tc := map[string]any{"index": 0, "function": fn}
			if i == 0 {
				tc["id"] = rep.call.ID
				tc["type"] = "function"
				fn["name"] = rep.call.Function.Name
			}
			send(map[string]any{"tool_calls": []any{tc}}, nil, nil)
			if i == 0 {
				keepalive()
			}
		}
		pieces = len(fragments)
	} else {
		for i, token := range tokenize(rep.text) {
			send(map[string]any{"content": token}, nil, nil)
			if i == 1 {
				keepalive()
			}
			pieces++
		}
	}

	send(map[string]any{}, finish, nil)
	send(map[string]any{}, nil, &chatUsage{PromptTokens: 20, CompletionTokens: pieces, TotalTokens: 20 + pieces})

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// splitArguments cuts a JSON argument string into uneven fragments so that
// clients must reassemble it.
func splitArguments(args string) []string {
	if len(args) < 4 {
		return []string{args}
	}
	third := len(args) / 3
	return []string{args[:third], args[third : 2*third], args[2*third:]}
}

// tokenize splits text after each space, keeping the spaces.
func tokenize(text string) []string {
	var tokens []string
	for text != "" {
		i := strings.IndexByte(text, ' ')
		if i < 0 {
			tokens = append(tokens, text)
			break
		}
		tokens = append(tokens, text[:i+1])
		text = text[i+1:]
	}
	return tokens
}

// --- Models endpoint ---

func handleModels(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": "mock-model", "object": "model", "owned_by": "toolloop-mock"},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// --- Helpers ---

func content(m chatMessage) string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

func lastUserMessage(req *chatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return content(req.Messages[i])
		}
	}
	return ""
}

func hasTool(req *chatRequest, name string) bool {
	for _, t := range req.Tools {
		if t.Function.Name == name {
			return true
		}
	}
	return false
}
