package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rhuss/toolloop/pkg/api"
	"github.com/rhuss/toolloop/pkg/debug"
	"github.com/rhuss/toolloop/pkg/observability"
	"github.com/rhuss/toolloop/pkg/provider"
)

// ProviderName identifies this adapter in logs and metrics.
const ProviderName = "openai-compat"

// Client performs HTTP requests against an OpenAI-compatible Chat
// Completions backend.
type Client struct {
	cfg       Config
	endpoint  string
	modelsURL string
	caps      provider.Capabilities

	httpClient   *http.Client
	streamClient *http.Client
}

// Ensure Client implements provider.Provider at compile time.
var _ provider.Provider = (*Client)(nil)

// New creates a Client. Returns an error if the configuration is invalid.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("openaicompat: BaseURL is required")
	}
	cfg.applyDefaults()

	endpoint, modelsURL := resolveEndpoints(cfg.BaseURL)

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
		MaxIdleConnsPerHost: 16,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		cfg:       cfg,
		endpoint:  endpoint,
		modelsURL: modelsURL,
		caps: provider.Capabilities{
			Streaming:   true,
			ToolCalling: true,
		},
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		// A stream can legitimately outlive any fixed timeout. The context
		// controls its lifetime instead.
		streamClient: &http.Client{
			Transport: transport,
		},
	}, nil
}

// NewWithCapabilities creates a Client with custom capabilities.
func NewWithCapabilities(cfg Config, caps provider.Capabilities) (*Client, error) {
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	c.caps = caps
	return c, nil
}

// resolveEndpoints derives the chat and models URLs from a base URL.
func resolveEndpoints(base string) (chat, models string) {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasSuffix(base, "/chat/completions"):
		root := strings.TrimSuffix(base, "/chat/completions")
		return base, root + "/models"
	case strings.HasSuffix(base, "/v1"):
		return base + "/chat/completions", base + "/models"
	default:
		return base + "/v1/chat/completions", base + "/v1/models"
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return ProviderName
}

// Capabilities returns what this provider supports.
func (c *Client) Capabilities() provider.Capabilities {
	return c.caps
}

// Complete performs one blocking request against the Chat Completions
// endpoint. Network failures are retried once; provider and
// serialization errors are returned immediately.
func (c *Client) Complete(ctx context.Context, req *provider.CompletionRequest) (*provider.Completion, error) {
	reqCopy := *req
	reqCopy.Stream = false

	body, err := c.encode(&reqCopy)
	if err != nil {
		return nil, err
	}

	var comp *provider.Completion
	err = c.retry(ctx, "request", func() error {
		var err error
		comp, err = c.doComplete(ctx, body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return comp, nil
}

func (c *Client) doComplete(ctx context.Context, body []byte) (*provider.Completion, error) {
	httpReq, err := c.newRequest(ctx, c.endpoint, body, false)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	debug.Raw("providers", string(data))

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(data, &chatResp); err != nil {
		return nil, api.NewSerializationError("failed to parse backend response", err)
	}

	return TranslateResponse(&chatResp)
}

// Stream performs a streaming request and returns a channel of chunks. The
// channel is closed after a ChunkDone or ChunkError chunk. If the body ends
// before a terminal frame, the request is replayed once after a
// ChunkRestart chunk. A caller that stops reading early must cancel ctx to
// release the response body.
func (c *Client) Stream(ctx context.Context, req *provider.CompletionRequest) (<-chan provider.Chunk, error) {
	reqCopy := *req
	reqCopy.Stream = true

	body, err := c.encode(&reqCopy)
	if err != nil {
		return nil, err
	}

	resp, err := c.openStream(ctx, body)
	if err != nil {
		return nil, err
	}

	ch := make(chan provider.Chunk, 16)
	go c.pump(ctx, body, resp, ch)
	return ch, nil
}

func (c *Client) openStream(ctx context.Context, body []byte) (*http.Response, error) {
	var resp *http.Response
	err := c.retry(ctx, "connect", func() error {
		httpReq, err := c.newRequest(ctx, c.endpoint, body, true)
		if err != nil {
			return err
		}
		r, err := c.streamClient.Do(httpReq)
		if err != nil {
			return MapNetworkError(err)
		}
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			defer r.Body.Close()
			return MapHTTPError(r)
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// pump parses the stream, replaying the request once on a premature close.
func (c *Client) pump(ctx context.Context, body []byte, resp *http.Response, ch chan<- provider.Chunk) {
	defer close(ch)

	active := observability.StreamsActive.WithLabelValues("client")
	active.Inc()
	defer active.Dec()

	replays := 0
	for {
		err := ParseSSEStream(ctx, resp.Body, ch)
		resp.Body.Close()
		if err == nil {
			return
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			_ = send(ctx, ch, provider.Chunk{Type: provider.ChunkError, Err: MapNetworkError(ctxErr)})
			return
		}

		if !errors.Is(err, errPrematureClose) {
			_ = send(ctx, ch, provider.Chunk{Type: provider.ChunkError, Err: err})
			return
		}

		if replays >= c.cfg.MaxRetries {
			_ = send(ctx, ch, provider.Chunk{
				Type: provider.ChunkError,
				Err:  api.NewTransportError("stream closed before completion", err),
			})
			return
		}

		replays++
		observability.ProviderRetriesTotal.WithLabelValues(ProviderName, "replay").Inc()
		slog.Warn("stream closed before terminal frame, replaying request",
			"provider", ProviderName,
			"attempt", replays,
			"error", err.Error(),
		)
		if send(ctx, ch, provider.Chunk{Type: provider.ChunkRestart}) != nil {
			return
		}

		resp, err = c.openStream(ctx, body)
		if err != nil {
			_ = send(ctx, ch, provider.Chunk{Type: provider.ChunkError, Err: err})
			return
		}
	}
}

// retry runs op with the configured backoff. Only transport errors are
// retried; anything else is returned on the first failure.
func (c *Client) retry(ctx context.Context, kind string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryInitialInterval
	b.MaxInterval = c.cfg.RetryMaxInterval
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries)), ctx)

	err := backoff.RetryNotify(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !api.IsErrorType(err, api.ErrorTypeTransport) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		observability.ProviderRetriesTotal.WithLabelValues(ProviderName, kind).Inc()
		slog.Warn("provider request failed, retrying",
			"provider", ProviderName,
			"kind", kind,
			"backoff", wait,
			"error", err.Error(),
		)
	})
	if err == nil {
		return nil
	}

	// The backoff loop returns the bare context error when cancelled while
	// waiting.
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		return MapNetworkError(err)
	}
	return err
}

// encode translates and marshals the request once so retries and replays
// send identical bytes.
func (c *Client) encode(req *provider.CompletionRequest) ([]byte, error) {
	if c.cfg.ModelMapper != nil {
		req.Model = c.cfg.ModelMapper(req.Model)
	}

	chatReq := TranslateToChat(req)
	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, api.NewSerializationError("failed to marshal request", err)
	}

	debug.Log("providers", "chat completion request",
		"url", c.endpoint,
		"model", req.Model,
		"stream", req.Stream,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
	)
	debug.Raw("providers", string(body))

	return body, nil
}

func (c *Client) newRequest(ctx context.Context, url string, body []byte, stream bool) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, api.NewValidationError("base_url", fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	return httpReq, nil
}

// ListModels returns available models from the backend by querying
// the models endpoint.
func (c *Client) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.modelsURL, nil)
	if err != nil {
		return nil, api.NewValidationError("base_url", fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}

	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	var modelsResp ChatModelsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&modelsResp); err != nil {
		return nil, api.NewSerializationError("failed to parse models response", err)
	}

	models := make([]provider.ModelInfo, 0, len(modelsResp.Data))
	for _, m := range modelsResp.Data {
		models = append(models, provider.ModelInfo{
			ID:      m.ID,
			Object:  m.Object,
			OwnedBy: m.OwnedBy,
		})
	}

	return models, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
