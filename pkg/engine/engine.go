package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rhuss/toolloop/pkg/api"
	"github.com/rhuss/toolloop/pkg/provider"
	"github.com/rhuss/toolloop/pkg/storage"
	"github.com/rhuss/toolloop/pkg/tools"
)

// Toolbox is what the engine needs from a capability registry: name
// resolution for dispatch and the rendered schema for requests.
// *registry.Registry implements it.
type Toolbox interface {
	tools.Resolver
	ProviderTools() []provider.Tool
}

// Engine runs orchestration loops against one provider and one toolbox.
// It is safe for concurrent use; every Run owns its own transcript.
type Engine struct {
	provider   provider.Provider
	toolbox    Toolbox
	dispatcher *tools.Dispatcher
	store      storage.HistoryStore
	cfg        Config

	// persistTimeout bounds each history write, the writer drain and the
	// final run commit.
	persistTimeout time.Duration
}

// DefaultPersistTimeout bounds history writes made on behalf of one run.
const DefaultPersistTimeout = 5 * time.Second

// New creates an Engine. The provider must not be nil. A nil toolbox
// advertises no tools and a nil store disables persistence.
func New(p provider.Provider, toolbox Toolbox, store storage.HistoryStore, cfg Config) (*Engine, error) {
	if p == nil {
		return nil, fmt.Errorf("engine: provider must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if toolbox == nil {
		toolbox = emptyToolbox{}
	}

	cfg = cfg.withDefaults()
	return &Engine{
		provider: p,
		toolbox:  toolbox,
		dispatcher: tools.NewDispatcher(toolbox,
			tools.WithAllowedTools(cfg.AllowedTools),
			tools.WithParallel(cfg.ParallelToolCalls),
			tools.WithTimeout(cfg.ToolTimeout),
		),
		store:          store,
		cfg:            cfg,
		persistTimeout: DefaultPersistTimeout,
	}, nil
}

// Config returns the effective configuration, defaults applied.
func (e *Engine) Config() Config {
	return e.cfg
}

// RunRequest is the input of one run.
type RunRequest struct {
	// Query is the user message starting the run.
	Query string

	// ConversationID continues a stored conversation. Empty starts a new
	// one. An unknown ID starts a new conversation under that ID.
	ConversationID string

	// Observer receives progress callbacks. Nil means NopObserver.
	Observer Observer
}

// Run drives one conversation to a terminal state. The returned Result is
// never nil. The error is non-nil exactly when Result.Status is
// StatusError, and is then the *api.APIError in Result.Error.
func (e *Engine) Run(ctx context.Context, req RunRequest) (*Result, error) {
	obs := req.Observer
	if obs == nil {
		obs = NopObserver{}
	}

	res := &Result{
		RunID:          api.NewRunID(),
		ConversationID: req.ConversationID,
		StartedAt:      time.Now(),
	}

	conv, apiErr := e.prepare(ctx, req)
	if apiErr != nil {
		// Rejected before the loop started: no transition, no provider call.
		slog.Warn("run rejected", "run_id", res.RunID, "error", apiErr.Error())
		res.State = api.RunStateFailed
		res.Status = StatusError
		res.Error = apiErr
		res.CompletedAt = time.Now()
		return res, apiErr
	}
	res.ConversationID = conv.ID

	r := &run{
		engine:  e,
		obs:     obs,
		conv:    conv,
		result:  res,
		persist: startPersister(ctx, e.store, conv.ID, e.persistTimeout),
	}

	r.seed(req.Query)
	r.loop(ctx)
	r.finish()

	if res.Status == StatusError {
		return res, res.Error
	}
	return res, nil
}

// prepare validates the request and returns the transcript the run
// continues from.
func (e *Engine) prepare(ctx context.Context, req RunRequest) (*api.Conversation, *api.APIError) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, api.NewValidationError("query", "query must not be empty")
	}

	if req.ConversationID == "" {
		return api.NewConversation(), nil
	}
	if !api.ValidateConversationID(req.ConversationID) {
		return nil, api.NewValidationError("conversation_id",
			fmt.Sprintf("malformed conversation id %q", req.ConversationID))
	}
	if e.store == nil {
		return &api.Conversation{ID: req.ConversationID}, nil
	}

	conv, err := e.store.LoadConversation(ctx, req.ConversationID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return &api.Conversation{ID: req.ConversationID}, nil
	case err != nil:
		if ctx.Err() != nil {
			return nil, cancelledError(ctx)
		}
		return nil, api.NewServerError(fmt.Sprintf("loading conversation %s: %v", req.ConversationID, err))
	}

	if apiErr := api.ValidateTranscript(conv.Messages); apiErr != nil {
		apiErr.Message = "stored conversation is invalid: " + apiErr.Message
		return nil, apiErr
	}
	return conv, nil
}

func cancelledError(ctx context.Context) *api.APIError {
	return api.NewTransportError("request cancelled", ctx.Err())
}

type emptyToolbox struct{}

func (emptyToolbox) Lookup(string) (tools.Capability, bool) { return tools.Capability{}, false }
func (emptyToolbox) Names() []string                        { return nil }
func (emptyToolbox) ProviderTools() []provider.Tool         { return nil }
