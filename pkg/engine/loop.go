package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/toolloop/pkg/api"
	"github.com/rhuss/toolloop/pkg/debug"
	"github.com/rhuss/toolloop/pkg/observability"
	"github.com/rhuss/toolloop/pkg/provider"
)

// run is the state of one Run call. It is owned by a single goroutine.
type run struct {
	engine  *Engine
	obs     Observer
	conv    *api.Conversation
	result  *Result
	persist *persister

	state       api.RunState
	turn        int
	pending     []api.ToolCall
	lastContent string
}

// seed appends the system prompt, unless one is already present, and the
// user query.
func (r *run) seed(query string) {
	var msgs []api.Message
	if prompt := r.engine.cfg.SystemPrompt; prompt != "" && !r.conv.HasSystemMessage() {
		msgs = append(msgs, api.NewSystemMessage(prompt))
	}
	msgs = append(msgs, api.NewUserMessage(query))
	r.append(msgs...)
}

func (r *run) append(msgs ...api.Message) {
	r.conv.Append(msgs...)
	r.persist.enqueue(msgs...)
}

// loop steps the state machine until it reaches a terminal state.
func (r *run) loop(ctx context.Context) {
	r.transition(api.RunStateAwaitingModel)
	for !r.state.Terminal() {
		switch r.state {
		case api.RunStateAwaitingModel:
			r.awaitModel(ctx)
		case api.RunStateAwaitingTool:
			r.awaitTools(ctx)
		}
	}
}

// transition moves to the next state. An illegal transition fails the run.
func (r *run) transition(to api.RunState) {
	from := r.state
	if apiErr := api.ValidateRunTransition(from, to); apiErr != nil {
		slog.Error("illegal run transition", "run_id", r.result.RunID, "from", from, "to", to)
		r.result.Error = apiErr
		to = api.RunStateFailed
	}

	r.state = to
	if to == api.RunStateAwaitingModel {
		r.turn++
	}
	debug.Log("engine", "state change", "run_id", r.result.RunID, "from", from, "to", to, "turn", r.turn)
	r.obs.OnStateChange(from, to)
}

func (r *run) fail(apiErr *api.APIError) {
	r.result.Error = apiErr
	r.transition(api.RunStateFailed)
}

// awaitModel performs one provider turn.
func (r *run) awaitModel(ctx context.Context) {
	cfg := r.engine.cfg
	if r.turn > cfg.MaxInteractions {
		slog.Warn("interaction budget exhausted",
			"run_id", r.result.RunID,
			"max_interactions", cfg.MaxInteractions,
		)
		r.transition(api.RunStateExhausted)
		return
	}
	if ctx.Err() != nil {
		r.fail(cancelledError(ctx))
		return
	}

	spec := provider.RequestSpec{
		Model:       cfg.Model,
		Messages:    r.conv.Messages,
		Tools:       r.engine.toolbox.ProviderTools(),
		ToolChoice:  cfg.ToolChoice,
		Temperature: cfg.Temperature,
		Stream:      cfg.Stream,
	}
	if cfg.MaxTokens > 0 {
		spec.MaxTokens = &cfg.MaxTokens
	}

	req, err := provider.BuildRequest(spec)
	if err != nil {
		r.fail(api.AsAPIError(err))
		return
	}
	if apiErr := provider.ValidateCapabilities(r.engine.provider.Capabilities(), req); apiErr != nil {
		r.fail(apiErr)
		return
	}

	comp, err := r.complete(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			r.fail(cancelledError(ctx))
			return
		}
		r.fail(api.AsAPIError(err))
		return
	}
	r.result.Usage.Add(comp.Usage)

	if comp.HasToolCalls() {
		if comp.Content != "" {
			r.lastContent = comp.Content
			debug.Log("engine", "content discarded in favour of tool calls",
				"run_id", r.result.RunID,
				"content", debug.Truncate(comp.Content, 200),
			)
		}
		calls := make([]api.ToolCall, len(comp.ToolCalls))
		for i, tc := range comp.ToolCalls {
			if tc.ID == "" {
				tc.ID = api.NewCallID()
			}
			calls[i] = tc
		}
		r.append(api.NewAssistantMessage("", calls))
		r.pending = calls
		r.transition(api.RunStateAwaitingTool)
		return
	}

	r.lastContent = comp.Content
	r.result.Content = comp.Content
	r.append(api.NewAssistantMessage(comp.Content, nil))
	r.transition(api.RunStateDone)
}

// complete sends req through the synchronous or streaming path and
// records provider metrics.
func (r *run) complete(ctx context.Context, req *provider.CompletionRequest) (*provider.Completion, error) {
	p := r.engine.provider
	debug.Log("engine", "calling provider",
		"run_id", r.result.RunID,
		"turn", r.turn,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
		"stream", req.Stream,
	)

	start := time.Now()
	var (
		comp *provider.Completion
		err  error
	)
	if req.Stream {
		var ch <-chan provider.Chunk
		ch, err = p.Stream(ctx, req)
		if err == nil {
			comp, err = provider.Collect(ch, r.forward)
		}
	} else {
		comp, err = p.Complete(ctx, req)
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	observability.ProviderRequestsTotal.WithLabelValues(p.Name(), req.Model, status).Inc()
	observability.ProviderLatency.WithLabelValues(p.Name(), req.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Warn("provider call failed", "run_id", r.result.RunID, "turn", r.turn, "error", err)
		return nil, err
	}

	observability.ProviderTokensTotal.WithLabelValues(p.Name(), req.Model, "input").Add(float64(comp.Usage.InputTokens))
	observability.ProviderTokensTotal.WithLabelValues(p.Name(), req.Model, "output").Add(float64(comp.Usage.OutputTokens))
	return comp, nil
}

// forward relays stream events to the observer.
func (r *run) forward(c provider.Chunk) {
	switch c.Type {
	case provider.ChunkTextDelta:
		if c.Delta != "" {
			r.obs.OnTextDelta(c.Delta)
		}
	case provider.ChunkRestart:
		r.obs.OnRestart()
	}
}

// awaitTools executes the pending directives and appends one tool message
// per directive, in directive order.
func (r *run) awaitTools(ctx context.Context) {
	calls := r.pending
	r.pending = nil

	for _, call := range calls {
		r.obs.OnToolCall(call)
	}
	results := r.engine.dispatcher.DispatchAll(ctx, calls)

	msgs := make([]api.Message, len(results))
	for i, res := range results {
		r.obs.OnToolResult(res)
		msgs[i] = api.NewToolMessage(res.CallID, res.Name, res.Output)
	}
	r.append(msgs...)

	if ctx.Err() != nil {
		r.fail(cancelledError(ctx))
		return
	}
	r.transition(api.RunStateAwaitingModel)
}

// finish fills in the result, records run metrics, and commits the run to
// the history store.
func (r *run) finish() {
	res := r.result
	budget := r.engine.cfg.MaxInteractions

	res.State = r.state
	res.Status = statusFor(r.state)
	res.Interactions = min(r.turn, budget)
	if r.state == api.RunStateExhausted {
		res.Content = r.lastContent
	}
	res.Messages = r.conv.Snapshot()
	res.CompletedAt = time.Now()

	observability.RunsTotal.WithLabelValues(string(res.Status)).Inc()
	observability.RunInteractions.Observe(float64(res.Interactions))

	attrs := []any{
		"run_id", res.RunID,
		"conversation_id", res.ConversationID,
		"state", res.State,
		"interactions", res.Interactions,
		"tokens", res.Usage.TotalTokens,
		"duration", res.CompletedAt.Sub(res.StartedAt).String(),
	}
	switch res.Status {
	case StatusError:
		slog.Error("run failed", append(attrs, "error", res.Error.Error())...)
	case StatusWarning:
		slog.Warn("run exhausted", attrs...)
	default:
		slog.Info("run finished", attrs...)
	}

	r.persist.drain()
	r.persist.saveRun(res.record(r.engine.cfg.Model))
}
