package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rhuss/toolloop/pkg/api"
	"github.com/rhuss/toolloop/pkg/debug"
	"github.com/rhuss/toolloop/pkg/observability"
)

// Outcome labels recorded on toolloop_tool_executions_total.
const (
	outcomeSuccess      = "success"
	outcomeError        = "error"
	outcomePanic        = "panic"
	outcomeNotFound     = "not_found"
	outcomeBadArguments = "bad_arguments"
	outcomeRejected     = "rejected"
	outcomeSkipped      = "skipped"
)

// Dispatcher executes tool calls against a Resolver. It is safe for
// concurrent use.
type Dispatcher struct {
	resolver Resolver
	allowed  AllowList
	parallel bool
	timeout  time.Duration
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithAllowedTools rejects calls to tools outside names. Empty allows all.
func WithAllowedTools(names []string) DispatcherOption {
	return func(d *Dispatcher) { d.allowed = NewAllowList(names) }
}

// WithParallel runs the calls of one DispatchAll concurrently. Result
// order still follows call order.
func WithParallel(parallel bool) DispatcherOption {
	return func(d *Dispatcher) { d.parallel = parallel }
}

// WithTimeout bounds each handler invocation. It is the only bound on a
// started handler; zero leaves handlers unbounded.
func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// NewDispatcher creates a Dispatcher resolving names through resolver.
func NewDispatcher(resolver Resolver, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{resolver: resolver}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DispatchAll executes calls and returns exactly one result per call, in
// call order.
func (d *Dispatcher) DispatchAll(ctx context.Context, calls []api.ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))

	if !d.parallel || len(calls) < 2 {
		for i, call := range calls {
			results[i] = d.Dispatch(ctx, call)
		}
		return results
	}

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call api.ToolCall) {
			defer wg.Done()
			results[i] = d.Dispatch(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

// Dispatch executes a single call. Every failure is reported through the
// returned result, never as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, call api.ToolCall) ToolResult {
	if err := ctx.Err(); err != nil {
		observability.ToolExecutionsTotal.WithLabelValues(call.Name, outcomeSkipped).Inc()
		return errorResult(call, fmt.Sprintf("tool call %s skipped: %v", call.Name, err))
	}

	if !d.allowed.Permits(call.Name) {
		slog.Warn("tool call rejected by allow list", "tool", call.Name, "call_id", call.ID)
		observability.ToolExecutionsTotal.WithLabelValues(call.Name, outcomeRejected).Inc()
		return rejectResult(call)
	}

	capability, ok := d.resolver.Lookup(call.Name)
	if !ok {
		apiErr := api.NewToolNotFoundError(call.Name)
		slog.Warn("model called unknown tool", "tool", call.Name, "call_id", call.ID)
		observability.ToolExecutionsTotal.WithLabelValues(call.Name, outcomeNotFound).Inc()
		return errorResult(call, unknownToolMessage(apiErr, d.resolver.Names()))
	}

	args, err := CoerceArguments(call.Arguments, capability.Descriptor)
	if err != nil {
		slog.Warn("tool call has unusable arguments",
			"tool", call.Name,
			"call_id", call.ID,
			"error", err.Error(),
		)
		observability.ToolExecutionsTotal.WithLabelValues(call.Name, outcomeBadArguments).Inc()
		return errorResult(call, fmt.Sprintf("error: %v for function %q", err, call.Name))
	}

	debug.Log("tools", "executing tool", "tool", call.Name, "call_id", call.ID, "arguments", debug.Truncate(call.Arguments, 200))

	start := time.Now()
	output, status, err := d.invoke(ctx, capability, args)
	observability.ToolExecutionDuration.WithLabelValues(call.Name).Observe(time.Since(start).Seconds())
	observability.ToolExecutionsTotal.WithLabelValues(call.Name, status).Inc()

	if err != nil {
		apiErr := api.NewToolExecutionError(call.Name, err)
		slog.Warn("tool execution failed",
			"tool", call.Name,
			"call_id", call.ID,
			"error", apiErr.Message,
		)
		return errorResult(call, fmt.Sprintf("error executing %s: %s", call.Name, apiErr.Message))
	}

	return ToolResult{CallID: call.ID, Name: call.Name, Output: output}
}

// invoke runs the handler with panic recovery and the optional timeout.
// A started handler runs to completion: it keeps the caller's values but
// not its cancellation, so only the timeout can stop it.
func (d *Dispatcher) invoke(ctx context.Context, capability Capability, args map[string]any) (output string, status string, err error) {
	ctx = context.WithoutCancel(ctx)
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("tool handler panicked", "tool", capability.Name, "panic", rec)
			output = ""
			status = outcomePanic
			err = fmt.Errorf("internal error: tool %q panicked", capability.Name)
		}
	}()

	output, err = capability.Handler(ctx, args)
	if err != nil {
		return "", outcomeError, err
	}
	return output, outcomeSuccess, nil
}

func unknownToolMessage(apiErr *api.APIError, available []string) string {
	if len(available) == 0 {
		return "error: " + apiErr.Message + "; no functions are available"
	}
	return "error: " + apiErr.Message + "; available functions: " + strings.Join(available, ", ")
}

func errorResult(call api.ToolCall, output string) ToolResult {
	return ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Output:  output,
		IsError: true,
	}
}
