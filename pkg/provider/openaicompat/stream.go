package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rhuss/toolloop/pkg/api"
	"github.com/rhuss/toolloop/pkg/debug"
	"github.com/rhuss/toolloop/pkg/provider"
)

// maxFrameSize bounds a single SSE line. Tool call argument frames from some
// backends exceed bufio.Scanner's 64KB default.
const maxFrameSize = 1 << 20

// errPrematureClose reports a stream that ended before [DONE] or a
// finish_reason. The request is eligible for one replay.
var errPrematureClose = errors.New("stream closed before terminal frame")

// ToolCallBuffer tracks incremental tool call argument assembly across
// multiple SSE chunks for a single tool call index.
type ToolCallBuffer struct {
	ID   string
	Name string
	Args strings.Builder
}

// streamState is the per-attempt parse state. A replay starts from a fresh
// one.
type streamState struct {
	toolCalls    map[int]*ToolCallBuffer
	finished     bool
	finishReason string
	sawToolCalls bool
	usage        *api.Usage
	model        string
}

// ParseSSEStream reads Chat Completions SSE chunks from body, translates
// them into provider chunks, and sends them on ch. It does not close ch.
//
// SSE format expected:
//
//	: keepalive\n
//	data: {"id":"...","choices":[...]}\n
//	\n
//	data: [DONE]\n
//
// Blank lines, comments and empty data frames are skipped. It returns nil
// after emitting ChunkDone once a terminal frame ([DONE] or a
// finish_reason) was seen. A malformed frame yields a serialization error;
// an early EOF or read error yields an error wrapping errPrematureClose.
// Sends on ch give up when ctx ends, so a consumer that stops reading only
// has to cancel.
func ParseSSEStream(ctx context.Context, body io.Reader, ch chan<- provider.Chunk) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	st := &streamState{toolCalls: make(map[int]*ToolCallBuffer)}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return MapNetworkError(err)
		}

		payload, ok := dataPayload(scanner.Text())
		if !ok {
			continue
		}

		if payload == "[DONE]" {
			return st.finish(ctx, ch)
		}

		var chunk ChatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return api.NewSerializationError("malformed SSE frame: "+Truncate(payload, 200), err)
		}

		debug.Trace("streaming", "sse frame", "data", payload)
		if err := st.translate(ctx, &chunk, ch); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return MapNetworkError(err)
	}

	// Some backends end the body right after the finish_reason frame.
	if st.finished {
		return st.finish(ctx, ch)
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return api.NewSerializationError("SSE frame exceeds maximum size", err)
		}
		return fmt.Errorf("%w: %v", errPrematureClose, err)
	}
	return errPrematureClose
}

// dataPayload extracts the payload of a "data:" line. It reports false for
// anything that carries no chunk: blank lines, comments such as
// ": keepalive", other SSE fields, and empty data frames.
func dataPayload(line string) (string, bool) {
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "" {
		return "", false
	}
	return payload, true
}

// send delivers c, or returns a transport error once ctx ends.
func send(ctx context.Context, ch chan<- provider.Chunk, c provider.Chunk) error {
	select {
	case ch <- c:
		return nil
	default:
	}
	select {
	case ch <- c:
		return nil
	case <-ctx.Done():
		return MapNetworkError(ctx.Err())
	}
}

// translate converts one ChatCompletionChunk into provider chunks.
func (st *streamState) translate(ctx context.Context, chunk *ChatCompletionChunk, ch chan<- provider.Chunk) error {
	if chunk.Model != "" {
		st.model = chunk.Model
	}

	// Usage arrives on its own frame (choices empty) when
	// stream_options.include_usage is set.
	if chunk.Usage != nil {
		u := translateUsage(chunk.Usage)
		st.usage = &u
	}

	if len(chunk.Choices) == 0 {
		return nil
	}

	choice := chunk.Choices[0]
	delta := choice.Delta

	if delta.Content != nil && *delta.Content != "" {
		err := send(ctx, ch, provider.Chunk{
			Type:  provider.ChunkTextDelta,
			Delta: *delta.Content,
			Model: st.model,
		})
		if err != nil {
			return err
		}
	}

	for _, tc := range delta.ToolCalls {
		buf, exists := st.toolCalls[tc.Index]
		if !exists {
			buf = &ToolCallBuffer{}
			st.toolCalls[tc.Index] = buf
			st.sawToolCalls = true
		}
		// The id and name normally arrive on the first fragment only.
		if buf.ID == "" {
			buf.ID = tc.ID
		}
		if buf.Name == "" {
			buf.Name = tc.Function.Name
		}
		buf.Args.WriteString(tc.Function.Arguments)

		err := send(ctx, ch, provider.Chunk{
			Type:          provider.ChunkToolCallDelta,
			ToolCallIndex: tc.Index,
			Delta:         tc.Function.Arguments,
		})
		if err != nil {
			return err
		}
	}

	if choice.FinishReason != nil && *choice.FinishReason != "" {
		st.finished = true
		st.finishReason = *choice.FinishReason
		return FlushToolCalls(ctx, st.toolCalls, ch)
	}
	return nil
}

// finish flushes any buffered tool calls and emits the terminal chunk.
func (st *streamState) finish(ctx context.Context, ch chan<- provider.Chunk) error {
	if err := FlushToolCalls(ctx, st.toolCalls, ch); err != nil {
		return err
	}

	reason := st.finishReason
	if reason == "" {
		reason = provider.FinishReasonStop
		if st.sawToolCalls {
			reason = provider.FinishReasonToolCalls
		}
	}

	return send(ctx, ch, provider.Chunk{
		Type:         provider.ChunkDone,
		FinishReason: reason,
		Usage:        st.usage,
		Model:        st.model,
	})
}

// FlushToolCalls emits ChunkToolCallDone for each buffered tool call in
// ascending index order and clears the buffer. Calls the backend sent
// without an id get a generated one. It stops with an error when ctx ends.
func FlushToolCalls(ctx context.Context, toolCalls map[int]*ToolCallBuffer, ch chan<- provider.Chunk) error {
	indices := make([]int, 0, len(toolCalls))
	for idx := range toolCalls {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	for _, idx := range indices {
		buf := toolCalls[idx]
		id := buf.ID
		if id == "" {
			id = api.NewCallID()
		}
		err := send(ctx, ch, provider.Chunk{
			Type:          provider.ChunkToolCallDone,
			ToolCallIndex: idx,
			ToolCall: &api.ToolCall{
				ID:        id,
				Name:      buf.Name,
				Arguments: buf.Args.String(),
			},
		})
		if err != nil {
			return err
		}
		delete(toolCalls, idx)
	}
	return nil
}

// Truncate limits a string to maxLen bytes for log output.
func Truncate(s string, maxLen int) string {
	return debug.Truncate(s, maxLen)
}
