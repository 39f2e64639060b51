package provider

import (
	"strings"

	"github.com/rhuss/toolloop/pkg/api"
)

// Accumulator folds a chunk sequence into a Completion. Text deltas are
// concatenated in arrival order, completed tool calls are kept in the order
// they were emitted, and a ChunkRestart discards everything seen so far.
type Accumulator struct {
	content      strings.Builder
	toolCalls    []api.ToolCall
	finishReason string
	usage        api.Usage
	model        string
	done         bool
	err          error
}

// Add consumes one chunk.
func (a *Accumulator) Add(c Chunk) {
	if c.Model != "" {
		a.model = c.Model
	}
	switch c.Type {
	case ChunkTextDelta:
		a.content.WriteString(c.Delta)
	case ChunkToolCallDone:
		if c.ToolCall != nil {
			a.toolCalls = append(a.toolCalls, *c.ToolCall)
		}
	case ChunkRestart:
		a.Reset()
	case ChunkDone:
		a.done = true
		a.finishReason = c.FinishReason
		if c.Usage != nil {
			a.usage = *c.Usage
		}
	case ChunkError:
		a.err = c.Err
		if a.err == nil {
			a.err = api.NewTransportError("stream ended with an error", nil)
		}
	}
}

// Reset drops all accumulated state.
func (a *Accumulator) Reset() {
	a.content.Reset()
	a.toolCalls = nil
	a.finishReason = ""
	a.usage = api.Usage{}
	a.done = false
	a.err = nil
}

// Completion returns the folded result. It fails if the stream reported an
// error or ended without a terminal chunk.
func (a *Accumulator) Completion() (*Completion, error) {
	if a.err != nil {
		return nil, a.err
	}
	if !a.done {
		return nil, api.NewTransportError("stream closed before completion", nil)
	}
	return &Completion{
		Content:      a.content.String(),
		ToolCalls:    a.toolCalls,
		FinishReason: a.finishReason,
		Usage:        a.usage,
		Model:        a.model,
	}, nil
}

// Collect drains ch, calling onChunk (when non-nil) for every chunk before
// folding it, and returns the resulting Completion.
func Collect(ch <-chan Chunk, onChunk func(Chunk)) (*Completion, error) {
	var acc Accumulator
	for c := range ch {
		if onChunk != nil {
			onChunk(c)
		}
		acc.Add(c)
	}
	return acc.Completion()
}
