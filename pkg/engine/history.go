package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/toolloop/pkg/api"
	"github.com/rhuss/toolloop/pkg/debug"
	"github.com/rhuss/toolloop/pkg/storage"
)

// persisterQueueSize is the number of pending batches before new ones are
// dropped.
const persisterQueueSize = 16

// persister writes transcript messages to the history store on a
// background goroutine, preserving append order. A nil persister discards
// everything.
//
// Writes never hold up the run: a full queue drops the batch, every store
// call is bounded by timeout, and drain gives up after timeout.
type persister struct {
	store          storage.HistoryStore
	ctx            context.Context
	conversationID string
	timeout        time.Duration
	queue          chan []api.Message
	done           chan struct{}
}

// startPersister returns nil when store is nil. Writes outlive the run's
// cancellation so that messages appended after a cancel are still stored.
func startPersister(ctx context.Context, store storage.HistoryStore, conversationID string, timeout time.Duration) *persister {
	if store == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultPersistTimeout
	}
	p := &persister{
		store:          store,
		ctx:            context.WithoutCancel(ctx),
		conversationID: conversationID,
		timeout:        timeout,
		queue:          make(chan []api.Message, persisterQueueSize),
		done:           make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *persister) loop() {
	defer close(p.done)
	for msgs := range p.queue {
		ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
		err := p.store.AppendMessages(ctx, p.conversationID, msgs...)
		cancel()
		if err != nil {
			slog.Warn("failed to persist messages",
				"conversation_id", p.conversationID,
				"count", len(msgs),
				"error", err,
			)
			continue
		}
		debug.Log("storage", "persisted messages", "conversation_id", p.conversationID, "count", len(msgs))
	}
}

func (p *persister) enqueue(msgs ...api.Message) {
	if p == nil || len(msgs) == 0 {
		return
	}
	batch := make([]api.Message, len(msgs))
	for i, m := range msgs {
		batch[i] = m.Clone()
	}
	select {
	case p.queue <- batch:
	default:
		slog.Warn("history writer is behind, dropping messages",
			"conversation_id", p.conversationID,
			"count", len(batch),
		)
	}
}

// drain stops accepting messages and waits for queued batches to be
// written, at most timeout. It reports whether the writer finished.
func (p *persister) drain() bool {
	if p == nil {
		return true
	}
	close(p.queue)

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return true
	case <-timer.C:
		slog.Warn("history writer did not drain in time",
			"conversation_id", p.conversationID,
			"timeout", p.timeout,
		)
		return false
	}
}

// saveRun records the run outcome, bounded by timeout.
func (p *persister) saveRun(rec *storage.RunRecord) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	if err := p.store.SaveRun(ctx, rec); err != nil {
		slog.Warn("failed to save run record", "run_id", rec.ID, "error", err)
	}
}
