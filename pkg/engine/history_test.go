package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rhuss/toolloop/pkg/api"
	"github.com/rhuss/toolloop/pkg/storage"
	"github.com/rhuss/toolloop/pkg/storage/memory"
)

func newStoredEngine(t *testing.T, p *scriptedProvider, store storage.HistoryStore, cfg Config) *Engine {
	t.Helper()
	reg, _ := weatherToolbox(t)
	cfg.Model = "test-model"
	e, err := New(p, reg, store, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestRunPersistsConversationAndRun(t *testing.T) {
	store := memory.New(0)
	p := newScriptedProvider(toolTurn("", weatherCall("call_1")), answerTurn("It's sunny, 22°C in Shanghai."))
	e := newStoredEngine(t, p, store, Config{})

	ctx := context.Background()
	res, err := e.Run(ctx, RunRequest{Query: "weather in Shanghai"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	conv, err := store.LoadConversation(ctx, res.ConversationID)
	if err != nil {
		t.Fatalf("LoadConversation: %v", err)
	}
	if conv.Len() != len(res.Messages) {
		t.Fatalf("stored %d messages, run produced %d", conv.Len(), len(res.Messages))
	}
	for i, m := range conv.Messages {
		if m.Role != res.Messages[i].Role || m.Content != res.Messages[i].Content {
			t.Errorf("message %d = %+v, want %+v", i, m, res.Messages[i])
		}
	}

	rec, err := store.GetRun(ctx, res.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if rec.Status != string(StatusSuccess) || rec.Interactions != 2 || rec.Model != "test-model" {
		t.Errorf("run record = %+v", rec)
	}
	if rec.ConversationID != res.ConversationID || rec.Content != res.Content {
		t.Errorf("run record = %+v", rec)
	}
}

func TestRunContinuesStoredConversation(t *testing.T) {
	store := memory.New(0)
	ctx := context.Background()

	first := newScriptedProvider(toolTurn("", weatherCall("call_1")), answerTurn("It's sunny, 22°C in Shanghai."))
	res, err := newStoredEngine(t, first, store, Config{SystemPrompt: "Be brief."}).
		Run(ctx, RunRequest{Query: "weather in Shanghai"})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}

	second := newScriptedProvider(answerTurn("Still sunny."))
	res2, err := newStoredEngine(t, second, store, Config{SystemPrompt: "Be brief."}).
		Run(ctx, RunRequest{Query: "and tomorrow?", ConversationID: res.ConversationID})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if res2.ConversationID != res.ConversationID {
		t.Errorf("ConversationID = %q, want %q", res2.ConversationID, res.ConversationID)
	}
	msgs := second.request(0).Messages
	if len(msgs) != len(res.Messages)+1 {
		t.Fatalf("second run sent %d messages, want %d", len(msgs), len(res.Messages)+1)
	}
	systems := 0
	for _, m := range msgs {
		if m.Role == api.RoleSystem {
			systems++
		}
	}
	if systems != 1 {
		t.Errorf("system messages = %d, want 1", systems)
	}
	if last := msgs[len(msgs)-1]; last.Role != api.RoleUser || last.Content != "and tomorrow?" {
		t.Errorf("last message = %+v", last)
	}

	conv, err := store.LoadConversation(ctx, res.ConversationID)
	if err != nil {
		t.Fatalf("LoadConversation: %v", err)
	}
	if conv.Len() != len(res2.Messages) {
		t.Errorf("stored %d messages, want %d", conv.Len(), len(res2.Messages))
	}
}

func TestRunUnknownConversationStartsFresh(t *testing.T) {
	store := memory.New(0)
	id := api.NewConversationID()
	p := newScriptedProvider(answerTurn("Hello."))

	res, err := newStoredEngine(t, p, store, Config{}).
		Run(context.Background(), RunRequest{Query: "hi", ConversationID: id})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ConversationID != id {
		t.Errorf("ConversationID = %q, want %q", res.ConversationID, id)
	}
	if len(p.request(0).Messages) != 1 {
		t.Errorf("request messages = %+v", p.request(0).Messages)
	}
}

func TestRunWithoutStoreKeepsConversationID(t *testing.T) {
	id := api.NewConversationID()
	res, err := newTestEngine(t, newScriptedProvider(answerTurn("Hello.")), nil, Config{}).
		Run(context.Background(), RunRequest{Query: "hi", ConversationID: id})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ConversationID != id {
		t.Errorf("ConversationID = %q, want %q", res.ConversationID, id)
	}
}

func TestRunRejectsInvalidStoredTranscript(t *testing.T) {
	store := memory.New(0)
	ctx := context.Background()
	id := api.NewConversationID()
	if err := store.AppendMessages(ctx, id, api.NewToolMessage("call_orphan", "getWeather", "Sunny")); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	p := newScriptedProvider(answerTurn("unused"))
	_, err := newStoredEngine(t, p, store, Config{}).Run(ctx, RunRequest{Query: "hi", ConversationID: id})
	if !api.IsErrorType(err, api.ErrorTypeValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if p.calls() != 0 {
		t.Errorf("provider called %d times, want 0", p.calls())
	}
}

// failingStore fails every write but behaves like a memory store otherwise.
type failingStore struct {
	*memory.Store
}

func (failingStore) AppendMessages(context.Context, string, ...api.Message) error {
	return errors.New("disk full")
}

func (failingStore) SaveRun(context.Context, *storage.RunRecord) error {
	return errors.New("disk full")
}

func TestRunSurvivesPersistenceFailures(t *testing.T) {
	p := newScriptedProvider(toolTurn("", weatherCall("call_1")), answerTurn("Sunny."))
	res, err := newStoredEngine(t, p, failingStore{memory.New(0)}, Config{}).
		Run(context.Background(), RunRequest{Query: "weather"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != StatusSuccess {
		t.Errorf("Status = %s", res.Status)
	}
}

func TestRunPersistsFailedRuns(t *testing.T) {
	store := memory.New(0)
	p := newScriptedProvider(turn{err: api.NewProviderError(503, "", "unavailable")})

	res, err := newStoredEngine(t, p, store, Config{}).Run(context.Background(), RunRequest{Query: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	rec, getErr := store.GetRun(context.Background(), res.RunID)
	if getErr != nil {
		t.Fatalf("GetRun: %v", getErr)
	}
	if rec.Status != string(StatusError) || rec.Error == nil || rec.Error.Status != 503 {
		t.Errorf("run record = %+v", rec)
	}
}

func TestRunScopesHistoryToTenant(t *testing.T) {
	store := memory.New(0)
	alice := storage.SetTenant(context.Background(), "alice")
	bob := storage.SetTenant(context.Background(), "bob")

	res, err := newStoredEngine(t, newScriptedProvider(answerTurn("Hello.")), store, Config{}).
		Run(alice, RunRequest{Query: "hi"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := store.LoadConversation(bob, res.ConversationID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("bob sees alice's conversation: err = %v", err)
	}
	if _, err := store.LoadConversation(alice, res.ConversationID); err != nil {
		t.Errorf("alice cannot load her conversation: %v", err)
	}
}

// hungStore blocks every write until its context ends.
type hungStore struct {
	*memory.Store
}

func (hungStore) AppendMessages(ctx context.Context, _ string, _ ...api.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func (hungStore) SaveRun(ctx context.Context, _ *storage.RunRecord) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRunReturnsWhenStoreHangs(t *testing.T) {
	p := newScriptedProvider(toolTurn("", weatherCall("call_1")), answerTurn("Sunny."))
	e := newStoredEngine(t, p, hungStore{memory.New(0)}, Config{})
	e.persistTimeout = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	var res *Result
	go func() {
		var err error
		res, err = e.Run(ctx, RunRequest{Query: "weather"})
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if res.Status != StatusSuccess || res.Content != "Sunny." {
			t.Errorf("result = %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return while the history store was hanging")
	}
}

func TestPersisterDropsWhenQueueIsFull(t *testing.T) {
	p := startPersister(context.Background(), hungStore{memory.New(0)}, "conv_1", 20*time.Millisecond)

	enqueued := make(chan struct{})
	go func() {
		for i := 0; i < persisterQueueSize*4; i++ {
			p.enqueue(api.NewUserMessage("hi"))
		}
		close(enqueued)
	}()
	select {
	case <-enqueued:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}

	start := time.Now()
	p.drain()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("drain took %s", elapsed)
	}
}

func TestPersisterDrainWritesQueuedBatches(t *testing.T) {
	store := memory.New(0)
	p := startPersister(context.Background(), store, "conv_1", time.Second)
	p.enqueue(api.NewUserMessage("one"))
	p.enqueue(api.NewUserMessage("two"))
	if !p.drain() {
		t.Fatal("drain timed out")
	}

	conv, err := store.LoadConversation(context.Background(), "conv_1")
	if err != nil {
		t.Fatalf("LoadConversation: %v", err)
	}
	if conv.Len() != 2 || conv.Messages[0].Content != "one" || conv.Messages[1].Content != "two" {
		t.Errorf("stored messages = %+v", conv.Messages)
	}
}

func TestNilPersister(t *testing.T) {
	var p *persister
	p.enqueue(api.NewUserMessage("hi"))
	if !p.drain() {
		t.Error("nil persister drain = false")
	}
	p.saveRun(&storage.RunRecord{ID: "run_1"})
}
