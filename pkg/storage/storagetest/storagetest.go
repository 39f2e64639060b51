// Package storagetest holds the behavioral test suite every HistoryStore
// implementation must pass.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhuss/toolloop/pkg/api"
	"github.com/rhuss/toolloop/pkg/storage"
)

// Factory returns a fresh, empty store. Cleanup is the caller's concern.
type Factory func(t *testing.T) storage.HistoryStore

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("AppendAndLoad", func(t *testing.T) { testAppendAndLoad(t, newStore(t)) })
	t.Run("AppendAccumulates", func(t *testing.T) { testAppendAccumulates(t, newStore(t)) })
	t.Run("LoadMissing", func(t *testing.T) { testLoadMissing(t, newStore(t)) })
	t.Run("Runs", func(t *testing.T) { testRuns(t, newStore(t)) })
	t.Run("DeleteConversation", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("TenantIsolation", func(t *testing.T) { testTenantIsolation(t, newStore(t)) })
	t.Run("HealthCheck", func(t *testing.T) {
		assert.NoError(t, newStore(t).HealthCheck(context.Background()))
	})
}

// WeatherTranscript is a complete tool-calling exchange.
func WeatherTranscript() []api.Message {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msgs := []api.Message{
		{Role: api.RoleSystem, Content: "You are a helpful assistant."},
		{Role: api.RoleUser, Content: "What's the weather in Shanghai?"},
		{Role: api.RoleAssistant, ToolCalls: []api.ToolCall{{ID: "call_1", Name: "getWeather", Arguments: `{"city":"Shanghai"}`}}},
		{Role: api.RoleTool, ToolCallID: "call_1", Name: "getWeather", Content: "Sunny, 22C"},
		{Role: api.RoleAssistant, Content: "It's sunny, 22°C in Shanghai."},
	}
	for i := range msgs {
		msgs[i].CreatedAt = ts.Add(time.Duration(i) * time.Second)
	}
	return msgs
}

func assertSameMessages(t *testing.T, want, got []api.Message) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Role, got[i].Role, "message %d role", i)
		assert.Equal(t, want[i].Content, got[i].Content, "message %d content", i)
		assert.Equal(t, want[i].ToolCallID, got[i].ToolCallID, "message %d tool_call_id", i)
		assert.Equal(t, want[i].Name, got[i].Name, "message %d name", i)
		if len(want[i].ToolCalls) == 0 {
			assert.Empty(t, got[i].ToolCalls, "message %d tool_calls", i)
		} else {
			assert.Equal(t, want[i].ToolCalls, got[i].ToolCalls, "message %d tool_calls", i)
		}
		assert.WithinDuration(t, want[i].CreatedAt, got[i].CreatedAt, time.Millisecond, "message %d created_at", i)
	}
}

func testAppendAndLoad(t *testing.T, s storage.HistoryStore) {
	ctx := context.Background()
	id := api.NewConversationID()
	msgs := WeatherTranscript()

	require.NoError(t, s.AppendMessages(ctx, id, msgs...))

	conv, err := s.LoadConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, conv.ID)
	assertSameMessages(t, msgs, conv.Messages)
	assert.Nil(t, api.ValidateTranscript(conv.Messages))
}

func testAppendAccumulates(t *testing.T, s storage.HistoryStore) {
	ctx := context.Background()
	id := api.NewConversationID()
	msgs := WeatherTranscript()

	for _, m := range msgs {
		require.NoError(t, s.AppendMessages(ctx, id, m))
	}
	require.NoError(t, s.AppendMessages(ctx, id))

	conv, err := s.LoadConversation(ctx, id)
	require.NoError(t, err)
	assertSameMessages(t, msgs, conv.Messages)
}

func testLoadMissing(t *testing.T, s storage.HistoryStore) {
	_, err := s.LoadConversation(context.Background(), api.NewConversationID())
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.GetRun(context.Background(), api.NewRunID())
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = s.DeleteConversation(context.Background(), api.NewConversationID())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func sampleRun(conversationID string) *storage.RunRecord {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &storage.RunRecord{
		ID:             api.NewRunID(),
		ConversationID: conversationID,
		Status:         "error",
		State:          api.RunStateFailed,
		Model:          "qwen2.5",
		Content:        "partial",
		Interactions:   2,
		Usage:          api.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
		Error:          api.NewProviderError(502, "bad gateway", "backend returned status 502"),
		StartedAt:      start,
		CompletedAt:    start.Add(1500 * time.Millisecond),
	}
}

func testRuns(t *testing.T, s storage.HistoryStore) {
	ctx := context.Background()
	convID := api.NewConversationID()
	require.NoError(t, s.AppendMessages(ctx, convID, WeatherTranscript()[:2]...))

	rec := sampleRun(convID)
	require.NoError(t, s.SaveRun(ctx, rec))
	assert.ErrorIs(t, s.SaveRun(ctx, rec), storage.ErrConflict)

	got, err := s.GetRun(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, convID, got.ConversationID)
	assert.Equal(t, rec.Status, got.Status)
	assert.Equal(t, rec.State, got.State)
	assert.Equal(t, rec.Model, got.Model)
	assert.Equal(t, rec.Content, got.Content)
	assert.Equal(t, rec.Interactions, got.Interactions)
	assert.Equal(t, rec.Usage, got.Usage)
	require.NotNil(t, got.Error)
	assert.Equal(t, api.ErrorTypeProvider, got.Error.Type)
	assert.Equal(t, 502, got.Error.Status)
	assert.Equal(t, rec.Error.Message, got.Error.Message)
	assert.WithinDuration(t, rec.StartedAt, got.StartedAt, time.Millisecond)
	assert.WithinDuration(t, rec.CompletedAt, got.CompletedAt, time.Millisecond)

	ok := sampleRun(convID)
	ok.Status, ok.State, ok.Error = "success", api.RunStateDone, nil
	require.NoError(t, s.SaveRun(ctx, ok))
	got, err = s.GetRun(ctx, ok.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Error)
}

func testDelete(t *testing.T, s storage.HistoryStore) {
	ctx := context.Background()
	id := api.NewConversationID()
	require.NoError(t, s.AppendMessages(ctx, id, WeatherTranscript()...))
	rec := sampleRun(id)
	require.NoError(t, s.SaveRun(ctx, rec))

	require.NoError(t, s.DeleteConversation(ctx, id))

	_, err := s.LoadConversation(ctx, id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetRun(ctx, rec.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.DeleteConversation(ctx, id), storage.ErrNotFound)
}

func testTenantIsolation(t *testing.T, s storage.HistoryStore) {
	acme := storage.SetTenant(context.Background(), "acme")
	globex := storage.SetTenant(context.Background(), "globex")
	id := api.NewConversationID()

	require.NoError(t, s.AppendMessages(acme, id, WeatherTranscript()[:2]...))
	rec := sampleRun(id)
	require.NoError(t, s.SaveRun(acme, rec))

	_, err := s.LoadConversation(globex, id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetRun(globex, rec.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.AppendMessages(globex, id, api.NewUserMessage("hijack")), storage.ErrNotFound)
	assert.ErrorIs(t, s.DeleteConversation(globex, id), storage.ErrNotFound)

	conv, err := s.LoadConversation(acme, id)
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 2)

	// An unscoped context sees every tenant.
	_, err = s.LoadConversation(context.Background(), id)
	assert.NoError(t, err)
}
