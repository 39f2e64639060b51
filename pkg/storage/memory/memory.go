// Package memory provides an in-memory HistoryStore for tests and
// single-process deployments. Data is lost when the process exits. An
// optional bound evicts the least recently used conversation together with
// its runs.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rhuss/toolloop/pkg/api"
	"github.com/rhuss/toolloop/pkg/storage"
)

type conversation struct {
	tenantID  string
	messages  []api.Message
	runs      []string
	updatedAt time.Time
	lruElem   *list.Element
}

type run struct {
	tenantID string
	rec      storage.RunRecord
}

// Store is an in-memory HistoryStore with optional LRU eviction.
type Store struct {
	mu            sync.Mutex
	conversations map[string]*conversation
	runs          map[string]*run
	lru           *list.List // front = most recently used
	maxSize       int        // 0 = unlimited
}

var _ storage.HistoryStore = (*Store)(nil)

// New creates a store holding at most maxSize conversations. Zero means
// unlimited.
func New(maxSize int) *Store {
	return &Store{
		conversations: make(map[string]*conversation),
		runs:          make(map[string]*run),
		lru:           list.New(),
		maxSize:       maxSize,
	}
}

// AppendMessages appends copies of msgs, creating the conversation if
// needed.
func (s *Store) AppendMessages(ctx context.Context, conversationID string, msgs ...api.Message) error {
	tenantID := storage.GetTenant(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		if s.maxSize > 0 && len(s.conversations) >= s.maxSize {
			s.evictOldest()
		}
		c = &conversation{tenantID: tenantID, lruElem: s.lru.PushFront(conversationID)}
		s.conversations[conversationID] = c
	} else if !storage.TenantVisible(tenantID, c.tenantID) {
		return storage.ErrNotFound
	} else {
		s.lru.MoveToFront(c.lruElem)
	}

	for _, m := range msgs {
		m = m.Clone()
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now()
		}
		c.messages = append(c.messages, m)
	}
	c.updatedAt = time.Now()
	return nil
}

// LoadConversation returns a deep copy of the transcript.
func (s *Store) LoadConversation(ctx context.Context, id string) (*api.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok || !storage.TenantVisible(storage.GetTenant(ctx), c.tenantID) {
		return nil, storage.ErrNotFound
	}
	s.lru.MoveToFront(c.lruElem)

	conv := &api.Conversation{ID: id, Messages: make([]api.Message, len(c.messages))}
	for i, m := range c.messages {
		conv.Messages[i] = m.Clone()
	}
	return conv, nil
}

// SaveRun stores a copy of rec.
func (s *Store) SaveRun(ctx context.Context, rec *storage.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[rec.ID]; exists {
		return storage.ErrConflict
	}
	s.runs[rec.ID] = &run{tenantID: storage.GetTenant(ctx), rec: *rec}
	if c, ok := s.conversations[rec.ConversationID]; ok {
		c.runs = append(c.runs, rec.ID)
	}
	return nil
}

// GetRun returns a copy of a recorded run.
func (s *Store) GetRun(ctx context.Context, id string) (*storage.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok || !storage.TenantVisible(storage.GetTenant(ctx), r.tenantID) {
		return nil, storage.ErrNotFound
	}
	rec := r.rec
	return &rec, nil
}

// DeleteConversation removes the conversation and its runs.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok || !storage.TenantVisible(storage.GetTenant(ctx), c.tenantID) {
		return storage.ErrNotFound
	}
	s.remove(id, c)
	return nil
}

// Len returns the number of stored conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// HealthCheck always succeeds.
func (s *Store) HealthCheck(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// evictOldest removes the least recently used conversation.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.lru.Back()
	if back == nil {
		return
	}
	id := back.Value.(string)
	s.remove(id, s.conversations[id])
}

// Must be called with s.mu held.
func (s *Store) remove(id string, c *conversation) {
	s.lru.Remove(c.lruElem)
	for _, runID := range c.runs {
		delete(s.runs, runID)
	}
	delete(s.conversations, id)
}
