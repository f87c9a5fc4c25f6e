// In-memory conversation storage.
//
// Information Hiding:
// - Map storage structure hidden from users
// - Thread-safe access via RWMutex hidden behind interface
// - Suitable for testing and ephemeral sessions

package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements ConversationStorage using in-memory maps.
// Data is lost when the process terminates.
type MemoryStore struct {
	mu        sync.RWMutex
	turns     map[string][]Turn
	metadata  map[string][]byte
	updatedAt map[string]time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		turns:     make(map[string][]Turn),
		metadata:  make(map[string][]byte),
		updatedAt: make(map[string]time.Time),
	}
}

// AppendTurn appends one turn to the conversation's transcript.
func (s *MemoryStore) AppendTurn(ctx context.Context, conversationID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	s.turns[conversationID] = append(s.turns[conversationID], turn)
	s.updatedAt[conversationID] = time.Now()
	return nil
}

// History returns the conversation's turns in append order, restricted by
// the window. Returns an empty slice if the conversation doesn't exist.
func (s *MemoryStore) History(ctx context.Context, conversationID string, w Window) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.turns[conversationID]

	if w.TimeLimit > 0 {
		cutoff := time.Now().Add(-w.TimeLimit)
		filtered := make([]Turn, 0, len(turns))
		for _, t := range turns {
			if !t.CreatedAt.Before(cutoff) {
				filtered = append(filtered, t)
			}
		}
		turns = filtered
	}

	if w.MessageLimit > 0 && len(turns) > w.MessageLimit {
		turns = turns[len(turns)-w.MessageLimit:]
	}

	// Return a copy to avoid external mutations
	copied := make([]Turn, len(turns))
	copy(copied, turns)
	return copied, nil
}

// GetMetadata returns the conversation's metadata document, or nil if none
// was ever set.
func (s *MemoryStore) GetMetadata(ctx context.Context, conversationID string) (Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, ok := s.metadata[conversationID]
	if !ok {
		return nil, nil
	}

	var doc Metadata
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, storageErr("decode metadata", err)
	}
	return doc, nil
}

// SetMetadata replaces the conversation's metadata slot with doc.
// The document is stored serialized, so later mutations of the caller's
// map don't leak into the store.
func (s *MemoryStore) SetMetadata(ctx context.Context, conversationID string, doc Metadata) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return storageErr("encode metadata", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.metadata[conversationID] = raw
	if _, ok := s.updatedAt[conversationID]; !ok {
		s.updatedAt[conversationID] = time.Now()
	}
	return nil
}

// Delete removes the conversation's transcript and metadata.
func (s *MemoryStore) Delete(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.turns, conversationID)
	delete(s.metadata, conversationID)
	delete(s.updatedAt, conversationID)
	return nil
}

// List returns all known conversation IDs, most recently updated first.
func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.updatedAt))
	for id := range s.updatedAt {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.updatedAt[ids[i]].After(s.updatedAt[ids[j]])
	})
	return ids, nil
}

// Exists checks whether a conversation has been created.
func (s *MemoryStore) Exists(ctx context.Context, conversationID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.updatedAt[conversationID]
	return ok, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// Verify MemoryStore implements ConversationStorage
var _ ConversationStorage = (*MemoryStore)(nil)
