package data

import (
	"context"
	"sort"
	"sync"

	"github.com/parley-ai/parley/internal/chat/types"
)

// MemoryStore keeps conversations in a process-local map. It is the
// default store and the one tests use.
type MemoryStore struct {
	mu    sync.RWMutex
	convs map[string]*types.Conversation
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[string]*types.Conversation)}
}

func (s *MemoryStore) Load(ctx context.Context, id string) (*types.Conversation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.convs[id]
	if !ok {
		return nil, false, nil
	}
	return copyConversation(conv), true, nil
}

func (s *MemoryStore) Save(ctx context.Context, conv *types.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[conv.ID] = copyConversation(conv)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, id)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.convs))
	for id := range s.convs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func copyConversation(conv *types.Conversation) *types.Conversation {
	out := *conv
	out.Messages = make([]types.Message, len(conv.Messages))
	copy(out.Messages, conv.Messages)
	return &out
}
