package repository

import (
	"context"
	"sync"

	"github.com/qcom/banksession/internal/models"
)

// MemoryStore keeps credentials for the lifetime of one process. It is the
// tab-scoped backend: nothing is shared and nothing survives a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[models.TokenKind]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[models.TokenKind]string)}
}

func (s *MemoryStore) Get(_ context.Context, kind models.TokenKind) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[kind], nil
}

func (s *MemoryStore) Set(_ context.Context, kind models.TokenKind, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[kind] = token
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.tokens)
	return nil
}
