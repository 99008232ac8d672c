package auth

import (
	"context"
	"sync"
	"time"

	"gatecheck/internal/token"
)

// MemorySessions backs the memory storage mode and tests.
type MemorySessions struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]time.Time
}

func NewMemorySessions(ttl time.Duration) *MemorySessions {
	return &MemorySessions{ttl: ttl, sessions: make(map[string]time.Time)}
}

func (s *MemorySessions) Create(_ context.Context) (*Session, error) {
	tok, err := token.Generate()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.sessions[tok] = time.Now().Add(s.ttl)
	s.mu.Unlock()
	return &Session{Token: tok, CreatedAt: time.Now()}, nil
}

func (s *MemorySessions) Validate(_ context.Context, tok string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.sessions[tok]
	if !ok || time.Now().After(expiry) {
		delete(s.sessions, tok)
		return ErrNoSession
	}
	s.sessions[tok] = time.Now().Add(s.ttl)
	return nil
}

func (s *MemorySessions) Destroy(_ context.Context, tok string) error {
	s.mu.Lock()
	delete(s.sessions, tok)
	s.mu.Unlock()
	return nil
}
