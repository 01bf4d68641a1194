package sessionstore

import (
	"context"
	"sync"
	"time"

	"globalchat/internal/backend"
)

// Memory keeps the token for the lifetime of the process.
type Memory struct {
	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time
}

var _ backend.SessionStore = (*Memory)(nil)

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

func (s *Memory) Load(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == "" || (!s.expires.IsZero() && s.now().After(s.expires)) {
		return "", backend.ErrNoSession
	}
	return s.token, nil
}

func (s *Memory) Save(ctx context.Context, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
	s.expires = time.Time{}
	if ttl > 0 {
		s.expires = s.now().Add(ttl)
	}
	return nil
}

func (s *Memory) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	s.expires = time.Time{}
	return nil
}
