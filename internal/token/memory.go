package token

import (
	"context"
	"strings"
	"sync"
	"time"
)

// InMemory implements Store with in-process concurrency safety. Suitable
// for tests and single-node development; production deployments use the
// Postgres store so tokens survive restarts and load balancing.
type InMemory struct {
	mu     sync.Mutex
	tokens map[string]*Token
	now    func() time.Time
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		tokens: make(map[string]*Token),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source. Only intended for test use.
func (s *InMemory) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *InMemory) Issue(ctx context.Context, recipient string, kind Kind, target Target, ttl time.Duration) (Token, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" || ttl <= 0 || !validKind(kind) || !validTarget(kind, target) {
		return Token{}, ErrInvalidInput
	}
	id, err := NewID()
	if err != nil {
		return Token{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	tok := &Token{
		ID:         id,
		Recipient:  recipient,
		Kind:       kind,
		TargetType: target.Type,
		TargetID:   target.ID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	s.tokens[id] = tok
	return *tok, nil
}

func (s *InMemory) Consume(ctx context.Context, id string) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[id]
	if !ok {
		return Token{}, ErrNotFound
	}
	// Used wins over expired so a double-tapped link reports a stable
	// outcome regardless of how late the second tap lands.
	if tok.Used {
		return Token{}, ErrAlreadyUsed
	}
	if !s.now().Before(tok.ExpiresAt) {
		return Token{}, ErrExpired
	}
	tok.Used = true
	return *tok, nil
}

func (s *InMemory) Peek(ctx context.Context, id string) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[id]
	if !ok {
		return Token{}, ErrNotFound
	}
	if tok.Used {
		return Token{}, ErrAlreadyUsed
	}
	if !s.now().Before(tok.ExpiresAt) {
		return Token{}, ErrExpired
	}
	return *tok, nil
}

func (s *InMemory) PurgeExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, tok := range s.tokens {
		if !now.Before(tok.ExpiresAt) {
			delete(s.tokens, id)
			removed++
		}
	}
	return removed, nil
}
