package session

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps session history in process memory. Suitable for a single
// instance; history is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Turn
	maxTurns int
}

// NewMemoryStore creates an in-memory store trimming each session to
// maxTurns messages. Non-positive maxTurns keeps history unbounded.
func NewMemoryStore(maxTurns int) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]Turn),
		maxTurns: maxTurns,
	}
}

// History returns a copy of the session's turns in order.
func (s *MemoryStore) History(ctx context.Context, sessionID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.sessions[sessionID]
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// AppendExchange appends a user/assistant turn pair and trims to the window.
func (s *MemoryStore) AppendExchange(ctx context.Context, sessionID string, user, assistant Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := append(s.sessions[sessionID], user, assistant)
	if s.maxTurns > 0 && len(turns) > s.maxTurns {
		turns = turns[len(turns)-s.maxTurns:]
	}
	s.sessions[sessionID] = turns
	return nil
}

// Clear removes the session. Unknown ids are a no-op.
func (s *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// List returns all session ids, sorted for stable output.
func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
