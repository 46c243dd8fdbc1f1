// Package session keeps per-conversation turn history behind a store
// abstraction, with per-session mutual exclusion for the serving layer.
package session

import (
	"context"
	"sync"
	"time"
)

// SourceRef cites one retrieved chunk used to ground an answer.
type SourceRef struct {
	Source string  `json:"source"`
	Page   int     `json:"page"`
	Score  float64 `json:"score"`
}

// Turn is one message in a conversation.
type Turn struct {
	Role      string      `json:"role"` // "user" or "assistant"
	Text      string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	Sources   []SourceRef `json:"sources,omitempty"`
}

// Store is the conversation history backend. Implementations must keep
// appends for one session ordered; callers serialize whole exchanges with
// Locks, so a store only sees one AppendExchange per session at a time.
type Store interface {
	// History returns the session's turns in order. An unknown session id
	// yields an empty history, not an error.
	History(ctx context.Context, sessionID string) ([]Turn, error)

	// AppendExchange appends the user and assistant turns of one completed
	// exchange, creating the session if needed, and trims the history to the
	// store's bounded window.
	AppendExchange(ctx context.Context, sessionID string, user, assistant Turn) error

	// Clear removes the session and its turns. Clearing an unknown id is a
	// no-op success.
	Clear(ctx context.Context, sessionID string) error

	// List returns the ids of all sessions currently held.
	List(ctx context.Context) ([]string, error)
}

// Locks hands out one mutex per session id so that concurrent exchanges on
// the same session queue rather than interleave. Different ids never contend.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocks creates an empty lock table.
func NewLocks() *Locks {
	return &Locks{locks: make(map[string]*sync.Mutex)}
}

// Acquire blocks until the session's lock is held and returns the release
// function.
func (l *Locks) Acquire(sessionID string) func() {
	l.mu.Lock()
	m, ok := l.locks[sessionID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[sessionID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
