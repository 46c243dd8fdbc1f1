package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func turn(role, text string) Turn {
	return Turn{Role: role, Text: text, Timestamp: time.Now()}
}

func TestMemoryStore_AppendAndHistory(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	require.NoError(t, s.AppendExchange(ctx, "s1", turn("user", "q1"), turn("assistant", "a1")))
	require.NoError(t, s.AppendExchange(ctx, "s1", turn("user", "q2"), turn("assistant", "a2")))

	turns, err := s.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 4)
	assert.Equal(t, "q1", turns[0].Text)
	assert.Equal(t, "a2", turns[3].Text)
}

func TestMemoryStore_TrimsToWindow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(4)

	for i := 0; i < 5; i++ {
		q := fmt.Sprintf("q%d", i)
		a := fmt.Sprintf("a%d", i)
		require.NoError(t, s.AppendExchange(ctx, "s1", turn("user", q), turn("assistant", a)))
	}

	turns, err := s.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 4)
	assert.Equal(t, "q3", turns[0].Text)
	assert.Equal(t, "a4", turns[3].Text)
}

func TestMemoryStore_ClearIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	// Clearing a session that never existed succeeds with no state change.
	require.NoError(t, s.Clear(ctx, "ghost"))

	require.NoError(t, s.AppendExchange(ctx, "s1", turn("user", "q"), turn("assistant", "a")))
	require.NoError(t, s.Clear(ctx, "s1"))
	require.NoError(t, s.Clear(ctx, "s1"))

	turns, err := s.History(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMemoryStore_SessionIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b"} {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				q := fmt.Sprintf("%s-q%d", id, i)
				a := fmt.Sprintf("%s-a%d", id, i)
				_ = s.AppendExchange(ctx, id, turn("user", q), turn("assistant", a))
			}
		}()
	}
	wg.Wait()

	for _, id := range []string{"a", "b"} {
		turns, err := s.History(ctx, id)
		require.NoError(t, err)
		require.Len(t, turns, 100)
		for i, tn := range turns {
			// Every turn belongs to its own session and user/assistant
			// pairs stay adjacent.
			assert.Contains(t, tn.Text, id+"-")
			if i%2 == 0 {
				assert.Equal(t, "user", tn.Role)
			} else {
				assert.Equal(t, "assistant", tn.Role)
			}
		}
	}
}

func TestLocks_SerializeSameSession(t *testing.T) {
	locks := NewLocks()
	var inCritical, maxInCritical int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.Acquire("same")
			defer release()

			mu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inCritical--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInCritical, "same-session exchanges must not overlap")
}

func TestLocks_IndependentSessions(t *testing.T) {
	locks := NewLocks()

	releaseA := locks.Acquire("a")
	defer releaseA()

	done := make(chan struct{})
	go func() {
		releaseB := locks.Acquire("b")
		releaseB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("distinct sessions must not block each other")
	}
}
