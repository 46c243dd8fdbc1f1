package answer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/regchat/cli/internal/llm"
	"github.com/regchat/cli/internal/logger"
	"github.com/regchat/cli/internal/retrieve"
	"github.com/regchat/cli/internal/session"
	"github.com/regchat/cli/internal/websearch"
)

// Retriever returns ranked chunk matches for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]retrieve.Match, error)
}

// Completer produces a chat completion from a message list.
type Completer interface {
	Chat(ctx context.Context, messages []llm.Message) (string, error)
}

// WebSearcher is the optional fallback used when retrieval scores are weak.
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]websearch.Result, error)
}

// Options tunes engine behavior. Zero values fall back to sane defaults.
type Options struct {
	// MinScore filters matches out of the prompt context.
	MinScore float64
	// MaxHistoryTurns bounds how many prior turns reach the model.
	MaxHistoryTurns int
	// WebThreshold triggers the web fallback when no match scores at
	// or above it. Ignored when no searcher is configured.
	WebThreshold float64
	// CompletionRetries bounds extra completion attempts on transient
	// failures. Each attempt may be billable, so this stays small.
	CompletionRetries int
}

// Result is one completed exchange.
type Result struct {
	SessionID string
	Response  string
	Sources   []session.SourceRef
}

// Engine runs the full query path: retrieve, prompt, complete, record.
type Engine struct {
	retriever Retriever
	completer Completer
	store     session.Store
	locks     *session.Locks
	web       WebSearcher
	opts      Options
}

func NewEngine(retriever Retriever, completer Completer, store session.Store, web WebSearcher, opts Options) *Engine {
	if opts.MaxHistoryTurns <= 0 {
		opts.MaxHistoryTurns = 10
	}
	if opts.CompletionRetries < 0 {
		opts.CompletionRetries = 0
	}
	return &Engine{
		retriever: retriever,
		completer: completer,
		store:     store,
		locks:     session.NewLocks(),
		web:       web,
		opts:      opts,
	}
}

// Exchange answers one question within a session. A blank sessionID starts
// a new session. When history is non-nil it replaces the stored history for
// prompt construction only; the store still records the exchange.
//
// The exchange is all or nothing: the session is appended to only after a
// completion succeeds, so a failed exchange leaves the history untouched.
func (e *Engine) Exchange(ctx context.Context, sessionID, message string, history []session.Turn) (*Result, error) {
	if message == "" {
		return nil, errors.New("message is empty")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	release := e.locks.Acquire(sessionID)
	defer release()

	if history == nil {
		stored, err := e.store.History(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load session history: %w", err)
		}
		history = stored
	}

	matches, err := e.retriever.Retrieve(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}

	contextText, sources := BuildContext(matches, e.opts.MinScore)

	webContext := ""
	if e.web != nil && !e.hasStrongMatch(matches) {
		logger.Debug("no match at or above %.2f, trying web fallback", e.opts.WebThreshold)
		results, werr := e.web.Search(ctx, message)
		if werr != nil {
			logger.Warn("web search fallback failed: %v", werr)
		} else {
			webContext = websearch.FormatContext(results)
		}
	}

	messages := BuildMessages(history, e.opts.MaxHistoryTurns, message, contextText, webContext)

	response, err := e.complete(ctx, messages)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	userTurn := session.Turn{Role: "user", Text: message, Timestamp: now}
	assistantTurn := session.Turn{Role: "assistant", Text: response, Timestamp: now, Sources: sources}
	if err := e.store.AppendExchange(ctx, sessionID, userTurn, assistantTurn); err != nil {
		return nil, fmt.Errorf("failed to record exchange: %w", err)
	}

	return &Result{SessionID: sessionID, Response: response, Sources: sources}, nil
}

func (e *Engine) hasStrongMatch(matches []retrieve.Match) bool {
	for _, m := range matches {
		if m.Score >= e.opts.WebThreshold {
			return true
		}
	}
	return false
}

// complete retries only transient completion failures. Permanent failures
// and context cancellation surface immediately.
func (e *Engine) complete(ctx context.Context, messages []llm.Message) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= e.opts.CompletionRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(500*attempt) * time.Millisecond
			logger.Debug("completion attempt %d failed, retrying in %s", attempt, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		response, err := e.completer.Chat(ctx, messages)
		if err == nil {
			return response, nil
		}
		lastErr = err

		var transient *llm.TransientError
		if !errors.As(err, &transient) {
			break
		}
	}
	return "", fmt.Errorf("failed to generate answer: %w", lastErr)
}
