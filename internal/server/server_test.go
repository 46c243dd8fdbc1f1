package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regchat/cli/internal/answer"
	"github.com/regchat/cli/internal/session"
)

type fakeEngine struct {
	result     *answer.Result
	err        error
	gotSession string
	gotMessage string
	gotHistory []session.Turn
}

func (f *fakeEngine) Exchange(_ context.Context, sessionID, message string, history []session.Turn) (*answer.Result, error) {
	f.gotSession = sessionID
	f.gotMessage = message
	f.gotHistory = history
	return f.result, f.err
}

type fakeAdmin struct {
	sessions []string
	cleared  []string
	err      error
}

func (f *fakeAdmin) Clear(_ context.Context, sessionID string) error {
	f.cleared = append(f.cleared, sessionID)
	return f.err
}

func (f *fakeAdmin) List(_ context.Context) ([]string, error) {
	return f.sessions, f.err
}

func postChat(t *testing.T, srv *Server, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestChatReturnsResponseAndSources(t *testing.T) {
	engine := &fakeEngine{result: &answer.Result{
		SessionID: "sess-1",
		Response:  "At least 3 meters.",
		Sources:   []session.SourceRef{{Source: "regs.pdf", Page: 4, Score: 0.91}},
	}}
	srv := New(engine, &fakeAdmin{}, nil)

	rec := postChat(t, srv, map[string]any{"message": "setback rules?"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Response  string `json:"response"`
		SessionID string `json:"session_id"`
		Sources   []struct {
			Source string  `json:"source"`
			Page   int     `json:"page"`
			Score  float64 `json:"score"`
		} `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "At least 3 meters.", resp.Response)
	assert.Equal(t, "sess-1", resp.SessionID)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, 4, resp.Sources[0].Page)
	assert.Equal(t, "setback rules?", engine.gotMessage)
}

func TestChatPassesClientHistory(t *testing.T) {
	engine := &fakeEngine{result: &answer.Result{SessionID: "s", Response: "ok"}}
	srv := New(engine, &fakeAdmin{}, nil)

	rec := postChat(t, srv, map[string]any{
		"message":    "follow-up",
		"session_id": "sess-7",
		"chat_history": []map[string]string{
			{"role": "user", "content": "earlier"},
			{"role": "assistant", "content": "reply"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sess-7", engine.gotSession)
	require.Len(t, engine.gotHistory, 2)
	assert.Equal(t, "reply", engine.gotHistory[1].Text)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	srv := New(&fakeEngine{}, &fakeAdmin{}, nil)
	rec := postChat(t, srv, map[string]any{"session_id": "s"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatEngineFailure(t *testing.T) {
	srv := New(&fakeEngine{err: errors.New("completion failed")}, &fakeAdmin{}, nil)
	rec := postChat(t, srv, map[string]any{"message": "q"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestClearSessionIsIdempotent(t *testing.T) {
	admin := &fakeAdmin{}
	srv := New(&fakeEngine{}, admin, nil)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodDelete, "/chat/sess-9", nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, []string{"sess-9", "sess-9"}, admin.cleared)
}

func TestListSessions(t *testing.T) {
	srv := New(&fakeEngine{}, &fakeAdmin{sessions: []string{"a", "b"}}, nil)
	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Sessions []string `json:"sessions"`
		Count    int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"a", "b"}, resp.Sessions)
	assert.Equal(t, 2, resp.Count)
}

func TestHealthReflectsChecks(t *testing.T) {
	healthy := New(&fakeEngine{}, &fakeAdmin{}, map[string]Pinger{
		"database": func(context.Context) error { return nil },
	})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	healthy.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	degraded := New(&fakeEngine{}, &fakeAdmin{}, map[string]Pinger{
		"database": func(context.Context) error { return errors.New("connection refused") },
	})
	rec = httptest.NewRecorder()
	degraded.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}
