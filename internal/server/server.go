package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/regchat/cli/internal/answer"
	"github.com/regchat/cli/internal/logger"
	"github.com/regchat/cli/internal/session"
)

// Exchanger answers one chat message. Satisfied by answer.Engine.
type Exchanger interface {
	Exchange(ctx context.Context, sessionID, message string, history []session.Turn) (*answer.Result, error)
}

// SessionAdmin exposes the session management surface of session.Store.
type SessionAdmin interface {
	Clear(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]string, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger func(ctx context.Context) error

// Server is the HTTP front end for the chat service.
type Server struct {
	engine   Exchanger
	sessions SessionAdmin
	checks   map[string]Pinger
	mux      *http.ServeMux
}

func New(engine Exchanger, sessions SessionAdmin, checks map[string]Pinger) *Server {
	s := &Server{
		engine:   engine,
		sessions: sessions,
		checks:   checks,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /", s.handleRoot)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("DELETE /chat/{id}", s.handleClearSession)
	s.mux.HandleFunc("GET /sessions", s.handleListSessions)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	logger.Debug("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
}

// ListenAndServe blocks until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type chatRequest struct {
	Message     string        `json:"message"`
	SessionID   string        `json:"session_id,omitempty"`
	ChatHistory []historyTurn `json:"chat_history,omitempty"`
}

type historyTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Response  string       `json:"response"`
	SessionID string       `json:"session_id"`
	Sources   []chatSource `json:"sources"`
}

type chatSource struct {
	Source string  `json:"source"`
	Page   int     `json:"page"`
	Score  float64 `json:"score"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	var history []session.Turn
	if req.ChatHistory != nil {
		history = make([]session.Turn, 0, len(req.ChatHistory))
		for _, t := range req.ChatHistory {
			history = append(history, session.Turn{Role: t.Role, Text: t.Content})
		}
	}

	result, err := s.engine.Exchange(r.Context(), req.SessionID, req.Message, history)
	if err != nil {
		logger.Warn("chat exchange failed: %v", err)
		writeError(w, http.StatusBadGateway, "failed to generate a response")
		return
	}

	resp := chatResponse{
		Response:  result.Response,
		SessionID: result.SessionID,
		Sources:   make([]chatSource, 0, len(result.Sources)),
	}
	for _, src := range result.Sources {
		resp.Sources = append(resp.Sources, chatSource{Source: src.Source, Page: src.Page, Score: src.Score})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.sessions.Clear(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clear session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("session %s cleared", id),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.sessions.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": ids,
		"count":    len(ids),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(s.checks))
	for name, ping := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		err := ping(ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks[name] = "ok"
		}
	}

	body := map[string]any{"status": "healthy", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	writeJSON(w, status, body)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "regchat",
		"message": "regulations chat API",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
