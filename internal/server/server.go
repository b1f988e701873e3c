// Package server exposes conversations over HTTP. A posted message streams
// the turn back as Server-Sent Events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/petasbytes/toolstream/internal/bridge"
	"github.com/petasbytes/toolstream/internal/runner"
	"github.com/petasbytes/toolstream/memory"
)

// MaxRequestBodySize caps a posted message body.
const MaxRequestBodySize = 1 << 20

// TurnRunner runs one user turn; *runner.Runner satisfies it.
type TurnRunner interface {
	RunTurn(ctx context.Context, req runner.TurnRequest, sink bridge.Sink) error
}

// Server routes the conversation API.
type Server struct {
	runner TurnRunner
	store  memory.Store
	log    *slog.Logger
	mux    *http.ServeMux
}

// New wires the routes. A nil logger uses slog.Default().
func New(r TurnRunner, store memory.Store, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{runner: r, store: store, log: log, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /v1/conversations/{id}/messages", s.handlePostMessage)
	s.mux.HandleFunc("GET /v1/conversations/{id}/messages", s.handleListMessages)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

// Handler returns the routed handler wrapped with recovery and request logging.
func (s *Server) Handler() http.Handler {
	return s.recoverPanics(s.logRequests(s.mux))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("server listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type postMessageRequest struct {
	Content  string `json:"content"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	convID := r.PathValue("id")
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", MaxRequestBodySize))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	sink := bridge.NewSSEWriter(w)
	err := s.runner.RunTurn(r.Context(), runner.TurnRequest{
		ConversationID: convID,
		Content:        req.Content,
		Provider:       req.Provider,
		Model:          req.Model,
	}, sink)
	if err != nil {
		s.log.WarnContext(r.Context(), "turn ended with error", "conversation", convID, "error", err)
	}
}

type listMessagesResponse struct {
	Messages []memory.Message `json:"messages"`
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.ListBySequence(r.Context(), r.PathValue("id"))
	if err != nil {
		s.log.ErrorContext(r.Context(), "list messages", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load conversation")
		return
	}
	if msgs == nil {
		msgs = []memory.Message{}
	}
	writeJSON(w, http.StatusOK, listMessagesResponse{Messages: msgs})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"message": message, "code": status}})
}
