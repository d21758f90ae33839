// Package server exposes the resolution engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"capgen/internal/engine"
	"capgen/internal/session"
)

// Server wraps the engine with the agent HTTP surface.
type Server struct {
	engine *engine.Engine
	logger *zap.Logger
	http   *http.Server
}

// New creates a server listening on addr.
func New(addr string, eng *engine.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{engine: eng, logger: logger}
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the route mux, for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info("agent server listening", zap.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/agent/start_session", s.handleStartSession)
	mux.HandleFunc("/agent/request", s.handleRequest)
	mux.HandleFunc("/healthz", s.handleHealth)
}

func (s *Server) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleStartSession(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is supported")
		return
	}
	id := s.engine.StartSession()
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id})
}

type agentRequest struct {
	SessionID string `json:"session_id"`
	AppID     string `json:"app_id"`
	Message   string `json:"message"`
}

func (s *Server) handleRequest(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is supported")
		return
	}
	var payload agentRequest
	if err := decodeJSON(req, &payload); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	sessionID := strings.TrimSpace(payload.SessionID)
	if sessionID == "" {
		writeAPIError(w, http.StatusBadRequest, "missing_session_id", "session_id is required")
		return
	}

	resp, err := s.engine.HandleMessage(req.Context(), sessionID, strings.TrimSpace(payload.AppID), payload.Message)
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeAPIError(w, http.StatusNotFound, "unknown_session", "session does not exist or has expired")
		return
	case errors.Is(err, session.ErrClosed):
		writeAPIError(w, http.StatusGone, "session_closed", "session is finished, start a new one")
		return
	case err != nil:
		s.logger.Error("request handling failed",
			zap.String("session_id", sessionID), zap.Error(err))
		writeAPIError(w, http.StatusInternalServerError, "internal_error", "request handling failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeJSON(req *http.Request, out any) error {
	if req.Body == nil {
		return fmt.Errorf("request body is required")
	}
	defer req.Body.Close()
	decoder := json.NewDecoder(req.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeAPIError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": apiError{Code: code, Message: message},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
