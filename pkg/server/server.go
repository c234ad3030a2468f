// Package server exposes the assistant over HTTP: chat, session history,
// tool listing, health, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/stratushealth/concierge/pkg/config"
	"github.com/stratushealth/concierge/pkg/conversation"
	"github.com/stratushealth/concierge/pkg/tools"
)

// Server is the HTTP front end over a conversation manager.
type Server struct {
	cfg        *config.Config
	manager    *conversation.Manager
	registry   *tools.ToolRegistry
	httpServer *http.Server

	// MCPURL is reported by the health endpoint when the workspace MCP
	// gateway is in use.
	MCPURL string
}

func New(cfg *config.Config, manager *conversation.Manager, registry *tools.ToolRegistry) *Server {
	return &Server{
		cfg:      cfg,
		manager:  manager,
		registry: registry,
	}
}

// ChatRequest is the POST /v1/chat payload.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse is what a chat turn returns to the client.
type ChatResponse struct {
	SessionID      string     `json:"session_id"`
	Answer         string     `json:"answer"`
	ToolUsed       string     `json:"tool_used"`
	ToolsInvoked   []string   `json:"tools_invoked,omitempty"`
	GeneratedQuery string     `json:"generated_query,omitempty"`
	Table          *TablePart `json:"table,omitempty"`
	MoreRows       int        `json:"more_rows,omitempty"`
	Headline       string     `json:"headline,omitempty"`
	Error          string     `json:"error,omitempty"`
	Iterations     int        `json:"iterations"`
	Truncated      bool       `json:"truncated,omitempty"`
	DurationMillis int64      `json:"duration_ms"`
}

// TablePart is tabular data in a chat response.
type TablePart struct {
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

// Handler builds the route tree. Exposed separately so tests can drive it
// without a listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(loggingMiddleware)
	r.Use(corsMiddleware)

	r.Post("/v1/chat", s.handleChat)
	r.Get("/v1/tools", s.handleTools)
	r.Get("/v1/sessions/{session}/history", s.handleHistory)
	r.Delete("/v1/sessions/{session}", s.handleDeleteSession)
	r.Get("/healthz", s.handleHealth)

	if s.cfg.Server.MetricsEnabled {
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
	}

	return r
}

// Run serves until ctx is cancelled, then drains with a shutdown grace
// period.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("HTTP server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		slog.Info("HTTP server shutting down")
		return s.httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	turn, err := s.manager.Ask(r.Context(), req.SessionID, req.Message)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := ChatResponse{
		SessionID:      turn.SessionID,
		Answer:         turn.Answer,
		ToolUsed:       string(turn.Result.ToolUsed),
		ToolsInvoked:   turn.ToolsInvoked,
		GeneratedQuery: turn.Result.GeneratedQuery,
		MoreRows:       turn.Result.MoreRows,
		Headline:       turn.Result.Headline,
		Error:          turn.Result.Error,
		Iterations:     turn.Iterations,
		Truncated:      turn.Truncated,
		DurationMillis: turn.Duration.Milliseconds(),
	}
	if table := turn.Result.Table; table != nil {
		resp.Table = &TablePart{Columns: table.Columns, Rows: table.Rows}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tools": s.registry.ListTools(),
		"count": s.registry.Count(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session")

	messages, err := s.manager.History(sessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"messages":   messages,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session")

	if err := s.manager.Reset(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	infos := s.registry.ListTools()
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}

	payload := map[string]interface{}{
		"status":      "healthy",
		"tools_count": len(names),
		"tools":       names,
	}
	if s.MCPURL != "" {
		payload["mcp_url"] = s.MCPURL
	}

	writeJSON(w, http.StatusOK, payload)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
