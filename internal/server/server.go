// ABOUTME: HTTP API driving the conversation lifecycle per incoming request
// ABOUTME: Provides POST /api/interactions plus conversation browsing and health endpoints

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/edouardpoitras/eva-conversations/internal/lifecycle"
	"github.com/edouardpoitras/eva-conversations/internal/store"
)

// InteractionRequest is the JSON request body for POST /api/interactions.
type InteractionRequest struct {
	InputText  string `json:"input_text"`
	InputAudio []byte `json:"input_audio,omitempty"` // base64 in JSON
}

// InteractionResponse is the JSON response for POST /api/interactions.
type InteractionResponse struct {
	ConversationID     string `json:"conversation_id"`
	InteractionID      string `json:"interaction_id"`
	OutputText         string `json:"output_text,omitempty"`
	RespondingPluginID string `json:"responding_plugin_id,omitempty"`
	FollowUpPluginID   string `json:"follow_up_plugin_id,omitempty"`
	ConversationClosed bool   `json:"conversation_closed"`

	// Persisted is false when the response was produced but its record
	// could not be written; the reply is still delivered.
	Persisted bool `json:"persisted"`
}

// ConversationSummaryResponse is one entry of GET /api/conversations.
type ConversationSummaryResponse struct {
	ID           string `json:"id"`
	OpenedAt     string `json:"opened_at"`
	ClosedAt     string `json:"closed_at,omitempty"`
	Interactions int    `json:"interactions"`
}

// ConversationBrowser defines what the server needs from storage.
type ConversationBrowser interface {
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	ListConversations(ctx context.Context, limit int) ([]*store.ConversationSummary, error)
}

// Server exposes the conversation lifecycle over HTTP. It is the
// request-handling collaborator: each POST /api/interactions runs the full
// pipeline of Begin, responder dispatch, close-interaction, and
// close-conversation when the handling responder signals it is done.
type Server struct {
	mgr        *lifecycle.Manager
	store      ConversationBrowser
	logger     *slog.Logger
	responders []Responder
	byID       map[string]Responder
}

// New creates a Server. Pass nil logger for default.
func New(mgr *lifecycle.Manager, st ConversationBrowser, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		mgr:    mgr,
		store:  st,
		logger: logger.With("component", "server"),
		byID:   make(map[string]Responder),
	}
}

// RegisterResponder adds a responder to the dispatch order. Registration
// order is consultation order for non-follow-up requests.
func (s *Server) RegisterResponder(r Responder) {
	s.responders = append(s.responders, r)
	s.byID[r.ID()] = r
}

// Handler returns the HTTP handler for the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/interactions", s.handleInteraction)
	mux.HandleFunc("GET /api/conversations", s.handleListConversations)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// Run serves the API on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		return nil
	}
}

// handleInteraction runs one request through the conversation pipeline.
func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	var req InteractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.InputText == "" && len(req.InputAudio) == 0 {
		writeError(w, http.StatusBadRequest, "input_text or input_audio is required")
		return
	}

	ctx := r.Context()

	turn, err := s.mgr.Begin(ctx, req.InputText, req.InputAudio)
	if err != nil {
		s.logger.Error("starting interaction failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "could not start interaction")
		return
	}

	resp := InteractionResponse{
		ConversationID:   turn.Conversation.ID,
		InteractionID:    turn.Interaction.ID,
		FollowUpPluginID: turn.FollowUpPluginID,
		Persisted:        true,
	}

	responder, reply := s.dispatch(ctx, turn)
	if responder != nil {
		if err := s.mgr.RecordOutputAlteration(ctx, reply.Text, responder.ID(), true); err != nil {
			s.logger.Error("recording output failed", "error", err, "plugin_id", responder.ID())
		}
		resp.OutputText = reply.Text
		resp.RespondingPluginID = responder.ID()
	}

	// A storage failure on close must not prevent the response from being
	// delivered; only the persisted record of it degrades.
	if err := s.mgr.CloseInteraction(ctx); err != nil {
		s.logger.Error("closing interaction failed", "error", err)
		resp.Persisted = false
	}

	if responder != nil && reply.Done {
		if err := s.mgr.CloseConversation(ctx); err != nil {
			s.logger.Error("closing conversation failed", "error", err)
			resp.Persisted = false
		} else {
			resp.ConversationClosed = true
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleListConversations returns recent conversation summaries.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	summaries, err := s.store.ListConversations(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing conversations failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not list conversations")
		return
	}

	out := make([]ConversationSummaryResponse, 0, len(summaries))
	for _, sum := range summaries {
		item := ConversationSummaryResponse{
			ID:           sum.ID,
			OpenedAt:     sum.OpenedAt.Format(time.RFC3339Nano),
			Interactions: sum.Interactions,
		}
		if sum.ClosedAt != nil {
			item.ClosedAt = sum.ClosedAt.Format(time.RFC3339Nano)
		}
		out = append(out, item)
	}

	writeJSON(w, http.StatusOK, map[string]any{"conversations": out})
}

// handleGetConversation returns one full conversation document.
func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	conv, err := s.store.GetConversation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		s.logger.Error("loading conversation failed", "error", err, "conversation_id", id)
		writeError(w, http.StatusInternalServerError, "could not load conversation")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
