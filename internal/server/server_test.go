// ABOUTME: Tests for the HTTP conversation pipeline
// ABOUTME: Verifies dispatch, follow-up first refusal, conversation close, and browsing endpoints

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edouardpoitras/eva-conversations/internal/lifecycle"
	"github.com/edouardpoitras/eva-conversations/internal/store"
)

func newTestServer(t *testing.T, expiry time.Duration) (*Server, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mgr, err := lifecycle.NewManager(st, lifecycle.NewHooks(nil), expiry, nil)
	require.NoError(t, err)

	return New(mgr, st, nil), st
}

// weatherResponder claims anything mentioning weather, and any follow-up.
type weatherResponder struct {
	followUps int
}

func (r *weatherResponder) ID() string { return "weather" }

func (r *weatherResponder) Respond(ctx context.Context, req *Request) (*Reply, error) {
	if req.FollowUp {
		r.followUps++
		return &Reply{Text: "Tomorrow: rain"}, nil
	}
	if strings.Contains(req.InputText, "weather") {
		return &Reply{Text: "Sunny, 21C"}, nil
	}
	return nil, nil
}

func postInteraction(t *testing.T, h http.Handler, inputText string) InteractionResponse {
	t.Helper()
	body, err := json.Marshal(InteractionRequest{InputText: inputText})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/interactions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp InteractionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHandleInteraction_ResponderClaims(t *testing.T) {
	srv, _ := newTestServer(t, time.Minute)
	srv.RegisterResponder(&weatherResponder{})
	h := srv.Handler()

	resp := postInteraction(t, h, "what's the weather")

	assert.Equal(t, "Sunny, 21C", resp.OutputText)
	assert.Equal(t, "weather", resp.RespondingPluginID)
	assert.Empty(t, resp.FollowUpPluginID)
	assert.True(t, resp.Persisted)
	assert.False(t, resp.ConversationClosed)
}

func TestHandleInteraction_FollowUpFirstRefusal(t *testing.T) {
	srv, _ := newTestServer(t, time.Minute)
	weather := &weatherResponder{}
	srv.RegisterResponder(weather)
	h := srv.Handler()

	first := postInteraction(t, h, "what's the weather")
	require.Equal(t, "weather", first.RespondingPluginID)

	// The second request does not mention weather but is offered to the
	// previous responder as a follow-up.
	second := postInteraction(t, h, "and tomorrow?")

	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.Equal(t, "weather", second.FollowUpPluginID)
	assert.Equal(t, "Tomorrow: rain", second.OutputText)
	assert.Equal(t, 1, weather.followUps)
}

func TestHandleInteraction_Unclaimed(t *testing.T) {
	srv, _ := newTestServer(t, time.Minute)
	srv.RegisterResponder(&weatherResponder{})
	h := srv.Handler()

	resp := postInteraction(t, h, "sing me a song")

	assert.Empty(t, resp.OutputText)
	assert.Empty(t, resp.RespondingPluginID)
	assert.True(t, resp.Persisted)

	// An unclaimed interaction clears the follow-up for the next request
	next := postInteraction(t, h, "still no weather here")
	assert.Empty(t, next.FollowUpPluginID)
}

func TestHandleInteraction_DoneClosesConversation(t *testing.T) {
	srv, _ := newTestServer(t, time.Minute)
	srv.RegisterResponder(ResponderFunc{
		PluginID: "farewell",
		Fn: func(ctx context.Context, req *Request) (*Reply, error) {
			if strings.Contains(req.InputText, "bye") {
				return &Reply{Text: "Goodbye!", Done: true}, nil
			}
			return nil, nil
		},
	})
	h := srv.Handler()

	first := postInteraction(t, h, "bye now")
	assert.True(t, first.ConversationClosed)

	// Closing ended the conversation: the next request starts a new one
	// with no follow-up candidate.
	second := postInteraction(t, h, "bye again")
	assert.NotEqual(t, first.ConversationID, second.ConversationID)
	assert.Empty(t, second.FollowUpPluginID)
}

func TestHandleInteraction_ResponderErrorDeclines(t *testing.T) {
	srv, _ := newTestServer(t, time.Minute)
	srv.RegisterResponder(ResponderFunc{
		PluginID: "flaky",
		Fn: func(ctx context.Context, req *Request) (*Reply, error) {
			return nil, assert.AnError
		},
	})
	srv.RegisterResponder(ResponderFunc{
		PluginID: "fallback",
		Fn: func(ctx context.Context, req *Request) (*Reply, error) {
			return &Reply{Text: "I've got this"}, nil
		},
	})
	h := srv.Handler()

	resp := postInteraction(t, h, "anyone?")
	assert.Equal(t, "fallback", resp.RespondingPluginID)
	assert.Equal(t, "I've got this", resp.OutputText)
}

func TestHandleInteraction_EmptyInput(t *testing.T) {
	srv, _ := newTestServer(t, time.Minute)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/interactions", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetConversation(t *testing.T) {
	srv, _ := newTestServer(t, time.Minute)
	srv.RegisterResponder(&weatherResponder{})
	h := srv.Handler()

	created := postInteraction(t, h, "what's the weather")

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/"+created.ConversationID, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var conv store.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	assert.Equal(t, created.ConversationID, conv.ID)
	require.Len(t, conv.Interactions, 1)
	assert.Equal(t, "Sunny, 21C", conv.Interactions[0].OutputText)
	assert.Equal(t, "weather", conv.Interactions[0].RespondingPluginID)
	assert.NotNil(t, conv.Interactions[0].ClosedAt)
}

func TestHandleGetConversation_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, time.Minute)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/nope", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListConversations(t *testing.T) {
	srv, _ := newTestServer(t, time.Minute)
	srv.RegisterResponder(ResponderFunc{
		PluginID: "farewell",
		Fn: func(ctx context.Context, req *Request) (*Reply, error) {
			return &Reply{Text: "Goodbye!", Done: true}, nil
		},
	})
	h := srv.Handler()

	// Two sequential conversations (each closed by the responder)
	postInteraction(t, h, "bye")
	postInteraction(t, h, "bye")

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Conversations []ConversationSummaryResponse `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Conversations, 2)
	assert.Equal(t, 1, out.Conversations[0].Interactions)
	assert.NotEmpty(t, out.Conversations[0].ClosedAt)
}

func TestHandleListConversations_InvalidLimit(t *testing.T) {
	srv, _ := newTestServer(t, time.Minute)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/conversations?limit=bogus", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t, time.Minute)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
