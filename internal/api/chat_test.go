package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaybase/relaybase/internal/auth"
	"github.com/relaybase/relaybase/internal/llm"
	"github.com/relaybase/relaybase/internal/log"
)

// authedRequest builds a request whose context already carries claims,
// bypassing the middleware stack for handler-level tests.
func authedRequest(method, path, body string) *http.Request {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	claims := &auth.Claims{UserID: "user-1", Role: "authenticated"}
	ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
	return r.WithContext(ctx)
}

const chatBody = `{"messages":[{"role":"user","content":"hi"}]}`

func TestChatSend(t *testing.T) {
	relay := newFakeRelay()
	store := &fakeHistory{}
	h := &chatHandler{relay: relay, history: store, logger: log.NewNop()}

	w := httptest.NewRecorder()
	h.send(w, authedRequest(http.MethodPost, "/api/v1/chat", chatBody))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"object":"chat.completion"`)
	assert.Contains(t, w.Body.String(), "hello there")
	assert.Equal(t, 1, store.saved)
	assert.Equal(t, "user-1", store.saveUser)
}

func TestChatSend_Errors(t *testing.T) {
	t.Run("no claims", func(t *testing.T) {
		h := &chatHandler{relay: newFakeRelay(), logger: log.NewNop()}
		w := httptest.NewRecorder()
		h.send(w, httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(chatBody)))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid json", func(t *testing.T) {
		h := &chatHandler{relay: newFakeRelay(), logger: log.NewNop()}
		w := httptest.NewRecorder()
		h.send(w, authedRequest(http.MethodPost, "/api/v1/chat", "{not json"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("validation failure", func(t *testing.T) {
		h := &chatHandler{relay: newFakeRelay(), logger: log.NewNop()}
		w := httptest.NewRecorder()
		h.send(w, authedRequest(http.MethodPost, "/api/v1/chat", `{"messages":[]}`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid_request")
	})

	t.Run("no provider configured", func(t *testing.T) {
		relay := &fakeRelay{err: llm.ErrNoProvider}
		h := &chatHandler{relay: relay, logger: log.NewNop()}
		w := httptest.NewRecorder()
		h.send(w, authedRequest(http.MethodPost, "/api/v1/chat", chatBody))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "no_provider")
	})

	t.Run("upstream failure", func(t *testing.T) {
		relay := &fakeRelay{err: llm.ErrUpstream}
		h := &chatHandler{relay: relay, logger: log.NewNop()}
		w := httptest.NewRecorder()
		h.send(w, authedRequest(http.MethodPost, "/api/v1/chat", chatBody))
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Contains(t, w.Body.String(), "upstream_error")
	})
}

func TestChatSend_PersistFailureDoesNotSurface(t *testing.T) {
	store := &fakeHistory{saveErr: assert.AnError}
	h := &chatHandler{relay: newFakeRelay(), history: store, logger: log.NewNop()}

	w := httptest.NewRecorder()
	h.send(w, authedRequest(http.MethodPost, "/api/v1/chat", chatBody))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, store.saved)
}

func TestChatStream(t *testing.T) {
	relay := newFakeRelay()
	relay.chunks = []llm.Chunk{
		{ID: "chatcmpl-test", Object: "chat.completion.chunk", Model: "gpt-4o-mini",
			Choices: []llm.ChunkChoice{{Delta: llm.Delta{Content: "hel"}}}},
		{ID: "chatcmpl-test", Object: "chat.completion.chunk", Model: "gpt-4o-mini",
			Choices: []llm.ChunkChoice{{Delta: llm.Delta{Content: "lo"}}}},
	}
	store := &fakeHistory{}
	h := &chatHandler{relay: relay, history: store, logger: log.NewNop()}

	w := httptest.NewRecorder()
	h.stream(w, authedRequest(http.MethodPost, "/api/v1/chat/stream", chatBody))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Equal(t, 2, strings.Count(body, "event: chunk\n"))
	assert.Contains(t, body, `"content":"hel"`)
	assert.Contains(t, body, "event: done\n")
	assert.Contains(t, body, `"object":"chat.completion"`)
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))

	// Transcript saved after the stream finished.
	assert.Equal(t, 1, store.saved)
}

func TestChatStream_ValidationBeforeSSE(t *testing.T) {
	h := &chatHandler{relay: newFakeRelay(), logger: log.NewNop()}

	w := httptest.NewRecorder()
	h.stream(w, authedRequest(http.MethodPost, "/api/v1/chat/stream", `{"messages":[]}`))

	// Plain JSON 400, not an SSE error event.
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestChatStream_UpstreamErrorBecomesEvent(t *testing.T) {
	relay := &fakeRelay{err: llm.ErrUpstream}
	h := &chatHandler{relay: relay, logger: log.NewNop()}

	w := httptest.NewRecorder()
	h.stream(w, authedRequest(http.MethodPost, "/api/v1/chat/stream", chatBody))

	body := w.Body.String()
	assert.Contains(t, body, "event: error\n")
	assert.Contains(t, body, "upstream_error")
	assert.NotContains(t, body, "[DONE]")
}

func TestChatStream_DefaultProviderPinned(t *testing.T) {
	relay := newFakeRelay()
	h := &chatHandler{relay: relay, defaultProvider: "ollama", logger: log.NewNop()}

	w := httptest.NewRecorder()
	h.stream(w, authedRequest(http.MethodPost, "/api/v1/ollama/chat/stream", chatBody))

	require.NotNil(t, relay.lastReq)
	assert.Equal(t, "ollama", relay.lastReq.Provider)
}

func TestChatSend_ExplicitProviderWins(t *testing.T) {
	relay := newFakeRelay()
	h := &chatHandler{relay: relay, defaultProvider: "ollama", logger: log.NewNop()}

	body := `{"provider":"openai","messages":[{"role":"user","content":"hi"}]}`
	w := httptest.NewRecorder()
	h.send(w, authedRequest(http.MethodPost, "/api/v1/ollama/chat", body))

	require.NotNil(t, relay.lastReq)
	assert.Equal(t, "openai", relay.lastReq.Provider)
}
