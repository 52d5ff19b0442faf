package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaybase/relaybase/internal/history"
	"github.com/relaybase/relaybase/internal/log"
)

func TestChatsList(t *testing.T) {
	store := &fakeHistory{chats: []history.Chat{
		{ID: "chat-1", Title: "First chat", Model: "gpt-4o-mini", UpdatedAt: time.Now()},
	}}
	h := &chatsHandler{store: store, logger: log.NewNop()}

	w := httptest.NewRecorder()
	h.list(w, authedRequest(http.MethodGet, "/api/v1/chats?limit=5", ""))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "First chat")
	assert.Contains(t, w.Body.String(), `"limit":5`)
}

func TestChatsList_Unauthenticated(t *testing.T) {
	h := &chatsHandler{store: &fakeHistory{}, logger: log.NewNop()}
	w := httptest.NewRecorder()
	h.list(w, httptest.NewRequest(http.MethodGet, "/api/v1/chats", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChatsMessages_NotFound(t *testing.T) {
	store := &fakeHistory{err: history.ErrNotFound}
	h := &chatsHandler{store: store, logger: log.NewNop()}

	chatID := "0b6a7e7b-7a6e-4a94-9f34-df2b5d8f0a11"
	r := authedRequest(http.MethodGet, "/api/v1/chats/"+chatID+"/messages", "")
	r.SetPathValue("id", chatID)
	w := httptest.NewRecorder()
	h.messages(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not_found")
}

func TestChatsMessages_InvalidID(t *testing.T) {
	// A failing store proves a malformed id never reaches it.
	store := &fakeHistory{err: errors.New("store must not be called")}
	h := &chatsHandler{store: store, logger: log.NewNop()}

	r := authedRequest(http.MethodGet, "/api/v1/chats/not-a-uuid/messages", "")
	r.SetPathValue("id", "not-a-uuid")
	w := httptest.NewRecorder()
	h.messages(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_request")
}

func TestChatsDelete(t *testing.T) {
	h := &chatsHandler{store: &fakeHistory{}, logger: log.NewNop()}

	chatID := "0b6a7e7b-7a6e-4a94-9f34-df2b5d8f0a11"
	r := authedRequest(http.MethodDelete, "/api/v1/chats/"+chatID, "")
	r.SetPathValue("id", chatID)
	w := httptest.NewRecorder()
	h.delete(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"deleted":"`+chatID+`"`)
}

func TestChatsDelete_InvalidID(t *testing.T) {
	store := &fakeHistory{err: errors.New("store must not be called")}
	h := &chatsHandler{store: store, logger: log.NewNop()}

	r := authedRequest(http.MethodDelete, "/api/v1/chats/42", "")
	r.SetPathValue("id", "42")
	w := httptest.NewRecorder()
	h.delete(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_request")
}

func TestChatsStats(t *testing.T) {
	store := &fakeHistory{stats: &history.Stats{
		TotalChats:    3,
		TotalMessages: 12,
		ModelsUsed:    []string{"gpt-4o-mini"},
	}}
	h := &chatsHandler{store: store, logger: log.NewNop()}

	w := httptest.NewRecorder()
	h.stats(w, authedRequest(http.MethodGet, "/api/v1/chats/stats", ""))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_chats":3`)
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"?limit=5", 5},
		{"?limit=abc", 20},
		{"?limit=-3", 20},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/x"+tt.query, nil)
		assert.Equal(t, tt.want, queryInt(r, "limit", 20), tt.query)
	}
}
