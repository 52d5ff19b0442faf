package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/relaybase/relaybase/internal/history"
	"github.com/relaybase/relaybase/internal/log"
)

// chatsHandler serves conversation history for the authenticated user.
type chatsHandler struct {
	store  historyStore
	logger log.Logger
}

// list returns the user's chats, newest first.
// Query params: limit (default 20, max 100), offset.
func (h *chatsHandler) list(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	chats, err := h.store.ListChats(r.Context(), claims.UserID, limit, offset)
	if err != nil {
		writeRelayError(w, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"chats":  chats,
		"limit":  limit,
		"offset": offset,
	})
}

// chatIDFromPath validates the {id} path value before it reaches the
// store. Chat ids are UUIDs; anything else is client garbage and gets a
// 400 rather than a database round trip.
func chatIDFromPath(w http.ResponseWriter, r *http.Request, logger log.Logger) (string, bool) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, logger, http.StatusBadRequest, "invalid_request", "invalid chat id")
		return "", false
	}
	return id, true
}

// messages returns the ordered transcript of an owned chat.
func (h *chatsHandler) messages(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	chatID, ok := chatIDFromPath(w, r, h.logger)
	if !ok {
		return
	}
	msgs, err := h.store.GetMessages(r.Context(), chatID, claims.UserID)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "not_found", "chat not found")
			return
		}
		writeRelayError(w, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"chat_id":  chatID,
		"messages": msgs,
	})
}

// delete removes an owned chat and its messages.
func (h *chatsHandler) delete(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	chatID, ok := chatIDFromPath(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.store.DeleteChat(r.Context(), chatID, claims.UserID); err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "not_found", "chat not found")
			return
		}
		writeRelayError(w, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]string{"deleted": chatID})
}

// stats returns totals and the set of models the user has talked to.
func (h *chatsHandler) stats(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	stats, err := h.store.Stats(r.Context(), claims.UserID)
	if err != nil {
		writeRelayError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, stats)
}

// queryInt parses an integer query parameter, falling back to def on
// absence or garbage. Range clamping belongs to the store.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
