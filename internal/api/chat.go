package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/relaybase/relaybase/internal/history"
	"github.com/relaybase/relaybase/internal/llm"
	"github.com/relaybase/relaybase/internal/log"
)

// relayClient is the completion dependency; *llm.Client satisfies it.
type relayClient interface {
	Complete(ctx context.Context, req *llm.Request) (*llm.Response, error)
	Stream(ctx context.Context, req *llm.Request, cb llm.StreamCallback) (*llm.Response, error)
	ListModels() []llm.ModelInfo
}

// historyStore is the persistence dependency; *history.Store satisfies it.
type historyStore interface {
	SaveChat(ctx context.Context, userID string, messages []llm.Message, reply llm.Message, model, provider string) (string, error)
	ListChats(ctx context.Context, userID string, limit, offset int) ([]history.Chat, error)
	GetMessages(ctx context.Context, chatID, userID string) ([]history.Message, error)
	DeleteChat(ctx context.Context, chatID, userID string) error
	Stats(ctx context.Context, userID string) (*history.Stats, error)
}

// chatHandler relays completions and persists transcripts.
type chatHandler struct {
	relay   relayClient
	history historyStore
	// defaultProvider pins requests that do not name one; the ollama
	// route group reuses this handler with provider "ollama".
	defaultProvider string
	logger          log.Logger
}

// send handles a blocking completion: relay, persist, respond.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	var req llm.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if h.defaultProvider != "" && req.Provider == "" {
		req.Provider = h.defaultProvider
	}

	resp, err := h.relay.Complete(r.Context(), &req)
	if err != nil {
		writeRelayError(w, h.logger, err)
		return
	}

	h.persist(r.Context(), claims.UserID, req.Messages, resp)
	writeJSON(w, h.logger, http.StatusOK, resp)
}

// stream handles an SSE completion relay.
//
// Event framing:
//
//	event: chunk   data: OpenAI-shaped chunk JSON (one per delta)
//	event: done    data: final completion response JSON
//	event: error   data: {error, message}
//	data: [DONE]   terminator after done
//
// The transcript is persisted after the stream finishes; persistence
// failures are logged, never surfaced into the open stream.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	var req llm.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if h.defaultProvider != "" && req.Provider == "" {
		req.Provider = h.defaultProvider
	}
	// Validate before committing to the SSE content type so malformed
	// requests still get a plain JSON 400.
	if err := req.Validate(); err != nil {
		writeRelayError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported")
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	resp, err := h.relay.Stream(ctx, &req, func(chunk llm.Chunk) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		writeSSEEvent(w, flusher, "chunk", chunk)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			h.logger.Info("client disconnected during stream", "user", claims.UserID)
			return
		}
		h.logger.Error("stream failed", "error", err, "user", claims.UserID)
		writeSSEError(w, flusher, err)
		return
	}

	writeSSEEvent(w, flusher, "done", resp)
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()

	h.persist(ctx, claims.UserID, req.Messages, resp)
}

// persist saves the exchange. A failed save loses history but not the
// completion the caller already has, so it only logs.
func (h *chatHandler) persist(ctx context.Context, userID string, messages []llm.Message, resp *llm.Response) {
	if h.history == nil || len(resp.Choices) == 0 {
		return
	}
	// The request context may already be canceled after a stream.
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	reply := resp.Choices[0].Message
	chatID, err := h.history.SaveChat(ctx, userID, messages, reply, resp.Model, resp.Provider)
	if err != nil {
		h.logger.Error("failed to persist chat", "error", err, "user", userID)
		return
	}
	h.logger.Debug("chat persisted", "chat_id", chatID, "user", userID)
}

// writeSSEEvent writes one named event with a JSON payload.
func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}

// writeSSEError writes an error event carrying the same {error, message}
// shape as JSON error responses.
func writeSSEError(w http.ResponseWriter, flusher http.Flusher, err error) {
	code := "upstream_error"
	switch {
	case errors.Is(err, llm.ErrValidation):
		code = "invalid_request"
	case errors.Is(err, llm.ErrNoProvider):
		code = "no_provider"
	}
	writeSSEEvent(w, flusher, "error", errorResponse{Error: code, Message: err.Error()})
}
