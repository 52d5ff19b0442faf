package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/relaybase/relaybase/internal/log"
	"github.com/relaybase/relaybase/internal/tasks"
)

// taskQueue is the queue dependency; *tasks.Client satisfies it.
type taskQueue interface {
	SubmitGeneric(ctx context.Context, p tasks.GenericPayload) (string, error)
	SubmitDocument(ctx context.Context, p tasks.DocumentPayload) (string, error)
	SubmitChat(ctx context.Context, p tasks.ChatPayload) (string, error)
	Status(ctx context.Context, id string) (*tasks.Status, error)
	QueueHealth(ctx context.Context) (*tasks.Health, error)
}

// tasksHandler serves the background task queue endpoints.
type tasksHandler struct {
	queue  taskQueue
	logger log.Logger
}

// submit enqueues a generic long-running task.
func (h *tasksHandler) submit(w http.ResponseWriter, r *http.Request) {
	var p tasks.GenericPayload
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	id, err := h.queue.SubmitGeneric(r.Context(), p)
	if err != nil {
		h.logger.Error("failed to enqueue task", "error", err, "type", tasks.TypeGeneric)
		writeError(w, h.logger, http.StatusBadGateway, "queue_error", "failed to enqueue task")
		return
	}
	writeJSON(w, h.logger, http.StatusAccepted, map[string]string{"task_id": id})
}

// submitDocument enqueues a document fetch-and-ingest task.
func (h *tasksHandler) submitDocument(w http.ResponseWriter, r *http.Request) {
	var p tasks.DocumentPayload
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	id, err := h.queue.SubmitDocument(r.Context(), p)
	if err != nil {
		// URL validation happens before the queue round trip.
		if errors.Is(err, tasks.ErrInvalidPayload) {
			writeError(w, h.logger, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		h.logger.Error("failed to enqueue task", "error", err, "type", tasks.TypeDocument)
		writeError(w, h.logger, http.StatusBadGateway, "queue_error", "failed to enqueue task")
		return
	}
	writeJSON(w, h.logger, http.StatusAccepted, map[string]string{"task_id": id})
}

// status reports the state and result of a submitted task.
func (h *tasksHandler) status(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, err := h.queue.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "not_found", "task not found")
			return
		}
		writeRelayError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, st)
}

// health reports queue depth. Public.
func (h *tasksHandler) health(w http.ResponseWriter, r *http.Request) {
	qh, err := h.queue.QueueHealth(r.Context())
	if err != nil {
		writeError(w, h.logger, http.StatusServiceUnavailable, "unavailable", "task queue unreachable")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, qh)
}
