package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaybase/relaybase/internal/log"
	"github.com/relaybase/relaybase/internal/tasks"
)

func TestTasksSubmit(t *testing.T) {
	h := &tasksHandler{queue: &fakeQueue{}, logger: log.NewNop()}

	w := httptest.NewRecorder()
	h.submit(w, authedRequest(http.MethodPost, "/api/v1/tasks", `{"name":"demo","duration_seconds":5}`))

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"task_id":"task-1"}`, w.Body.String())
}

func TestTasksSubmitDocument(t *testing.T) {
	h := &tasksHandler{queue: &fakeQueue{}, logger: log.NewNop()}

	t.Run("accepted", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.submitDocument(w, authedRequest(http.MethodPost, "/api/v1/tasks/document", `{"url":"https://example.com/article"}`))
		assert.Equal(t, http.StatusAccepted, w.Code)
	})

	t.Run("invalid url is a 400", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.submitDocument(w, authedRequest(http.MethodPost, "/api/v1/tasks/document", `{"url":""}`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid_request")
	})
}

func TestTasksStatus(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		q := &fakeQueue{status: &tasks.Status{
			ID:     "task-1",
			Type:   tasks.TypeGeneric,
			State:  "completed",
			Result: json.RawMessage(`{"percent":100}`),
		}}
		h := &tasksHandler{queue: q, logger: log.NewNop()}

		r := authedRequest(http.MethodGet, "/api/v1/tasks/task-1", "")
		r.SetPathValue("id", "task-1")
		w := httptest.NewRecorder()
		h.status(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"state":"completed"`)
	})

	t.Run("unknown id", func(t *testing.T) {
		h := &tasksHandler{queue: &fakeQueue{err: tasks.ErrNotFound}, logger: log.NewNop()}

		r := authedRequest(http.MethodGet, "/api/v1/tasks/ghost", "")
		r.SetPathValue("id", "ghost")
		w := httptest.NewRecorder()
		h.status(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestTasksHealth_QueueDown(t *testing.T) {
	h := &tasksHandler{queue: &fakeQueue{err: assert.AnError}, logger: log.NewNop()}

	w := httptest.NewRecorder()
	h.health(w, httptest.NewRequest(http.MethodGet, "/api/v1/tasks/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
