// Package tasks provides the background task queue built on asynq over
// Redis. The gateway enqueues work and reports status; a separate worker
// process consumes the queue.
package tasks

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/relaybase/relaybase/internal/llm"
)

// Task type names. Every task runs on the default queue.
const (
	TypeGeneric  = "task:generic"
	TypeDocument = "task:document"
	TypeChat     = "task:chat"
)

// QueueDefault is the single queue used by the gateway.
const QueueDefault = "default"

// ErrNotFound indicates no task with the given ID exists (or its result
// already expired).
var ErrNotFound = errors.New("task not found")

// ErrInvalidPayload indicates a submit-side validation failure; nothing
// was enqueued. Handlers map this to 400.
var ErrInvalidPayload = errors.New("invalid task payload")

// GenericPayload drives the demo long-running task.
type GenericPayload struct {
	Name            string `json:"name"`
	DurationSeconds int    `json:"duration_seconds"`
}

// DocumentPayload requests fetching a URL, extracting its readable text,
// and (when RAG is enabled) ingesting it into the knowledge store.
type DocumentPayload struct {
	URL        string `json:"url"`
	Collection string `json:"collection,omitempty"`
}

// ChatPayload runs a completion in the background on behalf of a user.
type ChatPayload struct {
	UserID  string      `json:"user_id"`
	Request llm.Request `json:"request"`
}

// Progress is the intermediate result written by long-running tasks.
type Progress struct {
	Percent int    `json:"percent"`
	Message string `json:"message,omitempty"`
}

// Status describes a submitted task.
type Status struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	State  string          `json:"state"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Health reports queue depth for the monitoring endpoint.
type Health struct {
	Queue     string `json:"queue"`
	Active    int    `json:"active"`
	Pending   int    `json:"pending"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Completed int    `json:"completed"`
}

// newTask marshals a payload into an asynq task.
func newTask(typename string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", typename, err)
	}
	return asynq.NewTask(typename, data), nil
}
