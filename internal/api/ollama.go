package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/relaybase/relaybase/internal/log"
	"github.com/relaybase/relaybase/internal/ollama"
)

// modelRunner is the local runner dependency; *ollama.Client satisfies it.
type modelRunner interface {
	List(ctx context.Context) ([]ollama.Model, error)
	Pull(ctx context.Context, name string) error
	Delete(ctx context.Context, name string) error
	Embeddings(ctx context.Context, model, prompt string) ([]float64, error)
	Heartbeat(ctx context.Context) error
}

// ollamaHandler administers the local model runner. Chat against local
// models does not go through here; the ollama chat routes reuse the
// completion relay with the provider pinned to "ollama".
type ollamaHandler struct {
	runner modelRunner
	logger log.Logger
}

// models lists the locally installed models.
func (h *ollamaHandler) models(w http.ResponseWriter, r *http.Request) {
	models, err := h.runner.List(r.Context())
	if err != nil {
		h.writeRunnerError(w, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"models": models,
		"count":  len(models),
	})
}

type pullRequest struct {
	Name string `json:"name"`
}

// pull downloads a model. Blocks until the runner finishes, so large
// models take a while; the server's write timeout must allow for it.
func (h *ollamaHandler) pull(w http.ResponseWriter, r *http.Request) {
	var req pullRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "model name is required")
		return
	}

	if err := h.runner.Pull(r.Context(), req.Name); err != nil {
		h.writeRunnerError(w, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"pulled": req.Name})
}

// deleteModel removes a local model.
func (h *ollamaHandler) deleteModel(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.runner.Delete(r.Context(), name); err != nil {
		h.writeRunnerError(w, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"deleted": name})
}

type embeddingsRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// embeddings generates an embedding with a local model.
func (h *ollamaHandler) embeddings(w http.ResponseWriter, r *http.Request) {
	var req embeddingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Model == "" || req.Prompt == "" {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "model and prompt are required")
		return
	}

	vec, err := h.runner.Embeddings(r.Context(), req.Model, req.Prompt)
	if err != nil {
		h.writeRunnerError(w, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"model":     req.Model,
		"embedding": vec,
		"dimension": len(vec),
	})
}

// health reports whether the runner answers. Public.
func (h *ollamaHandler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.runner.Heartbeat(r.Context()); err != nil {
		writeError(w, h.logger, http.StatusServiceUnavailable, "unavailable", "model runner unreachable")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *ollamaHandler) writeRunnerError(w http.ResponseWriter, err error) {
	if errors.Is(err, ollama.ErrUnavailable) {
		writeError(w, h.logger, http.StatusBadGateway, "upstream_error", err.Error())
		return
	}
	writeError(w, h.logger, http.StatusBadRequest, "invalid_request", err.Error())
}
