package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaybase/relaybase/internal/log"
	"github.com/relaybase/relaybase/internal/ollama"
)

func TestOllamaModels(t *testing.T) {
	runner := &fakeRunner{modelList: []ollama.Model{{Name: "llama3.2", Size: 2019393189}}}
	h := &ollamaHandler{runner: runner, logger: log.NewNop()}

	w := httptest.NewRecorder()
	h.models(w, authedRequest(http.MethodGet, "/api/v1/ollama/models", ""))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "llama3.2")
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestOllamaPull(t *testing.T) {
	h := &ollamaHandler{runner: &fakeRunner{}, logger: log.NewNop()}

	t.Run("success", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.pull(w, authedRequest(http.MethodPost, "/api/v1/ollama/models/pull", `{"name":"llama3.2"}`))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing name", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.pull(w, authedRequest(http.MethodPost, "/api/v1/ollama/models/pull", `{}`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestOllamaDelete(t *testing.T) {
	h := &ollamaHandler{runner: &fakeRunner{}, logger: log.NewNop()}

	r := authedRequest(http.MethodDelete, "/api/v1/ollama/models/llama3.2", "")
	r.SetPathValue("name", "llama3.2")
	w := httptest.NewRecorder()
	h.deleteModel(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"deleted":"llama3.2"`)
}

func TestOllamaEmbeddings(t *testing.T) {
	runner := &fakeRunner{embedding: []float64{0.1, 0.2}}
	h := &ollamaHandler{runner: runner, logger: log.NewNop()}

	body := `{"model":"nomic-embed-text","prompt":"hello"}`
	w := httptest.NewRecorder()
	h.embeddings(w, authedRequest(http.MethodPost, "/api/v1/ollama/embeddings", body))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"dimension":2`)
}

func TestOllamaRunnerDown(t *testing.T) {
	h := &ollamaHandler{runner: &fakeRunner{err: ollama.ErrUnavailable}, logger: log.NewNop()}

	w := httptest.NewRecorder()
	h.models(w, authedRequest(http.MethodGet, "/api/v1/ollama/models", ""))
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = httptest.NewRecorder()
	h.health(w, httptest.NewRequest(http.MethodGet, "/api/v1/ollama/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
