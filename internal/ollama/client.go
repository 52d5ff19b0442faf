// Package ollama is a thin client for the local model runner's admin REST
// API: model listing, pulls, deletes, embeddings, and health. Chat with
// local models does not live here; it flows through the same completion
// relay as hosted providers.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/relaybase/relaybase/internal/log"
)

// ErrUnavailable indicates the runner did not answer. Handlers map this
// to 502.
var ErrUnavailable = errors.New("ollama unavailable")

// Model describes a locally installed model.
type Model struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Client talks to a single Ollama server. Safe for concurrent use.
type Client struct {
	host   string
	http   *http.Client
	logger log.Logger
}

// New creates a client for the given host (e.g. "http://localhost:11434").
func New(host string, logger log.Logger) *Client {
	return &Client{
		host: strings.TrimRight(host, "/"),
		// Pulls stream large blobs; everything else finishes quickly. The
		// per-request contexts bound the slow paths.
		http:   &http.Client{Timeout: 10 * time.Minute},
		logger: logger,
	}
}

// do executes a request and decodes the JSON response into out (when
// non-nil). Non-2xx statuses become wrapped ErrUnavailable values
// carrying the upstream status and body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", path, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.host+path, reqBody)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %d: %s", ErrUnavailable, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// List returns the locally installed models.
func (c *Client) List(ctx context.Context) ([]Model, error) {
	var out struct {
		Models []Model `json:"models"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/tags", nil, &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// Pull downloads a model. The runner streams progress lines; this client
// requests the non-streaming form and blocks until the pull completes.
func (c *Client) Pull(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("model name required")
	}
	body := map[string]any{"name": name, "stream": false}
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/pull", body, &out); err != nil {
		return err
	}
	if out.Status != "success" {
		return fmt.Errorf("pull %q finished with status %q", name, out.Status)
	}
	c.logger.Info("pulled model", "model", name)
	return nil
}

// Delete removes a local model.
func (c *Client) Delete(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("model name required")
	}
	if err := c.do(ctx, http.MethodDelete, "/api/delete", map[string]string{"name": name}, nil); err != nil {
		return err
	}
	c.logger.Info("deleted model", "model", name)
	return nil
}

// Embeddings generates an embedding for prompt using the given model.
func (c *Client) Embeddings(ctx context.Context, model, prompt string) ([]float64, error) {
	if model == "" || prompt == "" {
		return nil, fmt.Errorf("model and prompt required")
	}
	var out struct {
		Embedding []float64 `json:"embedding"`
	}
	body := map[string]string{"model": model, "prompt": prompt}
	if err := c.do(ctx, http.MethodPost, "/api/embeddings", body, &out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding from model %q", model)
	}
	return out.Embedding, nil
}

// Heartbeat reports whether the runner answers at all.
func (c *Client) Heartbeat(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.do(ctx, http.MethodGet, "/", nil, nil)
}
