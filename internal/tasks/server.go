package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/hibiken/asynq"

	"github.com/relaybase/relaybase/internal/llm"
	"github.com/relaybase/relaybase/internal/log"
)

// Ingester stores extracted document text. Implemented by the knowledge
// store; nil when the RAG module is disabled.
type Ingester interface {
	Add(ctx context.Context, collection string, contents []string, metadatas []map[string]string) ([]string, error)
}

// Completer runs chat completions. Implemented by the llm client.
type Completer interface {
	Complete(ctx context.Context, req *llm.Request) (*llm.Response, error)
}

// chunkSize bounds ingested fragments so a single page does not become
// one giant embedding input.
const chunkSize = 1500

// Handlers holds the worker-side task implementations.
type Handlers struct {
	httpClient *http.Client
	ingester   Ingester
	completer  Completer
	logger     log.Logger
}

// NewHandlers creates the task handler set. ingester and completer may be
// nil when the corresponding module is disabled; affected tasks then fail
// with a clear error instead of panicking.
func NewHandlers(ingester Ingester, completer Completer, logger log.Logger) *Handlers {
	return &Handlers{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		ingester:   ingester,
		completer:  completer,
		logger:     logger,
	}
}

// NewServer builds the asynq server and its routing mux. The caller runs
// srv.Run(mux) and srv.Shutdown().
func NewServer(opt asynq.RedisClientOpt, h *Handlers, logger log.Logger) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: 10,
		Queues:      map[string]int{QueueDefault: 1},
		Logger:      asynqLogger{logger},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeGeneric, h.HandleGeneric)
	mux.HandleFunc(TypeDocument, h.HandleDocument)
	mux.HandleFunc(TypeChat, h.HandleChat)

	return srv, mux
}

// HandleGeneric simulates a long-running job, reporting progress through
// the task result so pollers can render a progress bar.
func (h *Handlers) HandleGeneric(ctx context.Context, t *asynq.Task) error {
	var p GenericPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal generic payload: %w", err)
	}
	if p.DurationSeconds <= 0 {
		p.DurationSeconds = 10
	}

	for i := 1; i <= p.DurationSeconds; i++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("generic task canceled: %w", ctx.Err())
		case <-time.After(time.Second):
		}

		progress, _ := json.Marshal(Progress{
			Percent: i * 100 / p.DurationSeconds,
			Message: fmt.Sprintf("step %d of %d", i, p.DurationSeconds),
		})
		h.writeResult(t, progress)
	}

	h.logger.Info("generic task completed", "name", p.Name, "duration_s", p.DurationSeconds)
	return nil
}

// HandleDocument fetches a URL, extracts readable text, and ingests it
// into the knowledge store when available.
func (h *Handlers) HandleDocument(ctx context.Context, t *asynq.Task) error {
	var p DocumentPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal document payload: %w", err)
	}

	pageURL, err := url.Parse(p.URL)
	if err != nil {
		return fmt.Errorf("parse document url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return fmt.Errorf("build document request: %w", err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch document: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch document: unexpected status %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, pageURL)
	if err != nil {
		return fmt.Errorf("extract document text: %w", err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return fmt.Errorf("no readable text at %s", p.URL)
	}

	chunks := chunkText(text, chunkSize)

	result := map[string]any{
		"url":    p.URL,
		"title":  article.Title,
		"chunks": len(chunks),
	}

	if h.ingester != nil {
		metadatas := make([]map[string]string, len(chunks))
		for i := range chunks {
			metadatas[i] = map[string]string{
				"source": p.URL,
				"title":  article.Title,
			}
		}
		ids, err := h.ingester.Add(ctx, p.Collection, chunks, metadatas)
		if err != nil {
			return fmt.Errorf("ingest document: %w", err)
		}
		result["ingested"] = len(ids)
	}

	data, _ := json.Marshal(result)
	h.writeResult(t, data)

	h.logger.Info("document task completed", "url", p.URL, "chunks", len(chunks))
	return nil
}

// HandleChat runs a completion in the background and stores the response
// as the task result.
func (h *Handlers) HandleChat(ctx context.Context, t *asynq.Task) error {
	if h.completer == nil {
		return fmt.Errorf("no completion provider configured")
	}

	var p ChatPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal chat payload: %w", err)
	}

	resp, err := h.completer.Complete(ctx, &p.Request)
	if err != nil {
		return fmt.Errorf("background completion: %w", err)
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal completion result: %w", err)
	}
	h.writeResult(t, data)

	h.logger.Info("chat task completed", "user_id", p.UserID, "model", resp.Model)
	return nil
}

// writeResult stores intermediate or final data on the task. The writer
// is only present for tasks flowing through the asynq server.
func (h *Handlers) writeResult(t *asynq.Task, data []byte) {
	rw := t.ResultWriter()
	if rw == nil {
		return
	}
	if _, err := rw.Write(data); err != nil {
		h.logger.Warn("writing task result", "task_id", rw.TaskID(), "error", err)
	}
}

// chunkText splits text into pieces of at most size runes, breaking on
// whitespace where possible.
func chunkText(text string, size int) []string {
	if size <= 0 {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	for len(runes) > 0 {
		if len(runes) <= size {
			chunks = append(chunks, strings.TrimSpace(string(runes)))
			break
		}

		cut := size
		// Prefer breaking at the last whitespace inside the window.
		for i := size; i > size/2; i-- {
			if runes[i] == ' ' || runes[i] == '\n' || runes[i] == '\t' {
				cut = i
				break
			}
		}

		chunk := strings.TrimSpace(string(runes[:cut]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = runes[cut:]
	}
	return chunks
}

// asynqLogger adapts our slog-based logger to asynq's logging interface.
type asynqLogger struct {
	logger log.Logger
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.logger.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.logger.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.logger.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.logger.Error(fmt.Sprint(args...)) }
