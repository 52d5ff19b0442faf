package api

import (
	"context"
	"fmt"

	"github.com/relaybase/relaybase/internal/auth"
	"github.com/relaybase/relaybase/internal/history"
	"github.com/relaybase/relaybase/internal/knowledge"
	"github.com/relaybase/relaybase/internal/llm"
	"github.com/relaybase/relaybase/internal/ollama"
	"github.com/relaybase/relaybase/internal/tasks"
)

// stubVerifier accepts exactly one token.
type stubVerifier struct {
	token  string
	claims *auth.Claims
}

func (v *stubVerifier) Verify(token string) (*auth.Claims, error) {
	if token == v.token {
		return v.claims, nil
	}
	return nil, auth.ErrInvalidToken
}

func newStubVerifier() *stubVerifier {
	return &stubVerifier{
		token:  "good-token",
		claims: &auth.Claims{UserID: "user-1", Email: "u@example.com", Role: "authenticated"},
	}
}

// fakeRelay returns canned responses and replays canned chunks.
type fakeRelay struct {
	resp    *llm.Response
	chunks  []llm.Chunk
	err     error
	lastReq *llm.Request
	models  []llm.ModelInfo
}

func (f *fakeRelay) Complete(_ context.Context, req *llm.Request) (*llm.Response, error) {
	f.lastReq = req
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return f.resp, f.err
}

func (f *fakeRelay) Stream(_ context.Context, req *llm.Request, cb llm.StreamCallback) (*llm.Response, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	for _, c := range f.chunks {
		if err := cb(c); err != nil {
			return nil, err
		}
	}
	return f.resp, nil
}

func (f *fakeRelay) ListModels() []llm.ModelInfo {
	return f.models
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{
		resp: &llm.Response{
			ID:       "chatcmpl-test",
			Object:   "chat.completion",
			Model:    "gpt-4o-mini",
			Provider: "openai",
			Choices: []llm.Choice{{
				Message:      llm.Message{Role: llm.RoleAssistant, Content: "hello there"},
				FinishReason: "stop",
			}},
			Usage: llm.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
		},
		models: []llm.ModelInfo{{ID: "gpt-4o-mini", Provider: "openai", Name: "GPT-4o mini"}},
	}
}

// fakeHistory records saves and serves canned rows.
type fakeHistory struct {
	saved    int
	saveUser string
	saveErr  error
	chats    []history.Chat
	messages []history.Message
	stats    *history.Stats
	err      error
}

func (f *fakeHistory) SaveChat(_ context.Context, userID string, _ []llm.Message, _ llm.Message, _, _ string) (string, error) {
	f.saved++
	f.saveUser = userID
	if f.saveErr != nil {
		return "", f.saveErr
	}
	return "chat-1", nil
}

func (f *fakeHistory) ListChats(_ context.Context, _ string, _, _ int) ([]history.Chat, error) {
	return f.chats, f.err
}

func (f *fakeHistory) GetMessages(_ context.Context, _, _ string) ([]history.Message, error) {
	return f.messages, f.err
}

func (f *fakeHistory) DeleteChat(_ context.Context, _, _ string) error {
	return f.err
}

func (f *fakeHistory) Stats(_ context.Context, _ string) (*history.Stats, error) {
	return f.stats, f.err
}

// fakeKnowledge is an in-memory knowledgeStore.
type fakeKnowledge struct {
	ids     []string
	results []knowledge.Result
	infos   []knowledge.CollectionInfo
	err     error
}

func (f *fakeKnowledge) Add(_ context.Context, _ string, contents []string, _ []map[string]string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	ids := make([]string, len(contents))
	for i := range ids {
		ids[i] = fmt.Sprintf("doc-%d", i)
	}
	return ids, nil
}

func (f *fakeKnowledge) Search(_ context.Context, _, _ string, _ ...knowledge.SearchOption) ([]knowledge.Result, error) {
	return f.results, f.err
}

func (f *fakeKnowledge) Delete(_ context.Context, ids []string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return len(ids), nil
}

func (f *fakeKnowledge) ListCollections(_ context.Context) ([]knowledge.CollectionInfo, error) {
	return f.infos, f.err
}

func (f *fakeKnowledge) Collection(_ context.Context, name string) (*knowledge.CollectionInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &knowledge.CollectionInfo{Name: name, Documents: 1}, nil
}

func (f *fakeKnowledge) Ping(_ context.Context) error {
	return f.err
}

// fakeQueue is an in-memory taskQueue.
type fakeQueue struct {
	status *tasks.Status
	health *tasks.Health
	err    error
}

func (f *fakeQueue) SubmitGeneric(_ context.Context, _ tasks.GenericPayload) (string, error) {
	return "task-1", f.err
}

func (f *fakeQueue) SubmitDocument(ctx context.Context, p tasks.DocumentPayload) (string, error) {
	// Mirror the real client: validate before any queue round trip.
	if p.URL == "" {
		return "", fmt.Errorf("%w: invalid document url %q", tasks.ErrInvalidPayload, p.URL)
	}
	return "task-2", f.err
}

func (f *fakeQueue) SubmitChat(_ context.Context, _ tasks.ChatPayload) (string, error) {
	return "task-3", f.err
}

func (f *fakeQueue) Status(_ context.Context, _ string) (*tasks.Status, error) {
	return f.status, f.err
}

func (f *fakeQueue) QueueHealth(_ context.Context) (*tasks.Health, error) {
	return f.health, f.err
}

func newQueueHealth() *tasks.Health {
	return &tasks.Health{Queue: tasks.QueueDefault, Pending: 1}
}

// fakeRunner is an in-memory modelRunner.
type fakeRunner struct {
	modelList []ollama.Model
	embedding []float64
	err       error
}

func (f *fakeRunner) List(_ context.Context) ([]ollama.Model, error) {
	return f.modelList, f.err
}

func (f *fakeRunner) Pull(_ context.Context, _ string) error {
	return f.err
}

func (f *fakeRunner) Delete(_ context.Context, _ string) error {
	return f.err
}

func (f *fakeRunner) Embeddings(_ context.Context, _, _ string) ([]float64, error) {
	return f.embedding, f.err
}

func (f *fakeRunner) Heartbeat(_ context.Context) error {
	return f.err
}

// errPinger fails readiness on demand.
type errPinger struct{ err error }

func (p *errPinger) Ping(_ context.Context) error { return p.err }
