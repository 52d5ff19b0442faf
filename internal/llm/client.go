package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai"
	openaiPlugin "github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	openaiopt "github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	"github.com/relaybase/relaybase/internal/config"
	"github.com/relaybase/relaybase/internal/log"
)

// Provider identifiers accepted in Request.Provider. These mirror the
// config constants; "gemini" maps to the googleai plugin namespace.
const (
	ProviderOpenAI     = config.ProviderOpenAI
	ProviderGemini     = config.ProviderGemini
	ProviderOpenRouter = config.ProviderOpenRouter
	ProviderOllama     = config.ProviderOllama
)

// StreamCallback receives each relayed chunk. Returning an error aborts
// the stream.
type StreamCallback func(Chunk) error

// Client relays completion requests to whichever providers are configured.
// All provider access goes through Genkit plugins; the client owns model
// name resolution, request validation, retry, and response shaping.
type Client struct {
	genkit  *genkit.Genkit
	cfg     *config.Config
	logger  log.Logger
	retry   RetryConfig
	limiter *rate.Limiter

	ollamaPlugin     *ollama.Ollama
	openRouterPlugin *compat_oai.OpenAICompatible

	mu            sync.Mutex
	definedModels map[string]bool
}

// New initializes Genkit with a plugin per configured provider and returns
// a relay client. Returns ErrNoProvider when nothing is configured.
func New(ctx context.Context, cfg *config.Config, logger log.Logger) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		logger:        logger,
		retry:         DefaultRetryConfig(),
		limiter:       rate.NewLimiter(rate.Limit(10), 10),
		definedModels: make(map[string]bool),
	}

	plist := make([]api.Plugin, 0, 4)

	if cfg.OpenAIAPIKey != "" {
		plist = append(plist, &openaiPlugin.OpenAI{APIKey: cfg.OpenAIAPIKey})
	}
	if cfg.GeminiAPIKey != "" {
		plist = append(plist, &googlegenai.GoogleAI{APIKey: cfg.GeminiAPIKey})
	}
	if cfg.OpenRouterAPIKey != "" {
		c.openRouterPlugin = &compat_oai.OpenAICompatible{
			Provider: ProviderOpenRouter,
			Opts: []openaiopt.RequestOption{
				openaiopt.WithAPIKey(cfg.OpenRouterAPIKey),
				openaiopt.WithBaseURL(cfg.OpenRouterBase),
			},
		}
		plist = append(plist, c.openRouterPlugin)
	}
	if cfg.UseOllama {
		c.ollamaPlugin = &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		plist = append(plist, c.ollamaPlugin)
	}

	if len(plist) == 0 {
		return nil, ErrNoProvider
	}

	c.genkit = genkit.Init(ctx, genkit.WithPlugins(plist...))
	if c.genkit == nil {
		return nil, fmt.Errorf("initializing genkit")
	}

	// Ollama has no model auto-discovery; register the default chat model.
	if c.ollamaPlugin != nil && cfg.OllamaDefaultModel != "" {
		c.ollamaPlugin.DefineModel(c.genkit, ollama.ModelDefinition{
			Name: cfg.OllamaDefaultModel,
			Type: "chat",
		}, nil)
		c.definedModels[ProviderOllama+"/"+cfg.OllamaDefaultModel] = true
	}

	logger.Info("completion relay initialized",
		"providers", c.configuredProviders(),
		"default_provider", cfg.DefaultProvider,
		"default_model", cfg.DefaultModel)

	return c, nil
}

// Genkit exposes the underlying Genkit instance for embedder lookup by the
// knowledge package.
func (c *Client) Genkit() *genkit.Genkit {
	return c.genkit
}

// configuredProviders lists providers with credentials, in catalog order.
func (c *Client) configuredProviders() []string {
	var out []string
	if c.cfg.OpenAIAPIKey != "" {
		out = append(out, ProviderOpenAI)
	}
	if c.cfg.GeminiAPIKey != "" {
		out = append(out, ProviderGemini)
	}
	if c.cfg.OpenRouterAPIKey != "" {
		out = append(out, ProviderOpenRouter)
	}
	if c.cfg.UseOllama {
		out = append(out, ProviderOllama)
	}
	return out
}

// resolve determines the provider and fully-qualified Genkit model name
// for a request, falling back to configured defaults.
func (c *Client) resolve(req *Request) (provider, model, qualified string, err error) {
	provider = req.Provider
	if provider == "" {
		provider = c.cfg.DefaultProvider
	}

	model = req.Model
	if model == "" {
		if provider == ProviderOllama {
			model = c.cfg.OllamaDefaultModel
		} else {
			model = c.cfg.DefaultModel
		}
	}

	switch provider {
	case ProviderOpenAI:
		if c.cfg.OpenAIAPIKey == "" {
			return "", "", "", fmt.Errorf("%w: openai", ErrNoProvider)
		}
		qualified = "openai/" + model
	case ProviderGemini:
		if c.cfg.GeminiAPIKey == "" {
			return "", "", "", fmt.Errorf("%w: gemini", ErrNoProvider)
		}
		qualified = "googleai/" + model
	case ProviderOpenRouter:
		if c.openRouterPlugin == nil {
			return "", "", "", fmt.Errorf("%w: openrouter", ErrNoProvider)
		}
		if err := c.ensureOpenRouterModel(model); err != nil {
			return "", "", "", err
		}
		qualified = ProviderOpenRouter + "/" + model
	case ProviderOllama:
		if c.ollamaPlugin == nil {
			return "", "", "", fmt.Errorf("%w: ollama", ErrNoProvider)
		}
		c.ensureOllamaModel(model)
		qualified = ProviderOllama + "/" + model
	default:
		return "", "", "", fmt.Errorf("%w: unknown provider %q", ErrValidation, provider)
	}

	return provider, model, qualified, nil
}

// ensureOllamaModel registers an Ollama chat model on first use. The plugin
// requires explicit registration for every model name.
func (c *Client) ensureOllamaModel(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := ProviderOllama + "/" + model
	if c.definedModels[key] {
		return
	}
	c.ollamaPlugin.DefineModel(c.genkit, ollama.ModelDefinition{
		Name: model,
		Type: "chat",
	}, nil)
	c.definedModels[key] = true
}

// ensureOpenRouterModel registers an OpenRouter model on first use.
func (c *Client) ensureOpenRouterModel(model string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := ProviderOpenRouter + "/" + model
	if c.definedModels[key] {
		return nil
	}
	c.openRouterPlugin.DefineModel(ProviderOpenRouter, model, ai.ModelOptions{
		Label: model,
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			SystemRole: true,
		},
	})
	c.definedModels[key] = true
	return nil
}

// buildOptions converts a validated request into Genkit generate options.
func (c *Client) buildOptions(req *Request, qualified string) []ai.GenerateOption {
	var system string
	messages := make([]*ai.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			// Genkit carries the system prompt separately.
			system = m.Content
		case RoleAssistant:
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(m.Content)))
		default:
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(m.Content)))
		}
	}

	temperature := c.cfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := c.cfg.MaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(qualified),
		ai.WithMessages(messages...),
		ai.WithConfig(&ai.GenerationCommonConfig{
			Temperature:     float64(temperature),
			MaxOutputTokens: maxTokens,
		}),
	}
	if system != "" {
		opts = append(opts, ai.WithSystem(system))
	}
	return opts
}

// Complete relays a non-streaming completion request and returns the
// provider's response in OpenAI shape.
func (c *Client) Complete(ctx context.Context, req *Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	provider, model, qualified, err := c.resolve(req)
	if err != nil {
		return nil, err
	}

	opts := c.buildOptions(req, qualified)

	resp, err := c.generateWithRetry(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	return c.buildResponse(resp, provider, model), nil
}

// Stream relays a streaming completion request. Each upstream chunk is
// forwarded to cb in OpenAI chunk shape; the assembled final response is
// returned after the stream ends so callers can persist the transcript.
func (c *Client) Stream(ctx context.Context, req *Request, cb StreamCallback) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	provider, model, qualified, err := c.resolve(req)
	if err != nil {
		return nil, err
	}

	id := newCompletionID()
	opts := c.buildOptions(req, qualified)
	opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
		text := chunk.Text()
		if text == "" {
			return nil
		}
		return cb(newChunk(id, model, text))
	}))

	// Streamed attempts are not retried: chunks may already have reached
	// the client, so a retry would duplicate output.
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	resp, err := genkit.Generate(ctx, c.genkit, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	final := c.buildResponse(resp, provider, model)
	final.ID = id

	if err := cb(newFinalChunk(id, model, final.Choices[0].FinishReason)); err != nil {
		return final, err
	}
	return final, nil
}

// buildResponse shapes a Genkit model response into the OpenAI response
// form. Content and usage always come from the provider; the gateway never
// invents completion data.
func (c *Client) buildResponse(resp *ai.ModelResponse, provider, model string) *Response {
	usage := Usage{}
	if resp.Usage != nil {
		usage.PromptTokens = resp.Usage.InputTokens
		usage.CompletionTokens = resp.Usage.OutputTokens
		usage.TotalTokens = resp.Usage.TotalTokens
	}
	return &Response{
		ID:       newCompletionID(),
		Object:   "chat.completion",
		Created:  time.Now().Unix(),
		Model:    model,
		Provider: provider,
		Choices: []Choice{{
			Message: Message{
				Role:    RoleAssistant,
				Content: resp.Text(),
			},
			FinishReason: finishReason(resp),
		}},
		Usage: usage,
	}
}

// finishReason maps Genkit finish reasons onto OpenAI vocabulary.
func finishReason(resp *ai.ModelResponse) string {
	switch strings.ToLower(string(resp.FinishReason)) {
	case "length":
		return "length"
	case "blocked":
		return "content_filter"
	default:
		return "stop"
	}
}
