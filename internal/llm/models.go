package llm

// Static per-provider model catalog. The gateway advertises only the
// providers that hold credentials; model lists are curated rather than
// fetched because hosted catalogs are large and mostly irrelevant to an
// app template.
var catalog = map[string][]ModelInfo{
	ProviderOpenAI: {
		{ID: "gpt-4o", Provider: ProviderOpenAI, Name: "GPT-4o"},
		{ID: "gpt-4o-mini", Provider: ProviderOpenAI, Name: "GPT-4o mini"},
		{ID: "gpt-4.1", Provider: ProviderOpenAI, Name: "GPT-4.1"},
		{ID: "gpt-4.1-mini", Provider: ProviderOpenAI, Name: "GPT-4.1 mini"},
	},
	ProviderGemini: {
		{ID: "gemini-2.5-flash", Provider: ProviderGemini, Name: "Gemini 2.5 Flash"},
		{ID: "gemini-2.5-pro", Provider: ProviderGemini, Name: "Gemini 2.5 Pro"},
		{ID: "gemini-2.0-flash", Provider: ProviderGemini, Name: "Gemini 2.0 Flash"},
	},
	ProviderOpenRouter: {
		{ID: "anthropic/claude-sonnet-4", Provider: ProviderOpenRouter, Name: "Claude Sonnet 4"},
		{ID: "anthropic/claude-3.5-haiku", Provider: ProviderOpenRouter, Name: "Claude 3.5 Haiku"},
		{ID: "meta-llama/llama-3.3-70b-instruct", Provider: ProviderOpenRouter, Name: "Llama 3.3 70B"},
	},
}

// ListModels returns the models advertised by configured providers. The
// Ollama entry reflects the locally configured default model since local
// availability cannot be known without asking the runner.
func (c *Client) ListModels() []ModelInfo {
	var out []ModelInfo
	for _, provider := range c.configuredProviders() {
		if provider == ProviderOllama {
			out = append(out, ModelInfo{
				ID:       c.cfg.OllamaDefaultModel,
				Provider: ProviderOllama,
				Name:     c.cfg.OllamaDefaultModel + " (local)",
			})
			continue
		}
		out = append(out, catalog[provider]...)
	}
	return out
}
