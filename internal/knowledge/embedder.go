package knowledge

import (
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"

	"github.com/relaybase/relaybase/internal/config"
)

// NewEmbedder resolves an embedder from the configured providers.
// Preference order: Gemini, OpenAI, then the local runner. Gemini comes
// first because its default embedder matches the migrated vector width
// without extra configuration.
func NewEmbedder(g *genkit.Genkit, cfg *config.Config) (ai.Embedder, error) {
	switch {
	case cfg.GeminiAPIKey != "":
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel), nil
	case cfg.OpenAIAPIKey != "":
		// OpenAI auto-registers embedders in Init()
		embedder := genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
		if embedder == nil {
			return nil, fmt.Errorf("unknown openai embedder %q", cfg.EmbedderModel)
		}
		return embedder, nil
	case cfg.UseOllama:
		// Ollama embedder is keyed by server address
		return ollama.Embedder(g, cfg.OllamaHost), nil
	default:
		return nil, fmt.Errorf("no embedding provider configured")
	}
}
