package config

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. HTTP server validation
	if c.ListenAddr == "" || !strings.Contains(c.ListenAddr, ":") {
		return fmt.Errorf("%w: %q must be host:port or :port", ErrInvalidListenAddr, c.ListenAddr)
	}

	// 2. Completion defaults validation
	// Temperature range: 0.0 (deterministic) to 2.0 (maximum creativity)
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	// MaxTokens upper bound matches the per-request cap enforced by the gateway.
	if c.MaxTokens < 1 || c.MaxTokens > 4000 {
		return fmt.Errorf("%w: must be between 1 and 4000, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	// 3. Auth validation: something must be able to verify tokens.
	if c.IdentityJWTSecret == "" && c.JWTSecret == "" {
		return fmt.Errorf("%w: set IDENTITY_JWT_SECRET or JWT_SECRET", ErrMissingJWTSecret)
	}

	// 4. PostgreSQL configuration validation
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "relaybase_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password for production deployments")
	}

	// Modern SSL modes only - exclude deprecated allow/prefer (MITM vulnerable)
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	// 5. Module-dependent validation
	if c.UseWorkers && c.RedisAddr == "" {
		return fmt.Errorf("%w: redis_addr required when use_workers is enabled", ErrInvalidRedisAddr)
	}

	if c.UseOllama && c.OllamaHost == "" {
		return fmt.Errorf("%w: ollama_host required when use_ollama is enabled", ErrInvalidOllamaHost)
	}

	if c.UseRAG && c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model required when use_rag is enabled", ErrInvalidEmbedderModel)
	}

	return nil
}

// ValidateServe performs the additional checks required by serve mode.
// A gateway with nothing to relay to is a misconfiguration; fail at startup
// rather than answering every chat request with 503.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if !c.HasProviderConfig() {
		return fmt.Errorf("%w: set OPENAI_API_KEY, GEMINI_API_KEY, OPENROUTER_API_KEY, or enable use_ollama", ErrNoProvider)
	}
	return nil
}
