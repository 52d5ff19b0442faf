// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.relaybase/config.yaml or ./config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - Providers: API keys and base URLs for hosted completion providers
//   - Auth: identity-provider JWT settings (see auth fields)
//   - Storage: PostgreSQL connection (see storage.go)
//   - Modules: feature toggles for workers, RAG, and the local model runner
//   - Observability: OTLP trace exporting (see observability.go)
//
// Security: Sensitive data (passwords, API keys, JWT secrets) is never logged;
// config directory uses 0750 permissions.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidListenAddr indicates the listen address is invalid.
	ErrInvalidListenAddr = errors.New("invalid listen address")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidRedisAddr indicates the Redis address is invalid.
	ErrInvalidRedisAddr = errors.New("invalid Redis address")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrMissingJWTSecret indicates no JWT verification secret is configured.
	ErrMissingJWTSecret = errors.New("missing JWT secret")

	// ErrNoProvider indicates no completion provider is configured.
	ErrNoProvider = errors.New("no completion provider configured")
)

// Provider identifiers used in Config.DefaultProvider and llm.Request.Provider.
const (
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

// DefaultEmbedderDimension is the vector width the documents table is
// migrated with; see the knowledge package.
const DefaultEmbedderDimension = 768

// DefaultRateBurst is the per-IP token bucket capacity applied when
// rate_burst is unset; the API server falls back to it for configs
// built without Load.
const DefaultRateBurst = 20

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// Application identity
	AppName     string `mapstructure:"app_name" json:"app_name"`
	Version     string `mapstructure:"version" json:"version"`
	Environment string `mapstructure:"environment" json:"environment"` // "development", "production"

	// HTTP server
	ListenAddr  string   `mapstructure:"listen_addr" json:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"` // Trust X-Real-IP/X-Forwarded-For (set true behind reverse proxy)
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`

	// Completion provider credentials. A provider is "configured" when its
	// key is non-empty; see HasProviderConfig.
	OpenAIAPIKey     string `mapstructure:"openai_api_key" json:"openai_api_key"`         // SENSITIVE: masked in MarshalJSON
	GeminiAPIKey     string `mapstructure:"gemini_api_key" json:"gemini_api_key"`         // SENSITIVE: masked in MarshalJSON
	OpenRouterAPIKey string `mapstructure:"openrouter_api_key" json:"openrouter_api_key"` // SENSITIVE: masked in MarshalJSON
	OpenRouterBase   string `mapstructure:"openrouter_base" json:"openrouter_base"`

	// Completion defaults
	DefaultProvider string  `mapstructure:"default_provider" json:"default_provider"`
	DefaultModel    string  `mapstructure:"default_model" json:"default_model"`
	Temperature     float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens       int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Identity provider (token verification)
	IdentityURL       string `mapstructure:"identity_url" json:"identity_url"`
	IdentityAnonKey   string `mapstructure:"identity_anon_key" json:"identity_anon_key"`
	IdentityJWTSecret string `mapstructure:"identity_jwt_secret" json:"identity_jwt_secret"` // SENSITIVE: masked in MarshalJSON
	JWTSecret         string `mapstructure:"jwt_secret" json:"jwt_secret"`                   // SENSITIVE: masked in MarshalJSON

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Task queue (workers module)
	RedisAddr     string `mapstructure:"redis_addr" json:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" json:"redis_password"` // SENSITIVE: masked in MarshalJSON
	RedisDB       int    `mapstructure:"redis_db" json:"redis_db"`

	// Module toggles. Disabled modules register no routes.
	UseWorkers bool `mapstructure:"use_workers" json:"use_workers"`
	UseRAG     bool `mapstructure:"use_rag" json:"use_rag"`
	UseOllama  bool `mapstructure:"use_ollama" json:"use_ollama"`

	// Local model runner (only used when use_ollama is true)
	OllamaHost         string `mapstructure:"ollama_host" json:"ollama_host"`
	OllamaDefaultModel string `mapstructure:"ollama_default_model" json:"ollama_default_model"`

	// RAG configuration
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Observability configuration (see observability.go)
	Otel OtelConfig `mapstructure:"otel" json:"otel"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	// Configuration directory: ~/.relaybase/
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".relaybase")

	// Ensure directory exists (use 0750 permission for better security)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	// Configure Viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	// Set default values
	setDefaults()

	// Bind environment variables
	bindEnvVariables()

	// Read configuration file (if exists)
	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	// Use Unmarshal to automatically map to struct (type-safe)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Parse DATABASE_URL and REDIS_URL if set (highest priority overrides)
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}
	if err := cfg.parseRedisURL(); err != nil {
		return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}

	// CRITICAL: Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// Application defaults
	viper.SetDefault("app_name", "relaybase")
	viper.SetDefault("version", "dev")
	viper.SetDefault("environment", "development")

	// HTTP server defaults
	viper.SetDefault("listen_addr", ":8000")
	viper.SetDefault("cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_burst", DefaultRateBurst)

	// Completion defaults
	viper.SetDefault("default_provider", ProviderOpenAI)
	viper.SetDefault("default_model", "gpt-4o-mini")
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_tokens", 1024)
	viper.SetDefault("openrouter_base", "https://openrouter.ai/api/v1")

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "relaybase")
	viper.SetDefault("postgres_password", "relaybase_dev_password")
	viper.SetDefault("postgres_db_name", "relaybase")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Redis defaults
	viper.SetDefault("redis_addr", "localhost:6379")
	viper.SetDefault("redis_db", 0)

	// Module toggles (everything optional off by default)
	viper.SetDefault("use_workers", false)
	viper.SetDefault("use_rag", false)
	viper.SetDefault("use_ollama", false)

	// Ollama defaults
	viper.SetDefault("ollama_host", "http://localhost:11434")
	viper.SetDefault("ollama_default_model", "llama3.2")

	// RAG defaults
	viper.SetDefault("embedder_model", "text-embedding-004")

	// Observability defaults
	viper.SetDefault("otel.agent_addr", "localhost:4318")
	viper.SetDefault("otel.service_name", "relaybase")
	viper.SetDefault("otel.environment", "dev")
	viper.SetDefault("otel.enabled", false)
}

// bindEnvVariables binds environment variables explicitly.
// Secrets only arrive via the environment, never via config.yaml committed
// to a repo by accident; the non-secret bindings keep container deployments
// configurable without a file.
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail)
	// If this panics, it's a BUG in our code, not a runtime error
	mustBind := func(key string, envVars ...string) {
		if err := viper.BindEnv(append([]string{key}, envVars...)...); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q: %v", key, err))
		}
	}

	// Provider credentials
	mustBind("openai_api_key", "OPENAI_API_KEY")
	mustBind("gemini_api_key", "GEMINI_API_KEY")
	mustBind("openrouter_api_key", "OPENROUTER_API_KEY")
	mustBind("openrouter_base", "OPENROUTER_BASE_URL")

	// Identity provider / JWT
	mustBind("identity_url", "IDENTITY_URL", "SUPABASE_URL")
	mustBind("identity_anon_key", "IDENTITY_ANON_KEY", "SUPABASE_ANON_KEY")
	mustBind("identity_jwt_secret", "IDENTITY_JWT_SECRET", "SUPABASE_JWT_SECRET")
	mustBind("jwt_secret", "JWT_SECRET")

	// Storage secrets
	mustBind("postgres_password", "POSTGRES_PASSWORD")
	mustBind("redis_password", "REDIS_PASSWORD")

	// Server overrides
	mustBind("listen_addr", "RELAYBASE_LISTEN_ADDR")
	mustBind("cors_origins", "RELAYBASE_CORS_ORIGINS")
	mustBind("trust_proxy", "RELAYBASE_TRUST_PROXY")
	mustBind("environment", "RELAYBASE_ENVIRONMENT")

	// Completion overrides
	mustBind("default_provider", "RELAYBASE_DEFAULT_PROVIDER")
	mustBind("default_model", "RELAYBASE_DEFAULT_MODEL")

	// Module toggles
	mustBind("use_workers", "USE_WORKERS")
	mustBind("use_rag", "USE_RAG")
	mustBind("use_ollama", "USE_OLLAMA")

	// Ollama
	mustBind("ollama_host", "OLLAMA_HOST")
	mustBind("ollama_default_model", "OLLAMA_DEFAULT_MODEL")

	// Observability
	mustBind("otel.agent_addr", "OTEL_AGENT_ADDR")
	mustBind("otel.enabled", "OTEL_ENABLED")

	// NOTE: DATABASE_URL and REDIS_URL are parsed separately in Load()
	// because they expand into multiple fields.
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks (U+2588) avoid substring matching against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Shows first 2 and last 2 characters, masks the rest.
// SECURITY: For secrets <=8 chars, fully masks to prevent substring attacks.
//
// THREAT MODEL: This defends against accidental logging of real secrets.
// It is NOT cryptographically secure - if logs are compromised, rotate secrets.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	// Rune slicing keeps multibyte secrets valid UTF-8 in log output.
	runes := []rune(s)
	if len(runes) <= 8 {
		return maskedValue
	}
	return string(runes[:2]) + "<" + maskedValue + ">" + string(runes[len(runes)-2:])
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - OpenAIAPIKey, GeminiAPIKey, OpenRouterAPIKey
//   - IdentityJWTSecret, JWTSecret
//   - PostgresPassword, RedisPassword
//
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.OpenAIAPIKey = maskSecret(a.OpenAIAPIKey)
	a.GeminiAPIKey = maskSecret(a.GeminiAPIKey)
	a.OpenRouterAPIKey = maskSecret(a.OpenRouterAPIKey)
	a.IdentityJWTSecret = maskSecret(a.IdentityJWTSecret)
	a.JWTSecret = maskSecret(a.JWTSecret)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.RedisPassword = maskSecret(a.RedisPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// HasProviderConfig reports whether at least one hosted completion provider
// has a credential, or the local model runner is enabled. Chat routes return
// 503 when this is false.
func (c *Config) HasProviderConfig() bool {
	return c.OpenAIAPIKey != "" ||
		c.GeminiAPIKey != "" ||
		c.OpenRouterAPIKey != "" ||
		c.UseOllama
}

// HasIdentityProvider reports whether an external identity provider is
// configured for token verification.
func (c *Config) HasIdentityProvider() bool {
	return c.IdentityURL != "" && c.IdentityJWTSecret != ""
}
