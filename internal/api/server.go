package api

import (
	"errors"
	"net/http"

	"github.com/relaybase/relaybase/internal/config"
	"github.com/relaybase/relaybase/internal/log"
)

// ServerConfig contains the dependencies for the API server. Optional
// modules stay nil when disabled; their routes are then not registered.
type ServerConfig struct {
	Logger    log.Logger
	Config    *config.Config // Required
	Verifier  tokenVerifier  // Required
	Relay     relayClient    // Required
	History   historyStore   // Required
	Pool      pinger         // Optional: nil skips the database readiness check
	Knowledge knowledgeStore // Optional: enables the rag route group
	Tasks     taskQueue      // Optional: enables the tasks route group
	Runner    modelRunner    // Optional: enables the ollama route group
}

// Server is the gateway HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("token verifier is required")
	}
	if cfg.Relay == nil {
		return nil, errors.New("relay client is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Config{})
	}

	ah := &authHandler{
		verifier:        cfg.Verifier,
		identityURL:     cfg.Config.IdentityURL,
		identityAnonKey: cfg.Config.IdentityAnonKey,
		logger:          logger,
	}
	ch := &chatHandler{relay: cfg.Relay, history: cfg.History, logger: logger}
	hh := &chatsHandler{store: cfg.History, logger: logger}
	mh := &modelsHandler{relay: cfg.Relay, logger: logger}

	mux := http.NewServeMux()

	// Auth
	mux.HandleFunc("POST /api/v1/auth/verify", ah.verify)
	mux.HandleFunc("GET /api/v1/auth/me", ah.me)
	mux.HandleFunc("GET /api/v1/auth/config", ah.config)

	// Completion relay
	mux.HandleFunc("POST /api/v1/chat", ch.send)
	mux.HandleFunc("POST /api/v1/chat/stream", ch.stream)
	mux.HandleFunc("GET /api/v1/models", mh.list)

	// Conversation history
	mux.HandleFunc("GET /api/v1/chats", hh.list)
	mux.HandleFunc("GET /api/v1/chats/stats", hh.stats)
	mux.HandleFunc("GET /api/v1/chats/{id}/messages", hh.messages)
	mux.HandleFunc("DELETE /api/v1/chats/{id}", hh.delete)

	// Background tasks (optional)
	if cfg.Tasks != nil {
		th := &tasksHandler{queue: cfg.Tasks, logger: logger}
		mux.HandleFunc("POST /api/v1/tasks", th.submit)
		mux.HandleFunc("POST /api/v1/tasks/document", th.submitDocument)
		mux.HandleFunc("GET /api/v1/tasks/health", th.health)
		mux.HandleFunc("GET /api/v1/tasks/{id}", th.status)
	}

	// RAG store (optional)
	if cfg.Knowledge != nil {
		rh := &ragHandler{store: cfg.Knowledge, logger: logger}
		mux.HandleFunc("POST /api/v1/rag/ingest", rh.ingest)
		mux.HandleFunc("POST /api/v1/rag/search", rh.search)
		mux.HandleFunc("GET /api/v1/rag/collections", rh.collections)
		mux.HandleFunc("GET /api/v1/rag/collections/{name}", rh.collection)
		mux.HandleFunc("DELETE /api/v1/rag/documents", rh.deleteDocuments)
		mux.HandleFunc("GET /api/v1/rag/health", rh.health)
	}

	// Local model runner (optional)
	if cfg.Runner != nil {
		oh := &ollamaHandler{runner: cfg.Runner, logger: logger}
		// Chat against local models reuses the relay with the provider
		// pinned, so history and SSE framing behave identically.
		och := &chatHandler{
			relay:           cfg.Relay,
			history:         cfg.History,
			defaultProvider: config.ProviderOllama,
			logger:          logger,
		}
		mux.HandleFunc("POST /api/v1/ollama/chat", och.send)
		mux.HandleFunc("POST /api/v1/ollama/chat/stream", och.stream)
		mux.HandleFunc("GET /api/v1/ollama/models", oh.models)
		mux.HandleFunc("POST /api/v1/ollama/models/pull", oh.pull)
		mux.HandleFunc("DELETE /api/v1/ollama/models/{name}", oh.deleteModel)
		mux.HandleFunc("POST /api/v1/ollama/embeddings", oh.embeddings)
		mux.HandleFunc("GET /api/v1/ollama/health", oh.health)
	}

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.Config.RateBurst
	if burst <= 0 {
		burst = config.DefaultRateBurst
	}
	rl := newRateLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Auth → Routes
	// RequestID must be before Logging so request_id is available in log
	// attributes. CORS must be before RateLimit so preflight OPTIONS gets
	// proper CORS headers.
	var handler http.Handler = mux
	handler = authMiddleware(cfg.Verifier, logger)(handler)
	handler = rateLimitMiddleware(rl, cfg.Config.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.Config.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	isDev := cfg.Config.Environment != "production"
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, isDev)
		handler.ServeHTTP(w, r)
	})

	health := &healthHandler{
		pool:        cfg.Pool,
		version:     cfg.Config.Version,
		environment: cfg.Config.Environment,
		modules: map[string]bool{
			"workers": cfg.Tasks != nil,
			"rag":     cfg.Knowledge != nil,
			"ollama":  cfg.Runner != nil,
		},
		logger: logger,
	}

	// Top-level mux keeps health probes outside the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health.health)
	topMux.HandleFunc("GET /ready", health.readiness)
	topMux.HandleFunc("GET /live", health.live)
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
