package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/relaybase/relaybase/db"
	"github.com/relaybase/relaybase/internal/api"
	"github.com/relaybase/relaybase/internal/auth"
	"github.com/relaybase/relaybase/internal/config"
	"github.com/relaybase/relaybase/internal/history"
	"github.com/relaybase/relaybase/internal/knowledge"
	"github.com/relaybase/relaybase/internal/llm"
	"github.com/relaybase/relaybase/internal/log"
	"github.com/relaybase/relaybase/internal/observability"
	"github.com/relaybase/relaybase/internal/ollama"
	"github.com/relaybase/relaybase/internal/tasks"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 5 * time.Minute // SSE relays and model pulls need a long window
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API gateway",
	RunE: func(*cobra.Command, []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (host:port, overrides config)")
	rootCmd.AddCommand(serveCmd)
}

// runServe initializes every enabled module and starts the HTTP server.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.ListenAddr
	}
	if err = validateAddr(addr); err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger(cfg.Environment)
	logger.Info("starting relaybase gateway", "version", cfg.Version, "environment", cfg.Environment)

	shutdownTracing, err := observability.Setup(ctx, cfg.Otel, logger)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	if err = db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("creating connection pool: %w", err)
	}
	defer pool.Close()
	if err = pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	verifier, err := auth.NewVerifier(auth.Config{
		IdentitySecret: cfg.IdentityJWTSecret,
		LocalSecret:    cfg.JWTSecret,
	})
	if err != nil {
		return fmt.Errorf("creating token verifier: %w", err)
	}

	relay, err := llm.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating completion relay: %w", err)
	}

	serverCfg := api.ServerConfig{
		Logger:   logger,
		Config:   cfg,
		Verifier: verifier,
		Relay:    relay,
		History:  history.New(pool, logger),
		Pool:     pool,
	}

	if cfg.UseRAG {
		embedder, err := knowledge.NewEmbedder(relay.Genkit(), cfg)
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}
		serverCfg.Knowledge = knowledge.New(pool, embedder, logger)
		logger.Info("rag module enabled", "embedder", cfg.EmbedderModel)
	}

	if cfg.UseWorkers {
		queue := tasks.NewClient(tasks.RedisOpt(cfg), logger)
		defer func() {
			if err := queue.Close(); err != nil {
				logger.Warn("failed to close task queue client", "error", err)
			}
		}()
		serverCfg.Tasks = queue
		logger.Info("workers module enabled", "redis", cfg.RedisAddr)
	}

	if cfg.UseOllama {
		serverCfg.Runner = ollama.New(cfg.OllamaHost, logger)
		logger.Info("ollama module enabled", "host", cfg.OllamaHost)
	}

	apiServer, err := api.NewServer(serverCfg)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", addr,
		"api", "/api/v1/*",
		"health", "/health, /ready, /live",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return shutdownServer(srv, errCh, logger)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}

// shutdownServer drains in-flight requests before returning.
func shutdownServer(srv *http.Server, errCh <-chan error, logger log.Logger) error {
	logger.Info("shutting down HTTP server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	<-errCh
	return nil
}
