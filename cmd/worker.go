package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/relaybase/relaybase/db"
	"github.com/relaybase/relaybase/internal/config"
	"github.com/relaybase/relaybase/internal/knowledge"
	"github.com/relaybase/relaybase/internal/llm"
	"github.com/relaybase/relaybase/internal/tasks"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background task worker",
	Long: `The worker consumes the Redis task queue: generic long-running
tasks, document fetch-and-ingest, and background completions. Run it as
a separate process next to the gateway.`,
	RunE: func(*cobra.Command, []string) error {
		return runWorker()
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.UseWorkers {
		return fmt.Errorf("workers module is disabled (set USE_WORKERS=true)")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger(cfg.Environment)
	logger.Info("starting relaybase worker", "version", cfg.Version, "redis", cfg.RedisAddr)

	// Background completions need a relay; document ingestion needs the
	// knowledge store. Both degrade to disabled when unconfigured so the
	// worker still serves generic tasks.
	var completer tasks.Completer
	var relay *llm.Client
	if cfg.HasProviderConfig() {
		relay, err = llm.New(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("creating completion relay: %w", err)
		}
		completer = relay
	} else {
		logger.Warn("no provider configured, chat tasks will fail")
	}

	var ingester tasks.Ingester
	if cfg.UseRAG && relay != nil {
		if err = db.Migrate(cfg.PostgresURL()); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
		if err != nil {
			return fmt.Errorf("creating connection pool: %w", err)
		}
		defer pool.Close()

		embedder, err := knowledge.NewEmbedder(relay.Genkit(), cfg)
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}
		ingester = knowledge.New(pool, embedder, logger)
		logger.Info("document ingestion enabled", "embedder", cfg.EmbedderModel)
	}

	handlers := tasks.NewHandlers(ingester, completer, logger)
	srv, mux := tasks.NewServer(tasks.RedisOpt(cfg), handlers, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(mux)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down worker")
		srv.Shutdown()
		<-errCh
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("worker: %w", err)
		}
		return nil
	}
}
