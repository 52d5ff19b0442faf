// Package observability provides OpenTelemetry integration for
// distributed tracing.
//
// Spans are exported over OTLP/HTTP to a local collector or agent
// (default localhost:4318). The local agent owns authentication,
// buffering, and forwarding; the application never carries vendor
// credentials.
package observability

import (
	"context"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/relaybase/relaybase/internal/config"
	"github.com/relaybase/relaybase/internal/log"
)

// DefaultAgentAddr is the default OTLP HTTP endpoint.
const DefaultAgentAddr = "localhost:4318"

// Setup registers an OTLP exporter with Genkit's TracerProvider, so the
// relay's model-call spans and our own spans share one pipeline.
//
// Returns a shutdown function that flushes pending spans. A missing or
// unreachable collector disables tracing with a warning; it never blocks
// startup.
func Setup(ctx context.Context, cfg config.OtelConfig, logger log.Logger) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return noop, nil
	}

	agentAddr := cfg.AgentAddr
	if agentAddr == "" {
		agentAddr = DefaultAgentAddr
	}

	// Genkit's TracerProvider reads service identity from the standard
	// OTEL environment variables.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(agentAddr),
		otlptracehttp.WithInsecure(), // local agent, no TLS
	)
	if err != nil {
		logger.Warn("failed to create trace exporter, tracing disabled", "error", err)
		return noop, nil
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("tracing enabled",
		"agent", agentAddr,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	return tracing.TracerProvider().Shutdown, nil
}
