package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaybase/relaybase/internal/config"
	"github.com/relaybase/relaybase/internal/log"
)

func TestSetup_DisabledReturnsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.OtelConfig{Enabled: false}, log.NewNop())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetup_EnabledNeverFailsStartup(t *testing.T) {
	// The exporter is lazy; even a bogus endpoint must not block startup.
	shutdown, err := Setup(context.Background(), config.OtelConfig{
		Enabled:     true,
		AgentAddr:   "127.0.0.1:1",
		ServiceName: "relaybase-test",
		Environment: "test",
	}, log.NewNop())
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Shutdown with a canceled context still returns promptly.
	_ = shutdown(ctx)
}
