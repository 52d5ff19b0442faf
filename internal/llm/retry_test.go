package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"rate limit", errors.New("Rate Limit exceeded"), true},
		{"quota", errors.New("quota exceeded for project"), true},
		{"http 429", errors.New("unexpected status 429"), true},
		{"server 500", errors.New("internal error: 500"), true},
		{"bad gateway 502", errors.New("received 502 from upstream"), true},
		{"unavailable", errors.New("service Unavailable"), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"timeout", errors.New("context deadline exceeded (Client.Timeout)"), true},
		{"invalid api key", errors.New("invalid API key"), false},
		{"bad request", errors.New("400 invalid request body"), false},
		{"model not found", errors.New("model does not exist"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryableError(tt.err))
		})
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Greater(t, cfg.MaxInterval, cfg.InitialInterval)
}
