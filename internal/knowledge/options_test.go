package knowledge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildSearchConfig_Defaults(t *testing.T) {
	cfg := buildSearchConfig(nil)
	assert.Equal(t, defaultTopK, cfg.topK)
	assert.Equal(t, defaultTimeout, cfg.timeout)
	assert.Nil(t, cfg.filter)
}

func TestWithTopK(t *testing.T) {
	tests := []struct {
		name string
		k    int
		want int
	}{
		{"valid", 10, 10},
		{"zero falls back", 0, defaultTopK},
		{"negative falls back", -1, defaultTopK},
		{"above max falls back", maxTopK + 1, defaultTopK},
		{"at max accepted", maxTopK, maxTopK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := buildSearchConfig([]SearchOption{WithTopK(tt.k)})
			assert.Equal(t, tt.want, cfg.topK)
		})
	}
}

func TestWithFilter_Accumulates(t *testing.T) {
	cfg := buildSearchConfig([]SearchOption{
		WithFilter("source", "handbook"),
		WithFilter("lang", "en"),
	})
	assert.Equal(t, map[string]string{"source": "handbook", "lang": "en"}, cfg.filter)
}

func TestWithTimeout(t *testing.T) {
	cfg := buildSearchConfig([]SearchOption{WithTimeout(2 * time.Second)})
	assert.Equal(t, 2*time.Second, cfg.timeout)

	cfg = buildSearchConfig([]SearchOption{WithTimeout(0)})
	assert.Equal(t, defaultTimeout, cfg.timeout, "non-positive timeout ignored")
}
