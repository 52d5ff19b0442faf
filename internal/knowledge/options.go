package knowledge

import "time"

// Search defaults. The timeout bounds vector search queries so a cold
// index cannot block request handlers indefinitely.
const (
	defaultTopK    = 5
	maxTopK        = 50
	defaultTimeout = 10 * time.Second
)

type searchConfig struct {
	topK    int
	filter  map[string]string
	timeout time.Duration
}

// SearchOption customizes a search.
type SearchOption func(*searchConfig)

// WithTopK sets the maximum number of results. Values outside [1, maxTopK]
// fall back to the default.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k >= 1 && k <= maxTopK {
			c.topK = k
		}
	}
}

// WithFilter restricts results to documents whose metadata contains the
// given key/value pair. May be applied multiple times.
func WithFilter(key, value string) SearchOption {
	return func(c *searchConfig) {
		if c.filter == nil {
			c.filter = make(map[string]string)
		}
		c.filter[key] = value
	}
}

// WithTimeout overrides the search query timeout.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func buildSearchConfig(opts []SearchOption) searchConfig {
	cfg := searchConfig{
		topK:    defaultTopK,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
