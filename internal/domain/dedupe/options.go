package dedupe

type config struct {
	maxSize int
}

// Option applies a configuration option to the in-memory deduper.
type Option func(*config)

// WithMaxSize sets the maximum number of keys to keep in memory.
// If maxSize > 0: bounded mode, the oldest key is evicted first.
// If maxSize <= 0: unbounded mode (no eviction, no size limit).
func WithMaxSize(maxSize int) Option {
	return func(c *config) {
		c.maxSize = maxSize
	}
}
