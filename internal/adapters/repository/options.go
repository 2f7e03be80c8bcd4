package repository

import "time"

// Option applies a configuration option to the MemStore.
type Option func(*MemStore)

// WithLatency simulates a storage round trip on every call.
func WithLatency(d time.Duration) Option {
	return func(s *MemStore) {
		if d > 0 {
			s.latency = d
		}
	}
}

// WithIDGenerator overrides how ids are assigned to records created without one.
func WithIDGenerator(gen func() string) Option {
	return func(s *MemStore) {
		if gen != nil {
			s.newID = gen
		}
	}
}
