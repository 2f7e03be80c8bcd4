package assignment

import (
	"time"

	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/pkg/logger"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithGroups partitions judges into location ranges. A nil or empty slice
// disables grouping.
func WithGroups(groups []model.Group) Option {
	return func(s *Scheduler) {
		s.groups = groups
	}
}

// WithGroupRotation moves a judge to the next unvisited group after n
// assignments in their current one, and lets an exhausted group hand over to
// the others. n <= 0 or fewer than two groups disables rotation.
func WithGroupRotation(n int) Option {
	return func(s *Scheduler) {
		s.groupSwitch = n
	}
}

// WithIgnoreClock lets judges receive assignments while the clock is stopped.
func WithIgnoreClock(ignore bool) Option {
	return func(s *Scheduler) {
		s.ignoreClock = ignore
	}
}

// WithMaxRetries bounds retries after optimistic write conflicts.
func WithMaxRetries(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithNow replaces the activity timestamp source.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}
