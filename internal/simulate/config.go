// Package simulate drives the judging engine with synthetic judges and
// checks that the resulting ranking tracks the hidden project quality.
package simulate

import (
	"errors"
	"time"
)

// ErrInvalidConfig is returned for out-of-range simulation settings.
var ErrInvalidConfig = errors.New("invalid simulation config")

// Config holds configuration for one simulated judging event.
type Config struct {
	Projects     int           // Number of projects
	Judges       int           // Number of concurrent judges
	Groups       int           // Location groups; 0 or 1 disables grouping
	GroupSwitch  int           // Rotate judges to the next group after this many projects; 0 disables
	Accuracy     float64       // Probability a judge picks the truly better project
	SkipRate     float64       // Probability a judge skips an assignment
	BusyRate     float64       // Probability a judge finds a project busy
	FlagRate     float64       // Probability a judge flags a project
	MaxActions   int           // Per-judge action cap; 0 means until exhaustion
	StoreLatency time.Duration // Simulated store round trip
	Seed         uint64        // Seed for project quality and judge behaviour
	TopN         int           // Rankings to compare against the hidden order
	Verbose      bool          // Log every judge action
}

// DefaultConfig returns a small event that finishes quickly.
func DefaultConfig() Config {
	return Config{
		Projects: 40,
		Judges:   10,
		Accuracy: 0.9,
		SkipRate: 0.02,
		BusyRate: 0.02,
		FlagRate: 0.005,
		Seed:     1,
		TopN:     10,
	}
}

func (c Config) validate() error {
	switch {
	case c.Projects < 2:
		return errors.Join(ErrInvalidConfig, errors.New("need at least two projects"))
	case c.Judges < 1:
		return errors.Join(ErrInvalidConfig, errors.New("need at least one judge"))
	case c.Groups < 0 || c.Groups > c.Projects:
		return errors.Join(ErrInvalidConfig, errors.New("groups must be between 0 and the project count"))
	case c.GroupSwitch < 0:
		return errors.Join(ErrInvalidConfig, errors.New("group switch must not be negative"))
	case c.Accuracy < 0 || c.Accuracy > 1:
		return errors.Join(ErrInvalidConfig, errors.New("accuracy must be within [0,1]"))
	case c.SkipRate < 0 || c.BusyRate < 0 || c.FlagRate < 0 || c.SkipRate+c.BusyRate+c.FlagRate > 1:
		return errors.Join(ErrInvalidConfig, errors.New("action rates must be non-negative and sum to at most 1"))
	}
	return nil
}

// Stats counts what the simulated judges did.
type Stats struct {
	Assignments int
	Votes       int
	Advances    int
	Skips       int
	Busy        int
	Flags       int
	Errors      int
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
}

func (s *Stats) add(o Stats) {
	s.Assignments += o.Assignments
	s.Votes += o.Votes
	s.Advances += o.Advances
	s.Skips += o.Skips
	s.Busy += o.Busy
	s.Flags += o.Flags
	s.Errors += o.Errors
}

// Report is the outcome of a simulation run.
type Report struct {
	Stats Stats

	// Spearman is the rank correlation between hidden quality and mu over
	// active projects. 1 is a perfect recovery.
	Spearman float64
	// TopOverlap is the share of the true top N found in the ranked top N.
	TopOverlap float64
	// Violations lists broken engine invariants; empty on a healthy run.
	Violations []string
}
