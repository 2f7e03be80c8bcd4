// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() returns the defaults; Load layers file and env on top of them.
// - Validation runs once at load time so the engine can trust its inputs.
// - Errors are wrapped with this package's sentinel kinds.
package config

import (
	"runtime"

	"github.com/okian/jury/internal/domain/model"
)

// Config contains process configuration for one judging event.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// EventQueueSize bounds the projection event queue.
	EventQueueSize int `koanf:"queue_size" validate:"gte=0"`

	// WorkerCount sets the number of projection workers.
	WorkerCount int `koanf:"worker_count" validate:"gte=0"`

	// DedupeSize bounds the vote request-id cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxRankingsLimit caps GET /rankings?limit.
	MaxRankingsLimit int `koanf:"max_rankings_limit" validate:"gte=1"`

	// UseGroups partitions judges into location ranges.
	UseGroups bool `koanf:"use_groups"`

	// Groups are the location ranges used when UseGroups is set.
	Groups []model.Group `koanf:"groups" validate:"dive"`

	// GroupSwitchAfter rotates a judge to the next group after that many
	// assignments in their current one. 0 disables rotation.
	GroupSwitchAfter int `koanf:"group_switch_after" validate:"gte=0"`

	// JudgingTimerSeconds is the suggested time per project shown to judges.
	JudgingTimerSeconds int `koanf:"judging_timer" validate:"gte=1"`

	// IgnoreClock lets judges receive assignments while the clock is stopped.
	IgnoreClock bool `koanf:"ignore_clock"`

	// MaxRetries bounds optimistic-conflict retries per operation.
	MaxRetries int `koanf:"max_retries" validate:"gte=1,lte=100"`

	// CrowdBT priors and numeric guards.
	MuPrior      float64 `koanf:"mu_prior"`
	SigmaSqPrior float64 `koanf:"sigma_sq_prior" validate:"gt=0"`
	AlphaPrior   float64 `koanf:"alpha_prior" validate:"gt=0"`
	BetaPrior    float64 `koanf:"beta_prior" validate:"gt=0"`
	MaxMuStep    float64 `koanf:"max_mu_step" validate:"gt=0"`
	SigmaFloor   float64 `koanf:"sigma_floor" validate:"gt=0"`

	// StoreLatencyMS simulates storage round trips in the in-memory store.
	StoreLatencyMS int `koanf:"store_latency_ms" validate:"gte=0"`

	// FlagArchivePath enables the SQLite flag archive when non-empty.
	FlagArchivePath string `koanf:"flag_archive_path"`

	// RateLimitRPS and RateLimitBurst bound judge requests; 0 disables limiting.
	RateLimitRPS   float64 `koanf:"rate_limit_rps" validate:"gte=0"`
	RateLimitBurst int     `koanf:"rate_limit_burst" validate:"gte=0"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		EventQueueSize:      10_000,
		WorkerCount:         runtime.NumCPU(),
		DedupeSize:          50_000,
		MaxRankingsLimit:    500,
		UseGroups:           false,
		GroupSwitchAfter:    0,
		JudgingTimerSeconds: 300,
		IgnoreClock:         false,
		MaxRetries:          5,
		MuPrior:             0,
		SigmaSqPrior:        1,
		AlphaPrior:          10,
		BetaPrior:           1,
		MaxMuStep:           10,
		SigmaFloor:          1e-6,
		StoreLatencyMS:      0,
		RateLimitRPS:        5,
		RateLimitBurst:      10,
	}
}

// ActiveGroups returns the configured groups when grouping is enabled, nil otherwise.
func (c *Config) ActiveGroups() []model.Group {
	if !c.UseGroups {
		return nil
	}
	return c.Groups
}
