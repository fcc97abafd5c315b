package scheduler

import (
	"time"

	"github.com/listingcraft/listingcraft/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	JobTimeout  time.Duration
	// EnabledJobs restricts which jobs run. Empty means all of them.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Minute,
		BatchSize:   100,
		JobTimeout:  30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	out := DefaultConfig()
	if cfg.SchedulerIntervalSecond > 0 {
		out.RunInterval = time.Duration(cfg.SchedulerIntervalSecond) * time.Second
	}
	return out
}
