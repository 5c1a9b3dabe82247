package scheduler

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hamed0406/checkqueue/internal/metrics"
)

const (
	DefaultPullInterval    = 100 * time.Millisecond
	DefaultServiceInterval = 100 * time.Millisecond
)

type Config struct {
	Limits
	PullInterval    time.Duration
	ServiceInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Limits: Limits{
			CheckingLimit: DefaultCheckingLimit,
			IPLimit:       DefaultIPLimit,
		},
		PullInterval:    DefaultPullInterval,
		ServiceInterval: DefaultServiceInterval,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CheckingLimit <= 0 {
		c.CheckingLimit = d.CheckingLimit
	}
	if c.IPLimit <= 0 {
		c.IPLimit = d.IPLimit
	}
	if c.PullInterval <= 0 {
		c.PullInterval = d.PullInterval
	}
	if c.ServiceInterval <= 0 {
		c.ServiceInterval = d.ServiceInterval
	}
	return c
}

type Option func(*Engine)

// WithClock replaces the wall clock driving both ticks.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = m }
}
