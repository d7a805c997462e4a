package cbgroup

import (
	"time"

	"github.com/AnatoleLucet/cbgroup/internal/config"
)

const (
	defaultThreads      = 1
	defaultPollInterval = time.Millisecond
)

// Config configures an Executor.
type Config struct {
	// Maximum number of callbacks running at once (default: 1)
	Threads int `env:"CBGROUP_EXECUTOR_THREADS" envDefault:"1"`

	// Sleep between passes that found nothing to run (default: 1ms)
	PollInterval time.Duration `env:"CBGROUP_EXECUTOR_POLL_INTERVAL" envDefault:"1ms"`
}

// LoadConfig reads the executor configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	if c.Threads <= 0 {
		c.Threads = defaultThreads
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	return c
}
