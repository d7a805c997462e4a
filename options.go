package cbgroup

import (
	"time"

	"github.com/rs/zerolog"
)

type Option func(*Executor)

// WithConfig applies every field of cfg, zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(e *Executor) {
		cfg = cfg.withDefaults()
		e.threads = cfg.Threads
		e.pollInterval = cfg.PollInterval
	}
}

// WithThreads bounds how many callbacks may run at once.
func WithThreads(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.threads = n
		}
	}
}

// WithPollInterval sets how long Spin sleeps after an idle pass.
func WithPollInterval(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(e *Executor) {
		e.log = log
	}
}
