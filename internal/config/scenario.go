package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario describes groups and timers for the demo executor.
type Scenario struct {
	Duration time.Duration `yaml:"duration"`
	Threads  int           `yaml:"threads"`
	Groups   []GroupSpec   `yaml:"groups"`
}

type GroupSpec struct {
	Name string `yaml:"name"`

	// kept as text so the caller decides how to parse them
	Type          string `yaml:"type"`
	RealTimeClass string `yaml:"real_time_class"`

	Timers []TimerSpec `yaml:"timers"`
}

type TimerSpec struct {
	Name   string        `yaml:"name"`
	Period time.Duration `yaml:"period"`

	// simulated callback duration
	Work time.Duration `yaml:"work"`
}

func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}

	if err := s.validate(); err != nil {
		return nil, err
	}

	return &s, nil
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return ParseScenario(data)
}

func (s *Scenario) validate() error {
	if s.Duration < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidScenario)
	}

	names := make(map[string]struct{}, len(s.Groups))
	for i, g := range s.Groups {
		if g.Name == "" {
			return fmt.Errorf("%w: group %d has no name", ErrInvalidScenario, i)
		}
		if _, dup := names[g.Name]; dup {
			return fmt.Errorf("%w: duplicate group %q", ErrInvalidScenario, g.Name)
		}
		names[g.Name] = struct{}{}

		for _, t := range g.Timers {
			if t.Period <= 0 {
				return fmt.Errorf("%w: timer %q in group %q needs a positive period", ErrInvalidScenario, t.Name, g.Name)
			}
		}
	}

	return nil
}
