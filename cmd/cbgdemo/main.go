package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/AnatoleLucet/cbgroup"
	"github.com/AnatoleLucet/cbgroup/internal/config"
)

type env struct {
	LogLevel string `env:"CBGROUP_LOG_LEVEL" envDefault:"info"`
}

const defaultScenario = `
duration: 1s
groups:
  - name: control
    type: mutually_exclusive
    real_time_class: critical
    timers:
      - {name: fast, period: 10ms, work: 2ms}
      - {name: watchdog, period: 50ms}
  - name: telemetry
    type: reentrant
    real_time_class: non_critical
    timers:
      - {name: sample, period: 20ms, work: 5ms}
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	scenarioPath := flag.String("scenario", "", "YAML scenario file (built-in demo if empty)")
	flag.Parse()

	var e env
	if err := config.ParseEnv(&e); err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(e.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	scenario, err := loadScenario(*scenarioPath)
	if err != nil {
		return err
	}

	cfg, err := cbgroup.LoadConfig()
	if err != nil {
		return err
	}
	if scenario.Threads > 0 {
		cfg.Threads = scenario.Threads
	}

	node := cbgroup.NewNode("cbgdemo")
	defer node.Dispose()

	counters := make(map[string]*atomic.Int64)
	for _, spec := range scenario.Groups {
		var typ cbgroup.GroupType
		if err := typ.UnmarshalText([]byte(spec.Type)); err != nil {
			return fmt.Errorf("group %q: %w", spec.Name, err)
		}

		var class cbgroup.RealTimeClass
		if err := class.UnmarshalText([]byte(spec.RealTimeClass)); err != nil {
			return fmt.Errorf("group %q: %w", spec.Name, err)
		}

		g := node.CreateGroup(typ, class)
		for _, t := range spec.Timers {
			name := spec.Name + "/" + t.Name
			count := &atomic.Int64{}
			counters[name] = count

			work := t.Work
			node.CreateTimer(g, t.Period, func() {
				count.Add(1)
				time.Sleep(work)
			})
		}

		log.Info().
			Str("group", spec.Name).
			Stringer("type", typ).
			Stringer("real_time_class", class).
			Int("timers", len(spec.Timers)).
			Msg("group created")
	}

	node.OnError(func(r any) {
		log.Error().Interface("panic", r).Msg("callback failed")
	})

	executor := cbgroup.NewExecutor(cbgroup.WithConfig(cfg), cbgroup.WithLogger(log))
	if err := executor.AddNode(node); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if scenario.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, scenario.Duration)
		defer cancel()
	}

	log.Info().Int("threads", cfg.Threads).Dur("duration", scenario.Duration).Msg("spinning")
	if err := executor.Spin(ctx); err != nil {
		return err
	}

	for name, count := range counters {
		log.Info().Str("timer", name).Int64("fired", count.Load()).Msg("done")
	}
	log.Info().Uint64("passes", executor.Passes()).Msg("executor stopped")

	return nil
}

func loadScenario(path string) (*config.Scenario, error) {
	if path == "" {
		return config.ParseScenario([]byte(defaultScenario))
	}

	return config.LoadScenario(path)
}
