package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/copyleftdev/annealer/internal/optimization/annealing"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Annealing struct {
		Budget             int     `env:"ASA_BUDGET" envDefault:"10000"`
		TemperatureRepeats int     `env:"ASA_TEMPERATURE_REPEATS" envDefault:"1"`
		RangeRepeats       int     `env:"ASA_RANGE_REPEATS" envDefault:"20"`
		StartTemperature   float64 `env:"ASA_START_TEMPERATURE" envDefault:"10"`
		EndTemperature     float64 `env:"ASA_END_TEMPERATURE" envDefault:"0.01"`
		InitialStep        float64 `env:"ASA_INITIAL_STEP" envDefault:"1"`
	}
	Optimization struct {
		WorkerCount int `env:"OPT_WORKER_COUNT" envDefault:"4"`
		Islands     int `env:"OPT_ISLANDS" envDefault:"1"`
		MaxJobs     int `env:"OPT_MAX_JOBS" envDefault:"100"`

		// Per-job limits on request size
		MaxIslands   int `env:"OPT_MAX_ISLANDS" envDefault:"64"`
		MaxDimension int `env:"OPT_MAX_DIMENSION" envDefault:"1000"`

		// Finished jobs are forgotten after JobTTL
		JobTTL time.Duration `env:"OPT_JOB_TTL" envDefault:"1h"`
	}
}

// Load reads the configuration from the process environment and validates the
// annealing schedule.
func Load() (*Config, error) {
	return load(env.Options{})
}

// Defaults returns the configuration an empty environment would produce.
func Defaults() *Config {
	cfg, err := load(env.Options{Environment: map[string]string{}})
	if err != nil {
		panic(fmt.Sprintf("config: invalid built-in defaults: %v", err))
	}
	return cfg
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{}

	// Parse environment variables
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, err
	}

	// Set default logging level based on environment
	if cfg.Logging.Level == "" {
		if cfg.Environment == "development" {
			cfg.Logging.Level = "debug"
		} else {
			cfg.Logging.Level = "info"
		}
	}

	if _, err := annealing.New(cfg.AnnealingConfig()); err != nil {
		return nil, err
	}

	return cfg, nil
}

// AnnealingConfig returns the default search parameters for new jobs
func (c *Config) AnnealingConfig() annealing.Config {
	return annealing.Config{
		Budget:             c.Annealing.Budget,
		TemperatureRepeats: c.Annealing.TemperatureRepeats,
		RangeRepeats:       c.Annealing.RangeRepeats,
		StartTemperature:   c.Annealing.StartTemperature,
		EndTemperature:     c.Annealing.EndTemperature,
		InitialStep:        c.Annealing.InitialStep,
	}
}
