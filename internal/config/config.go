// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Addr string `env:"LADLE_ADDR" envDefault:":8000"`

	// Driver selects the participant store: "sqlite" or "postgres".
	Driver string `env:"LADLE_DB_DRIVER" envDefault:"sqlite"`
	DSN    string `env:"LADLE_DB_DSN"    envDefault:"data/survey.db"`

	DataDir     string `env:"LADLE_DATA_DIR"     envDefault:"data/responses"`
	RecipesPath string `env:"LADLE_RECIPES_PATH" envDefault:"data/recipes.csv"`
	StaticDir   string `env:"LADLE_STATIC_DIR"   envDefault:"static"`

	SessionTimeout  time.Duration `env:"LADLE_SESSION_TIMEOUT"    envDefault:"60m"`
	MinResponseTime time.Duration `env:"LADLE_MIN_RESPONSE_TIME"  envDefault:"30s"`
	MaxResponseTime time.Duration `env:"LADLE_MAX_RESPONSE_TIME"  envDefault:"10m"`

	// CompletionURL is where finished panel participants are sent back,
	// typically the panel provider's completion endpoint.
	CompletionURL string `env:"LADLE_COMPLETION_URL"`

	LogLevel  string `env:"LADLE_LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LADLE_LOG_PRETTY"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Driver != "sqlite" && cfg.Driver != "postgres" {
		return nil, fmt.Errorf("unknown db driver %q", cfg.Driver)
	}
	return cfg, nil
}
