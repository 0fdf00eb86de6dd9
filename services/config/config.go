// Package config exposes typed application configuration loaded from YAML,
// with environment overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"tradesim/services/signal"
)

// Config is the root document.
type Config struct {
	App        App        `yaml:"app"`
	Server     Server     `yaml:"server"`
	ClickHouse ClickHouse `yaml:"clickhouse"`
	Data       Data       `yaml:"data"`
	Sim        Sim        `yaml:"sim"`
}

// App captures process-wide settings.
type App struct {
	Name     string `yaml:"name"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
}

// Server holds the listener ports for the service binary.
type Server struct {
	HTTPPort int `yaml:"http_port"`
	GRPCPort int `yaml:"grpc_port"`
}

// ClickHouse describes the bar source / metrics sink connection.
type ClickHouse struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Data locates file-based market data for the CLI tools.
type Data struct {
	Dir         string `yaml:"dir"`
	Granularity string `yaml:"granularity"`
}

// Sim groups the simulation parameters that were once scattered globals:
// the symbol universe, the shared capital pool, the signal windows, and the
// risk-free rate used for Sharpe.
type Sim struct {
	Symbols        []string `yaml:"symbols"`
	InitialCapital float64  `yaml:"initial_capital"`
	FastWindow     int      `yaml:"fast_window"`
	SlowWindow     int      `yaml:"slow_window"`
	RiskFreeRate   float64  `yaml:"risk_free_rate"`
}

// Default returns a runnable configuration.
func Default() *Config {
	return &Config{
		App:        App{Name: "tradesim", Env: "dev", LogLevel: "info"},
		Server:     Server{HTTPPort: 8080, GRPCPort: 9090},
		ClickHouse: ClickHouse{Addr: "localhost:9000", Database: "market", Username: "default"},
		Data:       Data{Dir: "./data", Granularity: "minute"},
		Sim: Sim{
			InitialCapital: 100_000,
			FastWindow:     signal.DefaultFastWindow,
			SlowWindow:     signal.DefaultSlowWindow,
			RiskFreeRate:   0.02,
		},
	}
}

// Load reads path over the defaults. An empty path returns defaults with
// environment overrides only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers deployment secrets and ports over the file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("TRADESIM_CLICKHOUSE_ADDR"); v != "" {
		c.ClickHouse.Addr = v
	}
	if v := os.Getenv("TRADESIM_CLICKHOUSE_USER"); v != "" {
		c.ClickHouse.Username = v
	}
	if v := os.Getenv("TRADESIM_CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("TRADESIM_HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.HTTPPort = p
		}
	}
	if v := os.Getenv("TRADESIM_GRPC_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.GRPCPort = p
		}
	}
}

func (c *Config) validate() error {
	if c.Sim.InitialCapital < 0 {
		return fmt.Errorf("sim.initial_capital must be non-negative, got %v", c.Sim.InitialCapital)
	}
	if c.Sim.FastWindow <= 0 || c.Sim.SlowWindow <= 0 {
		return fmt.Errorf("signal windows must be positive")
	}
	if c.Sim.FastWindow >= c.Sim.SlowWindow {
		return fmt.Errorf("sim.fast_window %d must be shorter than sim.slow_window %d", c.Sim.FastWindow, c.Sim.SlowWindow)
	}
	return nil
}

// SignalConfig converts the sim section to the signal generator's config.
func (c *Config) SignalConfig() signal.Config {
	return signal.Config{FastWindow: c.Sim.FastWindow, SlowWindow: c.Sim.SlowWindow}
}
