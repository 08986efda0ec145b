package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/aevon-lab/cohort/internal/core/pipeline"
)

// EnvPrefix marks environment overrides; "__" separates nested keys, e.g.
// COHORT_CONNECTIONS__SHOP__DSN sets connections.shop.dsn.
const EnvPrefix = "COHORT_"

// Config represents the top-level application config plus the loaded pipelines.
type Config struct {
	Server      ServerConfig                `koanf:"server"`
	Connections map[string]ConnectionConfig `koanf:"connections"`
	Database    DatabaseConfig              `koanf:"database"`
	Pipelines   PipelinesConfig             `koanf:"pipelines"`
	Runner      RunnerConfig                `koanf:"runner"`
	Output      OutputConfig                `koanf:"output"`

	// PipelineLoading is populated by Load after parsing pipeline files.
	PipelineLoading PipelineLoadingConfig `koanf:"-"`
}

type ServerConfig struct {
	Port int    `koanf:"port"`
	Host string `koanf:"host"`
	Mode string `koanf:"mode"` // debug | release
}

// ConnectionConfig is a named database that pipeline sources and sinks refer to.
type ConnectionConfig struct {
	Driver       string `koanf:"driver"` // postgres | sqlite | mysql
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
}

// DatabaseConfig configures the optional run audit store. An empty DSN
// disables it.
type DatabaseConfig struct {
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type PipelinesConfig struct {
	Dir     string `koanf:"dir"`
	Require bool   `koanf:"require"`
}

type RunnerConfig struct {
	WorkerCount   int    `koanf:"worker_count"`
	Shards        int    `koanf:"shards"`
	SourceTimeout string `koanf:"source_timeout"` // parsed and validated on startup
	SinkTimeout   string `koanf:"sink_timeout"`
	Schedule      bool   `koanf:"schedule"`
	Interval      string `koanf:"interval"`
}

type OutputConfig struct {
	DefaultSink string `koanf:"default_sink"`
}

type PipelineLoadingConfig struct {
	Dir         string
	Definitions []pipeline.Definition
}

var sqlDrivers = map[string]bool{"postgres": true, "sqlite": true, "mysql": true}

func (c RunnerConfig) SourceTimeoutDuration() time.Duration { return mustDuration(c.SourceTimeout) }
func (c RunnerConfig) SinkTimeoutDuration() time.Duration   { return mustDuration(c.SinkTimeout) }
func (c RunnerConfig) IntervalDuration() time.Duration      { return mustDuration(c.Interval) }

// mustDuration is only used after Validate has accepted the value.
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	for name, conn := range c.Connections {
		if !sqlDrivers[conn.Driver] {
			return fmt.Errorf("connections.%s: unsupported driver %q", name, conn.Driver)
		}
		if strings.TrimSpace(conn.DSN) == "" {
			return fmt.Errorf("connections.%s.dsn is required", name)
		}
		if conn.MaxOpenConns < 0 || conn.MaxIdleConns < 0 {
			return fmt.Errorf("connections.%s: pool sizes must be >= 0", name)
		}
	}

	if c.Database.DSN != "" {
		if c.Database.MaxOpenConns <= 0 {
			return fmt.Errorf("database.max_open_conns must be > 0")
		}
		if c.Database.MaxIdleConns <= 0 {
			return fmt.Errorf("database.max_idle_conns must be > 0")
		}
	}

	if strings.TrimSpace(c.Pipelines.Dir) == "" {
		return fmt.Errorf("pipelines.dir is required")
	}

	if c.Runner.WorkerCount <= 0 {
		return fmt.Errorf("runner.worker_count must be > 0")
	}
	if c.Runner.Shards <= 0 {
		return fmt.Errorf("runner.shards must be > 0")
	}
	for key, value := range map[string]string{
		"runner.source_timeout": c.Runner.SourceTimeout,
		"runner.sink_timeout":   c.Runner.SinkTimeout,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be > 0", key)
		}
	}
	if c.Runner.Schedule {
		interval, err := time.ParseDuration(c.Runner.Interval)
		if err != nil {
			return fmt.Errorf("invalid runner.interval %q: %w", c.Runner.Interval, err)
		}
		if interval <= 0 {
			return fmt.Errorf("runner.interval must be > 0")
		}
	}

	if strings.TrimSpace(c.Output.DefaultSink) == "" {
		return fmt.Errorf("output.default_sink is required")
	}
	return nil
}

// validateReferences checks every pipeline's named connections.
func (c *Config) validateReferences(defs []pipeline.Definition) error {
	for _, d := range defs {
		refs := []struct{ role, kind, conn string }{
			{"source", d.Source.Kind, d.Source.Connection},
			{"sink", d.Sink.Kind, d.Sink.Connection},
		}
		for _, ref := range refs {
			if ref.conn == "" {
				continue
			}
			conn, ok := c.Connections[ref.conn]
			if !ok {
				return fmt.Errorf("pipeline %q: %s connection %q is not configured", d.Name, ref.role, ref.conn)
			}
			if ref.kind != conn.Driver {
				return fmt.Errorf("pipeline %q: %s kind %q does not match connection %q driver %q",
					d.Name, ref.role, ref.kind, ref.conn, conn.Driver)
			}
		}
	}
	return nil
}

// Load parses config from defaults, file and env, validates it, then loads and
// validates the pipeline definitions.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":             8080,
		"server.host":             "0.0.0.0",
		"server.mode":             "release",
		"database.dsn":            "",
		"database.max_open_conns": 5,
		"database.max_idle_conns": 2,
		"database.auto_migrate":   true,
		"pipelines.dir":           "./pipelines",
		"pipelines.require":       true,
		"runner.worker_count":     4,
		"runner.shards":           1,
		"runner.source_timeout":   "30s",
		"runner.sink_timeout":     "30s",
		"runner.schedule":         false,
		"runner.interval":         "1h",
		"output.default_sink":     "console",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	repo, err := pipeline.NewFileSystemRepository(cfg.Pipelines.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipelines: %w", err)
	}
	defs := repo.Definitions()
	if cfg.Pipelines.Require && len(defs) == 0 {
		return nil, fmt.Errorf("no pipelines found in %q", cfg.Pipelines.Dir)
	}
	if err := cfg.validateReferences(defs); err != nil {
		return nil, err
	}

	cfg.PipelineLoading = PipelineLoadingConfig{
		Dir:         cfg.Pipelines.Dir,
		Definitions: defs,
	}
	return &cfg, nil
}
