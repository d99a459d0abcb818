// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

// Package config holds the application configuration, loaded from an
// optional YAML file and overridden by command-line flags.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"
)

// DefaultListenAddress is the default address the metrics server binds to.
const DefaultListenAddress = ":9480"

type (
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}

	Web struct {
		ListenAddresses []string `yaml:"listenAddresses"`
		ConfigFile      string   `yaml:"configFile"`
	}

	// Topology configures where GPC/TPC layout is read from. Procfs is
	// the root under which the nvdebug kernel module exposes per-GPU
	// directories.
	Topology struct {
		Procfs string `yaml:"procfs"`
	}

	Watch struct {
		Interval time.Duration `yaml:"interval"`
	}

	Config struct {
		Log      Log      `yaml:"log"`
		Web      Web      `yaml:"web"`
		Topology Topology `yaml:"topology"`
		Watch    Watch    `yaml:"watch"`
	}
)

const (
	// Flags
	LogLevelFlag      = "log.level"
	LogFormatFlag     = "log.format"
	WebListenFlag     = "web.listen-address"
	WebConfigFlag     = "web.config-file"
	TopologyProcFlag  = "topology.procfs"
	WatchIntervalFlag = "watch.interval"
)

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Web: Web{
			ListenAddresses: []string{DefaultListenAddress},
		},
		Topology: Topology{
			Procfs: "/proc",
		},
		Watch: Watch{
			Interval: 5 * time.Second,
		},
	}
}

// Load loads configuration from an io.Reader
func Load(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.sanitize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromFile loads configuration from a file
func FromFile(filePath string) (*Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Load(file)
}

type ConfigUpdaterFn func(*Config) error

// RegisterFlags registers command-line flags with the kingpin app and
// returns a ConfigUpdaterFn that applies parsed flags to a config.
// Command-line arguments override config file settings.
func RegisterFlags(app *kingpin.Application) ConfigUpdaterFn {
	// track flags that were explicitly set
	flagsSet := map[string]bool{}

	app.PreAction(func(ctx *kingpin.ParseContext) error {
		// Clear the map in case this function is called multiple times
		flagsSet = map[string]bool{}

		for _, element := range ctx.Elements {
			if flag, ok := element.Clause.(*kingpin.FlagClause); ok && element.Value != nil {
				flagsSet[flag.Model().Name] = true
			}
		}
		return nil
	})

	logLevel := app.Flag(LogLevelFlag, "Logging level: debug, info, warn, error").Default("info").Enum("debug", "info", "warn", "error")
	logFormat := app.Flag(LogFormatFlag, "Logging format: text or json").Default("text").Enum("text", "json")
	webListen := app.Flag(WebListenFlag, "Address to listen on for metrics and web endpoints (repeatable)").Default(DefaultListenAddress).Strings()
	webConfig := app.Flag(WebConfigFlag, "Path to a web config file for TLS and basic auth").Default("").String()
	procfs := app.Flag(TopologyProcFlag, "Root of the procfs tree exposing per-GPU topology").Default("/proc").String()
	watchInterval := app.Flag(WatchIntervalFlag, "Interval between topology reports in watch mode").Default("5s").Duration()

	return func(cfg *Config) error {
		if flagsSet[LogLevelFlag] {
			cfg.Log.Level = *logLevel
		}
		if flagsSet[LogFormatFlag] {
			cfg.Log.Format = *logFormat
		}
		if flagsSet[WebListenFlag] {
			cfg.Web.ListenAddresses = *webListen
		}
		if flagsSet[WebConfigFlag] {
			cfg.Web.ConfigFile = *webConfig
		}
		if flagsSet[TopologyProcFlag] {
			cfg.Topology.Procfs = *procfs
		}
		if flagsSet[WatchIntervalFlag] {
			cfg.Watch.Interval = *watchInterval
		}

		cfg.sanitize()
		return cfg.Validate()
	}
}

func (c *Config) sanitize() {
	c.Log.Level = strings.TrimSpace(c.Log.Level)
	c.Log.Format = strings.TrimSpace(c.Log.Format)
	c.Topology.Procfs = strings.TrimSpace(c.Topology.Procfs)
	for i, addr := range c.Web.ListenAddresses {
		c.Web.ListenAddresses[i] = strings.TrimSpace(addr)
	}
}

// Validate checks for configuration errors
func (c *Config) Validate() error {
	var errs []string
	{ // log level
		validLogLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if _, valid := validLogLevels[c.Log.Level]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log level: %s", c.Log.Level))
		}
	}
	{ // log format
		validFormats := map[string]bool{
			"text": true,
			"json": true,
		}
		if _, valid := validFormats[c.Log.Format]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log format: %s", c.Log.Format))
		}
	}
	{ // web
		if len(c.Web.ListenAddresses) == 0 {
			errs = append(errs, "no listen address configured")
		}
		for _, addr := range c.Web.ListenAddresses {
			if addr == "" {
				errs = append(errs, "empty listen address")
			}
		}
	}
	{ // topology
		if c.Topology.Procfs == "" {
			errs = append(errs, "topology procfs root must not be empty")
		}
	}
	{ // watch
		if c.Watch.Interval <= 0 {
			errs = append(errs, fmt.Sprintf("watch interval must be positive: %s", c.Watch.Interval))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, ", "))
	}

	return nil
}

func (c *Config) String() string {
	bytes, err := yaml.Marshal(c)
	if err == nil {
		return string(bytes)
	}
	// NOTE: this code path should not happen but if yaml marshal fails
	// for some reason, manually build the string
	return c.manualString()
}

func (c *Config) manualString() string {
	cfgs := []struct {
		Name  string
		Value string
	}{
		{LogLevelFlag, c.Log.Level},
		{LogFormatFlag, c.Log.Format},
		{WebListenFlag, strings.Join(c.Web.ListenAddresses, ",")},
		{WebConfigFlag, c.Web.ConfigFile},
		{TopologyProcFlag, c.Topology.Procfs},
		{WatchIntervalFlag, c.Watch.Interval.String()},
	}
	sb := strings.Builder{}

	for _, cfg := range cfgs {
		sb.WriteString(cfg.Name)
		sb.WriteString(": ")
		sb.WriteString(cfg.Value)
		sb.WriteString("\n")
	}

	return sb.String()
}
