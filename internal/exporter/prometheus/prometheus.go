// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

// Package prometheus exports partitioning topology and controller state as
// Prometheus metrics.
package prometheus

import (
	"fmt"
	"log/slog"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smpart/smpart/internal/exporter/prometheus/collector"
	"github.com/smpart/smpart/internal/service"
)

type Initializer = service.Initializer

// APIRegistry is where the exporter mounts its metrics endpoint.
type APIRegistry interface {
	Register(endpoint, summary, description string, handler http.Handler) error
}

type Opts struct {
	logger          *slog.Logger
	debugCollectors map[string]bool
	collectors      map[string]prom.Collector
}

// DefaultOpts returns a new Opts with defaults set
func DefaultOpts() Opts {
	return Opts{
		logger: slog.Default(),
		debugCollectors: map[string]bool{
			"go": true,
		},
		collectors: map[string]prom.Collector{},
	}
}

// OptionFn is a function that sets one or more options in Opts
type OptionFn func(*Opts)

// WithLogger sets the logger for the exporter
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithDebugCollectors sets the runtime debug collectors to enable
func WithDebugCollectors(c []string) OptionFn {
	return func(o *Opts) {
		o.debugCollectors = make(map[string]bool)
		for _, name := range c {
			o.debugCollectors[name] = true
		}
	}
}

// WithCollectors sets the domain collectors to register
func WithCollectors(c map[string]prom.Collector) OptionFn {
	return func(o *Opts) {
		o.collectors = c
	}
}

// Exporter serves partitioning metrics over the API server
type Exporter struct {
	logger          *slog.Logger
	registry        *prom.Registry
	server          APIRegistry
	debugCollectors map[string]bool
	collectors      map[string]prom.Collector
}

var _ Initializer = (*Exporter)(nil)

// NewExporter creates a new Exporter instance
func NewExporter(s APIRegistry, applyOpts ...OptionFn) *Exporter {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Exporter{
		server:          s,
		logger:          opts.logger.With("service", "prometheus"),
		debugCollectors: opts.debugCollectors,
		collectors:      opts.collectors,
		registry:        prom.NewRegistry(),
	}
}

func collectorForName(name string) (prom.Collector, error) {
	switch name {
	case "go":
		return collectors.NewGoCollector(), nil
	case "process":
		return collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), nil
	default:
		return nil, fmt.Errorf("unknown collector: %s", name)
	}
}

// CreateCollectors builds the standard set of domain collectors.
func CreateCollectors(
	reader collector.TopologyReader,
	devices collector.DeviceLister,
	state collector.ControllerState,
	logger *slog.Logger,
) map[string]prom.Collector {
	return map[string]prom.Collector{
		"build_info": collector.NewBuildInfoCollector(),
		"topology":   collector.NewTopologyCollector(reader, devices, logger),
		"driver":     collector.NewDriverInfoCollector(state),
	}
}

func (e *Exporter) Init() error {
	e.logger.Info("Initializing Prometheus exporter")
	for c := range e.debugCollectors {
		collector, err := collectorForName(c)
		if err != nil {
			e.logger.Error("Error creating collector", "collector", c, "error", err)
			return err
		}
		e.logger.Info("Enabling debug collector", "collector", c)
		e.registry.MustRegister(collector)
	}

	for name, collector := range e.collectors {
		e.logger.Info("Enabling collector", "collector", name)
		e.registry.MustRegister(collector)
	}

	return e.server.Register("/metrics", "Metrics", "Prometheus metrics",
		promhttp.HandlerFor(
			e.registry,
			promhttp.HandlerOpts{
				EnableOpenMetrics: true,
				Registry:          e.registry,
			},
		))
}

// Name implements service.Service
func (e *Exporter) Name() string {
	return "prometheus"
}
