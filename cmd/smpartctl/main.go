// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

// smpartctl inspects and exports NVIDIA GPU partitioning topology. It can
// print the GPC/TPC layout once, watch it periodically, or serve it as
// Prometheus metrics together with the partitioning controller state.
package main

import (
	"context"
	"log/slog"
	"os"
	"syscall"

	"github.com/alecthomas/kingpin/v2"

	"github.com/smpart/smpart/internal/config"
	"github.com/smpart/smpart/internal/ctrl"
	"github.com/smpart/smpart/internal/driver/nvcuda"
	"github.com/smpart/smpart/internal/exporter/prometheus"
	"github.com/smpart/smpart/internal/exporter/stdout"
	"github.com/smpart/smpart/internal/logger"
	"github.com/smpart/smpart/internal/server"
	"github.com/smpart/smpart/internal/service"
	"github.com/smpart/smpart/internal/topo"
	"github.com/smpart/smpart/internal/version"
	"github.com/smpart/smpart/internal/vertab"
)

func main() {
	app := kingpin.New("smpartctl", "NVIDIA GPU TPC partitioning topology inspector and exporter.")
	configFile := app.Flag("config.file", "Path to YAML configuration file").String()
	updateConfig := config.RegisterFlags(app)

	infoCmd := app.Command("info", "Print GPU topology and exit").Default()
	watchCmd := app.Command("watch", "Periodically print GPU topology")
	serveCmd := app.Command("serve", "Serve topology and controller state as Prometheus metrics")

	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := loadConfig(*configFile, updateConfig)
	if err != nil {
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	slog.SetDefault(log)
	logVersionInfo(log)
	log.Debug("configuration loaded", "config", cfg.String())

	drv := nvcuda.New(log)
	reader := topo.New(log, topo.NewProcIntrospector(cfg.Topology.Procfs), drv)

	switch cmd {
	case infoCmd.FullCommand():
		err = runInfo(log, reader, drv)
	case watchCmd.FullCommand():
		err = runWatch(log, cfg, reader, drv)
	case serveCmd.FullCommand():
		err = runServe(log, cfg, reader, drv)
	}
	if err != nil {
		log.Error("smpartctl terminated with an error", "error", err)
		os.Exit(1)
	}
}

func loadConfig(configFile string, updateConfig config.ConfigUpdaterFn) (*config.Config, error) {
	// bootstrap logger until the real one is configured
	log := logger.New("info", "text", os.Stderr)

	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.FromFile(configFile)
		if err != nil {
			log.Error("failed to load config file", "path", configFile, "error", err)
			return nil, err
		}
		cfg = loaded
	}

	// command line flags override config file settings
	if err := updateConfig(cfg); err != nil {
		log.Error("invalid configuration", "error", err)
		return nil, err
	}
	return cfg, nil
}

func logVersionInfo(log *slog.Logger) {
	v := version.Get()
	log.Info("smpartctl version information",
		"version", v.Version,
		"buildTime", v.BuildTime,
		"gitBranch", v.GitBranch,
		"gitCommit", v.GitCommit,
		"goVersion", v.GoVersion,
		"goOS", v.GoOS,
		"goArch", v.GoArch,
	)
}

func runInfo(log *slog.Logger, reader *topo.Reader, drv *nvcuda.Driver) error {
	if v, err := drv.CudaVersion(); err != nil {
		log.Warn("could not detect CUDA driver version", "error", err)
	} else {
		log.Info("detected CUDA driver",
			"version", v.String(),
			"maskControl", vertab.Supported(v),
		)
	}

	e := stdout.NewExporter(reader, drv, stdout.WithLogger(log))
	return e.Report()
}

func runWatch(log *slog.Logger, cfg *config.Config, reader *topo.Reader, drv *nvcuda.Driver) error {
	services := []service.Service{
		stdout.NewExporter(reader, drv,
			stdout.WithLogger(log),
			stdout.WithInterval(cfg.Watch.Interval),
		),
		service.NewSignalHandler(log, os.Interrupt, syscall.SIGTERM),
	}

	if err := service.Init(log, services); err != nil {
		return err
	}
	return service.Run(context.Background(), log, services)
}

func runServe(log *slog.Logger, cfg *config.Config, reader *topo.Reader, drv *nvcuda.Driver) error {
	controller := ctrl.New(log, drv)

	apiServer := server.NewAPIServer(
		server.WithLogger(log),
		server.WithListen(cfg.Web.ListenAddresses, cfg.Web.ConfigFile),
	)

	exporter := prometheus.NewExporter(apiServer,
		prometheus.WithLogger(log),
		prometheus.WithCollectors(prometheus.CreateCollectors(reader, drv, controller, log)),
	)

	services := []service.Service{
		apiServer,
		exporter,
		server.NewHealth(apiServer, controller),
		server.NewPprof(apiServer),
		service.NewSignalHandler(log, os.Interrupt, syscall.SIGTERM),
	}

	if err := service.Init(log, services); err != nil {
		return err
	}
	return service.Run(context.Background(), log, services)
}
