// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

// Package stdout periodically prints the GPU partitioning topology as a
// table. It backs the CLI's watch mode.
package stdout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/smpart/smpart/internal/service"
	"github.com/smpart/smpart/internal/topo"
)

type (
	Initializer = service.Initializer
	Runner      = service.Runner
	Shutdowner  = service.Shutdowner
)

// TopologyReader reads per-device GPC/TPC layout.
type TopologyReader interface {
	GPCInfo(dev int) (int, []uint64, error)
	TPCInfoCUDA(cudaDev int) (int, error)
}

// DeviceLister enumerates devices and their attributes.
type DeviceLister interface {
	DeviceCount() (int, error)
	DeviceName(dev int) (string, error)
	DeviceComputeCapability(dev int) (int, int, error)
}

// Exporter writes a topology table to out on every tick.
type Exporter struct {
	logger   *slog.Logger
	reader   TopologyReader
	devices  DeviceLister
	out      io.WriteCloser
	ticker   time.Ticker
	interval time.Duration
}

var (
	_ Initializer = (*Exporter)(nil)
	_ Runner      = (*Exporter)(nil)
	_ Shutdowner  = (*Exporter)(nil)
)

type Opts struct {
	logger   *slog.Logger
	out      io.WriteCloser
	interval time.Duration
}

// DefaultOpts returns a new Opts with defaults set
func DefaultOpts() Opts {
	return Opts{
		logger:   slog.Default(),
		out:      os.Stdout,
		interval: 5 * time.Second,
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

func WithOutput(out io.WriteCloser) OptionFn {
	return func(o *Opts) {
		o.out = out
	}
}

func WithInterval(interval time.Duration) OptionFn {
	return func(o *Opts) {
		o.interval = interval
	}
}

func NewExporter(reader TopologyReader, devices DeviceLister, applyOpts ...OptionFn) *Exporter {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Exporter{
		logger:   opts.logger.With("service", "stdout"),
		reader:   reader,
		devices:  devices,
		out:      opts.out,
		interval: opts.interval,
	}
}

func (e *Exporter) Init() error {
	e.ticker = *time.NewTicker(e.interval)
	return nil
}

func (e *Exporter) Run(ctx context.Context) error {
	// print once immediately, then on every tick
	if err := e.Report(); err != nil {
		e.logger.Error("Failed to report topology", "error", err)
		return nil
	}

	for {
		select {
		case <-e.ticker.C:
			if err := e.Report(); err != nil {
				e.logger.Error("Failed to report topology", "error", err)
				return nil
			}
		case <-ctx.Done():
			e.logger.Info("Exiting ticker")
			return nil
		}
	}
}

// Report writes one topology table to the configured output.
func (e *Exporter) Report() error {
	count, err := e.devices.DeviceCount()
	if err != nil {
		return err
	}

	rows := make([][]string, 0, count)
	for dev := 0; dev < count; dev++ {
		rows = append(rows, e.deviceRow(dev))
	}

	writeTable(e.out, rows)
	return nil
}

func (e *Exporter) deviceRow(dev int) []string {
	name, err := e.devices.DeviceName(dev)
	if err != nil {
		name = "unknown"
	}

	cc := "-"
	if major, minor, err := e.devices.DeviceComputeCapability(dev); err == nil {
		cc = fmt.Sprintf("%d.%d", major, minor)
	}

	tpcs := "-"
	if n, err := e.reader.TPCInfoCUDA(dev); err == nil {
		tpcs = fmt.Sprintf("%d", n)
	}

	gpcs, masks := "-", "-"
	n, gpcMasks, err := e.reader.GPCInfo(dev)
	switch {
	case err == nil:
		gpcs = fmt.Sprintf("%d", n)
		hex := make([]string, len(gpcMasks))
		for i, m := range gpcMasks {
			hex[i] = fmt.Sprintf("%#x", m)
		}
		masks = strings.Join(hex, " ")
	case !errors.Is(err, topo.ErrNoIntrospection):
		e.logger.Debug("failed to read GPC topology", "gpu", dev, "error", err)
	}

	return []string{fmt.Sprintf("%d", dev), name, cc, tpcs, gpcs, masks}
}

func writeTable(out io.Writer, rows [][]string) {
	table := tablewriter.NewWriter(out)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Formatting.Alignment = tw.AlignRight
	})
	table.Header([]string{"GPU", "Name", "CC", "TPCs", "GPCs", "GPC TPC Masks"})
	_ = table.Bulk(rows)
	_ = table.Render()
}

func (e *Exporter) Shutdown() error {
	return e.out.Close()
}

// Name implements service.Service
func (e *Exporter) Name() string {
	return "stdout"
}
