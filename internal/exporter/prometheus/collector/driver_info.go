// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/smpart/smpart/internal/mask"
	"github.com/smpart/smpart/internal/vertab"
)

// ControllerState reports the state of the partitioning controller.
type ControllerState interface {
	// Err returns the sticky controller error, or nil when masking works.
	Err() error
	// Record returns the resolved driver record, or nil before setup or
	// on unsupported drivers.
	Record() *vertab.Record
	// GlobalMask returns the last written global mask; ok is false
	// before the first successful write.
	GlobalMask() (mask.Mask, bool)
}

type driverInfoCollector struct {
	state ControllerState

	infoDesc   *prom.Desc
	upDesc     *prom.Desc
	globalDesc *prom.Desc
}

// NewDriverInfoCollector creates a collector exporting the CUDA driver
// version and whether mask control is operational.
func NewDriverInfoCollector(state ControllerState) *driverInfoCollector {
	return &driverInfoCollector{
		state: state,
		infoDesc: prom.NewDesc(
			prom.BuildFQName(namespace, "driver", "info"),
			"A metric with a constant '1' value labeled with the CUDA driver version",
			[]string{"cuda_version"},
			nil,
		),
		upDesc: prom.NewDesc(
			prom.BuildFQName(namespace, "driver", "up"),
			"Whether TPC mask control is operational (1) or degraded to no-ops (0)",
			nil,
			nil,
		),
		globalDesc: prom.NewDesc(
			prom.BuildFQName(namespace, "global_mask", "disabled_tpcs"),
			"Number of TPCs disabled by the current global mask, of the 64 addressable",
			nil,
			nil,
		),
	}
}

func (c *driverInfoCollector) Describe(ch chan<- *prom.Desc) {
	ch <- c.infoDesc
	ch <- c.upDesc
	ch <- c.globalDesc
}

func (c *driverInfoCollector) Collect(ch chan<- prom.Metric) {
	up := 0.0
	if c.state.Err() == nil {
		up = 1.0
	}
	ch <- prom.MustNewConstMetric(c.upDesc, prom.GaugeValue, up)

	if rec := c.state.Record(); rec != nil {
		ch <- prom.MustNewConstMetric(c.infoDesc, prom.GaugeValue, 1, rec.Version.String())
	}

	if m, ok := c.state.GlobalMask(); ok {
		ch <- prom.MustNewConstMetric(c.globalDesc, prom.GaugeValue, float64(m.DisabledCount(64)))
	}
}
