// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

// Package collector implements the Prometheus collectors exposing GPU
// partitioning topology and controller state.
package collector

import (
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/smpart/smpart/internal/topo"
)

// TopologyReader reads per-device GPC/TPC layout.
type TopologyReader interface {
	GPCInfo(dev int) (int, []uint64, error)
	TPCInfo(dev int) (int, error)
	TPCInfoCUDA(cudaDev int) (int, error)
}

// DeviceLister enumerates devices and their attributes.
type DeviceLister interface {
	DeviceCount() (int, error)
	DeviceName(dev int) (string, error)
	DeviceComputeCapability(dev int) (int, int, error)
}

// topologyCollector exports GPU topology metrics. Devices are labeled by
// their enumeration index, which is assumed to match between the CUDA and
// nvdebug views.
type topologyCollector struct {
	sync.Mutex

	reader  TopologyReader
	devices DeviceLister
	logger  *slog.Logger

	infoDesc    *prom.Desc
	gpcDesc     *prom.Desc
	tpcDesc     *prom.Desc
	gpcTPCsDesc *prom.Desc
}

// NewTopologyCollector creates a collector exporting per-device topology.
func NewTopologyCollector(reader TopologyReader, devices DeviceLister, logger *slog.Logger) *topologyCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &topologyCollector{
		reader:  reader,
		devices: devices,
		logger:  logger.With("collector", "topology"),
		infoDesc: prom.NewDesc(
			prom.BuildFQName(namespace, "gpu", "info"),
			"GPU device information for mapping index to name and compute capability",
			[]string{"gpu", "gpu_name", "compute_capability"},
			nil,
		),
		gpcDesc: prom.NewDesc(
			prom.BuildFQName(namespace, "gpu", "gpcs"),
			"Number of general processing clusters on the GPU",
			[]string{"gpu"},
			nil,
		),
		tpcDesc: prom.NewDesc(
			prom.BuildFQName(namespace, "gpu", "tpcs"),
			"Number of enabled thread processing clusters on the GPU",
			[]string{"gpu"},
			nil,
		),
		gpcTPCsDesc: prom.NewDesc(
			prom.BuildFQName(namespace, "gpc", "tpcs"),
			"Number of enabled thread processing clusters per GPC",
			[]string{"gpu", "gpc"},
			nil,
		),
	}
}

func (c *topologyCollector) Describe(ch chan<- *prom.Desc) {
	ch <- c.infoDesc
	ch <- c.gpcDesc
	ch <- c.tpcDesc
	ch <- c.gpcTPCsDesc
}

func (c *topologyCollector) Collect(ch chan<- prom.Metric) {
	c.Lock()
	defer c.Unlock()

	count, err := c.devices.DeviceCount()
	if err != nil {
		c.logger.Warn("failed to enumerate devices", "error", err)
		return
	}

	for dev := 0; dev < count; dev++ {
		c.collectDevice(ch, dev)
	}
}

func (c *topologyCollector) collectDevice(ch chan<- prom.Metric, dev int) {
	gpu := fmt.Sprintf("%d", dev)

	name, err := c.devices.DeviceName(dev)
	if err != nil {
		c.logger.Warn("failed to read device name", "gpu", dev, "error", err)
		name = "unknown"
	}
	cc := "unknown"
	if major, minor, err := c.devices.DeviceComputeCapability(dev); err == nil {
		cc = fmt.Sprintf("%d.%d", major, minor)
	}
	ch <- prom.MustNewConstMetric(c.infoDesc, prom.GaugeValue, 1, gpu, name, cc)

	if tpcs, err := c.reader.TPCInfoCUDA(dev); err == nil {
		ch <- prom.MustNewConstMetric(c.tpcDesc, prom.GaugeValue, float64(tpcs), gpu)
	} else {
		c.logger.Debug("failed to read TPC count", "gpu", dev, "error", err)
	}

	gpcs, masks, err := c.reader.GPCInfo(dev)
	if err != nil {
		// absent nvdebug module is expected on most hosts
		if !errors.Is(err, topo.ErrNoIntrospection) {
			c.logger.Debug("failed to read GPC topology", "gpu", dev, "error", err)
		}
		return
	}

	ch <- prom.MustNewConstMetric(c.gpcDesc, prom.GaugeValue, float64(gpcs), gpu)
	for gpc, m := range masks {
		ch <- prom.MustNewConstMetric(c.gpcTPCsDesc, prom.GaugeValue,
			float64(bits.OnesCount64(m)), gpu, fmt.Sprintf("%d", gpc))
	}
}
