// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/smpart/smpart/internal/version"
)

const namespace = "smpart"

type buildInfoCollector struct {
	desc *prom.Desc
}

// NewBuildInfoCollector creates a collector for build information.
func NewBuildInfoCollector() *buildInfoCollector {
	return &buildInfoCollector{
		desc: prom.NewDesc(
			prom.BuildFQName(namespace, "build", "info"),
			"A metric with a constant '1' value labeled with version information",
			[]string{"arch", "branch", "revision", "version", "goversion"},
			nil,
		),
	}
}

func (c *buildInfoCollector) Describe(ch chan<- *prom.Desc) {
	ch <- c.desc
}

func (c *buildInfoCollector) Collect(ch chan<- prom.Metric) {
	info := version.Get()

	ch <- prom.MustNewConstMetric(
		c.desc,
		prom.GaugeValue,
		1,
		info.GoArch,
		info.GitBranch,
		info.GitCommit,
		info.Version,
		info.GoVersion,
	)
}
