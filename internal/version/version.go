// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

// Package version exposes build metadata injected at link time.
package version

import "runtime"

// set via -ldflags at build time
var (
	version   string
	buildTime string
	gitBranch string
	gitCommit string
)

type Info struct {
	Version   string
	BuildTime string
	GitBranch string
	GitCommit string

	GoVersion string
	GoOS      string
	GoArch    string
}

// Get returns the build information of the running binary.
func Get() Info {
	return Info{
		Version:   version,
		BuildTime: buildTime,
		GitBranch: gitBranch,
		GitCommit: gitCommit,

		GoVersion: runtime.Version(),
		GoOS:      runtime.GOOS,
		GoArch:    runtime.GOARCH,
	}
}
