// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

package topo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNoIntrospection is returned when the nvdebug kernel module is not
// loaded. It is distinct from "zero GPCs": callers must not conflate the
// two.
var ErrNoIntrospection = errors.New("nvdebug introspection module not loaded")

// Introspector is the debug-introspection collaborator: raw hardware
// topology not available through public device queries. The production
// implementation reads the procfs tree the nvdebug module exposes.
type Introspector interface {
	// GPCCount reports the number of enabled GPCs on a device.
	GPCCount(dev int) (int, error)

	// GPCTPCMask reports the membership bitmask of TPCs belonging to one
	// GPC: bit i set means TPC i is part of the GPC.
	GPCTPCMask(dev, gpc int) (uint64, error)
}

// procIntrospector reads the nvdebug procfs tree:
// <root>/gpu<N>/num_gpcs and <root>/gpu<N>/gpc<M>_tpc_mask.
type procIntrospector struct {
	root string
}

// NewProcIntrospector creates an Introspector over the given procfs root,
// normally "/proc".
func NewProcIntrospector(root string) Introspector {
	if root == "" {
		root = "/proc"
	}
	return &procIntrospector{root: root}
}

func (p *procIntrospector) gpuDir(dev int) string {
	return filepath.Join(p.root, fmt.Sprintf("gpu%d", dev))
}

// classify distinguishes "module not loaded" from "no such device": if
// gpu0 is absent the module is not loaded at all; otherwise the index is
// out of the enumerated range.
func (p *procIntrospector) classify(dev int, err error) error {
	if !os.IsNotExist(err) {
		return err
	}
	if _, statErr := os.Stat(p.gpuDir(0)); statErr != nil {
		return ErrNoIntrospection
	}
	return ErrDeviceNotFound{Index: dev}
}

func (p *procIntrospector) readUint(dev int, file string, base int) (uint64, error) {
	raw, err := os.ReadFile(filepath.Join(p.gpuDir(dev), file))
	if err != nil {
		return 0, p.classify(dev, err)
	}
	s := strings.TrimSpace(string(raw))
	s = strings.TrimPrefix(s, "0x")
	v, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed %s for device %d: %w", file, dev, err)
	}
	return v, nil
}

func (p *procIntrospector) GPCCount(dev int) (int, error) {
	v, err := p.readUint(dev, "num_gpcs", 10)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

func (p *procIntrospector) GPCTPCMask(dev, gpc int) (uint64, error) {
	return p.readUint(dev, fmt.Sprintf("gpc%d_tpc_mask", gpc), 16)
}

// ErrDeviceNotFound is returned for device indexes the introspection
// module does not enumerate.
type ErrDeviceNotFound struct {
	Index int
}

func (e ErrDeviceNotFound) Error() string {
	return fmt.Sprintf("introspection device not found: index %d", e.Index)
}
