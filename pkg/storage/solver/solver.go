// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package solver resolves the searches and the sizes of a storage config.
//
// A solved config has the same shape as the config it comes from: elements keep their
// positions, searches name the matched devices, sizes are concrete byte ranges and the
// volumes generators are followed by the volumes they generate. Elements which matched
// more than one device are followed by copies at the end of their list. Searches which
// matched nothing with ifNotFound "skip" are left unresolved: they have no device name.
package solver

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/siderolabs/storagecfg/pkg/machinery/config/types/storage"
	"github.com/siderolabs/storagecfg/pkg/storage/system"
)

// Errors returned by solvers.
var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrInvalidConfig  = errors.New("invalid config")
)

// Solver resolves a storage config against a system.
type Solver interface {
	Solve(ctx context.Context, cfg *storage.Config) (*storage.Config, error)
}

// Check interfaces.
var _ Solver = (*Local)(nil)

// Local solves configs against a system inventory.
type Local struct {
	system *system.System
	logger *zap.Logger
}

// NewLocal creates a solver for the system.
func NewLocal(sys *system.System, logger *zap.Logger) *Local {
	if sys == nil {
		sys = &system.System{}
	}

	return &Local{
		system: sys,
		logger: logger,
	}
}

// System returns the inventory the solver works on.
func (s *Local) System() *system.System {
	return s.system
}

// Solve implements Solver.
//
// The config is not modified.
func (s *Local) Solve(ctx context.Context, cfg *storage.Config) (*storage.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: no config", ErrInvalidConfig)
	}

	warnings, err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	for _, w := range warnings {
		s.logger.Warn("storage config warning", zap.String("warning", w))
	}

	solved := cfg.Clone()

	st := &state{
		system:     s.system,
		config:     solved,
		devices:    map[storage.DriveElement]*system.Device{},
		used:       map[string]struct{}{},
		mountPaths: map[string]struct{}{},
	}

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"encryption", st.checkEncryption},
		{"drives", func(ctx context.Context) error { return st.resolveDevices(ctx, solved.Drives, s.system.Disks()) }},
		{"mdRaids", func(ctx context.Context) error { return st.resolveDevices(ctx, solved.MdRaids, s.system.MdRaids()) }},
		{"partitions", st.resolvePartitions},
		{"volumeGroups", st.resolveVolumeGroups},
		{"generators", st.expandGenerators},
		{"boot", st.resolveBoot},
	}

	for _, step := range steps {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		if err = step.run(ctx); err != nil {
			return nil, err
		}

		s.logger.Debug("solver step done", zap.String("step", step.name))
	}

	s.logger.Info("storage config solved", zap.Int("devices", len(st.devices)), zap.Int("volume_groups", len(solved.VolumeGroups)))

	return solved, nil
}

type state struct {
	system *system.System
	config *storage.Config

	// devices maps the resolved config devices to system devices.
	devices map[storage.DriveElement]*system.Device
	// used are the names of the system devices taken by config devices.
	used map[string]struct{}
	// mountPaths are the mount paths defined by the config.
	mountPaths map[string]struct{}
}

func (st *state) checkEncryption(context.Context) error {
	var encryptions []*storage.Encryption

	for _, device := range st.config.Devices() {
		encryptions = append(encryptions, device.DeviceEncryption())

		if d, ok := device.(*storage.PartitionedDrive); ok {
			for _, element := range d.Partitions {
				switch p := element.(type) {
				case *storage.Partition:
					encryptions = append(encryptions, p.Encryption)
				case *storage.VolumesGenerator:
					encryptions = append(encryptions, p.Generate.Encryption)
				}
			}
		}
	}

	for _, vg := range st.config.VolumeGroups {
		for _, pv := range vg.PhysicalVolumes {
			if g, ok := pv.(*storage.PhysicalVolumesGenerator); ok {
				encryptions = append(encryptions, g.Encryption)
			}
		}

		for _, element := range vg.LogicalVolumes {
			switch lv := element.(type) {
			case *storage.LogicalVolume:
				encryptions = append(encryptions, lv.Encryption)
			case *storage.VolumesGenerator:
				encryptions = append(encryptions, lv.Generate.Encryption)
			}
		}
	}

	for _, e := range encryptions {
		if e == nil || len(st.system.EncryptionMethods) == 0 {
			continue
		}

		if !slices.Contains(st.system.EncryptionMethods, e.Method) {
			return fmt.Errorf("%w: encryption method %q is not available", ErrInvalidConfig, e.Method)
		}
	}

	return nil
}
