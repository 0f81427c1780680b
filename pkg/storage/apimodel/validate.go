// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package apimodel

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// ErrInvalid is wrapped by validation errors.
var ErrInvalid = errors.New("invalid config model")

// Validate checks the model for consistency.
func Validate(cfg *Config) ([]string, error) {
	var (
		warnings []string
		result   *multierror.Error
	)

	devices := map[string]struct{}{}

	for _, d := range cfg.Devices() {
		if d.Name == "" {
			result = multierror.Append(result, fmt.Errorf("%w: device without name", ErrInvalid))

			continue
		}

		if _, ok := devices[d.Name]; ok {
			result = multierror.Append(result, fmt.Errorf("%w: device %q is duplicated", ErrInvalid, d.Name))
		}

		devices[d.Name] = struct{}{}

		switch d.SpacePolicy {
		case "", SpacePolicyKeep, SpacePolicyResize, SpacePolicyDelete, SpacePolicyCustom:
		default:
			result = multierror.Append(result, fmt.Errorf("%w: device %q: unknown space policy %q", ErrInvalid, d.Name, d.SpacePolicy))
		}

		if d.MountPath != "" && len(d.Partitions) > 0 {
			result = multierror.Append(result, fmt.Errorf("%w: device %q is both formatted and partitioned", ErrInvalid, d.Name))
		}

		for _, p := range d.Partitions {
			if p.Delete && p.DeleteIfNeeded {
				result = multierror.Append(result, fmt.Errorf("%w: partition %q: delete and deleteIfNeeded are exclusive", ErrInvalid, p.Name))
			}

			if IsNewPartition(&p) && (p.Delete || p.DeleteIfNeeded) {
				result = multierror.Append(result, fmt.Errorf("%w: device %q: new partition cannot be deleted", ErrInvalid, d.Name))
			}

			if p.Size != nil && p.Size.Max != nil && *p.Size.Max < p.Size.Min {
				result = multierror.Append(result, fmt.Errorf("%w: partition %q: max size is lower than min size", ErrInvalid, p.MountPath))
			}
		}
	}

	vgNames := map[string]struct{}{}

	for _, vg := range cfg.VolumeGroups {
		if vg.VgName == "" {
			result = multierror.Append(result, fmt.Errorf("%w: volume group without name", ErrInvalid))
		} else if _, ok := vgNames[vg.VgName]; ok {
			result = multierror.Append(result, fmt.Errorf("%w: volume group %q is duplicated", ErrInvalid, vg.VgName))
		}

		vgNames[vg.VgName] = struct{}{}

		if len(vg.TargetDevices) == 0 {
			warnings = append(warnings, fmt.Sprintf("volume group %q has no target devices", vg.VgName))
		}

		for _, target := range vg.TargetDevices {
			if _, ok := devices[target]; !ok {
				result = multierror.Append(result, fmt.Errorf("%w: volume group %q: unknown target device %q", ErrInvalid, vg.VgName, target))
			}
		}
	}

	mountPaths := map[string]struct{}{}

	for _, mountPath := range UsedMountPaths(cfg) {
		if _, ok := mountPaths[mountPath]; ok {
			result = multierror.Append(result, fmt.Errorf("%w: mount path %q is duplicated", ErrInvalid, mountPath))
		}

		mountPaths[mountPath] = struct{}{}
	}

	if cfg.Boot != nil && cfg.Boot.Configure && cfg.Boot.Device != nil && !cfg.Boot.Device.Default && cfg.Boot.Device.Name == "" {
		result = multierror.Append(result, fmt.Errorf("%w: boot device without name", ErrInvalid))
	}

	return warnings, result.ErrorOrNil()
}
