// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package apimodel

import (
	"slices"

	"github.com/siderolabs/gen/xslices"
	"github.com/siderolabs/go-pointer"
)

// IsNewPartition reports whether the partition is going to be created.
func IsNewPartition(p *Partition) bool {
	return p.Name == ""
}

// IsUsedPartition reports whether the partition is going to be formatted or mounted.
func IsUsedPartition(p *Partition) bool {
	return p.Filesystem != nil || p.MountPath != ""
}

// IsReusedPartition reports whether an existing partition is going to be used.
func IsReusedPartition(p *Partition) bool {
	return !IsNewPartition(p) && IsUsedPartition(p)
}

// IsSpacePolicyPartition reports whether the partition carries a space policy action.
func IsSpacePolicyPartition(p *Partition) bool {
	return p.Delete || p.DeleteIfNeeded || pointer.SafeDeref(p.ResizeIfNeeded)
}

// MountPaths returns the mount paths of the device itself or of its partitions.
func (d *Drive) MountPaths() []string {
	if d.MountPath != "" {
		return []string{d.MountPath}
	}

	return xslices.Map(
		xslices.Filter(d.Partitions, func(p Partition) bool { return p.MountPath != "" }),
		func(p Partition) string { return p.MountPath },
	)
}

// HasNewPartitions reports whether the device gets new partitions.
func (d *Drive) HasNewPartitions() bool {
	return slices.ContainsFunc(d.Partitions, func(p Partition) bool { return IsNewPartition(&p) })
}

// HasReusedPartitions reports whether existing partitions of the device are used.
func (d *Drive) HasReusedPartitions() bool {
	return slices.ContainsFunc(d.Partitions, func(p Partition) bool { return IsReusedPartition(&p) })
}

// ConfiguredExistingPartitions returns the existing partitions the config refers to.
//
// With the custom space policy partitions with space actions are included.
func (d *Drive) ConfiguredExistingPartitions() []Partition {
	if d.SpacePolicy == SpacePolicyCustom {
		return xslices.Filter(d.Partitions, func(p Partition) bool {
			return !IsNewPartition(&p) && (IsUsedPartition(&p) || IsSpacePolicyPartition(&p))
		})
	}

	return xslices.Filter(d.Partitions, func(p Partition) bool { return IsReusedPartition(&p) })
}

// Devices returns pointers to drives followed by MD RAIDs.
func (c *Config) Devices() []*Drive {
	result := make([]*Drive, 0, len(c.Drives)+len(c.MdRaids))

	for i := range c.Drives {
		result = append(result, &c.Drives[i])
	}

	for i := range c.MdRaids {
		result = append(result, &c.MdRaids[i])
	}

	return result
}

// Device returns the drive or MD RAID with the given name.
func (c *Config) Device(name string) *Drive {
	for _, d := range c.Devices() {
		if d.Name == name {
			return d
		}
	}

	return nil
}

// VolumeGroup returns the volume group with the given name.
func (c *Config) VolumeGroup(name string) *VolumeGroup {
	for i := range c.VolumeGroups {
		if c.VolumeGroups[i].VgName == name {
			return &c.VolumeGroups[i]
		}
	}

	return nil
}

// IsBoot reports whether the device is the boot device.
func (c *Config) IsBoot(name string) bool {
	return c.Boot != nil && c.Boot.Configure && c.Boot.Device != nil && c.Boot.Device.Name == name
}

// IsExplicitBoot reports whether the device is explicitly chosen as boot device.
//
// A device named while the boot partitions are not configured is not the boot device.
func (c *Config) IsExplicitBoot(name string) bool {
	return c.IsBoot(name) && !c.Boot.Device.Default
}

// IsTargetDevice reports whether a volume group is created on the device.
func (c *Config) IsTargetDevice(name string) bool {
	return slices.ContainsFunc(c.VolumeGroups, func(vg VolumeGroup) bool {
		return slices.Contains(vg.TargetDevices, name)
	})
}

// IsUsedDevice reports whether the device is needed by the config.
//
// A device is used if it is the explicit boot device, a volume group target or it is
// mounted (itself or any of its partitions).
func (c *Config) IsUsedDevice(name string) bool {
	if c.IsExplicitBoot(name) || c.IsTargetDevice(name) {
		return true
	}

	d := c.Device(name)

	return d != nil && len(d.MountPaths()) > 0
}

// UsedMountPaths returns all the mount paths of the config.
func UsedMountPaths(cfg *Config) []string {
	var result []string

	for _, d := range cfg.Devices() {
		result = append(result, d.MountPaths()...)
	}

	for _, vg := range cfg.VolumeGroups {
		for _, lv := range vg.LogicalVolumes {
			if lv.MountPath != "" {
				result = append(result, lv.MountPath)
			}
		}
	}

	return result
}

// UnusedMountPaths returns the mount paths of available volumes not used by the config.
func UnusedMountPaths(cfg *Config, available []string) []string {
	used := xslices.ToSet(UsedMountPaths(cfg))

	return xslices.Filter(available, func(path string) bool {
		_, ok := used[path]

		return path != "" && !ok
	})
}
