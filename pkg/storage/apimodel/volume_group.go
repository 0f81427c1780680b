// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package apimodel

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"strconv"

	"github.com/siderolabs/gen/xslices"

	"github.com/siderolabs/storagecfg/pkg/machinery/constants"
)

// ErrAlreadyExists is returned when a volume group name is taken.
var ErrAlreadyExists = errors.New("already exists")

// DefaultVolumeGroupName is the base of generated volume group names.
const DefaultVolumeGroupName = constants.DefaultVolumeGroupName

// VolumeGroupData holds the user editable fields of a volume group.
type VolumeGroupData struct {
	VgName        string   `json:"vgName"`
	ExtentSize    *uint64  `json:"extentSize,omitempty"`
	TargetDevices []string `json:"targetDevices"`
}

// GenerateVolumeGroupName returns the first free name out of system, system1, system2...
func GenerateVolumeGroupName(cfg *Config) string {
	taken := xslices.ToSet(xslices.Map(cfg.VolumeGroups, func(vg VolumeGroup) string { return vg.VgName }))

	if _, ok := taken[DefaultVolumeGroupName]; !ok {
		return DefaultVolumeGroupName
	}

	for i := 1; ; i++ {
		name := DefaultVolumeGroupName + strconv.Itoa(i)

		if _, ok := taken[name]; !ok {
			return name
		}
	}
}

// LogicalVolumeName derives the name of a logical volume from its mount path.
func LogicalVolumeName(mountPath string) string {
	switch mountPath {
	case "/":
		return "root"
	case "":
		return "lv"
	default:
		return path.Base(mountPath)
	}
}

func logicalVolumeFromPartition(p Partition) LogicalVolume {
	return LogicalVolume{
		LvName:     LogicalVolumeName(p.MountPath),
		MountPath:  p.MountPath,
		Filesystem: p.Filesystem,
		Size:       p.Size,
	}
}

func partitionFromLogicalVolume(lv LogicalVolume) Partition {
	return Partition{
		MountPath:  lv.MountPath,
		Filesystem: lv.Filesystem,
		Size:       lv.Size,
	}
}

// moveNewPartitions turns the new partitions of the device into logical volumes of the group.
func moveNewPartitions(d *Drive, vg *VolumeGroup) {
	var kept []Partition

	for _, p := range d.Partitions {
		if IsNewPartition(&p) {
			vg.LogicalVolumes = append(vg.LogicalVolumes, logicalVolumeFromPartition(p))

			continue
		}

		kept = append(kept, p)
	}

	d.Partitions = kept
}

// addMissingDevices adds drives for target devices not present in the config.
func (c *Config) addMissingDevices(names []string) {
	for _, name := range names {
		if c.Device(name) == nil {
			c.Drives = append(c.Drives, Drive{Name: name})
		}
	}
}

// adjustSpacePolicies drops the keep policy of target devices with nothing mounted,
// keeping everything would leave no space for the physical volume.
func (c *Config) adjustSpacePolicies(names []string) {
	for _, name := range names {
		d := c.Device(name)
		if d == nil || d.SpacePolicy != SpacePolicyKeep {
			continue
		}

		if len(d.MountPaths()) == 0 {
			d.SpacePolicy = ""
		}
	}
}

// deleteUnusedDevices removes the given devices which are not used anymore.
//
// Nothing is removed if that would leave the config without devices.
func (c *Config) deleteUnusedDevices(names []string) {
	unused := xslices.Filter(names, func(name string) bool {
		return c.Device(name) != nil && !c.IsUsedDevice(name)
	})

	slices.Sort(unused)
	unused = slices.Compact(unused)

	if len(unused) == 0 || len(unused) >= len(c.Drives)+len(c.MdRaids) {
		return
	}

	for _, name := range unused {
		c.removeDevice(name)
	}
}

// AddVolumeGroup adds a volume group on the target devices.
//
// With moveContent the new partitions of the target devices become logical volumes.
func AddVolumeGroup(cfg *Config, data VolumeGroupData, moveContent bool) (*Config, error) {
	out := cfg.DeepCopy()

	if out.VolumeGroup(data.VgName) != nil {
		return out, fmt.Errorf("volume group %q: %w", data.VgName, ErrAlreadyExists)
	}

	vg := VolumeGroup{
		VgName:        data.VgName,
		ExtentSize:    copyPtr(data.ExtentSize),
		TargetDevices: slices.Clone(data.TargetDevices),
	}

	out.addMissingDevices(vg.TargetDevices)

	if moveContent {
		for _, name := range vg.TargetDevices {
			moveNewPartitions(out.Device(name), &vg)
		}
	}

	out.VolumeGroups = append(out.VolumeGroups, vg)
	out.adjustSpacePolicies(vg.TargetDevices)

	return out, nil
}

// DeviceToVolumeGroup creates a volume group with a generated name on the device and
// moves the new partitions of the device to it.
func DeviceToVolumeGroup(cfg *Config, deviceName string) (*Config, error) {
	if cfg.Device(deviceName) == nil {
		return cfg.DeepCopy(), notFound("device", deviceName)
	}

	return AddVolumeGroup(cfg, VolumeGroupData{
		VgName:        GenerateVolumeGroupName(cfg),
		TargetDevices: []string{deviceName},
	}, true)
}

// EditVolumeGroup updates the volume group.
//
// Devices which are not targets anymore are removed if nothing else uses them.
func EditVolumeGroup(cfg *Config, vgName string, data VolumeGroupData) (*Config, error) {
	out := cfg.DeepCopy()

	index := slices.IndexFunc(out.VolumeGroups, func(vg VolumeGroup) bool { return vg.VgName == vgName })
	if index == -1 {
		return out, notFound("volume group", vgName)
	}

	if data.VgName != vgName && out.VolumeGroup(data.VgName) != nil {
		return out, fmt.Errorf("volume group %q: %w", data.VgName, ErrAlreadyExists)
	}

	previous := out.VolumeGroups[index].TargetDevices

	vg := &out.VolumeGroups[index]
	vg.VgName = data.VgName
	vg.ExtentSize = copyPtr(data.ExtentSize)
	vg.TargetDevices = slices.Clone(data.TargetDevices)

	added := xslices.Filter(vg.TargetDevices, func(name string) bool { return !slices.Contains(previous, name) })
	removed := xslices.Filter(previous, func(name string) bool { return !slices.Contains(data.TargetDevices, name) })

	out.addMissingDevices(added)
	out.adjustSpacePolicies(added)
	out.deleteUnusedDevices(removed)

	return out, nil
}

// VolumeGroupToPartitions removes the volume group and turns its logical volumes into
// partitions of its first target device.
func VolumeGroupToPartitions(cfg *Config, vgName string) (*Config, error) {
	out := cfg.DeepCopy()

	index := slices.IndexFunc(out.VolumeGroups, func(vg VolumeGroup) bool { return vg.VgName == vgName })
	if index == -1 {
		return out, notFound("volume group", vgName)
	}

	vg := out.VolumeGroups[index]
	if len(vg.TargetDevices) == 0 {
		return out, fmt.Errorf("volume group %q has no target devices: %w", vgName, ErrNotFound)
	}

	out.VolumeGroups = slices.Delete(out.VolumeGroups, index, index+1)

	target := vg.TargetDevices[0]
	out.addMissingDevices([]string{target})

	d := out.Device(target)
	d.Partitions = append(d.Partitions, xslices.Map(vg.LogicalVolumes, partitionFromLogicalVolume)...)

	out.deleteUnusedDevices(vg.TargetDevices[1:])

	return out, nil
}

// DeleteVolumeGroup removes the volume group and its target devices which are not used anymore.
func DeleteVolumeGroup(cfg *Config, vgName string) (*Config, error) {
	out := cfg.DeepCopy()

	index := slices.IndexFunc(out.VolumeGroups, func(vg VolumeGroup) bool { return vg.VgName == vgName })
	if index == -1 {
		return out, notFound("volume group", vgName)
	}

	targets := out.VolumeGroups[index].TargetDevices

	out.VolumeGroups = slices.Delete(out.VolumeGroups, index, index+1)
	out.deleteUnusedDevices(targets)

	return out, nil
}

// AddLogicalVolume adds a logical volume to the volume group.
func AddLogicalVolume(cfg *Config, vgName string, lv LogicalVolume) (*Config, error) {
	out := cfg.DeepCopy()

	vg := out.VolumeGroup(vgName)
	if vg == nil {
		return out, notFound("volume group", vgName)
	}

	lv = *lv.DeepCopy()
	if lv.LvName == "" {
		lv.LvName = LogicalVolumeName(lv.MountPath)
	}

	vg.LogicalVolumes = append(vg.LogicalVolumes, lv)

	return out, nil
}

// EditLogicalVolume replaces the logical volume mounted at the given path.
func EditLogicalVolume(cfg *Config, vgName, mountPath string, lv LogicalVolume) (*Config, error) {
	out := cfg.DeepCopy()

	vg := out.VolumeGroup(vgName)
	if vg == nil {
		return out, notFound("volume group", vgName)
	}

	index := slices.IndexFunc(vg.LogicalVolumes, func(lv LogicalVolume) bool { return lv.MountPath == mountPath })
	if index == -1 {
		return out, notFound("logical volume", mountPath)
	}

	vg.LogicalVolumes[index] = *lv.DeepCopy()

	return out, nil
}

// DeleteLogicalVolume removes the logical volume mounted at the given path.
func DeleteLogicalVolume(cfg *Config, vgName, mountPath string) (*Config, error) {
	out := cfg.DeepCopy()

	vg := out.VolumeGroup(vgName)
	if vg == nil {
		return out, notFound("volume group", vgName)
	}

	vg.LogicalVolumes = slices.DeleteFunc(vg.LogicalVolumes, func(lv LogicalVolume) bool { return lv.MountPath == mountPath })

	return out, nil
}
