// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package model provides a read-only view over the storage API model.
//
// The view precomputes the derived properties of devices, partitions and volume groups
// (whether a device is used, is the boot device, which volume groups target it, etc.).
// A view is built once per API model and must be rebuilt after the model changes.
package model

import (
	"slices"

	"github.com/siderolabs/gen/xslices"

	"github.com/siderolabs/storagecfg/pkg/storage/apimodel"
)

// List identifies the API model list a device comes from.
type List string

// Device lists.
const (
	ListDrives  List = "drives"
	ListMdRaids List = "mdRaids"
)

// Model is the view over an API model.
type Model struct {
	Boot         Boot           `json:"boot"`
	Drives       []*Device      `json:"drives"`
	MdRaids      []*Device      `json:"mdRaids"`
	VolumeGroups []*VolumeGroup `json:"volumeGroups"`
}

// Boot is the boot settings view.
type Boot struct {
	model *Model

	DeviceName string `json:"device,omitempty"`
	Configure  bool   `json:"configure"`
	IsDefault  bool   `json:"isDefault"`
}

// Device returns the boot device, nil if the boot device is not in the model.
func (b Boot) Device() *Device {
	if b.model == nil || b.DeviceName == "" {
		return nil
	}

	return b.model.Device(b.DeviceName)
}

// Device is a drive or an MD RAID.
type Device struct {
	model *Model

	Filesystem  *apimodel.Filesystem `json:"filesystem,omitempty"`
	Name        string               `json:"name"`
	Alias       string               `json:"alias,omitempty"`
	MountPath   string               `json:"mountPath,omitempty"`
	PtableType  string               `json:"ptableType,omitempty"`
	SpacePolicy apimodel.SpacePolicy `json:"spacePolicy,omitempty"`
	List        List                 `json:"list"`
	Partitions  []*Partition         `json:"partitions,omitempty"`
	ListIndex   int                  `json:"listIndex"`

	IsUsed              bool `json:"isUsed"`
	IsAddingPartitions  bool `json:"isAddingPartitions"`
	IsReusingPartitions bool `json:"isReusingPartitions"`
	IsTargetDevice      bool `json:"isTargetDevice"`
	IsBoot              bool `json:"isBoot"`
	IsExplicitBoot      bool `json:"isExplicitBoot"`
}

// MountPaths returns the mount paths of the device and its partitions.
func (d *Device) MountPaths() []string {
	paths := make([]string, 0, len(d.Partitions)+1)

	if d.MountPath != "" {
		paths = append(paths, d.MountPath)
	}

	for _, p := range d.Partitions {
		if p.MountPath != "" {
			paths = append(paths, p.MountPath)
		}
	}

	return paths
}

// VolumeGroups returns the volume groups created on the device.
func (d *Device) VolumeGroups() []*VolumeGroup {
	return xslices.Filter(d.model.VolumeGroups, func(vg *VolumeGroup) bool {
		return slices.Contains(vg.TargetNames, d.Name)
	})
}

// Partition returns the partition mounted at path.
func (d *Device) Partition(path string) *Partition {
	for _, p := range d.Partitions {
		if p.MountPath == path {
			return p
		}
	}

	return nil
}

// ConfiguredExistingPartitions returns the existing partitions the config refers to.
func (d *Device) ConfiguredExistingPartitions() []*Partition {
	if d.SpacePolicy == apimodel.SpacePolicyCustom {
		return xslices.Filter(d.Partitions, func(p *Partition) bool {
			return !p.IsNew && (p.IsUsed || p.IsUsedBySpacePolicy)
		})
	}

	return xslices.Filter(d.Partitions, func(p *Partition) bool { return p.IsReused })
}

// Partition is the partition view.
type Partition struct {
	apimodel.Partition

	IsNew               bool `json:"isNew"`
	IsUsed              bool `json:"isUsed"`
	IsReused            bool `json:"isReused"`
	IsUsedBySpacePolicy bool `json:"isUsedBySpacePolicy"`
}

// VolumeGroup is the volume group view.
type VolumeGroup struct {
	model *Model

	ExtentSize     *uint64                  `json:"extentSize,omitempty"`
	Name           string                   `json:"vgName"`
	TargetNames    []string                 `json:"targetDevices,omitempty"`
	LogicalVolumes []apimodel.LogicalVolume `json:"logicalVolumes,omitempty"`
	ListIndex      int                      `json:"listIndex"`
}

// MountPaths returns the mount paths of the logical volumes.
func (vg *VolumeGroup) MountPaths() []string {
	return xslices.Map(
		xslices.Filter(vg.LogicalVolumes, func(lv apimodel.LogicalVolume) bool { return lv.MountPath != "" }),
		func(lv apimodel.LogicalVolume) string { return lv.MountPath },
	)
}

// TargetDevices returns the devices of the model the volume group is created on.
//
// Target devices missing from the model are skipped.
func (vg *VolumeGroup) TargetDevices() []*Device {
	result := make([]*Device, 0, len(vg.TargetNames))

	for _, name := range vg.TargetNames {
		if d := vg.model.Device(name); d != nil {
			result = append(result, d)
		}
	}

	return result
}

// Devices returns drives followed by MD RAIDs.
func (m *Model) Devices() []*Device {
	return slices.Concat(m.Drives, m.MdRaids)
}

// Device returns the drive or MD RAID with the given name.
func (m *Model) Device(name string) *Device {
	for _, d := range m.Devices() {
		if d.Name != "" && d.Name == name {
			return d
		}
	}

	return nil
}

// VolumeGroup returns the volume group with the given name.
func (m *Model) VolumeGroup(name string) *VolumeGroup {
	for _, vg := range m.VolumeGroups {
		if vg.Name == name {
			return vg
		}
	}

	return nil
}

// MountPaths returns the mount paths of all devices and volume groups.
func (m *Model) MountPaths() []string {
	var paths []string

	for _, d := range m.Devices() {
		paths = append(paths, d.MountPaths()...)
	}

	for _, vg := range m.VolumeGroups {
		paths = append(paths, vg.MountPaths()...)
	}

	return paths
}

// Build builds the view of the API model.
//
// The view does not share memory with the API model.
func Build(cfg *apimodel.Config) *Model {
	m := &Model{
		Drives:       []*Device{},
		MdRaids:      []*Device{},
		VolumeGroups: []*VolumeGroup{},
	}

	if cfg == nil {
		m.Boot.model = m

		return m
	}

	cfg = apimodel.Copy(cfg)

	m.Boot = buildBoot(cfg, m)

	for i := range cfg.Drives {
		m.Drives = append(m.Drives, buildDevice(cfg, &cfg.Drives[i], ListDrives, i, m))
	}

	for i := range cfg.MdRaids {
		m.MdRaids = append(m.MdRaids, buildDevice(cfg, &cfg.MdRaids[i], ListMdRaids, i, m))
	}

	for i, vg := range cfg.VolumeGroups {
		m.VolumeGroups = append(m.VolumeGroups, &VolumeGroup{
			model:          m,
			Name:           vg.VgName,
			ExtentSize:     vg.ExtentSize,
			TargetNames:    vg.TargetDevices,
			LogicalVolumes: vg.LogicalVolumes,
			ListIndex:      i,
		})
	}

	return m
}

func buildBoot(cfg *apimodel.Config, m *Model) Boot {
	boot := Boot{model: m}

	if cfg.Boot == nil {
		return boot
	}

	boot.Configure = cfg.Boot.Configure

	if cfg.Boot.Device != nil {
		boot.IsDefault = cfg.Boot.Device.Default
		boot.DeviceName = cfg.Boot.Device.Name
	}

	return boot
}

func buildPartition(p apimodel.Partition) *Partition {
	return &Partition{
		Partition:           p,
		IsNew:               apimodel.IsNewPartition(&p),
		IsUsed:              apimodel.IsUsedPartition(&p),
		IsReused:            apimodel.IsReusedPartition(&p),
		IsUsedBySpacePolicy: apimodel.IsSpacePolicyPartition(&p),
	}
}

func buildDevice(cfg *apimodel.Config, d *apimodel.Drive, list List, index int, m *Model) *Device {
	device := &Device{
		model:       m,
		Name:        d.Name,
		Alias:       d.Alias,
		MountPath:   d.MountPath,
		Filesystem:  d.Filesystem,
		PtableType:  d.PtableType,
		SpacePolicy: d.SpacePolicy,
		List:        list,
		ListIndex:   index,
		Partitions:  xslices.Map(d.Partitions, buildPartition),
	}

	device.IsBoot = cfg.IsBoot(d.Name)
	device.IsExplicitBoot = cfg.IsExplicitBoot(d.Name)
	device.IsTargetDevice = cfg.IsTargetDevice(d.Name)
	device.IsUsed = device.IsExplicitBoot || device.IsTargetDevice || len(device.MountPaths()) > 0
	device.IsAddingPartitions = slices.ContainsFunc(device.Partitions, func(p *Partition) bool {
		return p.IsNew && p.MountPath != ""
	})
	device.IsReusingPartitions = slices.ContainsFunc(device.Partitions, func(p *Partition) bool {
		return p.IsReused
	})

	return device
}
