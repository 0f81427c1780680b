// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package apimodel implements the API model: the flattened storage config edited by clients.
//
// Every helper in this package returns a new document and never modifies its input.
package apimodel

import (
	"errors"
	"slices"
)

// ErrNotFound is returned when a helper refers to a device or a volume group missing in the model.
var ErrNotFound = errors.New("not found")

// SpacePolicy defines what happens with the existing content of a device.
type SpacePolicy string

// Space policies.
const (
	SpacePolicyKeep   SpacePolicy = "keep"
	SpacePolicyResize SpacePolicy = "resize"
	SpacePolicyDelete SpacePolicy = "delete"
	SpacePolicyCustom SpacePolicy = "custom"
)

// Config is the API model document.
type Config struct {
	Boot         *Boot         `json:"boot,omitempty"`
	Encryption   *Encryption   `json:"encryption,omitempty"`
	Drives       []Drive       `json:"drives,omitempty"`
	MdRaids      []MdRaid      `json:"mdRaids,omitempty"`
	VolumeGroups []VolumeGroup `json:"volumeGroups,omitempty"`
}

// Boot configures the boot partitions.
type Boot struct {
	Configure bool        `json:"configure"`
	Device    *BootDevice `json:"device,omitempty"`
}

// BootDevice is the device holding the boot partitions.
type BootDevice struct {
	Default bool   `json:"default"`
	Name    string `json:"name,omitempty"`
}

// Encryption is the encryption applied to all new devices.
type Encryption struct {
	Method   string `json:"method"`
	Password string `json:"password,omitempty"`
}

// Drive is a disk device.
type Drive struct {
	Name        string      `json:"name"`
	Alias       string      `json:"alias,omitempty"`
	MountPath   string      `json:"mountPath,omitempty"`
	Filesystem  *Filesystem `json:"filesystem,omitempty"`
	SpacePolicy SpacePolicy `json:"spacePolicy,omitempty"`
	PtableType  string      `json:"ptableType,omitempty"`
	Partitions  []Partition `json:"partitions,omitempty"`
}

// MdRaid is an MD RAID device, it has the same shape as a drive.
type MdRaid = Drive

// Partition is a partition of a drive.
//
// A partition without name is new, a partition with name refers to an existing one.
type Partition struct {
	Name           string      `json:"name,omitempty"`
	Alias          string      `json:"alias,omitempty"`
	ID             string      `json:"id,omitempty"`
	MountPath      string      `json:"mountPath,omitempty"`
	Filesystem     *Filesystem `json:"filesystem,omitempty"`
	Size           *Size       `json:"size,omitempty"`
	Delete         bool        `json:"delete,omitempty"`
	DeleteIfNeeded bool        `json:"deleteIfNeeded,omitempty"`
	Resize         *bool       `json:"resize,omitempty"`
	ResizeIfNeeded *bool       `json:"resizeIfNeeded,omitempty"`
}

// VolumeGroup is an LVM volume group.
type VolumeGroup struct {
	VgName         string          `json:"vgName"`
	ExtentSize     *uint64         `json:"extentSize,omitempty"`
	TargetDevices  []string        `json:"targetDevices,omitempty"`
	LogicalVolumes []LogicalVolume `json:"logicalVolumes,omitempty"`
}

// LogicalVolume is an LVM logical volume.
type LogicalVolume struct {
	LvName     string      `json:"lvName"`
	MountPath  string      `json:"mountPath,omitempty"`
	Filesystem *Filesystem `json:"filesystem,omitempty"`
	Size       *Size       `json:"size,omitempty"`
	Stripes    *uint64     `json:"stripes,omitempty"`
	StripeSize *uint64     `json:"stripeSize,omitempty"`
}

// Filesystem is the flattened filesystem of a device.
type Filesystem struct {
	Reuse     bool   `json:"reuse,omitempty"`
	Default   bool   `json:"default"`
	Type      string `json:"type,omitempty"`
	Snapshots *bool  `json:"snapshots,omitempty"`
	Label     string `json:"label,omitempty"`
}

// Size is a size range in bytes.
//
// Auto is set when the size was not given explicitly. A nil Max means no upper limit.
type Size struct {
	Auto bool    `json:"auto"`
	Min  uint64  `json:"min"`
	Max  *uint64 `json:"max,omitempty"`
}

// IsFixed reports whether both bounds are equal.
func (s *Size) IsFixed() bool {
	return s != nil && s.Max != nil && *s.Max == s.Min
}

// Copy returns a deep copy of the document.
func Copy(cfg *Config) *Config {
	return cfg.DeepCopy()
}

// DeepCopy returns a deep copy of the document.
func (c *Config) DeepCopy() *Config {
	if c == nil {
		return nil
	}

	out := &Config{
		Boot:         c.Boot.DeepCopy(),
		Drives:       deepCopySlice(c.Drives, (*Drive).DeepCopy),
		MdRaids:      deepCopySlice(c.MdRaids, (*Drive).DeepCopy),
		VolumeGroups: deepCopySlice(c.VolumeGroups, (*VolumeGroup).DeepCopy),
	}

	if c.Encryption != nil {
		out.Encryption = new(Encryption)
		*out.Encryption = *c.Encryption
	}

	return out
}

// DeepCopy returns a deep copy of the boot settings.
func (b *Boot) DeepCopy() *Boot {
	if b == nil {
		return nil
	}

	out := &Boot{Configure: b.Configure}

	if b.Device != nil {
		out.Device = new(BootDevice)
		*out.Device = *b.Device
	}

	return out
}

// DeepCopy returns a deep copy of the drive.
func (d *Drive) DeepCopy() *Drive {
	out := *d
	out.Filesystem = d.Filesystem.DeepCopy()
	out.Partitions = deepCopySlice(d.Partitions, (*Partition).DeepCopy)

	return &out
}

// DeepCopy returns a deep copy of the partition.
func (p *Partition) DeepCopy() *Partition {
	out := *p
	out.Filesystem = p.Filesystem.DeepCopy()
	out.Size = p.Size.DeepCopy()
	out.Resize = copyPtr(p.Resize)
	out.ResizeIfNeeded = copyPtr(p.ResizeIfNeeded)

	return &out
}

// DeepCopy returns a deep copy of the volume group.
func (vg *VolumeGroup) DeepCopy() *VolumeGroup {
	out := *vg
	out.ExtentSize = copyPtr(vg.ExtentSize)
	out.TargetDevices = slices.Clone(vg.TargetDevices)
	out.LogicalVolumes = deepCopySlice(vg.LogicalVolumes, (*LogicalVolume).DeepCopy)

	return &out
}

// DeepCopy returns a deep copy of the logical volume.
func (lv *LogicalVolume) DeepCopy() *LogicalVolume {
	out := *lv
	out.Filesystem = lv.Filesystem.DeepCopy()
	out.Size = lv.Size.DeepCopy()
	out.Stripes = copyPtr(lv.Stripes)
	out.StripeSize = copyPtr(lv.StripeSize)

	return &out
}

// DeepCopy returns a deep copy of the filesystem.
func (fs *Filesystem) DeepCopy() *Filesystem {
	if fs == nil {
		return nil
	}

	out := *fs
	out.Snapshots = copyPtr(fs.Snapshots)

	return &out
}

// DeepCopy returns a deep copy of the size.
func (s *Size) DeepCopy() *Size {
	if s == nil {
		return nil
	}

	out := *s
	out.Max = copyPtr(s.Max)

	return &out
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}

	v := *p

	return &v
}

func deepCopySlice[T any](in []T, deepCopy func(*T) *T) []T {
	if in == nil {
		return nil
	}

	out := make([]T, len(in))

	for i := range in {
		out[i] = *deepCopy(&in[i])
	}

	return out
}
