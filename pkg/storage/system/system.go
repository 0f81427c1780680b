// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package system describes the storage devices of the target system.
//
// The inventory is either loaded from a file or probed from the running Linux system.
package system

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/siderolabs/gen/xslices"
	"sigs.k8s.io/yaml"

	"github.com/siderolabs/storagecfg/pkg/machinery/config/types/storage"
	"github.com/siderolabs/storagecfg/pkg/machinery/constants"
)

// ErrUnsupported is returned when the system can't be probed on the platform.
var ErrUnsupported = errors.New("system probing is not supported on this platform")

// DeviceType is the type of a partitionable device.
type DeviceType string

// Device types.
const (
	DeviceTypeDisk DeviceType = "disk"
	DeviceTypeMD   DeviceType = "md"
)

// System is the storage inventory.
type System struct {
	Devices           []Device                   `json:"devices"`
	VolumeTemplates   []VolumeTemplate           `json:"volumeTemplates,omitempty"`
	EncryptionMethods []storage.EncryptionMethod `json:"encryptionMethods,omitempty"`
}

// Device is a disk or an MD RAID.
type Device struct {
	Name       string            `json:"name"`
	Type       DeviceType        `json:"type,omitempty"`
	PtableType string            `json:"ptableType,omitempty"`
	Filesystem string            `json:"filesystem,omitempty"`
	Partitions []Partition       `json:"partitions,omitempty"`
	Size       storage.SizeBound `json:"size"`
}

// Partition is an existing partition.
type Partition struct {
	// ShrinkableSize is the amount of bytes the partition can be shrunk by.
	ShrinkableSize *storage.SizeBound `json:"shrinkableSize,omitempty"`

	Name       string            `json:"name"`
	Filesystem string            `json:"filesystem,omitempty"`
	Label      string            `json:"label,omitempty"`
	Size       storage.SizeBound `json:"size"`
}

// MinSize returns the size the partition can be shrunk to.
func (p *Partition) MinSize() uint64 {
	size := p.Size.Value()

	if p.ShrinkableSize == nil {
		return size
	}

	if shrinkable := p.ShrinkableSize.Value(); shrinkable < size {
		return size - shrinkable
	}

	return 0
}

// VolumeTemplate describes the volume proposed for a mount path.
type VolumeTemplate struct {
	MaxSize    *storage.SizeBound `json:"maxSize,omitempty"`
	Snapshots  *bool              `json:"snapshots,omitempty"`
	MountPath  string             `json:"mountPath"`
	Filesystem string             `json:"filesystem,omitempty"`
	MinSize    storage.SizeBound  `json:"minSize"`
	// Default volumes are created by the default volumes generator.
	Default bool `json:"default,omitempty"`
	// Mandatory volumes are created by every volumes generator.
	Mandatory bool `json:"mandatory,omitempty"`
}

// Load reads the inventory as JSON or YAML.
func Load(r io.Reader) (*System, error) {
	in, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read system: %w", err)
	}

	return Parse(in)
}

// LoadFile reads the inventory from a file.
func LoadFile(path string) (*System, error) {
	in, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read system: %w", err)
	}

	return Parse(in)
}

// Parse parses the inventory as JSON or YAML.
func Parse(in []byte) (*System, error) {
	data, err := yaml.YAMLToJSON(in)
	if err != nil {
		return nil, fmt.Errorf("failed to parse system: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var sys System

	if err = dec.Decode(&sys); err != nil {
		return nil, fmt.Errorf("failed to parse system: %w", err)
	}

	for i := range sys.Devices {
		if sys.Devices[i].Type == "" {
			sys.Devices[i].Type = guessType(sys.Devices[i].Name)
		}
	}

	if len(sys.EncryptionMethods) == 0 {
		sys.EncryptionMethods = DefaultEncryptionMethods()
	}

	return &sys, nil
}

func guessType(name string) DeviceType {
	if strings.HasPrefix(strings.TrimPrefix(name, constants.DevRoot+"/"), "md") {
		return DeviceTypeMD
	}

	return DeviceTypeDisk
}

// DefaultEncryptionMethods returns the encryption methods available on any Linux system.
func DefaultEncryptionMethods() []storage.EncryptionMethod {
	return []storage.EncryptionMethod{
		storage.EncryptionLUKS1,
		storage.EncryptionLUKS2,
		storage.EncryptionPervasiveLUKS2,
		storage.EncryptionRandomSwap,
		storage.EncryptionProtectedSwap,
		storage.EncryptionSecureSwap,
	}
}

// Disks returns the disks.
func (s *System) Disks() []*Device {
	return s.devicesOfType(DeviceTypeDisk)
}

// MdRaids returns the MD RAIDs.
func (s *System) MdRaids() []*Device {
	return s.devicesOfType(DeviceTypeMD)
}

func (s *System) devicesOfType(typ DeviceType) []*Device {
	return xslices.Filter(s.devices(), func(d *Device) bool { return d.Type == typ })
}

func (s *System) devices() []*Device {
	result := make([]*Device, 0, len(s.Devices))

	for i := range s.Devices {
		result = append(result, &s.Devices[i])
	}

	return result
}

// Device returns the device with the given name.
func (s *System) Device(name string) *Device {
	for _, d := range s.devices() {
		if d.Name == name {
			return d
		}
	}

	return nil
}

// Partition returns the partition with the given name and its device.
func (s *System) Partition(name string) (*Device, *Partition) {
	for _, d := range s.devices() {
		if p := d.Partition(name); p != nil {
			return d, p
		}
	}

	return nil, nil
}

// Partition returns the partition of the device with the given name.
func (d *Device) Partition(name string) *Partition {
	for i := range d.Partitions {
		if d.Partitions[i].Name == name {
			return &d.Partitions[i]
		}
	}

	return nil
}

// VolumeTemplate returns the template for the mount path.
//
// The template with an empty mount path is the fallback for any other path.
func (s *System) VolumeTemplate(mountPath string) *VolumeTemplate {
	var fallback *VolumeTemplate

	for i := range s.VolumeTemplates {
		switch s.VolumeTemplates[i].MountPath {
		case mountPath:
			return &s.VolumeTemplates[i]
		case "":
			if fallback == nil {
				fallback = &s.VolumeTemplates[i]
			}
		}
	}

	return fallback
}

// GeneratedTemplates returns the templates of the volumes created by a generator.
func (s *System) GeneratedTemplates(mandatoryOnly bool) []VolumeTemplate {
	return xslices.Filter(s.VolumeTemplates, func(t VolumeTemplate) bool {
		if t.MountPath == "" {
			return false
		}

		if mandatoryOnly {
			return t.Mandatory
		}

		return t.Mandatory || t.Default
	})
}

// MountPaths returns the mount paths with a volume template.
func (s *System) MountPaths() []string {
	return xslices.Map(
		xslices.Filter(s.VolumeTemplates, func(t VolumeTemplate) bool { return t.MountPath != "" }),
		func(t VolumeTemplate) string { return t.MountPath },
	)
}
