// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package apimodel

import (
	"fmt"
	"slices"

	"github.com/siderolabs/go-pointer"
)

// SpacePolicyActionType is the action applied to an existing partition by the custom space policy.
type SpacePolicyActionType string

// Space policy actions.
const (
	SpacePolicyActionKeep           SpacePolicyActionType = "keep"
	SpacePolicyActionDelete         SpacePolicyActionType = "delete"
	SpacePolicyActionResizeIfNeeded SpacePolicyActionType = "resizeIfNeeded"
)

// SpacePolicyAction is the action for a single existing partition.
type SpacePolicyAction struct {
	DeviceName string                `json:"deviceName"`
	Value      SpacePolicyActionType `json:"value"`
}

func (c *Config) removeDevice(name string) {
	match := func(d Drive) bool { return d.Name == name }

	c.Drives = slices.DeleteFunc(c.Drives, match)
	c.MdRaids = slices.DeleteFunc(c.MdRaids, match)
}

func notFound(kind, name string) error {
	return fmt.Errorf("%s %q: %w", kind, name, ErrNotFound)
}

// AddDrive adds a drive without partitions, an already configured drive is left as is.
func AddDrive(cfg *Config, name string) *Config {
	out := cfg.DeepCopy()

	if out.Device(name) == nil {
		out.Drives = append(out.Drives, Drive{Name: name})
	}

	return out
}

// RemoveDrive removes the drive or MD RAID.
func RemoveDrive(cfg *Config, name string) (*Config, error) {
	out := cfg.DeepCopy()

	if out.Device(name) == nil {
		return out, notFound("device", name)
	}

	out.removeDevice(name)

	return out, nil
}

// SwitchDrive moves the new partitions of a drive to another one.
//
// The old drive is kept when it is the explicit boot device or when some of its existing
// partitions are reused, otherwise it is removed.
func SwitchDrive(cfg *Config, name, newName string) (*Config, error) {
	out := cfg.DeepCopy()

	if name == newName {
		return out, nil
	}

	drive := out.Device(name)
	if drive == nil {
		return out, notFound("device", name)
	}

	var newPartitions, existingPartitions []Partition

	for _, p := range drive.Partitions {
		if IsNewPartition(&p) {
			newPartitions = append(newPartitions, p)
		} else {
			existingPartitions = append(existingPartitions, p)
		}
	}

	spacePolicy := drive.SpacePolicy
	if spacePolicy == SpacePolicyCustom {
		spacePolicy = ""
	}

	if out.IsExplicitBoot(name) || drive.HasReusedPartitions() {
		drive.Partitions = existingPartitions
	} else {
		out.removeDevice(name)
	}

	if newDrive := out.Device(newName); newDrive != nil {
		newDrive.Partitions = append(newDrive.Partitions, newPartitions...)

		return out, nil
	}

	out.Drives = append(out.Drives, Drive{
		Name:        newName,
		SpacePolicy: spacePolicy,
		Partitions:  newPartitions,
	})

	return out, nil
}

// AddPartition adds a partition to the device, replacing the partition with the same name.
func AddPartition(cfg *Config, deviceName string, partition Partition) (*Config, error) {
	out := cfg.DeepCopy()

	drive := out.Device(deviceName)
	if drive == nil {
		return out, notFound("device", deviceName)
	}

	partition = *partition.DeepCopy()

	index := slices.IndexFunc(drive.Partitions, func(p Partition) bool {
		return p.Name != "" && p.Name == partition.Name
	})

	if index == -1 {
		drive.Partitions = append(drive.Partitions, partition)
	} else {
		drive.Partitions[index] = partition
	}

	return out, nil
}

// EditPartition replaces the partition mounted at the given path.
func EditPartition(cfg *Config, deviceName, mountPath string, partition Partition) (*Config, error) {
	out := cfg.DeepCopy()

	drive := out.Device(deviceName)
	if drive == nil {
		return out, notFound("device", deviceName)
	}

	index := slices.IndexFunc(drive.Partitions, func(p Partition) bool { return p.MountPath == mountPath })
	if index == -1 {
		return out, notFound("partition", mountPath)
	}

	drive.Partitions[index] = *partition.DeepCopy()

	return out, nil
}

// DeletePartition removes the partitions mounted at the given path.
func DeletePartition(cfg *Config, deviceName, mountPath string) (*Config, error) {
	out := cfg.DeepCopy()

	drive := out.Device(deviceName)
	if drive == nil {
		return out, notFound("device", deviceName)
	}

	drive.Partitions = slices.DeleteFunc(drive.Partitions, func(p Partition) bool { return p.MountPath == mountPath })

	return out, nil
}

// SetSpacePolicy sets the space policy of the device.
//
// For the custom policy the actions of all existing partitions are reset and then the
// given actions are applied.
func SetSpacePolicy(cfg *Config, deviceName string, policy SpacePolicy, actions []SpacePolicyAction) (*Config, error) {
	out := cfg.DeepCopy()

	drive := out.Device(deviceName)
	if drive == nil {
		return out, notFound("device", deviceName)
	}

	drive.SpacePolicy = policy

	if policy != SpacePolicyCustom {
		return out, nil
	}

	for i := range drive.Partitions {
		p := &drive.Partitions[i]

		if IsNewPartition(p) {
			continue
		}

		p.Delete = false
		p.DeleteIfNeeded = false
		p.ResizeIfNeeded = pointer.To(false)
		p.Size = nil
	}

	for _, action := range actions {
		isDelete := action.Value == SpacePolicyActionDelete
		isResize := action.Value == SpacePolicyActionResizeIfNeeded

		index := slices.IndexFunc(drive.Partitions, func(p Partition) bool { return p.Name == action.DeviceName })
		if index == -1 {
			drive.Partitions = append(drive.Partitions, Partition{
				Name:           action.DeviceName,
				Delete:         isDelete,
				ResizeIfNeeded: pointer.To(isResize),
			})

			continue
		}

		drive.Partitions[index].Delete = isDelete
		drive.Partitions[index].ResizeIfNeeded = pointer.To(isResize)
	}

	return out, nil
}

func setBoot(cfg *Config, boot *Boot) *Config {
	out := cfg.DeepCopy()

	var previous string

	if out.Boot != nil && out.Boot.Device != nil && !out.Boot.Device.Default {
		previous = out.Boot.Device.Name
	}

	out.Boot = boot

	if previous != "" && !out.IsUsedDevice(previous) {
		out.removeDevice(previous)
	}

	return out
}

// SetBootDevice selects the device holding the boot partitions.
//
// The previous explicit boot device is removed if nothing else uses it.
func SetBootDevice(cfg *Config, deviceName string) *Config {
	return setBoot(cfg, &Boot{Configure: true, Device: &BootDevice{Name: deviceName}})
}

// SetDefaultBootDevice lets the solver choose the boot device.
func SetDefaultBootDevice(cfg *Config) *Config {
	return setBoot(cfg, &Boot{Configure: true, Device: &BootDevice{Default: true}})
}

// DisableBoot disables the configuration of boot partitions.
func DisableBoot(cfg *Config) *Config {
	return setBoot(cfg, &Boot{Configure: false})
}

// SetEncryption encrypts all new devices.
func SetEncryption(cfg *Config, method, password string) *Config {
	out := cfg.DeepCopy()
	out.Encryption = &Encryption{Method: method, Password: password}

	return out
}

// DisableEncryption disables the encryption of new devices.
func DisableEncryption(cfg *Config) *Config {
	out := cfg.DeepCopy()
	out.Encryption = nil

	return out
}
