// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package config

import (
	"github.com/siderolabs/storagecfg/pkg/machinery/config/types/storage"
	"github.com/siderolabs/storagecfg/pkg/storage/apimodel"
)

// GenerateLogicalVolume builds the API model logical volume.
func GenerateLogicalVolume(raw, solved *storage.LogicalVolume) *apimodel.LogicalVolume {
	if solved == nil {
		return nil
	}

	var (
		rawSize storage.Size
		rawFS   *storage.Filesystem
	)

	if raw != nil {
		rawSize = raw.Size
		rawFS = raw.Filesystem
	}

	lv := &apimodel.LogicalVolume{
		LvName:     solved.Name,
		MountPath:  mountPath(solved.Filesystem),
		Filesystem: generateFilesystemModel(rawFS, solved.Filesystem),
		Size:       GenerateSize(rawSize, solved.Size),
	}

	if solved.Stripes != nil {
		stripes := *solved.Stripes
		lv.Stripes = &stripes
	}

	if solved.StripeSize != nil {
		stripeSize := solved.StripeSize.Value()
		lv.StripeSize = &stripeSize
	}

	return lv
}

func logicalVolumeKey(element storage.LogicalVolumeElement) elementKey {
	if lv, ok := element.(*storage.LogicalVolume); ok {
		return elementKey{alias: lv.Alias, name: lv.Name}
	}

	return elementKey{}
}

// GenerateVolumeGroup builds the API model volume group.
//
// Target devices are the devices the physical volumes are generated on, devices maps
// the aliases of the solved config to device names.
func GenerateVolumeGroup(raw, solved *storage.VolumeGroup, devices map[string]string) *apimodel.VolumeGroup {
	if solved == nil {
		return nil
	}

	vg := &apimodel.VolumeGroup{
		VgName: solved.Name,
	}

	if solved.ExtentSize != nil {
		extentSize := solved.ExtentSize.Value()
		vg.ExtentSize = &extentSize
	}

	for _, alias := range solved.TargetAliases() {
		if name, ok := devices[alias]; ok {
			vg.TargetDevices = append(vg.TargetDevices, name)
		}
	}

	var rawVolumes storage.LogicalVolumeList

	if raw != nil {
		rawVolumes = raw.LogicalVolumes
	}

	for i, element := range solved.LogicalVolumes {
		solvedLV, ok := element.(*storage.LogicalVolume)
		if !ok {
			continue
		}

		rawElement, _ := pairRaw(rawVolumes, i, logicalVolumeKey(element), logicalVolumeKey)
		rawLV, _ := rawElement.(*storage.LogicalVolume)

		vg.LogicalVolumes = append(vg.LogicalVolumes, *GenerateLogicalVolume(rawLV, solvedLV))
	}

	return vg
}

// DeviceNames maps the aliases of the devices to the device names.
func DeviceNames(cfg *storage.Config) map[string]string {
	result := map[string]string{}

	for _, device := range cfg.Devices() {
		name := GenerateName(device.DeviceSearch())

		if alias := device.DeviceAlias(); alias != "" && name != "" {
			result[alias] = name
		}
	}

	return result
}

// GenerateBoot builds the API model boot settings.
func GenerateBoot(raw, solved *storage.Config, devices map[string]string) *apimodel.Boot {
	if solved.Boot == nil {
		return nil
	}

	boot := &apimodel.Boot{Configure: solved.Boot.Configure}

	isDefault := raw == nil || raw.Boot == nil || raw.Boot.Device == ""
	name := devices[solved.Boot.Device]

	if isDefault || name != "" {
		boot.Device = &apimodel.BootDevice{Default: isDefault, Name: name}
	}

	return boot
}

// GenerateEncryption returns the encryption of the new devices.
//
// The first encryption found on a physical volume generator, a new partition or a logical
// volume is used.
func GenerateEncryption(cfg *storage.Config) *apimodel.Encryption {
	convert := func(e *storage.Encryption) *apimodel.Encryption {
		return &apimodel.Encryption{Method: string(e.Method), Password: e.Password}
	}

	for _, vg := range cfg.VolumeGroups {
		for _, pv := range vg.PhysicalVolumes {
			if g, ok := pv.(*storage.PhysicalVolumesGenerator); ok && g.Encryption != nil {
				return convert(g.Encryption)
			}
		}

		for _, element := range vg.LogicalVolumes {
			if lv, ok := element.(*storage.LogicalVolume); ok && lv.Encryption != nil {
				return convert(lv.Encryption)
			}
		}
	}

	for _, device := range cfg.Devices() {
		d, ok := device.(*storage.PartitionedDrive)
		if !ok {
			continue
		}

		for _, element := range d.Partitions {
			switch p := element.(type) {
			case *storage.Partition:
				if p.Search == nil && p.Encryption != nil {
					return convert(p.Encryption)
				}
			case *storage.VolumesGenerator:
				if p.Generate.Encryption != nil {
					return convert(p.Generate.Encryption)
				}
			}
		}
	}

	return nil
}

// Generate builds the API model out of the raw and the solved config.
func Generate(raw, solved *storage.Config) *apimodel.Config {
	if solved == nil {
		return nil
	}

	if raw == nil {
		raw = &storage.Config{}
	}

	devices := DeviceNames(solved)

	model := &apimodel.Config{
		Boot:       GenerateBoot(raw, solved, devices),
		Encryption: GenerateEncryption(solved),
	}

	for i, device := range solved.Drives {
		rawDevice, _ := pairRaw(raw.Drives, i, driveKey(device), driveKey)

		if drive := GenerateDrive(rawDevice, device); drive != nil && drive.Name != "" {
			model.Drives = append(model.Drives, *drive)
		}
	}

	for i, device := range solved.MdRaids {
		rawDevice, _ := pairRaw(raw.MdRaids, i, driveKey(device), driveKey)

		if mdRaid := GenerateMdRaid(rawDevice, device); mdRaid != nil && mdRaid.Name != "" {
			model.MdRaids = append(model.MdRaids, *mdRaid)
		}
	}

	for i := range solved.VolumeGroups {
		solvedVG := &solved.VolumeGroups[i]

		var rawVG *storage.VolumeGroup

		for j := range raw.VolumeGroups {
			if raw.VolumeGroups[j].Name == solvedVG.Name {
				rawVG = &raw.VolumeGroups[j]

				break
			}
		}

		model.VolumeGroups = append(model.VolumeGroups, *GenerateVolumeGroup(rawVG, solvedVG, devices))
	}

	return model
}
