// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package config

import (
	"github.com/siderolabs/go-pointer"

	"github.com/siderolabs/storagecfg/pkg/machinery/config/types/storage"
	"github.com/siderolabs/storagecfg/pkg/storage/apimodel"
)

// ToConfig converts the API model back into a config document.
//
// Space policies are expanded into partition actions, volume groups get physical volumes
// generated on their target devices. Devices referenced by volume groups or by the boot
// settings get an alias (the device name unless one is set).
func ToConfig(model *apimodel.Config) *storage.Config {
	if model == nil {
		return nil
	}

	cfg := &storage.Config{}

	var encryption *storage.Encryption

	if model.Encryption != nil {
		encryption = &storage.Encryption{
			Method:   storage.EncryptionMethod(model.Encryption.Method),
			Password: model.Encryption.Password,
		}
	}

	aliases := map[string]string{}

	aliasOf := func(d *apimodel.Drive) string {
		alias := d.Alias

		if alias == "" && (model.IsTargetDevice(d.Name) || model.IsExplicitBoot(d.Name)) {
			alias = d.Name
		}

		if alias != "" {
			aliases[d.Name] = alias
		}

		return alias
	}

	for i := range model.Drives {
		cfg.Drives = append(cfg.Drives, deviceToConfig(&model.Drives[i], aliasOf(&model.Drives[i]), encryption))
	}

	for i := range model.MdRaids {
		cfg.MdRaids = append(cfg.MdRaids, deviceToConfig(&model.MdRaids[i], aliasOf(&model.MdRaids[i]), encryption))
	}

	// devices referenced elsewhere must be present in the document
	referenced := func(name string) string {
		if alias, ok := aliases[name]; ok {
			return alias
		}

		aliases[name] = name
		cfg.Drives = append(cfg.Drives, &storage.PartitionedDrive{
			Search: storage.SearchName(name),
			Alias:  name,
		})

		return name
	}

	for _, vg := range model.VolumeGroups {
		out := storage.VolumeGroup{Name: vg.VgName}

		if vg.ExtentSize != nil {
			out.ExtentSize = pointer.To(storage.Bytes(*vg.ExtentSize))
		}

		if len(vg.TargetDevices) > 0 {
			generator := &storage.PhysicalVolumesGenerator{Encryption: encryption}

			for _, target := range vg.TargetDevices {
				generator.TargetDevices = append(generator.TargetDevices, referenced(target))
			}

			out.PhysicalVolumes = storage.PhysicalVolumeList{generator}
		}

		for _, lv := range vg.LogicalVolumes {
			out.LogicalVolumes = append(out.LogicalVolumes, logicalVolumeToConfig(lv))
		}

		cfg.VolumeGroups = append(cfg.VolumeGroups, out)
	}

	if model.Boot != nil {
		cfg.Boot = &storage.Boot{Configure: model.Boot.Configure}

		if device := model.Boot.Device; device != nil && !device.Default && device.Name != "" {
			cfg.Boot.Device = referenced(device.Name)
		}
	}

	return cfg
}

func deviceToConfig(d *apimodel.Drive, alias string, encryption *storage.Encryption) storage.DriveElement {
	search := storage.SearchName(d.Name)

	if d.MountPath != "" || (d.Filesystem != nil && len(d.Partitions) == 0) {
		return &storage.FormattedDrive{
			Search:     search,
			Alias:      alias,
			Filesystem: filesystemToConfig(d.Filesystem, d.MountPath),
		}
	}

	drive := &storage.PartitionedDrive{
		Search:     search,
		Alias:      alias,
		PtableType: d.PtableType,
	}

	switch d.SpacePolicy { //nolint:exhaustive
	case apimodel.SpacePolicyDelete:
		drive.Partitions = append(drive.Partitions, &storage.PartitionToDelete{
			Search: storage.SearchAll{},
			Delete: true,
		})
	case apimodel.SpacePolicyResize:
		drive.Partitions = append(drive.Partitions, &storage.Partition{
			Search: storage.SearchAll{},
			Size:   storage.NewSizeRange(storage.Bytes(0), pointer.To(storage.CurrentSize)),
		})
	}

	for _, p := range d.Partitions {
		if element := partitionToConfig(p, d.SpacePolicy == apimodel.SpacePolicyCustom, encryption); element != nil {
			drive.Partitions = append(drive.Partitions, element)
		}
	}

	return drive
}

func partitionToConfig(p apimodel.Partition, custom bool, encryption *storage.Encryption) storage.PartitionElement {
	if apimodel.IsNewPartition(&p) {
		return &storage.Partition{
			Alias:      p.Alias,
			ID:         p.ID,
			Size:       sizeToConfig(p.Size),
			Encryption: encryption,
			Filesystem: filesystemToConfig(p.Filesystem, p.MountPath),
		}
	}

	search := storage.SearchName(p.Name)
	resizeIfNeeded := custom && pointer.SafeDeref(p.ResizeIfNeeded)

	switch {
	case custom && p.Delete:
		return &storage.PartitionToDelete{Search: search, Delete: true}
	case custom && p.DeleteIfNeeded:
		return &storage.PartitionToDeleteIfNeeded{Search: search, DeleteIfNeeded: true, Size: sizeToConfig(p.Size)}
	case apimodel.IsUsedPartition(&p) || resizeIfNeeded || pointer.SafeDeref(p.Resize):
		partition := &storage.Partition{
			Search:     search,
			Alias:      p.Alias,
			ID:         p.ID,
			Filesystem: filesystemToConfig(p.Filesystem, p.MountPath),
		}

		if pointer.SafeDeref(p.Resize) || resizeIfNeeded {
			partition.Size = sizeToConfig(p.Size)
		}

		if partition.Size == nil && resizeIfNeeded {
			partition.Size = storage.NewSizeRange(storage.Bytes(0), pointer.To(storage.CurrentSize))
		}

		return partition
	default:
		return nil
	}
}

func logicalVolumeToConfig(lv apimodel.LogicalVolume) storage.LogicalVolumeElement {
	out := &storage.LogicalVolume{
		Name:       lv.LvName,
		Size:       sizeToConfig(lv.Size),
		Filesystem: filesystemToConfig(lv.Filesystem, lv.MountPath),
	}

	if lv.Stripes != nil {
		out.Stripes = pointer.To(*lv.Stripes)
	}

	if lv.StripeSize != nil {
		out.StripeSize = pointer.To(storage.Bytes(*lv.StripeSize))
	}

	return out
}

func sizeToConfig(size *apimodel.Size) storage.Size {
	if size == nil || size.Auto {
		return nil
	}

	if size.IsFixed() {
		return storage.SizeValue{Value: storage.Bytes(size.Min)}
	}

	var maxSize *storage.SizeBound

	if size.Max != nil {
		maxSize = pointer.To(storage.Bytes(*size.Max))
	}

	return storage.NewSizeRange(storage.Bytes(size.Min), maxSize)
}

func filesystemToConfig(fs *apimodel.Filesystem, path string) *storage.Filesystem {
	if fs == nil && path == "" {
		return nil
	}

	out := &storage.Filesystem{Path: path}

	if fs == nil {
		return out
	}

	out.Label = fs.Label

	if fs.Reuse {
		out.Reuse = pointer.To(true)
	}

	if fs.Default || fs.Type == "" {
		return out
	}

	if fs.Type == storage.Btrfs && fs.Snapshots != nil {
		out.Type = storage.BtrfsFilesystemType{Btrfs: storage.BtrfsOptions{Snapshots: pointer.To(*fs.Snapshots)}}
	} else {
		out.Type = storage.PlainFilesystemType(fs.Type)
	}

	return out
}
