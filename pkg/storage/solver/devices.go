// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package solver

import (
	"context"
	"fmt"
	"slices"

	"github.com/siderolabs/storagecfg/pkg/machinery/config/types/storage"
	"github.com/siderolabs/storagecfg/pkg/machinery/constants"
	"github.com/siderolabs/storagecfg/pkg/storage/system"
)

// unresolvedSearch replaces searches which matched nothing.
func unresolvedSearch() storage.Search {
	return &storage.AdvancedSearch{
		Condition:  &storage.SearchCondition{},
		IfNotFound: storage.IfNotFoundSkip,
	}
}

func describeSearch(search storage.Search) string {
	if name, ok := storage.SearchedName(search); ok {
		return name
	}

	return "matching any device"
}

// resolveDevices assigns a system device to every device of the list.
//
// Devices searched by name are resolved first so that other searches don't take them.
func (st *state) resolveDevices(ctx context.Context, list storage.DriveList, candidates []*system.Device) error {
	var named, unnamed storage.DriveList

	for _, device := range list {
		if _, ok := storage.SearchedName(device.DeviceSearch()); ok {
			named = append(named, device)
		} else {
			unnamed = append(unnamed, device)
		}
	}

	for _, device := range slices.Concat(named, unnamed) {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := st.resolveDevice(device, device.DeviceSearch(), candidates); err != nil {
			return err
		}
	}

	return nil
}

func (st *state) resolveDevice(device storage.DriveElement, search storage.Search, candidates []*system.Device) error {
	var found *system.Device

	if name, ok := storage.SearchedName(search); ok {
		for _, candidate := range candidates {
			if _, taken := st.used[candidate.Name]; candidate.Name == name && !taken {
				found = candidate

				break
			}
		}
	} else {
		for _, candidate := range candidates {
			if _, taken := st.used[candidate.Name]; !taken {
				found = candidate

				break
			}
		}
	}

	if found == nil {
		switch storage.SearchIfNotFound(search) {
		case storage.IfNotFoundSkip:
			setDeviceSearch(device, unresolvedSearch())

			return nil
		case storage.IfNotFoundCreate:
			return fmt.Errorf("%w: devices can't be created", ErrInvalidConfig)
		case storage.IfNotFoundError:
			fallthrough
		default:
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, describeSearch(search))
		}
	}

	st.used[found.Name] = struct{}{}
	st.devices[device] = found

	setDeviceSearch(device, storage.SearchName(found.Name))

	switch d := device.(type) {
	case *storage.PartitionedDrive:
		if d.PtableType == "" {
			d.PtableType = found.PtableType
		}

		if d.PtableType == "" {
			d.PtableType = constants.DefaultPtableType
		}
	case *storage.FormattedDrive:
		st.resolveFilesystem(d.Filesystem, found.Filesystem)
	}

	return nil
}

func setDeviceSearch(device storage.DriveElement, search storage.Search) {
	switch d := device.(type) {
	case *storage.PartitionedDrive:
		d.Search = search
	case *storage.FormattedDrive:
		d.Search = search
	}
}

func setDeviceAlias(device storage.DriveElement, alias string) {
	switch d := device.(type) {
	case *storage.PartitionedDrive:
		d.Alias = alias
	case *storage.FormattedDrive:
		d.Alias = alias
	}
}

// resolveBoot picks the boot device when the config doesn't name one.
//
// The device holding the root filesystem is preferred, then the first resolved device.
func (st *state) resolveBoot(context.Context) error {
	boot := st.config.Boot
	if boot == nil || !boot.Configure || boot.Device != "" {
		return nil
	}

	var target storage.DriveElement

	for _, device := range st.config.Devices() {
		if _, ok := st.devices[device]; !ok {
			continue
		}

		if target == nil {
			target = device
		}

		if holdsRoot(device) {
			target = device

			break
		}
	}

	if alias := rootVolumeGroupTarget(st.config); alias != "" && (target == nil || !holdsRoot(target)) {
		boot.Device = alias

		return nil
	}

	if target == nil {
		return nil
	}

	if target.DeviceAlias() == "" {
		setDeviceAlias(target, st.devices[target].Name)
	}

	boot.Device = target.DeviceAlias()

	return nil
}

func holdsRoot(device storage.DriveElement) bool {
	switch d := device.(type) {
	case *storage.FormattedDrive:
		return d.Filesystem != nil && d.Filesystem.Path == "/"
	case *storage.PartitionedDrive:
		for _, element := range d.Partitions {
			if p, ok := element.(*storage.Partition); ok && p.Filesystem != nil && p.Filesystem.Path == "/" {
				return true
			}
		}
	}

	return false
}

func rootVolumeGroupTarget(cfg *storage.Config) string {
	for _, vg := range cfg.VolumeGroups {
		for _, element := range vg.LogicalVolumes {
			lv, ok := element.(*storage.LogicalVolume)
			if !ok || lv.Filesystem == nil || lv.Filesystem.Path != "/" {
				continue
			}

			if aliases := vg.TargetAliases(); len(aliases) > 0 {
				return aliases[0]
			}
		}
	}

	return ""
}
