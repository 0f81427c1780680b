// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package solver

import (
	"context"
	"fmt"
	"strconv"

	"github.com/siderolabs/storagecfg/pkg/machinery/config/types/storage"
	"github.com/siderolabs/storagecfg/pkg/storage/apimodel"
	"github.com/siderolabs/storagecfg/pkg/storage/system"
)

func (st *state) resolveVolumeGroups(ctx context.Context) error {
	for i := range st.config.VolumeGroups {
		if err := ctx.Err(); err != nil {
			return err
		}

		vg := &st.config.VolumeGroups[i]
		names := logicalVolumeNames(vg)

		for _, element := range vg.LogicalVolumes {
			lv, ok := element.(*storage.LogicalVolume)
			if !ok {
				continue
			}

			var path string

			if lv.Filesystem != nil {
				path = lv.Filesystem.Path
			}

			if lv.Name == "" {
				lv.Name = uniqueName(names, apimodel.LogicalVolumeName(path))
			}

			size, err := st.newVolumeSize(lv.Size, path)
			if err != nil {
				return fmt.Errorf("volume group %q: %w", vg.Name, err)
			}

			lv.Size = size

			st.resolveFilesystem(lv.Filesystem, "")
		}
	}

	return nil
}

// expandGenerators appends the volumes of the generators to their lists.
//
// Volumes with a mount path already defined by the config are not generated.
func (st *state) expandGenerators(context.Context) error {
	for _, device := range st.config.Devices() {
		d, ok := device.(*storage.PartitionedDrive)
		if !ok {
			continue
		}

		if _, ok = st.devices[device]; !ok {
			continue
		}

		var generated storage.PartitionList

		for _, element := range d.Partitions {
			g, ok := element.(*storage.VolumesGenerator)
			if !ok {
				continue
			}

			for _, tpl := range st.generatedTemplates(g) {
				generated = append(generated, &storage.Partition{
					Size:       templateSize(&tpl),
					Encryption: g.Generate.Encryption,
					Filesystem: &storage.Filesystem{Path: tpl.MountPath, Type: templateType(&tpl)},
				})
			}
		}

		d.Partitions = append(d.Partitions, generated...)
	}

	for i := range st.config.VolumeGroups {
		vg := &st.config.VolumeGroups[i]
		names := logicalVolumeNames(vg)

		var generated storage.LogicalVolumeList

		for _, element := range vg.LogicalVolumes {
			g, ok := element.(*storage.VolumesGenerator)
			if !ok {
				continue
			}

			for _, tpl := range st.generatedTemplates(g) {
				generated = append(generated, &storage.LogicalVolume{
					Name:       uniqueName(names, apimodel.LogicalVolumeName(tpl.MountPath)),
					Size:       templateSize(&tpl),
					Encryption: g.Generate.Encryption,
					Filesystem: &storage.Filesystem{Path: tpl.MountPath, Type: templateType(&tpl)},
				})
			}
		}

		vg.LogicalVolumes = append(vg.LogicalVolumes, generated...)
	}

	return nil
}

// generatedTemplates returns the templates of the volumes the generator creates and
// records their mount paths.
func (st *state) generatedTemplates(g *storage.VolumesGenerator) []system.VolumeTemplate {
	var result []system.VolumeTemplate

	for _, tpl := range st.system.GeneratedTemplates(g.Generate.Mode == storage.GenerateMandatory) {
		if _, ok := st.mountPaths[tpl.MountPath]; ok {
			continue
		}

		st.mountPaths[tpl.MountPath] = struct{}{}

		result = append(result, tpl)
	}

	return result
}

func logicalVolumeNames(vg *storage.VolumeGroup) map[string]struct{} {
	names := map[string]struct{}{}

	for _, element := range vg.LogicalVolumes {
		if lv, ok := element.(*storage.LogicalVolume); ok && lv.Name != "" {
			names[lv.Name] = struct{}{}
		}
	}

	return names
}

// uniqueName returns base, or base with the lowest numeric suffix not in names, and
// records it.
func uniqueName(names map[string]struct{}, base string) string {
	name := base

	for i := 1; ; i++ {
		if _, ok := names[name]; !ok {
			break
		}

		name = base + strconv.Itoa(i)
	}

	names[name] = struct{}{}

	return name
}
