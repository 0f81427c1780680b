// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package solver

import (
	"fmt"

	"github.com/siderolabs/go-pointer"

	"github.com/siderolabs/storagecfg/pkg/machinery/config/types/storage"
	"github.com/siderolabs/storagecfg/pkg/machinery/constants"
	"github.com/siderolabs/storagecfg/pkg/storage/system"
)

// resolveFilesystem records the mount path and sets the filesystem type.
//
// The type of a reused filesystem is the existing one, otherwise it comes from the volume
// template of the mount path.
func (st *state) resolveFilesystem(fs *storage.Filesystem, existing string) {
	if fs == nil {
		return
	}

	if fs.Path != "" {
		st.mountPaths[fs.Path] = struct{}{}
	}

	if fs.Type != nil {
		return
	}

	if existing != "" && pointer.SafeDeref(fs.Reuse) {
		fs.Type = storage.PlainFilesystemType(existing)

		return
	}

	fs.Type = templateType(st.system.VolumeTemplate(fs.Path))
}

// newVolumeSize resolves the size of a volume to be created.
func (st *state) newVolumeSize(size storage.Size, path string) (storage.Size, error) {
	if size == nil {
		return templateSize(st.system.VolumeTemplate(path)), nil
	}

	minSize, maxSize := size.Bounds()

	if minSize.IsCurrent() || (maxSize != nil && maxSize.IsCurrent()) {
		return nil, fmt.Errorf("%w: the size of new volume %q can't refer to the current size", ErrInvalidConfig, path)
	}

	return size, nil
}

// existingSize resolves the current bounds of the size of an existing partition.
//
// Partitions without a size keep their current size.
func existingSize(size storage.Size, p *system.Partition) storage.Size {
	current := p.Size.Value()

	if size == nil {
		return storage.SizeValue{Value: storage.Bytes(current)}
	}

	resolve := func(b storage.SizeBound) storage.SizeBound {
		if b.IsCurrent() {
			return storage.Bytes(current)
		}

		return b
	}

	minSize, maxSize := size.Bounds()
	minSize = resolve(minSize)

	if maxSize != nil {
		maxSize = pointer.To(resolve(*maxSize))
	}

	switch size.(type) {
	case storage.SizeValue:
		return storage.SizeValue{Value: minSize}
	case storage.SizeTuple:
		if maxSize == nil {
			return storage.SizeTuple{minSize}
		}

		return storage.SizeTuple{minSize, *maxSize}
	default:
		return storage.NewSizeRange(minSize, maxSize)
	}
}

func templateSize(tpl *system.VolumeTemplate) storage.Size {
	if tpl == nil {
		return storage.SizeTuple{storage.Bytes(constants.DefaultMinVolumeSize)}
	}

	if tpl.MaxSize == nil {
		return storage.SizeTuple{tpl.MinSize}
	}

	return storage.SizeTuple{tpl.MinSize, *tpl.MaxSize}
}

func templateType(tpl *system.VolumeTemplate) storage.FilesystemType {
	switch {
	case tpl == nil || tpl.Filesystem == "":
		return nil
	case tpl.Filesystem == storage.Btrfs && tpl.Snapshots != nil:
		return storage.BtrfsFilesystemType{Btrfs: storage.BtrfsOptions{Snapshots: pointer.To(*tpl.Snapshots)}}
	default:
		return storage.PlainFilesystemType(tpl.Filesystem)
	}
}
