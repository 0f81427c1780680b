// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package config converts between the storage config document and the API model.
//
// Generate* functions take an element of the config as written by the user (raw, may be
// nil) and the same element after solving (mandatory), and build the API model element.
// Functions in this package are pure: they neither log nor keep any state.
package config

import (
	"github.com/siderolabs/go-pointer"

	"github.com/siderolabs/storagecfg/pkg/machinery/config/types/storage"
	"github.com/siderolabs/storagecfg/pkg/storage/apimodel"
)

// GenerateSize builds the size of an element.
//
// The size is auto when the raw element does not define it. The "current" bound has no
// numeric value: as max it results in no max. Nil is returned when the solved element has
// no size.
func GenerateSize(raw, solved storage.Size) *apimodel.Size {
	if solved == nil {
		return nil
	}

	minSize, maxSize := solved.Bounds()

	size := &apimodel.Size{
		Auto: raw == nil,
		Min:  minSize.Value(),
	}

	if maxSize != nil && !maxSize.IsCurrent() {
		size.Max = pointer.To(maxSize.Value())
	}

	return size
}

// GenerateName returns the name of the searched device.
//
// Searches matching all devices and searches without a name condition have no name.
func GenerateName(search storage.Search) string {
	name, _ := storage.SearchedName(search)

	return name
}

// GenerateFilesystem returns the filesystem type name.
func GenerateFilesystem(fs *storage.Filesystem) string {
	if fs == nil {
		return ""
	}

	switch t := fs.Type.(type) {
	case storage.BtrfsFilesystemType:
		return storage.Btrfs
	case storage.PlainFilesystemType:
		return string(t)
	default:
		return ""
	}
}

// GenerateSnapshots returns the btrfs snapshots flag.
//
// Only the btrfs object form of the type carries the flag.
func GenerateSnapshots(fs *storage.Filesystem) *bool {
	if fs == nil {
		return nil
	}

	if t, ok := fs.Type.(storage.BtrfsFilesystemType); ok && t.Btrfs.Snapshots != nil {
		return pointer.To(*t.Btrfs.Snapshots)
	}

	return nil
}

func generateFilesystemModel(raw, solved *storage.Filesystem) *apimodel.Filesystem {
	if solved == nil {
		return nil
	}

	return &apimodel.Filesystem{
		Reuse:     pointer.SafeDeref(solved.Reuse),
		Default:   raw == nil || raw.Type == nil,
		Type:      GenerateFilesystem(solved),
		Snapshots: GenerateSnapshots(solved),
		Label:     solved.Label,
	}
}

func mountPath(fs *storage.Filesystem) string {
	if fs == nil {
		return ""
	}

	return fs.Path
}

type elementKey struct {
	alias string
	name  string
}

// pairRaw finds the raw counterpart of the solved element at index.
//
// Elements are paired by alias, then by the searched device name. An unnamed raw element
// at the same position is paired as the solver keeps the positions of such elements.
func pairRaw[T any](raws []T, index int, key elementKey, keyOf func(T) elementKey) (T, bool) {
	if key.alias != "" {
		for _, raw := range raws {
			if keyOf(raw).alias == key.alias {
				return raw, true
			}
		}
	}

	if key.name != "" {
		for _, raw := range raws {
			if keyOf(raw).name == key.name {
				return raw, true
			}
		}
	}

	if index < len(raws) {
		if rawKey := keyOf(raws[index]); rawKey.name == "" && (rawKey.alias == "" || rawKey.alias == key.alias) {
			return raws[index], true
		}
	}

	var zero T

	return zero, false
}
