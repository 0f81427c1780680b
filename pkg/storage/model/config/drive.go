// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package config

import (
	"github.com/siderolabs/go-pointer"

	"github.com/siderolabs/storagecfg/pkg/machinery/config/types/storage"
	"github.com/siderolabs/storagecfg/pkg/storage/apimodel"
)

// GeneratePartition builds the API model partition.
//
// Regular partitions found by search get the resize flags: resize for an explicit fixed
// size, resizeIfNeeded for an explicit range. Nil is returned for elements which are not
// partitions (e.g. generators).
func GeneratePartition(raw, solved storage.PartitionElement) *apimodel.Partition {
	switch s := solved.(type) {
	case *storage.Partition:
		r, _ := raw.(*storage.Partition)

		return generateRegularPartition(r, s)
	case *storage.PartitionToDelete:
		return &apimodel.Partition{
			Name:   GenerateName(s.Search),
			Delete: true,
		}
	case *storage.PartitionToDeleteIfNeeded:
		var rawSize storage.Size

		if r, ok := raw.(*storage.PartitionToDeleteIfNeeded); ok {
			rawSize = r.Size
		}

		return &apimodel.Partition{
			Name:           GenerateName(s.Search),
			DeleteIfNeeded: true,
			Size:           GenerateSize(rawSize, s.Size),
		}
	default:
		return nil
	}
}

func generateRegularPartition(raw, solved *storage.Partition) *apimodel.Partition {
	var (
		rawSize storage.Size
		rawFS   *storage.Filesystem
	)

	if raw != nil {
		rawSize = raw.Size
		rawFS = raw.Filesystem
	}

	size := GenerateSize(rawSize, solved.Size)

	partition := &apimodel.Partition{
		Name:       GenerateName(solved.Search),
		Alias:      solved.Alias,
		ID:         solved.ID,
		MountPath:  mountPath(solved.Filesystem),
		Filesystem: generateFilesystemModel(rawFS, solved.Filesystem),
		Size:       size,
	}

	if solved.Search != nil {
		explicit := size != nil && !size.Auto

		partition.Resize = pointer.To(explicit && size.IsFixed())
		partition.ResizeIfNeeded = pointer.To(explicit && !size.IsFixed())
	}

	return partition
}

// isPartitionConfig reports whether a solved element describes a partition.
//
// Searches which did not resolve to a device are placeholders and are skipped.
func isPartitionConfig(element storage.PartitionElement) bool {
	switch p := element.(type) {
	case *storage.Partition:
		return p.Search == nil || GenerateName(p.Search) != ""
	case *storage.PartitionToDelete, *storage.PartitionToDeleteIfNeeded:
		return GenerateName(storage.ElementSearch(p)) != ""
	default:
		return false
	}
}

func partitionKey(element storage.PartitionElement) elementKey {
	key := elementKey{name: GenerateName(storage.ElementSearch(element))}

	if p, ok := element.(*storage.Partition); ok {
		key.alias = p.Alias
	}

	return key
}

// wildcardRaw returns the raw element with a match-all search the solved element may
// have been expanded from.
func wildcardRaw(raws storage.PartitionList, solved storage.PartitionElement) storage.PartitionElement {
	if storage.ElementSearch(solved) == nil {
		return nil
	}

	for _, raw := range raws {
		if !storage.MatchesAll(storage.ElementSearch(raw)) {
			continue
		}

		var sameKind bool

		switch solved.(type) {
		case *storage.Partition:
			_, sameKind = raw.(*storage.Partition)
		case *storage.PartitionToDelete:
			_, sameKind = raw.(*storage.PartitionToDelete)
		case *storage.PartitionToDeleteIfNeeded:
			_, sameKind = raw.(*storage.PartitionToDeleteIfNeeded)
		}

		if sameKind {
			return raw
		}
	}

	return nil
}

func driveKey(device storage.DriveElement) elementKey {
	return elementKey{
		alias: device.DeviceAlias(),
		name:  GenerateName(device.DeviceSearch()),
	}
}

// GenerateDrive builds the API model drive.
//
// Nil is returned for an unknown device variant.
func GenerateDrive(raw, solved storage.DriveElement) *apimodel.Drive {
	if solved == nil {
		return nil
	}

	policySource := raw
	if policySource == nil {
		policySource = solved
	}

	drive := &apimodel.Drive{
		Name:        GenerateName(solved.DeviceSearch()),
		Alias:       solved.DeviceAlias(),
		SpacePolicy: GenerateSpacePolicy(policySource),
	}

	switch s := solved.(type) {
	case *storage.FormattedDrive:
		var rawFS *storage.Filesystem

		if r, ok := raw.(*storage.FormattedDrive); ok {
			rawFS = r.Filesystem
		}

		drive.MountPath = mountPath(s.Filesystem)
		drive.Filesystem = generateFilesystemModel(rawFS, s.Filesystem)
	case *storage.PartitionedDrive:
		var rawPartitions storage.PartitionList

		if r, ok := raw.(*storage.PartitionedDrive); ok {
			rawPartitions = r.Partitions
		}

		drive.PtableType = s.PtableType

		for i, element := range s.Partitions {
			if !isPartitionConfig(element) {
				continue
			}

			rawElement, ok := pairRaw(rawPartitions, i, partitionKey(element), partitionKey)
			if !ok {
				rawElement = wildcardRaw(rawPartitions, element)
			}

			if partition := GeneratePartition(rawElement, element); partition != nil {
				drive.Partitions = append(drive.Partitions, *partition)
			}
		}
	default:
		return nil
	}

	return drive
}

// GenerateMdRaid builds the API model MD RAID.
func GenerateMdRaid(raw, solved storage.DriveElement) *apimodel.MdRaid {
	return GenerateDrive(raw, solved)
}
